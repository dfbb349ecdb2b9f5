package detect

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"mapscraper/internal/core/browser/browsertest"
	"mapscraper/internal/core/crawlerr"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		html   string
		status Status
		typ    CaptchaType
		block  bool
	}{
		{"clear", `<html><body><div role="feed">Cafe A</div></body></html>`, StatusClear, "", false},
		{"recaptcha v2", `<div class="g-recaptcha" data-sitekey="k"></div>`, StatusCaptcha, RecaptchaV2, false},
		{"recaptcha v3", `<script src="https://www.google.com/recaptcha/api.js?render=k"></script>`, StatusCaptcha, RecaptchaV3, false},
		{"hcaptcha", `<div class="h-captcha"></div>`, StatusCaptcha, HCaptcha, false},
		{"funcaptcha", `<iframe src="https://client-api.arkoselabs.com/fc"></iframe>`, StatusCaptcha, FunCaptcha, false},
		{"generic", `<p>Prove you're not a robot</p>`, StatusCaptcha, Unknown, false},
		{"unusual traffic", `<p>Our systems have detected unusual traffic from your computer network.</p>`, StatusCaptcha, RecaptchaV2, true},
		{"sorry page with widget", `<p>unusual traffic</p><div class="g-recaptcha"></div>`, StatusCaptcha, RecaptchaV2, true},
		{"detected", `<h1>Sorry, we can't verify that you're not a robot</h1>`, StatusDetected, "", false},
		{"script only mention", `<script>var captcha = 1;</script><p>hello</p>`, StatusClear, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := Classify(tc.html)
			if v.Status != tc.status || v.Type != tc.typ || v.BlockPage != tc.block {
				t.Fatalf("Classify = %+v", v)
			}
		})
	}
}

type fakeClock struct{ elapsed time.Duration }

func (c *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	c.elapsed += d
	return ctx.Err()
}

func twoCaptchaServer(t *testing.T, notReadyCount int, polls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/in.php":
			if err := r.ParseForm(); err != nil {
				t.Errorf("parse form: %v", err)
			}
			if r.Form.Get("method") != "userrecaptcha" || r.Form.Get("googlekey") != "site-key" {
				t.Errorf("unexpected submit %v", r.Form)
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": 1, "request": "task-1"})
		case "/res.php":
			n := atomic.AddInt32(polls, 1)
			if r.URL.Query().Get("id") != "task-1" || r.URL.Query().Get("action") != "get" {
				t.Errorf("unexpected poll %v", r.URL.Query())
			}
			if int(n) <= notReadyCount {
				_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": 0, "request": "CAPCHA_NOT_READY"})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": 1, "request": "token-xyz"})
		default:
			http.NotFound(w, r)
		}
	}))
}

func newTestTwoCaptcha(baseURL string, clock *fakeClock) *TwoCaptcha {
	s := NewTwoCaptcha("api-key")
	s.BaseURL = baseURL
	s.Sleep = clock.sleep
	return s
}

func TestTwoCaptchaSolvesAfterNotReady(t *testing.T) {
	var polls int32
	srv := twoCaptchaServer(t, 5, &polls)
	defer srv.Close()
	clock := &fakeClock{}

	token, err := newTestTwoCaptcha(srv.URL, clock).Solve(context.Background(), "site-key", "https://maps.example/search")
	if err != nil {
		t.Fatal(err)
	}
	if token != "token-xyz" {
		t.Fatalf("token %q", token)
	}
	if polls != 6 {
		t.Fatalf("polls = %d, want 6", polls)
	}
	if clock.elapsed < 50*time.Second {
		t.Fatalf("elapsed %v, want >= 50s", clock.elapsed)
	}
}

func TestTwoCaptchaGivesUpAfterMaxPolls(t *testing.T) {
	var polls int32
	srv := twoCaptchaServer(t, 1000, &polls)
	defer srv.Close()

	_, err := newTestTwoCaptcha(srv.URL, &fakeClock{}).Solve(context.Background(), "site-key", "https://x")
	if !errors.Is(err, ErrSolveTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if polls != 30 {
		t.Fatalf("polls = %d, want 30", polls)
	}
}

func TestTwoCaptchaTerminalError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/in.php" {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": 1, "request": "t"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": 0, "request": "ERROR_CAPTCHA_UNSOLVABLE"})
	}))
	defer srv.Close()

	_, err := newTestTwoCaptcha(srv.URL, &fakeClock{}).Solve(context.Background(), "k", "https://x")
	if err == nil || errors.Is(err, ErrSolveTimeout) {
		t.Fatalf("expected terminal failure, got %v", err)
	}
}

func TestAntiCaptcha(t *testing.T) {
	var polls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		switch r.URL.Path {
		case "/createTask":
			task, _ := body["task"].(map[string]interface{})
			if task["type"] != "RecaptchaV2TaskProxyless" || task["websiteKey"] != "site-key" {
				t.Errorf("unexpected task %v", body)
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"errorId": 0, "taskId": 42})
		case "/getTaskResult":
			if atomic.AddInt32(&polls, 1) < 3 {
				_ = json.NewEncoder(w).Encode(map[string]interface{}{"errorId": 0, "status": "processing"})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"errorId": 0, "status": "ready",
				"solution": map[string]string{"gRecaptchaResponse": "anti-token"},
			})
		}
	}))
	defer srv.Close()

	s := NewAntiCaptcha("k")
	s.BaseURL = srv.URL
	s.Sleep = (&fakeClock{}).sleep
	token, err := s.Solve(context.Background(), "site-key", "https://x")
	if err != nil || token != "anti-token" {
		t.Fatalf("token=%q err=%v", token, err)
	}
	if polls != 3 {
		t.Fatalf("polls = %d", polls)
	}
}

func TestNewSolver(t *testing.T) {
	if s, err := NewSolver("", "k"); s != nil || err != nil {
		t.Fatal("empty service means no solver")
	}
	if s, _ := NewSolver("2Captcha", "k"); s == nil || s.Name() != "2captcha" {
		t.Fatal("expected 2captcha")
	}
	if s, _ := NewSolver("anticaptcha", "k"); s == nil || s.Name() != "anticaptcha" {
		t.Fatal("expected anticaptcha")
	}
	if _, err := NewSolver("deathbycaptcha", "k"); err == nil {
		t.Fatal("expected error for unknown service")
	}
}

type stubSolver struct {
	token string
	err   error
	calls int
}

func (s *stubSolver) Name() string { return "stub" }
func (s *stubSolver) Solve(ctx context.Context, siteKey, pageURL string) (string, error) {
	s.calls++
	return s.token, s.err
}

func TestHandlerCheck(t *testing.T) {
	ctx := context.Background()

	if err := NewHandler(nil).Check(ctx, &browsertest.Page{HTML: "<p>results</p>"}); err != nil {
		t.Fatalf("clear page: %v", err)
	}

	var bot *crawlerr.BotDetectedError
	err := NewHandler(nil).Check(ctx, &browsertest.Page{HTML: "<p>Something went wrong</p>"})
	if !errors.As(err, &bot) {
		t.Fatalf("expected bot detection, got %v", err)
	}

	err = NewHandler(nil).Check(ctx, &browsertest.Page{HTML: "<p>unusual traffic from your network</p>"})
	if !errors.As(err, &bot) || bot.Indicator != "unusual traffic" {
		t.Fatalf("unusual traffic must surface as bot detection, got %v", err)
	}

	var capErr *crawlerr.CaptchaError
	err = NewHandler(nil).Check(ctx, &browsertest.Page{HTML: `<div class="h-captcha"></div>`})
	if !errors.As(err, &capErr) || capErr.Type != "hcaptcha" {
		t.Fatalf("expected hcaptcha error, got %v", err)
	}

	solver := &stubSolver{token: "tok"}
	page := &browsertest.Page{HTML: `<div class="g-recaptcha" data-sitekey="abc"></div>`, SiteKey: "abc"}
	if err := NewHandler(solver).Check(ctx, page); err != nil {
		t.Fatalf("expected solved, got %v", err)
	}
	if page.InjectedToken != "tok" || solver.calls != 1 {
		t.Fatalf("token not injected: %q", page.InjectedToken)
	}

	failing := &stubSolver{err: errors.New("zero balance")}
	err = NewHandler(failing).Check(ctx, &browsertest.Page{HTML: `<div class="g-recaptcha"></div>`, SiteKey: "abc"})
	if !errors.As(err, &capErr) || capErr.Type != "recaptcha_v2" {
		t.Fatalf("expected recaptcha error, got %v", err)
	}
}
