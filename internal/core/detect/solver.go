package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mapscraper/internal/core/human"
)

const (
	defaultPollInterval = 10 * time.Second
	defaultMaxPolls     = 30
	notReady            = "CAPCHA_NOT_READY"
)

var ErrSolveTimeout = errors.New("captcha solve timed out")

// Solver turns a reCAPTCHA site key into a response token.
type Solver interface {
	Name() string
	Solve(ctx context.Context, siteKey, pageURL string) (string, error)
}

// NewSolver returns the solver for a configured service name, or nil when
// service is empty.
func NewSolver(service, apiKey string) (Solver, error) {
	switch strings.ToLower(service) {
	case "":
		return nil, nil
	case "2captcha":
		return NewTwoCaptcha(apiKey), nil
	case "anticaptcha", "anti-captcha":
		return NewAntiCaptcha(apiKey), nil
	default:
		return nil, fmt.Errorf("unknown captcha service %q", service)
	}
}

// TwoCaptcha speaks the in.php/res.php submit and poll protocol.
type TwoCaptcha struct {
	APIKey       string
	BaseURL      string
	Client       *http.Client
	PollInterval time.Duration
	MaxPolls     int
	Sleep        human.SleepFunc
}

func NewTwoCaptcha(apiKey string) *TwoCaptcha {
	return &TwoCaptcha{
		APIKey:       apiKey,
		BaseURL:      "http://2captcha.com",
		Client:       &http.Client{Timeout: 30 * time.Second},
		PollInterval: defaultPollInterval,
		MaxPolls:     defaultMaxPolls,
		Sleep:        human.Sleep,
	}
}

func (s *TwoCaptcha) Name() string { return "2captcha" }

type twoCaptchaResponse struct {
	Status  int    `json:"status"`
	Request string `json:"request"`
}

func (s *TwoCaptcha) decode(resp *http.Response) (twoCaptchaResponse, error) {
	defer resp.Body.Close()
	var out twoCaptchaResponse
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("decode 2captcha response: %w", err)
	}
	return out, nil
}

func (s *TwoCaptcha) Solve(ctx context.Context, siteKey, pageURL string) (string, error) {
	form := url.Values{
		"key":       {s.APIKey},
		"method":    {"userrecaptcha"},
		"googlekey": {siteKey},
		"pageurl":   {pageURL},
		"json":      {"1"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/in.php", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := s.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("2captcha submit: %w", err)
	}
	sub, err := s.decode(resp)
	if err != nil {
		return "", err
	}
	if sub.Status != 1 {
		return "", fmt.Errorf("2captcha submit rejected: %s", sub.Request)
	}

	q := url.Values{"key": {s.APIKey}, "action": {"get"}, "id": {sub.Request}, "json": {"1"}}
	pollURL := s.BaseURL + "/res.php?" + q.Encode()
	for i := 0; i < s.MaxPolls; i++ {
		if err := s.Sleep(ctx, s.PollInterval); err != nil {
			return "", err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pollURL, nil)
		if err != nil {
			return "", err
		}
		resp, err := s.Client.Do(req)
		if err != nil {
			return "", fmt.Errorf("2captcha poll: %w", err)
		}
		res, err := s.decode(resp)
		if err != nil {
			return "", err
		}
		switch {
		case res.Status == 1:
			return res.Request, nil
		case res.Request == notReady:
			continue
		default:
			return "", fmt.Errorf("2captcha: %s", res.Request)
		}
	}
	return "", ErrSolveTimeout
}

// AntiCaptcha speaks the createTask/getTaskResult JSON protocol.
type AntiCaptcha struct {
	APIKey       string
	BaseURL      string
	Client       *http.Client
	PollInterval time.Duration
	MaxPolls     int
	Sleep        human.SleepFunc
}

func NewAntiCaptcha(apiKey string) *AntiCaptcha {
	return &AntiCaptcha{
		APIKey:       apiKey,
		BaseURL:      "https://api.anti-captcha.com",
		Client:       &http.Client{Timeout: 30 * time.Second},
		PollInterval: defaultPollInterval,
		MaxPolls:     defaultMaxPolls,
		Sleep:        human.Sleep,
	}
}

func (s *AntiCaptcha) Name() string { return "anticaptcha" }

type antiCaptchaResponse struct {
	ErrorID          int    `json:"errorId"`
	ErrorDescription string `json:"errorDescription"`
	TaskID           int64  `json:"taskId"`
	Status           string `json:"status"`
	Solution         struct {
		GRecaptchaResponse string `json:"gRecaptchaResponse"`
	} `json:"solution"`
}

func (s *AntiCaptcha) post(ctx context.Context, path string, payload interface{}) (antiCaptchaResponse, error) {
	var out antiCaptchaResponse
	body, err := json.Marshal(payload)
	if err != nil {
		return out, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return out, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.Client.Do(req)
	if err != nil {
		return out, fmt.Errorf("anticaptcha %s: %w", path, err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decode anticaptcha response: %w", err)
	}
	if out.ErrorID != 0 {
		return out, fmt.Errorf("anticaptcha: %s", out.ErrorDescription)
	}
	return out, nil
}

func (s *AntiCaptcha) Solve(ctx context.Context, siteKey, pageURL string) (string, error) {
	created, err := s.post(ctx, "/createTask", map[string]interface{}{
		"clientKey": s.APIKey,
		"task": map[string]string{
			"type":       "RecaptchaV2TaskProxyless",
			"websiteURL": pageURL,
			"websiteKey": siteKey,
		},
	})
	if err != nil {
		return "", err
	}
	for i := 0; i < s.MaxPolls; i++ {
		if err := s.Sleep(ctx, s.PollInterval); err != nil {
			return "", err
		}
		res, err := s.post(ctx, "/getTaskResult", map[string]interface{}{
			"clientKey": s.APIKey,
			"taskId":    created.TaskID,
		})
		if err != nil {
			return "", err
		}
		switch res.Status {
		case "ready":
			return res.Solution.GRecaptchaResponse, nil
		case "processing":
			continue
		default:
			return "", fmt.Errorf("anticaptcha: unexpected status %q", res.Status)
		}
	}
	return "", ErrSolveTimeout
}
