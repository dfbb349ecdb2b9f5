package maps

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mapscraper/internal/core/browser"
	"mapscraper/internal/core/crawlerr"
	"mapscraper/internal/core/detect"
	"mapscraper/internal/logger"

	"github.com/PuerkitoBio/goquery"
)

// RemoteMethod renders the search view on a browserless service and parses
// the returned HTML.
type RemoteMethod struct {
	baseURL string
	token   string
	client  *http.Client
	log     *logger.Logger
}

func NewRemoteMethod(baseURL, token string) *RemoteMethod {
	return &RemoteMethod{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 90 * time.Second},
		log:     logger.New("RemoteRenderer"),
	}
}

func (m *RemoteMethod) Name() string { return "browserless" }

type contentRequest struct {
	URL         string `json:"url"`
	GotoOptions struct {
		WaitUntil string `json:"waitUntil"`
		Timeout   int    `json:"timeout"`
	} `json:"gotoOptions"`
	WaitForSelector struct {
		Selector string `json:"selector"`
		Timeout  int    `json:"timeout"`
	} `json:"waitForSelector"`
}

func (m *RemoteMethod) Scrape(ctx context.Context, q Query) ([]Listing, error) {
	target := SearchURL(q.Query, q.Location)
	var payload contentRequest
	payload.URL = target
	payload.GotoOptions.WaitUntil = "networkidle0"
	payload.GotoOptions.Timeout = 60000
	payload.WaitForSelector.Selector = feedSelector
	payload.WaitForSelector.Timeout = 10000

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	endpoint := m.baseURL + "/content?token=" + url.QueryEscape(m.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	m.log.LogInfof("Requesting remote render of %s", target)
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, &AttemptError{Method: m.Name(), Err: fmt.Errorf("remote render: %w", err)}
	}
	defer resp.Body.Close()
	html, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &AttemptError{Method: m.Name(), Err: fmt.Errorf("read remote render: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		snippet := string(html)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, &AttemptError{Method: m.Name(), Err: fmt.Errorf("remote render status %d: %s", resp.StatusCode, snippet)}
	}

	switch v := detect.Classify(string(html)); v.Status {
	case detect.StatusDetected:
		return nil, &AttemptError{Method: m.Name(), Err: &crawlerr.BotDetectedError{Indicator: v.Indicator}}
	case detect.StatusCaptcha:
		if v.BlockPage {
			return nil, &AttemptError{Method: m.Name(), Err: &crawlerr.BotDetectedError{Indicator: v.Indicator}}
		}
		return nil, &AttemptError{Method: m.Name(), Err: &crawlerr.CaptchaError{Type: string(v.Type), Reason: "remote render cannot solve challenges"}}
	}

	cards, err := CardsFromHTML(string(html))
	if err != nil {
		return nil, &AttemptError{Method: m.Name(), Err: err}
	}
	results := ParseCards(cards)
	if q.MaxResults > 0 && len(results) > q.MaxResults {
		results = results[:q.MaxResults]
	}
	m.log.LogInfof("Remote render produced %d listings", len(results))
	return results, nil
}

// CardsFromHTML rebuilds raw feed cards from static HTML. Leaf blocks become
// text lines so the card text has the same shape as rendered innerText.
func CardsFromHTML(html string) ([]browser.RawCard, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse remote html: %w", err)
	}
	feed := doc.Find(feedSelector).First()
	if feed.Length() == 0 {
		feed = doc.Selection
	}
	nodes := feed.Find(`div[role="article"]`)
	if nodes.Length() == 0 {
		nodes = feed.Find(`a[href*="/maps/place/"]`).Parent()
	}
	var cards []browser.RawCard
	nodes.Each(func(_ int, s *goquery.Selection) {
		cards = append(cards, cardFromSelection(s))
	})
	return cards, nil
}

func squash(s string) string { return strings.Join(strings.Fields(s), " ") }

func cardFromSelection(s *goquery.Selection) browser.RawCard {
	place := s.Find(`a[href*="/maps/place/"]`).First()
	label, _ := s.Attr("aria-label")
	if label == "" {
		label, _ = place.Attr("aria-label")
	}
	href, _ := place.Attr("href")

	var lines []string
	s.Find("div").Each(func(_ int, n *goquery.Selection) {
		if n.Find("div").Length() > 0 {
			return
		}
		line := squash(n.Text())
		if line == "" || (len(lines) > 0 && lines[len(lines)-1] == line) {
			return
		}
		lines = append(lines, line)
	})
	if len(lines) == 0 {
		if t := squash(s.Text()); t != "" {
			lines = append(lines, t)
		}
	}

	var links []browser.Link
	s.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		h, _ := a.Attr("href")
		text, _ := a.Attr("aria-label")
		if text == "" {
			text = squash(a.Text())
		}
		links = append(links, browser.Link{Href: h, Text: text})
	})
	return browser.RawCard{Label: strings.TrimSpace(label), Href: href, Text: strings.Join(lines, "\n"), Links: links}
}
