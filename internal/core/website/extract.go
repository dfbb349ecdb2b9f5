package website

import (
	"net/url"
	"strings"

	"mapscraper/internal/core/browser"
	"mapscraper/internal/utils/contact"
	"mapscraper/internal/utils/markdown"

	"github.com/PuerkitoBio/goquery"
)

var (
	ContactKeywords = []string{"contact", "contact us", "contact-us", "get in touch", "reach us", "email us"}
	AboutKeywords   = []string{"about", "about us", "about-us", "our story", "who we are", "company"}
)

// Page is what one fetched document contributes to a profile.
type Page struct {
	URL         string
	Title       string
	Description string
	Text        string
	Links       []browser.Link
	Emails      []string
	Phones      []string
}

// ParsePage extracts metadata, same-site links, body text and contact
// details from html served at pageURL.
func ParsePage(html, pageURL string) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Page{}, err
	}
	p := Page{URL: pageURL}
	p.Title = strings.TrimSpace(doc.Find("title").First().Text())
	p.Description = metaContent(doc, `meta[name="description"]`)
	if p.Description == "" {
		p.Description = metaContent(doc, `meta[property="og:description"]`)
	}

	var hrefs []string
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		lower := strings.ToLower(href)
		if strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") {
			hrefs = append(hrefs, href)
			return
		}
		text := strings.TrimSpace(a.Text())
		if text == "" {
			text = a.AttrOr("aria-label", "")
		}
		if abs := ResolveLink(pageURL, href); abs != "" {
			p.Links = append(p.Links, browser.Link{Href: abs, Text: strings.Join(strings.Fields(text), " ")})
		}
	})

	p.Text = markdown.PlainText(html)

	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	body.Find("script, style, noscript").Remove()
	visible := body.Text()
	mailEmails, telPhones := contact.FromHrefs(hrefs)
	p.Emails = contact.Merge(mailEmails, contact.Emails(visible), contact.MaxEmails)
	p.Phones = contact.Merge(telPhones, contact.Phones(visible), contact.MaxPhones)
	return p, nil
}

func metaContent(doc *goquery.Document, sel string) string {
	return strings.TrimSpace(doc.Find(sel).First().AttrOr("content", ""))
}

func sameSite(a, b string) bool {
	return strings.TrimPrefix(strings.ToLower(a), "www.") == strings.TrimPrefix(strings.ToLower(b), "www.")
}

// ResolveLink makes href absolute against pageURL. Fragment-only, script,
// mailto: and tel: links and links to other hosts resolve to "".
func ResolveLink(pageURL, href string) string {
	lower := strings.ToLower(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(lower, "javascript:") ||
		strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") {
		return ""
	}
	base, err := url.Parse(pageURL)
	if err != nil || base.Host == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	if !sameSite(abs.Hostname(), base.Hostname()) {
		return ""
	}
	abs.Fragment = ""
	return abs.String()
}

// BestLink scores links against keywords: each keyword found in the link
// text adds 1 and each found in the URL adds 0.5. The highest positive score
// wins and ties go to the link seen first.
func BestLink(links []browser.Link, keywords []string) string {
	best, bestScore := "", 0.0
	for _, l := range links {
		text, href := strings.ToLower(l.Text), strings.ToLower(l.Href)
		score := 0.0
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				score++
			}
			if strings.Contains(href, kw) {
				score += 0.5
			}
		}
		if score > bestScore {
			best, bestScore = l.Href, score
		}
	}
	return best
}
