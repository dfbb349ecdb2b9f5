// Package markdown turns business web pages into readable text.
package markdown

import (
	"regexp"
	"strings"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

var (
	mainSelectors = []string{"main", `[role="main"]`, "#content", "#main", "article"}

	boilerplateTags  = "script, style, noscript, nav, header, footer, aside, form, iframe, svg, button, input, select"
	boilerplateRoles = `[role="navigation"], [role="banner"], [role="contentinfo"], [aria-label*="cookie" i], [aria-modal]`

	// Class or id fragments of chrome that never carries business copy.
	boilerplateKeywords = []string{
		"cookie", "consent", "banner", "navbar", "nav-", "menu-", "header",
		"share", "signup", "signin", "login", "advert", "promo", "modal", "popup",
		"breadcrumb", "sidebar", "newsletter",
	}

	imageRe     = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	linkRe      = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	headingRe   = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s*`)
	listRe      = regexp.MustCompile(`(?m)^\s*(?:[-*+]|\d+\.)\s+`)
	emphasisRe  = regexp.MustCompile("[*_`~]{1,3}")
	escapeRe    = regexp.MustCompile(`\\([\\*_#\[\]().!+-])`)
	blankRe     = regexp.MustCompile(`\n{3,}`)
	invisibleRe = regexp.MustCompile(`[\x{200B}-\x{200F}\x{2028}\x{2029}\x{FEFF}\x00-\x08\x0B\x0C\x0E-\x1F]`)
)

// Content returns the cleaned main content of a page as markdown.
func Content(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	sel := doc.Find("body")
	for _, s := range mainSelectors {
		if found := doc.Find(s); found.Length() > 0 {
			sel = found.First()
			break
		}
	}
	if sel.Length() == 0 {
		sel = doc.Selection
	}

	sel.Find(boilerplateTags).Remove()
	sel.Find(boilerplateRoles).Remove()
	sel.Find("[class], [id]").Each(func(_ int, s *goquery.Selection) {
		class, _ := s.Attr("class")
		id, _ := s.Attr("id")
		lower := strings.ToLower(class + " " + id)
		for _, kw := range boilerplateKeywords {
			if strings.Contains(lower, kw) {
				s.Remove()
				return
			}
		}
	})

	body, err := sel.Html()
	if err != nil {
		return ""
	}
	out, err := md.NewConverter("", true, nil).ConvertString(body)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(blankRe.ReplaceAllString(dedupeLines(out), "\n\n"))
}

// PlainText returns the page's main content with markdown syntax removed and
// whitespace collapsed to single spaces.
func PlainText(html string) string {
	text := Content(html)
	text = imageRe.ReplaceAllString(text, "")
	text = linkRe.ReplaceAllString(text, "$1")
	text = headingRe.ReplaceAllString(text, "")
	text = listRe.ReplaceAllString(text, "")
	text = emphasisRe.ReplaceAllString(text, "")
	text = escapeRe.ReplaceAllString(text, "$1")
	text = invisibleRe.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}

// Excerpt truncates s to at most n characters on a rune boundary.
func Excerpt(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n]))
}

// dedupeLines drops repeated non-empty lines, which on small business sites is
// mostly duplicated menus and footers that survived cleanup.
func dedupeLines(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	seen := make(map[string]bool)
	for _, l := range lines {
		line := strings.TrimSpace(l)
		if line != "" {
			if seen[line] {
				continue
			}
			seen[line] = true
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
