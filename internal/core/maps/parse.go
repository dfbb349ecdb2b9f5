package maps

import (
	"regexp"
	"strings"

	"mapscraper/internal/core/browser"
	"mapscraper/internal/utils/contact"
)

var (
	ratingRegex  = regexp.MustCompile(`(\d+\.\d+)`)
	reviewsRegex = regexp.MustCompile(`\(([0-9,]+)\)`)
	priceRegex   = regexp.MustCompile(`\$\d+[–-]\d+|\${1,4}`)
	addressRegex = regexp.MustCompile(`(?i)\d+[\w\s.'-]*\b(St|Street|Ave|Avenue|Rd|Road|Blvd|Boulevard|Dr|Drive|Ln|Lane|Way|Pl|Place|Ct|Court|Pkwy|Parkway|Hwy|Highway|Sq|Square|Broadway)\b\.?`)
	placeIDRegex = regexp.MustCompile(`/place/([^/]+)/`)
)

const separator = "·"

func cardLines(text string) []string {
	var out []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func splitSegments(line string) []string {
	var out []string
	for _, p := range strings.Split(line, separator) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseCard turns one feed card into a listing. ok is false when the card has
// no name.
func ParseCard(card browser.RawCard) (Listing, bool) {
	lines := cardLines(card.Text)
	name := strings.TrimSpace(card.Label)
	if name == "" && len(lines) > 0 {
		name = lines[0]
	}
	if name == "" {
		return Listing{}, false
	}
	l := Listing{Name: name, URL: card.Href}

	// Line 2 carries rating, review count and price level.
	if len(lines) > 1 {
		stats := lines[1]
		if m := ratingRegex.FindStringSubmatch(stats); m != nil {
			l.Rating = m[1]
		}
		if m := reviewsRegex.FindStringSubmatch(stats); m != nil {
			l.Reviews = m[1]
		}
		if m := priceRegex.FindString(stats); m != "" {
			l.PriceLevel = m
		}
	}

	// Line 3 is "category · address", sometimes with extra segments.
	if len(lines) > 2 {
		segs := splitSegments(lines[2])
		for i, s := range segs {
			if l.Address == "" && addressRegex.MatchString(s) {
				l.Address = s
				continue
			}
			if i == 0 && l.Category == "" && !priceRegex.MatchString(s) {
				l.Category = s
			}
		}
	}
	if l.Address == "" {
		for _, line := range lines[min(len(lines), 3):] {
			for _, s := range splitSegments(line) {
				if addressRegex.MatchString(s) {
					l.Address = s
					break
				}
			}
			if l.Address != "" {
				break
			}
		}
	}

	for _, link := range card.Links {
		href := strings.TrimSpace(link.Href)
		lower := strings.ToLower(link.Text)
		switch {
		case strings.HasPrefix(href, "tel:"):
			if l.Phone == "" {
				l.Phone = strings.TrimSpace(strings.TrimPrefix(href, "tel:"))
			}
		case l.Website == "" && (strings.Contains(lower, "website") || strings.Contains(lower, "visit")):
			if site := CleanWebsite(href); site != "" && !strings.Contains(site, "google.com/maps") {
				l.Website = site
			}
		}
	}
	if l.Phone == "" {
		l.Phone = contact.FirstPhone(card.Text)
	}
	return l, true
}

// ParseCards parses and de-duplicates a feed snapshot.
func ParseCards(cards []browser.RawCard) []Listing {
	out := make([]Listing, 0, len(cards))
	for _, c := range cards {
		if l, ok := ParseCard(c); ok {
			out = append(out, l)
		}
	}
	return Dedupe(out)
}

// PlaceID returns the path segment after /place/ in a listing URL.
func PlaceID(listingURL string) string {
	if m := placeIDRegex.FindStringSubmatch(listingURL); m != nil {
		return m[1]
	}
	return ""
}

// applyDetail backfills phone and email from an opened detail panel.
func applyDetail(l *Listing, d browser.DetailPanel) {
	emails, phones := contact.FromHrefs(append(append([]string{}, d.TelHrefs...), d.MailtoHrefs...))
	if Missing(l.Phone) {
		if len(phones) > 0 {
			l.Phone = phones[0]
		} else if p := contact.FirstPhone(d.Text); p != "" {
			l.Phone = p
		}
	}
	if len(emails) == 0 {
		emails = contact.Emails(d.Text)
	}
	if len(emails) > 0 {
		l.Email = emails[0]
	}
}
