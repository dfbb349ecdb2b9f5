package maps

import (
	"net/url"
	"strings"
)

// NotAvailable marks a field that was never observed.
const NotAvailable = "N/A"

type Listing struct {
	Rank       int    `json:"rank"`
	Name       string `json:"name"`
	Rating     string `json:"rating"`
	Reviews    string `json:"reviews"`
	Category   string `json:"category"`
	PriceLevel string `json:"price_level"`
	Address    string `json:"address"`
	Phone      string `json:"phone"`
	Website    string `json:"website"`
	Email      string `json:"email"`
	URL        string `json:"url"`

	WebsiteTitle       string   `json:"website_title,omitempty"`
	WebsiteDescription string   `json:"website_description,omitempty"`
	WebsiteSummary     string   `json:"website_summary,omitempty"`
	WebsiteEmails      []string `json:"website_emails,omitempty"`
	BusinessSummary    string   `json:"business_summary,omitempty"`
}

// Missing reports whether v holds no observed value.
func Missing(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || v == NotAvailable
}

func orNA(v string) string {
	if Missing(v) {
		return NotAvailable
	}
	return strings.TrimSpace(v)
}

// Normalize fills every unobserved core field with NotAvailable.
func (l *Listing) Normalize() {
	l.Name = orNA(l.Name)
	l.Rating = orNA(l.Rating)
	l.Reviews = orNA(l.Reviews)
	l.Category = orNA(l.Category)
	l.PriceLevel = orNA(l.PriceLevel)
	l.Address = orNA(l.Address)
	l.Phone = orNA(l.Phone)
	l.Email = orNA(l.Email)
	l.URL = orNA(l.URL)
	l.Website = orNA(CleanWebsite(l.Website))
}

// HasWebsite reports whether the listing carries a crawlable website.
func (l *Listing) HasWebsite() bool {
	return !Missing(l.Website) && CleanWebsite(l.Website) != ""
}

// CleanWebsite returns an absolute http(s) URL, unwrapping Google redirect
// links, or "" when raw is not one.
func CleanWebsite(raw string) string {
	raw = strings.TrimSpace(raw)
	if Missing(raw) {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if strings.Contains(u.Host, "google.") && u.Path == "/url" {
		if q := u.Query().Get("q"); q != "" {
			return CleanWebsite(q)
		}
		if q := u.Query().Get("url"); q != "" {
			return CleanWebsite(q)
		}
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ""
	}
	return u.String()
}

// Dedupe keeps the first listing for each exact name.
func Dedupe(in []Listing) []Listing {
	seen := make(map[string]bool, len(in))
	out := make([]Listing, 0, len(in))
	for _, l := range in {
		if l.Name == "" || seen[l.Name] {
			continue
		}
		seen[l.Name] = true
		out = append(out, l)
	}
	return out
}

// mergeNew appends the listings of add whose names are not yet in base.
func mergeNew(base, add []Listing) []Listing {
	return Dedupe(append(base, add...))
}
