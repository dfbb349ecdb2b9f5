// Package contact pulls email addresses and phone numbers out of page text
// and mailto:/tel: links.
package contact

import (
	"regexp"
	"strings"
)

const (
	MaxEmails = 10
	MaxPhones = 5
)

var (
	emailRegex  = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	phoneRegex  = regexp.MustCompile(`\+?1?[\s\-]?\(?[0-9]{3}\)?[\s\-]?[0-9]{3}[\s\-]?[0-9]{4}`)
	mailtoRegex = regexp.MustCompile(`mailto:([^?\s"'<>]+)`)
	telRegex    = regexp.MustCompile(`tel:([\d\+\-\(\)\s]+)`)

	// Placeholder domains, platform addresses and automated senders.
	invalidEmailPatterns = []string{
		"example.com",
		"test.com",
		"sample.com",
		"domain.com",
		"email.com",
		"yourdomain.com",
		"yoursite.com",
		"website.com",
		"company.com",
		"@google",
		"@facebook",
		"@twitter",
		"@instagram",
		"noreply",
		"no-reply",
		"donotreply",
		".png",
		".jpg",
		".gif",
		".webp",
	}
)

// ValidEmail reports whether email is not a placeholder or platform address.
func ValidEmail(email string) bool {
	lower := strings.ToLower(email)
	if !emailRegex.MatchString(lower) {
		return false
	}
	for _, p := range invalidEmailPatterns {
		if strings.Contains(lower, p) {
			return false
		}
	}
	return true
}

// appendUnique appends v when absent and out is below max.
func appendUnique(out []string, seen map[string]bool, v string, max int) []string {
	if v == "" || seen[v] || len(out) >= max {
		return out
	}
	seen[v] = true
	return append(out, v)
}

// Emails returns valid lowercased addresses from text in order of appearance,
// mailto: targets first.
func Emails(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range mailtoRegex.FindAllStringSubmatch(text, -1) {
		if e := strings.ToLower(strings.TrimSpace(m[1])); ValidEmail(e) {
			out = appendUnique(out, seen, e, MaxEmails)
		}
	}
	for _, m := range emailRegex.FindAllString(text, -1) {
		if e := strings.ToLower(m); ValidEmail(e) {
			out = appendUnique(out, seen, e, MaxEmails)
		}
	}
	return out
}

// Phones returns phone numbers from text in order of appearance, tel: targets
// first.
func Phones(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range telRegex.FindAllStringSubmatch(text, -1) {
		out = appendUnique(out, seen, strings.TrimSpace(m[1]), MaxPhones)
	}
	for _, m := range phoneRegex.FindAllString(text, -1) {
		out = appendUnique(out, seen, strings.TrimSpace(m), MaxPhones)
	}
	return out
}

// FirstPhone returns the first phone number in text, or "".
func FirstPhone(text string) string {
	if m := phoneRegex.FindString(text); m != "" {
		return strings.TrimSpace(m)
	}
	return ""
}

// FromHrefs extracts targets from raw mailto:/tel: hrefs.
func FromHrefs(hrefs []string) (emails, phones []string) {
	joined := strings.Join(hrefs, " ")
	return Emails(joined), Phones(joined)
}

// Merge appends add to base keeping order, dropping duplicates and capping at max.
func Merge(base, add []string, max int) []string {
	out := make([]string, 0, len(base)+len(add))
	seen := make(map[string]bool)
	for _, v := range base {
		out = appendUnique(out, seen, v, max)
	}
	for _, v := range add {
		out = appendUnique(out, seen, v, max)
	}
	return out
}
