package stealth

import "strings"

// Region localizes a session to a place.
type Region struct {
	Timezone       string
	Latitude       float64
	Longitude      float64
	AcceptLanguage string
}

type regionEntry struct {
	match string
	Region
}

const defaultAcceptLanguage = "en-US,en;q=0.9"

// DefaultRegion is used when no table entry matches the location.
var DefaultRegion = Region{Timezone: "America/New_York", Latitude: 40.7128, Longitude: -74.0060, AcceptLanguage: defaultAcceptLanguage}

// regions are matched in order by case-insensitive substring.
var regions = []regionEntry{
	{"new york", Region{"America/New_York", 40.7128, -74.0060, defaultAcceptLanguage}},
	{"los angeles", Region{"America/Los_Angeles", 34.0522, -118.2437, defaultAcceptLanguage}},
	{"chicago", Region{"America/Chicago", 41.8781, -87.6298, defaultAcceptLanguage}},
	{"houston", Region{"America/Chicago", 29.7604, -95.3698, defaultAcceptLanguage}},
	{"phoenix", Region{"America/Phoenix", 33.4484, -112.0740, defaultAcceptLanguage}},
	{"philadelphia", Region{"America/New_York", 39.9526, -75.1652, defaultAcceptLanguage}},
	{"san antonio", Region{"America/Chicago", 29.4241, -98.4936, defaultAcceptLanguage}},
	{"san diego", Region{"America/Los_Angeles", 32.7157, -117.1611, defaultAcceptLanguage}},
	{"dallas", Region{"America/Chicago", 32.7767, -96.7970, defaultAcceptLanguage}},
	{"san francisco", Region{"America/Los_Angeles", 37.7749, -122.4194, defaultAcceptLanguage}},
	{"seattle", Region{"America/Los_Angeles", 47.6062, -122.3321, defaultAcceptLanguage}},
	{"miami", Region{"America/New_York", 25.7617, -80.1918, defaultAcceptLanguage}},
	{"boston", Region{"America/New_York", 42.3601, -71.0589, defaultAcceptLanguage}},
	{"denver", Region{"America/Denver", 39.7392, -104.9903, defaultAcceptLanguage}},
	{"atlanta", Region{"America/New_York", 33.7490, -84.3880, defaultAcceptLanguage}},
	{"london", Region{"Europe/London", 51.5074, -0.1278, "en-GB,en;q=0.9"}},
	{"toronto", Region{"America/Toronto", 43.6532, -79.3832, "en-CA,en;q=0.9"}},
	{"sydney", Region{"Australia/Sydney", -33.8688, 151.2093, "en-AU,en;q=0.9"}},
	{"berlin", Region{"Europe/Berlin", 52.5200, 13.4050, "de-DE,de;q=0.9,en;q=0.8"}},
	{"paris", Region{"Europe/Paris", 48.8566, 2.3522, "fr-FR,fr;q=0.9,en;q=0.8"}},
	{"madrid", Region{"Europe/Madrid", 40.4168, -3.7038, "es-ES,es;q=0.9,en;q=0.8"}},
}

// countryLanguages map a standalone country token to an Accept-Language value.
var countryLanguages = map[string]string{
	"us": defaultAcceptLanguage,
	"uk": "en-GB,en;q=0.9",
	"ca": "en-CA,en;q=0.9",
	"au": "en-AU,en;q=0.9",
	"de": "de-DE,de;q=0.9,en;q=0.8",
	"fr": "fr-FR,fr;q=0.9,en;q=0.8",
	"es": "es-ES,es;q=0.9,en;q=0.8",
}

// LookupRegion resolves a free-form location. ok is false when the default
// region was returned.
func LookupRegion(location string) (Region, bool) {
	loc := strings.ToLower(location)
	if strings.TrimSpace(loc) == "" {
		return DefaultRegion, false
	}
	for _, r := range regions {
		if strings.Contains(loc, r.match) {
			return r.Region, true
		}
	}
	out := DefaultRegion
	for _, tok := range strings.FieldsFunc(loc, func(r rune) bool { return r == ',' || r == ' ' }) {
		if lang, ok := countryLanguages[tok]; ok {
			out.AcceptLanguage = lang
			break
		}
	}
	return out, false
}

// LocaleFor returns the primary language tag of an Accept-Language value.
func LocaleFor(acceptLanguage string) string {
	tag := acceptLanguage
	if i := strings.IndexAny(tag, ",;"); i >= 0 {
		tag = tag[:i]
	}
	if tag == "" {
		return "en-US"
	}
	return tag
}
