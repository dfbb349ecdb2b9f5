package stealth

import (
	"fmt"
	"regexp"
	"strings"
)

// Family selects the user-agent pool a session draws from.
type Family string

const (
	FamilyChrome  Family = "chrome"
	FamilyFirefox Family = "firefox"
	FamilyEdge    Family = "edge"
	FamilyRandom  Family = "random"
)

func ParseFamily(s string) Family {
	switch f := Family(strings.ToLower(strings.TrimSpace(s))); f {
	case FamilyChrome, FamilyFirefox, FamilyEdge, FamilyRandom:
		return f
	default:
		return FamilyChrome
	}
}

// HeaderProfile is the header set a browser family sends alongside its UA.
type HeaderProfile struct {
	Accept          string
	AcceptEncoding  string
	SecFetchDest    string
	SecFetchMode    string
	SecFetchSite    string
	SecFetchUser    string
	// SecChUa is the brand reported in client hints; the version comes from
	// the UA.
	SecChUa         string
	SecChUaMobile   string
	SecChUaPlatform string
}

const (
	chromiumAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8"
	firefoxAccept  = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"
)

var userAgents = map[Family][]string{
	FamilyChrome: {
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; WOW64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	},
	FamilyFirefox: {
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:133.0) Gecko/20100101 Firefox/133.0",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:132.0) Gecko/20100101 Firefox/132.0",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:133.0) Gecko/20100101 Firefox/133.0",
		"Mozilla/5.0 (X11; Linux x86_64; rv:133.0) Gecko/20100101 Firefox/133.0",
	},
	FamilyEdge: {
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36 Edg/131.0.0.0",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36 Edg/130.0.0.0",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36 Edg/131.0.0.0",
	},
}

var headerProfiles = map[Family]HeaderProfile{
	FamilyChrome: {
		Accept:          chromiumAccept,
		AcceptEncoding:  "gzip, deflate, br",
		SecFetchDest:    "document",
		SecFetchMode:    "navigate",
		SecFetchSite:    "none",
		SecFetchUser:    "?1",
		SecChUa:         "Google Chrome",
		SecChUaMobile:   "?0",
		SecChUaPlatform: `"Windows"`,
	},
	FamilyEdge: {
		Accept:          chromiumAccept,
		AcceptEncoding:  "gzip, deflate, br",
		SecFetchDest:    "document",
		SecFetchMode:    "navigate",
		SecFetchSite:    "none",
		SecFetchUser:    "?1",
		SecChUa:         "Microsoft Edge",
		SecChUaMobile:   "?0",
		SecChUaPlatform: `"Windows"`,
	},
	FamilyFirefox: {
		Accept:         firefoxAccept,
		AcceptEncoding: "gzip, deflate, br",
		SecFetchDest:   "document",
		SecFetchMode:   "navigate",
		SecFetchSite:   "none",
		SecFetchUser:   "?1",
	},
}

// UserAgents returns the pool for a concrete family.
func UserAgents(f Family) []string { return userAgents[f] }

// platformFor reads the platform hint from a chromium UA so client hints
// match the UA string.
func platformFor(ua string) string {
	switch {
	case strings.Contains(ua, "Macintosh"):
		return `"macOS"`
	case strings.Contains(ua, "Linux"):
		return `"Linux"`
	default:
		return `"Windows"`
	}
}

var chromeVersionRe = regexp.MustCompile(`Chrome/(\d+)`)

// MajorVersion returns the Chrome major version in ua, or "" for non-chromium
// agents.
func MajorVersion(ua string) string {
	if m := chromeVersionRe.FindStringSubmatch(ua); m != nil {
		return m[1]
	}
	return ""
}

// clientHint builds the Sec-Ch-Ua brand list for brand at ua's version.
func clientHint(brand, ua string) string {
	v := MajorVersion(ua)
	if v == "" {
		return ""
	}
	return fmt.Sprintf(`"%s";v="%s", "Chromium";v="%s", "Not_A Brand";v="24"`, brand, v, v)
}

func profileFor(f Family) HeaderProfile {
	if p, ok := headerProfiles[f]; ok {
		return p
	}
	return headerProfiles[FamilyChrome]
}

// Headers builds the extra headers set on a browser context. They apply to
// every request the page makes, so only family-neutral headers go here and
// the browser fills in fetch metadata and client hints itself.
func Headers(f Family, acceptLanguage string) map[string]string {
	p := profileFor(f)
	return map[string]string{
		"Accept":                    p.Accept,
		"Accept-Language":           acceptLanguage,
		"Accept-Encoding":           p.AcceptEncoding,
		"DNT":                       "1",
		"Upgrade-Insecure-Requests": "1",
	}
}

// RequestHeaders builds the headers of a top-level document request sent
// without a browser, adding the fetch metadata and client hints a browser
// would send for a navigation.
func RequestHeaders(f Family, ua, acceptLanguage string) map[string]string {
	p := profileFor(f)
	h := Headers(f, acceptLanguage)
	h["Sec-Fetch-Dest"] = p.SecFetchDest
	h["Sec-Fetch-Mode"] = p.SecFetchMode
	h["Sec-Fetch-Site"] = p.SecFetchSite
	h["Sec-Fetch-User"] = p.SecFetchUser
	if p.SecChUa != "" {
		if hint := clientHint(p.SecChUa, ua); hint != "" {
			h["Sec-Ch-Ua"] = hint
			h["Sec-Ch-Ua-Mobile"] = p.SecChUaMobile
			h["Sec-Ch-Ua-Platform"] = platformFor(ua)
		}
	}
	return h
}

// Viewports are common desktop resolutions.
var Viewports = [][2]int{
	{1920, 1080},
	{1366, 768},
	{1536, 864},
	{1440, 900},
	{1280, 720},
	{1600, 900},
	{2560, 1440},
	{1680, 1050},
}

// LaunchArgs are passed to the browser when stealth is enabled.
var LaunchArgs = []string{
	"--no-sandbox",
	"--disable-dev-shm-usage",
	"--disable-blink-features=AutomationControlled",
	"--disable-features=IsolateOrigins,site-per-process",
	"--disable-web-security",
	"--disable-infobars",
	"--no-first-run",
	"--no-default-browser-check",
	"--disable-default-apps",
	"--disable-extensions",
	"--disable-popup-blocking",
	"--window-position=0,0",
}

// BasicLaunchArgs are used when stealth is disabled.
var BasicLaunchArgs = []string{
	"--no-sandbox",
	"--disable-dev-shm-usage",
}
