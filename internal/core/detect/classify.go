// Package detect recognizes bot-detection pages and CAPTCHA challenges and
// resolves the latter through an external solving service when configured.
package detect

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

type Status int

const (
	StatusClear Status = iota
	StatusCaptcha
	StatusDetected
)

func (s Status) String() string {
	switch s {
	case StatusCaptcha:
		return "captcha"
	case StatusDetected:
		return "detected"
	default:
		return "clear"
	}
}

type CaptchaType string

const (
	RecaptchaV2 CaptchaType = "recaptcha_v2"
	RecaptchaV3 CaptchaType = "recaptcha_v3"
	HCaptcha    CaptchaType = "hcaptcha"
	FunCaptcha  CaptchaType = "funcaptcha"
	Unknown     CaptchaType = "unknown"
)

// Verdict is the outcome of inspecting one page.
type Verdict struct {
	Status    Status
	Type      CaptchaType
	Indicator string
	// BlockPage is set on Google's unusual-traffic interstitial.
	BlockPage bool
}

var (
	recaptchaMarkers  = []string{"g-recaptcha", "grecaptcha", "recaptcha/api"}
	hcaptchaMarkers   = []string{"h-captcha", "hcaptcha"}
	funcaptchaMarkers = []string{"funcaptcha", "arkoselabs"}

	captchaIndicators = []string{
		"captcha",
		"verify you are human",
		"are you a robot",
		"prove you're not a robot",
	}
	blockIndicators = []string{
		"unusual traffic",
		"automated queries",
	}
	detectionIndicators = []string{
		"please verify",
		"sorry, we can't verify",
		"something went wrong",
		"access denied",
	}
)

func firstMatch(s string, needles []string) string {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return n
		}
	}
	return ""
}

// visibleText returns the lowercased document text without scripts and styles.
func visibleText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.ToLower(html)
	}
	doc.Find("script, style, noscript").Remove()
	return strings.ToLower(doc.Text())
}

// Classify inspects rendered HTML. Vendor markers are matched against the raw
// markup, textual indicators against the visible text.
func Classify(html string) Verdict {
	raw := strings.ToLower(html)
	text := visibleText(html)
	block := firstMatch(text, blockIndicators)

	if m := firstMatch(raw, recaptchaMarkers); m != "" {
		t := RecaptchaV3
		if strings.Contains(raw, "recaptcha/api2/anchor") || strings.Contains(raw, "g-recaptcha") {
			t = RecaptchaV2
		}
		return Verdict{Status: StatusCaptcha, Type: t, Indicator: m, BlockPage: block != ""}
	}
	if m := firstMatch(raw, hcaptchaMarkers); m != "" {
		return Verdict{Status: StatusCaptcha, Type: HCaptcha, Indicator: m, BlockPage: block != ""}
	}
	if m := firstMatch(raw, funcaptchaMarkers); m != "" {
		return Verdict{Status: StatusCaptcha, Type: FunCaptcha, Indicator: m, BlockPage: block != ""}
	}
	if m := firstMatch(text, captchaIndicators); m != "" {
		return Verdict{Status: StatusCaptcha, Type: Unknown, Indicator: m, BlockPage: block != ""}
	}
	if block != "" {
		return Verdict{Status: StatusCaptcha, Type: RecaptchaV2, Indicator: block, BlockPage: true}
	}
	if m := firstMatch(text, detectionIndicators); m != "" {
		return Verdict{Status: StatusDetected, Indicator: m}
	}
	return Verdict{Status: StatusClear}
}
