package stealth

import (
	"encoding/json"
	"fmt"
	"strings"

	rodstealth "github.com/go-rod/stealth"
)

// InitScripts returns the scripts installed on every context before any page
// script runs: the go-rod stealth evasions (webdriver, plugins, chrome
// runtime, permissions, WebGL vendor) followed by a navigator.languages
// override matching acceptLanguage.
func InitScripts(acceptLanguage string) []string {
	return []string{rodstealth.JS, languagesScript(acceptLanguage)}
}

// Languages lists the language tags of an Accept-Language value in order.
func Languages(acceptLanguage string) []string {
	var out []string
	for _, part := range strings.Split(acceptLanguage, ",") {
		tag := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		if tag != "" && tag != "*" {
			out = append(out, tag)
		}
	}
	if len(out) == 0 {
		out = []string{"en-US", "en"}
	}
	return out
}

func languagesScript(acceptLanguage string) string {
	b, _ := json.Marshal(Languages(acceptLanguage))
	return fmt.Sprintf(`Object.defineProperty(Object.getPrototypeOf(navigator), 'languages', { get: () => %s, configurable: true });`, b)
}
