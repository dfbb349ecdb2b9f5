package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"STEALTH_ENABLED", "HUMAN_SIMULATION_ENABLED", "PROXY_ROTATION_ENABLED", "BROWSERLESS_BASE_URL", "RESULT_CACHE_TTL"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	if !cfg.StealthEnabled || !cfg.HumanSimulationEnabled {
		t.Fatalf("stealth and human simulation should default on: %+v", cfg)
	}
	if cfg.ProxyRotationEnabled {
		t.Fatal("rotation should default off")
	}
	if cfg.BrowserlessBaseURL != "https://chrome.browserless.io" {
		t.Fatalf("browserless base url: %q", cfg.BrowserlessBaseURL)
	}
	if cfg.ResultCacheTTL != 900*time.Second {
		t.Fatalf("cache ttl: %v", cfg.ResultCacheTTL)
	}
}

func TestLoadBoolsAndLists(t *testing.T) {
	t.Setenv("HUMAN_SIMULATION_ENABLED", "false")
	t.Setenv("PROXY_ROTATION_ENABLED", "TRUE")
	t.Setenv("PROXY_LIST", " http://a:1 , ,http://b:2")
	t.Setenv("CAPTCHA_SERVICE", "2Captcha")
	t.Setenv("CAPTCHA_API_KEY", "k")

	cfg := Load()
	if cfg.HumanSimulationEnabled {
		t.Fatal("expected human simulation off")
	}
	if !cfg.ProxyRotationEnabled {
		t.Fatal("expected rotation on")
	}
	if len(cfg.ProxyList) != 2 || cfg.ProxyList[1] != "http://b:2" {
		t.Fatalf("proxy list: %#v", cfg.ProxyList)
	}
	if !cfg.HasCaptchaService() || cfg.CaptchaService != "2captcha" {
		t.Fatalf("captcha service: %q", cfg.CaptchaService)
	}
}

func TestProxyEntriesMergesAndDedupes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "proxies.yaml")
	doc := "proxies:\n  - url: http://b:2\n  - url: http://c:3\n    username: u\n    password: p\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := Config{
		ProxyURL:      "http://a:1",
		ProxyUsername: "user",
		ProxyPassword: "pass",
		ProxyList:     []string{"http://a:1", "http://b:2"},
		ProxyFile:     path,
	}
	entries, err := cfg.ProxyEntries()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %#v", entries)
	}
	if entries[0].Username != "user" || entries[0].Password != "pass" {
		t.Fatalf("PROXY_URL credentials lost: %#v", entries[0])
	}
	if entries[2].URL != "http://c:3" || entries[2].Username != "u" {
		t.Fatalf("file entry: %#v", entries[2])
	}
}

func TestParseProxyFileInvalid(t *testing.T) {
	if _, err := ParseProxyFile([]byte("proxies: [")); err == nil {
		t.Fatal("expected parse error")
	}
}
