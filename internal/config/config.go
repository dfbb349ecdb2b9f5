package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	AppEnv        string
	HTTPAddr      string
	RedisAddr     string
	RedisPassword string
	APIKey        string

	StealthEnabled         bool
	HumanSimulationEnabled bool
	Headless               bool
	BrowserFamily          string

	ProxyURL             string
	ProxyUsername        string
	ProxyPassword        string
	ProxyList            []string
	ProxyFile            string
	ProxyRotationEnabled bool

	BrowserlessToken   string
	BrowserlessBaseURL string

	CaptchaService string
	CaptchaAPIKey  string

	LLMProvider     string
	GeminiAPIKey    string
	DefaultLLMModel string

	DefaultMaxResults int
	ResultCacheTTL    time.Duration
	TaskMaxRetries    int
}

// ProxyEntry is one proxy as declared in PROXY_FILE.
type ProxyEntry struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return def
	}
	return v == "true" || v == "1" || v == "yes"
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load reads an optional .env file and then the process environment.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppEnv:        getenv("APP_ENV", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8000"),
		RedisAddr:     getenv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		APIKey:        os.Getenv("API_KEY"),

		StealthEnabled:         getenvBool("STEALTH_ENABLED", true),
		HumanSimulationEnabled: getenvBool("HUMAN_SIMULATION_ENABLED", true),
		Headless:               getenvBool("HEADLESS", true),
		BrowserFamily:          getenv("BROWSER_FAMILY", "chrome"),

		ProxyURL:             os.Getenv("PROXY_URL"),
		ProxyUsername:        os.Getenv("PROXY_USERNAME"),
		ProxyPassword:        os.Getenv("PROXY_PASSWORD"),
		ProxyList:            splitList(os.Getenv("PROXY_LIST")),
		ProxyFile:            os.Getenv("PROXY_FILE"),
		ProxyRotationEnabled: getenvBool("PROXY_ROTATION_ENABLED", false),

		BrowserlessToken:   os.Getenv("BROWSERLESS_TOKEN"),
		BrowserlessBaseURL: getenv("BROWSERLESS_BASE_URL", "https://chrome.browserless.io"),

		CaptchaService: strings.ToLower(os.Getenv("CAPTCHA_SERVICE")),
		CaptchaAPIKey:  os.Getenv("CAPTCHA_API_KEY"),

		LLMProvider:     getenv("LLM_PROVIDER", "gemini"),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		DefaultLLMModel: getenv("DEFAULT_LLM_MODEL", "gemini-1.5-flash"),

		DefaultMaxResults: getenvInt("DEFAULT_MAX_RESULTS", 20),
		ResultCacheTTL:    time.Duration(getenvInt("RESULT_CACHE_TTL", 900)) * time.Second,
		TaskMaxRetries:    getenvInt("TASK_MAX_RETRIES", 0),
	}
	if cfg.RedisAddr == "" {
		panic(fmt.Errorf("REDIS_ADDR is required"))
	}
	return cfg
}

func (c Config) HasProxy() bool { return c.ProxyURL != "" || len(c.ProxyList) > 0 || c.ProxyFile != "" }

func (c Config) HasBrowserless() bool { return c.BrowserlessToken != "" }

func (c Config) HasCaptchaService() bool { return c.CaptchaService != "" && c.CaptchaAPIKey != "" }

func (c Config) HasLLM() bool { return c.GeminiAPIKey != "" }

// ProxyEntries merges PROXY_URL (with credentials), PROXY_LIST and PROXY_FILE,
// keeping the first occurrence of each URL.
func (c Config) ProxyEntries() ([]ProxyEntry, error) {
	var out []ProxyEntry
	seen := make(map[string]bool)
	add := func(e ProxyEntry) {
		e.URL = strings.TrimSpace(e.URL)
		if e.URL == "" || seen[e.URL] {
			return
		}
		seen[e.URL] = true
		out = append(out, e)
	}

	if c.ProxyURL != "" {
		add(ProxyEntry{URL: c.ProxyURL, Username: c.ProxyUsername, Password: c.ProxyPassword})
	}
	for _, u := range c.ProxyList {
		add(ProxyEntry{URL: u})
	}
	if c.ProxyFile != "" {
		b, err := os.ReadFile(c.ProxyFile)
		if err != nil {
			return out, fmt.Errorf("read proxy file: %w", err)
		}
		fileEntries, err := ParseProxyFile(b)
		if err != nil {
			return out, err
		}
		for _, e := range fileEntries {
			add(e)
		}
	}
	return out, nil
}

// ParseProxyFile decodes a YAML document of the form:
//
//	proxies:
//	  - url: http://host:port
//	    username: user
//	    password: pass
func ParseProxyFile(b []byte) ([]ProxyEntry, error) {
	var doc struct {
		Proxies []ProxyEntry `yaml:"proxies"`
	}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse proxy file: %w", err)
	}
	return doc.Proxies, nil
}
