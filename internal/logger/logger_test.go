package logger

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestComponentPrefixAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithConfig("MapsEngine", Config{AppEnv: "production", Out: &buf})
	l.LogDebugf("hidden %d", 1)
	l.LogInfof("harvested %d listings", 5)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug must be filtered in production: %q", out)
	}
	if !strings.Contains(out, "[MapsEngine] harvested 5 listings") {
		t.Fatalf("missing component prefix: %q", out)
	}
}

func TestLogErrorIncludesError(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithConfig("Worker", Config{AppEnv: "development", Out: &buf})
	l.LogError("task failed", errors.New("boom"))
	if !strings.Contains(buf.String(), "boom") {
		t.Fatalf("error not logged: %q", buf.String())
	}
}

func TestLevelFor(t *testing.T) {
	cases := map[string]zerolog.Level{
		"development": zerolog.DebugLevel,
		"staging":     zerolog.InfoLevel,
		"test":        zerolog.WarnLevel,
		"":            zerolog.DebugLevel,
	}
	for env, want := range cases {
		if got := levelFor(env); got != want {
			t.Errorf("levelFor(%q) = %v, want %v", env, got, want)
		}
	}
}

func TestWithAddsFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithConfig("Search", Config{AppEnv: "production", Out: &buf}).With(map[string]interface{}{"job_id": "j1"})
	l.LogInfo("queued")
	if !strings.Contains(buf.String(), "job_id=j1") || l.Component() != "Search" {
		t.Fatalf("fields missing: %q", buf.String())
	}
}
