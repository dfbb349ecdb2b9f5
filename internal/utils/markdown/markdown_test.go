package markdown

import (
	"strings"
	"testing"
)

func TestPlainTextSkipsBoilerplate(t *testing.T) {
	html := `<html><body>
	<nav>Home | Menu | Contact</nav>
	<div class="cookie-banner">We use cookies</div>
	<main>
		<h1>Cafe A</h1>
		<p>Family-run <strong>coffee</strong> shop since 1998. <a href="/menu">See the menu</a>.</p>
		<script>track()</script>
	</main>
	<footer>© Cafe A</footer>
	</body></html>`
	got := PlainText(html)
	for _, want := range []string{"Cafe A", "Family-run coffee shop since 1998.", "See the menu"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in %q", want, got)
		}
	}
	for _, junk := range []string{"cookies", "track()", "Home | Menu", "**", "](/menu)"} {
		if strings.Contains(got, junk) {
			t.Errorf("unexpected %q in %q", junk, got)
		}
	}
}

func TestExcerptRuneSafe(t *testing.T) {
	s := strings.Repeat("é", 600)
	if got := Excerpt(s, 500); len([]rune(got)) != 500 {
		t.Fatalf("got %d runes", len([]rune(got)))
	}
	if Excerpt("short", 500) != "short" {
		t.Fatal("short text must be unchanged")
	}
}
