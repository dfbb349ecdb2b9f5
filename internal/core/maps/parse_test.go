package maps

import (
	"testing"

	"mapscraper/internal/core/browser"
)

func TestParseCard(t *testing.T) {
	card := browser.RawCard{
		Label: "Cafe A",
		Href:  "https://www.google.com/maps/place/Cafe+A/data=!4m7",
		Text:  "Cafe A\n4.5(1,234) · $$\nCoffee shop · 123 Main St\nOpen ⋅ Closes 9 PM\n(212) 555-0100",
		Links: []browser.Link{
			{Href: "https://www.google.com/maps/dir/?api=1", Text: "Directions"},
			{Href: "https://cafea.nyc/", Text: "Visit Cafe A's website"},
		},
	}
	l, ok := ParseCard(card)
	if !ok {
		t.Fatal("expected a listing")
	}
	want := Listing{
		Name:       "Cafe A",
		Rating:     "4.5",
		Reviews:    "1,234",
		PriceLevel: "$$",
		Category:   "Coffee shop",
		Address:    "123 Main St",
		Phone:      "(212) 555-0100",
		Website:    "https://cafea.nyc/",
		URL:        card.Href,
	}
	if l.Name != want.Name || l.Rating != want.Rating || l.Reviews != want.Reviews ||
		l.PriceLevel != want.PriceLevel || l.Category != want.Category || l.Address != want.Address ||
		l.Phone != want.Phone || l.Website != want.Website || l.URL != want.URL {
		t.Fatalf("ParseCard =\n%+v\nwant\n%+v", l, want)
	}
}

func TestParseCardPriceRangeAndTelLink(t *testing.T) {
	l, _ := ParseCard(browser.RawCard{
		Text:  "Diner B\n4.1(87) · $10–20\nDiner · 45 Oak Avenue",
		Links: []browser.Link{{Href: "tel:+12125550199", Text: "Call"}},
	})
	if l.Name != "Diner B" || l.PriceLevel != "$10–20" || l.Address != "45 Oak Avenue" || l.Phone != "+12125550199" {
		t.Fatalf("got %+v", l)
	}
	if l.Website != "" {
		t.Fatal("no website link was labeled")
	}
}

func TestParseCardsDedupesByName(t *testing.T) {
	got := ParseCards([]browser.RawCard{
		{Label: "Cafe A"}, {Label: "Cafe B"}, {Label: "Cafe A"}, {Label: ""}, {Label: "cafe a"},
	})
	if len(got) != 3 || got[0].Name != "Cafe A" || got[1].Name != "Cafe B" || got[2].Name != "cafe a" {
		t.Fatalf("got %+v", got)
	}
}

func TestNormalizeFillsSentinel(t *testing.T) {
	l := Listing{Name: "Cafe A", Website: "javascript:void(0)", Phone: "  "}
	l.Normalize()
	for field, v := range map[string]string{
		"rating": l.Rating, "reviews": l.Reviews, "category": l.Category, "price": l.PriceLevel,
		"address": l.Address, "phone": l.Phone, "website": l.Website, "email": l.Email, "url": l.URL,
	} {
		if v != NotAvailable {
			t.Errorf("%s = %q, want sentinel", field, v)
		}
	}
	if l.HasWebsite() {
		t.Fatal("sentinel website is not crawlable")
	}
}

func TestCleanWebsite(t *testing.T) {
	cases := map[string]string{
		"https://cafea.nyc/":                         "https://cafea.nyc/",
		"/url?q=https://cafea.nyc/menu":              "",
		"https://www.google.com/url?q=https://b.com": "https://b.com",
		"ftp://files.example":                        "",
		"N/A":                                        "",
	}
	for in, want := range cases {
		if got := CleanWebsite(in); got != want {
			t.Errorf("CleanWebsite(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSearchURL(t *testing.T) {
	got := SearchURL("coffee shops", "New York, NY")
	want := "https://www.google.com/maps/search/coffee+shops+in+New+York%2C+NY"
	if got != want {
		t.Fatalf("got %s", got)
	}
	if SearchURL("pizza", "") != "https://www.google.com/maps/search/pizza" {
		t.Fatal("location is optional")
	}
}

func TestPlaceID(t *testing.T) {
	if id := PlaceID("https://www.google.com/maps/place/Cafe+A/@40.7,-73.9"); id != "Cafe+A" {
		t.Fatalf("id %q", id)
	}
	if PlaceID("https://example.com") != "" {
		t.Fatal("expected empty id")
	}
}
