package contact

import (
	"reflect"
	"testing"
)

func TestEmailsFiltersPlaceholders(t *testing.T) {
	text := `Write to <a href="mailto:Owner@CafeA.nyc?subject=hi">us</a> or info@cafea.nyc.
	Not these: you@example.com, noreply@cafea.nyc, logo@2x.png, owner@cafea.nyc`
	got := Emails(text)
	want := []string{"owner@cafea.nyc", "info@cafea.nyc"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Emails = %v, want %v", got, want)
	}
}

func TestEmailsCapped(t *testing.T) {
	text := ""
	for i := 0; i < 15; i++ {
		text += " user" + string(rune('a'+i)) + "@shop.io"
	}
	if got := Emails(text); len(got) != MaxEmails {
		t.Fatalf("got %d emails", len(got))
	}
}

func TestPhones(t *testing.T) {
	text := `<a href="tel:+12125550100">call</a> or (646) 555-0142 or 646-555-0142`
	got := Phones(text)
	if len(got) == 0 || got[0] != "+12125550100" {
		t.Fatalf("tel: target must come first, got %v", got)
	}
	if FirstPhone("nothing here") != "" {
		t.Fatal("expected no phone")
	}
	if p := FirstPhone("Call (646) 555-0142 today"); p != "(646) 555-0142" {
		t.Fatalf("FirstPhone = %q", p)
	}
}

func TestFromHrefs(t *testing.T) {
	emails, phones := FromHrefs([]string{"mailto:hello@cafea.nyc", "tel:+1 212-555-0100"})
	if len(emails) != 1 || emails[0] != "hello@cafea.nyc" {
		t.Fatalf("emails %v", emails)
	}
	if len(phones) != 1 || phones[0] != "+1 212-555-0100" {
		t.Fatalf("phones %v", phones)
	}
}

func TestMergeIdempotent(t *testing.T) {
	base := []string{"a@x.io", "b@x.io"}
	once := Merge(base, []string{"b@x.io", "c@x.io"}, MaxEmails)
	twice := Merge(once, []string{"b@x.io", "c@x.io"}, MaxEmails)
	if !reflect.DeepEqual(once, twice) || len(once) != 3 {
		t.Fatalf("once=%v twice=%v", once, twice)
	}
	if got := Merge(nil, []string{"a", "b", "c"}, 2); len(got) != 2 {
		t.Fatalf("cap ignored: %v", got)
	}
}
