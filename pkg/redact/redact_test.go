package redact

import (
	"strings"
	"testing"
)

func TestRedactDisabled(t *testing.T) {
	SetEnabled(false)
	in := "email a@b.com and phone +34 612 345 678"
	if got := Text(in); got != in {
		t.Fatalf("expected no redaction, got %q", got)
	}
}

func TestRedactEnabled(t *testing.T) {
	SetEnabled(true)
	defer SetEnabled(false)
	in := "email a@b.com, ssn 123-45-6789 and phone +34 612 345 678"
	got := Text(in)
	for _, want := range []string{"[REDACTED_EMAIL]", "[REDACTED_SSN]", "[REDACTED_PHONE]"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in %q", want, got)
		}
	}
	if strings.Contains(got, "6789") {
		t.Fatalf("expected ssn digits removed, got %q", got)
	}
}

func TestPreviewTruncatesRunes(t *testing.T) {
	SetEnabled(false)
	if got := Preview("mamá tiene dolor", 4); got != "mamá…" {
		t.Fatalf("unexpected preview %q", got)
	}
	if got := Preview("hola", 10); got != "hola" {
		t.Fatalf("unexpected preview %q", got)
	}
}
