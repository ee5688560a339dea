package utils

import "testing"

func TestNormalizePhoneE164(t *testing.T) {
	cases := map[string]string{
		"+255754123456":    "+255754123456",
		"+255 754 123 456": "+255754123456",
		"0754123456":       "+255754123456",
		"0754-123-456":     "+255754123456",
	}
	for raw, want := range cases {
		got, ok := NormalizePhone(raw)
		if !ok {
			t.Fatalf("NormalizePhone(%q) rejected", raw)
		}
		if got != want {
			t.Fatalf("NormalizePhone(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestNormalizePhoneDigitsFallback(t *testing.T) {
	// Not a valid number anywhere, but still a usable natural key.
	got, ok := NormalizePhone("12-34")
	if !ok {
		t.Fatal("short unparseable numbers still normalize to digits")
	}
	if got != "1234" {
		t.Fatalf("got %q, want digits-only fallback", got)
	}
}

func TestNormalizePhoneRejectsUnusableInput(t *testing.T) {
	for _, raw := range []string{"", "   ", "0000000000", "000-000-0000", "1111111111", "no digits here"} {
		if got, ok := NormalizePhone(raw); ok {
			t.Fatalf("NormalizePhone(%q) = %q, want rejection", raw, got)
		}
	}
}
