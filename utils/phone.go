package utils

import (
	"os"
	"strings"

	"github.com/ttacon/libphonenumber"
)

// PlaceholderPhone is what some upstream systems send when the borrower
// has no phone on file. It must never be used as an identity match key.
const PlaceholderPhone = "0000000000"

var DefaultPhoneRegion = getDefaultPhoneRegion()

func getDefaultPhoneRegion() string {
	region := os.Getenv("DEFAULT_PHONE_REGION")
	if region == "" {
		return "TZ"
	}
	return region
}

// NormalizePhone canonicalizes a raw phone string for identity matching.
// Parseable numbers come back in E.164; everything else falls back to the
// digits-only form. Returns ok=false for empty or placeholder input.
func NormalizePhone(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}

	digits := digitsOnly(trimmed)
	if digits == "" || digits == PlaceholderPhone || allSameDigit(digits) {
		return "", false
	}

	p, err := libphonenumber.Parse(trimmed, DefaultPhoneRegion)
	if err == nil && libphonenumber.IsValidNumber(p) {
		return libphonenumber.Format(p, libphonenumber.E164), true
	}

	return digits, true
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func allSameDigit(digits string) bool {
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[0] {
			return false
		}
	}
	return len(digits) > 0
}
