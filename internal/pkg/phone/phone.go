// Package phone normalizes phone numbers so that "+15551234567",
// "15551234567" and "+1 (555) 123-4567" all resolve to the same account.
package phone

import (
	"regexp"
	"strings"
)

var e164 = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

// Canonical strips formatting and guarantees a leading "+".
func Canonical(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}
	return "+" + digits
}

// Valid reports whether s, once canonicalized, is a plausible E.164 number.
func Valid(s string) bool {
	return e164.MatchString(Canonical(s))
}

// Variants returns the stored forms a number may have been written with:
// canonical first, then without the country-code marker.
func Variants(s string) []string {
	c := Canonical(s)
	if c == "" {
		return nil
	}
	return []string{c, strings.TrimPrefix(c, "+")}
}
