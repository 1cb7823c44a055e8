// Package phone normalizes recipient numbers to the digits-only form the
// SMS gateway accepts.
package phone

import (
	"regexp"
	"strings"
)

const CountryPrefix = "49"

var canonical = regexp.MustCompile(`^49\d+$`)

// Normalize strips whitespace, separators and a leading "+" or "00".
func Normalize(number string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(number) {
		switch r {
		case ' ', '-', '(', ')', '/', '\t':
			continue
		}
		b.WriteRune(r)
	}
	out := strings.TrimPrefix(b.String(), "+")
	if strings.HasPrefix(out, "00") {
		out = out[2:]
	}
	return out
}

// Valid reports whether number is already canonical.
func Valid(number string) bool {
	return canonical.MatchString(number)
}
