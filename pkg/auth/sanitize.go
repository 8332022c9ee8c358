package auth

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxNameLength caps stored display names, in runes.
const MaxNameLength = 100

// SanitizeName cleans a display name taken from sign-up input or provider
// metadata before it is stored on the account. Control characters are
// dropped, runs of whitespace become one space, and the result is cut to
// MaxNameLength runes. An empty result lets profile creation fall back to
// the email local part.
func SanitizeName(name string) string {
	name = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		if unicode.IsControl(r) || r == utf8.RuneError {
			return -1
		}
		return r
	}, name)
	name = strings.Join(strings.Fields(name), " ")

	if utf8.RuneCountInString(name) > MaxNameLength {
		name = strings.TrimSpace(string([]rune(name)[:MaxNameLength]))
	}
	return name
}
