// Package email derives a displayable name from an email address. The
// failure notification can fire before the credential ever delivered the
// user's name parts, and the template still needs something to address the
// user by.
package email

import (
	"strings"
	"unicode"
)

// DeriveNameFromEmail splits the local part on common separators and returns
// a capitalized (first, last) pair, defaulting to "User" when the address
// yields nothing usable.
func DeriveNameFromEmail(email string) (string, string) {
	localPart := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		localPart = email[:at]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})

	if len(parts) == 0 {
		return "User", "User"
	}

	first := capitalize(parts[0])
	last := "User"
	if len(parts) > 1 {
		last = capitalize(parts[len(parts)-1])
	}

	return first, last
}

func capitalize(s string) string {
	if s == "" {
		return s
	}

	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
