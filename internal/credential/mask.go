package credential

import "strings"

const (
	// MaskChar replaces hidden characters in masked values.
	MaskChar = "*"

	visibleChars    = 4
	secretMaskWidth = 28
)

// MaskKey hides all but the last four characters of s, preserving its
// length. Values of four characters or fewer are returned unchanged.
func MaskKey(s string) string {
	if len(s) <= visibleChars {
		return s
	}
	return strings.Repeat(MaskChar, len(s)-visibleChars) + s[len(s)-visibleChars:]
}

// MaskSecret builds the display form of a secret from its stored last four
// characters. The plaintext is never available after issuance.
func MaskSecret(last4 string) string {
	return strings.Repeat(MaskChar, secretMaskWidth) + last4
}

// LastFour returns the trailing four characters of s (or all of s if shorter).
func LastFour(s string) string {
	if len(s) <= visibleChars {
		return s
	}
	return s[len(s)-visibleChars:]
}
