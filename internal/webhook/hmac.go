// Package webhook verifies inbound third-party webhook payloads signed with
// a shared HMAC-SHA256 secret.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// SignatureHeader is the request header carrying the hex HMAC digest.
const SignatureHeader = "X-Hub-Signature"

const sha256Prefix = "sha256="

// Body is the raw request body, either as received bytes or as a string.
// Both forms must be the exact bytes the sender signed.
type Body interface {
	~[]byte | ~string
}

// Verify reports whether signature is the hex HMAC-SHA256 of body under
// secret. The comparison is constant time. Empty secrets or signatures,
// invalid hex and length mismatches all fail closed.
func Verify[B Body](body B, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}

	expected := mac([]byte(body), secret)
	received, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	if len(received) != len(expected) {
		return false
	}
	return subtle.ConstantTimeCompare(expected, received) == 1
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign[B Body](body B, secret string) string {
	return hex.EncodeToString(mac([]byte(body), secret))
}

// ParseHeader strips the GitHub-style "sha256=" prefix if present.
func ParseHeader(value string) string {
	return strings.TrimPrefix(strings.TrimSpace(value), sha256Prefix)
}

func mac(body []byte, secret string) []byte {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write(body)
	return m.Sum(nil)
}
