// Package token implements the compact, HMAC-signed access tokens that
// integrators obtain by exchanging an API key secret.
//
// A token is "<payload>.<signature>", where payload is the base64url JSON
// encoding of {p, a, iat, exp} (timestamps in Unix milliseconds) and
// signature is the base64url HMAC-SHA256 of the encoded payload.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/coder/quartz"
)

// DefaultTTL is the lifetime of a freshly issued token.
const DefaultTTL = time.Hour

const separator = "."

var encoding = base64.RawURLEncoding

// Claims is the verified content of a token.
type Claims struct {
	ProjectID string
	APIKeyID  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type payload struct {
	P   string `json:"p"`
	A   string `json:"a"`
	IAT int64  `json:"iat"`
	EXP int64  `json:"exp"`
}

// Codec encodes and verifies tokens. It is safe for concurrent use.
type Codec struct {
	ttl   time.Duration
	clock quartz.Clock
}

// NewCodec returns a Codec issuing tokens valid for ttl. A nil clock uses
// the real wall clock.
func NewCodec(ttl time.Duration, clock quartz.Clock) *Codec {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Codec{ttl: ttl, clock: clock}
}

// TTL returns the lifetime applied to issued tokens.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Encode issues a token for the given project and key, signed with
// signingSecret.
func (c *Codec) Encode(projectID, apiKeyID, signingSecret string) (string, error) {
	now := c.clock.Now()
	raw, err := json.Marshal(payload{
		P:   projectID,
		A:   apiKeyID,
		IAT: now.UnixMilli(),
		EXP: now.Add(c.ttl).UnixMilli(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal token payload: %w", err)
	}

	encoded := encoding.EncodeToString(raw)
	return encoded + separator + encoding.EncodeToString(sign(encoded, signingSecret)), nil
}

// Decode verifies tok against signingSecret and returns its claims. It
// reports false for any malformed, tampered, incomplete or expired token.
func (c *Codec) Decode(tok, signingSecret string) (Claims, bool) {
	encoded, sig, ok := split(tok)
	if !ok {
		return Claims{}, false
	}

	received, err := encoding.DecodeString(sig)
	if err != nil {
		return Claims{}, false
	}
	if !hmac.Equal(sign(encoded, signingSecret), received) {
		return Claims{}, false
	}

	p, ok := decodePayload(encoded)
	if !ok || p.P == "" || p.A == "" || p.EXP == 0 {
		return Claims{}, false
	}
	if p.EXP < c.clock.Now().UnixMilli() {
		return Claims{}, false
	}

	return Claims{
		ProjectID: p.P,
		APIKeyID:  p.A,
		IssuedAt:  time.UnixMilli(p.IAT),
		ExpiresAt: time.UnixMilli(p.EXP),
	}, true
}

// PeekKeyID returns the API key id from the payload WITHOUT verifying the
// signature. It is only suitable for choosing which key to verify against.
func PeekKeyID(tok string) (string, bool) {
	encoded, _, ok := split(tok)
	if !ok {
		return "", false
	}
	p, ok := decodePayload(encoded)
	if !ok || p.A == "" {
		return "", false
	}
	return p.A, true
}

func split(tok string) (encoded, sig string, ok bool) {
	encoded, sig, found := strings.Cut(tok, separator)
	if !found || encoded == "" || sig == "" || strings.Contains(sig, separator) {
		return "", "", false
	}
	return encoded, sig, true
}

func decodePayload(encoded string) (payload, bool) {
	raw, err := encoding.DecodeString(encoded)
	if err != nil {
		return payload{}, false
	}
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return payload{}, false
	}
	return p, true
}

func sign(encoded, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(encoded))
	return mac.Sum(nil)
}
