// Package credential generates, hashes and masks long-lived API key material.
package credential

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const (
	// PublicKeyBytes is the amount of randomness behind a public key (16 hex chars).
	PublicKeyBytes = 8
	// SecretBytes is the amount of randomness behind a secret (64 hex chars).
	SecretBytes = 32
)

// GeneratePublicKey returns a random, non-secret lookup identifier.
func GeneratePublicKey() (string, error) {
	return randomHex(PublicKeyBytes)
}

// GenerateSecret returns a random 256-bit secret encoded as lowercase hex.
// This is the value the client must keep private; only its hash is stored.
func GenerateSecret() (string, error) {
	return randomHex(SecretBytes)
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
