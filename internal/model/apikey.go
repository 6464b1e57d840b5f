package model

import "time"

// APIKey is a long-lived credential pair issued to a project. The plaintext
// secret is never stored; only its bcrypt hash and last four characters are
// persisted. Revocation is terminal.
type APIKey struct {
	ID         string     `json:"id" db:"id"`
	ProjectID  string     `json:"project_id" db:"project_id"`
	Name       string     `json:"name" db:"name"`
	PublicKey  string     `json:"public_key" db:"public_key"`
	SecretHash string     `json:"-" db:"secret_hash"` // bcrypt hash, never expose
	Last4      string     `json:"last4" db:"last4"`
	Revoked    bool       `json:"revoked" db:"revoked"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
	RotatedAt  *time.Time `json:"rotated_at,omitempty" db:"rotated_at"`
	LastUsed   *time.Time `json:"last_used,omitempty" db:"last_used"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}
