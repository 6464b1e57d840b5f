package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/quartz"

	"github.com/tallyhq/tally/internal/config"
	"github.com/tallyhq/tally/internal/credential"
	"github.com/tallyhq/tally/internal/model"
	"github.com/tallyhq/tally/internal/token"
)

// KeyStore is the persistence surface used by KeyManager.
type KeyStore interface {
	APIKeyReader
	CreateAPIKey(ctx context.Context, key *model.APIKey) error
	GetAPIKeyByPublicKey(ctx context.Context, publicKey string) (*model.APIKey, error)
	ListProjectAPIKeys(ctx context.Context, projectID string) ([]model.APIKey, error)
	RotateAPIKey(ctx context.Context, projectID, id, publicKey, secretHash, last4 string, at time.Time) error
	RevokeAPIKey(ctx context.Context, projectID, id string, at time.Time) error
}

// CreatedKey is returned once at creation. It is the only time the
// plaintext secret is available.
type CreatedKey struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Key       string    `json:"key"`
	Secret    string    `json:"secret"`
	CreatedAt time.Time `json:"createdAt"`
}

// RotatedKey carries the replacement credentials of a rotated key.
type RotatedKey struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

// MaskedKey is the listing view of a key.
type MaskedKey struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Key       string     `json:"key"`
	Secret    string     `json:"secret"`
	CreatedAt time.Time  `json:"createdAt"`
	RotatedAt *time.Time `json:"rotatedAt"`
	Revoked   bool       `json:"revoked"`
}

// IssuedToken is the result of a successful exchange.
type IssuedToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// KeyManager issues, rotates, revokes and lists project API keys, and
// exchanges key/secret pairs for short-lived tokens.
type KeyManager struct {
	store  KeyStore
	hasher *credential.Hasher
	codec  *token.Codec
	cache  *Cache
	clock  quartz.Clock
	logger *slog.Logger

	// dummyHash is compared against when a public key is unknown so that
	// lookups of missing and existing keys take similar time.
	dummyOnce sync.Once
	dummyHash string
}

// NewKeyManager creates a KeyManager. cache may be nil; a nil clock or
// logger uses the real clock and slog.Default.
func NewKeyManager(store KeyStore, hasher *credential.Hasher, codec *token.Codec, cache *Cache, clock quartz.Clock, logger *slog.Logger) *KeyManager {
	if hasher == nil {
		hasher = credential.NewHasher(credential.DefaultCost)
	}
	if clock == nil {
		clock = quartz.NewReal()
	}
	if codec == nil {
		codec = token.NewCodec(token.DefaultTTL, clock)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &KeyManager{
		store:  store,
		hasher: hasher,
		codec:  codec,
		cache:  cache,
		clock:  clock,
		logger: logger,
	}
}

// newMaterial generates and hashes a fresh public key and secret. Nothing is
// written if any step fails.
func (m *KeyManager) newMaterial() (publicKey, secret, hash string, err error) {
	if publicKey, err = credential.GeneratePublicKey(); err != nil {
		return "", "", "", fmt.Errorf("%w: generate public key: %v", ErrInternal, err)
	}
	if secret, err = credential.GenerateSecret(); err != nil {
		return "", "", "", fmt.Errorf("%w: generate secret: %v", ErrInternal, err)
	}
	if hash, err = m.hasher.Hash(secret); err != nil {
		return "", "", "", fmt.Errorf("%w: hash secret: %v", ErrInternal, err)
	}
	return publicKey, secret, hash, nil
}

// Create issues a new key for projectID.
func (m *KeyManager) Create(ctx context.Context, projectID, name string) (*CreatedKey, error) {
	publicKey, secret, hash, err := m.newMaterial()
	if err != nil {
		return nil, err
	}

	key := &model.APIKey{
		ProjectID:  projectID,
		Name:       name,
		PublicKey:  publicKey,
		SecretHash: hash,
		Last4:      credential.LastFour(secret),
		CreatedAt:  m.clock.Now().UTC(),
	}
	if err := m.store.CreateAPIKey(ctx, key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	m.logger.Info("api key created", "project_id", projectID, "api_key_id", key.ID)
	return &CreatedKey{
		ID:        key.ID,
		Name:      key.Name,
		Key:       publicKey,
		Secret:    secret,
		CreatedAt: key.CreatedAt,
	}, nil
}

// Rotate replaces the key's public key and secret in place. Tokens signed
// with the previous secret hash stop verifying. Rotating a revoked or
// missing key returns ErrNotFoundOrRevoked.
func (m *KeyManager) Rotate(ctx context.Context, projectID, apiKeyID string) (*RotatedKey, error) {
	publicKey, secret, hash, err := m.newMaterial()
	if err != nil {
		return nil, err
	}

	err = m.store.RotateAPIKey(ctx, projectID, apiKeyID, publicKey, hash, credential.LastFour(secret), m.clock.Now().UTC())
	if errors.Is(err, config.ErrNotFound) {
		return nil, ErrNotFoundOrRevoked
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	m.cache.InvalidateKey(apiKeyID)

	m.logger.Info("api key rotated", "project_id", projectID, "api_key_id", apiKeyID)
	return &RotatedKey{ID: apiKeyID, Key: publicKey, Secret: secret}, nil
}

// Revoke permanently disables a key. Revoking an already revoked key
// succeeds; a missing key returns ErrNotFoundOrRevoked.
func (m *KeyManager) Revoke(ctx context.Context, projectID, apiKeyID string) error {
	err := m.store.RevokeAPIKey(ctx, projectID, apiKeyID, m.clock.Now().UTC())
	if errors.Is(err, config.ErrNotFound) {
		return ErrNotFoundOrRevoked
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	m.cache.InvalidateKey(apiKeyID)

	m.logger.Info("api key revoked", "project_id", projectID, "api_key_id", apiKeyID)
	return nil
}

// List returns the project's keys with credential material masked.
func (m *KeyManager) List(ctx context.Context, projectID string) ([]MaskedKey, error) {
	keys, err := m.store.ListProjectAPIKeys(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	out := make([]MaskedKey, len(keys))
	for i, k := range keys {
		out[i] = MaskedKey{
			ID:        k.ID,
			Name:      k.Name,
			Key:       credential.MaskKey(k.PublicKey),
			Secret:    credential.MaskSecret(k.Last4),
			CreatedAt: k.CreatedAt,
			RotatedAt: k.RotatedAt,
			Revoked:   k.Revoked,
		}
	}
	return out, nil
}

// Exchange trades a public key and secret for a short-lived token signed
// with the key's stored hash. Every failure is reported as ErrUnauthorized.
func (m *KeyManager) Exchange(ctx context.Context, publicKey, secret string) (*IssuedToken, error) {
	if publicKey == "" || secret == "" {
		return nil, ErrUnauthorized
	}

	key, err := m.store.GetAPIKeyByPublicKey(ctx, publicKey)
	if err != nil {
		if !errors.Is(err, config.ErrNotFound) {
			m.logger.Error("exchange key lookup failed", "error", err)
		}
		m.hasher.Verify(secret, m.dummy())
		return nil, ErrUnauthorized
	}
	// Verify before the revoked check so both rejections cost one bcrypt
	// compare.
	verified := m.hasher.Verify(secret, key.SecretHash)
	if key.Revoked {
		return nil, fmt.Errorf("%w: key revoked", ErrUnauthorized)
	}
	if !verified {
		return nil, ErrUnauthorized
	}

	tok, err := m.codec.Encode(key.ProjectID, key.ID, key.SecretHash)
	if err != nil {
		m.logger.Error("encode access token failed", "error", err)
		return nil, ErrUnauthorized
	}
	claims, ok := m.codec.Decode(tok, key.SecretHash)
	if !ok {
		return nil, ErrUnauthorized
	}
	return &IssuedToken{Token: tok, ExpiresAt: claims.ExpiresAt.UTC()}, nil
}

func (m *KeyManager) dummy() string {
	m.dummyOnce.Do(func() {
		h, err := m.hasher.Hash("tally-unknown-key")
		if err == nil {
			m.dummyHash = h
		}
	})
	return m.dummyHash
}
