package config

import (
	"context"
	"fmt"
	"time"

	"github.com/tallyhq/tally/internal/model"
)

// CreateAPIKey inserts a new API key. ID and CreatedAt are populated on key
// when unset.
func (s *Store) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	if key.ID == "" {
		key.ID = newID()
	}
	if key.CreatedAt.IsZero() {
		key.CreatedAt = now()
	}
	key.CreatedAt = key.CreatedAt.UTC()

	const q = `INSERT INTO api_keys
		(id, project_id, name, public_key, secret_hash, last4, revoked, created_at)
		VALUES
		(:id, :project_id, :name, :public_key, :secret_hash, :last4, :revoked, :created_at)`

	if _, err := s.db.NamedExecContext(ctx, q, key); err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

// GetAPIKey returns an API key by ID.
func (s *Store) GetAPIKey(ctx context.Context, id string) (*model.APIKey, error) {
	var key model.APIKey
	q := s.db.Rebind("SELECT * FROM api_keys WHERE id = ?")
	if err := s.db.GetContext(ctx, &key, q, id); err != nil {
		return nil, notFound(err, "get api key")
	}
	return &key, nil
}

// GetAPIKeyByPublicKey looks up an API key by its public identifier.
func (s *Store) GetAPIKeyByPublicKey(ctx context.Context, publicKey string) (*model.APIKey, error) {
	var key model.APIKey
	q := s.db.Rebind("SELECT * FROM api_keys WHERE public_key = ?")
	if err := s.db.GetContext(ctx, &key, q, publicKey); err != nil {
		return nil, notFound(err, "get api key by public key")
	}
	return &key, nil
}

// ListProjectAPIKeys returns every key of a project, newest first, revoked
// keys included.
func (s *Store) ListProjectAPIKeys(ctx context.Context, projectID string) ([]model.APIKey, error) {
	keys := []model.APIKey{}
	q := s.db.Rebind("SELECT * FROM api_keys WHERE project_id = ? ORDER BY created_at DESC, id DESC")
	if err := s.db.SelectContext(ctx, &keys, q, projectID); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return keys, nil
}

// RotateAPIKey replaces the credential material of an active key in place.
// The update only applies to a key that belongs to projectID and is not
// revoked; otherwise ErrNotFound is returned and nothing changes.
func (s *Store) RotateAPIKey(ctx context.Context, projectID, id, publicKey, secretHash, last4 string, at time.Time) error {
	q := s.db.Rebind(`UPDATE api_keys
		SET public_key = ?, secret_hash = ?, last4 = ?, rotated_at = ?
		WHERE id = ? AND project_id = ? AND revoked = ?`)
	result, err := s.db.ExecContext(ctx, q, publicKey, secretHash, last4, at.UTC(), id, projectID, false)
	if err != nil {
		return fmt.Errorf("rotate api key: %w", err)
	}
	return checkAffected(result, "rotate api key")
}

// RevokeAPIKey marks a key as revoked. Revoking an already revoked key is a
// no-op; ErrNotFound is returned only when the key does not exist in
// projectID.
func (s *Store) RevokeAPIKey(ctx context.Context, projectID, id string, at time.Time) error {
	q := s.db.Rebind(`UPDATE api_keys
		SET revoked = ?, revoked_at = ?
		WHERE id = ? AND project_id = ? AND revoked = ?`)
	result, err := s.db.ExecContext(ctx, q, true, at.UTC(), id, projectID, false)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke api key rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	var revoked bool
	q = s.db.Rebind("SELECT revoked FROM api_keys WHERE id = ? AND project_id = ?")
	if err := s.db.GetContext(ctx, &revoked, q, id, projectID); err != nil {
		return notFound(err, "revoke api key")
	}
	return nil
}

// UpdateAPIKeyLastUsed records the time a key last authorized an event.
func (s *Store) UpdateAPIKeyLastUsed(ctx context.Context, id string, at time.Time) error {
	q := s.db.Rebind("UPDATE api_keys SET last_used = ? WHERE id = ?")
	result, err := s.db.ExecContext(ctx, q, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return checkAffected(result, "update api key last used")
}
