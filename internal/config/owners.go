package config

import (
	"context"
	"fmt"
	"time"

	"github.com/tallyhq/tally/internal/model"
)

// CreateOwner inserts a new owner account. ID, CreatedAt and UpdatedAt are
// populated on owner.
func (s *Store) CreateOwner(ctx context.Context, owner *model.Owner) error {
	if owner.ID == "" {
		owner.ID = newID()
	}
	t := now()
	owner.CreatedAt = t
	owner.UpdatedAt = t

	const q = `INSERT INTO owners
		(id, email, password_hash, name, created_at, updated_at)
		VALUES
		(:id, :email, :password_hash, :name, :created_at, :updated_at)`

	if _, err := s.db.NamedExecContext(ctx, q, owner); err != nil {
		return fmt.Errorf("insert owner: %w", err)
	}
	return nil
}

// GetOwner returns an owner by ID.
func (s *Store) GetOwner(ctx context.Context, id string) (*model.Owner, error) {
	var owner model.Owner
	q := s.db.Rebind("SELECT * FROM owners WHERE id = ?")
	if err := s.db.GetContext(ctx, &owner, q, id); err != nil {
		return nil, notFound(err, "get owner")
	}
	return &owner, nil
}

// GetOwnerByEmail returns an owner by email address.
func (s *Store) GetOwnerByEmail(ctx context.Context, email string) (*model.Owner, error) {
	var owner model.Owner
	q := s.db.Rebind("SELECT * FROM owners WHERE email = ?")
	if err := s.db.GetContext(ctx, &owner, q, email); err != nil {
		return nil, notFound(err, "get owner by email")
	}
	return &owner, nil
}

// ListOwners returns all owner accounts.
func (s *Store) ListOwners(ctx context.Context) ([]model.Owner, error) {
	var owners []model.Owner
	if err := s.db.SelectContext(ctx, &owners, "SELECT * FROM owners ORDER BY email"); err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}
	return owners, nil
}

// UpdateOwnerLastLogin sets the last_login_at timestamp for an owner.
func (s *Store) UpdateOwnerLastLogin(ctx context.Context, id string, at time.Time) error {
	at = at.UTC()
	q := s.db.Rebind("UPDATE owners SET last_login_at = ?, updated_at = ? WHERE id = ?")
	result, err := s.db.ExecContext(ctx, q, at, at, id)
	if err != nil {
		return fmt.Errorf("update owner last login: %w", err)
	}
	return checkAffected(result, "update owner last login")
}
