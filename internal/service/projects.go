package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/tallyhq/tally/internal/config"
	"github.com/tallyhq/tally/internal/model"
)

// ProjectStore is the persistence surface used by ProjectService.
type ProjectStore interface {
	ProjectReader
	CreateProject(ctx context.Context, p *model.Project) error
	ListProjects(ctx context.Context, ownerID string) ([]model.Project, error)
	SetProjectDomains(ctx context.Context, id string, domains []string) error
}

// ProjectService resolves project ownership and manages allow-lists.
type ProjectService struct {
	store ProjectStore
	cache *Cache
}

func NewProjectService(store ProjectStore, cache *Cache) *ProjectService {
	return &ProjectService{store: store, cache: cache}
}

// Authorize returns the project if ownerID owns it. A missing project and
// one owned by someone else are indistinguishable: both are ErrForbidden.
func (s *ProjectService) Authorize(ctx context.Context, ownerID, projectID string) (*model.Project, error) {
	p, err := s.store.GetProject(ctx, projectID)
	if errors.Is(err, config.ErrNotFound) {
		return nil, ErrForbidden
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if ownerID == "" || p.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return p, nil
}

// Create registers a project for ownerID. A nil domain list allows every
// origin.
func (s *ProjectService) Create(ctx context.Context, ownerID, name, description string, domains []string) (*model.Project, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: project name is required", ErrBadRequest)
	}
	if domains == nil {
		domains = []string{model.WildcardDomain}
	}
	p := &model.Project{
		OwnerID:        ownerID,
		Name:           name,
		Description:    description,
		AllowedDomains: domains,
	}
	if err := s.store.CreateProject(ctx, p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return p, nil
}

// List returns the projects of ownerID, or every project when ownerID is
// empty.
func (s *ProjectService) List(ctx context.Context, ownerID string) ([]model.Project, error) {
	projects, err := s.store.ListProjects(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return projects, nil
}

// SetDomains replaces the project's allowed-domain list.
func (s *ProjectService) SetDomains(ctx context.Context, projectID string, domains []string) error {
	err := s.store.SetProjectDomains(ctx, projectID, domains)
	if errors.Is(err, config.ErrNotFound) {
		return fmt.Errorf("%w: project %s", config.ErrNotFound, projectID)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	s.cache.InvalidateProject(projectID)
	return nil
}
