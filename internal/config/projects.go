package config

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tallyhq/tally/internal/model"
)

// projectRow maps to the projects table. Allowed domains are stored as a
// JSON array so every dialect can hold them in a TEXT column.
type projectRow struct {
	ID             string    `db:"id"`
	OwnerID        string    `db:"owner_id"`
	Name           string    `db:"name"`
	Description    string    `db:"description"`
	AllowedDomains string    `db:"allowed_domains"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func projectRowFromModel(p *model.Project) (projectRow, error) {
	domains, err := encodeDomains(p.AllowedDomains)
	if err != nil {
		return projectRow{}, err
	}
	return projectRow{
		ID:             p.ID,
		OwnerID:        p.OwnerID,
		Name:           p.Name,
		Description:    p.Description,
		AllowedDomains: domains,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}, nil
}

func (r projectRow) toModel() (model.Project, error) {
	var domains []string
	if r.AllowedDomains != "" {
		if err := json.Unmarshal([]byte(r.AllowedDomains), &domains); err != nil {
			return model.Project{}, fmt.Errorf("unmarshal allowed domains: %w", err)
		}
	}
	if domains == nil {
		domains = []string{}
	}
	return model.Project{
		ID:             r.ID,
		OwnerID:        r.OwnerID,
		Name:           r.Name,
		Description:    r.Description,
		AllowedDomains: domains,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}, nil
}

// encodeDomains trims entries and drops empty ones before serializing.
func encodeDomains(domains []string) (string, error) {
	clean := make([]string, 0, len(domains))
	for _, d := range domains {
		if d = strings.TrimSpace(d); d != "" {
			clean = append(clean, d)
		}
	}
	b, err := json.Marshal(clean)
	if err != nil {
		return "", fmt.Errorf("marshal allowed domains: %w", err)
	}
	return string(b), nil
}

// CreateProject inserts a new project. ID, CreatedAt and UpdatedAt are
// populated on p.
func (s *Store) CreateProject(ctx context.Context, p *model.Project) error {
	if p.ID == "" {
		p.ID = newID()
	}
	t := now()
	p.CreatedAt = t
	p.UpdatedAt = t

	row, err := projectRowFromModel(p)
	if err != nil {
		return err
	}

	const q = `INSERT INTO projects
		(id, owner_id, name, description, allowed_domains, created_at, updated_at)
		VALUES
		(:id, :owner_id, :name, :description, :allowed_domains, :created_at, :updated_at)`

	if _, err := s.db.NamedExecContext(ctx, q, row); err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// GetProject returns a project by ID.
func (s *Store) GetProject(ctx context.Context, id string) (*model.Project, error) {
	var row projectRow
	q := s.db.Rebind("SELECT * FROM projects WHERE id = ?")
	if err := s.db.GetContext(ctx, &row, q, id); err != nil {
		return nil, notFound(err, "get project")
	}
	p, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProjects returns projects ordered by name. An empty ownerID lists
// every project.
func (s *Store) ListProjects(ctx context.Context, ownerID string) ([]model.Project, error) {
	var rows []projectRow
	var err error
	if ownerID == "" {
		err = s.db.SelectContext(ctx, &rows, "SELECT * FROM projects ORDER BY name")
	} else {
		q := s.db.Rebind("SELECT * FROM projects WHERE owner_id = ? ORDER BY name")
		err = s.db.SelectContext(ctx, &rows, q, ownerID)
	}
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}

	projects := make([]model.Project, 0, len(rows))
	for _, r := range rows {
		p, err := r.toModel()
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, nil
}

// SetProjectDomains replaces a project's allowed-domain list.
func (s *Store) SetProjectDomains(ctx context.Context, id string, domains []string) error {
	encoded, err := encodeDomains(domains)
	if err != nil {
		return err
	}
	q := s.db.Rebind("UPDATE projects SET allowed_domains = ?, updated_at = ? WHERE id = ?")
	result, err := s.db.ExecContext(ctx, q, encoded, now(), id)
	if err != nil {
		return fmt.Errorf("update project domains: %w", err)
	}
	return checkAffected(result, "update project domains")
}
