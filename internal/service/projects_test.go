package service

import (
	"context"
	"errors"
	"testing"

	"github.com/tallyhq/tally/internal/model"
)

func TestProjectAuthorize(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p, err := env.projects.Authorize(ctx, env.owner.ID, env.project.ID)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if p.ID != env.project.ID {
		t.Errorf("got project %q, want %q", p.ID, env.project.ID)
	}

	stranger := &model.Owner{Email: "stranger@example.com", PasswordHash: "x"}
	if err := env.store.CreateOwner(ctx, stranger); err != nil {
		t.Fatalf("CreateOwner: %v", err)
	}

	tests := []struct {
		name, owner, project string
	}{
		{"other owner", stranger.ID, env.project.ID},
		{"missing project", env.owner.ID, "missing"},
		{"no owner", "", env.project.ID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.projects.Authorize(ctx, tt.owner, tt.project); !errors.Is(err, ErrForbidden) {
				t.Errorf("got %v, want ErrForbidden", err)
			}
		})
	}
}

func TestProjectCreateDefaultsToWildcard(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.projects.Create(context.Background(), env.owner.ID, "open", "", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !p.AllowsDomain("https://anything.test") {
		t.Error("project without domains should allow every origin")
	}

	if _, err := env.projects.Create(context.Background(), env.owner.ID, "", "", nil); !errors.Is(err, ErrBadRequest) {
		t.Errorf("got %v, want ErrBadRequest", err)
	}
}

func TestCacheNilIsSafe(t *testing.T) {
	var c *Cache
	c.InvalidateKey("x")
	c.InvalidateProject("x")
	c.Close()

	nc, err := NewCache(0)
	if err != nil || nc != nil {
		t.Errorf("NewCache(0) = %v, %v; want nil, nil", nc, err)
	}
}
