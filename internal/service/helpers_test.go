package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/coder/quartz"
	"golang.org/x/crypto/bcrypt"

	"github.com/tallyhq/tally/internal/config"
	"github.com/tallyhq/tally/internal/credential"
	"github.com/tallyhq/tally/internal/model"
	"github.com/tallyhq/tally/internal/ratelimit"
	"github.com/tallyhq/tally/internal/token"
)

// testEnv wires every service against an in-memory store and a mock clock.
type testEnv struct {
	store    *config.Store
	clock    *quartz.Mock
	cache    *Cache
	keys     *KeyManager
	gate     *Gate
	events   *EventService
	projects *ProjectService
	auth     *AuthService
	owner    *model.Owner
	project  *model.Project
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithLimiter(t, nil)
}

func newTestEnvWithLimiter(t *testing.T, limiter ratelimit.Limiter) *testEnv {
	t.Helper()
	store, err := config.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	clock := quartz.NewMock(t)
	clock.Set(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))

	cache, err := NewCache(time.Minute)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	if limiter == nil {
		limiter = ratelimit.NewFixedWindow(ratelimit.DefaultLimit, ratelimit.DefaultWindow, clock)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	codec := token.NewCodec(token.DefaultTTL, clock)
	env := &testEnv{
		store:    store,
		clock:    clock,
		cache:    cache,
		keys:     NewKeyManager(store, credential.NewHasher(bcrypt.MinCost), codec, cache, clock, logger),
		events:   NewEventService(store, clock),
		projects: NewProjectService(store, cache),
		auth:     NewAuthService(store, "test-secret-key-for-jwt", time.Hour, clock),
	}
	env.gate = NewGate(store, codec, limiter, cache, clock, logger)

	t.Cleanup(func() {
		env.gate.Wait()
		cache.Close()
		store.Close()
	})

	ctx := context.Background()
	env.owner = &model.Owner{Email: "owner@example.com", PasswordHash: "x", Name: "Owner"}
	if err := store.CreateOwner(ctx, env.owner); err != nil {
		t.Fatalf("CreateOwner: %v", err)
	}
	env.project, err = env.projects.Create(ctx, env.owner.ID, "site", "", []string{"https://app.example.com"})
	if err != nil {
		t.Fatalf("Create project: %v", err)
	}
	return env
}

// issue creates a key and exchanges it for a token.
func (e *testEnv) issue(t *testing.T) (*CreatedKey, string) {
	t.Helper()
	ctx := context.Background()
	created, err := e.keys.Create(ctx, e.project.ID, "web")
	if err != nil {
		t.Fatalf("Create key: %v", err)
	}
	issued, err := e.keys.Exchange(ctx, created.Key, created.Secret)
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	return created, issued.Token
}

func trackRequest(tok, body string) IngestRequest {
	return IngestRequest{
		Authorization: "Bearer " + tok,
		Origin:        "https://app.example.com",
		ForwardedFor:  "203.0.113.7",
		Body:          []byte(body),
	}
}
