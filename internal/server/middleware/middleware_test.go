package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tallyhq/tally/internal/config"
	"github.com/tallyhq/tally/internal/model"
	"github.com/tallyhq/tally/internal/service"
)

// ---------------------------------------------------------------------------
// RequestID middleware tests
// ---------------------------------------------------------------------------

func TestRequestIDGeneratesUUID(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := GetRequestID(r.Context())
		if id == "" {
			t.Error("expected non-empty request ID in context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	respID := rr.Header().Get("X-Request-ID")
	// UUID v7 format check: 36 chars with dashes
	if len(respID) != 36 {
		t.Errorf("expected UUID-length request ID, got %q (len=%d)", respID, len(respID))
	}
}

func TestRequestIDPreservesClientID(t *testing.T) {
	clientID := "my-custom-trace-id-123"

	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := GetRequestID(r.Context()); id != clientID {
			t.Errorf("expected context ID %q, got %q", clientID, id)
		}
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Request-ID", clientID)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if respID := rr.Header().Get("X-Request-ID"); respID != clientID {
		t.Errorf("expected response X-Request-ID %q, got %q", clientID, respID)
	}
}

func TestRequestIDRejectsOversizedClientID(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Request-ID", strings.Repeat("a", 200))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if got := rr.Header().Get("X-Request-ID"); len(got) != 36 {
		t.Errorf("oversized client id should be replaced, got %q", got)
	}
}

func TestGetRequestIDEmptyContext(t *testing.T) {
	if id := GetRequestID(context.Background()); id != "" {
		t.Errorf("expected empty string from bare context, got %q", id)
	}
}

// ---------------------------------------------------------------------------
// Authentication and project ownership
// ---------------------------------------------------------------------------

type authEnv struct {
	auth     *service.AuthService
	projects *service.ProjectService
	owner    *model.Owner
	project  *model.Project
	router   chi.Router
}

func newAuthEnv(t *testing.T) *authEnv {
	t.Helper()
	store, err := config.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	env := &authEnv{
		auth:     service.NewAuthService(store, "middleware-test-secret", time.Hour, nil),
		projects: service.NewProjectService(store, nil),
	}
	ctx := context.Background()
	env.owner = &model.Owner{Email: "o@example.com", PasswordHash: "x"}
	if err := store.CreateOwner(ctx, env.owner); err != nil {
		t.Fatalf("CreateOwner: %v", err)
	}
	env.project, err = env.projects.Create(ctx, env.owner.ID, "p", "", nil)
	if err != nil {
		t.Fatalf("Create project: %v", err)
	}

	r := chi.NewRouter()
	r.Route("/projects/{projectId}", func(r chi.Router) {
		r.Use(Authenticate(env.auth))
		r.Use(RequireProjectOwner(env.projects))
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			p := GetProject(r.Context())
			if p == nil {
				t.Error("expected project in context")
				return
			}
			w.Write([]byte(p.ID))
		})
	})
	env.router = r
	return env
}

func (e *authEnv) get(t *testing.T, path, authHeader string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func TestAuthenticateAndOwnership(t *testing.T) {
	env := newAuthEnv(t)
	ctx := context.Background()

	owned, err := env.auth.IssueJWT(ctx, env.owner.ID, env.owner.Email)
	if err != nil {
		t.Fatalf("IssueJWT: %v", err)
	}
	stranger, err := env.auth.IssueJWT(ctx, "someone-else", "s@example.com")
	if err != nil {
		t.Fatalf("IssueJWT: %v", err)
	}

	tests := []struct {
		name   string
		path   string
		auth   string
		status int
	}{
		{"owner", "/projects/" + env.project.ID + "/", "Bearer " + owned, http.StatusOK},
		{"no header", "/projects/" + env.project.ID + "/", "", http.StatusUnauthorized},
		{"basic scheme", "/projects/" + env.project.ID + "/", "Basic abc", http.StatusUnauthorized},
		{"invalid jwt", "/projects/" + env.project.ID + "/", "Bearer not.a.jwt", http.StatusUnauthorized},
		{"other owner", "/projects/" + env.project.ID + "/", "Bearer " + stranger, http.StatusForbidden},
		{"missing project", "/projects/missing/", "Bearer " + owned, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.get(t, tt.path, tt.auth)
			if rr.Code != tt.status {
				t.Errorf("status = %d, want %d; body = %s", rr.Code, tt.status, rr.Body.String())
			}
			if tt.status != http.StatusOK {
				var resp model.ErrorResponse
				if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
					t.Fatalf("error body is not the JSON envelope: %v", err)
				}
				if resp.Error.Code != tt.status {
					t.Errorf("envelope code = %d, want %d", resp.Error.Code, tt.status)
				}
			}
		})
	}
}

func TestRequireProjectOwnerWithoutPrincipal(t *testing.T) {
	env := newAuthEnv(t)
	h := RequireProjectOwner(env.projects)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
}

func TestGetPrincipalWithoutValue(t *testing.T) {
	if p := GetPrincipal(context.Background()); p != nil {
		t.Errorf("expected nil principal, got %+v", p)
	}
	if p := GetProject(context.Background()); p != nil {
		t.Errorf("expected nil project, got %+v", p)
	}
}

// ---------------------------------------------------------------------------
// Rate limiting
// ---------------------------------------------------------------------------

func TestRateLimitByIP(t *testing.T) {
	h := RateLimit(2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(ip string) int {
		req := httptest.NewRequest("POST", "/", nil)
		req.RemoteAddr = ip + ":1234"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	if got := send("192.0.2.1"); got != http.StatusOK {
		t.Fatalf("first: %d", got)
	}
	if got := send("192.0.2.1"); got != http.StatusOK {
		t.Fatalf("second: %d", got)
	}
	if got := send("192.0.2.1"); got != http.StatusTooManyRequests {
		t.Errorf("third: got %d, want 429", got)
	}
	if got := send("192.0.2.2"); got != http.StatusOK {
		t.Errorf("other ip: got %d, want 200", got)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	h := RateLimit(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	for i := 0; i < 100; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest("POST", "/", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: %d", i, rr.Code)
		}
	}
}

// ---------------------------------------------------------------------------
// Logger
// ---------------------------------------------------------------------------

func TestLoggerLevelsAndRoute(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	r := chi.NewRouter()
	r.Use(Logger(logger))
	r.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("GET", "/items/42?token=secret", nil))

	logged := buf.String()
	var entry map[string]any
	if err := json.Unmarshal([]byte(logged), &entry); err != nil {
		t.Fatalf("decode log: %v", err)
	}
	if entry["level"] != "WARN" {
		t.Errorf("level = %v, want WARN", entry["level"])
	}
	if entry["route"] != "/items/{id}" {
		t.Errorf("route = %v", entry["route"])
	}
	if strings.Contains(logged, "secret") {
		t.Error("query string must not be logged")
	}
}
