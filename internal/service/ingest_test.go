package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tallyhq/tally/internal/model"
	"github.com/tallyhq/tally/internal/token"
)

func TestGateAdmit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, tok := env.issue(t)

	ev, err := env.gate.Admit(ctx, trackRequest(tok, `{"name":"signup","metadata":{"plan":"pro"}}`))
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if ev.ProjectID != env.project.ID || ev.Name != "signup" {
		t.Errorf("got event %+v", ev)
	}
	if string(ev.Metadata) != `{"plan":"pro"}` {
		t.Errorf("metadata: got %s", ev.Metadata)
	}

	page, err := env.events.List(ctx, env.project.ID, "", 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page.Events) != 1 || page.Events[0].ID != ev.ID {
		t.Errorf("persisted events: %+v", page.Events)
	}
}

func TestGateUpdatesLastUsed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created, tok := env.issue(t)

	if _, err := env.gate.Admit(ctx, trackRequest(tok, `{"name":"x","metadata":{}}`)); err != nil {
		t.Fatalf("Admit: %v", err)
	}
	env.gate.Wait()

	key, err := env.store.GetAPIKey(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetAPIKey: %v", err)
	}
	if key.LastUsed == nil || !key.LastUsed.Equal(env.clock.Now()) {
		t.Errorf("last_used: got %v, want %v", key.LastUsed, env.clock.Now())
	}
}

func TestGateUnauthorized(t *testing.T) {
	env := newTestEnv(t)
	_, tok := env.issue(t)
	body := `{"name":"x","metadata":{}}`

	tests := []struct {
		name string
		auth string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic " + tok},
		{"empty bearer", "Bearer "},
		{"garbage", "Bearer not-a-token"},
		{"tampered signature", "Bearer " + flipSignature(tok)},
		{"unknown key", "Bearer " + forgeToken(t, env, "p", "missing-key")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := trackRequest("", body)
			req.Authorization = tt.auth
			if _, err := env.gate.Admit(context.Background(), req); !errors.Is(err, ErrUnauthorized) {
				t.Errorf("got %v, want ErrUnauthorized", err)
			}
		})
	}
}

// flipSignature changes the first character of the signature part.
func flipSignature(tok string) string {
	i := strings.IndexByte(tok, '.') + 1
	c := byte('A')
	if tok[i] == 'A' {
		c = 'B'
	}
	return tok[:i] + string(c) + tok[i+1:]
}

// forgeToken signs claims with a secret the server does not hold.
func forgeToken(t *testing.T, env *testEnv, projectID, keyID string) string {
	t.Helper()
	tok, err := token.NewCodec(time.Hour, env.clock).Encode(projectID, keyID, "attacker-secret")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return tok
}

func TestGateRejectsForgedKeyReference(t *testing.T) {
	env := newTestEnv(t)
	created, _ := env.issue(t)

	// Correct key id but signed with something other than the stored hash.
	req := trackRequest(forgeToken(t, env, env.project.ID, created.ID), `{"name":"x","metadata":{}}`)
	if _, err := env.gate.Admit(context.Background(), req); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("got %v, want ErrUnauthorized", err)
	}
}

func TestGateRejectsProjectMismatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created, _ := env.issue(t)

	stored, err := env.store.GetAPIKey(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetAPIKey: %v", err)
	}
	other, err := env.projects.Create(ctx, env.owner.ID, "other", "", nil)
	if err != nil {
		t.Fatalf("Create project: %v", err)
	}

	// Validly signed, but claiming a project the key does not belong to.
	tok, err := token.NewCodec(time.Hour, env.clock).Encode(other.ID, created.ID, stored.SecretHash)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := env.gate.Admit(ctx, trackRequest(tok, `{"name":"x","metadata":{}}`)); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("got %v, want ErrUnauthorized", err)
	}
}

func TestGateDomain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, tok := env.issue(t)
	body := `{"name":"x","metadata":{}}`

	tests := []struct {
		name    string
		origin  string
		referer string
		wantErr error
	}{
		{"allowed origin", "https://app.example.com", "", nil},
		{"referer fallback", "", "https://app.example.com", nil},
		{"origin wins over referer", "https://evil.test", "https://app.example.com", ErrForbidden},
		{"disallowed", "https://evil.test", "", ErrForbidden},
		{"no origin", "", "", ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := trackRequest(tok, body)
			req.Origin, req.Referer = tt.origin, tt.referer
			_, err := env.gate.Admit(ctx, req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestGateForbiddenNamesDomain(t *testing.T) {
	env := newTestEnv(t)
	_, tok := env.issue(t)

	req := trackRequest(tok, `{"name":"x","metadata":{}}`)
	req.Origin = "https://evil.test"
	_, err := env.gate.Admit(context.Background(), req)
	if err == nil || !strings.Contains(err.Error(), "https://evil.test") {
		t.Errorf("error should name the rejected domain, got %v", err)
	}
}

func TestGateWildcardDomain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, tok := env.issue(t)

	if err := env.projects.SetDomains(ctx, env.project.ID, []string{" * "}); err != nil {
		t.Fatalf("SetDomains: %v", err)
	}
	req := trackRequest(tok, `{"name":"x","metadata":{}}`)
	req.Origin = ""
	if _, err := env.gate.Admit(ctx, req); err != nil {
		t.Errorf("wildcard should admit any origin: %v", err)
	}
}

func TestGateRateLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, tok := env.issue(t)
	body := `{"name":"x","metadata":{}}`

	for i := 1; i <= 10; i++ {
		if _, err := env.gate.Admit(ctx, trackRequest(tok, body)); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	if _, err := env.gate.Admit(ctx, trackRequest(tok, body)); !errors.Is(err, ErrTooManyRequests) {
		t.Fatalf("11th request: got %v, want ErrTooManyRequests", err)
	}

	// A different client is unaffected.
	other := trackRequest(tok, body)
	other.ForwardedFor = "198.51.100.1"
	if _, err := env.gate.Admit(ctx, other); err != nil {
		t.Errorf("other client: %v", err)
	}

	env.clock.Advance(time.Minute + time.Millisecond)
	if _, err := env.gate.Admit(ctx, trackRequest(tok, body)); err != nil {
		t.Errorf("after window: %v", err)
	}
}

func TestGateStageOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, tok := env.issue(t)

	// A bad payload from a forbidden origin is reported as forbidden.
	req := trackRequest(tok, `not json`)
	req.Origin = "https://evil.test"
	if _, err := env.gate.Admit(ctx, req); !errors.Is(err, ErrForbidden) {
		t.Errorf("got %v, want ErrForbidden", err)
	}

	// Unauthorized beats everything.
	req = trackRequest("bogus", `not json`)
	req.Origin = "https://evil.test"
	if _, err := env.gate.Admit(ctx, req); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("got %v, want ErrUnauthorized", err)
	}
}

func TestGatePayload(t *testing.T) {
	tests := []struct {
		name string
		body string
		ok   bool
	}{
		{"valid", `{"name":"view","metadata":{"path":"/"}}`, true},
		{"empty metadata object", `{"name":"view","metadata":{}}`, true},
		{"extra fields ignored", `{"name":"view","metadata":{},"x":1}`, true},
		{"missing name", `{"metadata":{}}`, false},
		{"empty name", `{"name":"","metadata":{}}`, false},
		{"numeric name", `{"name":1,"metadata":{}}`, false},
		{"name at column width", `{"name":"` + strings.Repeat("a", MaxEventNameLen) + `","metadata":{}}`, true},
		{"multibyte name at column width", `{"name":"` + strings.Repeat("é", MaxEventNameLen) + `","metadata":{}}`, true},
		{"name over column width", `{"name":"` + strings.Repeat("a", MaxEventNameLen+1) + `","metadata":{}}`, false},
		{"missing metadata", `{"name":"view"}`, false},
		{"null metadata", `{"name":"view","metadata":null}`, false},
		{"array metadata", `{"name":"view","metadata":[1]}`, false},
		{"string metadata", `{"name":"view","metadata":"x"}`, false},
		{"number metadata", `{"name":"view","metadata":3}`, false},
		{"array body", `[]`, false},
		{"null body", `null`, false},
		{"invalid json", `{"name":`, false},
		{"empty body", ``, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := parseEvent([]byte(tt.body))
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrBadRequest) {
				t.Errorf("got %v, want ErrBadRequest", err)
			}
		})
	}
}

func TestClientID(t *testing.T) {
	tests := []struct {
		name, xff, realIP, want string
	}{
		{"first forwarded entry", "203.0.113.7, 10.0.0.1", "10.0.0.2", "203.0.113.7"},
		{"single forwarded", "203.0.113.7", "", "203.0.113.7"},
		{"real ip fallback", "", "10.0.0.2", "10.0.0.2"},
		{"blank forwarded entry", " , 10.0.0.1", "10.0.0.2", "10.0.0.2"},
		{"unknown", "", "", UnknownClient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClientID(tt.xff, tt.realIP); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

// failingEventStore wraps a real store but fails every event write.
type failingEventStore struct {
	IngestStore
}

func (failingEventStore) CreateEvent(context.Context, *model.Event) error {
	return errors.New("disk full")
}

func TestGateStoreFailureIsInternal(t *testing.T) {
	env := newTestEnv(t)
	_, tok := env.issue(t)

	gate := NewGate(failingEventStore{env.store}, token.NewCodec(time.Hour, env.clock), nil, nil, env.clock, nil)
	_, err := gate.Admit(context.Background(), trackRequest(tok, `{"name":"x","metadata":{}}`))
	if !errors.Is(err, ErrInternal) {
		t.Errorf("got %v, want ErrInternal", err)
	}
}
