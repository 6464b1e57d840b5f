package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/coder/quartz"

	"github.com/tallyhq/tally/internal/model"
	"github.com/tallyhq/tally/internal/ratelimit"
	"github.com/tallyhq/tally/internal/token"
)

// UnknownClient is the rate-limit identity used when a request carries no
// client address headers.
const UnknownClient = "unknown"

const lastUsedTimeout = 5 * time.Second

// IngestRequest carries the parts of an inbound track request the gate
// inspects. Header values are passed through verbatim.
type IngestRequest struct {
	Authorization string
	Origin        string
	Referer       string
	ForwardedFor  string
	RealIP        string
	Body          []byte
}

// IngestStore is the persistence surface used by the gate.
type IngestStore interface {
	APIKeyReader
	ProjectReader
	CreateEvent(ctx context.Context, ev *model.Event) error
	UpdateAPIKeyLastUsed(ctx context.Context, id string, at time.Time) error
}

// Gate authorizes and records tracked events. Each request passes token
// extraction, token verification, domain allow-listing, rate limiting and
// payload validation, in that order, before it is persisted.
type Gate struct {
	store   IngestStore
	codec   *token.Codec
	limiter ratelimit.Limiter
	cache   *Cache
	clock   quartz.Clock
	logger  *slog.Logger

	pending sync.WaitGroup
}

// NewGate creates an ingestion gate. cache may be nil.
func NewGate(store IngestStore, codec *token.Codec, limiter ratelimit.Limiter, cache *Cache, clock quartz.Clock, logger *slog.Logger) *Gate {
	if clock == nil {
		clock = quartz.NewReal()
	}
	if codec == nil {
		codec = token.NewCodec(token.DefaultTTL, clock)
	}
	if limiter == nil {
		limiter = ratelimit.NewFixedWindow(ratelimit.DefaultLimit, ratelimit.DefaultWindow, clock)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		store:   store,
		codec:   codec,
		limiter: limiter,
		cache:   cache,
		clock:   clock,
		logger:  logger,
	}
}

// Admit runs req through every stage and persists the event. The returned
// error wraps one of ErrUnauthorized, ErrForbidden, ErrTooManyRequests,
// ErrBadRequest or ErrInternal.
func (g *Gate) Admit(ctx context.Context, req IngestRequest) (*model.Event, error) {
	tok, ok := bearerToken(req.Authorization)
	if !ok {
		return nil, fmt.Errorf("%w: missing bearer token", ErrUnauthorized)
	}

	key, project, err := g.verify(ctx, tok)
	if err != nil {
		return nil, err
	}

	domain := requestDomain(req.Origin, req.Referer)
	if !project.AllowsDomain(domain) {
		g.logger.Warn("event domain rejected", "project_id", project.ID, "domain", domain)
		return nil, fmt.Errorf("%w: domain %q is not allowed", ErrForbidden, domain)
	}

	if !g.limiter.Allow(ClientID(req.ForwardedFor, req.RealIP)) {
		return nil, ErrTooManyRequests
	}

	name, metadata, err := parseEvent(req.Body)
	if err != nil {
		return nil, err
	}

	ev := &model.Event{
		ProjectID: project.ID,
		Name:      name,
		Metadata:  metadata,
		CreatedAt: g.clock.Now().UTC(),
	}
	if err := g.store.CreateEvent(ctx, ev); err != nil {
		g.logger.Error("persist event failed", "project_id", project.ID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	g.touch(key.ID)
	return ev, nil
}

// Wait blocks until pending last-used updates have finished.
func (g *Gate) Wait() {
	g.pending.Wait()
}

// verify resolves the key named in the token, checks the signature against
// its stored hash and loads the project. Every failure is ErrUnauthorized.
func (g *Gate) verify(ctx context.Context, tok string) (*model.APIKey, *model.Project, error) {
	keyID, ok := token.PeekKeyID(tok)
	if !ok {
		return nil, nil, fmt.Errorf("%w: malformed token", ErrUnauthorized)
	}

	key, err := g.cache.apiKey(ctx, g.store, keyID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: unknown key", ErrUnauthorized)
	}
	if key.Revoked {
		return nil, nil, fmt.Errorf("%w: key revoked", ErrUnauthorized)
	}

	claims, ok := g.codec.Decode(tok, key.SecretHash)
	if !ok || claims.APIKeyID != key.ID || claims.ProjectID != key.ProjectID {
		return nil, nil, fmt.Errorf("%w: invalid token", ErrUnauthorized)
	}

	project, err := g.cache.project(ctx, g.store, key.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: unknown project", ErrUnauthorized)
	}
	return key, project, nil
}

// touch records key usage without holding up the request.
func (g *Gate) touch(keyID string) {
	at := g.clock.Now().UTC()
	g.pending.Add(1)
	go func() {
		defer g.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), lastUsedTimeout)
		defer cancel()
		if err := g.store.UpdateAPIKeyLastUsed(ctx, keyID, at); err != nil {
			g.logger.Warn("update api key last used failed", "api_key_id", keyID, "error", err)
		}
	}()
}

func bearerToken(header string) (string, bool) {
	scheme, tok, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}

// requestDomain prefers Origin, then Referer.
func requestDomain(origin, referer string) string {
	if origin != "" {
		return origin
	}
	return referer
}

// ClientID picks the rate-limit identity: the first X-Forwarded-For entry,
// then X-Real-IP, then UnknownClient.
func ClientID(forwardedFor, realIP string) string {
	if forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if realIP = strings.TrimSpace(realIP); realIP != "" {
		return realIP
	}
	return UnknownClient
}

// parseEvent requires a JSON object with a non-empty string name and an
// object metadata.
// MaxEventNameLen matches the width of the events.name column.
const MaxEventNameLen = 255

func parseEvent(body []byte) (string, json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return "", nil, fmt.Errorf("%w: body must be a JSON object", ErrBadRequest)
	}

	var name string
	if raw, ok := fields["name"]; !ok || json.Unmarshal(raw, &name) != nil || name == "" {
		return "", nil, fmt.Errorf("%w: name must be a non-empty string", ErrBadRequest)
	}
	if utf8.RuneCountInString(name) > MaxEventNameLen {
		return "", nil, fmt.Errorf("%w: name exceeds %d characters", ErrBadRequest, MaxEventNameLen)
	}

	metadata := bytes.TrimSpace(fields["metadata"])
	if len(metadata) == 0 || metadata[0] != '{' {
		return "", nil, fmt.Errorf("%w: metadata must be an object", ErrBadRequest)
	}
	return name, json.RawMessage(metadata), nil
}
