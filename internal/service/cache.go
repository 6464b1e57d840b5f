package service

import (
	"context"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/tallyhq/tally/internal/model"
)

// DefaultCacheTTL bounds how long a record read on the ingestion path may be
// served without going back to the store.
const DefaultCacheTTL = 30 * time.Second

// Cache holds API key and project records looked up on every tracked event.
// Entries are keyed by ID. Mutations made through KeyManager drop the
// affected entry immediately; changes made by other processes become visible
// once the TTL elapses. A read that overlaps an invalidation is served but
// not cached. A nil *Cache is valid and caches nothing.
type Cache struct {
	keys     *ristretto.Cache[string, *model.APIKey]
	projects *ristretto.Cache[string, *model.Project]
	ttl      time.Duration

	// mu orders fills against invalidations. A fill whose store read started
	// before an invalidation of the same kind is dropped instead of cached.
	mu         sync.Mutex
	keyGen     uint64
	projectGen uint64
}

// NewCache creates a cache whose entries expire after ttl. A non-positive
// ttl returns a nil cache.
func NewCache(ttl time.Duration) (*Cache, error) {
	if ttl <= 0 {
		return nil, nil
	}
	keys, err := ristretto.NewCache(&ristretto.Config[string, *model.APIKey]{
		NumCounters: 1e5,
		MaxCost:     1e4,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	projects, err := ristretto.NewCache(&ristretto.Config[string, *model.Project]{
		NumCounters: 1e4,
		MaxCost:     1e3,
		BufferItems: 64,
	})
	if err != nil {
		keys.Close()
		return nil, err
	}
	return &Cache{keys: keys, projects: projects, ttl: ttl}, nil
}

// Close releases the cache's background goroutines.
func (c *Cache) Close() {
	if c == nil {
		return
	}
	c.keys.Close()
	c.projects.Close()
}

// InvalidateKey drops a cached API key.
func (c *Cache) InvalidateKey(id string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keyGen++
	c.keys.Del(id)
}

// InvalidateProject drops a cached project.
func (c *Cache) InvalidateProject(id string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.projectGen++
	c.projects.Del(id)
}

// APIKeyReader is the store surface needed to resolve keys by ID.
type APIKeyReader interface {
	GetAPIKey(ctx context.Context, id string) (*model.APIKey, error)
}

// ProjectReader is the store surface needed to resolve projects.
type ProjectReader interface {
	GetProject(ctx context.Context, id string) (*model.Project, error)
}

// apiKey returns a copy of the key, reading through to the store on a miss.
func (c *Cache) apiKey(ctx context.Context, store APIKeyReader, id string) (*model.APIKey, error) {
	var gen uint64
	if c != nil {
		if k, ok := c.keys.Get(id); ok {
			cp := *k
			return &cp, nil
		}
		gen = c.generation(&c.keyGen)
	}
	k, err := store.GetAPIKey(ctx, id)
	if err != nil {
		return nil, err
	}
	if c != nil {
		cp := *k
		c.mu.Lock()
		if c.keyGen == gen {
			c.keys.SetWithTTL(id, &cp, 1, c.ttl)
			c.keys.Wait()
		}
		c.mu.Unlock()
	}
	return k, nil
}

// project returns a copy of the project, reading through to the store on a
// miss.
func (c *Cache) project(ctx context.Context, store ProjectReader, id string) (*model.Project, error) {
	var gen uint64
	if c != nil {
		if p, ok := c.projects.Get(id); ok {
			cp := *p
			cp.AllowedDomains = append([]string(nil), p.AllowedDomains...)
			return &cp, nil
		}
		gen = c.generation(&c.projectGen)
	}
	p, err := store.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if c != nil {
		cp := *p
		cp.AllowedDomains = append([]string(nil), p.AllowedDomains...)
		c.mu.Lock()
		if c.projectGen == gen {
			c.projects.SetWithTTL(id, &cp, 1, c.ttl)
			c.projects.Wait()
		}
		c.mu.Unlock()
	}
	return p, nil
}

func (c *Cache) generation(counter *uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *counter
}
