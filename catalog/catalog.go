// Package catalog is the optional payload-schema registry. Operators may
// register a JSON Schema per event type name; ingestion then validates
// payloads of that type against it. Event types without a registered schema
// accept any payload.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hookline/hookline/internal/entity"
)

// ErrSchemaNotFound is returned when no schema is registered for a type.
var ErrSchemaNotFound = errors.New("catalog: schema not found")

// Schema is a JSON Schema registered for one event type name.
type Schema struct {
	entity.Entity

	// EventType is the event type name the schema applies to.
	EventType string `json:"event_type"`

	// Schema is the JSON Schema document.
	Schema json.RawMessage `json:"schema"`
}

// Store defines the persistence contract for the schema registry.
type Store interface {
	// PutSchema creates or replaces the schema for an event type.
	PutSchema(ctx context.Context, sch *Schema) error

	// GetSchema returns the schema for an event type.
	GetSchema(ctx context.Context, eventType string) (*Schema, error)

	// ListSchemas returns all registered schemas.
	ListSchemas(ctx context.Context) ([]*Schema, error)

	// DeleteSchema removes the schema for an event type.
	DeleteSchema(ctx context.Context, eventType string) error
}

// cacheEntry is one cached lookup. A nil schema records a miss, so that hot
// event types without a schema do not hit the store on every ingest.
type cacheEntry struct {
	schema   *Schema
	loadedAt time.Time
}

// Catalog is the cached schema registry service.
type Catalog struct {
	store     Store
	validator *Validator
	cache     map[string]cacheEntry
	cacheTTL  time.Duration
	mu        sync.RWMutex
	logger    *slog.Logger
}

// Config configures the catalog service.
type Config struct {
	CacheTTL time.Duration
}

// NewCatalog creates a new Catalog backed by the given store.
func NewCatalog(store Store, cfg Config, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		store:     store,
		validator: NewValidator(),
		cache:     make(map[string]cacheEntry),
		cacheTTL:  cfg.CacheTTL,
		logger:    logger,
	}
}

// Put registers or replaces the schema for an event type. The schema is
// compiled eagerly so malformed documents are rejected at registration time.
func (c *Catalog) Put(ctx context.Context, eventType string, raw json.RawMessage) (*Schema, error) {
	if err := c.validator.Compile(raw); err != nil {
		return nil, err
	}

	sch := &Schema{
		Entity:    entity.New(),
		EventType: eventType,
		Schema:    raw,
	}

	if err := c.store.PutSchema(ctx, sch); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[eventType] = cacheEntry{schema: sch, loadedAt: time.Now()}
	c.mu.Unlock()

	return sch, nil
}

// Get returns the schema for an event type, using the cache when fresh.
func (c *Catalog) Get(ctx context.Context, eventType string) (*Schema, error) {
	c.mu.RLock()
	if e, ok := c.cache[eventType]; ok && !c.expired(e.loadedAt) {
		c.mu.RUnlock()
		if e.schema == nil {
			return nil, ErrSchemaNotFound
		}
		return e.schema, nil
	}
	c.mu.RUnlock()

	sch, err := c.store.GetSchema(ctx, eventType)
	if err != nil {
		if errors.Is(err, ErrSchemaNotFound) {
			c.mu.Lock()
			c.cache[eventType] = cacheEntry{loadedAt: time.Now()}
			c.mu.Unlock()
		}
		return nil, err
	}

	c.mu.Lock()
	c.cache[eventType] = cacheEntry{schema: sch, loadedAt: time.Now()}
	c.mu.Unlock()

	return sch, nil
}

// List returns all registered schemas.
func (c *Catalog) List(ctx context.Context) ([]*Schema, error) {
	return c.store.ListSchemas(ctx)
}

// Delete removes the schema for an event type and drops it from cache.
func (c *Catalog) Delete(ctx context.Context, eventType string) error {
	if err := c.store.DeleteSchema(ctx, eventType); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.cache, eventType)
	c.mu.Unlock()

	return nil
}

// Validate checks a payload against the registered schema for eventType.
// Returns nil when no schema is registered.
func (c *Catalog) Validate(ctx context.Context, eventType string, payload json.RawMessage) error {
	sch, err := c.Get(ctx, eventType)
	if err != nil {
		if errors.Is(err, ErrSchemaNotFound) {
			return nil
		}
		return err
	}

	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return err
	}

	return c.validator.Validate(sch.Schema, doc)
}

// InvalidateCache clears the in-memory cache, forcing fresh reads.
func (c *Catalog) InvalidateCache() {
	c.mu.Lock()
	c.cache = make(map[string]cacheEntry)
	c.mu.Unlock()
}

// expired reports whether a cached entry loaded at t has outlived the TTL.
func (c *Catalog) expired(t time.Time) bool {
	if c.cacheTTL == 0 {
		return false
	}
	return time.Since(t) > c.cacheTTL
}
