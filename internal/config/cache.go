package config

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mayapp/may/internal/chat"
)

// KV is the slice of the store the cache mirrors.
type KV interface {
	GetConfig(ctx context.Context, key, def string) string
	SetConfig(ctx context.Context, key, value string) error
}

// Cache is a read-through mirror of the store-backed app config for
// latency-sensitive synchronous call sites.
//
// Contract: Get returns the last-known value, which may be stale relative to
// the durable store until the next refresh. Call sites that cannot accept
// staleness must read the store directly. Writes go through the store first;
// the cache only advances after the durable write succeeds.
type Cache struct {
	log *slog.Logger
	kv  KV

	mu     sync.RWMutex
	values map[string]string
	keys   []string
}

// NewCache tracks the standard app config keys. The API key is stored
// obfuscated and mirrored deobfuscated.
func NewCache(kv KV, log *slog.Logger) *Cache {
	if log == nil {
		log = slog.Default()
	}
	return &Cache{
		log:    log,
		kv:     kv,
		values: make(map[string]string),
		keys: []string{
			chat.ConfigKeyAPIKey,
			chat.ConfigKeyModel,
			chat.ConfigKeyTheme,
			chat.ConfigKeyActiveConversationID,
		},
	}
}

// Refresh reloads every tracked key from the store.
func (c *Cache) Refresh(ctx context.Context) {
	if c == nil || c.kv == nil {
		return
	}
	fresh := make(map[string]string, len(c.keys))
	for _, key := range c.keys {
		v := c.kv.GetConfig(ctx, key, "")
		if key == chat.ConfigKeyAPIKey {
			v = chat.Deobfuscate(v)
		}
		fresh[key] = v
	}
	c.mu.Lock()
	c.values = fresh
	c.mu.Unlock()
}

// Run refreshes the cache periodically until ctx is canceled. Start it once
// at daemon boot after an initial Refresh.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.Refresh(ctx)
		}
	}
}

// Get returns the cached value for key, or def when none is cached. An empty
// string is the unset representation for every tracked key (an empty active
// pointer means no active conversation, an empty API key means not
// configured), so a cached empty also yields def. Possibly stale; see the
// type comment.
func (c *Cache) Get(key, def string) string {
	c.mu.RLock()
	v, ok := c.values[key]
	c.mu.RUnlock()
	if !ok || v == "" {
		return def
	}
	return v
}

// Set writes through to the store and then updates the cache. The API key is
// obfuscated before it hits the store (reversible encoding, not encryption —
// see chat.Obfuscate).
func (c *Cache) Set(ctx context.Context, key, value string) error {
	stored := value
	if key == chat.ConfigKeyAPIKey {
		stored = chat.Obfuscate(value)
	}
	if err := c.kv.SetConfig(ctx, key, stored); err != nil {
		return err
	}
	c.mu.Lock()
	c.values[key] = value
	c.mu.Unlock()
	return nil
}

// APIKey returns the cached (deobfuscated) API key, or "".
func (c *Cache) APIKey() string {
	return c.Get(chat.ConfigKeyAPIKey, "")
}

// Model returns the cached model selection, falling back to the default.
func (c *Cache) Model() string {
	return c.Get(chat.ConfigKeyModel, "deepseek-r1-250120")
}

// Theme returns the cached theme, defaulting to light.
func (c *Cache) Theme() string {
	return c.Get(chat.ConfigKeyTheme, "light")
}
