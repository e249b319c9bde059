// Package cache provides caching infrastructure with PostgreSQL LISTEN/NOTIFY support.
package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"softcascade/internal/core/entity"
	"softcascade/pkg/logger"
)

// State is the cached soft-deletion state of one row.
type State struct {
	Exists    bool
	DeletedAt *time.Time
}

// Deleted reports whether the row exists and is soft-deleted.
func (s State) Deleted() bool {
	return s.Exists && s.DeletedAt != nil
}

// Loader reads the current state of a row from storage.
type Loader func(ctx context.Context, ref entity.Ref) (State, error)

// InvalidationListener is called when cache is invalidated.
type InvalidationListener func(channel string, payload string)

// StateCache caches row deletion state and drops entries when a cascade
// commit announces them on the NOTIFY channel (payload "type#key").
type StateCache struct {
	pool    *pgxpool.Pool
	channel string
	loader  Loader

	mu      sync.RWMutex
	entries map[entity.Ref]State
	hits    uint64
	misses  uint64

	// Listeners for cache invalidation
	listeners   []InvalidationListener
	listenersMu sync.RWMutex

	// Lifecycle
	lifecycleMu sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
}

// NewStateCache creates a new state cache.
func NewStateCache(pool *pgxpool.Pool, channel string, loader Loader) *StateCache {
	return &StateCache{
		pool:    pool,
		channel: channel,
		loader:  loader,
		entries: make(map[entity.Ref]State),
		ctx:     context.Background(),
	}
}

// Start begins listening for NOTIFY events.
func (c *StateCache) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.pool == nil {
		return fmt.Errorf("state cache: no pool to listen on")
	}

	c.lifecycleMu.Lock()
	if c.started {
		c.lifecycleMu.Unlock()
		return nil
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.started = true
	c.lifecycleMu.Unlock()

	c.wg.Add(1)
	go c.listenLoop()
	logger.Info(c.ctx, "state cache started", "channel", c.channel)
	return nil
}

// Stop gracefully stops the cache listener.
func (c *StateCache) Stop() {
	c.lifecycleMu.Lock()
	if !c.started {
		c.lifecycleMu.Unlock()
		return
	}
	cancel := c.cancel
	c.started = false
	c.cancel = nil
	c.lifecycleMu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
	logger.Info(context.Background(), "state cache stopped")
}

// listenLoop listens for PostgreSQL NOTIFY events.
func (c *StateCache) listenLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		// Acquire dedicated connection for LISTEN
		conn, err := c.pool.Acquire(c.ctx)
		if err != nil {
			logger.Error(c.ctx, "failed to acquire connection for LISTEN", "error", err)
			time.Sleep(time.Second)
			continue
		}

		_, err = conn.Exec(c.ctx, "LISTEN "+pgx.Identifier{c.channel}.Sanitize())
		if err != nil {
			logger.Error(c.ctx, "failed to LISTEN", "channel", c.channel, "error", err)
			conn.Release()
			time.Sleep(time.Second)
			continue
		}

		// Rows may have changed while no connection was listening.
		c.Purge()
		logger.Info(c.ctx, "listening for cascade notifications", "channel", c.channel)

		c.waitForNotifications(conn)
		conn.Release()
	}
}

// waitForNotifications blocks waiting for NOTIFY events.
func (c *StateCache) waitForNotifications(conn *pgxpool.Conn) {
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		// Wait for notification with timeout for graceful shutdown
		ctx, cancel := context.WithTimeout(c.ctx, 30*time.Second)
		notification, err := conn.Conn().WaitForNotification(ctx)
		cancel()

		if err != nil {
			if c.ctx.Err() != nil {
				return // Shutting down
			}
			if ctx.Err() != nil {
				continue
			}
			logger.Warn(c.ctx, "LISTEN connection lost", "error", err)
			return
		}

		logger.Debug(c.ctx, "received notification",
			"channel", notification.Channel,
			"payload", notification.Payload)

		c.handleNotification(notification.Channel, notification.Payload)
	}
}

// handleNotification drops the announced entry and fans out to listeners.
func (c *StateCache) handleNotification(channel, payload string) {
	if channel != c.channel {
		return
	}

	switch {
	case payload != "" && !strings.Contains(payload, "#"):
		// A bare type: rows of that type changed without being listed.
		c.InvalidateType(payload)
	default:
		ref, err := entity.ParseRef(payload)
		if err != nil {
			// Unknown payload, drop everything.
			logger.Warn(c.ctx, "unparseable invalidation payload", "payload", payload, "error", err)
			c.Purge()
		} else {
			c.Invalidate(ref)
		}
	}

	// Notify registered listeners with panic recovery (no goroutine fan-out).
	c.listenersMu.RLock()
	for _, listener := range c.listeners {
		func(l InvalidationListener) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error(c.ctx, "listener panic recovered", "channel", channel, "panic", r)
				}
			}()
			l(channel, payload)
		}(listener)
	}
	c.listenersMu.RUnlock()
}

// Get returns the cached state of ref, loading it on a miss.
func (c *StateCache) Get(ctx context.Context, ref entity.Ref) (State, error) {
	c.mu.RLock()
	state, ok := c.entries[ref]
	c.mu.RUnlock()
	if ok {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return state, nil
	}

	state, err := c.loader(ctx, ref)
	if err != nil {
		return State{}, fmt.Errorf("load state of %s: %w", ref, err)
	}

	c.mu.Lock()
	c.misses++
	c.entries[ref] = state
	c.mu.Unlock()
	return state, nil
}

// Invalidate drops one entry.
func (c *StateCache) Invalidate(ref entity.Ref) {
	c.mu.Lock()
	delete(c.entries, ref)
	c.mu.Unlock()
}

// InvalidateType drops every entry of entityType.
func (c *StateCache) InvalidateType(entityType string) {
	c.mu.Lock()
	for ref := range c.entries {
		if ref.Type == entityType {
			delete(c.entries, ref)
		}
	}
	c.mu.Unlock()
}

// Purge drops every entry.
func (c *StateCache) Purge() {
	c.mu.Lock()
	c.entries = make(map[entity.Ref]State)
	c.mu.Unlock()
}

// OnInvalidation registers a callback for cache invalidation events.
func (c *StateCache) OnInvalidation(listener InvalidationListener) {
	c.listenersMu.Lock()
	c.listeners = append(c.listeners, listener)
	c.listenersMu.Unlock()
}

// CacheStats reports cache usage.
type CacheStats struct {
	Entries int
	Hits    uint64
	Misses  uint64
}

// GetStats returns current cache statistics.
func (c *StateCache) GetStats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheStats{Entries: len(c.entries), Hits: c.hits, Misses: c.misses}
}
