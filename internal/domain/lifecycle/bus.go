// Package lifecycle provides the notification bus for cascade mutations.
// Handlers are registered per entity type at initialization and run
// synchronously inside the mutating transaction.
package lifecycle

import (
	"context"
	"sync"

	"softcascade/internal/core/entity"
)

// EventKind represents a lifecycle event type.
type EventKind string

const (
	BeforeSoftDelete EventKind = "before_soft_delete"
	AfterSoftDelete  EventKind = "after_soft_delete"
	BeforeRestore    EventKind = "before_restore"
	AfterRestore     EventKind = "after_restore"
)

// IsPost reports whether the event fires after the mutation was applied.
func (k EventKind) IsPost() bool {
	return k == AfterSoftDelete || k == AfterRestore
}

// AnyType subscribes a handler to every entity type.
const AnyType = "*"

// Event is delivered to handlers.
type Event struct {
	Kind   EventKind
	Record *entity.Record
}

// Handler reacts to a lifecycle event. A non-nil error aborts the cascade.
type Handler func(ctx context.Context, ev Event) error

// Publisher is what the cascade engine needs from a bus.
type Publisher interface {
	Publish(ctx context.Context, kind EventKind, rec *entity.Record) error
	HasSubscribers(entityType string) bool
}

// Bus stores handlers keyed by entity type and event kind.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string]map[EventKind][]Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string]map[EventKind][]Handler)}
}

// On registers a handler for an event on one entity type (or AnyType).
func (b *Bus) On(kind EventKind, entityType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	byKind, ok := b.handlers[entityType]
	if !ok {
		byKind = make(map[EventKind][]Handler)
		b.handlers[entityType] = byKind
	}
	byKind[kind] = append(byKind[kind], h)
}

// OnAfterMutation registers a handler for both post-mutation events.
func (b *Bus) OnAfterMutation(entityType string, h Handler) {
	b.On(AfterSoftDelete, entityType, h)
	b.On(AfterRestore, entityType, h)
}

// Publish runs type handlers, then AnyType handlers, in registration order.
// The first error stops delivery and is returned unchanged.
func (b *Bus) Publish(ctx context.Context, kind EventKind, rec *entity.Record) error {
	b.mu.RLock()
	hooks := append([]Handler(nil), b.handlers[rec.Type][kind]...)
	hooks = append(hooks, b.handlers[AnyType][kind]...)
	b.mu.RUnlock()

	ev := Event{Kind: kind, Record: rec}
	for _, h := range hooks {
		if err := h(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// HasSubscribers reports whether any handler would see events for the type.
func (b *Bus) HasSubscribers(entityType string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return countHandlers(b.handlers[entityType]) > 0 || countHandlers(b.handlers[AnyType]) > 0
}

func countHandlers(byKind map[EventKind][]Handler) int {
	n := 0
	for _, hs := range byKind {
		n += len(hs)
	}
	return n
}

var _ Publisher = (*Bus)(nil)
