// Package notify contains lifecycle subscribers that forward committed
// cascade mutations to other systems: the transactional outbox, the audit
// log and PostgreSQL NOTIFY for cache invalidation.
//
// Every subscriber writes through the caller's transaction, so its side
// effects roll back together with the cascade.
package notify

import (
	"context"
	"time"

	"softcascade/internal/domain/lifecycle"
	"softcascade/internal/infrastructure/storage/postgres"
)

// Outbox event types.
const (
	EventSoftDeleted = "cascade.soft_deleted"
	EventRestored    = "cascade.restored"
)

// EventWriter appends domain events to the outbox.
type EventWriter interface {
	Publish(ctx context.Context, event postgres.DomainEvent) error
}

// RecordPayload is the JSON body of a cascade outbox event.
type RecordPayload struct {
	Type      string     `json:"type"`
	Key       int64      `json:"key"`
	DeletedAt *time.Time `json:"deletedAt"`
	Previous  *time.Time `json:"previous"`
}

// OutboxSubscriber turns post-mutation events into outbox rows.
type OutboxSubscriber struct {
	writer EventWriter
}

// NewOutboxSubscriber creates an outbox subscriber.
func NewOutboxSubscriber(writer EventWriter) *OutboxSubscriber {
	return &OutboxSubscriber{writer: writer}
}

// Handle implements lifecycle.Handler.
func (s *OutboxSubscriber) Handle(ctx context.Context, ev lifecycle.Event) error {
	if !ev.Kind.IsPost() {
		return nil
	}

	eventType := EventSoftDeleted
	if ev.Kind == lifecycle.AfterRestore {
		eventType = EventRestored
	}

	rec := ev.Record
	return s.writer.Publish(ctx, postgres.DomainEvent{
		AggregateType: rec.Type,
		AggregateID:   rec.Key.String(),
		EventType:     eventType,
		Payload: RecordPayload{
			Type:      rec.Type,
			Key:       int64(rec.Key),
			DeletedAt: rec.DeletedAt,
			Previous:  rec.Previous,
		},
	})
}

// Register subscribes the handler to post-mutation events of the given types,
// or of every type when none are given.
func (s *OutboxSubscriber) Register(bus *lifecycle.Bus, types ...string) {
	register(bus, s.Handle, types)
}

func register(bus *lifecycle.Bus, h lifecycle.Handler, types []string) {
	if len(types) == 0 {
		types = []string{lifecycle.AnyType}
	}
	for _, t := range types {
		bus.OnAfterMutation(t, h)
	}
}
