package notify

import (
	"context"
	"fmt"

	"softcascade/internal/domain/cascade"
	"softcascade/internal/domain/lifecycle"
	"softcascade/internal/infrastructure/storage/postgres"
)

// DefaultChannel is the NOTIFY channel used when none is configured.
const DefaultChannel = "cascade_changed"

// QuerierProvider returns the querier bound to ctx (the enclosing
// transaction when there is one).
type QuerierProvider interface {
	GetQuerier(ctx context.Context) postgres.Querier
}

// Invalidator issues pg_notify for every mutated record, and for every
// fast-path group by child type. PostgreSQL delivers the notification only
// when the surrounding transaction commits.
type Invalidator struct {
	db      QuerierProvider
	channel string
}

// NewInvalidator creates an invalidator for channel.
func NewInvalidator(db QuerierProvider, channel string) *Invalidator {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Invalidator{db: db, channel: channel}
}

// Channel returns the NOTIFY channel.
func (i *Invalidator) Channel() string {
	return i.channel
}

// Handle implements lifecycle.Handler. The payload is the record reference
// ("type#key").
func (i *Invalidator) Handle(ctx context.Context, ev lifecycle.Event) error {
	if !ev.Kind.IsPost() {
		return nil
	}
	return i.notify(ctx, ev.Record.String())
}

// FastGroupUpdated implements cascade.GroupObserver. Fast-path rows are never
// materialized, so the payload is the bare child type and listeners drop
// every entry of that type.
func (i *Invalidator) FastGroupUpdated(ctx context.Context, _ cascade.Operation, g cascade.FastGroup) error {
	return i.notify(ctx, g.Edge.Child)
}

func (i *Invalidator) notify(ctx context.Context, payload string) error {
	if _, err := i.db.GetQuerier(ctx).Exec(ctx, "SELECT pg_notify($1, $2)", i.channel, payload); err != nil {
		return fmt.Errorf("notify %s: %w", i.channel, err)
	}
	return nil
}

// Register subscribes the handler to post-mutation events of the given types,
// or of every type when none are given.
func (i *Invalidator) Register(bus *lifecycle.Bus, types ...string) {
	register(bus, i.Handle, types)
}
