package notify

import (
	"context"

	"softcascade/internal/domain/lifecycle"
	"softcascade/internal/infrastructure/storage/postgres"
	"softcascade/pkg/logger"
)

// ChangeLogger records a change set for one row.
type ChangeLogger interface {
	LogChange(ctx context.Context, entityType, entityID string, action postgres.AuditAction, changes map[string]any) error
}

// AuditSubscriber writes the deleted_at transition of each mutated record to
// the audit log. Records rejected by the filter are skipped.
type AuditSubscriber struct {
	log    ChangeLogger
	filter *Filter
}

// NewAuditSubscriber creates an audit subscriber. A nil filter audits every
// record.
func NewAuditSubscriber(log ChangeLogger, filter *Filter) *AuditSubscriber {
	return &AuditSubscriber{log: log, filter: filter}
}

// Handle implements lifecycle.Handler.
func (s *AuditSubscriber) Handle(ctx context.Context, ev lifecycle.Event) error {
	if !ev.Kind.IsPost() {
		return nil
	}

	rec := ev.Record
	ok, err := s.filter.Match(ev.Kind, rec)
	if err != nil {
		return err
	}
	if !ok {
		logger.Debug(ctx, "audit skipped by filter", "ref", rec.String(), "filter", s.filter.String())
		return nil
	}

	action := postgres.AuditActionSoftDelete
	if ev.Kind == lifecycle.AfterRestore {
		action = postgres.AuditActionRestore
	}

	changes := postgres.Diff(
		map[string]any{"deleted_at": rec.Previous},
		map[string]any{"deleted_at": rec.DeletedAt},
	)
	if len(changes) == 0 {
		return nil
	}
	return s.log.LogChange(ctx, rec.Type, rec.Key.String(), action, changes)
}

// Register subscribes the handler to post-mutation events of the given types,
// or of every type when none are given.
func (s *AuditSubscriber) Register(bus *lifecycle.Bus, types ...string) {
	register(bus, s.Handle, types)
}
