// Package cascade implements cascading soft delete and restore.
//
// A call walks the Reference Edge graph from its roots, orders the affected
// types children-first, and applies one deletion timestamp (or clears it)
// inside a single transaction, publishing lifecycle events around the
// mutation. Any failure rolls the whole operation back.
package cascade

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"softcascade/internal/core/apperror"
	"softcascade/internal/core/entity"
	"softcascade/internal/core/tx"
	"softcascade/internal/domain/lifecycle"
	"softcascade/internal/metadata"
	"softcascade/pkg/logger"
)

var tracer = otel.Tracer("softcascade/cascade")

// ServiceConfig holds the collaborators and switches of a Service.
type ServiceConfig struct {
	Registry  *metadata.Registry
	Storage   Storage
	TxManager tx.Manager

	// Publisher receives lifecycle events. Nil disables notifications.
	Publisher lifecycle.Publisher

	// GroupObservers are told about fast-path groups, which have no per-row events.
	GroupObservers []GroupObserver

	// KeepParents leaves rows linked upstream through parent-link edges alone.
	KeepParents bool

	// FastPath enables predicate updates for eligible leaf groups.
	FastPath bool

	// Now overrides the clock (tests).
	Now func() time.Time
}

// Service runs cascades.
type Service struct {
	registry    *metadata.Registry
	storage     Storage
	txManager   tx.Manager
	collector   *collector
	notifier    *notifier
	observers   []GroupObserver
	keepParents bool
	now         func() time.Time
}

// NewService creates a cascade service.
func NewService(cfg ServiceConfig) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		registry:  cfg.Registry,
		storage:   cfg.Storage,
		txManager: cfg.TxManager,
		collector: &collector{
			registry:  cfg.Registry,
			storage:   cfg.Storage,
			publisher: cfg.Publisher,
			fastPath:  cfg.FastPath,
		},
		notifier:    &notifier{registry: cfg.Registry, publisher: cfg.Publisher},
		observers:   cfg.GroupObservers,
		keepParents: cfg.KeepParents,
		now:         now,
	}
}

// Result describes a committed cascade.
type Result struct {
	Operation Operation
	// DeletedAt is the timestamp written to every affected row (nil on restore).
	DeletedAt *time.Time
	Plan      *Plan
	// Affected counts updated rows per type, fast-path rows included. A row is
	// counted once even when it is both a root and inside a fast-path group.
	Affected map[string]int64
}

// Total returns the number of updated rows.
func (r *Result) Total() int64 {
	var n int64
	for _, v := range r.Affected {
		n += v
	}
	return n
}

// Delete soft-deletes the roots and everything depending on them.
func (s *Service) Delete(ctx context.Context, roots ...entity.Referencer) (*Result, error) {
	return s.run(ctx, OpDelete, roots)
}

// Restore clears the deletion timestamp of the roots and their dependents.
func (s *Service) Restore(ctx context.Context, roots ...entity.Referencer) (*Result, error) {
	return s.run(ctx, OpRestore, roots)
}

// Preview collects and orders without mutating or notifying.
func (s *Service) Preview(ctx context.Context, op Operation, roots ...entity.Referencer) (*Plan, error) {
	if !op.Valid() {
		return nil, apperror.NewValidation(fmt.Sprintf("unknown operation %q", op))
	}
	refs, err := s.validateRoots(roots)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "cascade.preview", trace.WithAttributes(
		attribute.String("cascade.operation", string(op)),
		attribute.Int("cascade.roots", len(refs)),
	))
	defer span.End()

	var plan *Plan
	build := func(ctx context.Context) error {
		col, err := s.collector.collect(ctx, refs, s.keepParents)
		if err != nil {
			return err
		}
		plan, err = order(s.registry, col, op)
		return err
	}

	if ro, ok := s.txManager.(tx.ReadOnlyManager); ok {
		err = ro.ReadOnly(ctx, build)
	} else {
		err = s.txManager.RunInTransaction(ctx, build)
	}
	if err != nil {
		err = storageError("transaction", err)
		recordError(span, err)
		return nil, err
	}
	return plan, nil
}

func (s *Service) run(ctx context.Context, op Operation, roots []entity.Referencer) (*Result, error) {
	refs, err := s.validateRoots(roots)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "cascade."+string(op), trace.WithAttributes(
		attribute.String("cascade.operation", string(op)),
		attribute.Int("cascade.roots", len(refs)),
	))
	defer span.End()

	log := logger.FromContext(ctx).WithComponent("cascade").With("operation", op)
	started := time.Now()

	var deletedAt *time.Time
	if op == OpDelete {
		// PostgreSQL stores microseconds; truncate so memory matches storage.
		now := s.now().UTC().Truncate(time.Microsecond)
		deletedAt = &now
	}

	res := &Result{Operation: op, DeletedAt: deletedAt, Affected: make(map[string]int64)}

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		col, err := s.collector.collect(ctx, refs, s.keepParents)
		if err != nil {
			return err
		}
		log.Debugw("collected", "records", col.Len(), "types", col.Types())

		plan, err := order(s.registry, col, op)
		if err != nil {
			return err
		}
		res.Plan = plan
		log.Debugw("ordered", "batches", len(plan.Batches), "fast_groups", len(plan.Fast))

		return s.execute(ctx, plan, deletedAt, res.Affected)
	})
	if err != nil {
		err = storageError("transaction", err)
		recordError(span, err)
		log.Warnw("cascade failed", "roots", len(refs), "code", apperror.CodeOf(err), "error", err)
		return nil, err
	}

	// The transaction is committed; reflect the new state on caller-held roots
	// whose type was actually written.
	for _, root := range roots {
		sd, ok := root.(entity.SoftDeletable)
		if !ok {
			continue
		}
		if def, _ := s.registry.Type(root.EntityRef().Type); def.SoftDeletable() {
			sd.SetDeletedAt(deletedAt)
		}
	}

	span.SetAttributes(
		attribute.Int("cascade.records", res.Plan.Len()),
		attribute.Int("cascade.fast_groups", len(res.Plan.Fast)),
	)
	log.Infow("cascade applied",
		"roots", len(refs),
		"affected", res.Affected,
		"total", res.Total(),
		"duration", time.Since(started),
	)
	return res, nil
}

// execute applies a plan inside the current transaction:
// pre notifications, fast-path updates, per-type batches, post notifications.
func (s *Service) execute(ctx context.Context, plan *Plan, deletedAt *time.Time, affected map[string]int64) error {
	pre, post := eventKinds(plan.Operation)

	if err := s.notifier.notify(ctx, pre, plan); err != nil {
		return err
	}

	for _, g := range plan.Fast {
		n, err := s.storage.UpdateByPredicate(ctx, g, deletedAt)
		if err != nil {
			return storageError("update "+g.Edge.String(), err)
		}
		affected[g.Edge.Child] += n

		for _, o := range s.observers {
			if err := o.FastGroupUpdated(ctx, plan.Operation, g); err != nil {
				return apperror.NewNotification("fast_group_updated", g.Edge.String(), err)
			}
		}
	}

	for _, b := range plan.Batches {
		n, err := s.storage.UpdateByKeys(ctx, b.Type, b.Keys(), deletedAt)
		if err != nil {
			return storageError("update "+b.Type, err)
		}
		affected[b.Type] += n

		for _, rec := range b.Records {
			rec.Previous = rec.GetDeletedAt()
			rec.SetDeletedAt(deletedAt)
		}
	}

	return s.notifier.notify(ctx, post, plan)
}

func (s *Service) validateRoots(roots []entity.Referencer) ([]entity.Ref, error) {
	if len(roots) == 0 {
		return nil, apperror.NewValidation("at least one root is required")
	}
	refs := make([]entity.Ref, 0, len(roots))
	for _, root := range roots {
		if root == nil {
			return nil, apperror.NewValidation("nil root")
		}
		ref := root.EntityRef()
		if _, ok := s.registry.Type(ref.Type); !ok {
			return nil, apperror.NewValidation(fmt.Sprintf("unknown entity type %q", ref.Type)).
				WithDetail("ref", ref.String())
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, apperror.CodeOf(err))
}
