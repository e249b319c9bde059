package cascade

import (
	"context"

	"softcascade/internal/core/apperror"
	"softcascade/internal/domain/lifecycle"
	"softcascade/internal/metadata"
)

// notifier publishes per-record lifecycle events for a plan. Auto-created
// junction types have no lifecycle of their own and are skipped.
type notifier struct {
	registry  *metadata.Registry
	publisher lifecycle.Publisher
}

func eventKinds(op Operation) (pre, post lifecycle.EventKind) {
	if op == OpRestore {
		return lifecycle.BeforeRestore, lifecycle.AfterRestore
	}
	return lifecycle.BeforeSoftDelete, lifecycle.AfterSoftDelete
}

func (n *notifier) notify(ctx context.Context, kind lifecycle.EventKind, plan *Plan) error {
	if n.publisher == nil {
		return nil
	}
	for _, b := range plan.Batches {
		if def, _ := n.registry.Type(b.Type); def.AutoCreated {
			continue
		}
		for _, rec := range b.Records {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := n.publisher.Publish(ctx, kind, rec); err != nil {
				if apperror.IsNotification(err) {
					return err
				}
				return apperror.NewNotification(string(kind), rec.String(), err)
			}
		}
	}
	return nil
}
