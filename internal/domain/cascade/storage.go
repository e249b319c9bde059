package cascade

import (
	"context"
	"time"

	"softcascade/internal/core/apperror"
	"softcascade/internal/core/entity"
	"softcascade/internal/metadata"
)

// Storage is the query layer the engine runs against. Every method is called
// inside the transaction carried by ctx. Returned records must have every
// foreign key column of their type populated in Record.Refs.
type Storage interface {
	// FetchByKeys loads rows of a type by primary key. Missing keys are omitted.
	FetchByKeys(ctx context.Context, entityType string, keys []entity.Key) ([]*entity.Record, error)

	// FetchChildren loads rows of e.Child whose e.Column holds one of parentKeys.
	FetchChildren(ctx context.Context, e metadata.Edge, parentKeys []entity.Key) ([]*entity.Record, error)

	// ExistingKeys returns the subset of keys that exist for the type.
	ExistingKeys(ctx context.Context, entityType string, keys []entity.Key) ([]entity.Key, error)

	// UpdateByKeys sets the deletion timestamp of the given rows (nil clears it).
	UpdateByKeys(ctx context.Context, entityType string, keys []entity.Key, deletedAt *time.Time) (int64, error)

	// UpdateByPredicate sets the deletion timestamp of every row in the group.
	UpdateByPredicate(ctx context.Context, g FastGroup, deletedAt *time.Time) (int64, error)
}

// storageError converts a storage failure into a STORAGE_ERROR unless it is
// already typed.
func storageError(op string, err error) error {
	if apperror.IsAppError(err) {
		return err
	}
	return apperror.NewStorage(op, err)
}
