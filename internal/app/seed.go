package app

import (
	"context"
	"fmt"
	"time"

	"softcascade/internal/domain/lms"
	"softcascade/internal/infrastructure/storage/postgres"
	"softcascade/pkg/logger"
)

// bulkKeyBase keeps generated keys clear of the hand-written dataset.
const bulkKeyBase = 1_000_000

// Seed inserts the demo dataset in one transaction.
func (a *App) Seed(ctx context.Context) error {
	return a.TxManager.RunInTransaction(ctx, func(ctx context.Context) error {
		q := a.TxManager.GetQuerier(ctx)
		for _, m := range lms.Dataset(time.Now().UTC().Truncate(24 * time.Hour)) {
			ref := m.EntityRef()
			def, ok := a.Registry.Type(ref.Type)
			if !ok {
				return fmt.Errorf("unknown type %s", ref.Type)
			}
			if err := postgres.InsertModel(ctx, q, def.Table, m); err != nil {
				return err
			}
		}
		logger.Info(ctx, "demo dataset inserted")
		return nil
	})
}

// SeedBulk loads n extra enrollments of course 1, each with a grade, using
// COPY. It makes cascades large enough to exercise statement batching.
func (a *App) SeedBulk(ctx context.Context, n int) (int64, error) {
	enrollments := make([][]any, n)
	grades := make([][]any, n)
	for i := 0; i < n; i++ {
		key := int64(bulkKeyBase + i)
		enrollments[i] = []any{key, int64(1), key}
		grades[i] = []any{key, key, 3}
	}

	inserter := postgres.NewBatchInserter(a.TxManager)
	var loaded int64
	err := a.TxManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		loaded, err = inserter.CopyFromSlice(ctx, "enrollment", []string{"id", "course_id", "student_id"}, enrollments)
		if err != nil {
			return fmt.Errorf("copy enrollments: %w", err)
		}
		if _, err := inserter.CopyFromSlice(ctx, "grade", []string{"id", "enrollment_id", "value"}, grades); err != nil {
			return fmt.Errorf("copy grades: %w", err)
		}
		return nil
	})
	return loaded, err
}
