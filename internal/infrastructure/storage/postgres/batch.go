package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// BatchQuery represents a query in a batch.
type BatchQuery struct {
	SQL  string
	Args []any
}

// BatchExecutor sends several statements in one round-trip.
type BatchExecutor struct {
	txManager *TxManager
}

// NewBatchExecutor creates a new batch executor.
func NewBatchExecutor(txManager *TxManager) *BatchExecutor {
	return &BatchExecutor{txManager: txManager}
}

// Exec queues every query into one pgx.Batch and returns the rows affected
// by each, in order. Inside a transaction the batch joins it.
func (e *BatchExecutor) Exec(ctx context.Context, queries []BatchQuery) ([]int64, error) {
	if len(queries) == 0 {
		return nil, nil
	}

	batch := &pgx.Batch{}
	for _, q := range queries {
		batch.Queue(q.SQL, q.Args...)
	}

	results := e.txManager.GetQuerier(ctx).SendBatch(ctx, batch)
	defer results.Close()

	affected := make([]int64, len(queries))
	for i := range queries {
		tag, err := results.Exec()
		if err != nil {
			return nil, fmt.Errorf("batch query %d: %w", i, err)
		}
		affected[i] = tag.RowsAffected()
	}
	return affected, nil
}

// BatchInserter bulk-loads rows with the COPY protocol.
type BatchInserter struct {
	txManager *TxManager
}

// NewBatchInserter creates a new batch inserter.
func NewBatchInserter(txManager *TxManager) *BatchInserter {
	return &BatchInserter{txManager: txManager}
}

// CopyFromSlice performs a bulk insert. It must run inside a transaction.
func (b *BatchInserter) CopyFromSlice(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	tx := b.txManager.GetTx(ctx)
	if tx == nil {
		return 0, fmt.Errorf("CopyFromSlice requires transaction context")
	}
	return tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
}
