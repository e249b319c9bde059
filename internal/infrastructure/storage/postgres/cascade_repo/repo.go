// Package cascade_repo provides the PostgreSQL implementation of the cascade
// storage collaborator. Tables and columns come from the Reference Edge
// registry; every statement is built with squirrel and chunked so that no
// statement carries more than batchSize keys.
package cascade_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"softcascade/internal/core/entity"
	"softcascade/internal/domain/cascade"
	"softcascade/internal/infrastructure/cache"
	"softcascade/internal/infrastructure/storage/postgres"
	"softcascade/internal/metadata"
)

// DefaultBatchSize is the number of keys per statement when none is configured.
const DefaultBatchSize = 100

var _ cascade.Storage = (*Repo)(nil)

// Repo implements cascade.Storage.
type Repo struct {
	registry  *metadata.Registry
	txManager *postgres.TxManager
	batch     *postgres.BatchExecutor
	batchSize int
}

// New creates a cascade repository.
func New(registry *metadata.Registry, txManager *postgres.TxManager, batchSize int) *Repo {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Repo{
		registry:  registry,
		txManager: txManager,
		batch:     postgres.NewBatchExecutor(txManager),
		batchSize: batchSize,
	}
}

// Builder returns a new squirrel builder with PostgreSQL placeholder format.
func (r *Repo) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *Repo) typeDef(entityType string) (metadata.TypeDef, error) {
	def, ok := r.registry.Type(entityType)
	if !ok {
		return metadata.TypeDef{}, fmt.Errorf("unknown entity type %q", entityType)
	}
	return def, nil
}

// selectColumns returns key, deletion timestamp (soft types only) and every
// foreign key column of the type.
func (r *Repo) selectColumns(def metadata.TypeDef) []string {
	cols := []string{def.KeyColumn}
	if def.SoftDeletable() {
		cols = append(cols, def.DeletedAtColumn)
	}
	return append(cols, r.registry.RefColumns(def.Name)...)
}

func (r *Repo) selectQuery(def metadata.TypeDef, column string, keys []entity.Key) squirrel.SelectBuilder {
	return r.Builder().
		Select(r.selectColumns(def)...).
		From(def.Table).
		Where(squirrel.Eq{column: keys}).
		OrderBy(def.KeyColumn)
}

// FetchByKeys implements cascade.Storage.
func (r *Repo) FetchByKeys(ctx context.Context, entityType string, keys []entity.Key) ([]*entity.Record, error) {
	def, err := r.typeDef(entityType)
	if err != nil {
		return nil, err
	}
	return r.fetch(ctx, def, def.KeyColumn, keys)
}

// FetchChildren implements cascade.Storage.
func (r *Repo) FetchChildren(ctx context.Context, e metadata.Edge, parentKeys []entity.Key) ([]*entity.Record, error) {
	def, err := r.typeDef(e.Child)
	if err != nil {
		return nil, err
	}
	return r.fetch(ctx, def, e.Column, parentKeys)
}

func (r *Repo) fetch(ctx context.Context, def metadata.TypeDef, column string, keys []entity.Key) ([]*entity.Record, error) {
	querier := r.txManager.GetQuerier(ctx)

	var out []*entity.Record
	for _, chunk := range cascade.Chunk(keys, r.batchSize) {
		sql, args, err := r.selectQuery(def, column, chunk).ToSql()
		if err != nil {
			return nil, fmt.Errorf("build select %s: %w", def.Table, err)
		}

		var rows []map[string]any
		if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
			return nil, fmt.Errorf("select %s: %w", def.Table, err)
		}

		for _, row := range rows {
			rec, err := r.toRecord(def, row)
			if err != nil {
				return nil, err
			}
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *Repo) toRecord(def metadata.TypeDef, row map[string]any) (*entity.Record, error) {
	key, ok := toKey(row[def.KeyColumn])
	if !ok {
		return nil, fmt.Errorf("scan %s: key column %s is %T", def.Table, def.KeyColumn, row[def.KeyColumn])
	}

	rec := entity.NewRecord(entity.NewRef(def.Name, key), nil)
	if def.SoftDeletable() {
		if ts, ok := row[def.DeletedAtColumn].(time.Time); ok {
			rec.SetDeletedAt(&ts)
		}
	}
	for _, col := range r.registry.RefColumns(def.Name) {
		if k, ok := toKey(row[col]); ok {
			rec.WithRef(col, k)
		} else {
			rec.Refs[col] = nil
		}
	}
	return rec, nil
}

func toKey(v any) (entity.Key, bool) {
	switch k := v.(type) {
	case int64:
		return entity.Key(k), true
	case int32:
		return entity.Key(k), true
	case int16:
		return entity.Key(k), true
	case int:
		return entity.Key(k), true
	default:
		return 0, false
	}
}

// ExistingKeys implements cascade.Storage.
func (r *Repo) ExistingKeys(ctx context.Context, entityType string, keys []entity.Key) ([]entity.Key, error) {
	def, err := r.typeDef(entityType)
	if err != nil {
		return nil, err
	}
	querier := r.txManager.GetQuerier(ctx)

	var out []entity.Key
	for _, chunk := range cascade.Chunk(keys, r.batchSize) {
		sql, args, err := r.Builder().
			Select(def.KeyColumn).
			From(def.Table).
			Where(squirrel.Eq{def.KeyColumn: chunk}).
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("build exists %s: %w", def.Table, err)
		}

		var found []int64
		if err := pgxscan.Select(ctx, querier, &found, sql, args...); err != nil {
			return nil, fmt.Errorf("select keys %s: %w", def.Table, err)
		}
		for _, k := range found {
			out = append(out, entity.Key(k))
		}
	}
	return out, nil
}

func (r *Repo) updateQuery(def metadata.TypeDef, column string, keys []entity.Key, deletedAt *time.Time, exclude []entity.Key) squirrel.UpdateBuilder {
	q := r.Builder().
		Update(def.Table).
		Set(def.DeletedAtColumn, deletedAt).
		Where(squirrel.Eq{column: keys})
	if len(exclude) > 0 {
		q = q.Where(squirrel.NotEq{def.KeyColumn: exclude})
	}
	return q
}

// UpdateByKeys implements cascade.Storage. All chunks of one type are sent as
// a single batch.
func (r *Repo) UpdateByKeys(ctx context.Context, entityType string, keys []entity.Key, deletedAt *time.Time) (int64, error) {
	def, err := r.typeDef(entityType)
	if err != nil {
		return 0, err
	}
	return r.update(ctx, def, def.KeyColumn, keys, deletedAt, nil)
}

// UpdateByPredicate implements cascade.Storage. Rows listed in g.Exclude are
// left to their own batch.
func (r *Repo) UpdateByPredicate(ctx context.Context, g cascade.FastGroup, deletedAt *time.Time) (int64, error) {
	def, err := r.typeDef(g.Edge.Child)
	if err != nil {
		return 0, err
	}
	return r.update(ctx, def, g.Edge.Column, g.ParentKeys, deletedAt, g.Exclude)
}

func (r *Repo) update(ctx context.Context, def metadata.TypeDef, column string, keys []entity.Key, deletedAt *time.Time, exclude []entity.Key) (int64, error) {
	if !def.SoftDeletable() {
		return 0, nil
	}

	var queries []postgres.BatchQuery
	for _, chunk := range cascade.Chunk(keys, r.batchSize) {
		sql, args, err := r.updateQuery(def, column, chunk, deletedAt, exclude).ToSql()
		if err != nil {
			return 0, fmt.Errorf("build update %s: %w", def.Table, err)
		}
		queries = append(queries, postgres.BatchQuery{SQL: sql, Args: args})
	}

	affected, err := r.batch.Exec(ctx, queries)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", def.Table, err)
	}

	var total int64
	for _, n := range affected {
		total += n
	}
	return total, nil
}

// LoadState reads whether ref exists and its deletion timestamp. It backs the
// worker's state cache.
func (r *Repo) LoadState(ctx context.Context, ref entity.Ref) (cache.State, error) {
	def, err := r.typeDef(ref.Type)
	if err != nil {
		return cache.State{}, err
	}

	sql, args, err := r.stateQuery(def, ref.Key).ToSql()
	if err != nil {
		return cache.State{}, fmt.Errorf("build state %s: %w", def.Table, err)
	}

	var rows []map[string]any
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return cache.State{}, fmt.Errorf("select state %s: %w", def.Table, err)
	}
	if len(rows) == 0 {
		return cache.State{}, nil
	}

	state := cache.State{Exists: true}
	if ts, ok := rows[0][def.DeletedAtColumn].(time.Time); ok && def.SoftDeletable() {
		state.DeletedAt = &ts
	}
	return state, nil
}

func (r *Repo) stateQuery(def metadata.TypeDef, key entity.Key) squirrel.SelectBuilder {
	cols := []string{def.KeyColumn}
	if def.SoftDeletable() {
		cols = append(cols, def.DeletedAtColumn)
	}
	return r.Builder().
		Select(cols...).
		From(def.Table).
		Where(squirrel.Eq{def.KeyColumn: key})
}
