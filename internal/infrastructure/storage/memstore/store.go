// Package memstore is a transactional in-memory implementation of the cascade
// storage collaborator. Transactions are serialized and roll back by restoring
// a snapshot. Failures can be injected per operation for tests.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"softcascade/internal/core/entity"
	"softcascade/internal/core/tx"
	"softcascade/internal/domain/cascade"
	"softcascade/internal/metadata"
)

var (
	_ cascade.Storage    = (*Store)(nil)
	_ tx.ReadOnlyManager = (*Store)(nil)
)

// ErrReadOnly is returned by updates issued inside a read-only transaction.
var ErrReadOnly = errors.New("memstore: write in read-only transaction")

// Update is one journaled write.
type Update struct {
	Type      string
	Keys      []entity.Key // by-key updates
	Group     *cascade.FastGroup
	DeletedAt *time.Time
}

// Store keeps rows per type.
type Store struct {
	txMu sync.Mutex // one transaction at a time

	mu       sync.RWMutex
	tables   map[string]map[entity.Key]*entity.Record
	journal  []Update
	failures map[string]error
}

// New creates an empty store.
func New() *Store {
	return &Store{
		tables:   make(map[string]map[entity.Key]*entity.Record),
		failures: make(map[string]error),
	}
}

// Insert adds or replaces rows.
func (s *Store) Insert(recs ...*entity.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range recs {
		table, ok := s.tables[rec.Type]
		if !ok {
			table = make(map[entity.Key]*entity.Record)
			s.tables[rec.Type] = table
		}
		table[rec.Key] = rec.Clone()
	}
}

// Get returns a copy of a row.
func (s *Store) Get(ref entity.Ref) (*entity.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.tables[ref.Type][ref.Key]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// DeletedAt returns the stored deletion timestamp of a row.
func (s *Store) DeletedAt(ref entity.Ref) *time.Time {
	if rec, ok := s.Get(ref); ok {
		return rec.DeletedAt
	}
	return nil
}

// Updates returns the committed write journal in execution order.
func (s *Store) Updates() []Update {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Update(nil), s.journal...)
}

// ResetJournal clears the write journal.
func (s *Store) ResetJournal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.journal = nil
}

// FailOn makes the named operation return err until cleared with a nil err.
// Operation names: "fetch:<type>", "children:<child type>", "exists:<type>",
// "update:<type>", "predicate:<child type>" and "commit".
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *Store) failure(op string) error {
	if err, ok := s.failures[op]; ok {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// --- transactions ---

type txKey struct{}

type txState struct {
	readOnly bool
}

// RunInTransaction runs fn in a transaction. Nested calls join the outer one.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.run(ctx, false, fn)
}

// ReadOnly runs fn in a transaction that rejects writes.
func (s *Store) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.run(ctx, true, fn)
}

func (s *Store) run(ctx context.Context, readOnly bool, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*txState); ok {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := cloneTables(s.tables)
	journalLen := len(s.journal)
	s.mu.RUnlock()

	rollback := func() {
		s.mu.Lock()
		s.tables = snapshot
		s.journal = s.journal[:journalLen]
		s.mu.Unlock()
	}

	txCtx := context.WithValue(ctx, txKey{}, &txState{readOnly: readOnly})
	if err := fn(txCtx); err != nil {
		rollback()
		return err
	}

	s.mu.RLock()
	err := s.failure("commit")
	s.mu.RUnlock()
	if err != nil {
		rollback()
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func cloneTables(src map[string]map[entity.Key]*entity.Record) map[string]map[entity.Key]*entity.Record {
	dst := make(map[string]map[entity.Key]*entity.Record, len(src))
	for t, table := range src {
		c := make(map[entity.Key]*entity.Record, len(table))
		for k, rec := range table {
			c[k] = rec.Clone()
		}
		dst[t] = c
	}
	return dst
}

func writable(ctx context.Context) error {
	if st, ok := ctx.Value(txKey{}).(*txState); ok && st.readOnly {
		return ErrReadOnly
	}
	return nil
}

// --- cascade.Storage ---

// FetchByKeys implements cascade.Storage.
func (s *Store) FetchByKeys(ctx context.Context, entityType string, keys []entity.Key) ([]*entity.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure("fetch:" + entityType); err != nil {
		return nil, err
	}

	table := s.tables[entityType]
	var out []*entity.Record
	for _, k := range keys {
		if rec, ok := table[k]; ok {
			out = append(out, rec.Clone())
		}
	}
	sortByKey(out)
	return out, nil
}

// FetchChildren implements cascade.Storage.
func (s *Store) FetchChildren(ctx context.Context, e metadata.Edge, parentKeys []entity.Key) ([]*entity.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure("children:" + e.Child); err != nil {
		return nil, err
	}

	var out []*entity.Record
	for _, rec := range s.tables[e.Child] {
		if matches(rec, e.Column, parentKeys) {
			out = append(out, rec.Clone())
		}
	}
	sortByKey(out)
	return out, nil
}

// ExistingKeys implements cascade.Storage.
func (s *Store) ExistingKeys(ctx context.Context, entityType string, keys []entity.Key) ([]entity.Key, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure("exists:" + entityType); err != nil {
		return nil, err
	}

	var out []entity.Key
	for _, k := range keys {
		if _, ok := s.tables[entityType][k]; ok {
			out = append(out, k)
		}
	}
	return out, nil
}

// UpdateByKeys implements cascade.Storage.
func (s *Store) UpdateByKeys(ctx context.Context, entityType string, keys []entity.Key, deletedAt *time.Time) (int64, error) {
	if err := writable(ctx); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("update:" + entityType); err != nil {
		return 0, err
	}

	var n int64
	for _, k := range keys {
		if rec, ok := s.tables[entityType][k]; ok {
			rec.SetDeletedAt(deletedAt)
			n++
		}
	}
	s.journal = append(s.journal, Update{
		Type:      entityType,
		Keys:      append([]entity.Key(nil), keys...),
		DeletedAt: copyTime(deletedAt),
	})
	return n, nil
}

// UpdateByPredicate implements cascade.Storage.
func (s *Store) UpdateByPredicate(ctx context.Context, g cascade.FastGroup, deletedAt *time.Time) (int64, error) {
	if err := writable(ctx); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("predicate:" + g.Edge.Child); err != nil {
		return 0, err
	}

	var n int64
	for _, rec := range s.tables[g.Edge.Child] {
		if slices.Contains(g.Exclude, rec.Key) {
			continue
		}
		if matches(rec, g.Edge.Column, g.ParentKeys) {
			rec.SetDeletedAt(deletedAt)
			n++
		}
	}
	group := cascade.FastGroup{
		Edge:       g.Edge,
		ParentKeys: slices.Clone(g.ParentKeys),
		Exclude:    slices.Clone(g.Exclude),
	}
	s.journal = append(s.journal, Update{
		Type:      g.Edge.Child,
		Group:     &group,
		DeletedAt: copyTime(deletedAt),
	})
	return n, nil
}

func matches(rec *entity.Record, column string, keys []entity.Key) bool {
	k, ok := rec.Parent(column)
	if !ok {
		return false
	}
	for _, want := range keys {
		if k == want {
			return true
		}
	}
	return false
}

func sortByKey(recs []*entity.Record) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].Key < recs[j].Key })
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
