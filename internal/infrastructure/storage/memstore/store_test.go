package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"softcascade/internal/core/entity"
	"softcascade/internal/domain/cascade"
	"softcascade/internal/metadata"
)

func seeded() *Store {
	s := New()
	s.Insert(
		entity.NewRecord(entity.NewRef("course", 1), nil),
		entity.NewRecord(entity.NewRef("enrollment", 10), nil).WithRef("course_id", 1),
		entity.NewRecord(entity.NewRef("enrollment", 11), nil).WithRef("course_id", 1),
		entity.NewRecord(entity.NewRef("enrollment", 12), nil).WithRef("course_id", 2),
	)
	return s
}

var courseEdge = metadata.Edge{Parent: "course", Child: "enrollment", Column: "course_id"}

func TestStore_Fetch(t *testing.T) {
	s := seeded()
	ctx := context.Background()

	recs, err := s.FetchByKeys(ctx, "enrollment", []entity.Key{12, 10, 99})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, entity.Key(10), recs[0].Key)

	children, err := s.FetchChildren(ctx, courseEdge, []entity.Key{1})
	require.NoError(t, err)
	assert.Equal(t, []entity.Key{10, 11}, []entity.Key{children[0].Key, children[1].Key})

	keys, err := s.ExistingKeys(ctx, "course", []entity.Key{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []entity.Key{1}, keys)

	// returned records are copies
	children[0].SetDeletedAt(&time.Time{})
	assert.Nil(t, s.DeletedAt(entity.NewRef("enrollment", 10)))
}

func TestStore_Updates(t *testing.T) {
	s := seeded()
	ctx := context.Background()
	now := time.Now().UTC()

	n, err := s.UpdateByKeys(ctx, "course", []entity.Key{1, 5}, &now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = s.UpdateByPredicate(ctx, cascade.FastGroup{Edge: courseEdge, ParentKeys: []entity.Key{1}}, &now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	assert.Equal(t, now, *s.DeletedAt(entity.NewRef("enrollment", 11)))
	assert.Nil(t, s.DeletedAt(entity.NewRef("enrollment", 12)))

	journal := s.Updates()
	require.Len(t, journal, 2)
	assert.Equal(t, "course", journal[0].Type)
	require.NotNil(t, journal[1].Group)
	assert.Equal(t, "course_id", journal[1].Group.Edge.Column)
}

func TestStore_PredicateUpdateExcludesKeys(t *testing.T) {
	s := seeded()
	now := time.Now().UTC()

	g := cascade.FastGroup{Edge: courseEdge, ParentKeys: []entity.Key{1}, Exclude: []entity.Key{10}}
	n, err := s.UpdateByPredicate(context.Background(), g, &now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	assert.Nil(t, s.DeletedAt(entity.NewRef("enrollment", 10)))
	assert.NotNil(t, s.DeletedAt(entity.NewRef("enrollment", 11)))
	assert.Equal(t, []entity.Key{10}, s.Updates()[0].Group.Exclude)
}

func TestStore_TransactionRollback(t *testing.T) {
	s := seeded()
	now := time.Now().UTC()
	boom := errors.New("boom")

	err := s.RunInTransaction(context.Background(), func(ctx context.Context) error {
		_, err := s.UpdateByKeys(ctx, "course", []entity.Key{1}, &now)
		require.NoError(t, err)

		// nested call joins the outer transaction
		return s.RunInTransaction(ctx, func(context.Context) error { return boom })
	})
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, s.DeletedAt(entity.NewRef("course", 1)))
	assert.Empty(t, s.Updates())
}

func TestStore_CommitFailure(t *testing.T) {
	s := seeded()
	now := time.Now().UTC()
	s.FailOn("commit", errors.New("connection reset"))

	err := s.RunInTransaction(context.Background(), func(ctx context.Context) error {
		_, err := s.UpdateByKeys(ctx, "course", []entity.Key{1}, &now)
		return err
	})
	assert.Error(t, err)
	assert.Nil(t, s.DeletedAt(entity.NewRef("course", 1)))

	s.FailOn("commit", nil)
	require.NoError(t, s.RunInTransaction(context.Background(), func(context.Context) error { return nil }))
}

func TestStore_ReadOnly(t *testing.T) {
	s := seeded()
	err := s.ReadOnly(context.Background(), func(ctx context.Context) error {
		_, err := s.UpdateByKeys(ctx, "course", []entity.Key{1}, nil)
		return err
	})
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestStore_FailOn(t *testing.T) {
	s := seeded()
	s.FailOn("children:enrollment", errors.New("timeout"))

	_, err := s.FetchChildren(context.Background(), courseEdge, []entity.Key{1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "children:enrollment")
}
