package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"softcascade/internal/core/entity"
	"softcascade/internal/domain/cascade"
	"softcascade/internal/domain/lifecycle"
	"softcascade/internal/infrastructure/storage/postgres"
	"softcascade/internal/metadata"
)

func deletedRecord(typ string, key entity.Key) *entity.Record {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return entity.NewRecord(entity.NewRef(typ, key), &ts)
}

func TestFilter(t *testing.T) {
	rec := deletedRecord("course", 7)

	tests := []struct {
		name    string
		expr    string
		kind    lifecycle.EventKind
		want    bool
		wantErr bool
	}{
		{name: "empty matches all", expr: "", kind: lifecycle.AfterSoftDelete, want: true},
		{name: "type match", expr: `entity == "course"`, kind: lifecycle.AfterSoftDelete, want: true},
		{name: "type mismatch", expr: `entity != "course"`, kind: lifecycle.AfterSoftDelete, want: false},
		{name: "key and event", expr: `key > 5 && event == "after_restore"`, kind: lifecycle.AfterRestore, want: true},
		{name: "in list", expr: `entity in ["grade", "enrollment"]`, kind: lifecycle.AfterSoftDelete, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFilter(tt.expr)
			require.NoError(t, err)

			got, err := f.Match(tt.kind, rec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilter_CompileErrors(t *testing.T) {
	_, err := NewFilter(`entity ==`)
	assert.Error(t, err)

	_, err = NewFilter(`unknown_var == 1`)
	assert.Error(t, err)

	_, err = NewFilter(`key + 1`)
	assert.ErrorContains(t, err, "must evaluate to bool")
}

func TestFilter_NilMatchesAll(t *testing.T) {
	var f *Filter
	ok, err := f.Match(lifecycle.AfterSoftDelete, deletedRecord("course", 1))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, f.String())
}

type fakeWriter struct {
	events []postgres.DomainEvent
	err    error
}

func (w *fakeWriter) Publish(_ context.Context, event postgres.DomainEvent) error {
	if w.err != nil {
		return w.err
	}
	w.events = append(w.events, event)
	return nil
}

func TestOutboxSubscriber(t *testing.T) {
	w := &fakeWriter{}
	s := NewOutboxSubscriber(w)
	ctx := context.Background()

	rec := deletedRecord("enrollment", 3)
	require.NoError(t, s.Handle(ctx, lifecycle.Event{Kind: lifecycle.BeforeSoftDelete, Record: rec}))
	assert.Empty(t, w.events)

	require.NoError(t, s.Handle(ctx, lifecycle.Event{Kind: lifecycle.AfterSoftDelete, Record: rec}))

	restored := entity.NewRecord(entity.NewRef("enrollment", 3), nil)
	restored.Previous = rec.DeletedAt
	require.NoError(t, s.Handle(ctx, lifecycle.Event{Kind: lifecycle.AfterRestore, Record: restored}))

	require.Len(t, w.events, 2)
	assert.Equal(t, EventSoftDeleted, w.events[0].EventType)
	assert.Equal(t, "enrollment", w.events[0].AggregateType)
	assert.Equal(t, "3", w.events[0].AggregateID)
	assert.Equal(t, EventRestored, w.events[1].EventType)

	payload, ok := w.events[1].Payload.(RecordPayload)
	require.True(t, ok)
	assert.Nil(t, payload.DeletedAt)
	assert.Equal(t, rec.DeletedAt, payload.Previous)
}

func TestOutboxSubscriber_Register(t *testing.T) {
	w := &fakeWriter{err: errors.New("outbox down")}
	bus := lifecycle.NewBus()
	NewOutboxSubscriber(w).Register(bus, "grade")

	assert.True(t, bus.HasSubscribers("grade"))
	assert.False(t, bus.HasSubscribers("course"))

	err := bus.Publish(context.Background(), lifecycle.AfterSoftDelete, deletedRecord("grade", 1))
	assert.ErrorContains(t, err, "outbox down")
}

type change struct {
	entityType string
	entityID   string
	action     postgres.AuditAction
	changes    map[string]any
}

type fakeAudit struct {
	changes []change
}

func (a *fakeAudit) LogChange(_ context.Context, entityType, entityID string, action postgres.AuditAction, changes map[string]any) error {
	a.changes = append(a.changes, change{entityType, entityID, action, changes})
	return nil
}

func TestAuditSubscriber(t *testing.T) {
	log := &fakeAudit{}
	f, err := NewFilter(`entity != "course_teacher"`)
	require.NoError(t, err)
	s := NewAuditSubscriber(log, f)
	ctx := context.Background()

	rec := deletedRecord("course", 1)
	require.NoError(t, s.Handle(ctx, lifecycle.Event{Kind: lifecycle.AfterSoftDelete, Record: rec}))
	require.NoError(t, s.Handle(ctx, lifecycle.Event{Kind: lifecycle.AfterSoftDelete, Record: deletedRecord("course_teacher", 2)}))
	require.NoError(t, s.Handle(ctx, lifecycle.Event{Kind: lifecycle.BeforeSoftDelete, Record: rec}))

	require.Len(t, log.changes, 1)
	got := log.changes[0]
	assert.Equal(t, "course", got.entityType)
	assert.Equal(t, "1", got.entityID)
	assert.Equal(t, postgres.AuditActionSoftDelete, got.action)
	assert.Equal(t, map[string]any{"old": (*time.Time)(nil), "new": rec.DeletedAt}, got.changes["deleted_at"])
}

func TestAuditSubscriber_SkipsUnchanged(t *testing.T) {
	log := &fakeAudit{}
	s := NewAuditSubscriber(log, nil)

	rec := entity.NewRecord(entity.NewRef("course", 1), nil)
	require.NoError(t, s.Handle(context.Background(), lifecycle.Event{Kind: lifecycle.AfterRestore, Record: rec}))
	assert.Empty(t, log.changes)
}

type notifyCall struct {
	sql  string
	args []any
}

type fakeQuerier struct {
	postgres.Querier
	calls []notifyCall
	err   error
}

func (q *fakeQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	q.calls = append(q.calls, notifyCall{sql: sql, args: args})
	return pgconn.NewCommandTag("SELECT 1"), q.err
}

type fakeProvider struct {
	q *fakeQuerier
}

func (p fakeProvider) GetQuerier(context.Context) postgres.Querier {
	return p.q
}

func TestInvalidator(t *testing.T) {
	q := &fakeQuerier{}
	inv := NewInvalidator(fakeProvider{q}, "")
	assert.Equal(t, DefaultChannel, inv.Channel())

	ctx := context.Background()
	require.NoError(t, inv.Handle(ctx, lifecycle.Event{Kind: lifecycle.BeforeRestore, Record: deletedRecord("grade", 4)}))
	require.NoError(t, inv.Handle(ctx, lifecycle.Event{Kind: lifecycle.AfterSoftDelete, Record: deletedRecord("grade", 4)}))

	require.Len(t, q.calls, 1)
	assert.Equal(t, "SELECT pg_notify($1, $2)", q.calls[0].sql)
	assert.Equal(t, []any{DefaultChannel, "grade#4"}, q.calls[0].args)

	q.err = errors.New("conn closed")
	err := inv.Handle(ctx, lifecycle.Event{Kind: lifecycle.AfterRestore, Record: deletedRecord("grade", 4)})
	assert.ErrorContains(t, err, "notify cascade_changed")
}

func TestInvalidator_FastGroupNotifiesChildType(t *testing.T) {
	q := &fakeQuerier{}
	inv := NewInvalidator(fakeProvider{q}, "states")
	var _ cascade.GroupObserver = inv

	g := cascade.FastGroup{
		Edge:       metadata.Edge{Parent: "course", Child: "course_teacher", Column: "course_id"},
		ParentKeys: []entity.Key{1},
	}
	require.NoError(t, inv.FastGroupUpdated(context.Background(), cascade.OpDelete, g))

	require.Len(t, q.calls, 1)
	assert.Equal(t, []any{"states", "course_teacher"}, q.calls[0].args)
}
