package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"softcascade/internal/core/entity"
)

func TestBus_PublishOrder(t *testing.T) {
	bus := NewBus()
	var calls []string

	bus.On(AfterSoftDelete, AnyType, func(_ context.Context, ev Event) error {
		calls = append(calls, "any:"+ev.Record.String())
		return nil
	})
	bus.On(AfterSoftDelete, "course", func(_ context.Context, ev Event) error {
		calls = append(calls, "course:"+string(ev.Kind))
		return nil
	})
	bus.On(BeforeSoftDelete, "course", func(context.Context, Event) error {
		calls = append(calls, "before")
		return nil
	})

	rec := entity.NewRecord(entity.NewRef("course", 1), nil)
	require.NoError(t, bus.Publish(context.Background(), AfterSoftDelete, rec))
	assert.Equal(t, []string{"course:after_soft_delete", "any:course#1"}, calls)

	calls = nil
	require.NoError(t, bus.Publish(context.Background(), AfterSoftDelete, entity.NewRecord(entity.NewRef("grade", 2), nil)))
	assert.Equal(t, []string{"any:grade#2"}, calls)
}

func TestBus_PublishStopsAtFirstError(t *testing.T) {
	bus := NewBus()
	boom := errors.New("boom")
	second := false

	bus.On(BeforeRestore, "grade", func(context.Context, Event) error { return boom })
	bus.On(BeforeRestore, "grade", func(context.Context, Event) error {
		second = true
		return nil
	})

	err := bus.Publish(context.Background(), BeforeRestore, entity.NewRecord(entity.NewRef("grade", 1), nil))
	assert.ErrorIs(t, err, boom)
	assert.False(t, second)
}

func TestBus_HasSubscribers(t *testing.T) {
	bus := NewBus()
	assert.False(t, bus.HasSubscribers("grade"))

	bus.OnAfterMutation("grade", func(context.Context, Event) error { return nil })
	assert.True(t, bus.HasSubscribers("grade"))
	assert.False(t, bus.HasSubscribers("course"))

	bus.On(BeforeSoftDelete, AnyType, func(context.Context, Event) error { return nil })
	assert.True(t, bus.HasSubscribers("course"))
}

func TestEventKind_IsPost(t *testing.T) {
	assert.True(t, AfterRestore.IsPost())
	assert.True(t, AfterSoftDelete.IsPost())
	assert.False(t, BeforeSoftDelete.IsPost())
	assert.False(t, BeforeRestore.IsPost())
}
