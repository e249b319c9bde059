package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRef(t *testing.T) {
	ref, err := ParseRef("course#42")
	require.NoError(t, err)
	assert.Equal(t, NewRef("course", 42), ref)
	assert.Equal(t, "course#42", ref.String())

	for _, bad := range []string{"course", "#1", "course#x", ""} {
		_, err := ParseRef(bad)
		assert.Error(t, err, bad)
	}
}

func TestSoftDeletion_SetDeletedAtCopies(t *testing.T) {
	now := time.Now().UTC()
	var a, b SoftDeletion
	a.SetDeletedAt(&now)
	b.SetDeletedAt(&now)

	assert.True(t, a.IsDeleted())
	assert.NotSame(t, a.DeletedAt, b.DeletedAt)
	assert.Equal(t, *a.DeletedAt, *b.DeletedAt)

	a.SetDeletedAt(nil)
	assert.False(t, a.IsDeleted())
}

func TestRecord_CloneIsDeep(t *testing.T) {
	now := time.Now().UTC()
	rec := NewRecord(NewRef("grade", 100), &now).WithRef("enrollment_id", 10)
	rec.Refs["teacher_id"] = nil

	c := rec.Clone()
	*c.Refs["enrollment_id"] = 11
	c.SetDeletedAt(nil)

	k, ok := rec.Parent("enrollment_id")
	assert.True(t, ok)
	assert.Equal(t, Key(10), k)
	assert.True(t, rec.IsDeleted())

	_, ok = rec.Parent("teacher_id")
	assert.False(t, ok)
}
