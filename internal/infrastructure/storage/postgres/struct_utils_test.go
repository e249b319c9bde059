package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"softcascade/internal/core/entity"
)

type mockEnrollment struct {
	ID        entity.Key `db:"id"`
	CourseID  entity.Key `db:"course_id"`
	Note      string     `db:"-"`
	StudentID int64      `db:"student_id"`
	entity.SoftDeletion
}

func TestExtractDBColumns(t *testing.T) {
	cols := ExtractDBColumns[mockEnrollment]()
	assert.Equal(t, []string{"id", "course_id", "student_id", "deleted_at"}, cols)
	assert.Nil(t, extractColumnsFromType(nil))
}

func TestStructToMap(t *testing.T) {
	now := time.Now().UTC()
	e := mockEnrollment{ID: 10, CourseID: 1, Note: "ignored", StudentID: 7}
	e.SetDeletedAt(&now)

	m := StructToMap(&e)
	assert.Len(t, m, 4)
	assert.Equal(t, entity.Key(10), m["id"])
	assert.Equal(t, entity.Key(1), m["course_id"])
	assert.Equal(t, int64(7), m["student_id"])
	assert.Equal(t, &now, m["deleted_at"])

	assert.Nil(t, StructToMap(42))
	assert.Nil(t, StructToMap((*mockEnrollment)(nil)))
}
