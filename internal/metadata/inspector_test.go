package metadata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type softBase struct {
	DeletedAt *time.Time `db:"deleted_at"`
}

type Course struct {
	ID    int64  `db:"id"`
	Title string `db:"title"`
	softBase
}

type CourseTeacher struct {
	ID        int64 `db:"id"`
	CourseID  int64 `db:"course_id" ref:"course"`
	TeacherID int64 `db:"teacher_id"`
}

func (CourseTeacher) AutoCreated() bool { return true }

type GradedAssignment struct {
	AssignmentID int64 `db:"assignment_ptr_id" ref:"assignment,parent_link"`
	softBase
}

func (GradedAssignment) TableName() string { return "lms_graded_assignment" }
func (GradedAssignment) EntityType() string { return "graded" }

type Assignment struct {
	ID int64 `db:"id"`
	softBase
}

type badRef struct {
	CourseID int64 `ref:"course"`
}

type badOption struct {
	CourseID int64 `db:"course_id" ref:"course,cascade"`
}

func TestInspect(t *testing.T) {
	def, edges, err := Inspect(&Course{})
	require.NoError(t, err)
	assert.Equal(t, TypeDef{Name: "course", Table: "course", KeyColumn: "id", DeletedAtColumn: "deleted_at"}, def)
	assert.Empty(t, edges)

	def, edges, err = Inspect(CourseTeacher{})
	require.NoError(t, err)
	assert.Equal(t, "course_teacher", def.Name)
	assert.True(t, def.AutoCreated)
	assert.False(t, def.SoftDeletable())
	assert.Equal(t, []Edge{{Parent: "course", Child: "course_teacher", Column: "course_id"}}, edges)

	def, edges, err = Inspect(GradedAssignment{})
	require.NoError(t, err)
	assert.Equal(t, "graded", def.Name)
	assert.Equal(t, "lms_graded_assignment", def.Table)
	require.Len(t, edges, 1)
	assert.True(t, edges[0].ParentLink)
	assert.Equal(t, "assignment_ptr_id", edges[0].Column)
}

func TestInspect_Errors(t *testing.T) {
	_, _, err := Inspect(42)
	assert.Error(t, err)

	_, _, err = Inspect(badRef{})
	assert.Error(t, err)

	_, _, err = Inspect(badOption{})
	assert.Error(t, err)
}

func TestRegisterModels(t *testing.T) {
	r := NewRegistry()
	// Referencing types may come before the referenced ones.
	require.NoError(t, r.RegisterModels(CourseTeacher{}, GradedAssignment{}, Course{}, Assignment{}))

	assert.Equal(t, []string{"assignment", "course", "course_teacher", "graded"}, r.Types())
	assert.Len(t, r.ParentsOf("graded"), 1)
	require.NoError(t, r.Validate())
}

func TestSnakeCase(t *testing.T) {
	for in, want := range map[string]string{
		"Course":          "course",
		"CourseTeacher":   "course_teacher",
		"HTTPLog":         "http_log",
		"NewsAttachment2": "news_attachment2",
	} {
		assert.Equal(t, want, snakeCase(in), in)
	}
}
