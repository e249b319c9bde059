package cascade_repo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"softcascade/internal/core/entity"
	"softcascade/internal/domain/lms"
	"softcascade/internal/metadata"
)

func newTestRepo(t *testing.T, batchSize int) *Repo {
	t.Helper()
	registry, err := lms.NewRegistry()
	require.NoError(t, err)
	return New(registry, nil, batchSize)
}

func TestRepo_SelectSQL(t *testing.T) {
	repo := newTestRepo(t, 0)
	assert.Equal(t, DefaultBatchSize, repo.batchSize)

	tests := []struct {
		name     string
		typ      string
		column   string
		keys     []entity.Key
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "by key",
			typ:      lms.TypeCourse,
			column:   "id",
			keys:     []entity.Key{1, 2},
			wantSQL:  "SELECT id, deleted_at FROM course WHERE id IN ($1,$2) ORDER BY id",
			wantArgs: []any{entity.Key(1), entity.Key(2)},
		},
		{
			name:     "children with foreign keys",
			typ:      lms.TypeAssignmentComment,
			column:   "student_assignment_id",
			keys:     []entity.Key{5},
			wantSQL:  "SELECT id, deleted_at, parent_comment_id, student_assignment_id FROM assignment_comment WHERE student_assignment_id IN ($1) ORDER BY id",
			wantArgs: []any{entity.Key(5)},
		},
		{
			name:     "pass-through type has no deletion column",
			typ:      lms.TypeCourseNews,
			column:   "course_id",
			keys:     []entity.Key{1},
			wantSQL:  "SELECT id, course_id FROM course_news WHERE course_id IN ($1) ORDER BY id",
			wantArgs: []any{entity.Key(1)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, err := repo.typeDef(tt.typ)
			require.NoError(t, err)

			sql, args, err := repo.selectQuery(def, tt.column, tt.keys).ToSql()
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestRepo_UpdateSQL(t *testing.T) {
	repo := newTestRepo(t, 2)
	def, err := repo.typeDef(lms.TypeEnrollment)
	require.NoError(t, err)

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	sql, args, err := repo.updateQuery(def, "id", []entity.Key{10, 11}, &now, nil).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "UPDATE enrollment SET deleted_at = $1 WHERE id IN ($2,$3)", sql)
	require.Len(t, args, 3)
	assert.Equal(t, &now, args[0])

	sql, args, err = repo.updateQuery(def, "course_id", []entity.Key{1}, nil, nil).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "UPDATE enrollment SET deleted_at = $1 WHERE course_id IN ($2)", sql)
	assert.Nil(t, args[0])
}

func TestRepo_PredicateUpdateSkipsMaterializedKeys(t *testing.T) {
	repo := newTestRepo(t, 0)
	def, err := repo.typeDef(lms.TypeGrade)
	require.NoError(t, err)

	sql, args, err := repo.updateQuery(def, "enrollment_id", []entity.Key{10, 11}, nil, []entity.Key{100}).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "UPDATE grade SET deleted_at = $1 WHERE enrollment_id IN ($2,$3) AND id NOT IN ($4)", sql)
	assert.Equal(t, []any{(*time.Time)(nil), entity.Key(10), entity.Key(11), entity.Key(100)}, args)
}

func TestRepo_UnknownType(t *testing.T) {
	repo := newTestRepo(t, 0)
	_, err := repo.typeDef("missing")
	assert.Error(t, err)
}

func TestRepo_ToRecord(t *testing.T) {
	repo := newTestRepo(t, 0)
	def, err := repo.typeDef(lms.TypeAssignmentComment)
	require.NoError(t, err)

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec, err := repo.toRecord(def, map[string]any{
		"id":                    int64(7),
		"deleted_at":            ts,
		"student_assignment_id": int64(3),
		"parent_comment_id":     nil,
	})
	require.NoError(t, err)

	assert.Equal(t, entity.NewRef(lms.TypeAssignmentComment, 7), rec.Ref)
	require.NotNil(t, rec.DeletedAt)
	assert.True(t, ts.Equal(*rec.DeletedAt))

	parent, ok := rec.Parent("student_assignment_id")
	assert.True(t, ok)
	assert.Equal(t, entity.Key(3), parent)

	_, ok = rec.Parent("parent_comment_id")
	assert.False(t, ok)
	assert.Contains(t, rec.Refs, "parent_comment_id")

	_, err = repo.toRecord(def, map[string]any{"id": "x"})
	assert.Error(t, err)
}

func TestRepo_SelectColumnsFollowRegistry(t *testing.T) {
	r := metadata.NewRegistry()
	require.NoError(t, r.Register(metadata.TypeDef{Name: "doc", Table: "docs", KeyColumn: "doc_id", DeletedAtColumn: "removed_at"}))
	repo := New(r, nil, 10)

	def, _ := r.Type("doc")
	sql, _, err := repo.selectQuery(def, "doc_id", []entity.Key{1}).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT doc_id, removed_at FROM docs WHERE doc_id IN ($1) ORDER BY doc_id", sql)
}

func TestRepo_StateSQL(t *testing.T) {
	repo := newTestRepo(t, 0)

	def, err := repo.typeDef(lms.TypeGrade)
	require.NoError(t, err)
	sql, args, err := repo.stateQuery(def, 4).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT id, deleted_at FROM grade WHERE id = $1", sql)
	assert.Equal(t, []any{entity.Key(4)}, args)

	def, err = repo.typeDef(lms.TypeCourseNews)
	require.NoError(t, err)
	sql, _, err = repo.stateQuery(def, 4).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM course_news WHERE id = $1", sql)
}
