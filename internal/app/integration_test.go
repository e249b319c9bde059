//go:build integration

package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"softcascade/internal/config"
	"softcascade/internal/core/apperror"
	appctx "softcascade/internal/core/context"
	"softcascade/internal/core/entity"
	"softcascade/internal/domain/lms"
	"softcascade/internal/infrastructure/notify"
)

func startApp(t *testing.T) (context.Context, *App) {
	t.Helper()
	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("cascade"),
		tcpostgres.WithUsername("cascade"),
		tcpostgres.WithPassword("cascade"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cfg := &config.Config{
		AppEnv:             "test",
		LogLevel:           "debug",
		DatabaseURL:        dsn,
		DBMaxConns:         4,
		DBMinConns:         1,
		DBMaxConnLifetime:  time.Hour,
		TxIsolation:        "read_committed",
		CascadeFastPath:    true,
		CascadeBatchSize:   2,
		AuditEnabled:       true,
		AuditFilter:        `entity != "grade"`,
		OutboxEnabled:      true,
		NotifyChannel:      notify.DefaultChannel,
		OutboxPollInterval: time.Second,
		OutboxBatchSize:    10,
	}

	a, err := Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	require.NoError(t, a.Migrate(ctx))
	require.NoError(t, a.Seed(ctx))

	ctx = appctx.WithActor(ctx, &appctx.Actor{UserID: "42", Email: "ops@example.com", Source: "test"})
	return appctx.EnsureTrace(ctx), a
}

func deletedAt(t *testing.T, ctx context.Context, a *App, table string, key int64) *time.Time {
	t.Helper()
	var ts *time.Time
	err := a.Pool.QueryRow(ctx, "SELECT deleted_at FROM "+table+" WHERE id = $1", key).Scan(&ts)
	require.NoError(t, err, "%s#%d", table, key)
	return ts
}

func count(t *testing.T, ctx context.Context, a *App, sql string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, a.Pool.QueryRow(ctx, sql, args...).Scan(&n))
	return n
}

var course1Rows = map[string][]int64{
	"course":             {1},
	"course_teacher":     {1},
	"course_class":       {1, 2},
	"enrollment":         {1, 2},
	"grade":              {1, 2},
	"assignment":         {1},
	"graded_assignment":  {1},
	"student_assignment": {1, 2},
	"assignment_comment": {1, 2},
	"news_attachment":    {1},
}

var course2Rows = map[string][]int64{
	"course":         {2},
	"course_teacher": {2},
	"enrollment":     {3},
	"grade":          {3},
	"assignment":     {2},
}

func TestIntegration_DeleteAndRestoreCourse(t *testing.T) {
	ctx, a := startApp(t)

	res, err := a.Cascade.Delete(ctx, entity.NewRef(lms.TypeCourse, 1))
	require.NoError(t, err)
	require.NotNil(t, res.DeletedAt)

	for table, keys := range course1Rows {
		for _, k := range keys {
			ts := deletedAt(t, ctx, a, table, k)
			require.NotNil(t, ts, "%s#%d", table, k)
			assert.True(t, res.DeletedAt.Equal(*ts), "%s#%d", table, k)
		}
	}
	for table, keys := range course2Rows {
		for _, k := range keys {
			assert.Nil(t, deletedAt(t, ctx, a, table, k), "%s#%d", table, k)
		}
	}
	assert.Equal(t, 1, count(t, ctx, a, "SELECT count(*) FROM course_news WHERE id = 1"))

	// Auto-created junction rows are neither published nor audited.
	assert.Equal(t, 14, count(t, ctx, a, "SELECT count(*) FROM sys_outbox WHERE event_type = $1", notify.EventSoftDeleted))
	assert.Zero(t, count(t, ctx, a, "SELECT count(*) FROM sys_outbox WHERE aggregate_type = 'course_teacher'"))
	assert.Equal(t, 12, count(t, ctx, a, "SELECT count(*) FROM sys_audit WHERE action = 'soft_delete'"))
	assert.Zero(t, count(t, ctx, a, "SELECT count(*) FROM sys_audit WHERE entity_type = 'grade'"))

	history, err := a.Audit.GetEntityHistory(ctx, lms.TypeCourse, "1", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "42", history[0].UserID)
	assert.Equal(t, "ops@example.com", history[0].UserEmail)

	_, err = a.Cascade.Restore(ctx, entity.NewRef(lms.TypeCourse, 1))
	require.NoError(t, err)
	for table, keys := range course1Rows {
		for _, k := range keys {
			assert.Nil(t, deletedAt(t, ctx, a, table, k), "%s#%d", table, k)
		}
	}
	assert.Equal(t, 14, count(t, ctx, a, "SELECT count(*) FROM sys_outbox WHERE event_type = $1", notify.EventRestored))
}

func TestIntegration_PreviewDoesNotMutate(t *testing.T) {
	ctx, a := startApp(t)

	plan, err := a.Cascade.Preview(ctx, "delete", entity.NewRef(lms.TypeEnrollment, 1))
	require.NoError(t, err)
	require.Len(t, plan.Batches, 2)
	assert.Equal(t, lms.TypeGrade, plan.Batches[0].Type)
	assert.Equal(t, lms.TypeEnrollment, plan.Batches[1].Type)

	assert.Nil(t, deletedAt(t, ctx, a, "enrollment", 1))
	assert.Zero(t, count(t, ctx, a, "SELECT count(*) FROM sys_outbox"))
}

func TestIntegration_DanglingReferenceRollsBack(t *testing.T) {
	ctx, a := startApp(t)

	// A reply whose parent comment no longer exists.
	_, err := a.Pool.Exec(ctx, "ALTER TABLE assignment_comment DROP CONSTRAINT assignment_comment_parent_comment_id_fkey")
	require.NoError(t, err)
	_, err = a.Pool.Exec(ctx, "UPDATE assignment_comment SET parent_comment_id = 999 WHERE id = 2")
	require.NoError(t, err)

	_, err = a.Cascade.Delete(ctx, entity.NewRef(lms.TypeCourse, 1))
	require.Error(t, err)
	assert.True(t, apperror.IsGraphIntegrity(err), err.Error())

	assert.Nil(t, deletedAt(t, ctx, a, "course", 1))
	assert.Zero(t, count(t, ctx, a, "SELECT count(*) FROM sys_outbox"))
}

func TestIntegration_BulkBatching(t *testing.T) {
	ctx, a := startApp(t)

	n, err := a.SeedBulk(ctx, 25)
	require.NoError(t, err)
	require.EqualValues(t, 25, n)

	res, err := a.Cascade.Delete(ctx, entity.NewRef(lms.TypeCourse, 1))
	require.NoError(t, err)
	assert.EqualValues(t, 27, res.Affected[lms.TypeEnrollment])
	assert.EqualValues(t, 27, res.Affected[lms.TypeGrade])
	assert.Zero(t, count(t, ctx, a, "SELECT count(*) FROM grade WHERE enrollment_id >= 1000000 AND deleted_at IS NULL"))
}
