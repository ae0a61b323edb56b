package sqltrace_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/segtrace/internal/entity"
	"github.com/GriffinCanCode/segtrace/internal/header"
	"github.com/GriffinCanCode/segtrace/internal/instrument/sqltrace"
	"github.com/GriffinCanCode/segtrace/internal/recorder"
	"github.com/GriffinCanCode/segtrace/internal/testutil"
	"github.com/GriffinCanCode/segtrace/internal/tracectx"
)

var ordersDB = sqltrace.Command{
	DriverName:       "sqlserver",
	DataSource:       "db.example.com,1433",
	Database:         "orders",
	ServerVersion:    "15.0.2000",
	ConnectionString: "Server=db.example.com,1433;Database=orders;User Id=app;Password=hunter2",
	CommandText:      "SELECT * FROM orders WHERE id = @id",
}

func beginSegment(t *testing.T, rec *recorder.Recorder) (context.Context, *entity.Entity) {
	t.Helper()
	ctx, seg, err := rec.BeginSegment(context.Background(), "api", "", "",
		entity.SamplingResponse{Decision: header.Sampled}, time.Time{})
	require.NoError(t, err)
	return ctx, seg
}

func TestSubsegmentName(t *testing.T) {
	tests := []struct {
		dataSource string
		want       string
	}{
		{"db.example.com,1433", "orders@db.example.com"},
		{"db.example.com:5432", "orders@db.example.com"},
		{"db.example.com", "orders@db.example.com"},
		{`(localdb)\MSSQLLocalDB`, `orders@(localdb)\MSSQLLocalDB`},
	}

	for _, tt := range tests {
		t.Run(tt.dataSource, func(t *testing.T) {
			cmd := sqltrace.Command{Database: "orders", DataSource: tt.dataSource}
			assert.Equal(t, tt.want, cmd.SubsegmentName())
		})
	}
}

func TestScrubConnectionString(t *testing.T) {
	tests := []struct {
		name     string
		conn     string
		scrubbed string
		user     string
	}{
		{
			name:     "user id",
			conn:     "Server=db;Database=orders;User Id=app;Password=hunter2",
			scrubbed: "Server=db;Database=orders;User Id=app",
			user:     "app",
		},
		{
			name:     "username key case",
			conn:     "Host=db;USERNAME=svc;PWD=x",
			scrubbed: "Host=db;USERNAME=svc",
			user:     "svc",
		},
		{
			name:     "trusted connection",
			conn:     "Server=db;Integrated Security=true",
			scrubbed: "Server=db;Integrated Security=true",
		},
		{
			name:     "url dsn",
			conn:     "postgres://app:hunter2@db:5432/orders?sslmode=disable",
			scrubbed: "postgres://app@db:5432/orders?sslmode=disable",
			user:     "app",
		},
		{
			name:     "url dsn with query credentials",
			conn:     "sqlserver://db:1433?database=orders&password=x&user=app",
			scrubbed: "sqlserver://db:1433?database=orders&user=app",
			user:     "app",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scrubbed, user := sqltrace.ScrubConnectionString(tt.conn)
			assert.Equal(t, tt.scrubbed, scrubbed)
			assert.Equal(t, tt.user, user)
			assert.NotContains(t, scrubbed, "hunter2")
		})
	}
}

func TestDatabaseType(t *testing.T) {
	assert.Equal(t, "postgresql", sqltrace.DatabaseType("pgx"))
	assert.Equal(t, "postgresql", sqltrace.DatabaseType("github.com/lib/pq"))
	assert.Equal(t, "sqlserver", sqltrace.DatabaseType("mssql"))
	assert.Equal(t, "sqlite", sqltrace.DatabaseType("sqlite3"))
	assert.Equal(t, "mysql", sqltrace.DatabaseType("MySQL"))
	assert.Equal(t, "duckdb", sqltrace.DatabaseType("duckdb"))
}

func TestExecRecordsCommand(t *testing.T) {
	rec, capture := testutil.NewRecorder(t)
	tracer := sqltrace.New(rec, false)
	ctx, seg := beginSegment(t, rec)

	err := tracer.Exec(ctx, ordersDB, func(ctx context.Context) error {
		e, _ := tracectx.GetEntity(ctx)
		assert.Equal(t, "orders@db.example.com", e.Name)
		return nil
	})
	require.NoError(t, err)
	rec.EndEntity(seg)

	sub, ok := testutil.FindSubsegment(capture.Documents()[0], "orders@db.example.com")
	require.True(t, ok)
	assert.Equal(t, entity.NamespaceRemote, sub.Namespace)

	want := map[string]any{
		"database_type":     "sqlserver",
		"database_version":  "15.0.2000",
		"user":              "app",
		"connection_string": "Server=db.example.com,1433;Database=orders;User Id=app",
	}
	for k, v := range want {
		got, ok := testutil.Annotation(sub.SQL, k)
		require.True(t, ok, k)
		assert.Equal(t, v, got, k)
	}
	_, ok = testutil.Annotation(sub.SQL, "sanitized_query")
	assert.False(t, ok, "query text is off by default")
}

func TestExecCollectsQueries(t *testing.T) {
	rec, capture := testutil.NewRecorder(t)
	ctx, seg := beginSegment(t, rec)

	require.NoError(t, sqltrace.New(rec, true).Exec(ctx, ordersDB, func(context.Context) error { return nil }))
	rec.EndEntity(seg)

	sub := capture.Documents()[0].Subsegments[0]
	q, ok := testutil.Annotation(sub.SQL, "sanitized_query")
	require.True(t, ok)
	assert.Equal(t, ordersDB.CommandText, q)
}

func TestExecRecordsErrors(t *testing.T) {
	rec, capture := testutil.NewRecorder(t)
	ctx, seg := beginSegment(t, rec)

	deadlock := errors.New("deadlock victim")
	err := sqltrace.New(rec, false).Exec(ctx, ordersDB, func(context.Context) error { return deadlock })
	assert.ErrorIs(t, err, deadlock)
	rec.EndEntity(seg)

	sub := capture.Documents()[0].Subsegments[0]
	assert.True(t, sub.Fault)
	assert.Equal(t, "deadlock victim", sub.Cause.Exceptions[0].Message)
}

func TestNestedSQLIsSkipped(t *testing.T) {
	rec, capture := testutil.NewRecorder(t)
	tracer := sqltrace.New(rec, false)
	ctx, seg := beginSegment(t, rec)

	err := tracer.Exec(ctx, ordersDB, func(ctx context.Context) error {
		inner, sub, err := tracer.Begin(ctx, ordersDB)
		assert.NoError(t, err)
		assert.Nil(t, sub)
		assert.Equal(t, ctx, inner)
		return nil
	})
	require.NoError(t, err)
	rec.EndEntity(seg)

	doc := capture.Documents()[0]
	require.Len(t, doc.Subsegments, 1)
	assert.Empty(t, doc.Subsegments[0].Subsegments)
}

func TestExecWithoutSegment(t *testing.T) {
	rec, _ := testutil.NewRecorder(t)
	ran := false
	err := sqltrace.New(rec, false).Exec(context.Background(), ordersDB, func(context.Context) error {
		ran = true
		return nil
	})
	assert.NoError(t, err)
	assert.True(t, ran)

	strict, _ := testutil.NewRecorder(t, func(o *recorder.Options) { o.Policy = tracectx.Strict })
	err = sqltrace.New(strict, false).Exec(context.Background(), ordersDB, func(context.Context) error {
		t.Fatal("must not run")
		return nil
	})
	assert.ErrorIs(t, err, tracectx.ErrEntityNotAvailable)
}
