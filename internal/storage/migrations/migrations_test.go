package migrations

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPgExecutor struct {
	stmts []string
}

func (r *recordingPgExecutor) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	r.stmts = append(r.stmts, sql)
	return pgconn.CommandTag{}, nil
}

type recordingChExecutor struct {
	stmts []string
}

func (r *recordingChExecutor) Exec(_ context.Context, query string, _ ...any) error {
	r.stmts = append(r.stmts, query)
	return nil
}

func TestRunPostgresMigrationsAppliesEmbeddedSchema(t *testing.T) {
	db := &recordingPgExecutor{}
	require.NoError(t, RunPostgresMigrations(context.Background(), db))

	require.NotEmpty(t, db.stmts)
	assert.Contains(t, db.stmts[0], "route_outcomes")
}

func TestRunClickhouseMigrationsAppliesEmbeddedSchema(t *testing.T) {
	db := &recordingChExecutor{}
	require.NoError(t, RunClickhouseMigrations(context.Background(), db))

	require.NotEmpty(t, db.stmts)
	assert.Contains(t, db.stmts[0], "price_snapshots")
	for _, stmt := range db.stmts {
		assert.NotEmpty(t, strings.TrimSpace(stmt))
	}
}
