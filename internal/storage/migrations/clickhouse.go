package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"strings"
)

// ChExecutor is the slice of the ClickHouse driver API the migration
// runner needs. driver.Conn and the clickhouse.Conn wrapper both
// satisfy it.
type ChExecutor interface {
	Exec(ctx context.Context, query string, args ...any) error
}

// RunClickhouseMigrations applies all embedded SQL files in lexical
// order. ClickHouse does not support multi-statement scripts, so each
// file holds exactly one statement.
func RunClickhouseMigrations(ctx context.Context, db ChExecutor) error {
	files, err := listSQL(ClickhouseFS, "clickhouse")
	if err != nil {
		return fmt.Errorf("read embedded clickhouse migrations: %w", err)
	}

	for _, file := range files {
		data, err := fs.ReadFile(ClickhouseFS, "clickhouse/"+file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		stmt := strings.TrimSpace(string(data))
		if stmt == "" {
			continue
		}
		if err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration %s: %w", file, err)
		}
	}
	return nil
}
