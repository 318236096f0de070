package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var migrationVersionRe = regexp.MustCompile(`^(\d+)_`)

// Dialect is the SQL flavour the index is stored in.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

var pragmaRe = regexp.MustCompile(`(?mi)^\s*PRAGMA\s+[^;]*;\s*$`)

// TransformSQL rewrites SQLite flavoured DDL for the target dialect. SQLite
// input is returned unchanged.
func TransformSQL(sql string, dialect Dialect) string {
	if dialect == DialectSQLite {
		return sql
	}
	sql = pragmaRe.ReplaceAllString(sql, "")
	sql = strings.ReplaceAll(sql, ") STRICT;", ");")
	sql = strings.ReplaceAll(sql, " BLOB", " BYTEA")
	sql = strings.ReplaceAll(sql, " INTEGER", " BIGINT")
	return sql
}

// migrations reads the embedded goose files and returns them as Go
// migrations with their SQL transformed for dialect.
func migrations(dialect Dialect) ([]*goose.Migration, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("reading embedded migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	var out []*goose.Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		match := migrationVersionRe.FindStringSubmatch(entry.Name())
		if match == nil {
			return nil, fmt.Errorf("migration %q has no version prefix", entry.Name())
		}
		version, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("migration %q has invalid version: %w", entry.Name(), err)
		}
		raw, err := migrationsFS.ReadFile(path.Join("migrations", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading migration %q: %w", entry.Name(), err)
		}

		upSQL, downSQL := splitGooseSQL(string(raw))
		out = append(out, goose.NewGoMigration(version,
			execFunc(TransformSQL(upSQL, dialect)),
			execFunc(TransformSQL(downSQL, dialect)),
		))
	}
	return out, nil
}

func execFunc(stmt string) *goose.GoFunc {
	if stmt == "" {
		return nil
	}
	return &goose.GoFunc{RunTx: func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, stmt)
		return err
	}}
}

// splitGooseSQL splits a goose annotated file into its up and down sections,
// dropping the StatementBegin/End markers.
func splitGooseSQL(content string) (upSQL, downSQL string) {
	var upLines, downLines []string
	var current *[]string
	for _, line := range strings.Split(content, "\n") {
		switch strings.TrimSpace(line) {
		case "-- +goose Up":
			current = &upLines
		case "-- +goose Down":
			current = &downLines
		case "-- +goose StatementBegin", "-- +goose StatementEnd":
		default:
			if current != nil {
				*current = append(*current, line)
			}
		}
	}
	return strings.TrimSpace(strings.Join(upLines, "\n")),
		strings.TrimSpace(strings.Join(downLines, "\n"))
}

func migrate(ctx context.Context, db *sql.DB, dialect Dialect) error {
	ms, err := migrations(dialect)
	if err != nil {
		return err
	}
	gooseDialect := goose.DialectSQLite3
	if dialect == DialectPostgres {
		gooseDialect = goose.DialectPostgres
	}
	provider, err := goose.NewProvider(gooseDialect, db, nil, goose.WithGoMigrations(ms...))
	if err != nil {
		return fmt.Errorf("creating migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}
