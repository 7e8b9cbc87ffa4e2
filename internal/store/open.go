package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Open picks a backend from the database URL:
//
//	postgres://... or postgresql://...  → Postgres (lib/pq)
//	sqlite://path, file:path, *.db      → SQLite (modernc)
//	""                                  → in-memory (development only)
//
// The schema is created when missing.
func Open(ctx context.Context, databaseURL string) (Repository, error) {
	raw := strings.TrimSpace(databaseURL)
	var (
		repo Repository
		err  error
	)
	switch {
	case raw == "":
		repo = NewMemoryRepository()
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		repo, err = openPostgres(ctx, raw)
	case strings.HasPrefix(raw, "sqlite://"):
		repo, err = OpenSQLite(ctx, strings.TrimPrefix(raw, "sqlite://"))
	case strings.HasPrefix(raw, "file:"), strings.HasSuffix(raw, ".db"), strings.HasSuffix(raw, ".sqlite"):
		repo, err = OpenSQLite(ctx, raw)
	default:
		return nil, fmt.Errorf("unsupported DATABASE_URL scheme: %q", raw)
	}
	if err != nil {
		return nil, err
	}
	if err := repo.Migrate(ctx); err != nil {
		_ = repo.Close()
		return nil, err
	}
	return repo, nil
}

func openPostgres(ctx context.Context, databaseURL string) (*repository, error) {
	db, err := sql.Open(postgresDialect.driver, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return newSQLRepository(db, postgresDialect), nil
}

// OpenSQLite opens (or creates) a SQLite database file. The schema is not migrated here.
func OpenSQLite(ctx context.Context, path string) (Repository, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if !strings.HasPrefix(path, "file:") {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open(sqliteDialect.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// single writer keeps SQLITE_BUSY away
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return newSQLRepository(db, sqliteDialect), nil
}
