// cmd/migrate/main.go
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/hexamarkco/kifersaude-sub002/internal/config"
	"github.com/hexamarkco/kifersaude-sub002/internal/db"
	"github.com/hexamarkco/kifersaude-sub002/internal/logger"
)

func main() {
	dir := flag.String("dir", "migrations", "directory holding *.sql migration files")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()
	conn, err := db.Open(ctx, cfg.DSN())
	if err != nil {
		log.Fatal("Failed to connect", "error", err)
	}
	defer conn.Close()

	files, err := listMigrations(*dir)
	if err != nil {
		log.Fatal("Failed to list migrations", "dir", *dir, "error", err)
	}
	applied, err := apply(ctx, conn, files)
	if err != nil {
		log.Fatal("Migration failed", "error", err)
	}
	log.Info("Migrations complete", "applied", applied, "total", len(files))
}

// listMigrations returns the *.sql files in dir in lexical order.
func listMigrations(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no migrations in %s", dir)
	}
	sort.Strings(files)
	return files, nil
}

// apply runs every file not yet recorded in schema_migrations, each in its
// own transaction.
func apply(ctx context.Context, conn *sql.DB, files []string) (int, error) {
	if _, err := conn.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		name TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := 0
	for _, file := range files {
		name := filepath.Base(file)
		var exists bool
		if err := conn.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = $1)`, name).Scan(&exists); err != nil {
			return applied, fmt.Errorf("check %s: %w", name, err)
		}
		if exists {
			continue
		}

		content, err := os.ReadFile(file)
		if err != nil {
			return applied, fmt.Errorf("failed to read %s: %w", file, err)
		}
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return applied, err
		}
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			tx.Rollback()
			return applied, fmt.Errorf("failed to execute %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
			tx.Rollback()
			return applied, fmt.Errorf("record %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return applied, fmt.Errorf("commit %s: %w", name, err)
		}
		applied++
	}
	return applied, nil
}
