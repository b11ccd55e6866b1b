package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/local/*.sql migrations/cloud/*.sql
var migrations embed.FS

// Schema selects which embedded migration set to apply.
type Schema string

const (
	SchemaLocal Schema = "local"
	SchemaCloud Schema = "cloud"
)

const pragmas = "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

// Open opens the daemon's SQLite database at the given path and runs migrations.
func Open(dbPath string) (*sql.DB, error) {
	return OpenSchema(dbPath, SchemaLocal)
}

// OpenCloud opens the cloud service database.
func OpenCloud(dbPath string) (*sql.DB, error) {
	return OpenSchema(dbPath, SchemaCloud)
}

func OpenSchema(dbPath string, schema Schema) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath+pragmas)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := runMigrations(db, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

func runMigrations(db *sql.DB, schema Schema) error {
	fsys, err := fs.Sub(migrations, "migrations/"+string(schema))
	if err != nil {
		return fmt.Errorf("migrations for %s: %w", schema, err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("new provider: %w", err)
	}

	if _, err := provider.Up(context.Background()); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}
