package localstore

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"github.com/genzilabs/monger-client/internal/domain"
)

//go:embed migrations
var migrationsFS embed.FS

// DBTX is satisfied by both *sql.DB and *sql.Tx, so the same queries run
// standalone or inside a transaction scope.
type DBTX interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// SQLite is the durable Repository implementation.
type SQLite struct {
	db DBTX
}

// Open creates/opens the sqlite database at path and runs migrations.
func Open(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, &domain.ErrStorage{Op: "open", Err: err}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, &domain.ErrStorage{Op: "open", Err: err}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &domain.ErrStorage{Op: "open", Err: err}
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, &domain.ErrStorage{Op: "migrate", Err: err}
	}

	return &SQLite{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("set up migrate driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("set up migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// execTx runs fn against a transaction-scoped store and commits, rolling
// back on error.
func (s *SQLite) execTx(fn func(*SQLite) error) error {
	db, ok := s.db.(*sql.DB)
	if !ok {
		return &domain.ErrStorage{Op: "tx", Err: errors.New("store is already in a transaction")}
	}

	tx, err := db.Begin()
	if err != nil {
		return &domain.ErrStorage{Op: "tx.begin", Err: err}
	}

	if err := fn(&SQLite{db: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return &domain.ErrStorage{Op: "tx.rollback", Err: fmt.Errorf("tx err: %v, rb err: %v", err, rbErr)}
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return &domain.ErrStorage{Op: "tx.commit", Err: err}
	}
	return nil
}

// Reset drops all cached data. Schema stays in place.
func (s *SQLite) Reset() error {
	return s.execTx(func(tx *SQLite) error {
		for _, table := range []string{"pending_changes", "sync_meta", "books", "categories", "pockets", "transactions"} {
			if _, err := tx.db.Exec("DELETE FROM " + table); err != nil {
				return &domain.ErrStorage{Op: "reset", Err: err}
			}
		}
		return nil
	})
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	if db, ok := s.db.(*sql.DB); ok {
		return db.Close()
	}
	return nil
}
