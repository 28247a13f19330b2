package tokenstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

const createTableSQL = `CREATE TABLE IF NOT EXISTS auth_tokens (
	instance TEXT NOT NULL,
	name TEXT NOT NULL,
	value TEXT NOT NULL,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (instance, name)
)`

const (
	selectTokensSQL = `SELECT name, value FROM auth_tokens WHERE instance = ?`
	deleteTokensSQL = `DELETE FROM auth_tokens WHERE instance = ?`
	insertTokenSQL  = `INSERT INTO auth_tokens (instance, name, value) VALUES (?, ?, ?)`
)

// SQLStore keeps the pair as rows of a key/value table, one row per entry, scoped by instance.
type SQLStore struct {
	db       *sql.DB
	instance string
}

// NewSQLStore wraps an open database. Call Migrate once before use on a fresh database.
func NewSQLStore(db *sql.DB, instance string) (*SQLStore, error) {
	if db == nil {
		return nil, errors.New("database handle required")
	}
	instance = strings.TrimSpace(instance)
	if instance == "" {
		instance = defaultAppName
	}
	return &SQLStore{db: db, instance: instance}, nil
}

// OpenSQLite opens (creating if needed) a SQLite database file and migrates it.
func OpenSQLite(ctx context.Context, path, instance string) (*SQLStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer at a time; concurrent Sets queue on the pool instead of failing with SQLITE_BUSY
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store, err := NewSQLStore(db, instance)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Migrate creates the token table.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("migrate auth_tokens: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) Get(ctx context.Context) (Pair, error) {
	rows, err := s.db.QueryContext(ctx, selectTokensSQL, s.instance)
	if err != nil {
		return Pair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	entries := make(map[string]string, 3)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return Pair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		entries[name] = value
	}
	if err := rows.Err(); err != nil {
		return Pair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return fromEntries(entries[KeyAccessToken], entries[KeyRefreshToken], entries[KeyTokenType])
}

func (s *SQLStore) Set(ctx context.Context, pair Pair) error {
	if err := pair.Validate(); err != nil {
		return err
	}
	pair = pair.Normalized()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, deleteTokensSQL, s.instance); err != nil {
			return err
		}
		for _, kv := range [][2]string{
			{KeyAccessToken, pair.AccessToken},
			{KeyRefreshToken, pair.RefreshToken},
			{KeyTokenType, pair.TokenType},
		} {
			if _, err := tx.ExecContext(ctx, insertTokenSQL, s.instance, kv[0], kv[1]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, deleteTokensSQL, s.instance); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *SQLStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrStoreUnavailable, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrStoreUnavailable, err)
	}
	return nil
}
