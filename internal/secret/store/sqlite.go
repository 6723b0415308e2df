package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tiqr/internal/secret"
	"tiqr/pkg/platform/sentinel"
)

// SQLiteStore keeps encrypted secrets in a SQLite table. Open the database
// with a password to add file-level encryption on top of the per-secret wrap.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates the secrets table if needed.
func NewSQLite(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS secrets
		( id TEXT PRIMARY KEY
		, value BLOB NOT NULL
		)`)
	if err != nil {
		return nil, fmt.Errorf("create secrets table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Put(ctx context.Context, id secret.ID, blob []byte) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO secrets (id, value) VALUES (?, ?)`, string(id), blob)
	if err != nil {
		return fmt.Errorf("put secret: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id secret.ID) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM secrets WHERE id = ?`, string(id)).Scan(&blob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get secret: %w", err)
	}
	return blob, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id secret.ID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM secrets WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("delete secret: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete secret rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
