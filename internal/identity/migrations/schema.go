package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaV4 is the oldest supported layout. Logos were stored as blobs.
var schemaV4 = []string{
	`CREATE TABLE identityprovider (_id INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL, displayName TEXT NOT NULL, identifier TEXT NOT NULL, authenticationUrl TEXT NOT NULL, ocraSuite TEXT NOT NULL, infoUrl TEXT, logo BLOB)`,
	`CREATE TABLE identity (_id INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL, displayName TEXT NOT NULL, identifier TEXT NOT NULL, identityProvider INTEGER NOT NULL, blocked INTEGER NOT NULL DEFAULT 0, sortIndex INTEGER NOT NULL)`,
}

// CreateSchema creates the identity store schema exactly as it looked at
// version, including the deprecated version 9 layout. db must be empty.
func CreateSchema(ctx context.Context, db *sql.DB, version int) error {
	statements := append([]string(nil), schemaV4...)
	if version != OldestVersion {
		path, err := Plan(OldestVersion, version, All())
		if err != nil {
			return err
		}
		for _, step := range path {
			statements = append(statements, step.Statements...)
		}
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return fmt.Errorf("disable foreign keys: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), "PRAGMA foreign_keys = ON")
	}()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema creation: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := execAll(ctx, tx, statements); err != nil {
		return fmt.Errorf("create schema v%d: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema v%d: %w", version, err)
	}
	return nil
}
