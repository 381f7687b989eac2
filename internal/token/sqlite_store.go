// SPDX-License-Identifier: MIT

package token

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mesaops/mesad/internal/persistence/sqlite"
)

const schemaVersion = 1

// SqliteStore persists token records in SQLite so issued QR codes survive
// daemon restarts.
type SqliteStore struct {
	db *sql.DB
}

// NewSqliteStore opens (or creates) the token database at dbPath.
func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}

	s := &SqliteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("token store: migration failed: %w", err)
	}
	return s, nil
}

func (s *SqliteStore) migrate() error {
	var current int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return err
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS tokens (
		token TEXT PRIMARY KEY,
		table_id TEXT NOT NULL,
		table_number INTEGER NOT NULL,
		issued_at_ms INTEGER NOT NULL,
		expires_at_ms INTEGER,
		revoked INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_tokens_table ON tokens(table_id, revoked);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SqliteStore) GetByToken(ctx context.Context, tok string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT token, table_id, table_number, issued_at_ms, expires_at_ms, revoked
		 FROM tokens WHERE token = ?`, tok)
	return scanRecord(row)
}

func (s *SqliteStore) ActiveByTable(ctx context.Context, tableID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT token, table_id, table_number, issued_at_ms, expires_at_ms, revoked
		 FROM tokens WHERE table_id = ? AND revoked = 0
		 ORDER BY issued_at_ms DESC LIMIT 1`, tableID)
	return scanRecord(row)
}

func (s *SqliteStore) Put(ctx context.Context, rec Record) error {
	var expires sql.NullInt64
	if rec.ExpiresAt != nil {
		expires = sql.NullInt64{Int64: rec.ExpiresAt.UnixMilli(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tokens (token, table_id, table_number, issued_at_ms, expires_at_ms, revoked)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Token, rec.TableID, rec.TableNumber, rec.IssuedAt.UnixMilli(), expires, boolToInt(rec.Revoked))
	if err != nil {
		return fmt.Errorf("token store: put: %w", err)
	}
	return nil
}

func (s *SqliteStore) Revoke(ctx context.Context, tableID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tokens SET revoked = 1 WHERE table_id = ? AND revoked = 0`, tableID)
	if err != nil {
		return fmt.Errorf("token store: revoke: %w", err)
	}
	return nil
}

func (s *SqliteStore) Close() error {
	return s.db.Close()
}

func scanRecord(row *sql.Row) (*Record, error) {
	var rec Record
	var issuedMs int64
	var expiresMs sql.NullInt64
	var revoked int

	err := row.Scan(&rec.Token, &rec.TableID, &rec.TableNumber, &issuedMs, &expiresMs, &revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("token store: scan: %w", err)
	}

	rec.IssuedAt = time.UnixMilli(issuedMs)
	if expiresMs.Valid {
		t := time.UnixMilli(expiresMs.Int64)
		rec.ExpiresAt = &t
	}
	rec.Revoked = revoked != 0
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ Store = (*SqliteStore)(nil)
