// Package journal persists upload outcomes in a local SQLite database so the
// CLI can list past uploads and re-drive transient failures later.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ozolins/attachup/internal/dbx"
)

// Upload statuses.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Record is one journaled upload.
type Record struct {
	ID          string
	LocalPath   string
	Protocol    string // "v2" or "v3"
	StorageKey  string
	CDN         int
	KeyHex      string
	DigestHex   string
	Status      string
	CreatedAt   time.Time
	CompletedAt sql.NullTime
}

type Repository interface {
	Insert(ctx context.Context, r *Record) error
	MarkCompleted(ctx context.Context, id, storageKey string, cdn int, keyHex, digestHex string, completedAt time.Time) error
	MarkFailed(ctx context.Context, id string) error
	List(ctx context.Context) ([]*Record, error)
}

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Insert(ctx context.Context, rec *Record) error {
	query := `INSERT INTO uploads (id, local_path, protocol, status) VALUES (?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, rec.ID, rec.LocalPath, rec.Protocol, StatusPending)
	if err != nil {
		return fmt.Errorf("failed to insert upload record: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) MarkCompleted(ctx context.Context, id, storageKey string, cdn int, keyHex, digestHex string, completedAt time.Time) error {
	query := `UPDATE uploads
		SET status = ?, storage_key = ?, cdn = ?, key_hex = ?, digest_hex = ?, completed_at = ?
		WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, StatusCompleted, storageKey, cdn, keyHex, digestHex, completedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark upload completed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *SQLiteRepository) MarkFailed(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE uploads SET status = ? WHERE id = ?`, StatusFailed, id)
	if err != nil {
		return fmt.Errorf("failed to mark upload failed: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, local_path, protocol, storage_key, cdn, key_hex, digest_hex, status, created_at, completed_at
		FROM uploads ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	defer rows.Close()

	var result []*Record
	for rows.Next() {
		rec := &Record{}
		if err := rows.Scan(&rec.ID, &rec.LocalPath, &rec.Protocol, &rec.StorageKey, &rec.CDN,
			&rec.KeyHex, &rec.DigestHex, &rec.Status, &rec.CreatedAt, &rec.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan upload row: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) DeleteFailedByPath(ctx context.Context, localPath string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM uploads WHERE local_path = ? AND status = ?`, localPath, StatusFailed)
	if err != nil {
		return fmt.Errorf("failed to delete failed uploads: %w", err)
	}
	return nil
}

// ReplaceFailed journals a new pending upload, dropping earlier failed
// attempts for the same local path in the same transaction.
func ReplaceFailed(ctx context.Context, db *sql.DB, rec *Record) error {
	return dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		r := NewSQLiteRepository(tx)
		if err := r.DeleteFailedByPath(ctx, rec.LocalPath); err != nil {
			return err
		}
		return r.Insert(ctx, rec)
	})
}
