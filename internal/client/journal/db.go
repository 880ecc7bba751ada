package journal

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"

	"github.com/ozolins/attachup/internal/client/journal/migrations"
	"github.com/ozolins/attachup/internal/filex"
)

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded journal migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}

// InitDatabase opens the SQLite journal at dsn, applies migrations and
// returns a ready repository. The caller owns closing the returned DB.
func InitDatabase(ctx context.Context, dsn string) (*sql.DB, *SQLiteRepository, error) {
	if _, err := filex.EnsureParentDir(dsn); err != nil {
		return nil, nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, err
	}
	if err := RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, NewSQLiteRepository(db), nil
}
