package accounts

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var (
	//go:embed migrations
	migrationsFS embed.FS
)

// SQLiteStore is a Store backed by a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// initSchema applies the embedded SQL migrations in lexicographical order.
func initSchema(ctx context.Context, db *sql.DB) error {
	return fs.WalkDir(migrationsFS, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		content, readError := migrationsFS.ReadFile(path)
		if readError != nil {
			return fmt.Errorf("error reading SQL file: %w", readError)
		}

		slog.Debug("Running migration", "path", path)
		_, execError := db.ExecContext(ctx, string(content))
		return execError
	})
}

// OpenSQLiteStore opens (creating if needed) the database at dbPath.
func OpenSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, errors.New("dbPath must not be empty")
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// WithTransaction runs a function within a database transaction.
func WithTransaction(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return fmt.Errorf("error executing transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (Account, error) {
	a := Account{ID: id}
	err := s.db.QueryRowContext(ctx,
		`SELECT endpoint, bucket, region, prefix, access_key, secret_key FROM accounts WHERE id = ?`,
		id,
	).Scan(&a.Endpoint, &a.Bucket, &a.Region, &a.Prefix, &a.AccessKey, &a.SecretKey)

	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("query account %q: %w", id, err)
	}
	return a, nil
}

func (s *SQLiteStore) Put(ctx context.Context, account Account) error {
	if err := account.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts(id, endpoint, bucket, region, prefix, access_key, secret_key, created_at, modified_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			endpoint = excluded.endpoint,
			bucket = excluded.bucket,
			region = excluded.region,
			prefix = excluded.prefix,
			access_key = excluded.access_key,
			secret_key = excluded.secret_key,
			modified_at = excluded.modified_at`,
		account.ID, account.Endpoint, account.Bucket, account.Region, account.Prefix,
		account.AccessKey, account.SecretKey, now, now,
	)
	if err != nil {
		return fmt.Errorf("save account %q: %w", account.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete account %q: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, endpoint, bucket, region, prefix, access_key, secret_key FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var result []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Endpoint, &a.Bucket, &a.Region, &a.Prefix, &a.AccessKey, &a.SecretKey); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// Import saves every account in a single transaction.
func (s *SQLiteStore) Import(ctx context.Context, accounts []Account) error {
	for _, a := range accounts {
		if err := a.Validate(); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	return WithTransaction(ctx, s.db, func(tx *sql.Tx) error {
		for _, a := range accounts {
			_, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO accounts(id, endpoint, bucket, region, prefix, access_key, secret_key, created_at, modified_at)
				VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				a.ID, a.Endpoint, a.Bucket, a.Region, a.Prefix, a.AccessKey, a.SecretKey, now, now,
			)
			if err != nil {
				return fmt.Errorf("import account %q: %w", a.ID, err)
			}
		}
		return nil
	})
}
