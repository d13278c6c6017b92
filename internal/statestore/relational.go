package statestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/book-expert/tts-orchestrator/internal/core"

	// Relational drivers: pure-Go SQLite and PostgreSQL via pgx.
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	// DriverSQLite selects the embedded SQLite backend.
	DriverSQLite = "sqlite"
	// DriverPostgres selects PostgreSQL through the pgx stdlib driver.
	DriverPostgres = "pgx"
)

const createRecordsTable = `
CREATE TABLE IF NOT EXISTS state_records (
	collection TEXT NOT NULL,
	key        TEXT NOT NULL,
	doc        TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (collection, key)
)`

const upsertRecord = `
INSERT INTO state_records (collection, key, doc, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (collection, key)
DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`

// RelationalStore implements core.StateStore on a SQL database. The schema
// is one generic table keyed by (collection, key) with the record stored as
// a JSON document, which keeps the backend observably identical to the file
// store under the shared contract.
type RelationalStore struct {
	db     *sql.DB
	driver string
}

// NewRelationalStore opens the database named by driver and dsn and creates
// the schema if it is absent.
func NewRelationalStore(ctx context.Context, driver, dsn string) (*RelationalStore, error) {
	database, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	store := &RelationalStore{db: database, driver: driver}

	setupErr := store.setup(ctx)
	if setupErr != nil {
		_ = database.Close()

		return nil, setupErr
	}

	return store, nil
}

func (s *RelationalStore) setup(ctx context.Context) error {
	if s.driver == DriverSQLite {
		// SQLite allows one writer; a single pooled connection plus a busy
		// timeout avoids SQLITE_BUSY under concurrent transactions.
		s.db.SetMaxOpenConns(1)

		_, pragmaErr := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000")
		if pragmaErr != nil {
			return fmt.Errorf("failed to set busy timeout: %w", pragmaErr)
		}
	}

	_, err := s.db.ExecContext(ctx, createRecordsTable)
	if err != nil {
		return fmt.Errorf("failed to create state_records table: %w", err)
	}

	return nil
}

// Get returns the document stored under (collection, key).
func (s *RelationalStore) Get(ctx context.Context, collection, key string) ([]byte, error) {
	return relationalGet(ctx, s.db, collection, key)
}

// Put stores the document under (collection, key), overwriting any
// previous value.
func (s *RelationalStore) Put(ctx context.Context, collection, key string, doc []byte) error {
	_, err := s.db.ExecContext(ctx, upsertRecord, collection, key, string(doc), nowUTC())
	if err != nil {
		return fmt.Errorf("failed to put %s/%s: %w", collection, key, err)
	}

	return nil
}

// Delete removes the record under (collection, key).
func (s *RelationalStore) Delete(ctx context.Context, collection, key string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM state_records WHERE collection = $1 AND key = $2", collection, key)
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", collection, key, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to count deleted rows: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("%s/%s: %w", collection, key, core.ErrNotFound)
	}

	return nil
}

// List returns a snapshot of the collection.
func (s *RelationalStore) List(ctx context.Context, collection string) (map[string][]byte, error) {
	return relationalList(ctx, s.db, collection)
}

// Transact runs fn inside one serializable database transaction.
func (s *RelationalStore) Transact(ctx context.Context, fn func(tx core.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
		ReadOnly:  false,
	})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txView := &relationalTx{ctx: ctx, tx: sqlTx}

	fnErr := fn(txView)
	if fnErr != nil {
		_ = sqlTx.Rollback()

		if errors.Is(fnErr, core.ErrNotFound) {
			return fnErr
		}

		return fmt.Errorf("%w: %w", core.ErrTransactionAborted, fnErr)
	}

	commitErr := sqlTx.Commit()
	if commitErr != nil {
		return fmt.Errorf("%w: commit failed: %w", core.ErrTransactionAborted, commitErr)
	}

	return nil
}

// Close closes the underlying connection pool.
func (s *RelationalStore) Close() error {
	err := s.db.Close()
	if err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type relationalTx struct {
	ctx context.Context
	tx  *sql.Tx
}

func (t *relationalTx) Get(collection, key string) ([]byte, error) {
	return relationalGet(t.ctx, t.tx, collection, key)
}

func (t *relationalTx) Put(collection, key string, doc []byte) error {
	_, err := t.tx.ExecContext(t.ctx, upsertRecord, collection, key, string(doc), nowUTC())
	if err != nil {
		return fmt.Errorf("failed to put %s/%s: %w", collection, key, err)
	}

	return nil
}

func (t *relationalTx) Delete(collection, key string) error {
	result, err := t.tx.ExecContext(t.ctx,
		"DELETE FROM state_records WHERE collection = $1 AND key = $2", collection, key)
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", collection, key, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to count deleted rows: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("%s/%s: %w", collection, key, core.ErrNotFound)
	}

	return nil
}

func (t *relationalTx) List(collection string) (map[string][]byte, error) {
	return relationalList(t.ctx, t.tx, collection)
}

func relationalGet(ctx context.Context, q querier, collection, key string) ([]byte, error) {
	var doc string

	err := q.QueryRowContext(ctx,
		"SELECT doc FROM state_records WHERE collection = $1 AND key = $2",
		collection, key).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s/%s: %w", collection, key, core.ErrNotFound)
		}

		return nil, fmt.Errorf("failed to get %s/%s: %w", collection, key, err)
	}

	return []byte(doc), nil
}

func relationalList(ctx context.Context, q querier, collection string) (map[string][]byte, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT key, doc FROM state_records WHERE collection = $1", collection)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}

	defer func() { _ = rows.Close() }()

	records := make(map[string][]byte)

	for rows.Next() {
		var key, doc string

		scanErr := rows.Scan(&key, &doc)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", collection, scanErr)
		}

		records[key] = []byte(doc)
	}

	rowsErr := rows.Err()
	if rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", collection, rowsErr)
	}

	return records, nil
}

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// normalizeDriver maps config aliases onto registered driver names.
func normalizeDriver(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", DriverSQLite, "sqlite3":
		return DriverSQLite, nil
	case DriverPostgres, "postgres", "postgresql":
		return DriverPostgres, nil
	default:
		return "", fmt.Errorf("%w: '%s'", ErrUnknownDriver, name)
	}
}
