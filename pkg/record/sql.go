package record

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"github.com/mattn/go-sqlite3" // sqlite3 driver

	"github.com/calvinalkan/recordb/internal/flock"
)

// backend is one SQLite file shared by every model stored in it.
//
// There is no pooling: each operation opens its own connection, runs its
// statement(s) in auto-commit mode and closes the connection again.
//
// Writes are serialized by mu (in-process) and an exclusive flock on
// "<file>.lock" (cross-process). Lock ordering: mu before flock.
type backend struct {
	path     string
	lockPath string
	opts     Options
	mu       sync.RWMutex
}

func newBackend(path string, opts Options) *backend {
	return &backend{path: path, lockPath: path + ".lock", opts: opts}
}

func (b *backend) dsn() string {
	params := url.Values{}
	params.Set("_busy_timeout", strconv.Itoa(b.opts.BusyTimeoutMS))

	if b.opts.ForeignKeys {
		params.Set("_foreign_keys", "1")
	}

	return b.path + "?" + params.Encode()
}

// open returns a fresh single-connection handle. Caller closes it.
func (b *backend) open(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", b.dsn())
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %w", ErrStoreUnavailable, err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	err = db.PingContext(ctx)
	if err != nil {
		closeErr := db.Close()
		if closeErr != nil {
			closeErr = fmt.Errorf("sqlite: close: %w", closeErr)
		}

		return nil, errors.Join(fmt.Errorf("ping sqlite: %w", mapSQLiteError(err)), closeErr)
	}

	return db, nil
}

// withConn runs fn on a fresh connection and closes it afterwards.
func (b *backend) withConn(ctx context.Context, fn func(db *sql.DB) error) error {
	db, err := b.open(ctx)
	if err != nil {
		return err
	}

	fnErr := fn(db)

	closeErr := db.Close()
	if closeErr != nil {
		closeErr = fmt.Errorf("%w: close sqlite: %w", ErrStoreUnavailable, closeErr)
	}

	return errors.Join(fnErr, closeErr)
}

// lockWrite acquires the in-process write lock and the cross-process file
// lock. The returned release function is idempotent.
func (b *backend) lockWrite(ctx context.Context) (func(), error) {
	if ctx == nil {
		return nil, errNilContext
	}

	b.mu.Lock()

	lk, err := flock.LockWithTimeout(ctx, b.lockPath, b.opts.lockTimeout())
	if err != nil {
		b.mu.Unlock()

		if errors.Is(err, flock.ErrWouldBlock) {
			return nil, fmt.Errorf("%w: %w", ErrLockTimeout, err)
		}

		return nil, fmt.Errorf("%w: lock: %w", ErrStoreUnavailable, err)
	}

	var once sync.Once

	return func() {
		once.Do(func() {
			_ = lk.Close()

			b.mu.Unlock()
		})
	}, nil
}

// lockRead acquires the in-process read lock. Cross-process readers rely on
// SQLite's own locking and busy timeout.
func (b *backend) lockRead() func() {
	b.mu.RLock()

	var once sync.Once

	return func() { once.Do(b.mu.RUnlock) }
}

// result is the raw outcome of a query: column names and value tuples.
type result struct {
	columns []string
	rows    [][]any
}

func execStmt(ctx context.Context, db *sql.DB, stmt string) (sql.Result, error) {
	res, err := db.ExecContext(ctx, stmt)
	if err != nil {
		return nil, mapSQLiteError(err)
	}

	return res, nil
}

func queryStmt(ctx context.Context, db *sql.DB, stmt string) (result, error) {
	rows, err := db.QueryContext(ctx, stmt)
	if err != nil {
		return result{}, mapSQLiteError(err)
	}

	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return result{}, mapSQLiteError(err)
	}

	res := result{columns: columns}

	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))

		for i := range values {
			ptrs[i] = &values[i]
		}

		scanErr := rows.Scan(ptrs...)
		if scanErr != nil {
			return result{}, fmt.Errorf("scan: %w", mapSQLiteError(scanErr))
		}

		res.rows = append(res.rows, values)
	}

	err = rows.Err()
	if err != nil {
		return result{}, mapSQLiteError(err)
	}

	return res, nil
}

// liveColumns reads the column names of table in table order. An empty
// result means the table does not exist.
func liveColumns(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	res, err := queryStmt(ctx, db, "PRAGMA table_info("+table+")")
	if err != nil {
		return nil, err
	}

	nameIdx := -1

	for i, col := range res.columns {
		if col == "name" {
			nameIdx = i
		}
	}

	if nameIdx < 0 {
		return nil, fmt.Errorf("%w: table_info has no name column", ErrStatement)
	}

	names := make([]string, 0, len(res.rows))

	for _, row := range res.rows {
		switch v := row[nameIdx].(type) {
		case string:
			names = append(names, v)
		case []byte:
			names = append(names, string(v))
		}
	}

	return names, nil
}

// mapSQLiteError classifies driver errors into the package sentinels.
//
//   - constraint violations → ErrConstraint
//   - open/IO/lock/corruption/permission failures → ErrStoreUnavailable
//   - anything else SQLite reports (syntax, no such table/column) → ErrStatement
//   - context cancellation is returned unchanged
func mapSQLiteError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrConstraint:
			return fmt.Errorf("%w: %w", ErrConstraint, err)
		case sqlite3.ErrCantOpen, sqlite3.ErrIoErr, sqlite3.ErrBusy, sqlite3.ErrLocked,
			sqlite3.ErrNotADB, sqlite3.ErrCorrupt, sqlite3.ErrFull, sqlite3.ErrPerm,
			sqlite3.ErrReadonly, sqlite3.ErrNomem:
			return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		default:
			return fmt.Errorf("%w: %w", ErrStatement, err)
		}
	}

	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
