package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"net"
	"strings"
	"time"

	"github.com/BearBump/ParcelBox/internal/storage"
	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	readRetries = 3

	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Store is the SQL implementation of the inventory store. One implementation
// serves Postgres (pgx) and SQLite (modernc); queries are written with '?'
// placeholders and rebound for the driver.
type Store struct {
	db      *sqlx.DB
	pool    *pgxpool.Pool
	dialect string
	now     func() time.Time
}

// New connects to Postgres.
func New(connString string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, errors.Wrap(err, "parse pg config")
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, errors.Wrap(err, "connect pg")
	}

	s := &Store{
		db:      sqlx.NewDb(stdlib.OpenDBFromPool(pool), "pgx"),
		pool:    pool,
		dialect: DialectPostgres,
		now:     utcNow,
	}
	if err := s.initSchema(context.Background()); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLite opens an embedded database at path (":memory:" for tests).
// SQLite allows a single writer, so the pool is limited to one connection.
func NewSQLite(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" && !strings.Contains(path, "?") {
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, dialect: DialectSQLite, now: utcNow}
	if err := s.initSchema(context.Background()); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Dialect() string {
	return s.dialect
}

func (s *Store) Ping(ctx context.Context) error {
	return errors.Wrap(s.db.PingContext(ctx), "ping db")
}

// InTx runs fn inside one transaction. Reads inside fn must go through tx:
// on SQLite the transaction holds the only connection. Transactions Postgres
// aborts as deadlocked or unserializable come back as ErrVersionConflict.
func (s *Store) InTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&txStore{tx: tx, now: s.now}); err != nil {
		return txConflict(err)
	}
	return txConflict(errors.Wrap(tx.Commit(), "commit tx"))
}

func txConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == pgDeadlockDetected || pgErr.Code == pgSerializationFailure) {
		return errors.Wrapf(storage.ErrVersionConflict, "pg %s: %s", pgErr.Code, pgErr.Message)
	}
	return err
}

// read retries an idempotent query on transient connection failures.
func (s *Store) read(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond

	return backoff.Retry(func() error {
		err := op()
		if err != nil && (ctx.Err() != nil || !isTransient(err)) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, readRetries), ctx))
}

func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var retryable interface{ SafeToRetry() bool }
	if errors.As(err, &retryable) {
		return retryable.SafeToRetry()
	}
	var ne net.Error
	return errors.As(err, &ne)
}

type txStore struct {
	tx  *sqlx.Tx
	now func() time.Time
}

func utcNow() time.Time {
	return time.Now().UTC()
}

func getOne[T any](ctx context.Context, q sqlx.ExtContext, query string, args ...any) (*T, error) {
	var v T
	if err := sqlx.GetContext(ctx, q, &v, q.Rebind(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

func getMany[T any](ctx context.Context, q sqlx.ExtContext, query string, args ...any) ([]*T, error) {
	out := []*T{}
	if err := sqlx.SelectContext(ctx, q, &out, q.Rebind(query), args...); err != nil {
		return nil, err
	}
	return out, nil
}

// insert runs an INSERT ... ON CONFLICT DO NOTHING and reports a skipped row
// as ErrDuplicate.
func insert(ctx context.Context, q sqlx.ExtContext, query string, args ...any) error {
	res, err := q.ExecContext(ctx, q.Rebind(query), args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return storage.ErrDuplicate
	}
	return nil
}

// casUpdate runs an UPDATE guarded by "version = ?" and reports a missed row
// as ErrVersionConflict.
func casUpdate(ctx context.Context, q sqlx.ExtContext, query string, args ...any) error {
	res, err := q.ExecContext(ctx, q.Rebind(query), args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return storage.ErrVersionConflict
	}
	return nil
}
