package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var (
	// ErrContention is returned once the serialization retry limit is
	// exhausted. Callers may retry the whole operation.
	ErrContention = errors.New("transaction retry limit exceeded")
	// ErrLockTimeout is returned when a row hold could not be acquired
	// within the configured lock_timeout. Retryable by the caller; the
	// runner never retries it itself.
	ErrLockTimeout = errors.New("lock acquisition timed out")
)

type TxRunner interface {
	WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error
}

type SQLXTxRunner struct {
	db          *sqlx.DB
	lockTimeout time.Duration
}

func NewTxRunner(db *sqlx.DB, lockTimeout time.Duration) SQLXTxRunner {
	return SQLXTxRunner{db: db, lockTimeout: lockTimeout}
}

func (r SQLXTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	return WithTx(ctx, r.db, r.lockTimeout, fn)
}

func Connect(databaseURL string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetMaxIdleConns(5)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// WithTx runs fn inside one serializable transaction. Serialization and
// deadlock failures are retried with backoff; lock timeouts surface as
// ErrLockTimeout without retry, per the contention policy.
func WithTx(ctx context.Context, db *sqlx.DB, lockTimeout time.Duration, fn func(*sqlx.Tx) error) error {
	const maxAttempts = 5
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err != nil {
			return err
		}
		if lockTimeout > 0 {
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", lockTimeout.Milliseconds())
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return err
			}
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			if isLockTimeout(err) {
				return ErrLockTimeout
			}
			if isRetryablePGError(err) {
				if attempt == maxAttempts {
					return ErrContention
				}
				sleepWithBackoff(attempt)
				continue
			}
			return err
		}
		if err := tx.Commit(); err != nil {
			if isRetryablePGError(err) {
				if attempt == maxAttempts {
					return ErrContention
				}
				sleepWithBackoff(attempt)
				continue
			}
			return err
		}
		return nil
	}
	return ErrContention
}

func isRetryablePGError(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "40001" || pqErr.Code == "40P01"
}

func isLockTimeout(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "55P03"
}

func sleepWithBackoff(attempt int) {
	base := 20 * time.Millisecond
	backoff := time.Duration(attempt*attempt) * base
	jitter := time.Duration(rand.Int63n(int64(10 * time.Millisecond)))
	time.Sleep(backoff + jitter)
}
