package limiter

import (
	"context"
	"crypto/sha256"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the part of the pool the limiter needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PG keeps per-source failure counters in the redeem_attempts table.
// Failures older than window restart the count; maxFails failures block the source for blockFor.
type PG struct {
	q        Querier
	window   time.Duration
	maxFails int
	blockFor time.Duration
	now      func() time.Time
}

var _ Limiter = (*PG)(nil)

// NewPG constructs a PostgreSQL-backed limiter.
func NewPG(q Querier, window time.Duration, maxFails int, blockFor time.Duration) *PG {
	return &PG{q: q, window: window, maxFails: maxFails, blockFor: blockFor, now: time.Now}
}

// HashSource returns a stable hash of a source address so raw addresses are never stored.
func HashSource(source string) []byte {
	h := sha256.Sum256([]byte(source))
	return h[:]
}

// Allow reports whether source is currently unblocked.
func (l *PG) Allow(ctx context.Context, source string) (bool, time.Duration, error) {
	const q = `SELECT blocked_until FROM redeem_attempts WHERE source_hash = $1`
	var blockedUntil time.Time
	err := l.q.QueryRow(ctx, q, HashSource(source)).Scan(&blockedUntil)
	switch {
	case err == nil:
		if wait := blockedUntil.Sub(l.now()); wait > 0 {
			return false, wait, nil
		}
		return true, 0, nil
	case errors.Is(err, pgx.ErrNoRows):
		return true, 0, nil
	default:
		return false, 0, err
	}
}

// Success drops the counters of source.
func (l *PG) Success(ctx context.Context, source string) error {
	const q = `DELETE FROM redeem_attempts WHERE source_hash = $1`
	_, err := l.q.Exec(ctx, q, HashSource(source))
	return err
}

// Failure counts a rejected redemption and blocks source once maxFails is reached.
func (l *PG) Failure(ctx context.Context, source string) (bool, time.Duration, error) {
	const q = `
INSERT INTO redeem_attempts (source_hash, fail_count, blocked_until, updated_at)
VALUES ($1, 1, 'epoch', now())
ON CONFLICT (source_hash) DO UPDATE
SET
  fail_count = CASE WHEN now() - redeem_attempts.updated_at > $2::interval THEN 1 ELSE redeem_attempts.fail_count + 1 END,
  updated_at = now()
RETURNING fail_count`
	hash := HashSource(source)
	var fails int
	if err := l.q.QueryRow(ctx, q, hash, l.window).Scan(&fails); err != nil {
		return false, 0, err
	}
	if fails < l.maxFails {
		return false, 0, nil
	}
	const upd = `UPDATE redeem_attempts SET blocked_until = $2 WHERE source_hash = $1`
	if _, err := l.q.Exec(ctx, upd, hash, l.now().Add(l.blockFor)); err != nil {
		return false, 0, err
	}
	return true, l.blockFor, nil
}
