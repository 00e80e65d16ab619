package postgres

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/msgstore/internal/errs"
)

// DefaultCodeLength is the length of generated validation codes.
const DefaultCodeLength = 6

// regenerateAttempts bounds retries when a generated code collides with an unredeemed one.
const regenerateAttempts = 3

// ValidationRepo implements ValidationRepository using PostgreSQL.
type ValidationRepo struct {
	db      *DB
	codeLen int
}

// NewValidationRepo constructs a validation code registry. codeLen <= 0 selects DefaultCodeLength.
func NewValidationRepo(db *DB, codeLen int) *ValidationRepo {
	if codeLen <= 0 {
		codeLen = DefaultCodeLength
	}
	return &ValidationRepo{db: db, codeLen: codeLen}
}

// CodeLength returns the configured code length.
func (r *ValidationRepo) CodeLength() int { return r.codeLen }

// Register stores code for key and returns it. An empty code is replaced by a
// random numeric one.
func (r *ValidationRepo) Register(ctx context.Context, key, code string) (string, error) {
	const q = `INSERT INTO validations (key, code, issued_at) VALUES ($1, $2, now())`
	if code != "" {
		_, err := r.db.Pool.Exec(ctx, q, key, code)
		if isUniqueViolation(err) {
			return "", fmt.Errorf("validation code: %w: %w", errs.ErrAlreadyExists, err)
		}
		if err != nil {
			return "", err
		}
		return code, nil
	}

	var err error
	for range regenerateAttempts {
		if code, err = randomDigits(r.codeLen); err != nil {
			return "", err
		}
		_, err = r.db.Pool.Exec(ctx, q, key, code)
		if err == nil {
			return code, nil
		}
		if !isUniqueViolation(err) {
			return "", err
		}
	}
	return "", fmt.Errorf("validation code: %w: %w", errs.ErrAlreadyExists, err)
}

// Validate redeems code and returns its key. Lookup and delete run in one
// transaction with the row locked, so concurrent redemptions of the same code
// succeed at most once. Malformed codes are rejected without touching the database.
func (r *ValidationRepo) Validate(ctx context.Context, code string) (key string, err error) {
	if !r.wellFormed(code) {
		return "", errs.ErrInvalidCode
	}

	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			key, err = "", e
		}
	}()

	const sel = `SELECT key FROM validations WHERE code = $1 FOR UPDATE`
	const del = `DELETE FROM validations WHERE code = $1`

	if err = tx.QueryRow(ctx, sel, code).Scan(&key); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", errs.ErrInvalidCode
		}
		return "", err
	}
	if _, err = tx.Exec(ctx, del, code); err != nil {
		return "", err
	}
	return key, nil
}

func (r *ValidationRepo) wellFormed(code string) bool {
	if len(code) != r.codeLen {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

var ten = big.NewInt(10)

func randomDigits(n int) (string, error) {
	b := make([]byte, n)
	for i := range b {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b[i] = byte('0' + d.Int64())
	}
	return string(b), nil
}
