// Package limiter throttles repeated failed validation-code redemptions per source.
package limiter

import (
	"context"
	"time"
)

// Limiter controls redemption attempts and temporary lockouts.
type Limiter interface {
	// Allow reports whether source may attempt a redemption now, and the retry-after otherwise.
	Allow(ctx context.Context, source string) (bool, time.Duration, error)
	// Success clears the failure count of source.
	Success(ctx context.Context, source string) error
	// Failure records a rejected code; it may place a temporary block.
	Failure(ctx context.Context, source string) (bool, time.Duration, error)
}
