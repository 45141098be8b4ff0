package ports

import (
	"context"
	"time"
)

// ReplayGuard remembers challenge nonces so a signed challenge is accepted once
type ReplayGuard interface {
	// Seen reports whether the nonce has already been recorded
	Seen(ctx context.Context, nonce string) (bool, error)
	// Record stores the nonce as first seen at now
	Record(ctx context.Context, nonce string, now time.Time) error
	// Claim atomically checks and records the nonce, failing with
	// core.ErrNonceReused when it was already recorded
	Claim(ctx context.Context, nonce string, now time.Time) error
}
