package backend

import (
	"math"
	"math/rand"
	"time"

	"github.com/workledger/workledger/pkg/constants"
)

// Backoff is the per-leg retry policy: up to MaxRetries retries, each preceded by
// InitialDelay * Multiplier^attempt, capped at MaxDelay.
type Backoff struct {
	// MaxRetries is the number of retries on one store before failing over.
	MaxRetries int

	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// JitterFactor spreads each delay by up to ±JitterFactor of its value. Zero
	// disables jitter.
	JitterFactor float64
}

// DefaultBackoff returns the default policy: 3 retries, 100ms doubling to at most 2s.
func DefaultBackoff() Backoff {
	return Backoff{
		MaxRetries:   constants.DefaultMaxRetries,
		InitialDelay: constants.DefaultBaseDelay,
		MaxDelay:     constants.DefaultMaxDelay,
		Multiplier:   2.0,
	}
}

// NextDelay returns the delay before retry number attempt (0-based) and whether
// that retry is allowed at all.
func (b Backoff) NextDelay(attempt int) (time.Duration, bool) {
	if attempt < 0 || attempt >= b.MaxRetries {
		return 0, false
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 2.0
	}

	delay := float64(b.InitialDelay) * math.Pow(mult, float64(attempt))
	if b.MaxDelay > 0 && delay > float64(b.MaxDelay) {
		delay = float64(b.MaxDelay)
	}

	if b.JitterFactor > 0 {
		//nolint:gosec // math/rand is fine for jitter, not security-critical
		delay += delay * b.JitterFactor * (2*rand.Float64() - 1)
		if delay < 0 {
			delay = float64(b.InitialDelay)
		}
	}
	return time.Duration(delay), true
}
