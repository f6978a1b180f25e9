package backend_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/workledger/workledger/pkg/backend"
)

func TestBackoff(t *testing.T) {
	t.Run("default configuration", func(t *testing.T) {
		b := backend.DefaultBackoff()

		delay, ok := b.NextDelay(0)
		assert.True(t, ok)
		assert.Equal(t, 100*time.Millisecond, delay)

		delay, ok = b.NextDelay(1)
		assert.True(t, ok)
		assert.Equal(t, 200*time.Millisecond, delay)

		delay, ok = b.NextDelay(2)
		assert.True(t, ok)
		assert.Equal(t, 400*time.Millisecond, delay)

		_, ok = b.NextDelay(3)
		assert.False(t, ok, "three retries per leg")
	})

	t.Run("capped", func(t *testing.T) {
		b := backend.Backoff{MaxRetries: 10, InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}

		delay, ok := b.NextDelay(3)
		assert.True(t, ok)
		assert.Equal(t, 800*time.Millisecond, delay)

		delay, ok = b.NextDelay(4)
		assert.True(t, ok)
		assert.Equal(t, time.Second, delay)

		delay, ok = b.NextDelay(9)
		assert.True(t, ok)
		assert.Equal(t, time.Second, delay)
	})

	t.Run("with jitter", func(t *testing.T) {
		b := backend.Backoff{MaxRetries: 3, InitialDelay: time.Second, MaxDelay: 30 * time.Second, Multiplier: 2, JitterFactor: 0.3}

		for i := 0; i < 50; i++ {
			delay, ok := b.NextDelay(1)
			assert.True(t, ok)
			assert.GreaterOrEqual(t, delay, 1400*time.Millisecond) // 2s - 30% jitter
			assert.LessOrEqual(t, delay, 2600*time.Millisecond)    // 2s + 30% jitter
		}
	})

	t.Run("no retries", func(t *testing.T) {
		_, ok := backend.Backoff{}.NextDelay(0)
		assert.False(t, ok)
	})
}
