package clawless

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// BackoffType selects the delay curve between prewarm retry attempts.
type BackoffType int

const (
	BackoffConstant BackoffType = iota
	BackoffLinear
	BackoffExponential
)

// BackoffConfig configures the delay between prewarm retries.
type BackoffConfig struct {
	Type       BackoffType
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64 // exponential only, default 2.0
	Jitter     float64 // fraction of delay to randomize, e.g. 0.1
}

// retryBackoff tracks the attempt count and computes the next delay for the
// runtime's prewarm retry loop. It is the single-child trim of the
// supervision trees this system's ancestor used for sibling process
// restarts — clawless has exactly one child (the agent process), so there
// are no siblings to restart or escalate to.
type retryBackoff struct {
	cfg BackoffConfig

	mu       sync.Mutex
	attempts int
}

func newRetryBackoff(cfg BackoffConfig) *retryBackoff {
	return &retryBackoff{cfg: cfg}
}

// next increments the attempt counter and returns the delay to wait before
// the next retry.
func (b *retryBackoff) next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempts++
	return b.calculate()
}

// attemptCount returns the number of retries recorded so far.
func (b *retryBackoff) attemptCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// reset clears the attempt counter, e.g. after a successful ensureSession.
func (b *retryBackoff) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempts = 0
}

func (b *retryBackoff) calculate() time.Duration {
	if b.cfg.Initial == 0 {
		return 0
	}

	var delay time.Duration
	switch b.cfg.Type {
	case BackoffExponential:
		mult := b.cfg.Multiplier
		if mult == 0 {
			mult = 2.0
		}
		delay = time.Duration(float64(b.cfg.Initial) * math.Pow(mult, float64(b.attempts-1)))
	case BackoffLinear:
		delay = b.cfg.Initial * time.Duration(b.attempts)
	default:
		delay = b.cfg.Initial
	}

	if b.cfg.Max > 0 && delay > b.cfg.Max {
		delay = b.cfg.Max
	}
	if b.cfg.Jitter > 0 {
		jitter := float64(delay) * b.cfg.Jitter * (rand.Float64()*2 - 1)
		delay = time.Duration(float64(delay) + jitter)
	}
	return delay
}
