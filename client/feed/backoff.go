package feed

import (
	"math/rand"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig configures the reconnection schedule
type RetryConfig struct {
	InitialDelay        time.Duration
	MaxDelay            time.Duration
	MaxJitter           time.Duration
	DisconnectThreshold int // failures after which the state reads disconnected
}

// DefaultRetryConfig is 1s doubling up to 30s, plus up to 1s of jitter
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialDelay:        1 * time.Second,
		MaxDelay:            30 * time.Second,
		MaxJitter:           1 * time.Second,
		DisconnectThreshold: 5,
	}
}

// ReconnectBackOff yields min(initial*2^n, max) + jitter for attempt n and never gives up.
// It implements backoff.BackOff
type ReconnectBackOff struct {
	mu      sync.Mutex
	config  RetryConfig
	attempt int
	jitter  func(max time.Duration) time.Duration
}

var _ backoff.BackOff = (*ReconnectBackOff)(nil)

// NewReconnectBackOff creates a schedule with random jitter
func NewReconnectBackOff(config RetryConfig) *ReconnectBackOff {
	return &ReconnectBackOff{
		config: config,
		jitter: randomJitter,
	}
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}

// NextBackOff returns the delay for the current attempt and advances the counter
func (b *ReconnectBackOff) NextBackOff() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	delay := b.baseDelay(b.attempt)
	b.attempt++
	return delay + b.jitter(b.config.MaxJitter)
}

// baseDelay doubles the initial delay n times, saturating at the max
func (b *ReconnectBackOff) baseDelay(n int) time.Duration {
	delay := b.config.InitialDelay
	for i := 0; i < n; i++ {
		if delay >= b.config.MaxDelay {
			break
		}
		delay *= 2
	}
	if delay > b.config.MaxDelay {
		delay = b.config.MaxDelay
	}
	return delay
}

// Reset zeroes the attempt counter after a successful handshake
func (b *ReconnectBackOff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempt = 0
}

// Attempt returns the number of consecutive failures recorded so far
func (b *ReconnectBackOff) Attempt() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempt
}
