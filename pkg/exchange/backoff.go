package exchange

import (
	"math/rand"
	"time"
)

// RandomSource provides random values for timeout jitter.
// Allows injection of deterministic sources for testing.
type RandomSource interface {
	// Float64 returns a random float64 in [0.0, 1.0).
	Float64() float64
}

// defaultRandomSource uses math/rand for production.
type defaultRandomSource struct{}

func (defaultRandomSource) Float64() float64 {
	return rand.Float64()
}

// DefaultRandomSource is the default random source using math/rand.
var DefaultRandomSource RandomSource = defaultRandomSource{}

// BackoffCalculator computes retransmission timeouts.
//
// The schedule from RFC 7252 Section 4.2: the initial timeout is drawn
// uniformly from [ACK_TIMEOUT, ACK_TIMEOUT * ACK_RANDOM_FACTOR], then
// doubled for each retransmission. The random spread prevents a
// population of clients from retransmitting in lockstep.
type BackoffCalculator struct {
	params TransmissionParams
	random RandomSource
}

// NewBackoffCalculator creates a backoff calculator with the given random
// source. If random is nil, DefaultRandomSource is used.
func NewBackoffCalculator(params TransmissionParams, random RandomSource) *BackoffCalculator {
	if random == nil {
		random = DefaultRandomSource
	}
	return &BackoffCalculator{params: params, random: random}
}

// InitialTimeout draws the timeout for the first transmission.
func (b *BackoffCalculator) InitialTimeout() time.Duration {
	spread := b.params.AckRandomFactor - 1.0
	factor := 1.0 + b.random.Float64()*spread
	return time.Duration(float64(b.params.AckTimeout) * factor)
}

// NextTimeout doubles the previous timeout for the next retransmission.
func (b *BackoffCalculator) NextTimeout(prev time.Duration) time.Duration {
	return prev * 2
}

// MinTimeout returns the lower bound of the initial timeout (no jitter).
// Useful for tests and documentation.
func (b *BackoffCalculator) MinTimeout() time.Duration {
	return b.params.AckTimeout
}

// MaxTimeout returns the upper bound of the initial timeout (full jitter).
// Useful for tests and documentation.
func (b *BackoffCalculator) MaxTimeout() time.Duration {
	return time.Duration(float64(b.params.AckTimeout) * b.params.AckRandomFactor)
}
