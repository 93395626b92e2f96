package exchange

import (
	"fmt"
	"time"
)

// Transmission parameters from RFC 7252 Section 4.8, Table 2, and the
// derived durations from Section 4.8.2.
const (
	// DefaultAckTimeout is the initial wait for an acknowledgement of a
	// confirmable message.
	// RFC 7252: ACK_TIMEOUT = 2s
	DefaultAckTimeout = 2 * time.Second

	// DefaultAckRandomFactor spreads the initial timeout over
	// [ACK_TIMEOUT, ACK_TIMEOUT * ACK_RANDOM_FACTOR] to avoid
	// synchronization of retransmissions.
	// RFC 7252: ACK_RANDOM_FACTOR = 1.5
	DefaultAckRandomFactor = 1.5

	// DefaultMaxRetransmit is the maximum number of retransmissions of a
	// confirmable message. After the initial transmission plus this many
	// retries without acknowledgement, the message is undeliverable.
	// RFC 7252: MAX_RETRANSMIT = 4
	DefaultMaxRetransmit = 4

	// DefaultNStart limits the number of simultaneous outstanding
	// confirmable exchanges to a given peer.
	// RFC 7252: NSTART = 1
	DefaultNStart = 1

	// DefaultExchangeLifetime is how long a message ID must be remembered
	// for deduplication after a confirmable exchange.
	// RFC 7252 Section 4.8.2: EXCHANGE_LIFETIME = 247s
	DefaultExchangeLifetime = 247 * time.Second

	// DefaultMaxTransmitWait is the longest a sender waits for an
	// acknowledgement across the whole retransmission schedule.
	// RFC 7252 Section 4.8.2: MAX_TRANSMIT_WAIT = 93s
	DefaultMaxTransmitWait = 93 * time.Second
)

// TransmissionParams carries the tunable reliability parameters of an
// endpoint. The zero value is not usable; use DefaultParams or fill all
// fields. Tests inject shortened values for fast timers.
type TransmissionParams struct {
	// AckTimeout is the base initial retransmission timeout.
	AckTimeout time.Duration

	// AckRandomFactor is the upper bound of the random spread applied to
	// the initial timeout. Must be >= 1.0.
	AckRandomFactor float64

	// MaxRetransmit is the maximum number of retransmissions.
	MaxRetransmit int

	// NStart limits outstanding confirmable exchanges per peer.
	NStart int

	// ExchangeLifetime is the deduplication window for a message ID.
	ExchangeLifetime time.Duration

	// MaxTransmitWait bounds the total wait for an acknowledgement.
	MaxTransmitWait time.Duration
}

// DefaultParams returns the RFC 7252 Section 4.8 defaults.
func DefaultParams() TransmissionParams {
	return TransmissionParams{
		AckTimeout:       DefaultAckTimeout,
		AckRandomFactor:  DefaultAckRandomFactor,
		MaxRetransmit:    DefaultMaxRetransmit,
		NStart:           DefaultNStart,
		ExchangeLifetime: DefaultExchangeLifetime,
		MaxTransmitWait:  DefaultMaxTransmitWait,
	}
}

// Validate checks the parameter set for internally consistent values.
func (p TransmissionParams) Validate() error {
	if p.AckTimeout <= 0 {
		return fmt.Errorf("exchange: AckTimeout must be positive, got %v", p.AckTimeout)
	}
	if p.AckRandomFactor < 1.0 {
		return fmt.Errorf("exchange: AckRandomFactor must be >= 1.0, got %v", p.AckRandomFactor)
	}
	if p.MaxRetransmit < 0 {
		return fmt.Errorf("exchange: MaxRetransmit must not be negative, got %d", p.MaxRetransmit)
	}
	if p.NStart < 1 {
		return fmt.Errorf("exchange: NStart must be >= 1, got %d", p.NStart)
	}
	if p.ExchangeLifetime <= 0 {
		return fmt.Errorf("exchange: ExchangeLifetime must be positive, got %v", p.ExchangeLifetime)
	}
	if p.MaxTransmitWait <= 0 {
		return fmt.Errorf("exchange: MaxTransmitWait must be positive, got %v", p.MaxTransmitWait)
	}
	return nil
}
