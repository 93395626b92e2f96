package exchange

import "errors"

// Errors returned by the exchange package.
var (
	// ErrClosed is returned when attempting operations on a closed manager.
	ErrClosed = errors.New("exchange: manager is closed")

	// ErrExchangeTimeout is returned when a confirmable message exhausts
	// its retransmission budget without an acknowledgement.
	ErrExchangeTimeout = errors.New("exchange: retransmission budget exhausted")

	// ErrPeerReset is returned when the peer answers with a Reset,
	// rejecting the message.
	ErrPeerReset = errors.New("exchange: peer rejected message with reset")

	// ErrExchangeCanceled is returned when the caller cancels a pending
	// exchange before completion.
	ErrExchangeCanceled = errors.New("exchange: canceled")

	// ErrTooManyRequests is returned when sending would exceed the NSTART
	// limit of outstanding confirmable exchanges to a peer.
	ErrTooManyRequests = errors.New("exchange: too many outstanding exchanges to peer")

	// ErrInvalidMessage is returned when a message cannot be sent as given
	// (bad type, bad token, failing option validation).
	ErrInvalidMessage = errors.New("exchange: invalid message")

	// ErrExchangeNotFound is returned when a separate response references
	// no pending server-side exchange.
	ErrExchangeNotFound = errors.New("exchange: no pending exchange")
)
