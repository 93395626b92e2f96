// Package exchange implements the CoAP message exchange engine: CON
// retransmission with exponential backoff, message-ID deduplication,
// and token-based request/response correlation (RFC 7252 Section 4).
//
// The exchange layer sits between the transport (pkg/transport) and the
// application endpoint (pkg/coap). It provides:
//
//   - Client exchanges: send a request, retransmit CONs until acked,
//     deliver the correlated response or a delivery failure
//   - Server dispatch: dedup inbound requests, invoke the application
//     handler once, reply piggybacked or separately
//   - Empty message handling: ACK/RST matching, RST on missing context
package exchange

// ExchangeState tracks the lifecycle of a client exchange.
type ExchangeState int

const (
	// ExchangeStateUnknown indicates an uninitialized state.
	ExchangeStateUnknown ExchangeState = iota

	// ExchangeStateSentCon indicates a confirmable request is in flight
	// and being retransmitted until acknowledged.
	ExchangeStateSentCon

	// ExchangeStatePending indicates a non-confirmable request was sent;
	// no retransmission, a response may still arrive.
	ExchangeStatePending

	// ExchangeStateAckReceived indicates the CON was acknowledged with an
	// empty ACK; the peer will send a separate response later.
	ExchangeStateAckReceived

	// ExchangeStateCompleted indicates the response arrived.
	ExchangeStateCompleted

	// ExchangeStateRstReceived indicates the peer rejected the message
	// with a Reset.
	ExchangeStateRstReceived

	// ExchangeStateTimedOut indicates the retransmission budget was spent
	// without an acknowledgement.
	ExchangeStateTimedOut

	// ExchangeStateCanceled indicates the caller canceled the exchange.
	ExchangeStateCanceled
)

// String returns a human-readable name for the exchange state.
func (s ExchangeState) String() string {
	switch s {
	case ExchangeStateSentCon:
		return "SentCon"
	case ExchangeStatePending:
		return "Pending"
	case ExchangeStateAckReceived:
		return "AckReceived"
	case ExchangeStateCompleted:
		return "Completed"
	case ExchangeStateRstReceived:
		return "RstReceived"
	case ExchangeStateTimedOut:
		return "TimedOut"
	case ExchangeStateCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the state is a defined value.
func (s ExchangeState) IsValid() bool {
	return s >= ExchangeStateSentCon && s <= ExchangeStateCanceled
}

// Terminal returns true once no further transitions can occur.
func (s ExchangeState) Terminal() bool {
	switch s {
	case ExchangeStateCompleted, ExchangeStateRstReceived,
		ExchangeStateTimedOut, ExchangeStateCanceled:
		return true
	}
	return false
}
