package exchange

import (
	"context"
	"sync"

	"github.com/coapkit/coap/pkg/message"
	"github.com/coapkit/coap/pkg/transport"
)

// Exchange is the handle for one pending client request. It is created
// by Manager.SendRequest and completes exactly once: with the correlated
// response, or with a delivery failure (timeout, reset, cancellation).
type Exchange struct {
	// Token correlates the response to this request.
	Token []byte

	// MessageID matches ACK and RST replies to the request.
	MessageID uint16

	// Peer is the request destination.
	Peer transport.PeerAddress

	manager *Manager

	mu       sync.Mutex
	state    ExchangeState
	response *message.Message
	err      error
	done     chan struct{}
}

func newExchange(m *Manager, token []byte, messageID uint16, peer transport.PeerAddress, state ExchangeState) *Exchange {
	return &Exchange{
		Token:     token,
		MessageID: messageID,
		Peer:      peer,
		manager:   m,
		state:     state,
		done:      make(chan struct{}),
	}
}

// State returns the current exchange state.
func (e *Exchange) State() ExchangeState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Done returns a channel closed when the exchange reaches a terminal
// state.
func (e *Exchange) Done() <-chan struct{} {
	return e.done
}

// Response blocks until the exchange completes or ctx is done, and
// returns the correlated response or the delivery failure.
func (e *Exchange) Response(ctx context.Context) (*message.Message, error) {
	select {
	case <-e.done:
	case <-ctx.Done():
		e.Cancel()
		return nil, ctx.Err()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.response, e.err
}

// Cancel stops any pending retransmission timer and marks the exchange
// so a late reply is dropped. Safe to call after completion.
func (e *Exchange) Cancel() {
	if e.manager != nil {
		e.manager.cancelExchange(e)
	}
	e.fail(ExchangeStateCanceled, ErrExchangeCanceled)
}

// markAcked records the empty ACK for a CON request; the response will
// arrive separately. No-op once terminal.
func (e *Exchange) markAcked() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == ExchangeStateSentCon {
		e.state = ExchangeStateAckReceived
	}
}

// complete delivers the response. Only the first terminal transition
// wins; later ones are dropped.
func (e *Exchange) complete(resp *message.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Terminal() {
		return
	}
	e.state = ExchangeStateCompleted
	e.response = resp
	close(e.done)
}

// fail delivers a terminal failure. Only the first terminal transition
// wins; later ones are dropped.
func (e *Exchange) fail(state ExchangeState, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Terminal() {
		return
	}
	e.state = state
	e.err = err
	close(e.done)
}
