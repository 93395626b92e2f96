package exchange

import (
	"fmt"
	"net"
	"sync"

	"github.com/pion/logging"

	"github.com/coapkit/coap/pkg/message"
	"github.com/coapkit/coap/pkg/transport"
)

// Sender is the outbound half of the datagram transport. All sends of an
// endpoint are funneled through this single path.
type Sender interface {
	Send(data []byte, addr net.Addr) error
}

// RequestHandler processes one inbound request and returns the response
// to send. Returning nil defers the response: the manager acknowledges a
// confirmable request with an empty ACK and the application answers
// later via SendSeparateResponse.
//
// The handler is invoked at most once per request; duplicates within the
// deduplication window are answered from the cached reply.
type RequestHandler func(peer transport.PeerAddress, req *message.Message) *message.Message

// Config configures a Manager.
type Config struct {
	// Sender transmits outbound datagrams. Required.
	Sender Sender

	// Handler processes inbound requests. Optional; a manager without a
	// handler rejects confirmable requests with a Reset.
	Handler RequestHandler

	// Params are the transmission parameters. The zero value selects the
	// RFC 7252 defaults.
	Params TransmissionParams

	// Random supplies jitter for retransmission timeouts.
	// If nil, DefaultRandomSource is used.
	Random RandomSource

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Manager is the exchange engine of one endpoint. It owns the
// retransmission and deduplication tables and the set of pending client
// exchanges, and serializes all state transitions behind its mutex.
type Manager struct {
	sender  Sender
	handler RequestHandler
	params  TransmissionParams
	backoff *BackoffCalculator
	log     logging.LeveledLogger

	mids       *messageIDSource
	retransmit *RetransmitTable
	dedup      *DedupTable

	mu       sync.Mutex
	byToken  map[string]*Exchange
	byMID    map[epKey]*Exchange
	deferred map[string]message.Type
	closed   bool
}

// NewManager creates an exchange manager.
func NewManager(config Config) (*Manager, error) {
	if config.Sender == nil {
		return nil, fmt.Errorf("exchange: Sender is required")
	}

	params := config.Params
	if params == (TransmissionParams{}) {
		params = DefaultParams()
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		sender:     config.Sender,
		handler:    config.Handler,
		params:     params,
		backoff:    NewBackoffCalculator(params, config.Random),
		mids:       newMessageIDSource(),
		retransmit: NewRetransmitTable(params.MaxRetransmit),
		dedup:      NewDedupTable(params.ExchangeLifetime),
		byToken:    make(map[string]*Exchange),
		byMID:      make(map[epKey]*Exchange),
		deferred:   make(map[string]message.Type),
	}

	if config.LoggerFactory != nil {
		m.log = config.LoggerFactory.NewLogger("exchange")
	}

	return m, nil
}

func tokenKey(peer transport.PeerAddress, token []byte) string {
	return peer.Key() + "|" + string(token)
}

// SendRequest transmits a request and returns the exchange handle that
// will carry the correlated response. Confirmable requests are
// retransmitted with exponential backoff until acknowledged or the retry
// budget is spent; non-confirmable requests are sent once.
func (m *Manager) SendRequest(req *message.Message, peer transport.PeerAddress) (*Exchange, error) {
	if req.Type != message.TypeConfirmable && req.Type != message.TypeNonConfirmable {
		return nil, fmt.Errorf("%w: requests must be CON or NON, got %v", ErrInvalidMessage, req.Type)
	}
	if !req.Code.IsRequest() {
		return nil, fmt.Errorf("%w: %v is not a request code", ErrInvalidMessage, req.Code)
	}
	if !peer.IsValid() {
		return nil, transport.ErrInvalidAddress
	}
	if err := req.Options.Validate(); err != nil {
		return nil, err
	}

	if len(req.Token) == 0 {
		token, err := NewToken()
		if err != nil {
			return nil, err
		}
		req.Token = token
	}
	req.MessageID = m.mids.Next()

	wire, err := req.Marshal()
	if err != nil {
		return nil, err
	}

	reliable := req.Type == message.TypeConfirmable

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if reliable && m.retransmit.CountForPeer(peer) >= m.params.NStart {
		m.mu.Unlock()
		return nil, ErrTooManyRequests
	}

	state := ExchangeStatePending
	if reliable {
		state = ExchangeStateSentCon
	}
	ex := newExchange(m, req.Token, req.MessageID, peer, state)
	m.byToken[tokenKey(peer, req.Token)] = ex
	m.byMID[newEpKey(peer, req.MessageID)] = ex
	m.mu.Unlock()

	if reliable {
		m.retransmit.Add(peer, req.MessageID, wire, m.backoff.InitialTimeout(), m.onRetransmitTimeout)
	}

	if err := m.sender.Send(wire, peer.Addr); err != nil {
		m.retransmit.Remove(peer, req.MessageID)
		m.removeExchange(ex)
		return nil, err
	}

	if m.log != nil {
		m.log.Debugf("sent %v to %v", req, peer)
	}
	return ex, nil
}

// SendSeparateResponse transmits the delayed response for a request
// whose handler deferred. The response must carry the request's token.
// Deferred confirmable requests are answered with a confirmable response
// that is itself retransmitted until acknowledged.
func (m *Manager) SendSeparateResponse(peer transport.PeerAddress, resp *message.Message) error {
	if !resp.Code.IsResponse() {
		return fmt.Errorf("%w: %v is not a response code", ErrInvalidMessage, resp.Code)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	key := tokenKey(peer, resp.Token)
	reqType, ok := m.deferred[key]
	if !ok {
		m.mu.Unlock()
		return ErrExchangeNotFound
	}
	delete(m.deferred, key)
	m.mu.Unlock()

	// A confirmable request gets a reliable separate response; a
	// non-confirmable one is answered in kind.
	if reqType == message.TypeConfirmable {
		resp.Type = message.TypeConfirmable
	} else {
		resp.Type = message.TypeNonConfirmable
	}
	resp.MessageID = m.mids.Next()

	wire, err := resp.Marshal()
	if err != nil {
		return err
	}

	if resp.Type == message.TypeConfirmable {
		m.retransmit.Add(peer, resp.MessageID, wire, m.backoff.InitialTimeout(), m.onRetransmitTimeout)
	}
	return m.sender.Send(wire, peer.Addr)
}

// HandleDatagram is the inbound entry point; wire it as the transport's
// DatagramHandler. Malformed datagrams are dropped without a reply.
func (m *Manager) HandleDatagram(dg *transport.Datagram) {
	msg, err := message.Unmarshal(dg.Data)
	if err != nil {
		if m.log != nil {
			m.log.Debugf("dropping malformed datagram from %v: %v", dg.PeerAddr, err)
		}
		return
	}

	switch msg.Type {
	case message.TypeAcknowledgement:
		m.handleAck(dg.PeerAddr, msg)
	case message.TypeReset:
		m.handleReset(dg.PeerAddr, msg)
	default:
		m.handleMessage(dg.PeerAddr, msg)
	}
}

// handleAck stops retransmission for the matched message and delivers a
// piggybacked response, if any, to the waiting exchange.
func (m *Manager) handleAck(peer transport.PeerAddress, msg *message.Message) {
	m.retransmit.Ack(peer, msg.MessageID)

	if msg.IsEmpty() {
		// Bare ACK; the response will arrive separately.
		m.mu.Lock()
		ex := m.byMID[newEpKey(peer, msg.MessageID)]
		m.mu.Unlock()
		if ex != nil {
			ex.markAcked()
		}
		return
	}

	if !msg.Code.IsResponse() {
		if m.log != nil {
			m.log.Debugf("dropping ACK with non-response code %v from %v", msg.Code, peer)
		}
		return
	}

	m.mu.Lock()
	ex := m.byToken[tokenKey(peer, msg.Token)]
	m.mu.Unlock()
	if ex == nil {
		if m.log != nil {
			m.log.Debugf("dropping uncorrelated piggybacked response from %v", peer)
		}
		return
	}

	m.removeExchange(ex)
	ex.complete(msg)
}

// handleReset terminates the matched exchange with a peer-reset failure
// and cancels any pending retransmission.
func (m *Manager) handleReset(peer transport.PeerAddress, msg *message.Message) {
	m.retransmit.Ack(peer, msg.MessageID)

	m.mu.Lock()
	ex := m.byMID[newEpKey(peer, msg.MessageID)]
	m.mu.Unlock()
	if ex != nil {
		m.removeExchange(ex)
		ex.fail(ExchangeStateRstReceived, ErrPeerReset)
	}
}

// handleMessage processes inbound CON and NON messages: deduplication
// first, then dispatch as ping, request, or separate response.
func (m *Manager) handleMessage(peer transport.PeerAddress, msg *message.Message) {
	reliable := msg.Type == message.TypeConfirmable

	if reply, dup := m.dedup.Check(peer, msg.MessageID); dup {
		if m.log != nil {
			m.log.Debugf("duplicate message 0x%04x from %v", msg.MessageID, peer)
		}
		if reliable && reply != nil {
			m.send(reply, peer)
		}
		return
	}
	m.dedup.Record(peer, msg.MessageID)

	switch {
	case msg.IsEmpty():
		// CoAP ping: an empty CON provokes a Reset (RFC 7252 Section 4.3).
		if reliable {
			m.sendReset(peer, msg.MessageID)
		}
	case msg.Code.IsRequest():
		m.handleRequest(peer, msg)
	case msg.Code.IsResponse():
		m.handleResponse(peer, msg)
	default:
		// Reserved code class; reject what we cannot process.
		if reliable {
			m.sendReset(peer, msg.MessageID)
		}
	}
}

// handleRequest validates options, invokes the application handler at
// most once, and sends the piggybacked, non-confirmable, or deferred
// reply.
func (m *Manager) handleRequest(peer transport.PeerAddress, req *message.Message) {
	reliable := req.Type == message.TypeConfirmable

	if err := req.Options.Validate(); err != nil {
		// Option-level violation on a parseable request: 4.02 Bad Option
		// with a diagnostic payload, handler not invoked.
		if m.log != nil {
			m.log.Debugf("bad option in request from %v: %v", peer, err)
		}
		m.reply(peer, req, &message.Message{
			Code:    message.CodeBadOption,
			Payload: []byte(err.Error()),
		})
		return
	}

	if m.handler == nil {
		if reliable {
			m.sendReset(peer, req.MessageID)
		}
		return
	}

	resp := m.handler(peer, req)
	if resp == nil {
		// Deferred: acknowledge now, respond later.
		m.mu.Lock()
		m.deferred[tokenKey(peer, req.Token)] = req.Type
		m.mu.Unlock()

		if reliable {
			wire, err := message.NewAck(req.MessageID).Marshal()
			if err != nil {
				return
			}
			m.dedup.SetReply(peer, req.MessageID, wire)
			m.send(wire, peer)
		}
		return
	}

	m.reply(peer, req, resp)
}

// reply sends a response to a request: piggybacked in the ACK for CON,
// non-confirmable for NON. The reply bytes for a CON are cached so
// duplicates are answered verbatim.
func (m *Manager) reply(peer transport.PeerAddress, req, resp *message.Message) {
	resp.Token = req.Token
	if req.Type == message.TypeConfirmable {
		resp.Type = message.TypeAcknowledgement
		resp.MessageID = req.MessageID
	} else {
		resp.Type = message.TypeNonConfirmable
		resp.MessageID = m.mids.Next()
	}

	wire, err := resp.Marshal()
	if err != nil {
		if m.log != nil {
			m.log.Warnf("failed to marshal response: %v", err)
		}
		return
	}

	if req.Type == message.TypeConfirmable {
		m.dedup.SetReply(peer, req.MessageID, wire)
	}
	m.send(wire, peer)
}

// handleResponse delivers a separate response to the pending exchange
// with the same token. A confirmable response is acknowledged; an
// uncorrelated confirmable response is rejected with a Reset.
func (m *Manager) handleResponse(peer transport.PeerAddress, msg *message.Message) {
	m.mu.Lock()
	ex := m.byToken[tokenKey(peer, msg.Token)]
	m.mu.Unlock()

	if ex == nil {
		if m.log != nil {
			m.log.Debugf("dropping uncorrelated response from %v", peer)
		}
		if msg.Type == message.TypeConfirmable {
			m.sendReset(peer, msg.MessageID)
		}
		return
	}

	if msg.Type == message.TypeConfirmable {
		if wire, err := message.NewAck(msg.MessageID).Marshal(); err == nil {
			m.dedup.SetReply(peer, msg.MessageID, wire)
			m.send(wire, peer)
		}
	}

	m.removeExchange(ex)
	ex.complete(msg)
}

// onRetransmitTimeout fires when a confirmable message's timer elapses:
// either retransmit with a doubled timeout, or give up and surface the
// delivery failure.
func (m *Manager) onRetransmitTimeout(entry *RetransmitEntry) {
	if m.retransmit.ScheduleRetransmit(entry) {
		if m.log != nil {
			m.log.Debugf("retransmit %d/%d to %v", entry.SendCount-1, m.params.MaxRetransmit, entry.PeerAddress)
		}
		m.send(entry.Wire, entry.PeerAddress)
		return
	}

	m.mu.Lock()
	ex := m.byMID[entry.Key]
	m.mu.Unlock()
	if ex != nil {
		m.removeExchange(ex)
		ex.fail(ExchangeStateTimedOut, ErrExchangeTimeout)
	} else if m.log != nil {
		// Separate response given up on; the request stays answered by
		// the dedup cache if the peer retries.
		m.log.Warnf("separate response to %v unacknowledged after %d attempts", entry.PeerAddress, entry.SendCount)
	}
}

func (m *Manager) cancelExchange(e *Exchange) {
	m.retransmit.Remove(e.Peer, e.MessageID)
	m.removeExchange(e)
}

func (m *Manager) removeExchange(e *Exchange) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byToken, tokenKey(e.Peer, e.Token))
	delete(m.byMID, newEpKey(e.Peer, e.MessageID))
}

func (m *Manager) send(wire []byte, peer transport.PeerAddress) {
	if err := m.sender.Send(wire, peer.Addr); err != nil && m.log != nil {
		m.log.Warnf("send to %v failed: %v", peer, err)
	}
}

func (m *Manager) sendReset(peer transport.PeerAddress, messageID uint16) {
	wire, err := message.NewReset(messageID).Marshal()
	if err != nil {
		return
	}
	m.send(wire, peer)
}

// PendingExchanges returns the number of pending client exchanges.
func (m *Manager) PendingExchanges() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byToken)
}

// Close cancels all pending exchanges and timers. In-flight requests
// fail with ErrClosed.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	pending := make([]*Exchange, 0, len(m.byToken))
	for _, ex := range m.byToken {
		pending = append(pending, ex)
	}
	m.byToken = make(map[string]*Exchange)
	m.byMID = make(map[epKey]*Exchange)
	m.deferred = make(map[string]message.Type)
	m.mu.Unlock()

	m.retransmit.Clear()
	m.dedup.Clear()

	for _, ex := range pending {
		ex.fail(ExchangeStateCanceled, ErrClosed)
	}
}
