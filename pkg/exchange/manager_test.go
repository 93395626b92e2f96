package exchange

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/coapkit/coap/pkg/message"
	"github.com/coapkit/coap/pkg/transport"
)

// captureSender records outbound datagrams instead of sending them.
type captureSender struct {
	mu   sync.Mutex
	sent [][]byte
}

func (s *captureSender) Send(data []byte, addr net.Addr) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	s.sent = append(s.sent, buf)
	return nil
}

func (s *captureSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func (s *captureSender) datagram(t *testing.T, i int) *message.Message {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= len(s.sent) {
		t.Fatalf("datagram %d not sent (have %d)", i, len(s.sent))
	}
	m, err := message.Unmarshal(s.sent[i])
	if err != nil {
		t.Fatalf("sent datagram %d unparseable: %v", i, err)
	}
	return m
}

func fastParams() TransmissionParams {
	p := DefaultParams()
	p.AckTimeout = 20 * time.Millisecond
	p.AckRandomFactor = 1.0
	p.MaxRetransmit = 2
	p.ExchangeLifetime = time.Second
	return p
}

func newTestManager(t *testing.T, handler RequestHandler) (*Manager, *captureSender) {
	t.Helper()
	sender := &captureSender{}
	m, err := NewManager(Config{
		Sender:  sender,
		Handler: handler,
		Params:  fastParams(),
	})
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}
	return m, sender
}

func deliver(m *Manager, peer transport.PeerAddress, msg *message.Message) error {
	wire, err := msg.Marshal()
	if err != nil {
		return err
	}
	m.HandleDatagram(&transport.Datagram{Data: wire, PeerAddr: peer})
	return nil
}

func getRequest(t *testing.T, uri string) *message.Message {
	t.Helper()
	req, err := message.NewRequest(message.CodeGET, uri)
	if err != nil {
		t.Fatalf("NewRequest() error: %v", err)
	}
	return req
}

func TestSendRequestAssignsTokenAndMessageID(t *testing.T) {
	m, sender := newTestManager(t, nil)
	defer m.Close()

	ex, err := m.SendRequest(getRequest(t, "coap://example.com/a"), testPeer(5683))
	if err != nil {
		t.Fatalf("SendRequest() error: %v", err)
	}
	defer ex.Cancel()

	if len(ex.Token) != message.MaxTokenLength {
		t.Errorf("token length = %d, want %d", len(ex.Token), message.MaxTokenLength)
	}
	if ex.State() != ExchangeStateSentCon {
		t.Errorf("State() = %v, want SentCon", ex.State())
	}

	sent := sender.datagram(t, 0)
	if sent.MessageID != ex.MessageID || !bytes.Equal(sent.Token, ex.Token) {
		t.Error("wire message does not match exchange identity")
	}
}

func TestSendRequestRejectsInvalid(t *testing.T) {
	m, _ := newTestManager(t, nil)
	defer m.Close()
	peer := testPeer(5683)

	ack := &message.Message{Type: message.TypeAcknowledgement, Code: message.CodeGET}
	if _, err := m.SendRequest(ack, peer); !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("ACK request error = %v, want %v", err, ErrInvalidMessage)
	}

	resp := &message.Message{Type: message.TypeConfirmable, Code: message.CodeContent}
	if _, err := m.SendRequest(resp, peer); !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("response-code request error = %v, want %v", err, ErrInvalidMessage)
	}

	dup := getRequest(t, "coap://example.com/a")
	dup.Options = dup.Options.Add(message.Option{ID: message.OptionContentFormat, Value: nil})
	dup.Options = dup.Options.Add(message.Option{ID: message.OptionContentFormat, Value: []byte{40}})
	if _, err := m.SendRequest(dup, peer); !errors.Is(err, message.ErrDuplicateOption) {
		t.Errorf("duplicate option error = %v, want %v", err, message.ErrDuplicateOption)
	}
}

func TestPiggybackedResponseCompletesExchange(t *testing.T) {
	m, _ := newTestManager(t, nil)
	defer m.Close()
	peer := testPeer(5683)

	ex, err := m.SendRequest(getRequest(t, "coap://example.com/a"), peer)
	if err != nil {
		t.Fatalf("SendRequest() error: %v", err)
	}

	resp := &message.Message{
		Type:      message.TypeAcknowledgement,
		Code:      message.CodeContent,
		MessageID: ex.MessageID,
		Token:     ex.Token,
		Payload:   []byte("22.5"),
	}
	if err := deliver(m, peer, resp); err != nil {
		t.Fatal(err)
	}

	got, err := ex.Response(context.Background())
	if err != nil {
		t.Fatalf("Response() error: %v", err)
	}
	if got.Code != message.CodeContent || !bytes.Equal(got.Payload, []byte("22.5")) {
		t.Errorf("Response() = %v %q", got.Code, got.Payload)
	}
	if ex.State() != ExchangeStateCompleted {
		t.Errorf("State() = %v, want Completed", ex.State())
	}
	if m.PendingExchanges() != 0 {
		t.Errorf("PendingExchanges() = %d, want 0", m.PendingExchanges())
	}
}

func TestSeparateResponseFlow(t *testing.T) {
	m, sender := newTestManager(t, nil)
	defer m.Close()
	peer := testPeer(5683)

	ex, err := m.SendRequest(getRequest(t, "coap://example.com/slow"), peer)
	if err != nil {
		t.Fatalf("SendRequest() error: %v", err)
	}

	// Bare ACK: retransmission stops, exchange stays open.
	deliver(m, peer, message.NewAck(ex.MessageID))
	if ex.State() != ExchangeStateAckReceived {
		t.Fatalf("State() = %v after bare ACK, want AckReceived", ex.State())
	}
	if m.retransmit.Count() != 0 {
		t.Error("retransmit entry survived the ACK")
	}

	// Separate CON response with the same token.
	resp := &message.Message{
		Type:      message.TypeConfirmable,
		Code:      message.CodeContent,
		MessageID: 0x7777,
		Token:     ex.Token,
		Payload:   []byte("later"),
	}
	deliver(m, peer, resp)

	got, err := ex.Response(context.Background())
	if err != nil {
		t.Fatalf("Response() error: %v", err)
	}
	if !bytes.Equal(got.Payload, []byte("later")) {
		t.Errorf("Response() payload = %q, want %q", got.Payload, "later")
	}

	// The CON response must have been acknowledged.
	last := sender.datagram(t, sender.count()-1)
	if last.Type != message.TypeAcknowledgement || !last.IsEmpty() || last.MessageID != 0x7777 {
		t.Errorf("last datagram = %v, want empty ACK for 0x7777", last)
	}
}

func TestResetFailsExchange(t *testing.T) {
	m, _ := newTestManager(t, nil)
	defer m.Close()
	peer := testPeer(5683)

	ex, err := m.SendRequest(getRequest(t, "coap://example.com/a"), peer)
	if err != nil {
		t.Fatalf("SendRequest() error: %v", err)
	}

	deliver(m, peer, message.NewReset(ex.MessageID))

	if _, err := ex.Response(context.Background()); !errors.Is(err, ErrPeerReset) {
		t.Errorf("Response() error = %v, want %v", err, ErrPeerReset)
	}
	if ex.State() != ExchangeStateRstReceived {
		t.Errorf("State() = %v, want RstReceived", ex.State())
	}
}

func TestRetransmissionExhaustionSingleTimeout(t *testing.T) {
	m, sender := newTestManager(t, nil)
	defer m.Close()

	ex, err := m.SendRequest(getRequest(t, "coap://example.com/a"), testPeer(5683))
	if err != nil {
		t.Fatalf("SendRequest() error: %v", err)
	}

	_, err = ex.Response(context.Background())
	if !errors.Is(err, ErrExchangeTimeout) {
		t.Fatalf("Response() error = %v, want %v", err, ErrExchangeTimeout)
	}
	if ex.State() != ExchangeStateTimedOut {
		t.Errorf("State() = %v, want TimedOut", ex.State())
	}

	// Initial transmission plus MaxRetransmit retries, byte-identical.
	want := 1 + fastParams().MaxRetransmit
	if got := sender.count(); got != want {
		t.Errorf("transmissions = %d, want %d", got, want)
	}
	sender.mu.Lock()
	for i := 1; i < len(sender.sent); i++ {
		if !bytes.Equal(sender.sent[i], sender.sent[0]) {
			t.Errorf("retransmission %d differs from original", i)
		}
	}
	sender.mu.Unlock()

	// A late reply after the timeout must not resurrect the exchange.
	deliver(m, testPeer(5683), message.NewAck(ex.MessageID))
	if ex.State() != ExchangeStateTimedOut {
		t.Error("late ACK changed a terminal state")
	}
}

func TestNStartLimitsOutstandingExchanges(t *testing.T) {
	m, _ := newTestManager(t, nil)
	defer m.Close()
	peer := testPeer(5683)

	ex, err := m.SendRequest(getRequest(t, "coap://example.com/a"), peer)
	if err != nil {
		t.Fatalf("SendRequest() error: %v", err)
	}
	defer ex.Cancel()

	if _, err := m.SendRequest(getRequest(t, "coap://example.com/b"), peer); !errors.Is(err, ErrTooManyRequests) {
		t.Errorf("second CON error = %v, want %v", err, ErrTooManyRequests)
	}

	// A different peer has its own budget.
	other, err := m.SendRequest(getRequest(t, "coap://example.com/c"), testPeer(5684))
	if err != nil {
		t.Errorf("CON to second peer error = %v", err)
	} else {
		other.Cancel()
	}
}

func TestCancelStopsRetransmission(t *testing.T) {
	m, sender := newTestManager(t, nil)
	defer m.Close()

	ex, err := m.SendRequest(getRequest(t, "coap://example.com/a"), testPeer(5683))
	if err != nil {
		t.Fatalf("SendRequest() error: %v", err)
	}
	ex.Cancel()

	if _, err := ex.Response(context.Background()); !errors.Is(err, ErrExchangeCanceled) {
		t.Errorf("Response() error = %v, want %v", err, ErrExchangeCanceled)
	}

	sent := sender.count()
	time.Sleep(100 * time.Millisecond)
	if sender.count() != sent {
		t.Error("retransmissions continued after Cancel")
	}
}

func TestDedupIdempotence(t *testing.T) {
	invocations := 0
	m, sender := newTestManager(t, func(peer transport.PeerAddress, req *message.Message) *message.Message {
		invocations++
		return &message.Message{Code: message.CodeContent, Payload: []byte("once")}
	})
	defer m.Close()
	peer := testPeer(9999)

	req := &message.Message{
		Type:      message.TypeConfirmable,
		Code:      message.CodeGET,
		MessageID: 0x0101,
		Token:     []byte{0xAA},
	}
	deliver(m, peer, req)
	deliver(m, peer, req)

	if invocations != 1 {
		t.Errorf("handler invocations = %d, want 1", invocations)
	}
	if sender.count() != 2 {
		t.Fatalf("replies = %d, want 2", sender.count())
	}
	sender.mu.Lock()
	identical := bytes.Equal(sender.sent[0], sender.sent[1])
	sender.mu.Unlock()
	if !identical {
		t.Error("duplicate reply differs from original")
	}

	first := sender.datagram(t, 0)
	if first.Type != message.TypeAcknowledgement || first.Code != message.CodeContent {
		t.Errorf("reply = %v, want piggybacked 2.05", first)
	}
	if first.MessageID != req.MessageID || !bytes.Equal(first.Token, req.Token) {
		t.Error("reply does not echo message ID and token")
	}
}

func TestDuplicateNonSilentlyDropped(t *testing.T) {
	invocations := 0
	m, sender := newTestManager(t, func(peer transport.PeerAddress, req *message.Message) *message.Message {
		invocations++
		return &message.Message{Code: message.CodeContent}
	})
	defer m.Close()
	peer := testPeer(9999)

	req := &message.Message{
		Type:      message.TypeNonConfirmable,
		Code:      message.CodeGET,
		MessageID: 0x0202,
		Token:     []byte{0xBB},
	}
	deliver(m, peer, req)
	deliver(m, peer, req)

	if invocations != 1 {
		t.Errorf("handler invocations = %d, want 1", invocations)
	}
	if sender.count() != 1 {
		t.Errorf("replies = %d, want 1 (duplicate NON answered)", sender.count())
	}
	if resp := sender.datagram(t, 0); resp.Type != message.TypeNonConfirmable {
		t.Errorf("NON request answered with %v, want NON", resp.Type)
	}
}

func TestUnrecognizedCriticalOptionBadOption(t *testing.T) {
	invocations := 0
	m, sender := newTestManager(t, func(peer transport.PeerAddress, req *message.Message) *message.Message {
		invocations++
		return &message.Message{Code: message.CodeContent}
	})
	defer m.Close()
	peer := testPeer(9999)

	req := &message.Message{
		Type:      message.TypeConfirmable,
		Code:      message.CodeGET,
		MessageID: 0x0303,
		Token:     []byte{0xCC},
		Options:   message.Options{{ID: 9, Value: []byte{1}}},
	}
	deliver(m, peer, req)

	if invocations != 0 {
		t.Errorf("handler invoked %d times for bad request, want 0", invocations)
	}
	resp := sender.datagram(t, 0)
	if resp.Code != message.CodeBadOption {
		t.Errorf("response code = %v, want 4.02", resp.Code)
	}
	if resp.Type != message.TypeAcknowledgement || resp.MessageID != req.MessageID {
		t.Error("4.02 is not piggybacked on the request's message ID")
	}
}

func TestDeferredRequestAckedThenAnswered(t *testing.T) {
	m, sender := newTestManager(t, func(peer transport.PeerAddress, req *message.Message) *message.Message {
		return nil // answer later
	})
	defer m.Close()
	peer := testPeer(9999)

	req := &message.Message{
		Type:      message.TypeConfirmable,
		Code:      message.CodeGET,
		MessageID: 0x0404,
		Token:     []byte{0xDD},
	}
	deliver(m, peer, req)

	ack := sender.datagram(t, 0)
	if ack.Type != message.TypeAcknowledgement || !ack.IsEmpty() || ack.MessageID != req.MessageID {
		t.Fatalf("first reply = %v, want empty ACK", ack)
	}

	err := m.SendSeparateResponse(peer, &message.Message{
		Code:    message.CodeContent,
		Token:   req.Token,
		Payload: []byte("ready"),
	})
	if err != nil {
		t.Fatalf("SendSeparateResponse() error: %v", err)
	}

	resp := sender.datagram(t, 1)
	if resp.Type != message.TypeConfirmable || resp.Code != message.CodeContent {
		t.Errorf("separate response = %v, want CON 2.05", resp)
	}
	if !bytes.Equal(resp.Token, req.Token) {
		t.Error("separate response does not echo the request token")
	}
	if resp.MessageID == req.MessageID {
		t.Error("separate response reuses the request message ID")
	}

	// Answering twice must fail.
	err = m.SendSeparateResponse(peer, &message.Message{Code: message.CodeContent, Token: req.Token})
	if !errors.Is(err, ErrExchangeNotFound) {
		t.Errorf("second SendSeparateResponse() error = %v, want %v", err, ErrExchangeNotFound)
	}
}

func TestPingProvokesReset(t *testing.T) {
	m, sender := newTestManager(t, nil)
	defer m.Close()
	peer := testPeer(9999)

	ping := &message.Message{Type: message.TypeConfirmable, Code: message.CodeEmpty, MessageID: 0x0505}
	deliver(m, peer, ping)

	rst := sender.datagram(t, 0)
	if rst.Type != message.TypeReset || rst.MessageID != ping.MessageID {
		t.Errorf("ping reply = %v, want RST for 0x0505", rst)
	}
}

func TestUncorrelatedConResponseRejected(t *testing.T) {
	m, sender := newTestManager(t, nil)
	defer m.Close()
	peer := testPeer(9999)

	resp := &message.Message{
		Type:      message.TypeConfirmable,
		Code:      message.CodeContent,
		MessageID: 0x0606,
		Token:     []byte{0xEE},
	}
	deliver(m, peer, resp)

	rst := sender.datagram(t, 0)
	if rst.Type != message.TypeReset || rst.MessageID != resp.MessageID {
		t.Errorf("reply = %v, want RST for the stray response", rst)
	}
}

func TestCloseFailsPendingExchanges(t *testing.T) {
	m, _ := newTestManager(t, nil)

	ex, err := m.SendRequest(getRequest(t, "coap://example.com/a"), testPeer(5683))
	if err != nil {
		t.Fatalf("SendRequest() error: %v", err)
	}

	m.Close()

	if _, err := ex.Response(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Response() error = %v, want %v", err, ErrClosed)
	}
	if _, err := m.SendRequest(getRequest(t, "coap://example.com/b"), testPeer(5683)); !errors.Is(err, ErrClosed) {
		t.Errorf("SendRequest() after Close error = %v, want %v", err, ErrClosed)
	}
}
