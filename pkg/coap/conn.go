// Package coap is the endpoint layer: a Conn binds a UDP socket, runs
// the message exchange engine behind it, and exposes a client request
// API and a server-side resource mux with CoRE discovery.
package coap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"

	"github.com/pion/logging"

	"github.com/coapkit/coap/pkg/exchange"
	"github.com/coapkit/coap/pkg/link"
	"github.com/coapkit/coap/pkg/message"
	"github.com/coapkit/coap/pkg/transport"
)

// Conn is a CoAP endpoint over UDP. One Conn serves both roles: it
// issues client requests and answers inbound requests from its mux.
type Conn struct {
	config  Config
	log     logging.LeveledLogger
	mux     *mux
	udp     *transport.UDP
	manager *exchange.Manager

	mu      sync.Mutex
	started bool
	closed  bool
}

// NewConn creates a Conn from the given configuration. The socket is
// bound immediately; call Start to begin receiving.
func NewConn(config Config) (*Conn, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	c := &Conn{
		config: config,
		mux:    newMux(),
	}
	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("coap")
	}

	udp, err := transport.NewUDP(transport.UDPConfig{
		Conn:            config.PacketConn,
		ListenAddr:      config.ListenAddr,
		DatagramHandler: c.handleDatagram,
		LoggerFactory:   config.LoggerFactory,
	})
	if err != nil {
		return nil, err
	}
	c.udp = udp

	manager, err := exchange.NewManager(exchange.Config{
		Sender:        udp,
		Handler:       c.dispatch,
		Params:        config.Params,
		LoggerFactory: config.LoggerFactory,
	})
	if err != nil {
		udp.Stop()
		return nil, err
	}
	c.manager = manager

	if err := c.mux.handle(WellKnownCorePath, c.serveWellKnown, nil); err != nil {
		udp.Stop()
		return nil, err
	}

	return c, nil
}

// Start begins receiving datagrams.
func (c *Conn) Start() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConnClosed
	}
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.mu.Unlock()

	if c.log != nil {
		c.log.Infof("starting CoAP endpoint on %s", c.udp.LocalAddr())
	}
	return c.udp.Start()
}

// Stop cancels all pending exchanges and closes the socket. Pending
// requests fail with the exchange engine's closed error.
func (c *Conn) Stop() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConnClosed
	}
	c.closed = true
	c.mu.Unlock()

	if c.log != nil {
		c.log.Info("stopping CoAP endpoint")
	}

	c.manager.Close()
	return c.udp.Stop()
}

// LocalAddr returns the bound UDP address.
func (c *Conn) LocalAddr() net.Addr {
	return c.udp.LocalAddr()
}

// Handle registers a handler for a path pattern. A pattern ending in
// "/*" matches the prefix and everything below it; exact registrations
// take precedence. The optional link attributes are advertised at
// /.well-known/core.
func (c *Conn) Handle(pattern string, h HandlerFunc, attrs ...link.Param) error {
	return c.mux.handle(pattern, h, attrs)
}

// Request sends a confirmable request to the endpoint named by the URI
// and waits for the correlated response. The URI's path and query become
// Uri-Path and Uri-Query options; opts carries any further options.
// Cancellation of ctx abandons the exchange and stops retransmission.
func (c *Conn) Request(ctx context.Context, code message.Code, uri string, opts message.Options, payload []byte) (*message.Message, error) {
	req, err := message.NewRequest(code, uri)
	if err != nil {
		return nil, err
	}
	for _, o := range opts {
		req.Options = req.Options.Add(o)
	}
	req.Payload = payload

	peer, err := ResolvePeer(uri)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, req, peer)
}

// Do sends a prepared request message to the given peer and waits for
// the response. Use it when Request's URI form is not enough, such as
// for non-confirmable requests.
func (c *Conn) Do(ctx context.Context, req *message.Message, peer transport.PeerAddress) (*message.Message, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrConnClosed
	}
	if !c.started {
		c.mu.Unlock()
		return nil, ErrNotStarted
	}
	c.mu.Unlock()

	ex, err := c.manager.SendRequest(req, peer)
	if err != nil {
		return nil, err
	}
	return ex.Response(ctx)
}

// Get issues a confirmable GET request.
func (c *Conn) Get(ctx context.Context, uri string) (*message.Message, error) {
	return c.Request(ctx, message.CodeGET, uri, nil, nil)
}

// Post issues a confirmable POST request.
func (c *Conn) Post(ctx context.Context, uri string, contentFormat uint32, payload []byte) (*message.Message, error) {
	opts, err := payloadOptions(contentFormat)
	if err != nil {
		return nil, err
	}
	return c.Request(ctx, message.CodePOST, uri, opts, payload)
}

// Put issues a confirmable PUT request.
func (c *Conn) Put(ctx context.Context, uri string, contentFormat uint32, payload []byte) (*message.Message, error) {
	opts, err := payloadOptions(contentFormat)
	if err != nil {
		return nil, err
	}
	return c.Request(ctx, message.CodePUT, uri, opts, payload)
}

// Delete issues a confirmable DELETE request.
func (c *Conn) Delete(ctx context.Context, uri string) (*message.Message, error) {
	return c.Request(ctx, message.CodeDELETE, uri, nil, nil)
}

func payloadOptions(contentFormat uint32) (message.Options, error) {
	o, err := message.UintOption(message.OptionContentFormat, contentFormat)
	if err != nil {
		return nil, err
	}
	return message.Options{o}, nil
}

// SendResponse transmits the delayed response for a request whose
// handler returned ErrSeparateResponse.
func (c *Conn) SendResponse(req *Request, resp *Response) error {
	msg := responseMessage(resp)
	msg.Token = append([]byte(nil), req.Message.Token...)
	return c.manager.SendSeparateResponse(req.Peer, msg)
}

// handleDatagram feeds inbound datagrams to the exchange engine. The
// manager is assigned before Start, so it is always set by the time the
// read loop runs.
func (c *Conn) handleDatagram(dg *transport.Datagram) {
	c.manager.HandleDatagram(dg)
}

// dispatch is the exchange engine's request handler: it routes the
// request through the mux and translates the handler's result into a
// response message, or nil to signal a deferred response.
func (c *Conn) dispatch(peer transport.PeerAddress, msg *message.Message) *message.Message {
	req := &Request{Peer: peer, Message: msg}

	h, ok := c.mux.match(msg.PathString())
	if !ok {
		return &message.Message{Code: message.CodeNotFound}
	}

	resp, err := h(req)
	switch {
	case errors.Is(err, ErrSeparateResponse):
		return nil
	case errors.Is(err, ErrMethodNotAllowed):
		return &message.Message{Code: message.CodeMethodNotAllowed}
	case errors.Is(err, ErrNotFound):
		return &message.Message{Code: message.CodeNotFound}
	case err != nil:
		if c.log != nil {
			c.log.Warnf("handler for %s failed: %v", msg.PathString(), err)
		}
		return &message.Message{
			Code:    message.CodeInternalServerError,
			Payload: []byte(err.Error()),
		}
	case resp == nil:
		if c.log != nil {
			c.log.Warnf("handler for %s returned no response", msg.PathString())
		}
		return &message.Message{Code: message.CodeInternalServerError}
	}

	out := responseMessage(resp)
	if !out.Code.IsResponse() {
		if c.log != nil {
			c.log.Warnf("handler for %s returned non-response code %v", msg.PathString(), resp.Code)
		}
		return &message.Message{Code: message.CodeInternalServerError}
	}
	return out
}

func responseMessage(resp *Response) *message.Message {
	code := resp.Code
	if code == message.CodeEmpty {
		code = message.CodeContent
	}
	return &message.Message{
		Code:    code,
		Options: resp.Options,
		Payload: resp.Payload,
	}
}

// ResolvePeer derives the peer's UDP address from a coap URI. Use it
// with Do when a prepared message must be addressed by URI.
func ResolvePeer(uri string) (transport.PeerAddress, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return transport.PeerAddress{}, fmt.Errorf("coap: invalid URI %q: %w", uri, err)
	}
	if u.Scheme != "coap" {
		return transport.PeerAddress{}, fmt.Errorf("coap: unsupported scheme %q", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return transport.PeerAddress{}, fmt.Errorf("coap: URI %q has no host", uri)
	}
	port := u.Port()
	if port == "" {
		port = fmt.Sprintf("%d", DefaultPort)
	}

	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, port))
	if err != nil {
		return transport.PeerAddress{}, fmt.Errorf("coap: cannot resolve %q: %w", uri, err)
	}
	return transport.NewPeerAddress(addr), nil
}
