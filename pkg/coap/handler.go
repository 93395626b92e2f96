package coap

import (
	"github.com/coapkit/coap/pkg/message"
	"github.com/coapkit/coap/pkg/transport"
)

// Request is one decoded inbound request as seen by a handler.
type Request struct {
	// Peer is the address the request arrived from.
	Peer transport.PeerAddress

	// Message is the decoded request message.
	Message *message.Message
}

// Path returns the request path reassembled from the Uri-Path options.
func (r *Request) Path() string {
	return r.Message.PathString()
}

// Queries returns the Uri-Query arguments, in order.
func (r *Request) Queries() []string {
	return r.Message.Options.Queries()
}

// Response is what a handler returns. A zero Code is sent as 2.05
// Content.
type Response struct {
	Code    message.Code
	Options message.Options
	Payload []byte
}

// HandlerFunc serves a single request. Returning ErrSeparateResponse
// acknowledges the request immediately and obliges the handler to answer
// later through Conn.SendResponse. ErrMethodNotAllowed and ErrNotFound
// map to their response codes; any other error becomes a 5.00 with the
// error text as diagnostic payload.
type HandlerFunc func(req *Request) (*Response, error)
