package coap

import (
	"errors"
	"fmt"

	"github.com/coapkit/coap/pkg/message"
)

// Errors returned by the coap package.
var (
	// ErrSeparateResponse is returned by a handler to defer its response:
	// the request is acknowledged immediately and the handler answers
	// later via Conn.SendResponse.
	ErrSeparateResponse = errors.New("coap: response will be sent separately")

	// ErrMethodNotAllowed is returned by a handler that does not serve
	// the request method; it becomes a 4.05 response.
	ErrMethodNotAllowed = errors.New("coap: method not allowed")

	// ErrNotFound is returned by a handler for a resource it cannot
	// resolve; it becomes a 4.04 response.
	ErrNotFound = errors.New("coap: not found")

	// ErrConnClosed is returned for operations on a stopped connection.
	ErrConnClosed = errors.New("coap: connection closed")

	// ErrNotStarted is returned when an operation requires a started
	// connection.
	ErrNotStarted = errors.New("coap: connection not started")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("coap: connection already started")

	// ErrInvalidPattern is returned when registering a malformed path
	// pattern.
	ErrInvalidPattern = errors.New("coap: invalid path pattern")
)

// ResponseError reports a non-success response where a success was
// required, carrying the code and the diagnostic payload, if any.
type ResponseError struct {
	Code       message.Code
	Diagnostic string
}

func (e *ResponseError) Error() string {
	if e.Diagnostic == "" {
		return fmt.Sprintf("coap: response %v", e.Code)
	}
	return fmt.Sprintf("coap: response %v: %s", e.Code, e.Diagnostic)
}
