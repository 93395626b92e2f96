// Package message implements the CoAP message and option wire format as
// defined in RFC 7252 Section 3.
//
// The package provides:
//   - Message marshaling/unmarshaling (fixed header, token, options, payload)
//   - Delta-encoded option serialization with both extended escape tiers
//   - The process-wide option registry with per-option value validation
//   - Typed option constructors and accessors with default substitution
package message

// Type identifies the CoAP message type.
// This is encoded in bits 4-5 of the first header byte.
// See RFC 7252 Section 4.2/4.3.
type Type uint8

const (
	// TypeConfirmable messages require acknowledgement and are
	// retransmitted until acknowledged or the retry budget is spent.
	TypeConfirmable Type = 0

	// TypeNonConfirmable messages are fire-and-forget: no ACK, no
	// retransmission.
	TypeNonConfirmable Type = 1

	// TypeAcknowledgement acknowledges a confirmable message. It may carry
	// a piggybacked response or be empty.
	TypeAcknowledgement Type = 2

	// TypeReset indicates a received message could not be processed due to
	// missing context.
	TypeReset Type = 3
)

// String returns a human-readable name for the message type.
func (t Type) String() string {
	switch t {
	case TypeConfirmable:
		return "CON"
	case TypeNonConfirmable:
		return "NON"
	case TypeAcknowledgement:
		return "ACK"
	case TypeReset:
		return "RST"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the type is a defined value.
func (t Type) IsValid() bool {
	return t <= TypeReset
}

// Reliable returns true if messages of this type are retransmitted until
// acknowledged.
func (t Type) Reliable() bool {
	return t == TypeConfirmable
}

// Code is the CoAP request method or response code, encoded as a 3-bit
// class and 5-bit detail (c.dd notation). See RFC 7252 Section 5.2 and
// Section 12.1.
type Code uint8

// Request method codes (class 0).
const (
	// CodeEmpty is the empty code 0.00, used for empty ACK and RST
	// messages and for CoAP ping.
	CodeEmpty Code = 0

	CodeGET    Code = 1
	CodePOST   Code = 2
	CodePUT    Code = 3
	CodeDELETE Code = 4
)

// Response codes (classes 2, 4 and 5).
const (
	CodeCreated Code = 2<<5 | 1
	CodeDeleted Code = 2<<5 | 2
	CodeValid   Code = 2<<5 | 3
	CodeChanged Code = 2<<5 | 4
	CodeContent Code = 2<<5 | 5

	CodeBadRequest               Code = 4 << 5
	CodeUnauthorized             Code = 4<<5 | 1
	CodeBadOption                Code = 4<<5 | 2
	CodeForbidden                Code = 4<<5 | 3
	CodeNotFound                 Code = 4<<5 | 4
	CodeMethodNotAllowed         Code = 4<<5 | 5
	CodeNotAcceptable            Code = 4<<5 | 6
	CodePreconditionFailed       Code = 4<<5 | 12
	CodeRequestEntityTooLarge    Code = 4<<5 | 13
	CodeUnsupportedContentFormat Code = 4<<5 | 15

	CodeInternalServerError  Code = 5 << 5
	CodeNotImplemented       Code = 5<<5 | 1
	CodeBadGateway           Code = 5<<5 | 2
	CodeServiceUnavailable   Code = 5<<5 | 3
	CodeGatewayTimeout       Code = 5<<5 | 4
	CodeProxyingNotSupported Code = 5<<5 | 5
)

// Class returns the code class (0 for requests, 2/4/5 for responses).
func (c Code) Class() uint8 {
	return uint8(c) >> 5
}

// Detail returns the code detail (the dd in c.dd notation).
func (c Code) Detail() uint8 {
	return uint8(c) & 0x1F
}

// IsRequest returns true if the code is a request method (class 0,
// nonzero detail).
func (c Code) IsRequest() bool {
	return c.Class() == 0 && c != CodeEmpty
}

// IsResponse returns true if the code is a response (class 2, 4 or 5).
func (c Code) IsResponse() bool {
	cls := c.Class()
	return cls == 2 || cls == 4 || cls == 5
}

// IsSuccess returns true for class 2 response codes.
func (c Code) IsSuccess() bool {
	return c.Class() == 2
}

// String returns the method name for requests, the dotted c.dd form for
// everything else.
func (c Code) String() string {
	switch c {
	case CodeEmpty:
		return "0.00"
	case CodeGET:
		return "GET"
	case CodePOST:
		return "POST"
	case CodePUT:
		return "PUT"
	case CodeDELETE:
		return "DELETE"
	}
	return codeName(c)
}

func codeName(c Code) string {
	// Dotted class.detail without fmt to keep this allocation-light.
	buf := [4]byte{'0' + c.Class(), '.', '0' + c.Detail()/10, '0' + c.Detail()%10}
	return string(buf[:])
}
