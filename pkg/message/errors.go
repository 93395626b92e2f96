package message

import "errors"

// Message layer errors.
//
// The first group marks malformed messages: an inbound datagram that fails
// with one of these is dropped without a reply, since the sender identity
// and token cannot be trusted. The second group marks option-level
// violations: on an inbound request they translate to a 4.02 Bad Option
// response, on an outbound message they are construction-time failures.
var (
	// Malformed-message errors.
	ErrMessageTooShort    = errors.New("message: data too short")
	ErrInvalidVersion     = errors.New("message: invalid version (must be 1)")
	ErrInvalidTokenLength = errors.New("message: token length exceeds 8")
	ErrOptionTruncated    = errors.New("message: option extends past end of message")
	ErrMessageFormat      = errors.New("message: malformed message format")
	ErrMessageTooLong     = errors.New("message: exceeds maximum size")

	// Option errors.
	ErrOptionFormat               = errors.New("message: option value violates format")
	ErrDuplicateOption            = errors.New("message: repeated non-repeatable option")
	ErrUnrecognizedCriticalOption = errors.New("message: unrecognized critical option")
)

// IsMalformed reports whether err marks a message that could not be parsed
// at all (as opposed to an option-level violation on a parseable message).
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMessageTooShort) ||
		errors.Is(err, ErrInvalidVersion) ||
		errors.Is(err, ErrInvalidTokenLength) ||
		errors.Is(err, ErrOptionTruncated) ||
		errors.Is(err, ErrMessageFormat) ||
		errors.Is(err, ErrMessageTooLong)
}

// Wire format constants from RFC 7252.
const (
	// Version is the only defined CoAP version (Section 3).
	Version uint8 = 1

	// HeaderSize is the fixed header size in bytes:
	// Ver/Type/TKL (1) + Code (1) + Message ID (2).
	HeaderSize = 4

	// MaxTokenLength is the maximum token size in bytes (Section 3).
	// TKL values 9-15 are reserved.
	MaxTokenLength = 8

	// PayloadMarker separates the option list from a non-empty payload.
	PayloadMarker uint8 = 0xFF

	// MaxMessageSize is the default maximum datagram size a CoAP endpoint
	// must be able to absorb (Section 4.6).
	MaxMessageSize = 1152
)

// Option nibble escape values (Section 3.1). A nibble of 13 extends the
// delta or length by one byte (value - 13); 14 extends by two big-endian
// bytes (value - 269); 15 is reserved except in the payload marker.
const (
	extendNibble8  = 13
	extendNibble16 = 14
	reservedNibble = 15

	extendOffset8  = 13
	extendOffset16 = 269
)
