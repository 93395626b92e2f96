package message

import (
	"encoding/binary"
)

// header is the fixed 4-byte CoAP header (RFC 7252 Section 3):
//
//	0                   1                   2                   3
//	0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	|Ver| T |  TKL  |      Code     |          Message ID           |
type header struct {
	Type        Type
	TokenLength uint8
	Code        Code
	MessageID   uint16
}

// encodeTo writes the header into buf, which must be at least
// HeaderSize bytes.
func (h header) encodeTo(buf []byte) {
	buf[0] = Version<<6 | uint8(h.Type)<<4 | h.TokenLength&0x0F
	buf[1] = uint8(h.Code)
	binary.BigEndian.PutUint16(buf[2:], h.MessageID)
}

// decodeHeader parses the fixed header.
func decodeHeader(data []byte) (header, error) {
	if len(data) < HeaderSize {
		return header{}, ErrMessageTooShort
	}
	if data[0]>>6 != Version {
		return header{}, ErrInvalidVersion
	}
	h := header{
		Type:        Type(data[0] >> 4 & 0x03),
		TokenLength: data[0] & 0x0F,
		Code:        Code(data[1]),
		MessageID:   binary.BigEndian.Uint16(data[2:]),
	}
	if h.TokenLength > MaxTokenLength {
		return header{}, ErrInvalidTokenLength
	}
	return h, nil
}
