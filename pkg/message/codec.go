package message

import (
	"encoding/binary"
	"fmt"
)

// Marshal serializes the message to wire format: fixed header, token,
// options sorted by ascending number with each number encoded as a delta
// from the previous one, then a payload marker and payload if the payload
// is non-empty (RFC 7252 Section 3).
func (m *Message) Marshal() ([]byte, error) {
	if !m.Type.IsValid() {
		return nil, fmt.Errorf("%w: type %d", ErrMessageFormat, m.Type)
	}
	if len(m.Token) > MaxTokenLength {
		return nil, ErrInvalidTokenLength
	}

	buf := make([]byte, HeaderSize, HeaderSize+len(m.Token)+len(m.Payload)+8*len(m.Options))
	h := header{
		Type:        m.Type,
		TokenLength: uint8(len(m.Token)),
		Code:        m.Code,
		MessageID:   m.MessageID,
	}
	h.encodeTo(buf)
	buf = append(buf, m.Token...)

	var prev OptionID
	for _, o := range m.Options.sorted() {
		var err error
		buf, err = appendOption(buf, uint32(o.ID-prev), o.Value)
		if err != nil {
			return nil, err
		}
		prev = o.ID
	}

	if len(m.Payload) > 0 {
		buf = append(buf, PayloadMarker)
		buf = append(buf, m.Payload...)
	}
	return buf, nil
}

// appendOption appends one delta-encoded option. Both the delta and the
// value length use the nibble scheme with the one- and two-byte extended
// escapes.
func appendOption(buf []byte, delta uint32, value []byte) ([]byte, error) {
	dn, dext, err := splitExtended(delta)
	if err != nil {
		return nil, err
	}
	ln, lext, err := splitExtended(uint32(len(value)))
	if err != nil {
		return nil, err
	}
	buf = append(buf, dn<<4|ln)
	buf = append(buf, dext...)
	buf = append(buf, lext...)
	return append(buf, value...), nil
}

// splitExtended encodes a delta or length value into its 4-bit nibble and
// extended bytes (RFC 7252 Section 3.1).
func splitExtended(v uint32) (nibble uint8, ext []byte, err error) {
	switch {
	case v < extendNibble8:
		return uint8(v), nil, nil
	case v < extendOffset16:
		return extendNibble8, []byte{uint8(v - extendOffset8)}, nil
	case v < extendOffset16+1<<16:
		ext = make([]byte, 2)
		binary.BigEndian.PutUint16(ext, uint16(v-extendOffset16))
		return extendNibble16, ext, nil
	default:
		return 0, nil, fmt.Errorf("%w: option delta/length %d unencodable", ErrMessageFormat, v)
	}
}

// Unmarshal parses a wire-format message. Structural failures (bad
// header, truncated option, stray payload marker) return a
// malformed-message error. Option values are not validated here; call
// Options.Validate on the result to enforce registry constraints.
func Unmarshal(data []byte) (*Message, error) {
	h, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}
	if len(data) > MaxMessageSize {
		return nil, ErrMessageTooLong
	}

	off := HeaderSize
	if len(data) < off+int(h.TokenLength) {
		return nil, ErrMessageTooShort
	}
	m := &Message{
		Type:      h.Type,
		Code:      h.Code,
		MessageID: h.MessageID,
	}
	if h.TokenLength > 0 {
		m.Token = make([]byte, h.TokenLength)
		copy(m.Token, data[off:])
		off += int(h.TokenLength)
	}

	var current uint32
	for off < len(data) {
		if data[off] == PayloadMarker {
			off++
			if off == len(data) {
				return nil, fmt.Errorf("%w: payload marker with empty payload", ErrMessageFormat)
			}
			m.Payload = make([]byte, len(data)-off)
			copy(m.Payload, data[off:])
			return m, nil
		}

		dn := data[off] >> 4
		ln := data[off] & 0x0F
		off++

		delta, n, err := joinExtended(dn, data[off:])
		if err != nil {
			return nil, err
		}
		off += n
		length, n, err := joinExtended(ln, data[off:])
		if err != nil {
			return nil, err
		}
		off += n

		current += delta
		if current > 0xFFFF {
			return nil, fmt.Errorf("%w: option number overflow", ErrMessageFormat)
		}
		if off+int(length) > len(data) {
			return nil, ErrOptionTruncated
		}
		value := make([]byte, length)
		copy(value, data[off:])
		off += int(length)

		m.Options = append(m.Options, Option{ID: OptionID(current), Value: value})
	}
	return m, nil
}

// joinExtended decodes a delta or length nibble plus its extended bytes,
// returning the value and the number of extended bytes consumed.
func joinExtended(nibble uint8, data []byte) (v uint32, n int, err error) {
	switch nibble {
	case reservedNibble:
		return 0, 0, fmt.Errorf("%w: reserved option nibble 15", ErrMessageFormat)
	case extendNibble8:
		if len(data) < 1 {
			return 0, 0, ErrOptionTruncated
		}
		return uint32(data[0]) + extendOffset8, 1, nil
	case extendNibble16:
		if len(data) < 2 {
			return 0, 0, ErrOptionTruncated
		}
		return uint32(binary.BigEndian.Uint16(data)) + extendOffset16, 2, nil
	default:
		return uint32(nibble), 0, nil
	}
}
