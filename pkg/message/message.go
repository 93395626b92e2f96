package message

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Message represents a single CoAP message: the four header fields, the
// token correlating responses to requests, the ordered option set, and
// the payload. Messages are value objects; the codec does not retain
// them past serialization.
type Message struct {
	Type      Type
	Code      Code
	MessageID uint16

	// Token is the 0-8 byte request correlation token. A response echoes
	// the token of its request unchanged.
	Token []byte

	Options Options
	Payload []byte
}

// NewRequest builds a confirmable request for the given method and URI.
// The URI's host, port, path and query are translated to their
// respective options.
func NewRequest(code Code, uri string) (*Message, error) {
	if !code.IsRequest() {
		return nil, fmt.Errorf("%w: %v is not a request code", ErrMessageFormat, code)
	}
	m := &Message{
		Type: TypeConfirmable,
		Code: code,
	}
	if err := m.SetURIOptions(uri); err != nil {
		return nil, err
	}
	return m, nil
}

// NewAck builds an empty acknowledgement for the given message.
func NewAck(messageID uint16) *Message {
	return &Message{Type: TypeAcknowledgement, Code: CodeEmpty, MessageID: messageID}
}

// NewReset builds a reset for the given message.
func NewReset(messageID uint16) *Message {
	return &Message{Type: TypeReset, Code: CodeEmpty, MessageID: messageID}
}

// IsEmpty returns true for empty (code 0.00) messages such as bare ACKs,
// resets, and pings.
func (m *Message) IsEmpty() bool {
	return m.Code == CodeEmpty
}

// SetURIOptions splits a coap:// URI into Uri-Host, Uri-Port, Uri-Path
// and Uri-Query options per RFC 7252 Section 6.4. The host option is
// elided for IP-literal hosts and the port option for the default port,
// both of which are implied by the datagram destination.
func (m *Message) SetURIOptions(uri string) error {
	u, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOptionFormat, err)
	}
	if u.Scheme != "" && u.Scheme != "coap" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrOptionFormat, u.Scheme)
	}

	if host := u.Hostname(); host != "" && net.ParseIP(host) == nil {
		o, err := StringOption(OptionURIHost, host)
		if err != nil {
			return err
		}
		m.Options = m.Options.Set(o)
	}
	if p := u.Port(); p != "" {
		port, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return fmt.Errorf("%w: port %q", ErrOptionFormat, p)
		}
		if port != DefaultPort {
			o, err := UintOption(OptionURIPort, uint32(port))
			if err != nil {
				return err
			}
			m.Options = m.Options.Set(o)
		}
	}
	if err := m.SetPathString(u.Path); err != nil {
		return err
	}
	if u.RawQuery != "" {
		m.Options = m.Options.Del(OptionURIQuery)
		for _, q := range strings.Split(u.RawQuery, "&") {
			o, err := StringOption(OptionURIQuery, q)
			if err != nil {
				return err
			}
			m.Options = m.Options.Add(o)
		}
	}
	return nil
}

// SetPathString replaces the Uri-Path options with the segments of the
// given path. A leading slash is elided, matching the absolute-path
// representation of the option.
func (m *Message) SetPathString(path string) error {
	m.Options = m.Options.Del(OptionURIPath)
	for _, seg := range strings.Split(strings.TrimPrefix(path, "/"), "/") {
		if seg == "" {
			continue
		}
		o, err := StringOption(OptionURIPath, seg)
		if err != nil {
			return err
		}
		m.Options = m.Options.Add(o)
	}
	return nil
}

// PathString reassembles the Uri-Path options into an absolute path.
func (m *Message) PathString() string {
	segs := m.Options.Path()
	if len(segs) == 0 {
		return "/"
	}
	return "/" + strings.Join(segs, "/")
}

// String renders the message for logging, e.g. "CON GET /sensors/temp [0x1a2b]".
func (m *Message) String() string {
	var b strings.Builder
	b.WriteString(m.Type.String())
	if !m.IsEmpty() {
		b.WriteByte(' ')
		b.WriteString(m.Code.String())
		if m.Code.IsRequest() {
			b.WriteByte(' ')
			b.WriteString(m.PathString())
		}
	}
	fmt.Fprintf(&b, " [0x%04x]", m.MessageID)
	return b.String()
}
