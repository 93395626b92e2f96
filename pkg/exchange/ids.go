package exchange

import (
	"crypto/rand"
	"encoding/binary"
	"sync"

	"github.com/coapkit/coap/pkg/message"
)

// messageIDSource allocates message IDs for an endpoint: a random
// starting point, then a simple increment. The random start keeps IDs
// from colliding with a restarted peer still holding dedup state
// (RFC 7252 Section 4.4).
type messageIDSource struct {
	mu   sync.Mutex
	next uint16
}

func newMessageIDSource() *messageIDSource {
	var seed [2]byte
	// rand.Read on the default source never fails in practice; a zero
	// start is acceptable if it does.
	rand.Read(seed[:])
	return &messageIDSource{next: binary.BigEndian.Uint16(seed[:])}
}

// Next returns the next message ID.
func (s *messageIDSource) Next() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	return id
}

// NewToken generates a fresh request token from crypto/rand.
func NewToken() ([]byte, error) {
	token := make([]byte, message.MaxTokenLength)
	if _, err := rand.Read(token); err != nil {
		return nil, err
	}
	return token, nil
}
