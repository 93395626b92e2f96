package exchange

import (
	"sync"
	"time"

	"github.com/coapkit/coap/pkg/transport"
)

// epKey identifies a message within the endpoint: source peer plus
// message ID. Both the dedup and retransmit tables key on it.
type epKey struct {
	peer      string
	messageID uint16
}

func newEpKey(peer transport.PeerAddress, messageID uint16) epKey {
	return epKey{peer: peer.Key(), messageID: messageID}
}

// dedupEntry remembers one received message ID. For confirmable
// messages the reply sent for it is cached so a duplicate can be
// answered verbatim without re-invoking application logic
// (RFC 7252 Section 4.2).
type dedupEntry struct {
	reply   []byte
	expires time.Time
}

// DedupTable tracks recently seen (peer, message ID) pairs within the
// EXCHANGE_LIFETIME window. Thread-safe.
type DedupTable struct {
	mu       sync.Mutex
	entries  map[epKey]*dedupEntry
	lifetime time.Duration
	now      func() time.Time
}

// NewDedupTable creates a dedup table with the given retention window.
func NewDedupTable(lifetime time.Duration) *DedupTable {
	return &DedupTable{
		entries:  make(map[epKey]*dedupEntry),
		lifetime: lifetime,
		now:      time.Now,
	}
}

// Check reports whether the message ID was already seen from this peer
// within the window. For a duplicate, the cached wire reply (if any) is
// returned for verbatim retransmission.
func (t *DedupTable) Check(peer transport.PeerAddress, messageID uint16) (reply []byte, dup bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[newEpKey(peer, messageID)]
	if !ok || t.now().After(entry.expires) {
		return nil, false
	}
	return entry.reply, true
}

// Record marks the message ID as seen, starting its retention window.
// Expired entries are purged opportunistically.
func (t *DedupTable) Record(peer transport.PeerAddress, messageID uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for k, e := range t.entries {
		if now.After(e.expires) {
			delete(t.entries, k)
		}
	}
	t.entries[newEpKey(peer, messageID)] = &dedupEntry{expires: now.Add(t.lifetime)}
}

// SetReply caches the wire reply sent for a recorded message ID, so a
// duplicate CON is answered with the identical bytes.
func (t *DedupTable) SetReply(peer transport.PeerAddress, messageID uint16, reply []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, ok := t.entries[newEpKey(peer, messageID)]; ok {
		entry.reply = reply
	}
}

// Count returns the number of retained entries, including expired ones
// not yet purged.
func (t *DedupTable) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Clear removes all entries. Used for shutdown.
func (t *DedupTable) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[epKey]*dedupEntry)
}
