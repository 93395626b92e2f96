package exchange

import (
	"sync"
	"time"

	"github.com/coapkit/coap/pkg/transport"
)

// RetransmitEntry represents a confirmable message awaiting
// acknowledgement. Each entry tracks the fully encoded wire buffer (so
// retransmissions are byte-identical), the send count, and the current
// timeout, which doubles on each retry (RFC 7252 Section 4.2).
type RetransmitEntry struct {
	// Key identifies the message by peer and message ID.
	Key epKey

	// Wire is the encoded message buffer ready for retransmission.
	Wire []byte

	// PeerAddress is the destination for retransmission.
	PeerAddress transport.PeerAddress

	// SendCount is the number of times this message has been sent.
	// Starts at 1 for the initial transmission.
	SendCount int

	// Timeout is the wait before the next retransmission; doubled on
	// each retry.
	Timeout time.Duration

	timer    *time.Timer
	callback func()
}

// Stop cancels the retransmission timer if running.
func (e *RetransmitEntry) Stop() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// RetransmitTable manages pending retransmissions of confirmable
// messages. Entries live until acknowledged, reset, or the retry budget
// is spent. Thread-safe.
type RetransmitTable struct {
	mu            sync.Mutex
	entries       map[epKey]*RetransmitEntry
	maxRetransmit int
}

// NewRetransmitTable creates a retransmission table honoring the given
// MAX_RETRANSMIT bound.
func NewRetransmitTable(maxRetransmit int) *RetransmitTable {
	return &RetransmitTable{
		entries:       make(map[epKey]*RetransmitEntry),
		maxRetransmit: maxRetransmit,
	}
}

// Add registers a sent confirmable message and starts its timer.
// onTimeout fires when the timeout elapses without an acknowledgement;
// the callback decides between retransmission and giving up.
func (t *RetransmitTable) Add(
	peer transport.PeerAddress,
	messageID uint16,
	wire []byte,
	initialTimeout time.Duration,
	onTimeout func(entry *RetransmitEntry),
) *RetransmitEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry := &RetransmitEntry{
		Key:         newEpKey(peer, messageID),
		Wire:        wire,
		PeerAddress: peer,
		SendCount:   1,
		Timeout:     initialTimeout,
	}
	entry.callback = func() { onTimeout(entry) }
	entry.timer = time.AfterFunc(initialTimeout, entry.callback)

	t.entries[entry.Key] = entry
	return entry
}

// Ack removes the entry matched by an ACK or RST and stops its timer.
// Returns the entry if one was pending.
func (t *RetransmitTable) Ack(peer transport.PeerAddress, messageID uint16) *RetransmitEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := newEpKey(peer, messageID)
	entry, ok := t.entries[key]
	if !ok {
		return nil
	}

	entry.Stop()
	delete(t.entries, key)
	return entry
}

// ScheduleRetransmit doubles the entry's timeout and restarts its timer
// for the next attempt. Returns false when the retry budget is spent, in
// which case the entry is removed.
func (t *RetransmitTable) ScheduleRetransmit(entry *RetransmitEntry) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[entry.Key]; !ok {
		// Acked or removed while the timeout callback was in flight.
		return false
	}

	if entry.SendCount > t.maxRetransmit {
		entry.Stop()
		delete(t.entries, entry.Key)
		return false
	}

	entry.SendCount++
	entry.Timeout *= 2

	entry.Stop()
	entry.timer = time.AfterFunc(entry.Timeout, entry.callback)
	return true
}

// Remove drops the entry for a message, stopping its timer.
// Called when an exchange is canceled.
func (t *RetransmitTable) Remove(peer transport.PeerAddress, messageID uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := newEpKey(peer, messageID)
	if entry, ok := t.entries[key]; ok {
		entry.Stop()
		delete(t.entries, key)
	}
}

// CountForPeer returns the number of pending entries addressed to the
// given peer. Used to enforce the NSTART limit.
func (t *RetransmitTable) CountForPeer(peer transport.PeerAddress) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	key := peer.Key()
	for k := range t.entries {
		if k.peer == key {
			n++
		}
	}
	return n
}

// Count returns the number of pending entries.
func (t *RetransmitTable) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Clear removes all entries. Used for shutdown.
func (t *RetransmitTable) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, entry := range t.entries {
		entry.Stop()
		delete(t.entries, key)
	}
}
