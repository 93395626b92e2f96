package exchange

import (
	"sync"
	"testing"
	"time"
)

func TestRetransmitAckStopsTimer(t *testing.T) {
	table := NewRetransmitTable(4)
	peer := testPeer(5683)

	fired := make(chan struct{}, 1)
	table.Add(peer, 1, []byte{0x40, 0x01, 0x00, 0x01}, 50*time.Millisecond, func(*RetransmitEntry) {
		fired <- struct{}{}
	})

	entry := table.Ack(peer, 1)
	if entry == nil {
		t.Fatal("Ack() = nil for pending entry")
	}
	if table.Count() != 0 {
		t.Errorf("Count() = %d after Ack, want 0", table.Count())
	}

	select {
	case <-fired:
		t.Error("timer fired after Ack")
	case <-time.After(100 * time.Millisecond):
	}

	if table.Ack(peer, 1) != nil {
		t.Error("second Ack() returned an entry")
	}
}

func TestRetransmitBudget(t *testing.T) {
	const maxRetransmit = 2
	table := NewRetransmitTable(maxRetransmit)
	peer := testPeer(5683)

	var mu sync.Mutex
	retries := 0
	done := make(chan struct{})

	var onTimeout func(entry *RetransmitEntry)
	onTimeout = func(entry *RetransmitEntry) {
		if table.ScheduleRetransmit(entry) {
			mu.Lock()
			retries++
			mu.Unlock()
			return
		}
		close(done)
	}

	table.Add(peer, 9, []byte{0x40, 0x01, 0x00, 0x09}, 10*time.Millisecond, onTimeout)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("budget never exhausted")
	}

	mu.Lock()
	defer mu.Unlock()
	if retries != maxRetransmit {
		t.Errorf("retries = %d, want %d", retries, maxRetransmit)
	}
	if table.Count() != 0 {
		t.Errorf("Count() = %d after exhaustion, want 0", table.Count())
	}
}

func TestRetransmitTimeoutDoubles(t *testing.T) {
	table := NewRetransmitTable(4)
	peer := testPeer(5683)

	entry := table.Add(peer, 3, []byte{0x40, 0x01, 0x00, 0x03}, 10*time.Millisecond, func(*RetransmitEntry) {})
	if !table.ScheduleRetransmit(entry) {
		t.Fatal("ScheduleRetransmit() = false on first retry")
	}
	if entry.Timeout != 20*time.Millisecond {
		t.Errorf("Timeout = %v after first retry, want 20ms", entry.Timeout)
	}
	if entry.SendCount != 2 {
		t.Errorf("SendCount = %d, want 2", entry.SendCount)
	}
	table.Remove(peer, 3)
	if table.ScheduleRetransmit(entry) {
		t.Error("ScheduleRetransmit() = true after Remove")
	}
}

func TestRetransmitCountForPeer(t *testing.T) {
	table := NewRetransmitTable(4)
	defer table.Clear()

	a, b := testPeer(5683), testPeer(5684)
	table.Add(a, 1, nil, time.Minute, func(*RetransmitEntry) {})
	table.Add(a, 2, nil, time.Minute, func(*RetransmitEntry) {})
	table.Add(b, 1, nil, time.Minute, func(*RetransmitEntry) {})

	if got := table.CountForPeer(a); got != 2 {
		t.Errorf("CountForPeer(a) = %d, want 2", got)
	}
	if got := table.CountForPeer(b); got != 1 {
		t.Errorf("CountForPeer(b) = %d, want 1", got)
	}
}
