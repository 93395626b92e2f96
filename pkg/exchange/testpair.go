package exchange

import (
	"sync"

	"github.com/coapkit/coap/pkg/transport"
)

// TestPair wires two Managers together over an in-memory pipe. Use it
// for deterministic end-to-end tests of the exchange engine without
// real network I/O.
type TestPair struct {
	pair     *transport.PipePair
	managers [2]*Manager
}

// latchHandler forwards datagrams to a manager installed after the
// transport is created, closing the construction cycle between the two.
type latchHandler struct {
	mu sync.Mutex
	m  *Manager
}

func (h *latchHandler) handle(dg *transport.Datagram) {
	h.mu.Lock()
	m := h.m
	h.mu.Unlock()
	if m != nil {
		m.HandleDatagram(dg)
	}
}

func (h *latchHandler) set(m *Manager) {
	h.mu.Lock()
	h.m = m
	h.mu.Unlock()
}

// NewTestPair creates two connected managers with the given request
// handlers and transmission parameters. Both sides are started and
// ready to use.
func NewTestPair(handlers [2]RequestHandler, params TransmissionParams) (*TestPair, error) {
	latches := [2]*latchHandler{{}, {}}
	pipePair, err := transport.NewPipePair([2]transport.DatagramHandler{
		latches[0].handle,
		latches[1].handle,
	})
	if err != nil {
		return nil, err
	}

	tp := &TestPair{pair: pipePair}
	for i := 0; i < 2; i++ {
		m, err := NewManager(Config{
			Sender:  pipePair.Transport(i),
			Handler: handlers[i],
			Params:  params,
		})
		if err != nil {
			tp.Close()
			return nil, err
		}
		tp.managers[i] = m
		latches[i].set(m)
	}
	return tp, nil
}

// Manager returns the manager at the given index (0 or 1).
func (tp *TestPair) Manager(id int) *Manager {
	if id < 0 || id > 1 {
		return nil
	}
	return tp.managers[id]
}

// PeerAddr returns the address used to reach the manager at the given
// index from the other side.
func (tp *TestPair) PeerAddr(id int) transport.PeerAddress {
	return transport.NewPeerAddress(tp.pair.PeerAddr(id))
}

// Pipe returns the underlying pipe for network condition simulation.
func (tp *TestPair) Pipe() *transport.Pipe {
	return tp.pair.Pipe()
}

// Close shuts down both managers and the pipe.
func (tp *TestPair) Close() error {
	for _, m := range tp.managers {
		if m != nil {
			m.Close()
		}
	}
	return tp.pair.Close()
}
