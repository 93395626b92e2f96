// Package transport provides the datagram I/O layer the exchange engine
// runs over: a real UDP endpoint and an in-memory pipe for tests. The
// package moves raw bytes only; message parsing happens above it.
package transport

import "net"

// Transport is a started datagram transport: a lifecycle plus a single
// outbound send path.
type Transport interface {
	Start() error
	Stop() error
	Send(data []byte, addr net.Addr) error
	LocalAddr() net.Addr
}

// Datagram is one inbound datagram as received from the wire.
// Higher layers are responsible for parsing it as a CoAP message.
type Datagram struct {
	// Data contains the raw datagram bytes.
	Data []byte
	// PeerAddr identifies the source of the datagram.
	PeerAddr PeerAddress
}

// DatagramHandler is called for each received datagram.
// Implementations should process quickly or dispatch to a goroutine to
// avoid blocking the transport's read loop.
type DatagramHandler func(dg *Datagram)
