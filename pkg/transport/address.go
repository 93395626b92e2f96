package transport

import "net"

// PeerAddress identifies a remote CoAP endpoint.
type PeerAddress struct {
	// Addr is the network address of the peer.
	Addr net.Addr
}

// String returns a human-readable representation of the peer address.
func (p PeerAddress) String() string {
	if p.Addr == nil {
		return "<nil>"
	}
	return p.Addr.String()
}

// IsValid returns true if the peer address is usable as a send target.
func (p PeerAddress) IsValid() bool {
	return p.Addr != nil
}

// Key returns a stable map key for the peer. Exchange and dedup tables
// are keyed on this.
func (p PeerAddress) Key() string {
	if p.Addr == nil {
		return ""
	}
	return p.Addr.Network() + "/" + p.Addr.String()
}

// NewPeerAddress wraps a network address as a PeerAddress.
func NewPeerAddress(addr net.Addr) PeerAddress {
	return PeerAddress{Addr: addr}
}

// AddrFromString resolves a host:port string into a UDP PeerAddress.
func AddrFromString(addr string) (PeerAddress, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return PeerAddress{}, err
	}
	return NewPeerAddress(udpAddr), nil
}
