package coap

import (
	"net"

	"github.com/pion/logging"

	"github.com/coapkit/coap/pkg/exchange"
	"github.com/coapkit/coap/pkg/message"
)

// Config holds all configuration for a Conn.
type Config struct {
	// ListenAddr is the UDP address to bind (e.g., ":5683").
	// Empty selects an ephemeral port, which suits client-only use.
	ListenAddr string

	// PacketConn is an optional pre-existing datagram socket.
	// If set, ListenAddr is ignored.
	PacketConn net.PacketConn

	// Params are the exchange transmission parameters.
	// The zero value selects the RFC 7252 defaults.
	Params exchange.TransmissionParams

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Params != (exchange.TransmissionParams{}) {
		return c.Params.Validate()
	}
	return nil
}

// applyDefaults fills in default values for unset fields.
func (c *Config) applyDefaults() {
	if c.Params == (exchange.TransmissionParams{}) {
		c.Params = exchange.DefaultParams()
	}
}

// DefaultPort is the default CoAP UDP port.
const DefaultPort = message.DefaultPort
