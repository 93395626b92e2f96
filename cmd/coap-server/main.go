// coap-server serves a set of CoAP resources described by a YAML
// manifest. Resources are advertised for discovery at /.well-known/core
// and writable resources accept PUT.
//
// Usage:
//
//	coap-server -config manifest.yaml [options]
//
// Options:
//
//	-config Path to the YAML resource manifest (required)
//	-listen UDP listen address, overriding the manifest (default: :5683)
//	-v      Verbose logging to stderr
//
// Manifest example:
//
//	listen: ":5683"
//	resources:
//	  - path: /sensors/temp
//	    payload: "22.5"
//	    rt: temperature
//	  - path: /actuators/led
//	    payload: "off"
//	    writable: true
//	    rt: light
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/pion/logging"

	"github.com/coapkit/coap/pkg/coap"
	"github.com/coapkit/coap/pkg/message"
)

func main() {
	configPath := flag.String("config", "", "Path to the YAML resource manifest")
	listen := flag.String("listen", "", "UDP listen address, overriding the manifest")
	verbose := flag.Bool("v", false, "Verbose logging to stderr")
	flag.Parse()

	if *configPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -config manifest.yaml [options]\n\nOptions:\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load manifest: %v", err)
	}

	addr := cfg.Listen
	if *listen != "" {
		addr = *listen
	}
	if addr == "" {
		addr = fmt.Sprintf(":%d", coap.DefaultPort)
	}

	connConfig := coap.Config{ListenAddr: addr}
	if *verbose {
		connConfig.LoggerFactory = logging.NewDefaultLoggerFactory()
	}

	conn, err := coap.NewConn(connConfig)
	if err != nil {
		log.Fatalf("Failed to create endpoint: %v", err)
	}

	for _, rc := range cfg.Resources {
		r := newResource(rc)
		if err := conn.Handle(rc.Path, r.serve, rc.linkParams()...); err != nil {
			log.Fatalf("Failed to register %s: %v", rc.Path, err)
		}
	}

	if err := run(conn); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// run starts the endpoint and blocks until SIGINT or SIGTERM.
func run(conn *coap.Conn) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := conn.Start(); err != nil {
		return fmt.Errorf("start endpoint: %w", err)
	}
	log.Printf("Serving CoAP on %s", conn.LocalAddr())

	<-ctx.Done()

	log.Println("Shutting down...")
	if err := conn.Stop(); err != nil {
		return fmt.Errorf("stop endpoint: %w", err)
	}
	return nil
}

// resource is one manifest resource with its current representation.
type resource struct {
	mu            sync.RWMutex
	payload       []byte
	contentFormat uint32
	writable      bool
}

func newResource(rc resourceConfig) *resource {
	return &resource{
		payload:       []byte(rc.Payload),
		contentFormat: rc.ContentFormat,
		writable:      rc.Writable,
	}
}

func (r *resource) serve(req *coap.Request) (*coap.Response, error) {
	switch req.Message.Code {
	case message.CodeGET:
		r.mu.RLock()
		payload := r.payload
		format := r.contentFormat
		r.mu.RUnlock()

		ct, err := message.UintOption(message.OptionContentFormat, format)
		if err != nil {
			return nil, err
		}
		return &coap.Response{
			Code:    message.CodeContent,
			Options: message.Options{ct},
			Payload: payload,
		}, nil

	case message.CodePUT:
		if !r.writable {
			return nil, coap.ErrMethodNotAllowed
		}
		format, _ := req.Message.Options.Uint(message.OptionContentFormat)

		r.mu.Lock()
		r.payload = append([]byte(nil), req.Message.Payload...)
		r.contentFormat = format
		r.mu.Unlock()

		return &coap.Response{Code: message.CodeChanged}, nil

	default:
		return nil, coap.ErrMethodNotAllowed
	}
}
