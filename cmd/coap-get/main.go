// coap-get is a command-line CoAP client.
//
// It sends a single request to a CoAP server over UDP and prints the
// response. Requesting /.well-known/core prints the parsed resource
// listing instead of the raw payload.
//
// Usage:
//
//	coap-get [options] coap://host[:port]/path
//
// Options:
//
//	-method  Request method: GET, POST, PUT or DELETE (default: GET)
//	-non     Send the request non-confirmably
//	-payload Request payload for POST/PUT
//	-format  Content-Format number for the payload (default: 0, text/plain)
//	-timeout Overall request timeout (default: 95s, the worst-case
//	         confirmable retry schedule)
//	-v       Verbose logging to stderr
//
// Example:
//
//	coap-get coap://localhost/sensors/temp
//	coap-get -method PUT -payload on coap://localhost/actuators/led
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/pion/logging"

	"github.com/coapkit/coap/pkg/coap"
	"github.com/coapkit/coap/pkg/link"
	"github.com/coapkit/coap/pkg/message"
)

func main() {
	method := flag.String("method", "GET", "Request method: GET, POST, PUT or DELETE")
	non := flag.Bool("non", false, "Send the request non-confirmably")
	payload := flag.String("payload", "", "Request payload for POST/PUT")
	format := flag.Uint("format", 0, "Content-Format number for the payload")
	timeout := flag.Duration("timeout", 95*time.Second, "Overall request timeout")
	verbose := flag.Bool("v", false, "Verbose logging to stderr")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] coap://host[:port]/path\n\nOptions:\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	uri := flag.Arg(0)

	code, err := parseMethod(*method)
	if err != nil {
		log.Fatalf("Invalid method: %v", err)
	}

	config := coap.Config{}
	if *verbose {
		config.LoggerFactory = logging.NewDefaultLoggerFactory()
	}

	conn, err := coap.NewConn(config)
	if err != nil {
		log.Fatalf("Failed to create endpoint: %v", err)
	}
	if err := conn.Start(); err != nil {
		log.Fatalf("Failed to start endpoint: %v", err)
	}
	defer conn.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	resp, err := request(ctx, conn, code, uri, *non, uint32(*format), []byte(*payload))
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}

	printResponse(uri, resp)
	if !resp.Code.IsSuccess() {
		os.Exit(1)
	}
}

func parseMethod(s string) (message.Code, error) {
	switch strings.ToUpper(s) {
	case "GET":
		return message.CodeGET, nil
	case "POST":
		return message.CodePOST, nil
	case "PUT":
		return message.CodePUT, nil
	case "DELETE":
		return message.CodeDELETE, nil
	default:
		return 0, fmt.Errorf("unknown method %q", s)
	}
}

func request(ctx context.Context, conn *coap.Conn, code message.Code, uri string, non bool, format uint32, payload []byte) (*message.Message, error) {
	var opts message.Options
	if len(payload) > 0 {
		o, err := message.UintOption(message.OptionContentFormat, format)
		if err != nil {
			return nil, err
		}
		opts = opts.Add(o)
	}

	if !non {
		return conn.Request(ctx, code, uri, opts, payload)
	}

	req, err := message.NewRequest(code, uri)
	if err != nil {
		return nil, err
	}
	req.Type = message.TypeNonConfirmable
	for _, o := range opts {
		req.Options = req.Options.Add(o)
	}
	req.Payload = payload

	peer, err := coap.ResolvePeer(uri)
	if err != nil {
		return nil, err
	}
	return conn.Do(ctx, req, peer)
}

func printResponse(uri string, resp *message.Message) {
	fmt.Printf("%s\n", resp.Code)

	ct, hasCT := resp.Options.Uint(message.OptionContentFormat)
	if hasCT && ct == link.ContentFormat && strings.HasSuffix(uri, coap.WellKnownCorePath) {
		links, err := link.Parse(string(resp.Payload))
		if err != nil {
			log.Fatalf("Malformed link-format payload: %v", err)
		}
		for _, l := range links {
			fmt.Printf("  %s", l.URIRef)
			if rts := l.ResourceTypes(); len(rts) > 0 {
				fmt.Printf(" rt=%q", strings.Join(rts, " "))
			}
			if title, ok := l.Attr("title"); ok {
				fmt.Printf(" title=%q", title)
			}
			fmt.Println()
		}
		return
	}

	if len(resp.Payload) > 0 {
		fmt.Printf("%s\n", resp.Payload)
	}
}
