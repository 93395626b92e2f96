package coap

import (
	"context"

	"github.com/coapkit/coap/pkg/link"
	"github.com/coapkit/coap/pkg/message"
)

// WellKnownCorePath is the CoRE discovery resource (RFC 6690).
const WellKnownCorePath = "/.well-known/core"

// serveWellKnown renders the registered resources in link format. The
// rt and if query parameters filter the listing by attribute value.
func (c *Conn) serveWellKnown(req *Request) (*Response, error) {
	if req.Message.Code != message.CodeGET {
		return nil, ErrMethodNotAllowed
	}

	links := c.mux.links()
	for _, q := range req.Queries() {
		links = filterLinks(links, q)
	}

	ct, err := message.UintOption(message.OptionContentFormat, link.ContentFormat)
	if err != nil {
		return nil, err
	}
	return &Response{
		Code:    message.CodeContent,
		Options: message.Options{ct},
		Payload: []byte(link.Render(links)),
	}, nil
}

// filterLinks keeps the links whose attribute matches one name=value
// query. A query without '=' or with an unknown name keeps everything.
func filterLinks(links []link.Link, query string) []link.Link {
	name, want, ok := splitQuery(query)
	if !ok {
		return links
	}

	var out []link.Link
	for _, l := range links {
		if linkMatches(l, name, want) {
			out = append(out, l)
		}
	}
	return out
}

func splitQuery(query string) (name, value string, ok bool) {
	for i := 0; i < len(query); i++ {
		if query[i] == '=' {
			return query[:i], query[i+1:], query[:i] != ""
		}
	}
	return "", "", false
}

func linkMatches(l link.Link, name, want string) bool {
	switch name {
	case "rt":
		return containsToken(l.ResourceTypes(), want)
	case "if":
		return containsToken(l.InterfaceDescriptions(), want)
	default:
		v, ok := l.Attr(name)
		return ok && v == want
	}
}

func containsToken(tokens []string, want string) bool {
	for _, t := range tokens {
		if t == want {
			return true
		}
	}
	return false
}

// Discover fetches and parses the peer's /.well-known/core listing.
// The uri names the endpoint, e.g. "coap://host". Extra query filters
// can be carried in the URI itself.
func (c *Conn) Discover(ctx context.Context, uri string) ([]link.Link, error) {
	resp, err := c.Get(ctx, uri+WellKnownCorePath)
	if err != nil {
		return nil, err
	}
	if resp.Code != message.CodeContent {
		return nil, &ResponseError{Code: resp.Code, Diagnostic: string(resp.Payload)}
	}
	return link.Parse(string(resp.Payload))
}
