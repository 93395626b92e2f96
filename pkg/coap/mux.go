package coap

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/coapkit/coap/pkg/link"
)

// route is one registered resource. A wildcard route's path is the
// prefix before the trailing "/*".
type route struct {
	path     string
	wildcard bool
	handler  HandlerFunc
	attrs    []link.Param
}

// mux routes request paths to handlers. Exact matches win over wildcard
// matches; among wildcards, the longest registered prefix wins.
type mux struct {
	mu        sync.RWMutex
	exact     map[string]*route
	wildcards []*route
}

func newMux() *mux {
	return &mux{exact: make(map[string]*route)}
}

func (m *mux) handle(pattern string, h HandlerFunc, attrs []link.Param) error {
	if h == nil {
		return fmt.Errorf("%w: nil handler", ErrInvalidPattern)
	}
	if pattern == "" || pattern[0] != '/' {
		return fmt.Errorf("%w: %q must start with /", ErrInvalidPattern, pattern)
	}

	r := &route{path: pattern, handler: h, attrs: attrs}
	if strings.HasSuffix(pattern, "/*") {
		r.wildcard = true
		r.path = strings.TrimSuffix(pattern, "/*")
		if strings.Contains(r.path, "*") {
			return fmt.Errorf("%w: %q has a non-trailing wildcard", ErrInvalidPattern, pattern)
		}
	} else if strings.Contains(pattern, "*") {
		return fmt.Errorf("%w: %q has a non-trailing wildcard", ErrInvalidPattern, pattern)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if r.wildcard {
		for _, w := range m.wildcards {
			if w.path == r.path {
				return fmt.Errorf("%w: %q already registered", ErrInvalidPattern, pattern)
			}
		}
		m.wildcards = append(m.wildcards, r)
		sort.SliceStable(m.wildcards, func(i, j int) bool {
			return len(m.wildcards[i].path) > len(m.wildcards[j].path)
		})
		return nil
	}

	if _, exists := m.exact[r.path]; exists {
		return fmt.Errorf("%w: %q already registered", ErrInvalidPattern, pattern)
	}
	m.exact[r.path] = r
	return nil
}

func (m *mux) match(path string) (HandlerFunc, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if r, ok := m.exact[path]; ok {
		return r.handler, true
	}
	for _, w := range m.wildcards {
		if path == w.path || strings.HasPrefix(path, w.path+"/") {
			return w.handler, true
		}
	}
	return nil, false
}

// links renders the registered resources for /.well-known/core. The
// well-known resource itself is excluded, and wildcard routes advertise
// their prefix.
func (m *mux) links() []link.Link {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []link.Link
	for _, r := range m.exact {
		if r.path == WellKnownCorePath {
			continue
		}
		out = append(out, link.Link{URIRef: r.path, Params: r.attrs})
	}
	for _, r := range m.wildcards {
		out = append(out, link.Link{URIRef: r.path, Params: r.attrs})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URIRef < out[j].URIRef })
	return out
}
