// Package link parses and renders the CoRE link format (RFC 6690), the
// text payload served at /.well-known/core for resource discovery.
package link

import (
	"errors"
	"fmt"
	"strings"
)

// ErrLinkFormat marks a payload that does not follow the link-format
// grammar or violates an attribute's value rule.
var ErrLinkFormat = errors.New("link: malformed link format")

// ContentFormat is the registered CoAP Content-Format number for
// application/link-format.
const ContentFormat = 40

// Param is a single link attribute. Flag attributes such as obs carry no
// value and have HasValue false.
type Param struct {
	Name     string
	Value    string
	HasValue bool
}

// Link is one parsed link-value: a URI reference plus its attributes in
// the order they appeared.
type Link struct {
	URIRef string
	Params []Param
}

// Attr returns the value of the first attribute with the given name.
func (l Link) Attr(name string) (string, bool) {
	for _, p := range l.Params {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// HasAttr returns true if the attribute is present, valued or not.
func (l Link) HasAttr(name string) bool {
	for _, p := range l.Params {
		if p.Name == name {
			return true
		}
	}
	return false
}

// ResourceTypes returns the rt attribute as a list of tokens.
func (l Link) ResourceTypes() []string {
	return l.tokenList("rt")
}

// InterfaceDescriptions returns the if attribute as a list of tokens.
func (l Link) InterfaceDescriptions() []string {
	return l.tokenList("if")
}

// Relations returns the rel attribute as a list of tokens.
func (l Link) Relations() []string {
	return l.tokenList("rel")
}

func (l Link) tokenList(name string) []string {
	v, ok := l.Attr(name)
	if !ok {
		return nil
	}
	return strings.Fields(v)
}

// Parse parses a link-format payload into its links. The sequence is
// finite; callers needing to iterate again re-parse the payload.
func Parse(text string) ([]Link, error) {
	var links []Link
	p := &parser{rest: text}
	for {
		p.skipSpace()
		if p.rest == "" {
			break
		}
		l, err := p.link()
		if err != nil {
			return nil, err
		}
		links = append(links, l)

		p.skipSpace()
		if p.rest == "" {
			break
		}
		if p.rest[0] != ',' {
			return nil, fmt.Errorf("%w: expected ',' before %q", ErrLinkFormat, p.rest)
		}
		p.rest = p.rest[1:]
	}
	return links, nil
}

type parser struct {
	rest string
}

func (p *parser) skipSpace() {
	p.rest = strings.TrimLeft(p.rest, " \t\r\n")
}

// link parses one `<uri-ref>;param;param` production.
func (p *parser) link() (Link, error) {
	if p.rest == "" || p.rest[0] != '<' {
		return Link{}, fmt.Errorf("%w: expected '<' at %q", ErrLinkFormat, p.rest)
	}
	end := strings.IndexByte(p.rest, '>')
	if end < 0 {
		return Link{}, fmt.Errorf("%w: unterminated URI reference", ErrLinkFormat)
	}
	l := Link{URIRef: p.rest[1:end]}
	if l.URIRef == "" {
		return Link{}, fmt.Errorf("%w: empty URI reference", ErrLinkFormat)
	}
	p.rest = p.rest[end+1:]

	for {
		p.skipSpace()
		if p.rest == "" || p.rest[0] != ';' {
			break
		}
		p.rest = p.rest[1:]
		param, err := p.param()
		if err != nil {
			return Link{}, err
		}
		if err := validateParam(l, param); err != nil {
			return Link{}, err
		}
		l.Params = append(l.Params, param)
	}
	return l, nil
}

// param parses one `name` or `name=value` attribute, where value is a
// token or a quoted string with backslash escapes.
func (p *parser) param() (Param, error) {
	p.skipSpace()
	i := 0
	for i < len(p.rest) && isTokenChar(p.rest[i]) {
		i++
	}
	if i == 0 {
		return Param{}, fmt.Errorf("%w: empty attribute name at %q", ErrLinkFormat, p.rest)
	}
	param := Param{Name: p.rest[:i]}
	p.rest = p.rest[i:]

	if p.rest == "" || p.rest[0] != '=' {
		return param, nil
	}
	p.rest = p.rest[1:]
	param.HasValue = true

	if p.rest != "" && p.rest[0] == '"' {
		v, err := p.quotedString()
		if err != nil {
			return Param{}, err
		}
		param.Value = v
		return param, nil
	}

	i = 0
	for i < len(p.rest) && isPTokenChar(p.rest[i]) {
		i++
	}
	if i == 0 {
		return Param{}, fmt.Errorf("%w: empty value for %q", ErrLinkFormat, param.Name)
	}
	param.Value = p.rest[:i]
	p.rest = p.rest[i:]
	return param, nil
}

// quotedString consumes a double-quoted value, resolving backslash
// escapes.
func (p *parser) quotedString() (string, error) {
	var b strings.Builder
	i := 1
	for i < len(p.rest) {
		switch p.rest[i] {
		case '"':
			p.rest = p.rest[i+1:]
			return b.String(), nil
		case '\\':
			if i+1 >= len(p.rest) {
				return "", fmt.Errorf("%w: dangling escape in quoted string", ErrLinkFormat)
			}
			i++
			b.WriteByte(p.rest[i])
		default:
			b.WriteByte(p.rest[i])
		}
		i++
	}
	return "", fmt.Errorf("%w: unterminated quoted string", ErrLinkFormat)
}

func isTokenChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '.' || c == '_' || c == '!' || c == '*' || c == '\'':
		return true
	}
	return false
}

// isPTokenChar admits the wider character set of unquoted parameter
// values (RFC 6690 ptoken).
func isPTokenChar(c byte) bool {
	if isTokenChar(c) {
		return true
	}
	switch c {
	case '#', '$', '%', '&', '(', ')', '+', '/', ':', '<', '=', '>', '?', '@', '[', ']', '^', '`', '{', '|', '}', '~':
		return true
	}
	return false
}
