package link

import "strings"

// Render serializes links back to link-format text. Values that are not
// plain tokens are emitted as quoted strings with escapes, so
// Parse(Render(links)) reproduces the same attribute set.
func Render(links []Link) string {
	var b strings.Builder
	for i, l := range links {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('<')
		b.WriteString(l.URIRef)
		b.WriteByte('>')
		for _, p := range l.Params {
			b.WriteByte(';')
			b.WriteString(p.Name)
			if !p.HasValue {
				continue
			}
			b.WriteByte('=')
			if isPToken(p.Value) {
				b.WriteString(p.Value)
			} else {
				writeQuoted(&b, p.Value)
			}
		}
	}
	return b.String()
}

func isPToken(v string) bool {
	if v == "" {
		return false
	}
	for i := 0; i < len(v); i++ {
		if !isPTokenChar(v[i]) {
			return false
		}
	}
	return true
}

func writeQuoted(b *strings.Builder, v string) {
	b.WriteByte('"')
	for i := 0; i < len(v); i++ {
		if v[i] == '"' || v[i] == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(v[i])
	}
	b.WriteByte('"')
}
