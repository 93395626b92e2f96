package message

import (
	"fmt"
	"unicode/utf8"
)

// OptionID is the option number assigned by the CoAP Option Numbers
// registry (RFC 7252 Section 12.2).
type OptionID uint16

// Option numbers.
const (
	OptionIfMatch       OptionID = 1
	OptionURIHost       OptionID = 3
	OptionETag          OptionID = 4
	OptionIfNoneMatch   OptionID = 5
	OptionObserve       OptionID = 6
	OptionURIPort       OptionID = 7
	OptionLocationPath  OptionID = 8
	OptionURIPath       OptionID = 11
	OptionContentFormat OptionID = 12
	OptionMaxAge        OptionID = 14
	OptionURIQuery      OptionID = 15
	OptionAccept        OptionID = 17
	OptionLocationQuery OptionID = 20
	OptionBlock2        OptionID = 23
	OptionBlock1        OptionID = 27
	OptionSize2         OptionID = 28
	OptionProxyURI      OptionID = 35
	OptionProxyScheme   OptionID = 39
	OptionSize1         OptionID = 60
)

// Critical returns true if an endpoint must reject a message carrying
// this option when it does not recognize it. Options with an odd number
// are critical, even ones are elective (RFC 7252 Section 5.4.1).
func (id OptionID) Critical() bool {
	return id&1 == 1
}

// Unsafe returns true if a proxy that does not understand this option
// must not forward the message (RFC 7252 Section 5.4.2).
func (id OptionID) Unsafe() bool {
	return id&2 == 2
}

// String returns the registered option name, or the number for
// unrecognized options.
func (id OptionID) String() string {
	if def, ok := optionDefs[id]; ok {
		return def.Name
	}
	return fmt.Sprintf("Option(%d)", uint16(id))
}

// ValueFormat is the declared value format of an option.
// It selects the encode/decode/validate strategy for the option value;
// behavior is driven by this tag rather than by per-option types.
type ValueFormat uint8

const (
	// ValueOpaque values are arbitrary byte sequences.
	ValueOpaque ValueFormat = iota
	// ValueUint values are unsigned integers in shortest big-endian form
	// with no leading zero bytes; the empty value denotes zero.
	ValueUint
	// ValueString values are UTF-8 text.
	ValueString
	// ValueEmpty values carry no bytes at all.
	ValueEmpty
)

// OptionDef describes the constraints of a registered option.
type OptionDef struct {
	// Name is the registered option name.
	Name string

	// Format selects the value strategy.
	Format ValueFormat

	// MinLen and MaxLen bound the packed value length in bytes.
	MinLen int
	MaxLen int

	// Repeatable options may appear more than once in a message, in
	// which case their order is significant (e.g. Uri-Path segments).
	Repeatable bool

	// Default is the value assumed when the option is absent.
	// Only meaningful when HasDefault is true (uint options only).
	Default    uint32
	HasDefault bool
}

// optionDefs is the process-wide option registry. It is initialized once
// and never mutated at runtime. Bounds and defaults per RFC 7252 Table 4.
var optionDefs = map[OptionID]OptionDef{
	OptionIfMatch:       {Name: "If-Match", Format: ValueOpaque, MinLen: 0, MaxLen: 8, Repeatable: true},
	OptionURIHost:       {Name: "Uri-Host", Format: ValueString, MinLen: 1, MaxLen: 255},
	OptionETag:          {Name: "ETag", Format: ValueOpaque, MinLen: 1, MaxLen: 8, Repeatable: true},
	OptionIfNoneMatch:   {Name: "If-None-Match", Format: ValueEmpty},
	OptionObserve:       {Name: "Observe", Format: ValueUint, MinLen: 0, MaxLen: 3},
	OptionURIPort:       {Name: "Uri-Port", Format: ValueUint, MinLen: 0, MaxLen: 2, Default: DefaultPort, HasDefault: true},
	OptionLocationPath:  {Name: "Location-Path", Format: ValueString, MinLen: 0, MaxLen: 255, Repeatable: true},
	OptionURIPath:       {Name: "Uri-Path", Format: ValueString, MinLen: 0, MaxLen: 255, Repeatable: true},
	OptionContentFormat: {Name: "Content-Format", Format: ValueUint, MinLen: 0, MaxLen: 2},
	OptionMaxAge:        {Name: "Max-Age", Format: ValueUint, MinLen: 0, MaxLen: 4, Default: 60, HasDefault: true},
	OptionURIQuery:      {Name: "Uri-Query", Format: ValueString, MinLen: 0, MaxLen: 255, Repeatable: true},
	OptionAccept:        {Name: "Accept", Format: ValueUint, MinLen: 0, MaxLen: 2},
	OptionLocationQuery: {Name: "Location-Query", Format: ValueString, MinLen: 0, MaxLen: 255, Repeatable: true},
	OptionBlock2:        {Name: "Block2", Format: ValueUint, MinLen: 0, MaxLen: 3},
	OptionBlock1:        {Name: "Block1", Format: ValueUint, MinLen: 0, MaxLen: 3},
	OptionSize2:         {Name: "Size2", Format: ValueUint, MinLen: 0, MaxLen: 4},
	OptionProxyURI:      {Name: "Proxy-Uri", Format: ValueString, MinLen: 1, MaxLen: 1034},
	OptionProxyScheme:   {Name: "Proxy-Scheme", Format: ValueString, MinLen: 1, MaxLen: 255},
	OptionSize1:         {Name: "Size1", Format: ValueUint, MinLen: 0, MaxLen: 4},
}

// DefaultPort is the default CoAP UDP port (RFC 7252 Section 6.1).
const DefaultPort = 5683

// Definition returns the registry entry for an option number.
func Definition(id OptionID) (OptionDef, bool) {
	def, ok := optionDefs[id]
	return def, ok
}

// validate checks a packed option value against the definition.
func (d OptionDef) validate(value []byte) error {
	if len(value) < d.MinLen || len(value) > d.MaxLen {
		return fmt.Errorf("%w: %s length %d outside [%d,%d]",
			ErrOptionFormat, d.Name, len(value), d.MinLen, d.MaxLen)
	}
	switch d.Format {
	case ValueEmpty:
		if len(value) != 0 {
			return fmt.Errorf("%w: %s must be empty", ErrOptionFormat, d.Name)
		}
	case ValueString:
		if !utf8.Valid(value) {
			return fmt.Errorf("%w: %s is not valid UTF-8", ErrOptionFormat, d.Name)
		}
	case ValueUint:
		if len(value) > 0 && value[0] == 0 {
			return fmt.Errorf("%w: %s has a leading zero byte", ErrOptionFormat, d.Name)
		}
	}
	return nil
}

// encodeUint packs v in shortest big-endian form; zero packs to no bytes.
func encodeUint(v uint32) []byte {
	var buf []byte
	for v > 0 {
		buf = append([]byte{byte(v & 0xFF)}, buf...)
		v >>= 8
	}
	return buf
}

// decodeUint unpacks a shortest-form big-endian unsigned integer.
func decodeUint(value []byte) uint32 {
	var v uint32
	for _, b := range value {
		v = v<<8 | uint32(b)
	}
	return v
}
