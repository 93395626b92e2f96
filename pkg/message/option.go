package message

import (
	"fmt"
	"sort"
)

// Option is a single option instance: a number and its packed value.
// Options are immutable once constructed; mutate a message by adding or
// replacing whole options.
type Option struct {
	ID    OptionID
	Value []byte
}

// StringOption builds a string-valued option, validating the value
// against the registry definition.
func StringOption(id OptionID, v string) (Option, error) {
	return newOption(id, []byte(v), ValueString)
}

// UintOption builds an unsigned-integer option in shortest big-endian
// form, validating the packed length against the registry definition.
func UintOption(id OptionID, v uint32) (Option, error) {
	return newOption(id, encodeUint(v), ValueUint)
}

// OpaqueOption builds an opaque option, validating only length bounds.
func OpaqueOption(id OptionID, v []byte) (Option, error) {
	return newOption(id, v, ValueOpaque)
}

// EmptyOption builds a zero-length option such as If-None-Match.
func EmptyOption(id OptionID) (Option, error) {
	return newOption(id, nil, ValueEmpty)
}

func newOption(id OptionID, value []byte, format ValueFormat) (Option, error) {
	def, ok := optionDefs[id]
	if !ok {
		// Unknown numbers are permitted on construction (the peer may
		// recognize them); only length sanity applies.
		if len(value) > maxOptionValueLength {
			return Option{}, fmt.Errorf("%w: option %d value too long", ErrOptionFormat, id)
		}
		return Option{ID: id, Value: value}, nil
	}
	if def.Format != format {
		return Option{}, fmt.Errorf("%w: %s is not a %s option", ErrOptionFormat, def.Name, formatName(format))
	}
	if err := def.validate(value); err != nil {
		return Option{}, err
	}
	return Option{ID: id, Value: value}, nil
}

// maxOptionValueLength bounds values of unregistered options; it is the
// largest length the two-byte extended length field can carry that any
// registered option uses (Proxy-Uri).
const maxOptionValueLength = 1034

func formatName(f ValueFormat) string {
	switch f {
	case ValueUint:
		return "uint"
	case ValueString:
		return "string"
	case ValueEmpty:
		return "empty"
	default:
		return "opaque"
	}
}

// Uint interprets the option value as a shortest-form big-endian integer.
func (o Option) Uint() uint32 {
	return decodeUint(o.Value)
}

// String renders the option for logging.
func (o Option) String() string {
	def, ok := optionDefs[o.ID]
	if !ok {
		return fmt.Sprintf("%v: %x", o.ID, o.Value)
	}
	switch def.Format {
	case ValueUint:
		return fmt.Sprintf("%s: %d", def.Name, o.Uint())
	case ValueString:
		return fmt.Sprintf("%s: %s", def.Name, o.Value)
	default:
		return fmt.Sprintf("%s: %x", def.Name, o.Value)
	}
}

// Options is the ordered option collection of a message. Insertion order
// is preserved; serialization sorts stably by option number, so the
// relative order of repeated options survives a marshal round-trip.
type Options []Option

// Add appends an option, keeping any previous occurrences.
func (os Options) Add(o Option) Options {
	return append(os, o)
}

// Set replaces all occurrences of the option's number with the given one.
func (os Options) Set(o Option) Options {
	out := os.Del(o.ID)
	return append(out, o)
}

// Del removes all occurrences of an option number.
func (os Options) Del(id OptionID) Options {
	out := os[:0]
	for _, o := range os {
		if o.ID != id {
			out = append(out, o)
		}
	}
	return out
}

// Get returns the first occurrence of an option number.
func (os Options) Get(id OptionID) (Option, bool) {
	for _, o := range os {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// GetAll returns every occurrence of an option number, in order.
func (os Options) GetAll(id OptionID) []Option {
	var out []Option
	for _, o := range os {
		if o.ID == id {
			out = append(out, o)
		}
	}
	return out
}

// Contains returns true if the option number is present.
func (os Options) Contains(id OptionID) bool {
	_, ok := os.Get(id)
	return ok
}

// Uint returns the integer value of an option. When the option is absent
// the registry default is substituted, so absence is not an error;
// ok reports whether the option (or a default for it) was found.
func (os Options) Uint(id OptionID) (v uint32, ok bool) {
	if o, found := os.Get(id); found {
		return o.Uint(), true
	}
	if def, found := optionDefs[id]; found && def.HasDefault {
		return def.Default, true
	}
	return 0, false
}

// Strings returns the values of a repeatable string option, in order.
func (os Options) Strings(id OptionID) []string {
	var out []string
	for _, o := range os {
		if o.ID == id {
			out = append(out, string(o.Value))
		}
	}
	return out
}

// Path returns the Uri-Path segments, in order.
func (os Options) Path() []string {
	return os.Strings(OptionURIPath)
}

// Queries returns the Uri-Query arguments, in order.
func (os Options) Queries() []string {
	return os.Strings(OptionURIQuery)
}

// ContentFormat returns the Content-Format number; ok is false when the
// option is absent (it has no registry default).
func (os Options) ContentFormat() (uint32, bool) {
	return os.Uint(OptionContentFormat)
}

// MaxAge returns the Max-Age value, substituting the registry default of
// 60 seconds when absent.
func (os Options) MaxAge() uint32 {
	v, _ := os.Uint(OptionMaxAge)
	return v
}

// sorted returns a copy ordered by ascending option number, preserving
// insertion order within each number (required for repeatable options).
func (os Options) sorted() Options {
	if len(os) == 0 {
		return nil
	}
	out := make(Options, len(os))
	copy(out, os)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Validate checks the decoded option set against the registry: value
// format violations, repeated non-repeatable options, and unrecognized
// critical option numbers are errors. Unrecognized elective options are
// preserved opaquely and pass validation.
func (os Options) Validate() error {
	seen := make(map[OptionID]bool, len(os))
	for _, o := range os {
		def, known := optionDefs[o.ID]
		if !known {
			if o.ID.Critical() {
				return fmt.Errorf("%w: %d", ErrUnrecognizedCriticalOption, o.ID)
			}
			continue
		}
		if seen[o.ID] && !def.Repeatable {
			return fmt.Errorf("%w: %s", ErrDuplicateOption, def.Name)
		}
		seen[o.ID] = true
		if err := def.validate(o.Value); err != nil {
			return err
		}
	}
	return nil
}
