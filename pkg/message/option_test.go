package message

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

func TestUintOptionShortestForm(t *testing.T) {
	tests := []struct {
		v    uint32
		want []byte
	}{
		{0, nil},
		{1, []byte{0x01}},
		{255, []byte{0xFF}},
		{256, []byte{0x01, 0x00}},
		{60, []byte{0x3C}},
		{0xFFFFFF, []byte{0xFF, 0xFF, 0xFF}},
	}
	for _, tt := range tests {
		o, err := UintOption(OptionMaxAge, tt.v)
		if err != nil {
			t.Fatalf("UintOption(Max-Age, %d) error: %v", tt.v, err)
		}
		if !bytes.Equal(o.Value, tt.want) {
			t.Errorf("UintOption(%d).Value = % x, want % x", tt.v, o.Value, tt.want)
		}
		if got := o.Uint(); got != tt.v {
			t.Errorf("Uint() = %d, want %d", got, tt.v)
		}
	}
}

func TestOptionConstructorRejectsWrongFormat(t *testing.T) {
	if _, err := UintOption(OptionURIPath, 5); !errors.Is(err, ErrOptionFormat) {
		t.Errorf("UintOption(Uri-Path) error = %v, want %v", err, ErrOptionFormat)
	}
	if _, err := StringOption(OptionContentFormat, "40"); !errors.Is(err, ErrOptionFormat) {
		t.Errorf("StringOption(Content-Format) error = %v, want %v", err, ErrOptionFormat)
	}
	if _, err := OpaqueOption(OptionIfNoneMatch, []byte{1}); !errors.Is(err, ErrOptionFormat) {
		t.Errorf("OpaqueOption(If-None-Match) error = %v, want %v", err, ErrOptionFormat)
	}
}

func TestOptionConstructorLengthBounds(t *testing.T) {
	if _, err := StringOption(OptionURIHost, ""); !errors.Is(err, ErrOptionFormat) {
		t.Errorf("empty Uri-Host error = %v, want %v", err, ErrOptionFormat)
	}
	if _, err := OpaqueOption(OptionETag, make([]byte, 9)); !errors.Is(err, ErrOptionFormat) {
		t.Errorf("9-byte ETag error = %v, want %v", err, ErrOptionFormat)
	}
	// Unknown numbers are only bounded by the maximum encodable length.
	if _, err := OpaqueOption(9999, make([]byte, 64)); err != nil {
		t.Errorf("unknown option error = %v, want nil", err)
	}
}

func TestOptionsUintDefaultSubstitution(t *testing.T) {
	var os Options

	if v, ok := os.Uint(OptionMaxAge); !ok || v != 60 {
		t.Errorf("Uint(Max-Age) = %d, %t, want 60, true", v, ok)
	}
	if v, ok := os.Uint(OptionURIPort); !ok || v != DefaultPort {
		t.Errorf("Uint(Uri-Port) = %d, %t, want %d, true", v, ok, DefaultPort)
	}
	if _, ok := os.Uint(OptionContentFormat); ok {
		t.Error("Uint(Content-Format) ok = true on empty set, want false")
	}

	os = os.Set(mustUint(t, OptionMaxAge, 120))
	if v, ok := os.Uint(OptionMaxAge); !ok || v != 120 {
		t.Errorf("Uint(Max-Age) = %d, %t, want 120, true", v, ok)
	}
}

func TestOptionsSetReplacesAll(t *testing.T) {
	os := Options{
		mustUint(t, OptionMaxAge, 1),
		mustString(t, OptionURIPath, "a"),
		mustUint(t, OptionMaxAge, 2),
	}
	os = os.Set(mustUint(t, OptionMaxAge, 3))
	if got := os.GetAll(OptionMaxAge); len(got) != 1 || got[0].Uint() != 3 {
		t.Errorf("GetAll(Max-Age) = %v, want single value 3", got)
	}
	if !os.Contains(OptionURIPath) {
		t.Error("Set() dropped an unrelated option")
	}
}

func TestValidateDuplicateNonRepeatable(t *testing.T) {
	os := Options{
		mustUint(t, OptionContentFormat, 0),
		mustUint(t, OptionContentFormat, 40),
	}
	if err := os.Validate(); !errors.Is(err, ErrDuplicateOption) {
		t.Errorf("Validate() error = %v, want %v", err, ErrDuplicateOption)
	}

	repeated := Options{
		mustString(t, OptionURIPath, "a"),
		mustString(t, OptionURIPath, "b"),
	}
	if err := repeated.Validate(); err != nil {
		t.Errorf("Validate() error = %v for repeatable option, want nil", err)
	}
}

func TestValidateUnrecognizedOptions(t *testing.T) {
	// 9 is odd and unregistered, so critical.
	critical := Options{{ID: 9, Value: []byte{1}}}
	if err := critical.Validate(); !errors.Is(err, ErrUnrecognizedCriticalOption) {
		t.Errorf("Validate() error = %v, want %v", err, ErrUnrecognizedCriticalOption)
	}

	// 10 is even and unregistered, so elective; it must pass and be
	// preserved as-is.
	elective := Options{{ID: 10, Value: []byte{1, 2}}}
	if err := elective.Validate(); err != nil {
		t.Errorf("Validate() error = %v for unknown elective option, want nil", err)
	}
}

func TestValidateLeadingZeroUint(t *testing.T) {
	os := Options{{ID: OptionMaxAge, Value: []byte{0x00, 0x3C}}}
	if err := os.Validate(); !errors.Is(err, ErrOptionFormat) {
		t.Errorf("Validate() error = %v, want %v", err, ErrOptionFormat)
	}
}

func TestOptionIDClasses(t *testing.T) {
	tests := []struct {
		id       OptionID
		critical bool
		unsafe   bool
	}{
		{OptionIfMatch, true, false},
		{OptionURIHost, true, true},
		{OptionETag, false, false},
		{OptionObserve, false, true},
		{OptionURIPath, true, true},
		{OptionContentFormat, false, false},
		{OptionMaxAge, false, true},
	}
	for _, tt := range tests {
		if got := tt.id.Critical(); got != tt.critical {
			t.Errorf("%v.Critical() = %t, want %t", tt.id, got, tt.critical)
		}
		if got := tt.id.Unsafe(); got != tt.unsafe {
			t.Errorf("%v.Unsafe() = %t, want %t", tt.id, got, tt.unsafe)
		}
	}
}

func TestOptionsSortedIsStable(t *testing.T) {
	os := Options{
		mustString(t, OptionURIQuery, "z"),
		mustString(t, OptionURIPath, "first"),
		mustString(t, OptionURIPath, "second"),
	}
	got := os.sorted()
	want := Options{
		mustString(t, OptionURIPath, "first"),
		mustString(t, OptionURIPath, "second"),
		mustString(t, OptionURIQuery, "z"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("sorted() = %v, want %v", got, want)
	}
	// The receiver must be untouched.
	if os[0].ID != OptionURIQuery {
		t.Error("sorted() mutated the receiver")
	}
}
