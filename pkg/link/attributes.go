package link

import (
	"fmt"
	"strings"
)

// attrDef is the validation strategy for one registered attribute.
// Unregistered attributes are accepted and stored opaquely.
type attrDef struct {
	// Once forbids a second occurrence on the same link.
	Once bool

	// Flag attributes must not carry a value (e.g. obs).
	Flag bool

	// Validate checks the value; nil accepts anything.
	Validate func(value string) error
}

// attrDefs covers the target attributes of RFC 6690 Section 3 plus obs
// from the observe extension.
var attrDefs = map[string]attrDef{
	"rel":    {Once: true, Validate: tokenList},
	"rt":     {Once: true, Validate: tokenList},
	"if":     {Once: true, Validate: tokenList},
	"sz":     {Once: true, Validate: nonNegativeInt},
	"title":  {Once: true},
	"anchor": {Once: true},
	"obs":    {Once: true, Flag: true},
	"ct":     {Once: true, Validate: contentFormatList},
}

func validateParam(l Link, p Param) error {
	def, known := attrDefs[p.Name]
	if !known {
		return nil
	}
	if def.Once && l.HasAttr(p.Name) {
		return fmt.Errorf("%w: attribute %q repeated", ErrLinkFormat, p.Name)
	}
	if def.Flag {
		if p.HasValue {
			return fmt.Errorf("%w: attribute %q takes no value", ErrLinkFormat, p.Name)
		}
		return nil
	}
	if !p.HasValue {
		return fmt.Errorf("%w: attribute %q requires a value", ErrLinkFormat, p.Name)
	}
	if def.Validate != nil {
		if err := def.Validate(p.Value); err != nil {
			return fmt.Errorf("%w: attribute %q: %v", ErrLinkFormat, p.Name, err)
		}
	}
	return nil
}

// tokenList requires one or more space-separated non-empty tokens.
func tokenList(value string) error {
	if len(strings.Fields(value)) == 0 {
		return fmt.Errorf("empty token list")
	}
	return nil
}

// nonNegativeInt requires a decimal integer without sign or leading
// zeros.
func nonNegativeInt(value string) error {
	if value == "" {
		return fmt.Errorf("empty integer")
	}
	if len(value) > 1 && value[0] == '0' {
		return fmt.Errorf("leading zero in %q", value)
	}
	for i := 0; i < len(value); i++ {
		if value[i] < '0' || value[i] > '9' {
			return fmt.Errorf("non-digit in %q", value)
		}
	}
	return nil
}

// contentFormatList requires one or more space-separated content-format
// numbers.
func contentFormatList(value string) error {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return fmt.Errorf("empty content-format list")
	}
	for _, f := range fields {
		if err := nonNegativeInt(f); err != nil {
			return err
		}
	}
	return nil
}
