package model

import (
	"fmt"
	"strings"
)

// inputMask is a property's code<->label translation table, stored in the
// document as `code;"label";code;"label"...`.
type inputMask struct {
	codes  []string
	labels []string
}

func parseMask(raw *string) inputMask {
	var mask inputMask
	if raw == nil || *raw == "" {
		return mask
	}
	parts := strings.Split(*raw, ";")
	for i := 0; i+1 < len(parts); i += 2 {
		mask.codes = append(mask.codes, parts[i])
		mask.labels = append(mask.labels, strings.Trim(parts[i+1], "\""))
	}
	return mask
}

func (m inputMask) empty() bool { return len(m.codes) == 0 }

// label translates a stored code to its label. Unmapped codes pass through
// unchanged, and the second return reports whether a translation happened.
func (m inputMask) label(code string) (string, bool) {
	for i, c := range m.codes {
		if c == code {
			return m.labels[i], true
		}
	}
	return code, false
}

// code is the inverse translation used on writes. A value outside the label
// set is rejected rather than stored raw.
func (m inputMask) code(label string) (string, error) {
	if m.empty() {
		return label, nil
	}
	for i, l := range m.labels {
		if l == label {
			return m.codes[i], nil
		}
	}
	return "", fmt.Errorf("%w: '%v' (valid values: %v)",
		ErrMaskValueInvalid, label, strings.Join(m.labels, ", "))
}

func (m inputMask) value(code string) Value {
	if label, ok := m.label(code); ok {
		return enumValue(label)
	}
	return Scalar(code)
}
