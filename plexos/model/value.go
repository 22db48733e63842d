package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind classifies a stored value. Everything in the document is a string;
// the kind records how the engine interpreted it during resolution.
type Kind int

const (
	// KindText is the default for values that parse as nothing else.
	KindText Kind = iota
	// KindNumber marks values that parse as a float.
	KindNumber
	// KindEnum marks values produced by input-mask translation.
	KindEnum
)

// Value is a resolved property value: a scalar or an ordered list.
// The zero Value is an empty scalar of KindText.
type Value struct {
	items []string
	list  bool
	kind  Kind
}

func Scalar(s string) Value {
	return Value{items: []string{s}, kind: scalarKind(s)}
}

func List(items ...string) Value {
	kind := KindText
	if len(items) > 0 {
		kind = scalarKind(items[0])
	}
	return Value{items: items, list: true, kind: kind}
}

func enumValue(s string) Value {
	return Value{items: []string{s}, kind: KindEnum}
}

func scalarKind(s string) Kind {
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return KindNumber
	}
	return KindText
}

func (v Value) IsList() bool { return v.list }

func (v Value) Kind() Kind { return v.kind }

// String returns the scalar value, or a bracketed join for lists.
func (v Value) String() string {
	if !v.list {
		if len(v.items) == 0 {
			return ""
		}
		return v.items[0]
	}
	return "[" + strings.Join(v.items, ", ") + "]"
}

// Items returns the underlying values in list order.
func (v Value) Items() []string {
	return v.items
}

func (v Value) Len() int { return len(v.items) }

func (v Value) Equal(other Value) bool {
	if v.list != other.list || len(v.items) != len(other.items) {
		return false
	}
	for i := range v.items {
		if v.items[i] != other.items[i] {
			return false
		}
	}
	return true
}

// MarshalJSON emits a bare string for scalars and an array for lists, the
// shape callers of the HTTP surface expect.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.list {
		return json.Marshal(v.items)
	}
	return json.Marshal(v.String())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = Scalar(s)
		return nil
	}
	var items []string
	if err := json.Unmarshal(data, &items); err == nil {
		*v = List(items...)
		return nil
	}
	return fmt.Errorf("value must be a string or an array of strings")
}
