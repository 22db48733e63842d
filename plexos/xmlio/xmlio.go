// Package xmlio loads a Plexos master dataset document into the relational
// schema and writes it back. The writer reproduces the original table and
// column order and skips absent fields entirely, because the consuming UI
// crashes on empty optional sub-elements.
package xmlio

import (
	"strconv"

	"plexedit/plexos/schema"
)

// Meta keys recorded at load time and consumed by Save.
const (
	metaNamespace   = "namespace"
	metaRootElement = "root_element"
	metaColumnOrder = "column_order"
)

// Defaults for documents saved from a store with no recorded metadata.
const (
	defaultNamespace   = "http://tempuri.org/MasterDataSet.xsd"
	defaultRootElement = "MasterDataSet"
)

// xmlField is one child element of a t_* row element, in document order.
type xmlField struct {
	name  string
	value string
}

// rowFields wraps one row's fields for typed, consumed-or-extra access.
type rowFields struct {
	fields []xmlField
	used   map[string]bool
}

func newRowFields(fields []xmlField) *rowFields {
	return &rowFields{fields: fields, used: make(map[string]bool)}
}

func (r *rowFields) lookup(name string) (string, bool) {
	for _, f := range r.fields {
		if f.name == name {
			r.used[name] = true
			return f.value, true
		}
	}
	return "", false
}

func (r *rowFields) str(name string) string {
	value, _ := r.lookup(name)
	return value
}

func (r *rowFields) optStr(name string) *string {
	if value, ok := r.lookup(name); ok {
		return &value
	}
	return nil
}

func (r *rowFields) intVal(name string) (int, error) {
	value, ok := r.lookup(name)
	if !ok {
		return 0, &missingFieldError{name}
	}
	return strconv.Atoi(value)
}

func (r *rowFields) optInt(name string) (*int, error) {
	value, ok := r.lookup(name)
	if !ok {
		return nil, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// extra collects the fields no typed column consumed.
func (r *rowFields) extra() schema.ExtraColumns {
	var extra schema.ExtraColumns
	for _, f := range r.fields {
		if !r.used[f.name] {
			if extra == nil {
				extra = make(schema.ExtraColumns)
			}
			extra[f.name] = f.value
		}
	}
	return extra
}

type missingFieldError struct {
	name string
}

func (e *missingFieldError) Error() string {
	return "missing required field " + e.name
}

// rowMap is one row ready to write: column name -> value, nil for absent.
type rowMap map[string]*string

func strp(s string) *string { return &s }

func intp(v int) *string {
	s := strconv.Itoa(v)
	return &s
}

func optIntp(v *int) *string {
	if v == nil {
		return nil
	}
	return intp(*v)
}

func addExtra(row rowMap, extra schema.ExtraColumns) rowMap {
	for k, v := range extra {
		row[k] = strp(v)
	}
	return row
}
