package mps

import (
	"fmt"

	"github.com/hpungsan/brsave/internal/errors"
)

// FieldContext identifies a struct field as it is decoded.
type FieldContext struct {
	Struct string
	Field  string
	Type   *TypeRef
}

// DataMode post-processes decoded struct fields using cross-file context.
//
// Some files only make sense together with a shared table stored in
// another file (for example, per-chunk indices into a global asset list).
// The caller picks the mode and loads the globals record; Decode calls
// Resolve once per struct field, after the field has been fully decoded.
type DataMode interface {
	Resolve(field FieldContext, value any, globals *Record) (any, error)
}

// TableLookup replaces integer indices with entries of a globals table.
// Keys are field names in the decoded file, values are field names in
// the globals record holding the table.
type TableLookup map[string]string

// Resolve implements DataMode.
func (m TableLookup) Resolve(field FieldContext, value any, globals *Record) (any, error) {
	tableName, ok := m[field.Field]
	if !ok {
		return value, nil
	}
	if globals == nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("field %s needs global table %s but no globals were loaded", field.Field, tableName))
	}
	raw, ok := globals.Get(tableName)
	if !ok {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("globals record has no table %s", tableName))
	}
	table, ok := raw.([]any)
	if !ok {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("global %s is not an array", tableName))
	}

	lookup := func(v any) (any, error) {
		idx, ok := toIndex(v)
		if !ok {
			return v, nil
		}
		if idx < 0 || idx >= len(table) {
			return nil, errors.NewLookupOutOfRange(tableName, idx, len(table))
		}
		return table[idx], nil
	}

	if list, ok := value.([]any); ok {
		out := make([]any, len(list))
		for i, v := range list {
			r, err := lookup(v)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	}
	return lookup(value)
}

// toIndex converts any decoded integer to an int.
func toIndex(v any) (int, bool) {
	switch n := v.(type) {
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}
