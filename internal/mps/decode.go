package mps

import (
	"fmt"
	"strconv"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/hpungsan/brsave/internal/errors"
)

// Record is one decoded struct: field name to value, in wire order.
//
// Values are scalars of the declared Go type, *Record for nested structs,
// or []any for element and flat arrays. NaN and infinite floats decode
// as NonFinite.
type Record = orderedmap.OrderedMap[string, any]

// NewRecord returns an empty Record.
func NewRecord() *Record {
	return orderedmap.New[string, any]()
}

// Option configures Decode.
type Option func(*decoder)

// WithRoot decodes the named struct instead of the schema's root.
func WithRoot(name string) Option {
	return func(d *decoder) {
		d.root = name
	}
}

// WithDataMode attaches a data mode and its global lookup record.
func WithDataMode(mode DataMode, globals *Record) Option {
	return func(d *decoder) {
		d.mode = mode
		d.globals = globals
	}
}

type pathSeg struct {
	field string
	index int
}

type decoder struct {
	schema  *Schema
	buf     []byte
	off     int
	root    string
	mode    DataMode
	globals *Record
	path    []pathSeg
}

// Decode interprets data against the schema and returns the root record.
// Decoding is all-or-nothing: the first error aborts and no partial
// record is returned. Errors carry the byte offset and field path.
func Decode(s *Schema, data []byte, opts ...Option) (*Record, error) {
	d := &decoder{schema: s, buf: data, root: s.Root}
	for _, opt := range opts {
		opt(d)
	}
	if err := s.Validate(d.root); err != nil {
		return nil, err
	}

	fields, _ := s.Struct(d.root)
	d.path = append(d.path, pathSeg{field: d.root, index: -1})
	return d.readStruct(d.root, fields)
}

func (d *decoder) readStruct(name string, fields *Fields) (*Record, error) {
	rec := NewRecord()
	for f := fields.Oldest(); f != nil; f = f.Next() {
		d.path = append(d.path, pathSeg{field: f.Key, index: -1})
		v, err := d.readValue(f.Value)
		if err == nil && d.mode != nil {
			v, err = d.mode.Resolve(FieldContext{Struct: name, Field: f.Key, Type: f.Value}, v, d.globals)
			if err != nil {
				err = d.fail(err)
			}
		}
		if err != nil {
			return nil, err
		}
		d.path = d.path[:len(d.path)-1]
		rec.Set(f.Key, v)
	}
	return rec, nil
}

func (d *decoder) readValue(t *TypeRef) (any, error) {
	switch t.Kind {
	case KindPrimitive:
		v, n, err := ReadScalar(d.buf, d.off, t.Scalar)
		if err != nil {
			return nil, d.fail(err)
		}
		d.off += n
		return finite(v), nil

	case KindEnum:
		return nil, d.fail(errors.NewUnimplemented("enum " + t.Name))

	case KindNamed:
		fields, ok := d.schema.Struct(t.Name)
		if !ok {
			return nil, d.fail(errors.NewSchemaNotFound(t.Name))
		}
		return d.readStruct(t.Name, fields)

	case KindArray:
		count, err := d.readLen(ArrayLen)
		if err != nil {
			return nil, err
		}
		if d.schema.zeroWidth(t.Elem) {
			if count > maxZeroWidthElements {
				return nil, d.fail(errors.NewMalformed(d.off,
					fmt.Sprintf("array of %d empty elements exceeds %d", count, maxZeroWidthElements)))
			}
		} else if remaining := len(d.buf) - d.off; count > remaining {
			// Every other element takes at least one byte.
			return nil, d.fail(errors.NewMalformed(d.off,
				fmt.Sprintf("array of %d elements exceeds remaining %d bytes", count, remaining)))
		}
		out := make([]any, 0, count)
		for i := 0; i < count; i++ {
			d.path = append(d.path, pathSeg{index: i})
			v, err := d.readValue(t.Elem)
			if err != nil {
				return nil, err
			}
			d.path = d.path[:len(d.path)-1]
			out = append(out, v)
		}
		return out, nil

	case KindFlatArray:
		size, err := d.readLen(BinLen)
		if err != nil {
			return nil, err
		}
		start := d.off
		if remaining := len(d.buf) - start; size > remaining {
			return nil, d.fail(errors.NewTruncated(start, size, remaining))
		}
		if size%t.Stride != 0 {
			return nil, d.fail(errors.NewMalformed(start,
				fmt.Sprintf("flat array of %d bytes is not a multiple of %d-byte %s elements", size, t.Stride, t.Elem)))
		}
		out := make([]any, 0, size/t.Stride)
		end := start + size
		for d.off < end {
			v, err := d.readRaw(t.Elem)
			if err != nil {
				return nil, d.fail(err)
			}
			out = append(out, v)
		}
		return out, nil
	}

	return nil, d.fail(errors.NewBadSchema(d.pathString(), t.String()))
}

// maxZeroWidthElements caps arrays of structs that occupy no bytes.
const maxZeroWidthElements = 1 << 16

// zeroWidth reports whether t is a struct that encodes to no bytes: one
// with no fields, or only zero-width struct fields.
func (s *Schema) zeroWidth(t *TypeRef) bool {
	if t.Kind != KindNamed {
		return false
	}
	fields, ok := s.Struct(t.Name)
	if !ok {
		return false
	}
	for f := fields.Oldest(); f != nil; f = f.Next() {
		if !s.zeroWidth(f.Value) {
			return false
		}
	}
	return true
}

// readLen reads an array or bin header and returns its length.
func (d *decoder) readLen(t ScalarType) (int, error) {
	v, n, err := ReadScalar(d.buf, d.off, t)
	if err != nil {
		return 0, d.fail(err)
	}
	d.off += n
	return v.(int), nil
}

// readRaw reads one packed element of a flat array.
func (d *decoder) readRaw(t *TypeRef) (any, error) {
	switch t.Kind {
	case KindPrimitive:
		v, err := readRaw(d.buf, d.off, t.Scalar)
		if err != nil {
			return nil, err
		}
		d.off += t.Scalar.Size()
		return finite(v), nil
	case KindNamed:
		fields, ok := d.schema.Struct(t.Name)
		if !ok {
			return nil, errors.NewSchemaNotFound(t.Name)
		}
		rec := NewRecord()
		for f := fields.Oldest(); f != nil; f = f.Next() {
			v, err := d.readRaw(f.Value)
			if err != nil {
				return nil, err
			}
			rec.Set(f.Key, v)
		}
		return rec, nil
	}
	return nil, errors.NewUnimplemented("raw " + t.String())
}

// fail annotates a decode error with the current field path.
func (d *decoder) fail(err error) error {
	if sErr, ok := errors.As(err); ok {
		return sErr.WithField(d.pathString())
	}
	return err
}

func (d *decoder) pathString() string {
	var b strings.Builder
	for i, seg := range d.path {
		switch {
		case seg.index >= 0:
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(seg.index))
			b.WriteByte(']')
		case i == 0:
			b.WriteString(seg.field)
		default:
			b.WriteByte('.')
			b.WriteString(seg.field)
		}
	}
	return b.String()
}
