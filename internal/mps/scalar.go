package mps

import (
	"encoding/binary"
	"math"

	"github.com/hpungsan/brsave/internal/errors"
)

// ScalarType is a schema-declared primitive type.
type ScalarType uint8

const (
	Bool ScalarType = iota + 1
	U8
	U16
	U32
	U64
	I8
	I16
	I32
	I64
	F32
	F64
	Str
	Object
	Class

	// ArrayLen reads the element count of an element array.
	ArrayLen
	// BinLen reads the byte length of a flat array.
	BinLen
)

var scalarNames = map[ScalarType]string{
	Bool:     "bool",
	U8:       "u8",
	U16:      "u16",
	U32:      "u32",
	U64:      "u64",
	I8:       "i8",
	I16:      "i16",
	I32:      "i32",
	I64:      "i64",
	F32:      "f32",
	F64:      "f64",
	Str:      "str",
	Object:   "object",
	Class:    "class",
	ArrayLen: "array",
	BinLen:   "flat array",
}

// String returns the schema tag, e.g. "u16".
func (t ScalarType) String() string {
	if name, ok := scalarNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseScalarType maps a schema tag to a primitive type.
// Only the primitive tags usable in a schema document are recognized.
func ParseScalarType(tag string) (ScalarType, bool) {
	for t := Bool; t <= Class; t++ {
		if scalarNames[t] == tag {
			return t, true
		}
	}
	return 0, false
}

// Size returns the packed size of t inside a flat array, or 0 when t
// has no fixed-width raw layout.
func (t ScalarType) Size() int {
	switch t {
	case U8, I8:
		return 1
	case U16, I16:
		return 2
	case U32, I32, F32:
		return 4
	case U64, I64, F64:
		return 8
	}
	return 0
}

var (
	intI32 = []WireType{WirePositiveFixint, WireNegativeFixint, WireInt8, WireUint8, WireInt16, WireUint16, WireInt32}

	// compat lists, per declared type, the only wire encodings it accepts.
	// No entry allows a value wider than the declared type or a signed
	// encoding for an unsigned type.
	compat = map[ScalarType][]WireType{
		Bool:     {WireTrue, WireFalse},
		U8:       {WirePositiveFixint, WireUint8},
		U16:      {WirePositiveFixint, WireUint8, WireUint16},
		U32:      {WirePositiveFixint, WireUint8, WireUint16, WireUint32},
		U64:      {WirePositiveFixint, WireUint8, WireUint16, WireUint32, WireUint64},
		I8:       {WirePositiveFixint, WireNegativeFixint, WireInt8},
		I16:      {WirePositiveFixint, WireNegativeFixint, WireInt8, WireUint8, WireInt16},
		I32:      intI32,
		I64:      {WirePositiveFixint, WireNegativeFixint, WireInt8, WireUint8, WireInt16, WireUint16, WireInt32, WireUint32, WireInt64},
		F32:      {WirePositiveFixint, WireNegativeFixint, WireInt8, WireUint8, WireInt16, WireUint16, WireFloat32},
		F64:      {WirePositiveFixint, WireNegativeFixint, WireInt8, WireUint8, WireInt16, WireUint16, WireInt32, WireUint32, WireFloat32, WireFloat64},
		Str:      {WireFixstr, WireStr8, WireStr16, WireStr32},
		Object:   intI32,
		Class:    intI32,
		ArrayLen: {WireFixarray, WireArray16, WireArray32},
		BinLen:   {WireBin8, WireBin16, WireBin32},
	}
)

// Accepts reports whether a value declared as t may be encoded as w.
func (t ScalarType) Accepts(w WireType) bool {
	for _, ok := range compat[t] {
		if ok == w {
			return true
		}
	}
	return false
}

// ReadScalar decodes the wire value at buf[off] as declared type t.
// It returns the value and the number of bytes consumed.
//
// Values are returned as the declared Go type (uint8 for u8, int32 for
// object/class, ...). For ArrayLen and BinLen only the header is consumed
// and the returned value is the element count or byte length as an int.
func ReadScalar(buf []byte, off int, t ScalarType) (any, int, error) {
	if off >= len(buf) {
		return nil, 0, errors.NewTruncated(off, 1, 0)
	}
	b := buf[off]
	w := ClassifyWire(b)
	if w.forbidden() {
		return nil, 0, errors.NewInvalid(off, w.String())
	}
	if _, known := compat[t]; !known {
		return nil, 0, errors.NewUnimplemented("schema type " + t.String())
	}
	if !t.Accepts(w) {
		return nil, 0, errors.NewTypeMismatch(off, t.String(), w.String())
	}

	p := off + 1
	need := func(n int) error {
		if p+n > len(buf) {
			return errors.NewTruncated(p, n, len(buf)-p)
		}
		return nil
	}

	var (
		ival int64
		uval uint64
		fval float64
		size int
	)

	switch w {
	case WireTrue:
		return true, 1, nil
	case WireFalse:
		return false, 1, nil

	case WireFixarray:
		return int(b & 0x0f), 1, nil
	case WireArray16, WireBin16:
		if err := need(2); err != nil {
			return nil, 0, err
		}
		return int(binary.BigEndian.Uint16(buf[p:])), 3, nil
	case WireArray32, WireBin32:
		if err := need(4); err != nil {
			return nil, 0, err
		}
		return int(binary.BigEndian.Uint32(buf[p:])), 5, nil
	case WireBin8:
		if err := need(1); err != nil {
			return nil, 0, err
		}
		return int(buf[p]), 2, nil

	case WireFixstr, WireStr8, WireStr16, WireStr32:
		var n, hdr int
		switch w {
		case WireFixstr:
			n = int(b & 0x1f)
		case WireStr8:
			hdr = 1
		case WireStr16:
			hdr = 2
		case WireStr32:
			hdr = 4
		}
		if err := need(hdr); err != nil {
			return nil, 0, err
		}
		switch hdr {
		case 1:
			n = int(buf[p])
		case 2:
			n = int(binary.BigEndian.Uint16(buf[p:]))
		case 4:
			n = int(binary.BigEndian.Uint32(buf[p:]))
		}
		p += hdr
		if err := need(n); err != nil {
			return nil, 0, err
		}
		return string(buf[p : p+n]), 1 + hdr + n, nil

	case WirePositiveFixint:
		uval = uint64(b)
		ival, fval = int64(uval), float64(uval)
	case WireNegativeFixint:
		ival = int64(int8(b))
		fval = float64(ival)

	case WireUint8, WireUint16, WireUint32, WireUint64:
		size = 1 << (w - WireUint8)
		if err := need(size); err != nil {
			return nil, 0, err
		}
		switch size {
		case 1:
			uval = uint64(buf[p])
		case 2:
			uval = uint64(binary.BigEndian.Uint16(buf[p:]))
		case 4:
			uval = uint64(binary.BigEndian.Uint32(buf[p:]))
		case 8:
			uval = binary.BigEndian.Uint64(buf[p:])
		}
		ival, fval = int64(uval), float64(uval)

	case WireInt8, WireInt16, WireInt32, WireInt64:
		size = 1 << (w - WireInt8)
		if err := need(size); err != nil {
			return nil, 0, err
		}
		switch size {
		case 1:
			ival = int64(int8(buf[p]))
		case 2:
			ival = int64(int16(binary.BigEndian.Uint16(buf[p:])))
		case 4:
			ival = int64(int32(binary.BigEndian.Uint32(buf[p:])))
		case 8:
			ival = int64(binary.BigEndian.Uint64(buf[p:]))
		}
		fval = float64(ival)

	case WireFloat32:
		size = 4
		if err := need(size); err != nil {
			return nil, 0, err
		}
		fval = float64(math.Float32frombits(binary.BigEndian.Uint32(buf[p:])))
	case WireFloat64:
		size = 8
		if err := need(size); err != nil {
			return nil, 0, err
		}
		fval = math.Float64frombits(binary.BigEndian.Uint64(buf[p:]))
	}

	n := 1 + size
	switch t {
	case U8:
		return uint8(uval), n, nil
	case U16:
		return uint16(uval), n, nil
	case U32:
		return uint32(uval), n, nil
	case U64:
		return uval, n, nil
	case I8:
		return int8(ival), n, nil
	case I16:
		return int16(ival), n, nil
	case I32, Object, Class:
		return int32(ival), n, nil
	case I64:
		return ival, n, nil
	case F32:
		return float32(fval), n, nil
	case F64:
		return fval, n, nil
	}
	return nil, 0, errors.NewTypeMismatch(off, t.String(), w.String())
}

// readRaw decodes one packed little-endian primitive at buf[off].
func readRaw(buf []byte, off int, t ScalarType) (any, error) {
	size := t.Size()
	if size == 0 {
		return nil, errors.NewUnimplemented("raw " + t.String())
	}
	if off+size > len(buf) {
		return nil, errors.NewTruncated(off, size, len(buf)-off)
	}
	p := buf[off:]
	switch t {
	case U8:
		return p[0], nil
	case I8:
		return int8(p[0]), nil
	case U16:
		return binary.LittleEndian.Uint16(p), nil
	case I16:
		return int16(binary.LittleEndian.Uint16(p)), nil
	case U32:
		return binary.LittleEndian.Uint32(p), nil
	case I32:
		return int32(binary.LittleEndian.Uint32(p)), nil
	case F32:
		return math.Float32frombits(binary.LittleEndian.Uint32(p)), nil
	case U64:
		return binary.LittleEndian.Uint64(p), nil
	case I64:
		return int64(binary.LittleEndian.Uint64(p)), nil
	case F64:
		return math.Float64frombits(binary.LittleEndian.Uint64(p)), nil
	}
	return nil, errors.NewUnimplemented("raw " + t.String())
}
