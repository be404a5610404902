package mps

// WireType classifies the leading type byte of a MessagePack value.
type WireType uint8

const (
	WirePositiveFixint WireType = iota
	WireFixmap
	WireFixarray
	WireFixstr
	WireNil
	WireNeverUsed
	WireFalse
	WireTrue
	WireBin8
	WireBin16
	WireBin32
	WireExt8
	WireExt16
	WireExt32
	WireFloat32
	WireFloat64
	WireUint8
	WireUint16
	WireUint32
	WireUint64
	WireInt8
	WireInt16
	WireInt32
	WireInt64
	WireFixext1
	WireFixext2
	WireFixext4
	WireFixext8
	WireFixext16
	WireStr8
	WireStr16
	WireStr32
	WireArray16
	WireArray32
	WireMap16
	WireMap32
	WireNegativeFixint
)

var wireNames = [...]string{
	WirePositiveFixint: "positive fixint",
	WireFixmap:         "fixmap",
	WireFixarray:       "fixarray",
	WireFixstr:         "fixstr",
	WireNil:            "nil",
	WireNeverUsed:      "(never used)",
	WireFalse:          "false",
	WireTrue:           "true",
	WireBin8:           "bin 8",
	WireBin16:          "bin 16",
	WireBin32:          "bin 32",
	WireExt8:           "ext 8",
	WireExt16:          "ext 16",
	WireExt32:          "ext 32",
	WireFloat32:        "float 32",
	WireFloat64:        "float 64",
	WireUint8:          "uint 8",
	WireUint16:         "uint 16",
	WireUint32:         "uint 32",
	WireUint64:         "uint 64",
	WireInt8:           "int 8",
	WireInt16:          "int 16",
	WireInt32:          "int 32",
	WireInt64:          "int 64",
	WireFixext1:        "fixext 1",
	WireFixext2:        "fixext 2",
	WireFixext4:        "fixext 4",
	WireFixext8:        "fixext 8",
	WireFixext16:       "fixext 16",
	WireStr8:           "str 8",
	WireStr16:          "str 16",
	WireStr32:          "str 32",
	WireArray16:        "array 16",
	WireArray32:        "array 32",
	WireMap16:          "map 16",
	WireMap32:          "map 32",
	WireNegativeFixint: "negative fixint",
}

// String returns the MessagePack format name, e.g. "uint 16".
func (w WireType) String() string {
	if int(w) < len(wireNames) {
		return wireNames[w]
	}
	return "unknown"
}

// ClassifyWire maps a type byte to its wire type.
func ClassifyWire(b byte) WireType {
	switch {
	case b <= 0x7f:
		return WirePositiveFixint
	case b <= 0x8f:
		return WireFixmap
	case b <= 0x9f:
		return WireFixarray
	case b <= 0xbf:
		return WireFixstr
	case b >= 0xe0:
		return WireNegativeFixint
	}
	// 0xc0..0xdf map one-to-one onto WireNil..WireMap32.
	return WireNil + WireType(b-0xc0)
}

// forbidden reports whether the wire form is never valid in mps data.
func (w WireType) forbidden() bool {
	switch w {
	case WireNil, WireNeverUsed,
		WireFixmap, WireMap16, WireMap32,
		WireExt8, WireExt16, WireExt32,
		WireFixext1, WireFixext2, WireFixext4, WireFixext8, WireFixext16:
		return true
	}
	return false
}
