package mps

import (
	"bytes"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

// field is one struct field in a test schema document.
type field struct {
	name string
	desc any // string or []any
}

// structDef is one struct in a test schema document, in declaration order.
type structDef struct {
	name   string
	fields []field
}

// schemaDoc builds schema documents with a deterministic key order.
type schemaDoc struct {
	enums   []string
	structs []structDef
	root    string
}

func (d schemaDoc) encode(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("encode schema: %v", err)
		}
	}

	n := 2
	if d.root != "" {
		n = 3
	}
	must(enc.EncodeArrayLen(n))

	must(enc.EncodeMapLen(len(d.enums)))
	for _, name := range d.enums {
		must(enc.EncodeString(name))
		must(enc.EncodeMapLen(1))
		must(enc.EncodeString("None"))
		must(enc.EncodeInt(0))
	}

	must(enc.EncodeMapLen(len(d.structs)))
	for _, s := range d.structs {
		must(enc.EncodeString(s.name))
		must(enc.EncodeMapLen(len(s.fields)))
		for _, f := range s.fields {
			must(enc.EncodeString(f.name))
			must(enc.Encode(f.desc))
		}
	}

	if d.root != "" {
		must(enc.EncodeString(d.root))
	}
	return buf.Bytes()
}

func (d schemaDoc) parse(t *testing.T) *Schema {
	t.Helper()
	s, err := ParseSchema(d.encode(t))
	if err != nil {
		t.Fatalf("ParseSchema failed: %v", err)
	}
	return s
}
