package mps

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/hpungsan/brsave/internal/errors"
)

// Kind tags the variant held by a TypeRef.
type Kind uint8

const (
	KindPrimitive Kind = iota + 1
	KindNamed          // reference to a struct
	KindEnum           // reference to an enum
	KindArray          // [T]: element-encoded array
	KindFlatArray      // [T, _]: packed little-endian records in a bin payload
	KindInvalid        // descriptor that did not parse, kept raw
)

// TypeRef is a parsed type descriptor.
type TypeRef struct {
	Kind   Kind
	Scalar ScalarType // KindPrimitive
	Name   string     // KindNamed, KindEnum
	Elem   *TypeRef   // KindArray, KindFlatArray

	// Extra is the second element of a flat array descriptor, kept for dumps.
	Extra any
	// Stride is the packed element size of a flat array, set by Validate.
	Stride int

	// Raw and Err hold a KindInvalid descriptor and its parse error.
	Raw any
	Err error
}

// String renders the descriptor the way it appears in the schema document.
func (t *TypeRef) String() string {
	switch t.Kind {
	case KindPrimitive:
		return t.Scalar.String()
	case KindNamed, KindEnum:
		return t.Name
	case KindArray:
		return "[" + t.Elem.String() + "]"
	case KindFlatArray:
		return fmt.Sprintf("[%s, %v]", t.Elem.String(), t.Extra)
	case KindInvalid:
		return fmt.Sprint(t.Raw)
	}
	return "?"
}

// MarshalJSON renders the descriptor in its schema document form.
func (t *TypeRef) MarshalJSON() ([]byte, error) {
	switch t.Kind {
	case KindArray:
		return json.Marshal([]any{t.Elem})
	case KindFlatArray:
		return json.Marshal([]any{t.Elem, t.Extra})
	case KindInvalid:
		return json.Marshal(t.Raw)
	}
	return json.Marshal(t.String())
}

// Fields is an ordered field table; declaration order is wire order.
type Fields = orderedmap.OrderedMap[string, *TypeRef]

// Schema is a parsed schema document.
type Schema struct {
	// Enums is kept raw; decoding an enum field is not supported.
	Enums *orderedmap.OrderedMap[string, any] `json:"enums"`
	// Structs in declaration order.
	Structs *orderedmap.OrderedMap[string, *Fields] `json:"structs"`
	// Root is the struct decoded by default. Documents that do not
	// declare it get the last declared struct.
	Root string `json:"root"`
	// RootDeclared reports whether the document named its root explicitly.
	RootDeclared bool `json:"root_declared"`

	mu        sync.Mutex
	validated map[string]error
}

// ParseSchema decodes and validates a schema document.
//
// The document is a MessagePack array [enums, structs] or
// [enums, structs, root]. Map key order is preserved.
func ParseSchema(data []byte) (*Schema, error) {
	s, err := Inspect(data)
	if err != nil {
		return nil, err
	}
	if err := s.Validate(s.Root); err != nil {
		return nil, err
	}
	return s, nil
}

// Inspect decodes a schema document without validating its type graph.
// Used for dumping schemas that may not be decodable. Field descriptors
// that do not parse are kept raw as KindInvalid; Validate reports them.
func Inspect(data []byte) (*Schema, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, errors.NewBadSchema("document", err.Error())
	}
	if n < 2 || n > 3 {
		return nil, errors.NewBadSchema("document", fmt.Sprintf("array of %d elements", n))
	}

	rawEnums, err := decodeDocument(dec, 0)
	if err != nil {
		return nil, errors.NewBadSchema("enums", err.Error())
	}
	rawStructs, err := decodeDocument(dec, 0)
	if err != nil {
		return nil, errors.NewBadSchema("structs", err.Error())
	}

	s := &Schema{
		Enums:     orderedmap.New[string, any](),
		Structs:   orderedmap.New[string, *Fields](),
		validated: make(map[string]error),
	}

	switch e := rawEnums.(type) {
	case nil:
	case *orderedmap.OrderedMap[string, any]:
		s.Enums = e
	default:
		return nil, errors.NewBadSchema("enums", e)
	}

	structs, ok := rawStructs.(*orderedmap.OrderedMap[string, any])
	if !ok {
		return nil, errors.NewBadSchema("structs", rawStructs)
	}
	for pair := structs.Oldest(); pair != nil; pair = pair.Next() {
		def, ok := pair.Value.(*orderedmap.OrderedMap[string, any])
		if !ok {
			return nil, errors.NewBadSchema(pair.Key, pair.Value)
		}
		fields := orderedmap.New[string, *TypeRef]()
		for f := def.Oldest(); f != nil; f = f.Next() {
			ref, err := parseTypeRef(pair.Key+"."+f.Key, f.Value)
			if err != nil {
				ref = &TypeRef{Kind: KindInvalid, Raw: f.Value, Err: err}
			}
			fields.Set(f.Key, ref)
		}
		s.Structs.Set(pair.Key, fields)
	}

	if n == 3 {
		root, err := dec.DecodeString()
		if err != nil {
			return nil, errors.NewBadSchema("root", err.Error())
		}
		s.Root = root
		s.RootDeclared = true
	} else {
		s.Root = s.InferRoot()
	}

	s.resolveEnums()
	return s, nil
}

// InferRoot returns the last declared struct name, the legacy root convention.
func (s *Schema) InferRoot() string {
	if last := s.Structs.Newest(); last != nil {
		return last.Key
	}
	return ""
}

// Struct returns the field table of a named struct.
func (s *Schema) Struct(name string) (*Fields, bool) {
	return s.Structs.Get(name)
}

// parseTypeRef converts a raw descriptor into a TypeRef.
func parseTypeRef(key string, v any) (*TypeRef, error) {
	switch d := v.(type) {
	case string:
		if st, ok := ParseScalarType(d); ok {
			return &TypeRef{Kind: KindPrimitive, Scalar: st}, nil
		}
		return &TypeRef{Kind: KindNamed, Name: d}, nil
	case []any:
		if len(d) == 0 || len(d) > 2 {
			return nil, errors.NewBadSchema(key, d)
		}
		elem, err := parseTypeRef(key+"[]", d[0])
		if err != nil {
			return nil, err
		}
		if len(d) == 1 {
			return &TypeRef{Kind: KindArray, Elem: elem}, nil
		}
		return &TypeRef{Kind: KindFlatArray, Elem: elem, Extra: d[1]}, nil
	}
	return nil, errors.NewBadSchema(key, v)
}

// resolveEnums retags named references that point at enums.
func (s *Schema) resolveEnums() {
	var walk func(t *TypeRef)
	walk = func(t *TypeRef) {
		switch t.Kind {
		case KindNamed:
			if _, isStruct := s.Structs.Get(t.Name); isStruct {
				return
			}
			if _, isEnum := s.Enums.Get(t.Name); isEnum {
				t.Kind = KindEnum
			}
		case KindArray, KindFlatArray:
			walk(t.Elem)
		}
	}
	for pair := s.Structs.Oldest(); pair != nil; pair = pair.Next() {
		for f := pair.Value.Oldest(); f != nil; f = f.Next() {
			walk(f.Value)
		}
	}
}

// Validate checks the type graph reachable from root: every name resolves,
// there are no reference cycles, and flat array elements have a fixed
// packed layout. Flat array strides are computed here. Results are
// memoized per root.
func (s *Schema) Validate(root string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.validated == nil {
		s.validated = make(map[string]error)
	}
	if err, done := s.validated[root]; done {
		return err
	}
	err := s.validate(root)
	s.validated[root] = err
	return err
}

const (
	unvisited = iota
	visiting
	visited
)

func (s *Schema) validate(root string) error {
	if root == "" {
		return errors.NewSchemaNotFound("(root)")
	}
	if _, ok := s.Structs.Get(root); !ok {
		return errors.NewSchemaNotFound(root)
	}

	state := make(map[string]int)
	var visitStruct func(name string) error
	var visitRef func(key string, t *TypeRef) error

	visitRef = func(key string, t *TypeRef) error {
		switch t.Kind {
		case KindInvalid:
			return t.Err
		case KindNamed:
			if _, ok := s.Structs.Get(t.Name); !ok {
				return errors.NewSchemaNotFound(t.Name)
			}
			return visitStruct(t.Name)
		case KindArray:
			return visitRef(key+"[]", t.Elem)
		case KindFlatArray:
			if err := visitRef(key+"[]", t.Elem); err != nil {
				return err
			}
			stride, err := s.stride(key, t.Elem)
			if err != nil {
				return err
			}
			if stride == 0 {
				return errors.NewBadSchema(key, "flat array element has zero size")
			}
			t.Stride = stride
		}
		return nil
	}

	visitStruct = func(name string) error {
		switch state[name] {
		case visiting:
			return errors.NewBadSchema(name, "struct reference cycle")
		case visited:
			return nil
		}
		state[name] = visiting
		fields, _ := s.Structs.Get(name)
		for f := fields.Oldest(); f != nil; f = f.Next() {
			if err := visitRef(name+"."+f.Key, f.Value); err != nil {
				return err
			}
		}
		state[name] = visited
		return nil
	}

	return visitStruct(root)
}

// stride returns the packed size of t inside a flat array.
// Cycles are already excluded by the caller.
func (s *Schema) stride(key string, t *TypeRef) (int, error) {
	switch t.Kind {
	case KindPrimitive:
		switch t.Scalar {
		case Str:
			return 0, errors.NewBadSchema(key, "str inside flat array")
		case Bool, Object, Class:
			return 0, errors.NewUnimplemented("raw " + t.Scalar.String())
		}
		return t.Scalar.Size(), nil
	case KindEnum:
		return 0, errors.NewUnimplemented("raw enum " + t.Name)
	case KindNamed:
		fields, ok := s.Structs.Get(t.Name)
		if !ok {
			return 0, errors.NewSchemaNotFound(t.Name)
		}
		total := 0
		for f := fields.Oldest(); f != nil; f = f.Next() {
			n, err := s.stride(t.Name+"."+f.Key, f.Value)
			if err != nil {
				return 0, err
			}
			total += n
		}
		return total, nil
	case KindInvalid:
		return 0, t.Err
	}
	return 0, errors.NewBadSchema(key, "array inside flat array")
}

// maxDocumentDepth bounds nesting in schema documents.
const maxDocumentDepth = 32

// decodeDocument reads one self-describing value, keeping map key order.
func decodeDocument(dec *msgpack.Decoder, depth int) (any, error) {
	if depth > maxDocumentDepth {
		return nil, fmt.Errorf("document nested deeper than %d", maxDocumentDepth)
	}
	c, err := dec.PeekCode()
	if err != nil {
		return nil, err
	}

	switch {
	case msgpcode.IsFixedMap(c) || c == msgpcode.Map16 || c == msgpcode.Map32:
		n, err := dec.DecodeMapLen()
		if err != nil {
			return nil, err
		}
		m := orderedmap.New[string, any]()
		for i := 0; i < n; i++ {
			k, err := dec.DecodeInterface()
			if err != nil {
				return nil, err
			}
			key, ok := k.(string)
			if !ok {
				key = fmt.Sprint(k)
			}
			v, err := decodeDocument(dec, depth+1)
			if err != nil {
				return nil, err
			}
			m.Set(key, v)
		}
		return m, nil

	case msgpcode.IsFixedArray(c) || c == msgpcode.Array16 || c == msgpcode.Array32:
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return nil, err
		}
		list := make([]any, 0, n)
		for i := 0; i < n; i++ {
			v, err := decodeDocument(dec, depth+1)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		return list, nil
	}

	return dec.DecodeInterface()
}
