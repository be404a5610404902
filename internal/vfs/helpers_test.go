package vfs

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/hpungsan/brsave/internal/compress"
)

// fakeSource is an in-memory BlobSource that counts fetches.
type fakeSource struct {
	mu      sync.Mutex
	blobs   map[int64]RawBlob
	calls   int
	perID   map[int64]int
	failFor int // number of upcoming calls that fail
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		blobs: make(map[int64]RawBlob),
		perID: make(map[int64]int),
	}
}

func (s *fakeSource) Blobs(_ context.Context, ids []int64) ([]RawBlob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failFor > 0 {
		s.failFor--
		return nil, fmt.Errorf("disk on fire")
	}
	var out []RawBlob
	for _, id := range ids {
		s.perID[id]++
		if b, ok := s.blobs[id]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *fakeSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *fakeSource) fetches(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.perID[id]
}

// tree builds an FS fixture with sequential ids.
type tree struct {
	t      *testing.T
	fs     *FS
	src    *fakeSource
	nextID int64
}

func newTree(t *testing.T, opts ...Option) *tree {
	src := newFakeSource()
	opts = append([]Option{WithLogger(zerolog.Nop())}, opts...)
	return &tree{t: t, fs: New(src, opts...), src: src}
}

func (tr *tree) folder(parent int64, name string, created int64, deleted *int64) int64 {
	tr.nextID++
	tr.fs.IngestFolder(Folder{ID: tr.nextID, ParentID: parent, Name: name, CreatedAt: created, DeletedAt: deleted})
	return tr.nextID
}

func (tr *tree) file(parent int64, name string, created int64, deleted *int64, content []byte) int64 {
	tr.nextID++
	id := tr.nextID
	tr.src.blobs[id] = RawBlob{
		ID:               id,
		Compression:      compress.None,
		SizeUncompressed: int64(len(content)),
		SizeCompressed:   int64(len(content)),
		Content:          content,
	}
	tr.fs.IngestFile(File{ID: id, ParentID: parent, ContentID: id, Name: name, CreatedAt: created, DeletedAt: deleted})
	return id
}

func at(ts int64) *int64 {
	return &ts
}

// ownersSchema is {"Owners": {"UserNames": ["str"], "BrickCounts": ["u32", 0]}}.
func ownersSchema(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	for _, err := range []error{
		enc.EncodeArrayLen(2),
		enc.EncodeMapLen(0),
		enc.EncodeMapLen(1),
		enc.EncodeString("Owners"),
		enc.EncodeMapLen(2),
		enc.EncodeString("UserNames"),
		enc.Encode([]any{"str"}),
		enc.EncodeString("BrickCounts"),
		enc.Encode([]any{"u32", 0}),
	} {
		if err != nil {
			t.Fatalf("encode schema: %v", err)
		}
	}
	return buf.Bytes()
}

// ownersData decodes against ownersSchema to ann=10, bob=3.
var ownersData = []byte{
	0x92, 0xa3, 'a', 'n', 'n', 0xa3, 'b', 'o', 'b',
	0xc4, 0x08, 0x0a, 0x00, 0x00, 0x00, 0x03, 0x00, 0x00, 0x00,
}

// indexSchema is {"Chunk": {"AssetIndices": ["u8"]}}.
func indexSchema(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	for _, err := range []error{
		enc.EncodeArrayLen(2),
		enc.EncodeMapLen(0),
		enc.EncodeMapLen(1),
		enc.EncodeString("Chunk"),
		enc.EncodeMapLen(1),
		enc.EncodeString("AssetIndices"),
		enc.Encode([]any{"u8"}),
	} {
		if err != nil {
			t.Fatalf("encode schema: %v", err)
		}
	}
	return buf.Bytes()
}

// assetsSchema is {"Globals": {"AssetNames": ["str"]}}.
func assetsSchema(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	for _, err := range []error{
		enc.EncodeArrayLen(2),
		enc.EncodeMapLen(0),
		enc.EncodeMapLen(1),
		enc.EncodeString("Globals"),
		enc.EncodeMapLen(1),
		enc.EncodeString("AssetNames"),
		enc.Encode([]any{"str"}),
	} {
		if err != nil {
			t.Fatalf("encode schema: %v", err)
		}
	}
	return buf.Bytes()
}
