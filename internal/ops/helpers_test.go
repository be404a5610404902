package ops

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/hpungsan/brsave/internal/archive"
	"github.com/hpungsan/brsave/internal/compress"
	"github.com/hpungsan/brsave/internal/vfs"
)

// memSource serves blobs from a map.
type memSource map[int64][]byte

func (m memSource) Blobs(_ context.Context, ids []int64) ([]vfs.RawBlob, error) {
	var out []vfs.RawBlob
	for _, id := range ids {
		data, ok := m[id]
		if !ok {
			continue
		}
		out = append(out, vfs.RawBlob{
			ID:               id,
			Compression:      compress.None,
			SizeUncompressed: int64(len(data)),
			SizeCompressed:   int64(len(data)),
			Content:          data,
		})
	}
	return out, nil
}

type fieldDesc struct {
	name string
	desc []any
}

// schemaDoc encodes [{}, {structName: {fields...}}].
func schemaDoc(t *testing.T, structName string, fields ...fieldDesc) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	errs := []error{
		enc.EncodeArrayLen(2),
		enc.EncodeMapLen(0),
		enc.EncodeMapLen(1),
		enc.EncodeString(structName),
		enc.EncodeMapLen(len(fields)),
	}
	for _, f := range fields {
		errs = append(errs, enc.EncodeString(f.name), enc.Encode(f.desc))
	}
	for _, err := range errs {
		if err != nil {
			t.Fatalf("encode schema: %v", err)
		}
	}
	return buf.Bytes()
}

// ownersData decodes to ann=10, bob=3.
var ownersData = []byte{
	0x92, 0xa3, 'a', 'n', 'n', 0xa3, 'b', 'o', 'b',
	0xc4, 0x08, 0x0a, 0x00, 0x00, 0x00, 0x03, 0x00, 0x00, 0x00,
}

// chunkData decodes to AssetIndices [1, 0].
var chunkData = []byte{0x92, 0x01, 0x00}

// globalsData decodes to AssetNames ["Brick", "Ramp"].
var globalsData = []byte{0x92, 0xa5, 'B', 'r', 'i', 'c', 'k', 0xa4, 'R', 'a', 'm', 'p'}

// testSave builds this tree, with revisions 1@0, 2@10 and 3@30:
//
//	World/0/Owners.mps               created at 10
//	World/0/Owners.schema
//	World/0/Globals.mps
//	World/0/Globals.schema
//	World/0/ChunksShared.schema
//	World/0/Chunks/0_0_0.mps
//	World/0/Chunks/1_0_0.mps         truncated, fails to decode
//	World/Meta.json                  deleted at 20
func testSave(t *testing.T, opts ...vfs.Option) *archive.Save {
	t.Helper()
	src := memSource{
		10: ownersData,
		11: schemaDoc(t, "Owners",
			fieldDesc{"UserNames", []any{"str"}},
			fieldDesc{"BrickCounts", []any{"u32", 0}}),
		12: globalsData,
		13: schemaDoc(t, "Globals", fieldDesc{"AssetNames", []any{"str"}}),
		14: schemaDoc(t, "Chunk", fieldDesc{"AssetIndices", []any{"u8"}}),
		15: chunkData,
		16: {0x92, 0x01},
		17: []byte("{}"),
	}
	opts = append([]vfs.Option{vfs.WithLogger(zerolog.Nop())}, opts...)
	fs := vfs.New(src, opts...)

	fs.IngestFolder(vfs.Folder{ID: 1, Name: "World"})
	fs.IngestFolder(vfs.Folder{ID: 2, ParentID: 1, Name: "0"})
	fs.IngestFolder(vfs.Folder{ID: 3, ParentID: 2, Name: "Chunks"})

	deleted := int64(20)
	files := []vfs.File{
		{ID: 10, ParentID: 2, ContentID: 10, Name: "Owners.mps", CreatedAt: 10},
		{ID: 11, ParentID: 2, ContentID: 11, Name: "Owners.schema"},
		{ID: 12, ParentID: 2, ContentID: 12, Name: "Globals.mps"},
		{ID: 13, ParentID: 2, ContentID: 13, Name: "Globals.schema"},
		{ID: 14, ParentID: 2, ContentID: 14, Name: "ChunksShared.schema"},
		{ID: 15, ParentID: 3, ContentID: 15, Name: "0_0_0.mps"},
		{ID: 16, ParentID: 3, ContentID: 16, Name: "1_0_0.mps"},
		{ID: 17, ParentID: 1, ContentID: 17, Name: "Meta.json", DeletedAt: &deleted},
	}
	for _, f := range files {
		fs.IngestFile(f)
	}
	fs.IngestRevision(vfs.Revision{ID: 1, CreatedAt: 0, Description: "Initial Revision"})
	fs.IngestRevision(vfs.Revision{ID: 2, CreatedAt: 10, Description: "Owners"})
	fs.IngestRevision(vfs.Revision{ID: 3, CreatedAt: 30})

	return &archive.Save{Name: "Parkour", Format: archive.FormatBrdb, Path: "Parkour.brdb", FS: fs}
}

// floatSave holds World/Floats.mps, whose flat f32 array decodes to
// [NaN, 1.5, -Inf].
func floatSave(t *testing.T) *archive.Save {
	t.Helper()
	src := memSource{
		1: {0xc4, 0x0c, 0x00, 0x00, 0xc0, 0x7f, 0x00, 0x00, 0xc0, 0x3f, 0x00, 0x00, 0x80, 0xff},
		2: schemaDoc(t, "Floats", fieldDesc{"Values", []any{"f32", 0}}),
	}
	fs := vfs.New(src, vfs.WithLogger(zerolog.Nop()))
	fs.IngestFolder(vfs.Folder{ID: 1, Name: "World"})
	fs.IngestFile(vfs.File{ID: 1, ParentID: 1, ContentID: 1, Name: "Floats.mps"})
	fs.IngestFile(vfs.File{ID: 2, ParentID: 1, ContentID: 2, Name: "Floats.schema"})
	fs.IngestRevision(vfs.Revision{ID: 1, CreatedAt: 0})
	return &archive.Save{Name: "Floats", Format: archive.FormatBrdb, Path: "Floats.brdb", FS: fs}
}
