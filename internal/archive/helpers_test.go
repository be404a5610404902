package archive

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

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
		require.NoError(t, err)
	}
	return buf.Bytes()
}

// ownersData decodes against ownersSchema to ann=10, bob=3.
var ownersData = []byte{
	0x92, 0xa3, 'a', 'n', 'n', 0xa3, 'b', 'o', 'b',
	0xc4, 0x08, 0x0a, 0x00, 0x00, 0x00, 0x03, 0x00, 0x00, 0x00,
}

func zstdBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	defer enc.Close()
	return enc.EncodeAll(data, nil)
}

const brdbSchema = `
CREATE TABLE folders (folder_id INTEGER PRIMARY KEY, parent_id INTEGER, name TEXT NOT NULL, created_at INTEGER, deleted_at INTEGER);
CREATE TABLE files (file_id INTEGER PRIMARY KEY, parent_id INTEGER, content_id INTEGER NOT NULL, name TEXT NOT NULL, created_at INTEGER, deleted_at INTEGER);
CREATE TABLE revisions (revision_id INTEGER PRIMARY KEY, created_at INTEGER, description TEXT);
CREATE TABLE blobs (blob_id INTEGER PRIMARY KEY, compression INTEGER NOT NULL, size_uncompressed INTEGER, size_compressed INTEGER, content BLOB);
`

// writeBrdb creates a small world save:
//
//	World/0/Owners.mps     (zstd blob, created at 10)
//	World/0/Owners.schema
//	World/Meta.json        (deleted at 20)
//
// with revisions 1@0, 2@10 and 3@30.
func writeBrdb(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Parkour.brdb")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	for _, stmt := range strings.Split(strings.TrimSpace(brdbSchema), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		_, err := db.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}

	schema := ownersSchema(t)
	packed := zstdBytes(t, ownersData)
	stmts := []struct {
		query string
		args  []any
	}{
		{`INSERT INTO folders VALUES (1, NULL, 'World', 0, NULL)`, nil},
		{`INSERT INTO folders VALUES (2, 1, '0', 0, NULL)`, nil},
		{`INSERT INTO files VALUES (10, 2, 100, 'Owners.mps', 10, NULL)`, nil},
		{`INSERT INTO files VALUES (11, 2, 101, 'Owners.schema', 0, NULL)`, nil},
		{`INSERT INTO files VALUES (12, 1, 102, 'Meta.json', NULL, 20)`, nil},
		{`INSERT INTO revisions VALUES (1, 0, 'Initial Revision')`, nil},
		{`INSERT INTO revisions VALUES (2, 10, 'Owners')`, nil},
		{`INSERT INTO revisions VALUES (3, 30, NULL)`, nil},
		{`INSERT INTO blobs VALUES (100, 1, ?, ?, ?)`, []any{len(ownersData), len(packed), packed}},
		{`INSERT INTO blobs VALUES (101, 0, ?, ?, ?)`, []any{len(schema), len(schema), schema}},
		{`INSERT INTO blobs VALUES (102, 0, 2, 2, ?)`, []any{[]byte("{}")}},
	}
	for _, s := range stmts {
		_, err := db.ExecContext(ctx, s.query, s.args...)
		require.NoError(t, err, s.query)
	}
	return path
}

// brzFolder and brzFile use the stored, zero-based ids (parent -1 is root).
type brzFolder struct {
	parent int32
	name   string
}

type brzFile struct {
	parent  int32
	content int32
	name    string
}

type brzBlob struct {
	zstd bool
	data []byte
}

type brzFixture struct {
	version   uint8
	zstdIndex bool
	folders   []brzFolder
	files     []brzFile
	blobs     []brzBlob
}

// index returns the uncompressed index block and the blob payloads.
func (f brzFixture) index(t *testing.T) ([]byte, [][]byte) {
	t.Helper()
	var idx bytes.Buffer
	w := func(v any) {
		require.NoError(t, binary.Write(&idx, binary.LittleEndian, v))
	}

	w(int32(len(f.folders)))
	w(int32(len(f.files)))
	w(int32(len(f.blobs)))

	for _, d := range f.folders {
		w(d.parent)
	}
	for _, d := range f.folders {
		w(uint16(len(d.name)))
	}
	for _, d := range f.folders {
		idx.WriteString(d.name)
	}

	for _, fi := range f.files {
		w(fi.parent)
	}
	for _, fi := range f.files {
		w(fi.content)
	}
	for _, fi := range f.files {
		w(uint16(len(fi.name)))
	}
	for _, fi := range f.files {
		idx.WriteString(fi.name)
	}

	payloads := make([][]byte, len(f.blobs))
	for i, b := range f.blobs {
		payloads[i] = b.data
		if b.zstd {
			payloads[i] = zstdBytes(t, b.data)
		}
	}
	for _, b := range f.blobs {
		if b.zstd {
			w(uint8(1))
		} else {
			w(uint8(0))
		}
	}
	for _, b := range f.blobs {
		w(int32(len(b.data)))
	}
	for _, p := range payloads {
		w(int32(len(p)))
	}
	for i := range f.blobs {
		hash := make([]byte, brzHashSize)
		hash[0] = byte(i + 1)
		idx.Write(hash)
	}
	return idx.Bytes(), payloads
}

func (f brzFixture) bytes(t *testing.T) []byte {
	t.Helper()
	index, payloads := f.index(t)
	stored := index
	method := uint8(0)
	if f.zstdIndex {
		stored = zstdBytes(t, index)
		method = 1
	}

	header := make([]byte, brzHeaderSize)
	copy(header, brzMagic)
	header[3] = f.version
	header[4] = method
	binary.LittleEndian.PutUint32(header[5:], uint32(len(index)))
	binary.LittleEndian.PutUint32(header[9:], uint32(len(stored)))
	for i := 0xD; i < brzHeaderSize; i++ {
		header[i] = 0xAB
	}

	out := append(header, stored...)
	for _, p := range payloads {
		out = append(out, p...)
	}
	return out
}

// ownersBrz mirrors writeBrdb's live tree at the latest revision.
func ownersBrz(t *testing.T, zstdIndex bool) brzFixture {
	return brzFixture{
		version:   1,
		zstdIndex: zstdIndex,
		folders: []brzFolder{
			{parent: -1, name: "World"},
			{parent: 0, name: "0"},
		},
		files: []brzFile{
			{parent: 1, content: 0, name: "Owners.mps"},
			{parent: 1, content: 1, name: "Owners.schema"},
			{parent: 0, content: 2, name: "Meta.json"},
		},
		blobs: []brzBlob{
			{zstd: true, data: ownersData},
			{data: ownersSchema(t)},
			{data: []byte("{}")},
		},
	}
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}
