package archive

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/hpungsan/brsave/internal/compress"
	"github.com/hpungsan/brsave/internal/errors"
	"github.com/hpungsan/brsave/internal/vfs"
)

const (
	brzMagic      = "BRZ"
	brzHeaderSize = 0x2D
	brzHashSize   = 32
)

// BrzHeader is the fixed header of a .brz archive.
type BrzHeader struct {
	Version           uint8           `json:"version"`
	Compression       compress.Method `json:"compression"`
	IndexDecompressed int32           `json:"index_decompressed"`
	IndexCompressed   int32           `json:"index_compressed"`
	IndexHash         []byte          `json:"index_hash"`
	FolderCount       int32           `json:"folder_count"`
	FileCount         int32           `json:"file_count"`
	BlobCount         int32           `json:"blob_count"`
	BlobSectionOffset int             `json:"blob_section_offset"`
}

// brz is a fully parsed archive held in memory.
type brz struct {
	header  BrzHeader
	folders []vfs.Folder
	files   []vfs.File
	blobs   []vfs.RawBlob // blob id i+1 at index i
}

func openBrz(s *Save, opts []vfs.Option) (counts, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return counts{}, errors.NewInternal(fmt.Errorf("read archive: %w", err))
	}
	a, err := parseBrz(data)
	if err != nil {
		return counts{}, err
	}

	fs := vfs.New(a, opts...)
	for _, f := range a.folders {
		fs.IngestFolder(f)
	}
	for _, f := range a.files {
		fs.IngestFile(f)
	}
	// Archives carry no history; everything belongs to one revision.
	fs.IngestRevision(vfs.Revision{ID: 1, CreatedAt: 0, Description: "Initial Revision"})

	s.FS = fs
	s.Header = &a.header
	return counts{folders: len(a.folders), files: len(a.files), revisions: 1, blobs: len(a.blobs)}, nil
}

// Blobs implements vfs.BlobSource.
func (a *brz) Blobs(_ context.Context, ids []int64) ([]vfs.RawBlob, error) {
	out := make([]vfs.RawBlob, 0, len(ids))
	for _, id := range ids {
		if id < 1 || id > int64(len(a.blobs)) {
			continue
		}
		out = append(out, a.blobs[id-1])
	}
	return out, nil
}

// parseBrz decodes the header, the index and the blob section.
//
// Index layout (all little-endian):
//
//	i32 folder count, i32 file count, i32 blob count
//	folders: i32 parent ids, u16 name lengths, names
//	files:   i32 parent ids, i32 content ids, u16 name lengths, names
//	blobs:   u8 compression, i32 uncompressed sizes, i32 compressed sizes, 32-byte hashes
//
// Stored ids are zero-based; parent -1 is the root.
func parseBrz(data []byte) (*brz, error) {
	if len(data) < brzHeaderSize {
		return nil, errors.NewBadArchive(fmt.Sprintf("file of %d bytes is shorter than the %d-byte header", len(data), brzHeaderSize))
	}
	if string(data[:3]) != brzMagic {
		return nil, errors.NewBadArchive("not a BRZ archive: magic number did not match")
	}

	a := &brz{}
	h := &a.header
	h.Version = data[3]
	h.Compression = compress.Method(data[4])
	h.IndexDecompressed = int32(binary.LittleEndian.Uint32(data[5:]))
	h.IndexCompressed = int32(binary.LittleEndian.Uint32(data[9:]))
	h.IndexHash = append([]byte(nil), data[0xD:brzHeaderSize]...)

	if h.IndexCompressed < 0 || h.IndexDecompressed < 0 {
		return nil, errors.NewBadArchive("negative index length")
	}
	indexEnd := brzHeaderSize + int(h.IndexCompressed)
	if indexEnd > len(data) {
		return nil, errors.NewBadArchive(fmt.Sprintf("index of %d bytes runs past end of file", h.IndexCompressed))
	}
	index, err := compress.Decode(h.Compression, data[brzHeaderSize:indexEnd], int(h.IndexDecompressed))
	if err != nil {
		return nil, err
	}

	r := &indexReader{buf: index}
	h.FolderCount = r.count("folder")
	h.FileCount = r.count("file")
	h.BlobCount = r.count("blob")
	if r.err != nil {
		return nil, r.err
	}

	// Folders
	nf := int(h.FolderCount)
	parents := r.i32s(nf)
	names := r.names(nf)
	for i := 0; i < nf && r.err == nil; i++ {
		a.folders = append(a.folders, vfs.Folder{
			ID:       int64(i) + 1,
			ParentID: int64(parents[i]) + 1,
			Name:     names[i],
		})
	}

	// Files
	nfi := int(h.FileCount)
	parents = r.i32s(nfi)
	contents := r.i32s(nfi)
	names = r.names(nfi)
	for i := 0; i < nfi && r.err == nil; i++ {
		a.files = append(a.files, vfs.File{
			ID:        int64(i) + 1,
			ParentID:  int64(parents[i]) + 1,
			ContentID: int64(contents[i]) + 1,
			Name:      names[i],
		})
	}

	// Blobs
	nb := int(h.BlobCount)
	methods := r.bytes(nb)
	sizesU := r.i32s(nb)
	sizesC := r.i32s(nb)
	hashes := r.bytes(nb * brzHashSize)
	if r.err != nil {
		return nil, r.err
	}

	off := indexEnd
	h.BlobSectionOffset = off
	for i := 0; i < nb; i++ {
		size := int(sizesC[i])
		if size < 0 || off+size > len(data) {
			return nil, errors.NewBadArchive(fmt.Sprintf("blob %d of %d bytes runs past end of file", i+1, size))
		}
		a.blobs = append(a.blobs, vfs.RawBlob{
			ID:               int64(i) + 1,
			Compression:      compress.Method(methods[i]),
			SizeUncompressed: int64(sizesU[i]),
			SizeCompressed:   int64(size),
			Hash:             hashes[i*brzHashSize : (i+1)*brzHashSize],
			Content:          data[off : off+size],
		})
		off += size
	}

	for _, f := range a.files {
		if f.ContentID < 1 || f.ContentID > int64(nb) {
			return nil, errors.NewBadArchive(fmt.Sprintf("file %q references missing blob %d", f.Name, f.ContentID))
		}
	}
	return a, nil
}

// indexReader reads little-endian fields with a sticky bounds error.
type indexReader struct {
	buf []byte
	off int
	err error
}

func (r *indexReader) take(n int, what string) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.buf) {
		r.err = errors.NewBadArchive(fmt.Sprintf("index truncated reading %s at 0x%x (need %d bytes, have %d)", what, r.off, n, len(r.buf)-r.off))
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *indexReader) count(what string) int32 {
	b := r.take(4, what+" count")
	if b == nil {
		return 0
	}
	n := int32(binary.LittleEndian.Uint32(b))
	if n < 0 {
		r.err = errors.NewBadArchive(fmt.Sprintf("negative %s count %d", what, n))
		return 0
	}
	// Each entry takes at least one index byte.
	if int(n) > len(r.buf) {
		r.err = errors.NewBadArchive(fmt.Sprintf("%s count %d exceeds index size", what, n))
		return 0
	}
	return n
}

func (r *indexReader) bytes(n int) []byte {
	return r.take(n, "bytes")
}

func (r *indexReader) i32s(n int) []int32 {
	b := r.take(4*n, "int32 table")
	if b == nil {
		return make([]int32, n)
	}
	out := make([]int32, n)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out
}

// names reads n u16 lengths followed by the concatenated names.
func (r *indexReader) names(n int) []string {
	out := make([]string, n)
	b := r.take(2*n, "name lengths")
	if b == nil {
		return out
	}
	for i := range out {
		size := int(binary.LittleEndian.Uint16(b[2*i:]))
		name := r.take(size, "name")
		if name == nil && size > 0 {
			return out
		}
		out[i] = string(name)
	}
	return out
}
