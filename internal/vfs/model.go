package vfs

import (
	"context"

	"github.com/hpungsan/brsave/internal/compress"
)

// Folder is one folder record. ParentID 0 means the folder sits at the root.
type Folder struct {
	ID        int64  `json:"id"`
	ParentID  int64  `json:"parent_id"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"created_at"`
	DeletedAt *int64 `json:"deleted_at,omitempty"`
}

// File is one file record. The same (parent, name) pair may appear several
// times over the save's history; visibility picks the live one.
type File struct {
	ID        int64  `json:"id"`
	ParentID  int64  `json:"parent_id"`
	ContentID int64  `json:"content_id"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"created_at"`
	DeletedAt *int64 `json:"deleted_at,omitempty"`
}

// Revision is a named point in the save's edit history.
type Revision struct {
	ID          int64  `json:"id"`
	CreatedAt   int64  `json:"created_at"`
	Description string `json:"description"`
}

// RawBlob is blob content as stored in the container.
type RawBlob struct {
	ID               int64
	Compression      compress.Method
	SizeUncompressed int64
	SizeCompressed   int64
	Hash             []byte
	Content          []byte
}

// BlobSource fetches raw blobs from a container.
// Implementations return one RawBlob per id they know; ids they do not
// know are simply missing from the result.
type BlobSource interface {
	Blobs(ctx context.Context, ids []int64) ([]RawBlob, error)
}

// Visible reports whether an entity with the given lifetime is live at ts.
// Lifetimes are half-open: [createdAt, deletedAt).
func Visible(createdAt int64, deletedAt *int64, ts int64) bool {
	if createdAt > ts {
		return false
	}
	return deletedAt == nil || *deletedAt > ts
}

// Visible reports whether the folder is live at ts.
func (f *Folder) Visible(ts int64) bool {
	return Visible(f.CreatedAt, f.DeletedAt, ts)
}

// Visible reports whether the file is live at ts.
func (f *File) Visible(ts int64) bool {
	return Visible(f.CreatedAt, f.DeletedAt, ts)
}
