// Package vfs is the versioned virtual filesystem of a save container.
//
// Folder, file and revision records are ingested once after the container
// is opened and never change afterwards. Every query takes a visibility
// timestamp; "versioning" is entirely a matter of which records are live
// at that timestamp. Lookup caches are owned by the FS, populated on first
// use and never evicted.
package vfs

import (
	"math"
	"sort"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/rs/zerolog"

	"github.com/hpungsan/brsave/internal/logging"
)

// MaxPathDepth bounds folder chain walks.
const MaxPathDepth = 255

// DefaultSharedSchemaFolders are the grouped folder names whose files share
// one <Folder>Shared.schema.
var DefaultSharedSchemaFolders = []string{"Chunks", "Components", "Wires"}

// FS is a read-only virtual filesystem over ingested records.
//
// Ingest* must not be called concurrently with queries or after the first
// query. Queries are safe for concurrent use.
type FS struct {
	folders   map[int64]*Folder
	files     map[int64]*File
	revisions map[int64]*Revision
	latest    int64

	source        BlobSource
	sharedFolders map[string]bool
	rules         []DataModeRule
	log           zerolog.Logger

	folderPathsOnce sync.Once
	folderPaths     map[int64]string
	folderPathErrs  map[int64]error

	indexes    *xsync.Map[int64, *indexEntry]
	schemaRefs *xsync.Map[schemaKey, *schemaRefEntry]
	schemas    *xsync.Map[int64, *schemaEntry]
	blobs      *xsync.Map[int64, *blobEntry]
	globals    *xsync.Map[globalsKey, *globalsEntry]
}

// Option configures an FS.
type Option func(*FS)

// WithSharedSchemaFolders replaces the grouped folder names used by the
// shared schema fallback.
func WithSharedSchemaFolders(names []string) Option {
	return func(fs *FS) {
		fs.sharedFolders = make(map[string]bool, len(names))
		for _, n := range names {
			fs.sharedFolders[n] = true
		}
	}
}

// WithDataModes sets the data-mode rules consulted by ReadMps.
func WithDataModes(rules ...DataModeRule) Option {
	return func(fs *FS) {
		fs.rules = append(fs.rules, rules...)
	}
}

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(fs *FS) {
		fs.log = l
	}
}

// New creates an empty FS whose blobs come from src.
func New(src BlobSource, opts ...Option) *FS {
	fs := &FS{
		folders:    make(map[int64]*Folder),
		files:      make(map[int64]*File),
		revisions:  make(map[int64]*Revision),
		source:     src,
		log:        logging.Component("vfs"),
		indexes:    xsync.NewMap[int64, *indexEntry](),
		schemaRefs: xsync.NewMap[schemaKey, *schemaRefEntry](),
		schemas:    xsync.NewMap[int64, *schemaEntry](),
		blobs:      xsync.NewMap[int64, *blobEntry](),
		globals:    xsync.NewMap[globalsKey, *globalsEntry](),
	}
	WithSharedSchemaFolders(DefaultSharedSchemaFolders)(fs)
	for _, opt := range opts {
		opt(fs)
	}
	return fs
}

// IngestFolder adds a folder record.
func (fs *FS) IngestFolder(f Folder) {
	fs.folders[f.ID] = &f
}

// IngestFile adds a file record.
func (fs *FS) IngestFile(f File) {
	fs.files[f.ID] = &f
}

// IngestRevision adds a revision record.
func (fs *FS) IngestRevision(r Revision) {
	fs.revisions[r.ID] = &r
	if r.ID > fs.latest {
		fs.latest = r.ID
	}
}

// Folder returns a folder by id.
func (fs *FS) Folder(id int64) (*Folder, bool) {
	f, ok := fs.folders[id]
	return f, ok
}

// File returns a file by id.
func (fs *FS) File(id int64) (*File, bool) {
	f, ok := fs.files[id]
	return f, ok
}

// LatestRevision returns the highest revision id, or 0 when there are none.
func (fs *FS) LatestRevision() int64 {
	return fs.latest
}

// Revisions returns all revisions ordered by id.
func (fs *FS) Revisions() []Revision {
	out := make([]Revision, 0, len(fs.revisions))
	for _, r := range fs.revisions {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TimestampOf returns the visibility timestamp of a revision.
// Zero, negative, out-of-range and missing revision numbers resolve to the
// latest revision. With no revisions at all every non-deleted record is
// visible.
func (fs *FS) TimestampOf(revision int64) int64 {
	if r, ok := fs.revisions[revision]; ok && revision > 0 {
		return r.CreatedAt
	}
	if r, ok := fs.revisions[fs.latest]; ok {
		return r.CreatedAt
	}
	return math.MaxInt64
}

// RevisionAt returns the newest revision created at or before ts.
func (fs *FS) RevisionAt(ts int64) (Revision, bool) {
	var best *Revision
	for _, r := range fs.revisions {
		if r.CreatedAt > ts {
			continue
		}
		if best == nil || r.CreatedAt > best.CreatedAt || (r.CreatedAt == best.CreatedAt && r.ID > best.ID) {
			best = r
		}
	}
	if best == nil {
		return Revision{}, false
	}
	return *best, true
}
