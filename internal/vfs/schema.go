package vfs

import (
	"context"
	"path"
	"strings"
	"sync"

	"github.com/hpungsan/brsave/internal/errors"
	"github.com/hpungsan/brsave/internal/mps"
)

const (
	mpsExt    = ".mps"
	schemaExt = ".schema"
)

// schemaKey identifies one shared-schema ancestor walk.
type schemaKey struct {
	ts     int64
	folder int64
	name   string
}

type schemaRefEntry struct {
	once sync.Once
	file *File
	err  error
}

// schemaEntry memoizes a parsed schema document. Only successful parses
// are kept; a failed blob load is retried on the next call.
type schemaEntry struct {
	mu     sync.Mutex
	schema *mps.Schema
	err    error
	done   bool
}

// ResolveSchema finds the schema file that describes an .mps file.
//
// Lookups happen at the .mps file's own created_at. The sibling
// <basename>.schema wins. Otherwise, starting at the .mps file's folder and
// walking toward the root, the first <Group>Shared.schema is used, where
// Group is the folder name for grouped folders (Chunks, Components, Wires)
// and the .mps basename for everything else.
func (fs *FS) ResolveSchema(mpsFile *File) (*File, error) {
	ts := mpsFile.CreatedAt
	base := strings.TrimSuffix(mpsFile.Name, mpsExt)

	dir, err := fs.folderPath(mpsFile.ParentID)
	if err != nil {
		return nil, err
	}
	mpsPath := joinPath(dir, mpsFile.Name)

	if f, ok := fs.FindFile(joinPath(dir, base+schemaExt), ts); ok {
		fs.logFound(mpsPath, f)
		return f, nil
	}
	if mpsFile.ParentID == 0 {
		return nil, errors.NewSchemaFileNotFound(mpsPath)
	}

	target := base + "Shared" + schemaExt
	if parent, ok := fs.folders[mpsFile.ParentID]; ok && fs.sharedFolders[parent.Name] {
		target = parent.Name + "Shared" + schemaExt
	}

	key := schemaKey{ts: ts, folder: mpsFile.ParentID, name: target}
	e, _ := fs.schemaRefs.LoadOrStore(key, &schemaRefEntry{})
	e.once.Do(func() {
		e.file, e.err = fs.walkShared(mpsFile.ParentID, target, ts)
	})
	if e.err != nil {
		return nil, e.err
	}
	if e.file == nil {
		return nil, errors.NewSchemaFileNotFound(mpsPath)
	}
	fs.logFound(mpsPath, e.file)
	return e.file, nil
}

// walkShared looks for name in start and its ancestors.
func (fs *FS) walkShared(start int64, name string, ts int64) (*File, error) {
	folder := start
	for hops := 0; folder != 0; hops++ {
		if hops >= MaxPathDepth {
			return nil, errors.NewPathTooDeep(start, MaxPathDepth)
		}
		dir, err := fs.folderPath(folder)
		if err != nil {
			return nil, err
		}
		if f, ok := fs.FindFile(joinPath(dir, name), ts); ok {
			return f, nil
		}
		parent, ok := fs.folders[folder]
		if !ok {
			return nil, errors.NewNotFound("folder", folder)
		}
		folder = parent.ParentID
	}
	return nil, nil
}

func (fs *FS) logFound(mpsPath string, schema *File) {
	ev := fs.log.Debug()
	if !ev.Enabled() {
		return
	}
	schemaPath, _ := fs.FilePath(schema)
	ev.Str("mps", mpsPath).Str("schema", schemaPath).Msg("resolved schema")
}

// schema returns the parsed document of a schema file, without validating
// its type graph; decoding validates the root it needs.
func (fs *FS) schema(ctx context.Context, f *File) (*mps.Schema, error) {
	e, _ := fs.schemas.LoadOrStore(f.ID, &schemaEntry{})
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return e.schema, e.err
	}

	data, err := fs.Content(ctx, f.ContentID)
	if err != nil {
		return nil, err
	}
	e.schema, e.err = mps.Inspect(data)
	e.done = true
	return e.schema, e.err
}

// ReadSchema returns the schema document stored at schemaPath.
func (fs *FS) ReadSchema(ctx context.Context, schemaPath string, ts int64) (*mps.Schema, error) {
	if path.Ext(schemaPath) != schemaExt {
		return nil, errors.NewInvalidRequest(schemaPath + " is not a .schema file")
	}
	f, ok := fs.FindFile(schemaPath, ts)
	if !ok {
		return nil, errors.NewFileNotFound(schemaPath)
	}
	return fs.schema(ctx, f)
}
