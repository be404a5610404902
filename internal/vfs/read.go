package vfs

import (
	"context"
	"path"
	"sync"

	"github.com/hpungsan/brsave/internal/errors"
	"github.com/hpungsan/brsave/internal/mps"
)

// DataModeRule attaches a data mode to the .mps files whose path matches
// Pattern (path.Match syntax). The record stored at GlobalsPath, read at
// the same timestamp, is handed to the mode as its lookup context.
type DataModeRule struct {
	Pattern     string
	GlobalsPath string
	Mode        mps.DataMode
}

type globalsKey struct {
	path string
	ts   int64
}

type globalsEntry struct {
	mu   sync.Mutex
	rec  *mps.Record
	done bool
}

// ReadMps decodes the .mps file visible at mpsPath at ts.
// A missing file is not an error: it returns nil, nil.
func (fs *FS) ReadMps(ctx context.Context, mpsPath string, ts int64) (*mps.Record, error) {
	if path.Ext(mpsPath) != mpsExt {
		return nil, errors.NewInvalidRequest(mpsPath + " is not a .mps file")
	}
	f, ok := fs.FindFile(mpsPath, ts)
	if !ok {
		return nil, nil
	}
	return fs.ReadMpsFile(ctx, f, ts)
}

// ReadMpsFile decodes a specific .mps file record. ts selects the
// globals record for data modes.
func (fs *FS) ReadMpsFile(ctx context.Context, f *File, ts int64) (*mps.Record, error) {
	return fs.readMpsFile(ctx, f, ts, true)
}

func (fs *FS) readMpsFile(ctx context.Context, f *File, ts int64, withModes bool) (*mps.Record, error) {
	schemaFile, err := fs.ResolveSchema(f)
	if err != nil {
		return nil, err
	}
	schema, err := fs.schema(ctx, schemaFile)
	if err != nil {
		return nil, err
	}
	data, err := fs.Content(ctx, f.ContentID)
	if err != nil {
		return nil, err
	}

	var opts []mps.Option
	if withModes {
		p, err := fs.FilePath(f)
		if err != nil {
			return nil, err
		}
		if rule, ok := fs.matchRule(p); ok {
			globals, err := fs.loadGlobals(ctx, rule.GlobalsPath, ts)
			if err != nil {
				return nil, err
			}
			opts = append(opts, mps.WithDataMode(rule.Mode, globals))
		}
	}
	return mps.Decode(schema, data, opts...)
}

// matchRule returns the first rule whose pattern matches p.
func (fs *FS) matchRule(p string) (DataModeRule, bool) {
	for _, r := range fs.rules {
		if ok, err := path.Match(r.Pattern, p); err == nil && ok {
			return r, true
		}
	}
	return DataModeRule{}, false
}

// loadGlobals reads a globals record once per (path, ts). The globals
// file itself is decoded without data modes. A missing globals file yields
// a nil record; modes that need it fail when they are applied.
func (fs *FS) loadGlobals(ctx context.Context, globalsPath string, ts int64) (*mps.Record, error) {
	e, _ := fs.globals.LoadOrStore(globalsKey{path: globalsPath, ts: ts}, &globalsEntry{})
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return e.rec, nil
	}

	f, ok := fs.FindFile(globalsPath, ts)
	if !ok {
		fs.log.Warn().Str("globals", globalsPath).Int64("ts", ts).Msg("globals file not found")
	} else {
		rec, err := fs.readMpsFile(ctx, f, ts, false)
		if err != nil {
			return nil, err
		}
		e.rec = rec
	}
	e.done = true
	return e.rec, nil
}

// ValidateRules checks that every rule pattern is well-formed.
func ValidateRules(rules []DataModeRule) error {
	for _, r := range rules {
		if _, err := path.Match(r.Pattern, ""); err != nil {
			return errors.NewInvalidRequest("bad data mode pattern " + r.Pattern + ": " + err.Error())
		}
		if r.Mode == nil {
			return errors.NewInvalidRequest("data mode rule " + r.Pattern + " has no mode")
		}
	}
	return nil
}
