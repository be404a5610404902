package ops

import (
	"context"
	"strings"

	"github.com/hpungsan/brsave/internal/archive"
	"github.com/hpungsan/brsave/internal/errors"
	"github.com/hpungsan/brsave/internal/mps"
)

// ReadInput contains parameters for the Read operation.
type ReadInput struct {
	Path     string // required, .mps file
	Revision int64  // 0 = latest
	Rotate   bool   // return one row per entity instead of the raw record
}

// ReadOutput contains a decoded .mps file.
type ReadOutput struct {
	View
	Path   string        `json:"path"`
	Schema string        `json:"schema"`
	Record *mps.Record   `json:"record,omitempty"`
	Rows   []*mps.Record `json:"rows,omitempty"`
}

// Read decodes the .mps file at a path with its resolved schema.
func Read(ctx context.Context, s *archive.Save, input ReadInput) (*ReadOutput, error) {
	p := strings.TrimSpace(input.Path)
	if p == "" {
		return nil, errors.NewInvalidRequest("path is required")
	}
	v, err := viewOf(s, input.Revision)
	if err != nil {
		return nil, err
	}

	rec, err := s.FS.ReadMps(ctx, p, v.Timestamp)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errors.NewNoMpsAtPath(p)
	}

	out := &ReadOutput{View: v, Path: p}
	if schemaPath, err := schemaPathFor(s, p, v.Timestamp); err == nil {
		out.Schema = schemaPath
	}
	if input.Rotate {
		out.Rows = mps.Rotate(rec)
		if out.Rows == nil {
			out.Rows = []*mps.Record{}
		}
	} else {
		out.Record = rec
	}
	return out, nil
}

// schemaPathFor returns the path of the schema describing the .mps file at p.
func schemaPathFor(s *archive.Save, p string, ts int64) (string, error) {
	f, ok := s.FS.FindFile(p, ts)
	if !ok {
		return "", errors.NewNoMpsAtPath(p)
	}
	sch, err := s.FS.ResolveSchema(f)
	if err != nil {
		return "", err
	}
	return s.FS.FilePath(sch)
}
