package ops

import (
	"context"
	"path"
	"strings"

	"github.com/hpungsan/brsave/internal/archive"
	"github.com/hpungsan/brsave/internal/errors"
	"github.com/hpungsan/brsave/internal/mps"
)

// SchemaInput contains parameters for the Schema operation.
type SchemaInput struct {
	Path     string // required: a .schema file, or a .mps file whose schema is resolved
	Revision int64  // 0 = latest
	Validate bool   // also check the type graph reachable from the root
}

// SchemaOutput contains a parsed schema document.
type SchemaOutput struct {
	View
	Path   string      `json:"path"`
	For    string      `json:"for,omitempty"` // the .mps file the schema was resolved for
	Schema *mps.Schema `json:"schema"`
}

// Schema returns the schema document at a path. Given a .mps path it
// returns the schema that file decodes with.
func Schema(ctx context.Context, s *archive.Save, input SchemaInput) (*SchemaOutput, error) {
	p := strings.TrimSpace(input.Path)
	if p == "" {
		return nil, errors.NewInvalidRequest("path is required")
	}
	v, err := viewOf(s, input.Revision)
	if err != nil {
		return nil, err
	}

	out := &SchemaOutput{View: v, Path: p}
	ts := v.Timestamp
	if path.Ext(p) == ".mps" {
		schemaPath, err := schemaPathFor(s, p, ts)
		if err != nil {
			return nil, err
		}
		f, _ := s.FS.FindFile(p, ts)
		out.For = p
		out.Path = schemaPath
		// The schema is looked up where the .mps file was resolved.
		ts = f.CreatedAt
	}

	sch, err := s.FS.ReadSchema(ctx, out.Path, ts)
	if err != nil {
		return nil, err
	}
	if input.Validate {
		if err := sch.Validate(sch.Root); err != nil {
			return nil, err
		}
	}
	out.Schema = sch
	return out, nil
}
