package ops

import (
	"context"
	"path/filepath"

	"github.com/hpungsan/brsave/internal/archive"
	"github.com/hpungsan/brsave/internal/config"
	"github.com/hpungsan/brsave/internal/vfs"
)

// DumpInput contains parameters for the Dump operation.
type DumpInput struct {
	Out      string // optional, default: <dump_dir>/<save name>
	Revision int64  // 0 = latest
}

// DumpOutput contains the result of the Dump operation.
type DumpOutput struct {
	View
	Preloaded int `json:"preloaded"`
	vfs.DumpResult
}

// Dump writes the tree visible at a revision to the local filesystem.
func Dump(ctx context.Context, s *archive.Save, cfg *config.Config, input DumpInput) (*DumpOutput, error) {
	v, err := viewOf(s, input.Revision)
	if err != nil {
		return nil, err
	}

	out := input.Out
	if out == "" {
		base := config.DefaultConfig().DumpDir
		if cfg != nil && cfg.DumpDir != "" {
			base = cfg.DumpDir
		}
		out = filepath.Join(base, SanitizeForFilename(s.Name))
	}
	if err := ValidateDumpDir(out); err != nil {
		return nil, err
	}

	// One batched fetch instead of a query per file.
	n, err := s.FS.Preload(ctx, v.Timestamp)
	if err != nil {
		return nil, err
	}

	res, err := s.FS.Dump(ctx, out, v.Timestamp)
	if err != nil {
		return nil, err
	}
	return &DumpOutput{View: v, Preloaded: n, DumpResult: *res}, nil
}
