package ops

import (
	"context"

	"github.com/hpungsan/brsave/internal/archive"
	"github.com/hpungsan/brsave/internal/errors"
	"github.com/hpungsan/brsave/internal/report"
)

// OwnersInput contains parameters for the Owners operation.
type OwnersInput struct {
	Revision int64    // 0 = latest
	Columns  []string // optional, default: all
	SortBy   string   // optional, default: BrickCount when present
	Limit    int      // 0 = all owners
	HTML     bool     // also render the table as HTML
}

// OwnersOutput contains the owner leaderboard.
type OwnersOutput struct {
	View
	Path     string        `json:"path"`
	Table    *report.Table `json:"table"`
	Markdown string        `json:"markdown"`
	HTML     string        `json:"html,omitempty"`
}

// Owners reports who placed what in the world, read from World/0/Owners.mps.
func Owners(ctx context.Context, s *archive.Save, input OwnersInput) (*OwnersOutput, error) {
	v, err := viewOf(s, input.Revision)
	if err != nil {
		return nil, err
	}

	rec, err := s.FS.ReadMps(ctx, report.OwnersPath, v.Timestamp)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errors.NewNoMpsAtPath(report.OwnersPath)
	}

	tbl, err := report.Owners(rec, report.Options{
		Columns: input.Columns,
		SortBy:  input.SortBy,
		Limit:   input.Limit,
	})
	if err != nil {
		return nil, err
	}

	out := &OwnersOutput{
		View:     v,
		Path:     report.OwnersPath,
		Table:    tbl,
		Markdown: tbl.Markdown(),
	}
	if input.HTML {
		out.HTML, err = tbl.HTML()
		if err != nil {
			return nil, errors.NewInternal(err)
		}
	}
	return out, nil
}
