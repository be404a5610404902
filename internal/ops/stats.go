package ops

import (
	"context"

	"github.com/hpungsan/brsave/internal/archive"
	"github.com/hpungsan/brsave/internal/vfs"
)

// StatsInput contains parameters for the Stats operation.
type StatsInput struct {
	Revision int64 // 0 = latest
}

// StatsOutput describes the open save at one revision.
type StatsOutput struct {
	Name           string             `json:"name"`
	Format         archive.Format     `json:"format"`
	Path           string             `json:"path"`
	Header         *archive.BrzHeader `json:"header,omitempty"`
	LatestRevision int64              `json:"latest_revision"`
	vfs.Stats
}

// Stats counts folders, files and blobs overall and at the requested revision.
func Stats(_ context.Context, s *archive.Save, input StatsInput) (*StatsOutput, error) {
	v, err := viewOf(s, input.Revision)
	if err != nil {
		return nil, err
	}
	return &StatsOutput{
		Name:           s.Name,
		Format:         s.Format,
		Path:           s.Path,
		Header:         s.Header,
		LatestRevision: s.FS.LatestRevision(),
		Stats:          s.FS.Stats(v.Timestamp),
	}, nil
}
