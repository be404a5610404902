package ops

import (
	"context"

	"github.com/hpungsan/brsave/internal/archive"
	"github.com/hpungsan/brsave/internal/vfs"
)

// RevisionsOutput lists the save's history, oldest first.
type RevisionsOutput struct {
	Items  []vfs.Revision `json:"items"`
	Latest int64          `json:"latest"`
}

// Revisions returns every revision of the save.
func Revisions(_ context.Context, s *archive.Save) (*RevisionsOutput, error) {
	if _, err := viewOf(s, 0); err != nil {
		return nil, err
	}
	items := s.FS.Revisions()
	if items == nil {
		items = []vfs.Revision{}
	}
	return &RevisionsOutput{Items: items, Latest: s.FS.LatestRevision()}, nil
}
