package ops

import (
	"context"

	"github.com/hpungsan/brsave/internal/archive"
	"github.com/hpungsan/brsave/internal/vfs"
)

// ListInput contains parameters for the List operation.
type ListInput struct {
	Dir      string // "" is the root
	Revision int64  // 0 = latest
	Limit    int    // default: 200, max: 5000
	Offset   int    // default: 0
}

// ListOutput contains the result of the List operation.
type ListOutput struct {
	View
	Dir        string      `json:"dir"`
	Items      []vfs.Entry `json:"items"`
	Pagination Pagination  `json:"pagination"`
}

// List returns the visible children of a folder, folders first.
func List(_ context.Context, s *archive.Save, input ListInput) (*ListOutput, error) {
	v, err := viewOf(s, input.Revision)
	if err != nil {
		return nil, err
	}

	entries, err := s.FS.List(input.Dir, v.Timestamp)
	if err != nil {
		return nil, err
	}

	start, end, p := page(len(entries), input.Limit, input.Offset, DefaultListLimit, MaxListLimit)
	items := entries[start:end]

	// Ensure we return an empty array rather than nil
	if items == nil {
		items = []vfs.Entry{}
	}

	return &ListOutput{
		View:       v,
		Dir:        input.Dir,
		Items:      items,
		Pagination: p,
	}, nil
}
