package ops

import (
	"context"
	"strings"

	"github.com/hpungsan/brsave/internal/archive"
	"github.com/hpungsan/brsave/internal/errors"
	"github.com/hpungsan/brsave/internal/vfs"
)

// FindInput contains parameters for the Find operation.
type FindInput struct {
	Pattern  string // required, path.Match syntax against full paths
	Revision int64  // 0 = latest
	Limit    int    // default: 500, max: 50000
	Offset   int    // default: 0
}

// FindOutput contains the result of the Find operation.
type FindOutput struct {
	View
	Pattern    string      `json:"pattern"`
	Items      []vfs.Entry `json:"items"`
	Pagination Pagination  `json:"pagination"`
	Sort       string      `json:"sort"`
}

// Find returns the files whose full path matches a glob pattern.
func Find(_ context.Context, s *archive.Save, input FindInput) (*FindOutput, error) {
	pattern := strings.TrimSpace(input.Pattern)
	if pattern == "" {
		return nil, errors.NewInvalidRequest("pattern is required")
	}
	v, err := viewOf(s, input.Revision)
	if err != nil {
		return nil, err
	}

	entries, err := s.FS.Glob(pattern, v.Timestamp)
	if err != nil {
		return nil, err
	}

	start, end, p := page(len(entries), input.Limit, input.Offset, DefaultFindLimit, MaxFindLimit)
	items := entries[start:end]
	if items == nil {
		items = []vfs.Entry{}
	}

	return &FindOutput{
		View:       v,
		Pattern:    pattern,
		Items:      items,
		Pagination: p,
		Sort:       "path_asc",
	}, nil
}
