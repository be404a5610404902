// Package ops implements the user-facing actions shared by the CLI,
// the MCP server and the web UI. Each action takes an Input struct and
// returns an Output struct ready for JSON encoding.
package ops

import (
	"github.com/hpungsan/brsave/internal/archive"
	"github.com/hpungsan/brsave/internal/errors"
)

// Pagination limits
const (
	DefaultListLimit = 200
	MaxListLimit     = 5000
	DefaultFindLimit = 500
	MaxFindLimit     = 50000
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// View is the point in the save's history an operation looked at.
type View struct {
	Revision  int64 `json:"revision"` // 0 when no revision is live at Timestamp
	Timestamp int64 `json:"timestamp"`
}

// viewOf resolves a requested revision. 0, negative and unknown
// revisions resolve to the latest one.
func viewOf(s *archive.Save, revision int64) (View, error) {
	if s == nil || s.FS == nil {
		return View{}, errors.NewInvalidRequest("no save is open")
	}
	ts := s.FS.TimestampOf(revision)
	v := View{Timestamp: ts}
	if r, ok := s.FS.RevisionAt(ts); ok {
		v.Revision = r.ID
	}
	return v, nil
}

// page clamps limit/offset and slices n items.
func page(n, limit, offset, defaultLimit, maxLimit int) (start, end int, p Pagination) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset = max(offset, 0)

	start = min(offset, n)
	end = min(start+limit, n)
	return start, end, Pagination{
		Limit:   limit,
		Offset:  offset,
		HasMore: end < n,
		Total:   n,
	}
}
