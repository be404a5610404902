package report

import "github.com/hpungsan/brsave/internal/mps"

// OwnersPath is the brick-owner table of the first world.
const OwnersPath = "World/0/Owners.mps"

// DefaultOwnersSort ranks owners by placed bricks.
const DefaultOwnersSort = "BrickCount"

// Owners builds the owner leaderboard. Without an explicit sort column
// it sorts by BrickCount when the record has one.
func Owners(rec *mps.Record, opts Options) (*Table, error) {
	if opts.Title == "" {
		opts.Title = "Owners"
	}
	if opts.SortBy == "" && rec != nil {
		for _, c := range columnsOf(rec) {
			if c == DefaultOwnersSort {
				opts.SortBy = c
				break
			}
		}
	}
	return Build(rec, opts)
}
