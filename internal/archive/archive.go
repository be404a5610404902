// Package archive opens save containers and loads them into a vfs.FS.
package archive

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/brsave/internal/errors"
	"github.com/hpungsan/brsave/internal/logging"
	"github.com/hpungsan/brsave/internal/vfs"
)

// Format identifies a container format.
type Format string

const (
	FormatBrdb Format = "brdb" // SQLite database with folders/files/revisions/blobs tables
	FormatBrz  Format = "brz"  // single-file archive with a packed index
)

// Save is an opened save container.
type Save struct {
	Name   string     `json:"name"`
	Format Format     `json:"format"`
	Path   string     `json:"path"`
	Header *BrzHeader `json:"header,omitempty"`
	FS     *vfs.FS    `json:"-"`

	closer io.Closer
}

// Close releases the container. The FS must not be used afterwards.
func (s *Save) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// counts is what a loader ingested.
type counts struct {
	folders, files, revisions, blobs int
}

// Open opens a .brdb or .brz save and ingests its records.
// opts are passed to the FS.
func Open(ctx context.Context, path string, opts ...vfs.Option) (*Save, error) {
	ext := strings.ToLower(filepath.Ext(path))
	s := &Save{
		Name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Path: path,
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewInvalidRequest("save file not found: " + path)
		}
		return nil, errors.NewInternal(err)
	}

	var (
		n   counts
		err error
	)
	switch ext {
	case ".brdb":
		s.Format = FormatBrdb
		n, err = openBrdb(ctx, s, opts)
	case ".brz":
		s.Format = FormatBrz
		n, err = openBrz(s, opts)
	default:
		return nil, errors.NewInvalidRequest("unsupported save format " + ext + " (expected .brdb or .brz)")
	}
	if err != nil {
		return nil, err
	}

	log := logging.Component("archive")
	log.Info().
		Str("name", s.Name).
		Str("format", string(s.Format)).
		Int("folders", n.folders).
		Int("files", n.files).
		Int("revisions", n.revisions).
		Int("blobs", n.blobs).
		Msg("opened save")
	return s, nil
}
