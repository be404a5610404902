package vfs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hpungsan/brsave/internal/errors"
)

// DumpResult summarizes a dump.
type DumpResult struct {
	Dir     string `json:"dir"`
	Folders int    `json:"folders"`
	Files   int    `json:"files"`
	Bytes   int64  `json:"bytes"`
	Skipped int    `json:"skipped"`
}

// Dump writes every folder and file visible at ts under targetDir,
// mirroring the virtual tree. Entries that are not live at ts are skipped.
// Existing files are overwritten; nothing is removed.
func (fs *FS) Dump(ctx context.Context, targetDir string, ts int64) (*DumpResult, error) {
	idx := fs.index(ts)
	res := &DumpResult{Dir: targetDir, Skipped: idx.skipped}

	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return nil, fmt.Errorf("create dump directory: %w", err)
	}

	dirs := make([]string, 0, len(idx.folders))
	for p := range idx.folders {
		dirs = append(dirs, p)
	}
	sort.Strings(dirs)
	for _, p := range dirs {
		local, err := localPath(targetDir, p)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(local, 0755); err != nil {
			return nil, fmt.Errorf("create %s: %w", local, err)
		}
		res.Folders++
	}

	files := make([]string, 0, len(idx.files))
	for p := range idx.files {
		files = append(files, p)
	}
	sort.Strings(files)
	for _, p := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f := idx.files[p]
		local, err := localPath(targetDir, p)
		if err != nil {
			return nil, err
		}
		data, err := fs.Content(ctx, f.ContentID)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(local), 0755); err != nil {
			return nil, fmt.Errorf("create %s: %w", filepath.Dir(local), err)
		}
		if err := os.WriteFile(local, data, 0644); err != nil {
			return nil, fmt.Errorf("write %s: %w", local, err)
		}
		res.Files++
		res.Bytes += int64(len(data))
		if res.Files%1000 == 0 {
			fs.log.Info().Int("files", res.Files).Int("total", len(files)).Msg("dump progress")
		}
	}

	fs.log.Info().
		Str("dir", targetDir).
		Int("folders", res.Folders).
		Int("files", res.Files).
		Int64("bytes", res.Bytes).
		Msg("dump complete")
	return res, nil
}

// localPath maps a virtual path under base, rejecting names that would
// escape it.
func localPath(base, virtual string) (string, error) {
	parts := strings.Split(virtual, "/")
	for _, name := range parts {
		if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `\:`) {
			return "", &errors.SaveError{
				Code:    errors.ErrInvalid,
				Message: fmt.Sprintf("entry name %q in %s cannot be written to disk", name, virtual),
				Details: map[string]any{"path": virtual},
			}
		}
	}
	return filepath.Join(append([]string{base}, parts...)...), nil
}
