package ops

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"time"

	"github.com/hpungsan/brsave/internal/archive"
	"github.com/hpungsan/brsave/internal/errors"
	"github.com/hpungsan/brsave/internal/mps"
)

// ExportSchemaVersion is written in the header line of every export.
const ExportSchemaVersion = "1.0"

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	Path     string // optional, default: ~/.brsave/exports/<save>-<timestamp>.jsonl
	Pattern  string // optional glob over .mps paths, default: all
	Revision int64  // 0 = latest
	Rotate   bool   // write rows instead of raw records
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	View
	Path       string `json:"path"`
	Count      int    `json:"count"`
	Failed     int    `json:"failed"`
	ExportedAt int64  `json:"exported_at"`
}

// ExportHeader represents the header line in a JSONL export file.
type ExportHeader struct {
	BrsaveExport  bool           `json:"_brsave_export"`
	SchemaVersion string         `json:"schema_version"`
	Save          string         `json:"save"`
	Format        archive.Format `json:"format"`
	Revision      int64          `json:"revision"`
	Timestamp     int64          `json:"timestamp"`
	ExportedAt    int64          `json:"exported_at"`
}

// ExportRecord is one decoded .mps file. Files that fail to decode are
// written with Error set instead of Record.
type ExportRecord struct {
	Path   string        `json:"path"`
	Schema string        `json:"schema,omitempty"`
	Record *mps.Record   `json:"record,omitempty"`
	Rows   []*mps.Record `json:"rows,omitempty"`
	Error  *ExportError  `json:"error,omitempty"`
}

// ExportError is the code and message of a failed decode.
type ExportError struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
	Details map[string]any   `json:"details,omitempty"`
}

// Export decodes every matching .mps file and writes one JSON line per file.
func Export(ctx context.Context, s *archive.Save, input ExportInput) (*ExportOutput, error) {
	v, err := viewOf(s, input.Revision)
	if err != nil {
		return nil, err
	}
	if input.Pattern != "" {
		if _, err := path.Match(input.Pattern, ""); err != nil {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("bad pattern %q: %v", input.Pattern, err))
		}
	}

	now := time.Now()
	exportedAt := now.Unix()

	// Determine export path
	exportPath := input.Path
	if exportPath == "" {
		exportPath, err = defaultExportPath(s.Name, now)
		if err != nil {
			return nil, err
		}
	}
	if err := ValidateExportPath(exportPath); err != nil {
		return nil, err
	}

	entries, err := s.FS.Glob(input.Pattern, v.Timestamp)
	if err != nil {
		return nil, err
	}
	if _, err := s.FS.Preload(ctx, v.Timestamp); err != nil {
		return nil, err
	}

	// Ensure parent directory exists
	dir := filepath.Dir(exportPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	// Write to temp file first, then atomic rename to preserve existing file on failure
	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := exportPath + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	// Clean up temp file on failure (original file is preserved)
	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	w := bufio.NewWriter(file)
	enc := json.NewEncoder(w)

	header := ExportHeader{
		BrsaveExport:  true,
		SchemaVersion: ExportSchemaVersion,
		Save:          s.Name,
		Format:        s.Format,
		Revision:      v.Revision,
		Timestamp:     v.Timestamp,
		ExportedAt:    exportedAt,
	}
	if err := enc.Encode(header); err != nil {
		return nil, errors.NewInternal(err)
	}

	out := &ExportOutput{View: v, Path: exportPath, ExportedAt: exportedAt}
	for _, e := range entries {
		if path.Ext(e.Path) != ".mps" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		line := ExportRecord{Path: e.Path}
		if schemaPath, err := schemaPathFor(s, e.Path, v.Timestamp); err == nil {
			line.Schema = schemaPath
		}
		rec, err := s.FS.ReadMps(ctx, e.Path, v.Timestamp)
		switch {
		case err != nil && errors.CodeOf(err) == errors.ErrInternal:
			return nil, err
		case err != nil:
			sErr, _ := errors.As(err)
			line.Error = &ExportError{Code: sErr.Code, Message: sErr.Message, Details: sErr.Details}
			out.Failed++
		case input.Rotate:
			line.Rows = mps.Rotate(rec)
			out.Count++
		default:
			line.Record = rec
			out.Count++
		}

		if err := enc.Encode(line); err != nil {
			return nil, errors.NewInternal(err)
		}
	}

	if err := w.Flush(); err != nil {
		return nil, errors.NewInternal(err)
	}
	// Ensure file is written
	if err := file.Sync(); err != nil {
		return nil, errors.NewInternal(err)
	}

	// Close before atomic replace (required on Windows; fine elsewhere).
	if err := file.Close(); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// Check if destination is a symlink (os.Rename would follow it)
	if info, err := os.Lstat(exportPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return nil, errors.NewInternal(fmt.Errorf("export path is a symlink"))
	}

	// On Windows, os.Rename fails if the destination exists. We fail
	// rather than delete the existing file first.
	if err := os.Rename(tempPath, exportPath); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(exportPath); statErr == nil {
				return nil, errors.NewInvalidRequest("export destination already exists; overwriting is not supported on Windows (choose a new path or delete the existing file)")
			}
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return out, nil
}

// defaultExportPath generates the default export path.
// Format: ~/.brsave/exports/<save>-<timestamp>.jsonl
func defaultExportPath(save string, now time.Time) (string, error) {
	dir, err := DefaultExportsDir()
	if err != nil {
		return "", err
	}
	filename := fmt.Sprintf("%s-%s%s", SanitizeForFilename(save), now.Format("2006-01-02T150405"), ExportExt)
	return filepath.Join(dir, filename), nil
}
