package ops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/brsave/internal/config"
	"github.com/hpungsan/brsave/internal/errors"
)

// ExportExt is the required extension of record exports.
const ExportExt = ".jsonl"

// ValidateDumpDir checks a dump target directory.
// It checks:
// 1. Path traversal (.. sequences)
// 2. The target, if it exists, is a real directory (not a symlink or file)
func ValidateDumpDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return errors.NewInvalidRequest("output directory is required")
	}
	if containsTraversal(dir) {
		return errors.NewInvalidRequest("output directory must not contain directory traversal (..)")
	}

	info, err := os.Lstat(filepath.Clean(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.NewInternal(fmt.Errorf("stat output directory: %w", err))
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest("output directory must not be a symlink")
	}
	if !info.IsDir() {
		return errors.NewInvalidRequest("output path exists and is not a directory")
	}
	return nil
}

// ValidateExportPath checks the destination of a record export.
// It checks:
// 1. Path traversal (.. sequences)
// 2. Extension (.jsonl required)
// 3. Symlink safety (parent dir must not be a symlink, file must not be a symlink)
//
// O_NOFOLLOW on the final component is applied again at open time.
func ValidateExportPath(path string) error {
	if path == "" {
		return errors.NewInvalidRequest("path is required")
	}
	if containsTraversal(path) {
		return errors.NewInvalidRequest("path must not contain directory traversal (..)")
	}

	cleaned := filepath.Clean(path)
	if filepath.Ext(cleaned) != ExportExt {
		return errors.NewInvalidRequest("path must have " + ExportExt + " extension")
	}

	absPath, err := filepath.Abs(cleaned)
	if err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid path: %v", err))
	}

	if info, err := os.Lstat(filepath.Dir(absPath)); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			return errors.NewInvalidRequest("parent directory must not be a symlink")
		}
	}
	if info, err := os.Lstat(absPath); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			return errors.NewInvalidRequest("path must not be a symlink")
		}
	}
	return nil
}

// DefaultExportsDir returns the default exports directory (~/.brsave/exports).
func DefaultExportsDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", errors.NewInternal(fmt.Errorf("failed to get home directory: %w", err))
	}
	return filepath.Join(homeDir, config.DirName, "exports"), nil
}

// containsTraversal checks if path contains ".." directory traversal.
func containsTraversal(path string) bool {
	// Check each path component
	for _, part := range strings.Split(path, string(filepath.Separator)) {
		if part == ".." {
			return true
		}
	}
	// Also check for forward slashes on all platforms (e.g., user input)
	if filepath.Separator != '/' {
		for _, part := range strings.Split(path, "/") {
			if part == ".." {
				return true
			}
		}
	}
	return false
}

// SanitizeForFilename sanitizes a string for safe use in a filename.
// Removes/replaces characters that could be used for path traversal or injection.
func SanitizeForFilename(s string) string {
	// Replace path separators with dashes
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, "\\", "-")

	// Replace ".." sequences (could be embedded)
	s = strings.ReplaceAll(s, "..", "-")

	// Remove null bytes and other control characters
	var result strings.Builder
	for _, r := range s {
		if r >= 32 && r != 127 {
			result.WriteRune(r)
		}
	}
	s = result.String()

	// Collapse multiple dashes
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}

	s = strings.Trim(s, "-")
	if s == "" {
		s = "unnamed"
	}
	return s
}
