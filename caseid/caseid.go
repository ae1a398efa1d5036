// Package caseid validates case identifiers and per-case file names against
// the path-safety rules a multi-tenant filesystem layout depends on.
package caseid

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalid is the sentinel wrapped by every validation failure, so callers
// can test with errors.Is without string matching.
var ErrInvalid = errors.New("caseid: invalid identifier")

// Validate checks id against the path-safety rules: it must be a single,
// non-empty path segment, must not reference the parent directory or
// contain a path separator, and must not start with a dot.
func Validate(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: empty", ErrInvalid)
	}
	if strings.ContainsAny(id, "/\\") {
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalid, id)
	}
	if strings.Contains(id, "..") {
		return fmt.Errorf("%w: %q contains '..'", ErrInvalid, id)
	}
	if strings.HasPrefix(id, ".") {
		return fmt.Errorf("%w: %q starts with '.'", ErrInvalid, id)
	}
	return nil
}

// ResolveCaseDir validates id and returns its absolute directory under
// casesDir, rejecting any resolution that escapes casesDir or lands on a
// symlink.
func ResolveCaseDir(casesDir, id string) (string, error) {
	if err := Validate(id); err != nil {
		return "", err
	}

	base, err := filepath.Abs(casesDir)
	if err != nil {
		return "", fmt.Errorf("caseid: resolving cases dir: %w", err)
	}

	dir := filepath.Join(base, id)
	rel, err := filepath.Rel(base, dir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes %s", ErrInvalid, id, casesDir)
	}

	if info, err := os.Lstat(dir); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return "", fmt.Errorf("%w: %q is a symlink", ErrInvalid, id)
	}

	return dir, nil
}

// ValidateFileName applies the same path-safety rules to a file name used
// within a case (uploaded document, raw-text shard, …).
func ValidateFileName(name string) error {
	if err := Validate(name); err != nil {
		return fmt.Errorf("caseid: file name: %w", err)
	}
	return nil
}

// ResolveFilePath validates name and returns its absolute path under
// caseDir, rejecting escapes and symlinks the same way ResolveCaseDir does.
func ResolveFilePath(caseDir, name string) (string, error) {
	if err := ValidateFileName(name); err != nil {
		return "", err
	}

	base, err := filepath.Abs(caseDir)
	if err != nil {
		return "", fmt.Errorf("caseid: resolving case dir: %w", err)
	}

	path := filepath.Join(base, name)
	rel, err := filepath.Rel(base, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes case directory", ErrInvalid, name)
	}

	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return "", fmt.Errorf("%w: %q is a symlink", ErrInvalid, name)
	}

	return path, nil
}

// EnsureCaseExists validates id and confirms its directory exists under
// casesDir. It returns the resolved directory on success.
func EnsureCaseExists(casesDir, id string) (string, error) {
	dir, err := ResolveCaseDir(casesDir, id)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("caseid: case %q: %w", id, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %q is not a directory", ErrInvalid, id)
	}
	return dir, nil
}
