package util

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/coah80/vidfix/internal/config"
)

// JobPaths names the two artifacts of one processing job.
type JobPaths struct {
	ID     string
	Name   string // sanitized client filename
	Input  string
	Output string
}

// OutputName is the file name served under the processed route.
func (p JobPaths) OutputName() string {
	return filepath.Base(p.Output)
}

// URL is the public location of the output artifact, percent-encoded so
// characters the sanitizer keeps (space, '#', '%') survive a browser.
func (p JobPaths) URL() string {
	u := url.URL{Path: config.ProcessedRoute + "/" + p.OutputName()}
	return u.EscapedPath()
}

// NewJobPaths sanitizes the client filename, mints a job id and derives the
// input and output paths under their base directories.
func NewJobPaths(uploadDir, processedDir, original string) (JobPaths, error) {
	name := SanitizeFilename(original)
	if name == "" {
		return JobPaths{}, fmt.Errorf("sanitize %q: %w", original, ErrInvalidFilename)
	}
	id := uuid.NewString()
	return JobPaths{
		ID:     id,
		Name:   name,
		Input:  filepath.Join(uploadDir, id+"-"+name),
		Output: filepath.Join(processedDir, config.OutputPrefix+id+"-"+name),
	}, nil
}

// Confine re-verifies both paths against their roots and returns the
// resolved pair.
func (p JobPaths) Confine(uploadDir, processedDir string) (JobPaths, error) {
	in, err := ConfinePath(uploadDir, p.Input)
	if err != nil {
		return JobPaths{}, err
	}
	out, err := ConfinePath(processedDir, p.Output)
	if err != nil {
		return JobPaths{}, err
	}
	p.Input, p.Output = in, out
	return p, nil
}

// ConfinePath resolves target (following any symlinks that already exist)
// and fails with ErrPathTraversal unless the result is a strict descendant of
// the resolved root.
func ConfinePath(root, target string) (string, error) {
	if strings.Contains(target, "\x00") {
		return "", fmt.Errorf("%q: %w", target, ErrPathTraversal)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("invalid root %q: %w", root, err)
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		realRoot = absRoot
	}

	absTarget, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("invalid target %q: %w", target, err)
	}
	realTarget, err := resolveExisting(absTarget)
	if err != nil {
		return "", err
	}

	rel, err := filepath.Rel(realRoot, realTarget)
	if err != nil {
		return "", fmt.Errorf("%q: %w", target, ErrPathTraversal)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%q outside %q: %w", target, root, ErrPathTraversal)
	}
	return realTarget, nil
}

// resolveExisting follows symlinks for path if it exists, otherwise for its
// parent directory.
func resolveExisting(path string) (string, error) {
	if _, err := os.Lstat(path); err == nil {
		rp, err := filepath.EvalSymlinks(path)
		if err != nil {
			return "", fmt.Errorf("resolve %q: %w", path, err)
		}
		return rp, nil
	}

	dir := filepath.Dir(path)
	if rp, err := filepath.EvalSymlinks(dir); err == nil {
		return filepath.Join(rp, filepath.Base(path)), nil
	}
	if _, err := os.Stat(dir); err == nil {
		return "", fmt.Errorf("resolve parent of %q: %w", path, ErrPathTraversal)
	}
	return filepath.Clean(path), nil
}
