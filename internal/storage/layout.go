// Package storage lays out the on-disk data tree: uploaded inputs, per-job
// asset directories, and rendered outputs.
package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"driplink/internal/overlay"
)

// OutputFileName is the fixed name of a job's rendered result inside its
// output directory.
const OutputFileName = "output.mp4"

// Layout manages the data directory structure:
//
//	<root>/inputs/
//	<root>/outputs/<job_id>/output.mp4
//	<root>/jobs/<job_id>/assets/...
//	<root>/jobs/<job_id>/metadata.json
type Layout struct {
	root string
}

// NewLayout returns a Layout rooted at the given data directory.
func NewLayout(root string) *Layout {
	return &Layout{root: root}
}

// Root returns the data root directory.
func (l *Layout) Root() string { return l.root }

// OutputRoot returns the directory holding rendered outputs.
func (l *Layout) OutputRoot() string { return filepath.Join(l.root, "outputs") }

// EnsureDirs creates the base directory tree.
func (l *Layout) EnsureDirs() error {
	for _, dir := range []string{
		l.root,
		filepath.Join(l.root, "inputs"),
		filepath.Join(l.root, "outputs"),
		filepath.Join(l.root, "jobs"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// PrepareJobDir creates the job's working directory (with its assets
// subdirectory) and returns its path.
func (l *Layout) PrepareJobDir(jobID string) (string, error) {
	jobDir := filepath.Join(l.root, "jobs", jobID)
	if err := os.MkdirAll(filepath.Join(jobDir, "assets"), 0o755); err != nil {
		return "", fmt.Errorf("prepare job dir: %w", err)
	}
	return jobDir, nil
}

// SaveUpload streams an uploaded file into the job's assets directory and
// returns the stored path. The filename is flattened to its base name so
// client-supplied names cannot escape the job directory.
func (l *Layout) SaveUpload(jobDir, filename string, r io.Reader) (string, error) {
	name := filepath.Base(filename)
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = "upload.bin"
	}

	dst := filepath.Join(jobDir, "assets", name)
	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("save upload: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return "", fmt.Errorf("save upload %s: %w", name, err)
	}
	return dst, nil
}

// WriteMetadata persists the decoded overlay metadata alongside the job
// for operator inspection.
func (l *Layout) WriteMetadata(jobDir string, meta overlay.Metadata) (string, error) {
	path := filepath.Join(jobDir, "metadata.json")

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write metadata: %w", err)
	}
	return path, nil
}

// ResultPath returns where a job's rendered output lives on disk.
func (l *Layout) ResultPath(jobID string) string {
	return filepath.Join(l.OutputRoot(), jobID, OutputFileName)
}

// ResultURL returns the public URL path the output is served under.
func (l *Layout) ResultURL(jobID string) string {
	return "/results/" + jobID + "/" + OutputFileName
}
