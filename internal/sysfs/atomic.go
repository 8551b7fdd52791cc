package sysfs

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pmezard/go-difflib/difflib"
)

// DocumentMode is the permission set on every atomically written document.
const DocumentMode fs.FileMode = 0o644

// BackupSuffix is appended to the target path for the pre-write snapshot.
const BackupSuffix = ".bak"

// AtomicOptions controls WriteFileAtomic.
type AtomicOptions struct {
	Backup bool
}

// AtomicResult describes what WriteFileAtomic did.
type AtomicResult struct {
	Path       string `json:"path"`
	Changed    bool   `json:"changed"`
	BackupPath string `json:"backup_path,omitempty"` // empty unless a backup was written
	Diff       string `json:"diff,omitempty"`        // unified diff old -> new, empty when unchanged
}

// WriteFileAtomic replaces path with content.
//
// If the file already holds exactly content nothing is touched, not even the
// modification time. Otherwise the prior content is optionally copied to
// path+".bak", and the new content is written to a temp file in the same
// directory, chmod'ed to DocumentMode and renamed over the target.
func WriteFileAtomic(path string, content []byte, opts AtomicOptions) (*AtomicResult, error) {
	res := &AtomicResult{Path: path}

	old, err := os.ReadFile(path)
	exists := err == nil
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if exists && bytes.Equal(old, content) {
		return res, nil
	}

	res.Diff = UnifiedDiff(path, string(old), string(content))

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	if exists && opts.Backup {
		backup := path + BackupSuffix
		if err := os.WriteFile(backup, old, DocumentMode); err != nil {
			return nil, fmt.Errorf("failed to write backup %s: %w", backup, err)
		}
		res.BackupPath = backup
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		cleanup()
		return nil, fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return nil, fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, DocumentMode); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to rename %s to %s: %w", tmpName, path, err)
	}

	res.Changed = true
	return res, nil
}

// UnifiedDiff renders a unified diff between two versions of a document.
// It returns "" when they are identical.
func UnifiedDiff(name, before, after string) string {
	if before == after {
		return ""
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: name + " (current)",
		ToFile:   name + " (new)",
		Context:  3,
	})
	if err != nil {
		return ""
	}
	return diff
}
