// Package sysfs provides read/write access to kernel pseudo-files.
//
// All paths handed to an FS are absolute host paths ("/sys/block/zram0/disksize").
// OS maps them under Root so tests can point the whole tree at a t.TempDir().
package sysfs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FS is the kernel file surface used by discovery, probes and the
// reconfigurator.
type FS interface {
	// Read returns the trimmed content of path, or ok=false if it cannot be read.
	Read(path string) (value string, ok bool)
	// Write writes value to path. Failures are *WriteError.
	Write(path, value string) error
	Exists(path string) bool
	// List returns the entry names of dir, sorted.
	List(dir string) ([]string, error)
}

// WriteError carries the path and value of a failed write.
type WriteError struct {
	Path  string
	Value string
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write %q to %s: %v", e.Value, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// OS is the real filesystem, optionally re-rooted.
type OS struct {
	Root string
}

// NewOS returns an FS rooted at root ("" or "/" for the live system).
func NewOS(root string) *OS {
	if root == "/" {
		root = ""
	}
	return &OS{Root: root}
}

func (o *OS) abs(path string) string {
	if o.Root == "" {
		return path
	}
	return filepath.Join(o.Root, path)
}

func (o *OS) Read(path string) (string, bool) {
	data, err := os.ReadFile(o.abs(path))
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

// Write opens the file without O_CREATE: sysfs attributes either exist or
// the kernel does not support them.
func (o *OS) Write(path, value string) error {
	f, err := os.OpenFile(o.abs(path), os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return &WriteError{Path: path, Value: value, Err: err}
	}
	if _, err := f.WriteString(value); err != nil {
		f.Close()
		return &WriteError{Path: path, Value: value, Err: err}
	}
	if err := f.Close(); err != nil {
		return &WriteError{Path: path, Value: value, Err: err}
	}
	return nil
}

func (o *OS) Exists(path string) bool {
	_, err := os.Stat(o.abs(path))
	return err == nil
}

func (o *OS) List(dir string) ([]string, error) {
	entries, err := os.ReadDir(o.abs(dir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Path returns the real on-disk location of a host path.
func (o *OS) Path(path string) string {
	return o.abs(path)
}
