// Package genconf reads, validates, merges and renders the zram-generator
// configuration document.
//
// The store never writes to disk. It returns the rendered document and the
// caller hands it to a privileged writer.
package genconf

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/sigreer/zman/internal/fault"
	"github.com/sigreer/zman/internal/sysfs"
)

// CanonicalPath is where every write goes, whichever file was read.
const CanonicalPath = "/etc/systemd/zram-generator.conf"

// DefaultSearchPaths is the generator's lookup order: administrator
// override, runtime, vendor, vendor-alternate.
var DefaultSearchPaths = []string{
	CanonicalPath,
	"/run/systemd/zram-generator.conf",
	"/usr/lib/systemd/zram-generator.conf",
	"/usr/local/lib/systemd/zram-generator.conf",
}

// Store locates and edits the generator configuration.
type Store struct {
	SearchPaths []string
	WritePath   string
}

// NewStore returns a Store over paths (DefaultSearchPaths when empty)
// writing to CanonicalPath.
func NewStore(paths []string) *Store {
	if len(paths) == 0 {
		paths = DefaultSearchPaths
	}
	return &Store{SearchPaths: paths, WritePath: CanonicalPath}
}

// ActivePath returns the first search path that exists.
func (s *Store) ActivePath() (string, bool) {
	for _, p := range s.SearchPaths {
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	return "", false
}

// Load parses the active document. With no file anywhere it returns an
// empty document and path "".
func (s *Store) Load() (*Document, string, error) {
	path, ok := s.ActivePath()
	if !ok {
		return Parse(""), "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Parse(""), "", nil
		}
		return nil, "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Parse(string(data)), path, nil
}

// Rendered is the outcome of an edit: the text to write and where.
type Rendered struct {
	Source string // file the document was read from, "" if none
	Target string // file to write
	Before string
	After  string
}

// Changed reports whether the edit altered the document.
func (r *Rendered) Changed() bool { return r.Before != r.After }

// Diff is a unified diff of the edit.
func (r *Rendered) Diff() string {
	return sysfs.UnifiedDiff(r.Target, r.Before, r.After)
}

// edit loads the document, runs fn against it and renders the result.
// Every mutation goes through here.
func (s *Store) edit(fn func(doc *Document) error) (*Rendered, error) {
	doc, src, err := s.Load()
	if err != nil {
		return nil, err
	}
	if err := CheckGlobalUnique(doc); err != nil {
		return nil, err
	}
	before := doc.String()
	if err := fn(doc); err != nil {
		return nil, err
	}
	target := s.WritePath
	if target == "" {
		target = CanonicalPath
	}
	return &Rendered{Source: src, Target: target, Before: before, After: doc.String()}, nil
}

// Merge applies patch to section and renders the document. Keys not in the
// patch keep their value, position and comments.
func (s *Store) Merge(sectionName string, patch Patch) (*Rendered, error) {
	return s.edit(func(doc *Document) error {
		if patch.empty() {
			return nil
		}
		patch.apply(doc, sectionName)
		return nil
	})
}

// UpdateDevice validates and merges a device update.
func (s *Store) UpdateDevice(device string, u DeviceUpdate) (*Rendered, error) {
	if err := ValidateDeviceName(device); err != nil {
		return nil, err
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return s.Merge(device, u.Patch())
}

// UpdateWriteback sets or clears writeback-device for device.
func (s *Store) UpdateWriteback(device, backing string) (*Rendered, error) {
	v := Clear()
	if backing != "" {
		v = Set(backing)
	}
	return s.UpdateDevice(device, DeviceUpdate{WritebackDevice: v})
}

// UpdateGlobal validates and merges a patch into the global section.
func (s *Store) UpdateGlobal(patch Patch) (*Rendered, error) {
	if err := ValidateGlobal(patch); err != nil {
		return nil, err
	}
	return s.Merge(GlobalSection, patch)
}

// RemoveDevice drops device's section. A missing section is not an error.
func (s *Store) RemoveDevice(device string) (*Rendered, error) {
	if err := ValidateDeviceName(device); err != nil {
		return nil, err
	}
	return s.edit(func(doc *Document) error {
		doc.RemoveSection(device)
		return nil
	})
}

// DeviceValue reads one key of a device section from the active document.
func (s *Store) DeviceValue(device, key string) (string, bool, error) {
	doc, _, err := s.Load()
	if err != nil {
		return "", false, err
	}
	v, ok := doc.Get(device, key)
	return v, ok, nil
}

// Section is a read-only view of one section.
type Section struct {
	Name    string  `json:"name"`
	Global  bool    `json:"global,omitempty"`
	Entries []Entry `json:"entries"`
}

// Sections returns every section of the active document in order.
func (s *Store) Sections() ([]Section, string, error) {
	doc, src, err := s.Load()
	if err != nil {
		return nil, "", err
	}
	var out []Section
	seen := map[string]bool{}
	for _, name := range doc.Sections() {
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, Section{Name: name, Global: name == GlobalSection, Entries: doc.Entries(name)})
	}
	return out, src, nil
}

// CheckGlobalUnique fails when the document has more than one global
// section.
func CheckGlobalUnique(doc *Document) error {
	n := 0
	for _, name := range doc.Sections() {
		if name == GlobalSection {
			n++
		}
	}
	if n > 1 {
		return fault.Validation("document has %d [%s] sections; expected at most one", n, GlobalSection)
	}
	return nil
}
