package genconf

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/sigreer/zman/internal/fault"
)

// GlobalSection is the reserved section holding generator-wide settings.
const GlobalSection = "zram-generator"

// Keys understood by zram-generator.
const (
	KeySize            = "zram-size"
	KeyAlgorithm       = "compression-algorithm"
	KeySwapPriority    = "swap-priority"
	KeyWritebackDevice = "writeback-device"
	KeyHostMemoryLimit = "host-memory-limit"
	KeyResidentLimit   = "zram-resident-limit"
	KeyOptions         = "options"
	KeyFSType          = "fs-type"
	KeyMountPoint      = "mount-point"
)

// Op says what an update does to one key.
type Op int

const (
	OpKeep Op = iota
	OpSet
	OpClear
)

// Value is a tagged per-key update. The zero Value leaves the key alone.
type Value struct {
	Op   Op
	Text string
}

// Set returns a Value assigning s.
func Set(s string) Value { return Value{Op: OpSet, Text: s} }

// Clear returns a Value deleting the key.
func Clear() Value { return Value{Op: OpClear} }

// Field pairs a key with its update.
type Field struct {
	Key   string
	Value Value
}

// Patch is an ordered list of key updates for one section.
type Patch []Field

func (p Patch) apply(doc *Document, sectionName string) {
	for _, f := range p {
		switch f.Value.Op {
		case OpSet:
			doc.Set(sectionName, f.Key, f.Value.Text)
		case OpClear:
			doc.Delete(sectionName, f.Key)
		}
	}
}

// empty reports whether the patch changes nothing.
func (p Patch) empty() bool {
	for _, f := range p {
		if f.Value.Op != OpKeep {
			return false
		}
	}
	return true
}

// DeviceUpdate is the set of per-device keys. Fields left at Keep are not
// touched.
type DeviceUpdate struct {
	Size            Value
	Algorithm       Value
	SwapPriority    Value
	WritebackDevice Value
	HostMemoryLimit Value
	ResidentLimit   Value
	Options         Value
	FSType          Value
	MountPoint      Value
}

// Patch flattens the update in a fixed key order.
func (u DeviceUpdate) Patch() Patch {
	return Patch{
		{KeySize, u.Size},
		{KeyAlgorithm, u.Algorithm},
		{KeySwapPriority, u.SwapPriority},
		{KeyWritebackDevice, u.WritebackDevice},
		{KeyHostMemoryLimit, u.HostMemoryLimit},
		{KeyResidentLimit, u.ResidentLimit},
		{KeyOptions, u.Options},
		{KeyFSType, u.FSType},
		{KeyMountPoint, u.MountPoint},
	}
}

// HostLimitMiB returns the host-memory-limit update for a MiB amount; zero
// or negative clears the key.
func HostLimitMiB(mib int) Value {
	if mib <= 0 {
		return Clear()
	}
	return Set(fmt.Sprintf("%dM", mib))
}

// Filesystem returns the fs-type / mount-point pair. Both must be given to
// enable filesystem mode; otherwise both are cleared.
func Filesystem(fsType, mountPoint string) (Value, Value) {
	if fsType == "" || mountPoint == "" {
		return Clear(), Clear()
	}
	return Set(fsType), Set(mountPoint)
}

var (
	sizePattern      = regexp.MustCompile(`^[\w\s\+\-\*\/\%\(\)\.\,]+$`)
	algorithmPattern = regexp.MustCompile(`^[a-zA-Z0-9\-\(\)\=\s]+$`)
	fsTypePattern    = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)
	devicePattern    = regexp.MustCompile(`^zram\d+$`)
	globalKeyPattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)
)

// ValidateDeviceName rejects anything that is not zram<N>, including the
// reserved global section name.
func ValidateDeviceName(name string) error {
	if name == GlobalSection {
		return fault.Validation("section %q is reserved for global settings and cannot be used as a device", GlobalSection)
	}
	if !devicePattern.MatchString(name) {
		return fault.Validation("invalid device name %q: expected zram<N>", name)
	}
	return nil
}

// Validate checks every Set value of the update.
func (u DeviceUpdate) Validate() error {
	if (u.FSType.Op == OpSet) != (u.MountPoint.Op == OpSet) || (u.FSType.Op == OpClear) != (u.MountPoint.Op == OpClear) {
		return fault.Validation("%s and %s must be set or cleared together", KeyFSType, KeyMountPoint)
	}
	for _, f := range u.Patch() {
		if f.Value.Op != OpSet {
			continue
		}
		if err := validateValue(f.Key, f.Value.Text); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(key, v string) error {
	if strings.ContainsAny(v, "\r\n") {
		return fault.Validation("%s must be a single line", key)
	}
	if strings.TrimSpace(v) == "" {
		return fault.Validation("%s must not be empty; clear it instead", key)
	}
	if strings.TrimSpace(v) != v {
		return fault.Validation("%s must not have leading or trailing whitespace", key)
	}
	// The parser would read the tail back as an inline comment.
	if inlineCommentStart(v) >= 0 {
		return fault.Validation("%s must not contain whitespace followed by '#' or ';': %q", key, v)
	}

	switch key {
	case KeySize, KeyHostMemoryLimit, KeyResidentLimit:
		if !sizePattern.MatchString(v) {
			return fault.Validation("invalid %s format: %q", key, v)
		}
	case KeyAlgorithm:
		if !algorithmPattern.MatchString(v) {
			return fault.Validation("invalid %s format: %q", key, v)
		}
	case KeySwapPriority:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < -1 || n > 32767 {
			return fault.Validation("%s must be an integer between -1 and 32767, got %q", key, v)
		}
	case KeyWritebackDevice, KeyMountPoint:
		if !filepath.IsAbs(v) || filepath.Clean(v) != v {
			return fault.Validation("%s must be a clean absolute path, got %q", key, v)
		}
	case KeyFSType:
		if !fsTypePattern.MatchString(v) {
			return fault.Validation("invalid %s: %q", key, v)
		}
	}
	return nil
}

// ValidateGlobal checks a global-section patch: keys must be plain
// lowercase identifiers and values single-line.
func ValidateGlobal(p Patch) error {
	for _, f := range p {
		if !globalKeyPattern.MatchString(f.Key) {
			return fault.Validation("invalid global key %q", f.Key)
		}
		if f.Value.Op == OpSet {
			if err := validateValue(f.Key, f.Value.Text); err != nil {
				return err
			}
		}
	}
	return nil
}
