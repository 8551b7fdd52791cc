// Package zramtest simulates the zram driver's sysfs interface for tests.
package zramtest

import (
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/sigreer/zman/internal/sysfs"
)

// Kernel is an in-memory sysfs.FS that behaves like the zram driver:
// attribute writes fail with EBUSY once disksize is set, reset returns a
// device to its unconfigured defaults, and reading hot_add creates the
// lowest free device. Every successful write is recorded together with the
// device's disksize at that moment.
//
// Paths outside /sys/block/zram* and the hot_add control are served from a
// plain file map (SetFile), so /proc/swaps and friends can live in the same
// tree.
type Kernel struct {
	// HotAdd exposes /sys/class/zram-control/hot_add.
	HotAdd bool
	// Writeback exposes backing_dev and bd_stat (CONFIG_ZRAM_WRITEBACK).
	Writeback bool

	mu      sync.Mutex
	devices map[int]*Device
	files   map[string]string
	fail    map[string]error
	writes  []AttrWrite
}

// Device is the simulated state of one zram device.
type Device struct {
	DiskSize   uint64
	Algorithm  string
	BackingDev string
	Streams    int
	OrigData   uint64
	ComprData  uint64
	MemUsed    uint64
}

// AttrWrite is one recorded attribute write.
type AttrWrite struct {
	Path     string
	Value    string
	DiskSize uint64 // disksize of the device when the write happened
}

const (
	sysBlock         = "/sys/block"
	hotAddPath       = "/sys/class/zram-control/hot_add"
	noBackingFS      = "none"
	defaultAlgorithm = "lzo-rle"
)

var algorithms = []string{"lzo", "lzo-rle", "lz4", "lz4hc", "842", "zstd"}

func NewKernel() *Kernel {
	return &Kernel{
		HotAdd:    true,
		Writeback: true,
		devices:   make(map[int]*Device),
		files:     make(map[string]string),
		fail:      make(map[string]error),
	}
}

// AddDevice installs zram<idx> with the given state. Empty fields get driver
// defaults.
func (k *Kernel) AddDevice(idx int, d Device) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if d.Algorithm == "" {
		d.Algorithm = defaultAlgorithm
	}
	if d.Streams == 0 {
		d.Streams = 1
	}
	k.devices[idx] = &d
}

// Device returns a copy of zram<idx>'s state.
func (k *Kernel) Device(idx int) (Device, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	d, ok := k.devices[idx]
	if !ok {
		return Device{}, false
	}
	return *d, true
}

// SetFile serves content at path.
func (k *Kernel) SetFile(path, content string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.files[path] = content
}

// FailWrite makes writes to path fail with err.
func (k *Kernel) FailWrite(path string, err error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.fail[path] = err
}

// Writes returns every successful write so far.
func (k *Kernel) Writes() []AttrWrite {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]AttrWrite(nil), k.writes...)
}

// parsePath splits "/sys/block/zram3/disksize" into (3, "disksize").
// attr is "" for the device directory itself; idx is -1 for other paths.
func parsePath(path string) (idx int, attrName string) {
	rest, ok := strings.CutPrefix(path, sysBlock+"/")
	if !ok {
		return -1, ""
	}
	name, attrName, _ := strings.Cut(rest, "/")
	return index(name), attrName
}

// index returns N for "zramN" and -1 for anything else.
func index(name string) int {
	digits, ok := strings.CutPrefix(name, "zram")
	if !ok || digits == "" {
		return -1
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 || strconv.Itoa(n) != digits {
		return -1
	}
	return n
}

func (k *Kernel) hasAttr(attrName string) bool {
	switch attrName {
	case "disksize", "reset", "comp_algorithm", "max_comp_streams", "mm_stat":
		return true
	case "backing_dev", "bd_stat":
		return k.Writeback
	}
	return false
}

func (k *Kernel) Exists(path string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	if path == sysBlock {
		return true
	}
	if path == hotAddPath {
		return k.HotAdd
	}
	if idx, attrName := parsePath(path); idx >= 0 {
		if _, ok := k.devices[idx]; !ok {
			return false
		}
		return attrName == "" || k.hasAttr(attrName)
	}
	_, ok := k.files[path]
	return ok
}

func (k *Kernel) List(dir string) ([]string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if dir != sysBlock {
		return nil, nil
	}
	names := make([]string, 0, len(k.devices))
	for idx := range k.devices {
		names = append(names, fmt.Sprintf("zram%d", idx))
	}
	sort.Strings(names)
	return names, nil
}

func (k *Kernel) Read(path string) (string, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if path == hotAddPath {
		if !k.HotAdd {
			return "", false
		}
		idx := 0
		for k.devices[idx] != nil {
			idx++
		}
		k.devices[idx] = &Device{Algorithm: defaultAlgorithm, Streams: 1}
		return strconv.Itoa(idx), true
	}

	idx, attrName := parsePath(path)
	if idx < 0 {
		v, ok := k.files[path]
		return strings.TrimSpace(v), ok
	}
	d, ok := k.devices[idx]
	if !ok || !k.hasAttr(attrName) {
		return "", false
	}

	switch attrName {
	case "disksize":
		return strconv.FormatUint(d.DiskSize, 10), true
	case "comp_algorithm":
		parts := make([]string, len(algorithms))
		for i, a := range algorithms {
			if a == d.Algorithm {
				a = "[" + a + "]"
			}
			parts[i] = a
		}
		return strings.Join(parts, " "), true
	case "max_comp_streams":
		return strconv.Itoa(d.Streams), true
	case "backing_dev":
		if d.BackingDev == "" {
			return noBackingFS, true
		}
		return d.BackingDev, true
	case "mm_stat":
		return fmt.Sprintf("%d %d %d 0 %d 0 0 0", d.OrigData, d.ComprData, d.MemUsed, d.MemUsed), true
	case "bd_stat":
		return "0 0 0", true
	}
	return "", false // reset is write-only
}

func (k *Kernel) Write(path, value string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	werr := func(err error) error { return &sysfs.WriteError{Path: path, Value: value, Err: err} }

	if err := k.fail[path]; err != nil {
		return werr(err)
	}

	idx, attrName := parsePath(path)
	if idx < 0 {
		if _, ok := k.files[path]; !ok {
			return werr(fs.ErrNotExist)
		}
		k.files[path] = value
		k.writes = append(k.writes, AttrWrite{Path: path, Value: value})
		return nil
	}

	d, ok := k.devices[idx]
	if !ok || attrName == "" || !k.hasAttr(attrName) {
		return werr(fs.ErrNotExist)
	}
	before := d.DiskSize

	switch attrName {
	case "disksize":
		if d.DiskSize != 0 {
			return werr(syscall.EBUSY)
		}
		size, err := strconv.ParseUint(value, 10, 64)
		if err != nil || size == 0 {
			return werr(syscall.EINVAL)
		}
		d.DiskSize = size
	case "reset":
		*d = Device{Algorithm: defaultAlgorithm, Streams: 1}
	case "backing_dev":
		if d.DiskSize != 0 {
			return werr(syscall.EBUSY)
		}
		d.BackingDev = value
	case "comp_algorithm":
		if d.DiskSize != 0 {
			return werr(syscall.EBUSY)
		}
		known := false
		for _, a := range algorithms {
			known = known || a == value
		}
		if !known {
			return werr(syscall.EINVAL)
		}
		d.Algorithm = value
	case "max_comp_streams":
		if d.DiskSize != 0 {
			return werr(syscall.EBUSY)
		}
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return werr(syscall.EINVAL)
		}
		d.Streams = n
	default:
		return werr(syscall.EACCES)
	}

	k.writes = append(k.writes, AttrWrite{Path: path, Value: value, DiskSize: before})
	return nil
}
