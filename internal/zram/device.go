// Package zram discovers zram devices and moves them between the kernel's
// unconfigured and configured states through sysfs.
package zram

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

const (
	sysBlock    = "/sys/block"
	hotAddPath  = "/sys/class/zram-control/hot_add"
	noBackingFS = "none"
)

var namePattern = regexp.MustCompile(`^zram(\d+)$`)

// ValidName reports whether name looks like "zram<N>".
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// Index returns N for "zramN", or -1.
func Index(name string) int {
	m := namePattern.FindStringSubmatch(name)
	if m == nil {
		return -1
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return -1
	}
	return n
}

// SysDir returns /sys/block/<name>.
func SysDir(name string) string { return sysBlock + "/" + name }

// DevPath returns /dev/<name>.
func DevPath(name string) string { return "/dev/" + name }

func attr(name, file string) string { return SysDir(name) + "/" + file }

// Device is a point-in-time view of one zram device.
type Device struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	DiskSize uint64 `json:"disksize"`

	// Memory stats, nil when the kernel exposes neither mm_stat nor the
	// legacy per-metric files.
	OrigDataSize  *uint64 `json:"orig_data_size,omitempty"`
	ComprDataSize *uint64 `json:"compr_data_size,omitempty"`
	MemUsedTotal  *uint64 `json:"mem_used_total,omitempty"`
	MemLimit      *uint64 `json:"mem_limit,omitempty"`
	MemUsedMax    *uint64 `json:"mem_used_max,omitempty"`

	Algorithm  string   `json:"algorithm,omitempty"`
	Algorithms []string `json:"algorithms,omitempty"`
	Streams    *int     `json:"streams,omitempty"`
	BackingDev string   `json:"backing_dev,omitempty"`

	// Writeback counters from bd_stat, in 4K pages.
	Writeback *BackingStats `json:"writeback,omitempty"`

	// Usage is "[SWAP]", a mount point, or empty.
	Usage string `json:"usage,omitempty"`
}

// BackingStats are the bd_stat counters.
type BackingStats struct {
	Count  uint64 `json:"bd_count"`
	Reads  uint64 `json:"bd_reads"`
	Writes uint64 `json:"bd_writes"`
}

// Ratio returns original/compressed bytes. ok is false when either size is
// unknown or both are zero; a zero compressed size with data stored yields
// +Inf.
func (d *Device) Ratio() (ratio float64, ok bool) {
	if d.OrigDataSize == nil || d.ComprDataSize == nil {
		return 0, false
	}
	orig, compr := *d.OrigDataSize, *d.ComprDataSize
	if compr == 0 {
		if orig == 0 {
			return 0, false
		}
		return math.Inf(1), true
	}
	return float64(orig) / float64(compr), true
}

// SizeHuman renders the disk size in binary units ("4.0 GiB").
func (d *Device) SizeHuman() string {
	return humanize.IBytes(d.DiskSize)
}

// parseAlgorithms splits "lzo [lz4] zstd" into the active algorithm and the
// candidate list.
func parseAlgorithms(raw string) (active string, all []string) {
	for _, f := range strings.Fields(raw) {
		if strings.HasPrefix(f, "[") && strings.HasSuffix(f, "]") {
			f = strings.Trim(f, "[]")
			active = f
		}
		all = append(all, f)
	}
	if active == "" && len(all) == 1 {
		active = all[0]
	}
	return active, all
}

func parseUintFields(raw string) []uint64 {
	fields := strings.Fields(raw)
	out := make([]uint64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			break
		}
		out = append(out, v)
	}
	return out
}

func uptr(v uint64) *uint64 { return &v }
