package zram

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/sigreer/zman/internal/sysfs"
)

// State is a device's position in the kernel lifecycle.
type State int

const (
	Missing State = iota
	Unconfigured
	Configured
)

func (s State) String() string {
	switch s {
	case Unconfigured:
		return "unconfigured"
	case Configured:
		return "configured"
	default:
		return "missing"
	}
}

// Discoverer reads zram devices from sysfs.
type Discoverer struct {
	FS sysfs.FS
	// Usage, when set, fills Device.Usage from the device's /dev path.
	Usage func(devPath string) string
}

// List returns every configured zram device sorted by index.
// Devices with a zero disksize are unconfigured and left out.
func (d *Discoverer) List() ([]*Device, error) {
	names, err := d.FS.List(sysBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", sysBlock, err)
	}

	var zrams []string
	for _, n := range names {
		if ValidName(n) {
			zrams = append(zrams, n)
		}
	}
	sort.Slice(zrams, func(i, j int) bool { return Index(zrams[i]) < Index(zrams[j]) })

	var devices []*Device
	for _, n := range zrams {
		dev, state := d.Inspect(n)
		if state != Configured {
			continue
		}
		devices = append(devices, dev)
	}
	return devices, nil
}

// State reports where name is in the lifecycle.
func (d *Discoverer) State(name string) State {
	if !d.FS.Exists(SysDir(name)) {
		return Missing
	}
	raw, ok := d.FS.Read(attr(name, "disksize"))
	if !ok {
		return Unconfigured
	}
	if size, err := strconv.ParseUint(raw, 10, 64); err != nil || size == 0 {
		return Unconfigured
	}
	return Configured
}

// Inspect reads every property of name. dev is nil when the device is missing.
func (d *Discoverer) Inspect(name string) (*Device, State) {
	state := d.State(name)
	if state == Missing {
		return nil, Missing
	}

	dev := &Device{Name: name, Path: DevPath(name)}
	if raw, ok := d.FS.Read(attr(name, "disksize")); ok {
		dev.DiskSize, _ = strconv.ParseUint(raw, 10, 64)
	}

	d.readMemStats(dev)

	if raw, ok := d.FS.Read(attr(name, "comp_algorithm")); ok {
		dev.Algorithm, dev.Algorithms = parseAlgorithms(raw)
	}
	if raw, ok := d.FS.Read(attr(name, "max_comp_streams")); ok {
		if n, err := strconv.Atoi(raw); err == nil {
			dev.Streams = &n
		}
	}
	if raw, ok := d.FS.Read(attr(name, "backing_dev")); ok && raw != noBackingFS {
		dev.BackingDev = raw
	}
	if raw, ok := d.FS.Read(attr(name, "bd_stat")); ok {
		if f := parseUintFields(raw); len(f) >= 3 {
			dev.Writeback = &BackingStats{Count: f[0], Reads: f[1], Writes: f[2]}
		}
	}

	if d.Usage != nil {
		dev.Usage = d.Usage(dev.Path)
	}
	return dev, state
}

// readMemStats prefers mm_stat and falls back to the per-metric files
// older kernels expose.
func (d *Discoverer) readMemStats(dev *Device) {
	if raw, ok := d.FS.Read(attr(dev.Name, "mm_stat")); ok {
		f := parseUintFields(raw)
		if len(f) >= 3 {
			dev.OrigDataSize, dev.ComprDataSize, dev.MemUsedTotal = uptr(f[0]), uptr(f[1]), uptr(f[2])
			if len(f) >= 5 {
				dev.MemLimit, dev.MemUsedMax = uptr(f[3]), uptr(f[4])
			}
			return
		}
	}

	legacy := func(file string) *uint64 {
		raw, ok := d.FS.Read(attr(dev.Name, file))
		if !ok {
			return nil
		}
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil
		}
		return &v
	}
	dev.OrigDataSize = legacy("orig_data_size")
	dev.ComprDataSize = legacy("compr_data_size")
	dev.MemUsedTotal = legacy("mem_used_total")
}
