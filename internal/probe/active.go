package probe

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

const (
	procSwaps  = "/proc/swaps"
	procMounts = "/proc/mounts"
)

// SwapEntry is one line of /proc/swaps.
type SwapEntry struct {
	Path     string `json:"path"`
	Type     string `json:"type"`
	SizeKiB  uint64 `json:"size_kib"`
	UsedKiB  uint64 `json:"used_kib"`
	Priority int    `json:"priority"`
}

// Usage describes how a device is in use.
type Usage struct {
	Swap       bool
	MountPoint string
}

// Active reports whether the device is swapped on or mounted.
func (u Usage) Active() bool {
	return u.Swap || u.MountPoint != ""
}

// String renders the usage the way lsblk does.
func (u Usage) String() string {
	switch {
	case u.Swap:
		return "[SWAP]"
	case u.MountPoint != "":
		return u.MountPoint
	default:
		return ""
	}
}

// Swaps parses the live swap table. A missing table yields no entries.
func (p *Prober) Swaps() []SwapEntry {
	data, ok := p.FS.Read(procSwaps)
	if !ok {
		return nil
	}
	var entries []SwapEntry
	for i, line := range strings.Split(data, "\n") {
		fields := strings.Fields(line)
		if i == 0 || len(fields) < 5 {
			continue // header
		}
		e := SwapEntry{Path: unescapeMount(fields[0]), Type: fields[1]}
		e.SizeKiB, _ = strconv.ParseUint(fields[2], 10, 64)
		e.UsedKiB, _ = strconv.ParseUint(fields[3], 10, 64)
		e.Priority, _ = strconv.Atoi(fields[4])
		entries = append(entries, e)
	}
	return entries
}

// mountPoint returns where dev is mounted, matching the source column exactly.
func (p *Prober) mountPoint(dev string) string {
	data, ok := p.FS.Read(procMounts)
	if !ok {
		return ""
	}
	for _, line := range strings.Split(data, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[0] == dev {
			return unescapeMount(fields[1])
		}
	}
	return ""
}

// Usage reports whether dev (a /dev path) is in the swap or mount table.
func (p *Prober) Usage(dev string) Usage {
	var u Usage
	for _, s := range p.Swaps() {
		if s.Path == dev {
			u.Swap = true
			break
		}
	}
	u.MountPoint = p.mountPoint(dev)
	return u
}

// Deactivate swaps off and/or unmounts dev according to u.
func (p *Prober) Deactivate(ctx context.Context, dev string, u Usage) error {
	if u.Swap {
		if _, err := p.Run.Run(ctx, "swapoff", dev); err != nil {
			return fmt.Errorf("swapoff %s failed: %w", dev, err)
		}
	}
	if u.MountPoint != "" {
		if _, err := p.Run.Run(ctx, "umount", u.MountPoint); err != nil {
			return fmt.Errorf("umount %s failed: %w", u.MountPoint, err)
		}
	}
	return nil
}

// unescapeMount decodes the octal escapes (\040 for space) the kernel uses in
// /proc/mounts and /proc/swaps.
func unescapeMount(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+4 <= len(s) {
			if n, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(n))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
