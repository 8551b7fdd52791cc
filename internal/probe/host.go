package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/sigreer/zman/internal/cache"
)

const procMeminfo = "/proc/meminfo"

// Candidate is a block device that could serve as a writeback target.
type Candidate struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	Size  string `json:"size"`
	Type  string `json:"type"`
	Model string `json:"model,omitempty"`
	Label string `json:"label,omitempty"`
}

// lsblkOutput represents the JSON output from lsblk
type lsblkOutput struct {
	Blockdevices []lsblkDevice `json:"blockdevices"`
}

type lsblkDevice struct {
	Name       string        `json:"name"`
	Path       string        `json:"path"`
	Size       string        `json:"size"`
	Type       string        `json:"type"`
	Label      string        `json:"label"`
	FSType     string        `json:"fstype"`
	MountPoint string        `json:"mountpoint"`
	Model      string        `json:"model"`
	Children   []lsblkDevice `json:"children,omitempty"`
}

// Candidates lists unmounted block devices with no filesystem, excluding
// zram devices themselves and devices that have partitions. Results are
// cached for cache.TTLBlockDevices.
func (p *Prober) Candidates(ctx context.Context) ([]Candidate, error) {
	v, err := p.Cache.GetOrLoad("lsblk:candidates", cache.TTLBlockDevices, func() (any, error) {
		return p.listCandidates(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Candidate), nil
}

func (p *Prober) listCandidates(ctx context.Context) ([]Candidate, error) {
	out, err := p.Run.Run(ctx, "lsblk", "-J", "-o", "NAME,PATH,SIZE,TYPE,LABEL,FSTYPE,MOUNTPOINT,MODEL")
	if err != nil {
		return nil, fmt.Errorf("lsblk failed: %w", err)
	}

	var parsed lsblkOutput
	if err := json.Unmarshal([]byte(out.Stdout), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse lsblk output: %w", err)
	}

	var result []Candidate
	var walk func([]lsblkDevice)
	walk = func(devs []lsblkDevice) {
		for _, d := range devs {
			if len(d.Children) > 0 {
				walk(d.Children)
				continue
			}
			if d.FSType != "" || d.MountPoint != "" || strings.HasPrefix(d.Name, "zram") {
				continue
			}
			switch d.Type {
			case "disk", "part", "loop", "lvm":
			default:
				continue
			}
			result = append(result, Candidate{
				Name:  d.Name,
				Path:  d.Path,
				Size:  d.Size,
				Type:  d.Type,
				Model: strings.TrimSpace(d.Model),
				Label: d.Label,
			})
		}
	}
	walk(parsed.Blockdevices)
	return result, nil
}

// MemTotal returns the host's physical memory in bytes from /proc/meminfo.
func (p *Prober) MemTotal() (uint64, bool) {
	data, ok := p.FS.Read(procMeminfo)
	if !ok {
		return 0, false
	}
	for _, line := range strings.Split(data, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[0] == "MemTotal:" {
			kib, err := strconv.ParseUint(fields[1], 10, 64)
			if err != nil {
				return 0, false
			}
			return kib * 1024, true
		}
	}
	return 0, false
}
