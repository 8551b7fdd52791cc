// Package health reports whether the host can run zram the way zman
// expects: sysfs reachable, module and hot-add present, zswap out of the
// way, and the userspace tools on PATH.
package health

import (
	"strings"
	"time"

	"github.com/sigreer/zman/internal/command"
	"github.com/sigreer/zman/internal/probe"
	"github.com/sigreer/zman/internal/sysfs"
	"github.com/sigreer/zman/internal/zram"
)

const (
	sysBlock     = "/sys/block"
	zramModule   = "/sys/module/zram"
	zramControl  = "/sys/class/zram-control"
	hotAdd       = "/sys/class/zram-control/hot_add"
	zswapEnabled = "/sys/module/zswap/parameters/enabled"
	procCmdline  = "/proc/cmdline"
	zswapBootOff = "zswap.enabled=0"
)

// Tools zman shells out to.
var Tools = []string{"systemctl", "blkid", "lsblk", "modprobe", "swapoff", "umount"}

// Severity levels, worst last.
const (
	StatusHealthy  = "healthy"
	StatusWarning  = "warning"
	StatusCritical = "critical"
)

// Report is the complete health check output.
type Report struct {
	Timestamp      time.Time         `json:"timestamp"`
	Status         string            `json:"status"`
	SysfsReadable  bool              `json:"sysfs_readable"`
	ModuleLoaded   bool              `json:"module_loaded"`
	HotAdd         bool              `json:"hot_add"`
	Zswap          ZswapState        `json:"zswap"`
	Tools          map[string]bool   `json:"tools"`
	Devices        []string          `json:"devices"`
	Swaps          []probe.SwapEntry `json:"swaps"`
	Alerts         []Alert           `json:"alerts"`
	ScanDurationMs int64             `json:"scan_duration_ms"`
}

// ZswapState describes zswap, which compresses pages before they reach any
// swap device and so competes with zram.
type ZswapState struct {
	Available    bool `json:"available"`
	Enabled      bool `json:"enabled"`
	BootDisabled bool `json:"boot_disabled"`
}

type Alert struct {
	Severity string `json:"severity"` // info, warning, critical
	Category string `json:"category"`
	Message  string `json:"message"`
}

// Checker gathers a Report.
type Checker struct {
	FS       sysfs.FS
	Run      command.Runner
	Probe    *probe.Prober
	Discover *zram.Discoverer

	now func() time.Time
}

func New(fsys sysfs.FS, run command.Runner, p *probe.Prober, d *zram.Discoverer) *Checker {
	return &Checker{FS: fsys, Run: run, Probe: p, Discover: d, now: time.Now}
}

func (c *Checker) Check() *Report {
	start := c.now()
	r := &Report{Timestamp: start, Status: StatusHealthy, Tools: make(map[string]bool)}

	r.SysfsReadable = c.FS.Exists(sysBlock)
	if !r.SysfsReadable {
		r.alert("critical", "sysfs", sysBlock+" is not accessible")
	}

	r.ModuleLoaded = c.FS.Exists(zramModule) || c.FS.Exists(zramControl)
	if !r.ModuleLoaded {
		r.alert("warning", "module", "zram module is not loaded (it is loaded on first use)")
	}
	r.HotAdd = c.FS.Exists(hotAdd)
	if r.ModuleLoaded && !r.HotAdd {
		r.alert("warning", "module", "kernel has no zram hot-add; only preallocated devices can be used")
	}

	r.Zswap = c.zswap()
	if r.Zswap.Enabled {
		msg := "zswap is enabled and will intercept pages before zram"
		if !r.Zswap.BootDisabled {
			msg += "; add " + zswapBootOff + " to the kernel command line"
		}
		r.alert("warning", "zswap", msg)
	}

	for _, t := range Tools {
		ok := c.Run.LookPath(t)
		r.Tools[t] = ok
		if !ok {
			r.alert("warning", "tools", t+" not found in PATH")
		}
	}

	if c.Discover != nil {
		if devs, err := c.Discover.List(); err == nil {
			for _, d := range devs {
				r.Devices = append(r.Devices, d.Name)
			}
		}
	}
	if c.Probe != nil {
		r.Swaps = c.Probe.Swaps()
	}

	r.ScanDurationMs = c.now().Sub(start).Milliseconds()
	return r
}

func (c *Checker) zswap() ZswapState {
	var z ZswapState
	v, ok := c.FS.Read(zswapEnabled)
	z.Available = ok
	z.Enabled = ok && (v == "Y" || v == "1")
	if cmdline, ok := c.FS.Read(procCmdline); ok {
		for _, arg := range strings.Fields(cmdline) {
			if arg == zswapBootOff {
				z.BootDisabled = true
			}
		}
	}
	return z
}

func (r *Report) alert(severity, category, msg string) {
	r.Alerts = append(r.Alerts, Alert{Severity: severity, Category: category, Message: msg})
	switch {
	case severity == "critical":
		r.Status = StatusCritical
	case severity == "warning" && r.Status == StatusHealthy:
		r.Status = StatusWarning
	}
}
