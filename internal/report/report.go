// Package report renders zman data as tables for people and JSON for
// scripts.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/sigreer/zman/internal/db"
	"github.com/sigreer/zman/internal/genconf"
	"github.com/sigreer/zman/internal/health"
	"github.com/sigreer/zman/internal/orchestrator"
	"github.com/sigreer/zman/internal/probe"
	"github.com/sigreer/zman/internal/zram"
)

// PrintJSON writes v as indented JSON.
func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// PrintDevices prints one row per zram device.
func PrintDevices(w io.Writer, devices []*zram.Device) {
	if len(devices) == 0 {
		fmt.Fprintln(w, "No configured zram devices.")
		return
	}
	fmt.Fprintf(w, "%-8s %-10s %-10s %-10s %-10s %-7s %-8s %-16s %s\n",
		"DEVICE", "DISKSIZE", "DATA", "COMPR", "TOTAL", "RATIO", "ALGO", "BACKING", "USAGE")
	fmt.Fprintln(w, strings.Repeat("-", 92))
	for _, d := range devices {
		fmt.Fprintf(w, "%-8s %-10s %-10s %-10s %-10s %-7s %-8s %-16s %s\n",
			d.Name, d.SizeHuman(), bytesOrDash(d.OrigDataSize), bytesOrDash(d.ComprDataSize),
			bytesOrDash(d.MemUsedTotal), ratio(d), dash(d.Algorithm), dash(d.BackingDev), dash(d.Usage))
	}
}

// PrintDevice prints a single device in label/value form, including the
// writeback counters.
func PrintDevice(w io.Writer, d *zram.Device) {
	printField(w, "Device", d.Path)
	printField(w, "Disk size", d.SizeHuman())
	printField(w, "Algorithm", d.Algorithm)
	if len(d.Algorithms) > 0 {
		printField(w, "Available", strings.Join(d.Algorithms, " "))
	}
	if d.Streams != nil {
		printField(w, "Streams", fmt.Sprint(*d.Streams))
	}
	printField(w, "Original data", bytesOrDash(d.OrigDataSize))
	printField(w, "Compressed", bytesOrDash(d.ComprDataSize))
	printField(w, "Memory used", bytesOrDash(d.MemUsedTotal))
	if d.MemLimit != nil && *d.MemLimit > 0 {
		printField(w, "Memory limit", humanize.IBytes(*d.MemLimit))
	}
	if d.MemUsedMax != nil {
		printField(w, "Memory peak", humanize.IBytes(*d.MemUsedMax))
	}
	printField(w, "Ratio", ratio(d))
	printField(w, "Backing device", dash(d.BackingDev))
	if d.Writeback != nil {
		// bd_stat counts 4K pages
		printField(w, "Written back", humanize.IBytes(d.Writeback.Count*4096))
		printField(w, "Backing reads", fmt.Sprint(d.Writeback.Reads))
		printField(w, "Backing writes", fmt.Sprint(d.Writeback.Writes))
	}
	printField(w, "Usage", d.Usage)
}

// PrintResult prints an operation outcome and its action log.
func PrintResult(w io.Writer, r *orchestrator.Result) {
	symbol := "✓"
	if !r.Success {
		symbol = "✗"
	}
	fmt.Fprintf(w, "%s %s\n", symbol, r.Message)
	for _, a := range r.Actions {
		mark := "ok"
		if !a.Success {
			mark = "FAILED"
		}
		fmt.Fprintf(w, "  %-26s %-6s %s\n", a.Name, mark, a.Message)
	}
	fmt.Fprintf(w, "  operation %s\n", r.OperationID)
}

// PrintSections prints the generator document section by section.
func PrintSections(w io.Writer, source string, sections []genconf.Section) {
	if source == "" {
		fmt.Fprintln(w, "No zram-generator configuration found.")
		return
	}
	fmt.Fprintf(w, "Source: %s\n", source)
	for _, s := range sections {
		fmt.Fprintf(w, "\n[%s]\n", s.Name)
		for _, e := range s.Entries {
			fmt.Fprintf(w, "  %-24s %s\n", e.Key, e.Value)
		}
	}
}

// PrintCandidates lists unused block devices.
func PrintCandidates(w io.Writer, cands []probe.Candidate) {
	if len(cands) == 0 {
		fmt.Fprintln(w, "No unused block devices found.")
		return
	}
	fmt.Fprintf(w, "%-20s %-8s %-6s %-16s %s\n", "PATH", "SIZE", "TYPE", "LABEL", "MODEL")
	fmt.Fprintln(w, strings.Repeat("-", 70))
	for _, c := range cands {
		fmt.Fprintf(w, "%-20s %-8s %-6s %-16s %s\n", c.Path, c.Size, c.Type, dash(c.Label), dash(c.Model))
	}
}

// PrintHealth prints a health report.
func PrintHealth(w io.Writer, r *health.Report) {
	statusSymbol := "✓"
	if r.Status == health.StatusWarning {
		statusSymbol = "⚠"
	} else if r.Status == health.StatusCritical {
		statusSymbol = "✗"
	}
	fmt.Fprintf(w, "\n%s Health Check: %s\n", statusSymbol, strings.ToUpper(r.Status))
	fmt.Fprintf(w, "  Timestamp: %s (took %dms)\n\n", r.Timestamp.Format("2006-01-02 15:04:05"), r.ScanDurationMs)

	fmt.Fprintln(w, "Kernel:")
	fmt.Fprintf(w, "  sysfs: %s | module: %s | hot-add: %s\n", yesNo(r.SysfsReadable), yesNo(r.ModuleLoaded), yesNo(r.HotAdd))
	zswap := "unavailable"
	if r.Zswap.Available {
		zswap = "disabled"
		if r.Zswap.Enabled {
			zswap = "enabled"
		}
	}
	if r.Zswap.BootDisabled {
		zswap += " (zswap.enabled=0 on cmdline)"
	}
	fmt.Fprintf(w, "  zswap: %s\n", zswap)
	if len(r.Devices) > 0 {
		fmt.Fprintf(w, "  devices: %s\n", strings.Join(r.Devices, ", "))
	}

	if len(r.Swaps) > 0 {
		fmt.Fprintln(w, "\nSwap:")
		for _, s := range r.Swaps {
			fmt.Fprintf(w, "  %-20s %-10s %10s used of %-10s prio %d\n", s.Path, s.Type,
				humanize.IBytes(s.UsedKiB*1024), humanize.IBytes(s.SizeKiB*1024), s.Priority)
		}
	}

	for _, a := range r.Alerts {
		sym := "⚠"
		if a.Severity == "critical" {
			sym = "✗"
		}
		fmt.Fprintf(w, "\n%s [%s] %s", sym, a.Category, a.Message)
	}
	if len(r.Alerts) > 0 {
		fmt.Fprintln(w)
	}
}

// PrintHistory prints journaled writes and unit operations, newest first.
func PrintHistory(w io.Writer, writes []*db.ConfigWrite, units []*db.UnitOperation) {
	fmt.Fprintf(w, "%-19s %-8s %-8s %s\n", "TIME", "OP", "CHANGED", "PATH")
	fmt.Fprintln(w, strings.Repeat("-", 70))
	for _, cw := range writes {
		fmt.Fprintf(w, "%-19s %-8s %-8s %s\n", cw.Timestamp.Local().Format("2006-01-02 15:04:05"),
			shortID(cw.OperationID), yesNo(cw.Changed), cw.Path)
	}

	fmt.Fprintf(w, "\n%-19s %-8s %-14s %-6s %s\n", "TIME", "OP", "ACTION", "OK", "SERVICE")
	fmt.Fprintln(w, strings.Repeat("-", 70))
	for _, u := range units {
		fmt.Fprintf(w, "%-19s %-8s %-14s %-6s %s\n", u.Timestamp.Local().Format("2006-01-02 15:04:05"),
			shortID(u.OperationID), u.Action, yesNo(u.Success), dash(u.Service))
	}
}

func printField(w io.Writer, label, value string) {
	if value != "" {
		fmt.Fprintf(w, "%-16s %s\n", label, value)
	}
}

func bytesOrDash(v *uint64) string {
	if v == nil {
		return "-"
	}
	return humanize.IBytes(*v)
}

func ratio(d *zram.Device) string {
	r, ok := d.Ratio()
	switch {
	case !ok:
		return "-"
	case math.IsInf(r, 1):
		return "inf"
	default:
		return fmt.Sprintf("%.2f", r)
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return dash(id)
}
