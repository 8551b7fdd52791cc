package report

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigreer/zman/internal/db"
	"github.com/sigreer/zman/internal/genconf"
	"github.com/sigreer/zman/internal/health"
	"github.com/sigreer/zman/internal/orchestrator"
	"github.com/sigreer/zman/internal/probe"
	"github.com/sigreer/zman/internal/zram"
)

func u64(v uint64) *uint64 { return &v }

func TestPrintDevices(t *testing.T) {
	var buf bytes.Buffer
	PrintDevices(&buf, []*zram.Device{{
		Name: "zram0", Path: "/dev/zram0", DiskSize: 4 << 30,
		OrigDataSize: u64(300 << 20), ComprDataSize: u64(100 << 20), MemUsedTotal: u64(110 << 20),
		Algorithm: "zstd", BackingDev: "/dev/loop14", Usage: "[SWAP]",
	}})
	out := buf.String()
	assert.Contains(t, out, "zram0")
	assert.Contains(t, out, "4.0 GiB")
	assert.Contains(t, out, "3.00")
	assert.Contains(t, out, "/dev/loop14")
	assert.Contains(t, out, "[SWAP]")

	buf.Reset()
	PrintDevices(&buf, nil)
	assert.Contains(t, buf.String(), "No configured zram devices")
}

func TestPrintDevice_UnknownStatsUseDash(t *testing.T) {
	var buf bytes.Buffer
	PrintDevice(&buf, &zram.Device{Name: "zram1", Path: "/dev/zram1", DiskSize: 1 << 30,
		Writeback: &zram.BackingStats{Count: 256, Reads: 3, Writes: 9}})
	out := buf.String()
	assert.Contains(t, out, "Ratio            -")
	assert.Contains(t, out, "Written back     1.0 MiB")
	assert.Contains(t, out, "Backing device   -")
}

func TestPrintResult(t *testing.T) {
	var buf bytes.Buffer
	PrintResult(&buf, &orchestrator.Result{
		Success: false, Message: "refusing to reconfigure an active device", OperationID: "abc",
		Actions: []orchestrator.Action{{Name: "precondition", Success: false, Message: "zram0 is active"}},
	})
	out := buf.String()
	assert.Contains(t, out, "✗ refusing")
	assert.Contains(t, out, "precondition")
	assert.Contains(t, out, "FAILED")
	assert.Contains(t, out, "operation abc")
}

func TestPrintJSON_Result(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintJSON(&buf, &orchestrator.Result{Success: true, Message: "ok", OperationID: "id"}))
	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, true, got["success"])
	assert.NotContains(t, got, "Err")
}

func TestPrintSections(t *testing.T) {
	var buf bytes.Buffer
	PrintSections(&buf, "/etc/systemd/zram-generator.conf", []genconf.Section{
		{Name: "zram0", Entries: []genconf.Entry{{Key: "zram-size", Value: "ram / 2"}}},
	})
	assert.Contains(t, buf.String(), "[zram0]")
	assert.Contains(t, buf.String(), "ram / 2")

	buf.Reset()
	PrintSections(&buf, "", nil)
	assert.Contains(t, buf.String(), "No zram-generator configuration")
}

func TestPrintCandidatesAndHealth(t *testing.T) {
	var buf bytes.Buffer
	PrintCandidates(&buf, []probe.Candidate{{Name: "sdb1", Path: "/dev/sdb1", Size: "20G", Type: "part"}})
	assert.Contains(t, buf.String(), "/dev/sdb1")

	buf.Reset()
	PrintHealth(&buf, &health.Report{
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Status:    health.StatusWarning,
		Zswap:     health.ZswapState{Available: true, Enabled: true},
		Alerts:    []health.Alert{{Severity: "warning", Category: "zswap", Message: "zswap is enabled"}},
	})
	out := buf.String()
	assert.Contains(t, out, "Health Check: WARNING")
	assert.Contains(t, out, "zswap: enabled")
	assert.Contains(t, out, "[zswap] zswap is enabled")
}

func TestPrintHistory(t *testing.T) {
	var buf bytes.Buffer
	PrintHistory(&buf,
		[]*db.ConfigWrite{{OperationID: "0123456789", Path: "/etc/systemd/zram-generator.conf", Changed: true, Timestamp: time.Now()}},
		[]*db.UnitOperation{{Action: "daemon-reload", Success: true, Timestamp: time.Now()}})
	out := buf.String()
	assert.Contains(t, out, "01234567 ")
	assert.Contains(t, out, "zram-generator.conf")
	assert.Contains(t, out, "daemon-reload")
}
