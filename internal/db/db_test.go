package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := New(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestNew_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	d, err := New(path)
	require.NoError(t, err)
	require.NoError(t, d.Close())

	d, err = New(path)
	require.NoError(t, err)
	defer d.Close()
	assert.Equal(t, path, d.Path())

	var n int
	require.NoError(t, d.conn.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestJournal_WritesAndUnits(t *testing.T) {
	d := openTestDB(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, d.RecordConfigWrite(ConfigWrite{
		OperationID: "op-1", Path: "/etc/systemd/zram-generator.conf", Changed: true,
		BackupPath: "/etc/systemd/zram-generator.conf.bak", Diff: "+x", Timestamp: base,
	}))
	require.NoError(t, d.RecordConfigWrite(ConfigWrite{
		OperationID: "op-2", Path: "/etc/systemd/zram-generator.conf", Timestamp: base.Add(time.Minute),
	}))
	require.NoError(t, d.RecordUnitOperation(UnitOperation{
		OperationID: "op-1", Action: "restart", Service: "systemd-zram-setup@zram0.service", Success: true, Timestamp: base,
	}))
	require.NoError(t, d.RecordUnitOperation(UnitOperation{OperationID: "op-1", Action: "daemon-reload", Success: false, Message: "boom"}))

	writes, err := d.GetRecentWrites(10)
	require.NoError(t, err)
	require.Len(t, writes, 2)
	assert.Equal(t, "op-2", writes[0].OperationID, "newest first")
	assert.False(t, writes[0].Changed)
	assert.True(t, writes[1].Changed)
	assert.Equal(t, "/etc/systemd/zram-generator.conf.bak", writes[1].BackupPath)

	w, u, err := d.GetOperation("op-1")
	require.NoError(t, err)
	require.Len(t, w, 1)
	require.Len(t, u, 2)
	assert.Equal(t, "restart", u[0].Action, "in journal order")
	assert.Equal(t, "systemd-zram-setup@zram0.service", u[0].Service)
	assert.Equal(t, "daemon-reload", u[1].Action)
	assert.Equal(t, "boom", u[1].Message)
}
