package privileged

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigreer/zman/internal/command"
	"github.com/sigreer/zman/internal/command/commandtest"
	"github.com/sigreer/zman/internal/db"
	"github.com/sigreer/zman/internal/fault"
	"github.com/sigreer/zman/internal/sysfs"
)

const confPath = "/etc/systemd/zram-generator.conf"

type memJournal struct {
	writes []db.ConfigWrite
	units  []db.UnitOperation
}

func (m *memJournal) RecordConfigWrite(w db.ConfigWrite) error {
	m.writes = append(m.writes, w)
	return nil
}

func (m *memJournal) RecordUnitOperation(op db.UnitOperation) error {
	m.units = append(m.units, op)
	return nil
}

func TestCheckPath(t *testing.T) {
	assert.NoError(t, CheckPath(confPath))
	for _, p := range []string{
		"/etc/passwd",
		"etc/systemd/zram-generator.conf",
		"/etc/systemd/../systemd/zram-generator.conf",
		"/etc/systemd/zram-generator.conf.bak",
		"",
	} {
		err := CheckPath(p)
		assert.True(t, fault.Is(err, fault.KindValidation), "path %q", p)
	}
	assert.Contains(t, AllowedPaths(), confPath)
}

func TestCheckService(t *testing.T) {
	assert.NoError(t, CheckService("systemd-zram-setup@zram0.service"))
	assert.NoError(t, CheckService(UnitName("zram12")))
	for _, s := range []string{
		"sshd.service",
		"systemd-zram-setup@zram0.service; reboot",
		"systemd-zram-setup@zramx.service",
		"systemd-zram-setup@zram0",
	} {
		assert.True(t, fault.Is(CheckService(s), fault.KindValidation), "service %q", s)
	}
}

func newLocal(t *testing.T, run *commandtest.Fake) (*Local, *memJournal, string) {
	t.Helper()
	root := t.TempDir()
	j := &memJournal{}
	l := NewLocal(run, true, j, nil)
	l.Root = root
	return l, j, root
}

func TestLocal_WriteFileAtomicWithJournal(t *testing.T) {
	ctx := WithOperation(context.Background(), "op-42")
	l, j, root := newLocal(t, commandtest.NewFake())

	res, err := l.WriteFile(ctx, confPath, []byte("[zram0]\nzram-size = 1G\n"))
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, confPath, res.Path)

	res, err = l.WriteFile(ctx, confPath, []byte("[zram0]\nzram-size = 512M\n"))
	require.NoError(t, err)
	assert.Equal(t, confPath+sysfs.BackupSuffix, res.BackupPath)

	backup, err := os.ReadFile(filepath.Join(root, confPath+sysfs.BackupSuffix))
	require.NoError(t, err)
	assert.Equal(t, "[zram0]\nzram-size = 1G\n", string(backup))

	require.Len(t, j.writes, 2)
	assert.Equal(t, "op-42", j.writes[1].OperationID)
	assert.Contains(t, j.writes[1].Diff, "+zram-size = 512M")

	_, err = l.WriteFile(ctx, "/etc/shadow", []byte("x"))
	assert.True(t, fault.Is(err, fault.KindValidation))
	assert.NoFileExists(t, filepath.Join(root, "/etc/shadow"))
	assert.Len(t, j.writes, 2)
}

func TestLocal_UnitsAndReload(t *testing.T) {
	ctx := context.Background()
	run := commandtest.NewFake().On("systemctl restart systemd-zram-setup@zram1.service", command.Output{Code: 1, Stderr: "Job failed"})
	l, j, _ := newLocal(t, run)

	require.NoError(t, l.DaemonReload(ctx))
	require.NoError(t, l.Unit(ctx, Stop, UnitName("zram0")))
	err := l.Unit(ctx, Restart, UnitName("zram1"))
	assert.True(t, fault.Is(err, fault.KindCommandFailed))

	err = l.Unit(ctx, Restart, "sshd.service")
	assert.True(t, fault.Is(err, fault.KindValidation))
	err = l.Unit(ctx, UnitAction("mask"), UnitName("zram0"))
	assert.True(t, fault.Is(err, fault.KindValidation))

	assert.Equal(t, []string{
		"systemctl daemon-reload",
		"systemctl stop systemd-zram-setup@zram0.service",
		"systemctl restart systemd-zram-setup@zram1.service",
	}, run.Lines())
	require.Len(t, j.units, 3)
	assert.False(t, j.units[2].Success)
	assert.Contains(t, j.units[2].Message, "Job failed")
}

func TestDelegated_InvokesHelperThroughEscalator(t *testing.T) {
	ctx := WithOperation(context.Background(), "op-7")
	result, _ := json.Marshal(sysfs.AtomicResult{Path: confPath, Changed: true})
	run := commandtest.NewFake().
		On("pkexec /usr/libexec/zman-helper --op op-7 write "+confPath, command.Output{Stdout: string(result)})
	d := &Delegated{Run: run, Escalator: "pkexec", HelperPath: "/usr/libexec/zman-helper", Backup: true}

	res, err := d.WriteFile(ctx, confPath, []byte("[zram0]\n"))
	require.NoError(t, err)
	assert.True(t, res.Changed)

	require.NoError(t, d.DaemonReload(context.Background()))
	require.NoError(t, d.Unit(context.Background(), Restart, UnitName("zram0")))

	calls := run.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "[zram0]\n", calls[0].Input)
	assert.Equal(t, "pkexec /usr/libexec/zman-helper daemon-reload", calls[1].String())
	assert.Equal(t, "pkexec /usr/libexec/zman-helper restart systemd-zram-setup@zram0.service", calls[2].String())

	_, err = d.WriteFile(ctx, "/etc/fstab", []byte("x"))
	assert.True(t, fault.Is(err, fault.KindValidation))
	assert.Len(t, run.Calls(), 3, "rejected before escalation")
}

func TestDelegated_NoBackupAndDirect(t *testing.T) {
	run := commandtest.NewFake()
	d := &Delegated{Run: run, HelperPath: "zman-helper"}
	require.NoError(t, d.Unit(context.Background(), Start, UnitName("zram3")))
	assert.Equal(t, []string{"zman-helper --no-backup start systemd-zram-setup@zram3.service"}, run.Lines())
}

func TestHelper_RevalidatesAndWrites(t *testing.T) {
	ctx := context.Background()
	run := commandtest.NewFake()
	l, _, root := newLocal(t, run)
	h := &Helper{Local: l}

	var out bytes.Buffer
	require.NoError(t, h.Write(ctx, confPath, strings.NewReader("[zram0]\n"), &out))
	var res sysfs.AtomicResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.True(t, res.Changed)
	got, err := os.ReadFile(filepath.Join(root, confPath))
	require.NoError(t, err)
	assert.Equal(t, "[zram0]\n", string(got))

	err = h.Write(ctx, "/etc/sudoers", strings.NewReader("evil"), &out)
	assert.True(t, fault.Is(err, fault.KindValidation))

	err = h.Write(ctx, confPath, strings.NewReader(strings.Repeat("x", MaxDocumentSize+1)), &out)
	assert.Error(t, err)

	assert.True(t, fault.Is(h.Unit(ctx, "enable", UnitName("zram0")), fault.KindValidation))
	assert.True(t, fault.Is(h.Unit(ctx, "restart", "getty@tty1.service"), fault.KindValidation))
	require.NoError(t, h.Unit(ctx, "restart", UnitName("zram0")))
	require.NoError(t, h.DaemonReload(ctx))
	assert.Equal(t, []string{"systemctl restart systemd-zram-setup@zram0.service", "systemctl daemon-reload"}, run.Lines())
}
