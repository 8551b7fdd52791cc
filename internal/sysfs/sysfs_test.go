package sysfs

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSynthetic(t *testing.T, root, path, content string) {
	t.Helper()
	full := filepath.Join(root, path)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestOS_ReadTrimsAndReportsAbsent(t *testing.T) {
	root := t.TempDir()
	writeSynthetic(t, root, "/sys/block/zram0/disksize", "4294967296\n")
	s := NewOS(root)

	v, ok := s.Read("/sys/block/zram0/disksize")
	assert.True(t, ok)
	assert.Equal(t, "4294967296", v)

	_, ok = s.Read("/sys/block/zram0/backing_dev")
	assert.False(t, ok)
}

func TestOS_WriteDoesNotCreate(t *testing.T) {
	root := t.TempDir()
	writeSynthetic(t, root, "/sys/block/zram0/reset", "")
	s := NewOS(root)

	require.NoError(t, s.Write("/sys/block/zram0/reset", "1"))
	v, _ := s.Read("/sys/block/zram0/reset")
	assert.Equal(t, "1", v)

	err := s.Write("/sys/block/zram0/backing_dev", "/dev/loop0")
	var we *WriteError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, "/sys/block/zram0/backing_dev", we.Path)
	assert.Equal(t, "/dev/loop0", we.Value)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	assert.False(t, s.Exists("/sys/block/zram0/backing_dev"))
}

func TestOS_ListSortedAndMissingDir(t *testing.T) {
	root := t.TempDir()
	writeSynthetic(t, root, "/sys/block/zram1/disksize", "0")
	writeSynthetic(t, root, "/sys/block/sda/size", "1")
	writeSynthetic(t, root, "/sys/block/zram0/disksize", "0")
	s := NewOS(root)

	names, err := s.List("/sys/block")
	require.NoError(t, err)
	assert.Equal(t, []string{"sda", "zram0", "zram1"}, names)

	names, err = s.List("/sys/nothing")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestWriteFileAtomic_IdenticalContentIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zram-generator.conf")
	content := []byte("[zram0]\nzram-size = 1G\n")

	res, err := WriteFileAtomic(path, content, AtomicOptions{})
	require.NoError(t, err)
	assert.True(t, res.Changed)

	old := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(path, old, old))

	res, err = WriteFileAtomic(path, content, AtomicOptions{Backup: true})
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Empty(t, res.BackupPath)
	assert.Empty(t, res.Diff)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(old), "mtime changed on identical write")
	assert.NoFileExists(t, path+BackupSuffix)
}

func TestWriteFileAtomic_BackupHoldsPriorContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zram-generator.conf")
	prior := "# keep me\n[zram0]\nzram-size = 1G\n"
	require.NoError(t, os.WriteFile(path, []byte(prior), 0o600))
	old := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(path, old, old))

	next := "# keep me\n[zram0]\nzram-size = 512M\n"
	res, err := WriteFileAtomic(path, []byte(next), AtomicOptions{Backup: true})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, path+BackupSuffix, res.BackupPath)
	assert.Contains(t, res.Diff, "-zram-size = 1G")
	assert.Contains(t, res.Diff, "+zram-size = 512M")

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, next, string(got))

	backup, err := os.ReadFile(res.BackupPath)
	require.NoError(t, err)
	assert.Equal(t, prior, string(backup))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.False(t, info.ModTime().Equal(old))
	assert.Equal(t, DocumentMode, info.Mode().Perm())
}

func TestWriteFileAtomic_NewFileNoBackupAndNoLeftovers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "new.conf")

	res, err := WriteFileAtomic(path, []byte("x = 1\n"), AtomicOptions{Backup: true})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Empty(t, res.BackupPath)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new.conf", entries[0].Name())
}
