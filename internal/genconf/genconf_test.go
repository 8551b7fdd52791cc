package genconf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigreer/zman/internal/fault"
)

const sampleDoc = `# Managed by hand, please keep this header.

[zram0]
zram-size = 1G   # half of the small box
compression-algorithm = zstd
; priority tuned for desktop use
swap-priority = 100

[zram-generator]
foo = bar
`

func TestParse_RoundTripIsByteIdentical(t *testing.T) {
	docs := []string{
		sampleDoc,
		"",
		"\n",
		"[zram0]\nzram-size=512M",
		"  [zram0]  # inline\n\tkey =value ; c\n\n\n",
		"orphan = 1\n[zram1]\nstray line without equals\n= nokey\n",
		"# a\n[zram0]\n# b\n# c\n[zram1]\nx = 1\n",
	}
	for _, d := range docs {
		assert.Equal(t, d, Parse(d).String())
	}
}

func TestDocument_GetLastOccurrenceWins(t *testing.T) {
	doc := Parse("[zram0]\nzram-size = 1G\nzram-size = 2G\n")
	v, ok := doc.Get("zram0", KeySize)
	require.True(t, ok)
	assert.Equal(t, "2G", v)

	doc.Set("zram0", KeySize, "3G")
	assert.Equal(t, "[zram0]\nzram-size = 1G\nzram-size = 3G\n", doc.String())

	assert.True(t, doc.Delete("zram0", KeySize))
	assert.Equal(t, "[zram0]\n", doc.String())
}

func TestDocument_SetPreservesInlineComment(t *testing.T) {
	doc := Parse(sampleDoc)
	doc.Set("zram0", KeySize, "512M")

	v, _ := doc.Get("zram0", KeySize)
	assert.Equal(t, "512M", v)
	assert.Contains(t, doc.String(), "zram-size = 512M   # half of the small box\n")
}

func TestDocument_SetNewKeyAfterLastKey(t *testing.T) {
	doc := Parse(sampleDoc)
	doc.Set("zram0", KeyWritebackDevice, "/dev/loop14")

	want := `# Managed by hand, please keep this header.

[zram0]
zram-size = 1G   # half of the small box
compression-algorithm = zstd
; priority tuned for desktop use
swap-priority = 100
writeback-device = /dev/loop14

[zram-generator]
foo = bar
`
	assert.Equal(t, want, doc.String())
}

func TestDocument_SetNewSectionAppends(t *testing.T) {
	doc := Parse(sampleDoc)
	doc.Set("zram1", KeySize, "ram / 4")
	assert.Equal(t, sampleDoc+"\n[zram1]\nzram-size = ram / 4\n", doc.String())

	empty := Parse("")
	empty.Set("zram0", KeySize, "1G")
	assert.Equal(t, "[zram0]\nzram-size = 1G\n", empty.String())
}

func TestDocument_RemoveSection(t *testing.T) {
	text := "# header\n\n[zram0]\nzram-size = 1G\n\n# second device\n[zram1]\nzram-size = 2G\n\n[zram-generator]\nfoo = bar\n"

	doc := Parse(text)
	require.True(t, doc.RemoveSection("zram1"))
	assert.Equal(t, "# header\n\n[zram0]\nzram-size = 1G\n\n[zram-generator]\nfoo = bar\n", doc.String())

	doc = Parse(text)
	require.True(t, doc.RemoveSection("zram-generator"))
	assert.Equal(t, "# header\n\n[zram0]\nzram-size = 1G\n\n# second device\n[zram1]\nzram-size = 2G\n", doc.String())

	doc = Parse(text)
	require.True(t, doc.RemoveSection("zram0"))
	assert.Equal(t, "# header\n\n# second device\n[zram1]\nzram-size = 2G\n\n[zram-generator]\nfoo = bar\n", doc.String())

	assert.False(t, doc.RemoveSection("zram9"))
}

func newStoreWith(t *testing.T, content string) *Store {
	t.Helper()
	dir := t.TempDir()
	etc := filepath.Join(dir, "etc.conf")
	vendor := filepath.Join(dir, "vendor.conf")
	if content != "" {
		require.NoError(t, os.WriteFile(vendor, []byte(content), 0o644))
	}
	s := NewStore([]string{etc, vendor})
	s.WritePath = etc
	return s
}

// Update("zram0", {size: "512M"}) keeps the leading comment and the
// global block verbatim.
func TestStore_UpdateDeviceKeepsUntouchedContent(t *testing.T) {
	s := newStoreWith(t, sampleDoc)

	r, err := s.UpdateDevice("zram0", DeviceUpdate{Size: Set("512M")})
	require.NoError(t, err)
	assert.True(t, r.Changed())
	assert.Equal(t, s.SearchPaths[1], r.Source, "read from the vendor file")
	assert.Equal(t, s.WritePath, r.Target, "written to the admin path")

	assert.Contains(t, r.After, "# Managed by hand, please keep this header.\n")
	assert.Contains(t, r.After, "[zram-generator]\nfoo = bar\n")
	assert.Contains(t, r.After, "; priority tuned for desktop use\n")
	doc := Parse(r.After)
	v, _ := doc.Get("zram0", KeySize)
	assert.Equal(t, "512M", v)
	assert.Contains(t, r.Diff(), "+zram-size = 512M")
}

func TestStore_MergeTwiceIsDeterministic(t *testing.T) {
	s := newStoreWith(t, sampleDoc)
	u := DeviceUpdate{Size: Set("512M"), SwapPriority: Clear(), WritebackDevice: Set("/dev/loop14")}

	first, err := s.UpdateDevice("zram0", u)
	require.NoError(t, err)
	second, err := s.UpdateDevice("zram0", u)
	require.NoError(t, err)
	assert.Equal(t, first.After, second.After)

	// Applying the same update to its own output changes nothing further.
	require.NoError(t, os.WriteFile(s.WritePath, []byte(first.After), 0o644))
	third, err := s.UpdateDevice("zram0", u)
	require.NoError(t, err)
	assert.False(t, third.Changed())
	assert.NotContains(t, third.After, "swap-priority")
}

func TestStore_ValueWithCommentMarkerRoundTrips(t *testing.T) {
	s := newStoreWith(t, sampleDoc)

	_, err := s.UpdateDevice("zram0", DeviceUpdate{Options: Set("discard #x")})
	assert.True(t, fault.Is(err, fault.KindValidation), "got %v", err)
	_, err = s.UpdateGlobal(Patch{{Key: "foo", Value: Set("bar ;baz")}})
	assert.True(t, fault.Is(err, fault.KindValidation), "got %v", err)

	// Markers not preceded by whitespace are part of the value.
	u := DeviceUpdate{Options: Set("discard,x#y;z")}
	first, err := s.UpdateDevice("zram0", u)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.WritePath, []byte(first.After), 0o644))

	v, ok := Parse(first.After).Get("zram0", KeyOptions)
	require.True(t, ok)
	assert.Equal(t, "discard,x#y;z", v)

	second, err := s.UpdateDevice("zram0", u)
	require.NoError(t, err)
	assert.False(t, second.Changed())
	assert.Equal(t, first.After, second.After)
}

func TestStore_KeepLeavesKeysAlone(t *testing.T) {
	s := newStoreWith(t, sampleDoc)
	r, err := s.UpdateDevice("zram0", DeviceUpdate{})
	require.NoError(t, err)
	assert.False(t, r.Changed())
	assert.Equal(t, sampleDoc, r.After)
}

func TestStore_ReservedGlobalSectionRejected(t *testing.T) {
	s := newStoreWith(t, sampleDoc)

	_, err := s.UpdateDevice(GlobalSection, DeviceUpdate{Size: Set("1G")})
	assert.True(t, fault.Is(err, fault.KindValidation))
	_, err = s.RemoveDevice(GlobalSection)
	assert.True(t, fault.Is(err, fault.KindValidation))
	assert.NoFileExists(t, s.WritePath)
}

func TestStore_UpdateGlobalAndRemove(t *testing.T) {
	s := newStoreWith(t, sampleDoc)

	r, err := s.UpdateGlobal(Patch{{Key: "foo", Value: Clear()}, {Key: "bar", Value: Set("baz")}})
	require.NoError(t, err)
	assert.Contains(t, r.After, "[zram-generator]\nbar = baz\n")
	assert.NotContains(t, r.After, "foo = bar")

	_, err = s.UpdateGlobal(Patch{{Key: "Bad Key", Value: Set("x")}})
	assert.True(t, fault.Is(err, fault.KindValidation))

	r, err = s.RemoveDevice("zram0")
	require.NoError(t, err)
	assert.Equal(t, "# Managed by hand, please keep this header.\n\n[zram-generator]\nfoo = bar\n", r.After)
}

func TestStore_NoFileAnywhere(t *testing.T) {
	s := newStoreWith(t, "")
	_, ok := s.ActivePath()
	assert.False(t, ok)

	r, err := s.UpdateWriteback("zram0", "/dev/loop14")
	require.NoError(t, err)
	assert.Equal(t, "", r.Source)
	assert.Equal(t, "[zram0]\nwriteback-device = /dev/loop14\n", r.After)
}

func TestStore_DuplicateGlobalSectionRejected(t *testing.T) {
	s := newStoreWith(t, "[zram-generator]\na = 1\n[zram-generator]\nb = 2\n")
	_, err := s.UpdateDevice("zram0", DeviceUpdate{Size: Set("1G")})
	assert.True(t, fault.Is(err, fault.KindValidation))
}

func TestStore_Sections(t *testing.T) {
	s := newStoreWith(t, sampleDoc)
	secs, src, err := s.Sections()
	require.NoError(t, err)
	assert.Equal(t, s.SearchPaths[1], src)
	require.Len(t, secs, 2)
	assert.Equal(t, "zram0", secs[0].Name)
	assert.Equal(t, []Entry{
		{KeySize, "1G"},
		{KeyAlgorithm, "zstd"},
		{KeySwapPriority, "100"},
	}, secs[0].Entries)
	assert.True(t, secs[1].Global)

	v, ok, err := s.DeviceValue("zram0", KeyAlgorithm)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "zstd", v)
}

func TestDeviceUpdate_Validate(t *testing.T) {
	tests := []struct {
		name string
		u    DeviceUpdate
		ok   bool
	}{
		{"formula size", DeviceUpdate{Size: Set("min(ram / 2, 4096)")}, true},
		{"shell injection size", DeviceUpdate{Size: Set("1G; rm -rf /")}, false},
		{"backtick size", DeviceUpdate{Size: Set("`id`")}, false},
		{"algorithm with params", DeviceUpdate{Algorithm: Set("zstd(level=3)")}, true},
		{"algorithm with pipe", DeviceUpdate{Algorithm: Set("zstd|sh")}, false},
		{"priority", DeviceUpdate{SwapPriority: Set("32767")}, true},
		{"priority too high", DeviceUpdate{SwapPriority: Set("40000")}, false},
		{"priority not int", DeviceUpdate{SwapPriority: Set("high")}, false},
		{"relative writeback", DeviceUpdate{WritebackDevice: Set("dev/sdb")}, false},
		{"newline in options", DeviceUpdate{Options: Set("discard\n[evil]")}, false},
		{"empty set", DeviceUpdate{Options: Set("  ")}, false},
		{"inline comment in options", DeviceUpdate{Options: Set("discard #x")}, false},
		{"tab semicolon in options", DeviceUpdate{Options: Set("discard\t;x")}, false},
		{"padded options", DeviceUpdate{Options: Set(" discard")}, false},
		{"fs both", DeviceUpdate{FSType: Set("ext4"), MountPoint: Set("/var/tmp")}, true},
		{"fs one", DeviceUpdate{FSType: Set("ext4")}, false},
		{"fs clear both", DeviceUpdate{FSType: Clear(), MountPoint: Clear()}, true},
		{"host limit", DeviceUpdate{HostMemoryLimit: HostLimitMiB(2048)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.u.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, fault.Is(err, fault.KindValidation), "got %v", err)
			}
		})
	}
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, Set("2048M"), HostLimitMiB(2048))
	assert.Equal(t, Clear(), HostLimitMiB(0))

	fsType, mp := Filesystem("ext4", "")
	assert.Equal(t, Clear(), fsType)
	assert.Equal(t, Clear(), mp)
	fsType, mp = Filesystem("ext4", "/var/tmp")
	assert.Equal(t, Set("ext4"), fsType)
	assert.Equal(t, Set("/var/tmp"), mp)

	assert.NoError(t, ValidateDeviceName("zram12"))
	assert.Error(t, ValidateDeviceName("zram"))
	assert.Error(t, ValidateDeviceName("../zram0"))
}

func TestEvaluateSize(t *testing.T) {
	const ram = uint64(16 << 30) // 16 GiB

	tests := []struct {
		expr string
		want uint64
	}{
		{"512M", 512 << 20},
		{"1G", 1 << 30},
		{"1.5GiB", 3 << 29},
		{"4096", 4096 << 20},
		{"ram / 2", 8 << 30},
		{"min(ram / 2, 4096)", 4096 << 20},
		{"max(ram * 0.25, 1024)", 4 << 30},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := EvaluateSize(tt.expr, ram)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "0", "ram - ram", "disk / 2", "1G; reboot"} {
		_, err := EvaluateSize(bad, ram)
		assert.True(t, fault.Is(err, fault.KindValidation), "expr %q", bad)
	}
}
