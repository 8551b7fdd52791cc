// Package probe inspects block devices and the host: filesystem signatures,
// swap/mount activity, backing-device candidates and memory size.
package probe

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/sigreer/zman/internal/cache"
	"github.com/sigreer/zman/internal/command"
	"github.com/sigreer/zman/internal/fault"
	"github.com/sigreer/zman/internal/sysfs"
)

// blkid exit code when no matching token was found.
const blkidNotFound = 2

// Prober runs the device and host probes.
type Prober struct {
	FS    sysfs.FS
	Run   command.Runner
	Cache *cache.Cache
	Log   *slog.Logger

	// IsBlock reports whether path is a block device node. Defaults to
	// IsBlockDevice; tests replace it.
	IsBlock func(path string) bool
}

// New returns a Prober using the live block-device check.
func New(fsys sysfs.FS, run command.Runner, c *cache.Cache, log *slog.Logger) *Prober {
	if c == nil {
		c = cache.New()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Prober{FS: fsys, Run: run, Cache: c, Log: log, IsBlock: IsBlockDevice}
}

// IsBlockDevice stats path (following symlinks) and checks S_IFBLK.
func IsBlockDevice(path string) bool {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return false
	}
	return st.Mode&unix.S_IFMT == unix.S_IFBLK
}

// Signature returns the filesystem signature TYPE blkid finds on path, or ""
// when there is none.
func (p *Prober) Signature(ctx context.Context, path string) (string, error) {
	out, err := p.Run.Run(ctx, "blkid", "-o", "value", "-s", "TYPE", path)
	if err != nil {
		var ce *fault.CommandError
		if errors.As(err, &ce) && ce.Code == blkidNotFound {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(out.Stdout), nil
}

// CheckBackingDevice validates path as a writeback target. It must be an
// absolute path to a block device carrying no filesystem signature. Any
// signature, swap included, is rejected because zram overwrites the device.
func (p *Prober) CheckBackingDevice(ctx context.Context, path string) error {
	if path == "" || !filepath.IsAbs(path) || filepath.Clean(path) != path {
		return fault.Validation("backing device %q must be a clean absolute path", path)
	}
	if !p.IsBlock(path) {
		return fault.NotBlockDevice(path)
	}
	sig, err := p.Signature(ctx, path)
	if err != nil {
		return err
	}
	if sig != "" {
		p.Log.Warn("rejecting backing device with existing signature", "device", path, "type", sig)
		return fault.Validation("%s contains a %s signature; using it for writeback would destroy its data", path, sig)
	}
	return nil
}
