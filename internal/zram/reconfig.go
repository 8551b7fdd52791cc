package zram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/sigreer/zman/internal/command"
	"github.com/sigreer/zman/internal/fault"
	"github.com/sigreer/zman/internal/sysfs"
)

// Causes wrapped into the fault errors EnsureExists and Configure return.
var (
	ErrModuleUnavailable    = errors.New("zram kernel module unavailable")
	ErrHotAddUnsupported    = errors.New("zram hot-add not supported by this kernel")
	ErrWrongIndex           = errors.New("hot-add created a different device index")
	ErrWritebackUnsupported = errors.New("writeback (backing_dev) not supported by this kernel")
)

// Params is everything Configure writes. Zero values mean "leave the kernel
// default".
type Params struct {
	BackingDev string
	Algorithm  string
	Streams    int
	DiskSize   uint64
}

// Reconfigurator drives zram devices through their states while keeping
// the kernel's write ordering: disksize must read 0 before backing_dev,
// comp_algorithm or max_comp_streams are written, and disksize is always
// written last since that write is what activates the device.
type Reconfigurator struct {
	FS  sysfs.FS
	Run command.Runner
	Log *slog.Logger

	disc Discoverer
}

func NewReconfigurator(fsys sysfs.FS, run command.Runner, log *slog.Logger) *Reconfigurator {
	if log == nil {
		log = slog.Default()
	}
	return &Reconfigurator{FS: fsys, Run: run, Log: log, disc: Discoverer{FS: fsys}}
}

// State reports where name is in the lifecycle.
func (r *Reconfigurator) State(name string) State {
	return r.disc.State(name)
}

// EnsureExists moves name from Missing to at least Unconfigured by loading
// the module and hot-adding a device. Hot-add picks the lowest free slot, so
// the result is checked against the requested index.
func (r *Reconfigurator) EnsureExists(ctx context.Context, name string) error {
	idx := Index(name)
	if idx < 0 {
		return fault.Validation("invalid zram device name %q", name)
	}
	if r.FS.Exists(SysDir(name)) {
		return nil
	}

	if _, err := r.Run.Run(ctx, "modprobe", "zram"); err != nil {
		return fault.NotSupported(fmt.Errorf("%w: %w", ErrModuleUnavailable, err), "cannot create %s", name)
	}
	if r.FS.Exists(SysDir(name)) {
		return nil
	}

	if !r.FS.Exists(hotAddPath) {
		return fault.NotSupported(ErrHotAddUnsupported, "cannot create %s", name)
	}
	raw, ok := r.FS.Read(hotAddPath)
	if !ok {
		return fault.NotSupported(ErrHotAddUnsupported, "cannot create %s", name)
	}
	got, err := strconv.Atoi(raw)
	if err != nil {
		return fault.Internal(err, "unexpected hot_add response %q", raw)
	}
	r.Log.Info("hot-added zram device", "requested", name, "created", fmt.Sprintf("zram%d", got))

	if got != idx || !r.FS.Exists(SysDir(name)) {
		return fault.Internal(ErrWrongIndex, "requested %s, kernel created zram%d", name, got)
	}
	return nil
}

// Reset moves a configured device back to Unconfigured. The device node is
// kept so device numbering does not drift.
func (r *Reconfigurator) Reset(name string) error {
	if !r.FS.Exists(SysDir(name)) {
		return fault.Internal(nil, "%s disappeared before reset", name)
	}
	if err := r.FS.Write(attr(name, "reset"), "1"); err != nil {
		return fmt.Errorf("reset %s: %w", name, err)
	}
	return nil
}

// Snapshot reads the parameters a later Configure should restore. Anything
// unreadable is left at its zero value.
func (r *Reconfigurator) Snapshot(name string) Params {
	dev, state := r.disc.Inspect(name)
	if state == Missing {
		return Params{}
	}
	p := Params{
		BackingDev: dev.BackingDev,
		Algorithm:  dev.Algorithm,
		DiskSize:   dev.DiskSize,
	}
	if dev.Streams != nil {
		p.Streams = *dev.Streams
	}
	return p
}

// Configure moves an Unconfigured device to Configured. Writes happen in the
// order backing_dev, comp_algorithm, max_comp_streams, disksize. Any failure
// before the disksize write leaves the device unconfigured.
func (r *Reconfigurator) Configure(name string, p Params) error {
	if p.DiskSize == 0 {
		return fault.Validation("disksize for %s must be greater than zero", name)
	}
	switch r.State(name) {
	case Missing:
		return fault.Internal(nil, "%s disappeared before configure", name)
	case Configured:
		return fault.Internal(nil, "%s is still configured; reset it first", name)
	}

	if p.BackingDev != "" {
		path := attr(name, "backing_dev")
		if !r.FS.Exists(path) {
			return fault.NotSupported(ErrWritebackUnsupported, "cannot set backing device on %s", name)
		}
		if err := r.FS.Write(path, p.BackingDev); err != nil {
			return fmt.Errorf("configure %s: %w", name, err)
		}
	}

	if p.Algorithm != "" {
		if err := r.FS.Write(attr(name, "comp_algorithm"), p.Algorithm); err != nil {
			return fmt.Errorf("configure %s: %w", name, err)
		}
	}

	if p.Streams > 0 {
		// max_comp_streams is a no-op stub on kernels >= 4.7 and gone on some.
		path := attr(name, "max_comp_streams")
		if r.FS.Exists(path) {
			if err := r.FS.Write(path, strconv.Itoa(p.Streams)); err != nil {
				return fmt.Errorf("configure %s: %w", name, err)
			}
		}
	}

	if err := r.FS.Write(attr(name, "disksize"), strconv.FormatUint(p.DiskSize, 10)); err != nil {
		return fmt.Errorf("configure %s: %w", name, err)
	}
	r.Log.Debug("configured zram device", "device", name, "disksize", p.DiskSize,
		"algorithm", p.Algorithm, "streams", p.Streams, "backing_dev", p.BackingDev)
	return nil
}
