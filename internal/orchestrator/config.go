package orchestrator

import (
	"context"
	"fmt"

	"github.com/sigreer/zman/internal/genconf"
	"github.com/sigreer/zman/internal/privileged"
)

// ApplyOptions controls what happens after the document is written.
type ApplyOptions struct {
	DaemonReload bool
	Restart      RestartMode
}

// ApplyDeviceConfig merges u into device's section, writes the document and
// optionally reloads systemd and restarts the device unit. The failing
// stage, if any, is the last action in the log.
func (o *Orchestrator) ApplyDeviceConfig(ctx context.Context, device string, u genconf.DeviceUpdate, opts ApplyOptions) *Result {
	p := o.begin(ctx, "apply-device-config", device)
	if !o.acquire(p) {
		return p.finish("could not lock")
	}
	defer o.release(p)

	if !o.commit(p, func() (*genconf.Rendered, error) { return o.Store.UpdateDevice(device, u) }, opts.DaemonReload) {
		return p.finish("config update failed")
	}
	o.restart(p, device, opts.Restart)
	return p.finish("config applied")
}

// PersistWriteback records the writeback device for boot and, when
// applyNow is set, reconciles the live device as well.
func (o *Orchestrator) PersistWriteback(ctx context.Context, device, backing string, applyNow bool, wb WritebackOptions) *Result {
	p := o.begin(ctx, "persist-writeback", device)
	if backing != "" {
		if err := o.Probe.CheckBackingDevice(p.ctx, backing); err != nil {
			p.add("validate-writeback-device", err, "")
			return p.finish("validation failed")
		}
	}
	if !o.acquire(p) {
		return p.finish("could not lock")
	}
	defer o.release(p)

	if !o.commit(p, func() (*genconf.Rendered, error) { return o.Store.UpdateWriteback(device, backing) }, true) {
		return p.finish("config update failed")
	}
	if !applyNow {
		return p.finish("writeback persisted; applies on next boot")
	}

	// The nested acquire stacks on this hold, so the device cannot change
	// hands between the config and live stages.
	live := o.EnsureWritebackState(p.ctx, device, backing, wb)
	p.res.Actions = append(p.res.Actions, live.Actions...)
	if !live.Success {
		if live.Err != nil {
			p.fail(live.Err)
		}
		return p.finish("writeback persisted but live update failed")
	}
	return p.finish("writeback persisted and applied")
}

// ApplyGlobalConfig merges patch into the [zram-generator] section.
func (o *Orchestrator) ApplyGlobalConfig(ctx context.Context, patch genconf.Patch, opts ApplyOptions) *Result {
	p := o.begin(ctx, "apply-global-config", "")
	if !o.acquire(p) {
		return p.finish("could not lock")
	}
	defer o.release(p)

	if !o.commit(p, func() (*genconf.Rendered, error) { return o.Store.UpdateGlobal(patch) }, opts.DaemonReload) {
		return p.finish("config update failed")
	}
	return p.finish("config applied")
}

// RemoveDeviceConfig stops device's unit and then drops its section, so the
// document never lists a device whose unit is left running unmanaged.
func (o *Orchestrator) RemoveDeviceConfig(ctx context.Context, device string, opts ApplyOptions) *Result {
	p := o.begin(ctx, "remove-device-config", device)
	if err := genconf.ValidateDeviceName(device); err != nil {
		p.add("validate-device", err, "")
		return p.finish("validation failed")
	}
	if !o.acquire(p) {
		return p.finish("could not lock")
	}
	defer o.release(p)

	if err := o.Writer.Unit(p.ctx, privileged.Stop, privileged.UnitName(device)); err != nil {
		p.add("stop-unit", nil, "stop failed (ignored): "+err.Error())
	} else {
		p.add("stop-unit", nil, "stopped "+privileged.UnitName(device))
	}

	if !o.commit(p, func() (*genconf.Rendered, error) { return o.Store.RemoveDevice(device) }, opts.DaemonReload) {
		return p.finish("config update failed")
	}
	return p.finish("device removed from config")
}

// commit runs the update-config, write-config and daemon-reload stages.
func (o *Orchestrator) commit(p *op, update func() (*genconf.Rendered, error), reload bool) bool {
	rendered, err := update()
	if !p.add("update-config", err, "rendered "+renderedSummary(rendered)) {
		return false
	}

	if !rendered.Changed() {
		p.add("write-config", nil, "no changes")
	} else {
		res, err := o.Writer.WriteFile(p.ctx, rendered.Target, []byte(rendered.After))
		msg := ""
		if err == nil {
			msg = "wrote " + res.Path
			if res.BackupPath != "" {
				msg += " (backup " + res.BackupPath + ")"
			}
			if !res.Changed {
				msg = res.Path + " already up to date"
			}
		}
		if !p.add("write-config", err, msg) {
			return false
		}
	}

	if reload {
		if !p.add("daemon-reload", o.Writer.DaemonReload(p.ctx), "systemd reloaded") {
			return false
		}
	}
	return true
}

func renderedSummary(r *genconf.Rendered) string {
	if r == nil {
		return ""
	}
	if !r.Changed() {
		return r.Target + " (unchanged)"
	}
	return fmt.Sprintf("%s (%d -> %d bytes)", r.Target, len(r.Before), len(r.After))
}
