package orchestrator

import (
	"context"
	"fmt"

	"github.com/sigreer/zman/internal/fault"
	"github.com/sigreer/zman/internal/genconf"
	"github.com/sigreer/zman/internal/zram"
)

// WritebackOptions tunes EnsureWritebackState.
type WritebackOptions struct {
	// Force allows resetting a device that is swapped on or mounted.
	Force   bool
	Restart RestartMode
}

// EnsureWritebackState makes device's live backing device equal desired
// ("" for none). Size, algorithm and streams survive the reset.
//
// Calling it again with the same desired state is a no-op that only honors
// the restart mode.
func (o *Orchestrator) EnsureWritebackState(ctx context.Context, device, desired string, opts WritebackOptions) *Result {
	p := o.begin(ctx, "ensure-writeback", device)

	if err := genconf.ValidateDeviceName(device); err != nil {
		p.add("validate-device", err, "")
		return p.finish("validation failed")
	}
	if desired != "" {
		if err := o.Probe.CheckBackingDevice(p.ctx, desired); err != nil {
			p.add("validate-writeback-device", err, "")
			return p.finish("validation failed")
		}
	}

	if !o.acquire(p) {
		return p.finish("could not lock")
	}
	defer o.release(p)

	state := o.Kernel.State(device)
	if state == zram.Missing {
		if desired == "" {
			p.add("noop-no-device", nil, "device does not exist and no writeback desired")
			return p.finish("no changes required")
		}
		if !p.add("create-device", o.Kernel.EnsureExists(p.ctx, device), "hot-added "+device) {
			return p.finish("failed to create device")
		}
		state = o.Kernel.State(device)
	}

	live := o.Kernel.Snapshot(device)
	if live.BackingDev == desired {
		p.add("noop-already-desired", nil, fmt.Sprintf("backing_dev already '%s'", orNone(desired)))
		o.restart(p, device, opts.Restart)
		return p.finish("no changes required")
	}

	usage := o.Probe.Usage(zram.DevPath(device))
	if usage.Active() && !opts.Force {
		p.add("precondition", fault.Validation("%s is active (%s); use force to recreate", device, usage), "")
		return p.finish("refusing to reconfigure an active device")
	}

	params, err := o.preserveParams(device, live)
	if !p.add("preserve-params", err, describeParams(params)) {
		return p.finish("failed to determine device parameters")
	}
	params.BackingDev = desired

	if usage.Active() {
		if !p.add("deactivate", o.Probe.Deactivate(p.ctx, zram.DevPath(device), usage), "released "+usage.String()) {
			return p.finish("failed to deactivate device")
		}
	}

	if state == zram.Configured {
		if !p.add("reset", o.Kernel.Reset(device), "reset via sysfs") {
			return p.finish("failed to reset device")
		}
	}

	if !p.add("configure", o.Kernel.Configure(device, params), fmt.Sprintf("backing_dev=%s %s", orNone(desired), describeParams(params))) {
		return p.finish("failed to apply live changes")
	}

	o.restart(p, device, opts.Restart)
	return p.finish("writeback updated")
}

// preserveParams picks the parameters to restore after reset: the live
// device first, then the configured zram-size and compression-algorithm,
// then DefaultSize. An unconfigured device only reports kernel defaults, so
// the document wins over its algorithm.
func (o *Orchestrator) preserveParams(device string, live zram.Params) (zram.Params, error) {
	params := live
	if params.DiskSize > 0 {
		return params, nil
	}

	expr := o.DefaultSize
	if o.Store != nil {
		if v, ok, err := o.Store.DeviceValue(device, genconf.KeySize); err == nil && ok {
			expr = v
		}
		if v, ok, err := o.Store.DeviceValue(device, genconf.KeyAlgorithm); err == nil && ok {
			params.Algorithm = v
		}
	}

	ram, _ := o.Probe.MemTotal()
	size, err := genconf.EvaluateSize(expr, ram)
	if err != nil {
		return params, err
	}
	params.DiskSize = size
	return params, nil
}

func describeParams(p zram.Params) string {
	algo := p.Algorithm
	if algo == "" {
		algo = "default"
	}
	streams := "default"
	if p.Streams > 0 {
		streams = fmt.Sprint(p.Streams)
	}
	return fmt.Sprintf("disksize=%d algorithm=%s streams=%s", p.DiskSize, algo, streams)
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

// WritebackStatus returns the live view of device, including its backing
// device and bd_stat counters.
func (o *Orchestrator) WritebackStatus(device string) (*zram.Device, error) {
	if err := genconf.ValidateDeviceName(device); err != nil {
		return nil, err
	}
	dev, state := o.Discover.Inspect(device)
	if state == zram.Missing {
		return nil, fault.Validation("%s does not exist", device)
	}
	return dev, nil
}
