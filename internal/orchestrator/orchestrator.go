// Package orchestrator exposes the top-level zman operations. Each call
// returns a Result with an ordered action log instead of a bare error, so
// front-ends can always show how far an operation got.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/sigreer/zman/internal/fault"
	"github.com/sigreer/zman/internal/genconf"
	"github.com/sigreer/zman/internal/privileged"
	"github.com/sigreer/zman/internal/probe"
	"github.com/sigreer/zman/internal/zram"
)

// RestartMode controls the unit restart at the end of an operation.
type RestartMode string

const (
	RestartNone  RestartMode = "none"
	RestartTry   RestartMode = "try"
	RestartForce RestartMode = "force"
)

// ParseRestartMode accepts none, try and force.
func ParseRestartMode(s string) (RestartMode, error) {
	switch m := RestartMode(s); m {
	case RestartNone, RestartTry, RestartForce:
		return m, nil
	}
	return "", fault.Validation("unknown restart mode %q (want none, try or force)", s)
}

// Action is one step of an operation.
type Action struct {
	Name    string `json:"name"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Result is what every operation returns.
type Result struct {
	Success     bool     `json:"success"`
	Device      string   `json:"device,omitempty"`
	Message     string   `json:"message"`
	Actions     []Action `json:"actions"`
	OperationID string   `json:"operation_id"`

	// Err is the first failure, for classification with fault.Is.
	Err error `json:"-"`
}

// Locker serializes mutating operations.
type Locker interface {
	Acquire() error
	Release() error
}

// Orchestrator wires the kernel, probes, config store and privileged
// writer together.
type Orchestrator struct {
	Kernel   *zram.Reconfigurator
	Discover *zram.Discoverer
	Probe    *probe.Prober
	Store    *genconf.Store
	Writer   privileged.Writer
	Lock     Locker // optional
	Log      *slog.Logger

	// DefaultSize is used when a device must be configured and neither the
	// live device nor the config document provides a size.
	DefaultSize string

	newID func() string
}

// Deps are the collaborators New needs.
type Deps struct {
	Kernel      *zram.Reconfigurator
	Discover    *zram.Discoverer
	Probe       *probe.Prober
	Store       *genconf.Store
	Writer      privileged.Writer
	Lock        Locker
	Log         *slog.Logger
	DefaultSize string
}

func New(d Deps) *Orchestrator {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	size := d.DefaultSize
	if size == "" {
		size = "1G"
	}
	return &Orchestrator{
		Kernel:      d.Kernel,
		Discover:    d.Discover,
		Probe:       d.Probe,
		Store:       d.Store,
		Writer:      d.Writer,
		Lock:        d.Lock,
		Log:         log,
		DefaultSize: size,
		newID:       func() string { return uuid.NewString() },
	}
}

// op tracks one running operation.
type op struct {
	ctx context.Context
	res *Result
	log *slog.Logger
}

// begin starts an operation. A nested operation keeps the caller's ID.
func (o *Orchestrator) begin(ctx context.Context, name, device string) *op {
	id := privileged.OperationFrom(ctx)
	if id == "" {
		id = o.newID()
	}
	log := o.Log.With("op", id, "operation", name)
	if device != "" {
		log = log.With("device", device)
	}
	log.Debug("operation started")
	return &op{
		ctx: privileged.WithOperation(ctx, id),
		res: &Result{Device: device, OperationID: id},
		log: log,
	}
}

// add appends an action and reports whether it succeeded.
func (p *op) add(name string, err error, msg string) bool {
	if err != nil {
		p.res.Actions = append(p.res.Actions, Action{Name: name, Success: false, Message: err.Error()})
		if p.res.Err == nil {
			p.res.Err = err
		}
		p.log.Warn("step failed", "step", name, "err", err)
		return false
	}
	p.res.Actions = append(p.res.Actions, Action{Name: name, Success: true, Message: msg})
	p.log.Info("step done", "step", name, "detail", msg)
	return true
}

// fail records a failure that is not tied to a named step.
func (p *op) fail(err error) {
	if p.res.Err == nil {
		p.res.Err = err
	}
}

func (p *op) finish(msg string) *Result {
	ok := p.res.Err == nil
	for _, a := range p.res.Actions {
		ok = ok && a.Success
	}
	p.res.Success = ok
	p.res.Message = msg
	if !ok && p.res.Err != nil {
		p.res.Message = fmt.Sprintf("%s: %v", msg, p.res.Err)
	}
	p.log.Debug("operation finished", "success", ok)
	return p.res
}

func (o *Orchestrator) acquire(p *op) bool {
	if o.Lock == nil {
		return true
	}
	if err := o.Lock.Acquire(); err != nil {
		p.add("lock", err, "")
		return false
	}
	return true
}

func (o *Orchestrator) release(p *op) {
	if o.Lock == nil {
		return
	}
	if err := o.Lock.Release(); err != nil {
		p.log.Warn("failed to release lock", "err", err)
	}
}

// restart honors mode for device's setup unit. none records nothing; try
// never fails the operation; force does.
func (o *Orchestrator) restart(p *op, device string, mode RestartMode) {
	name := "restart(" + string(mode) + ")"
	switch mode {
	case RestartNone, "":
		return
	case RestartTry:
		if err := o.Writer.Unit(p.ctx, privileged.Restart, privileged.UnitName(device)); err != nil {
			p.add(name, nil, "restart failed (ignored): "+err.Error())
			return
		}
		p.add(name, nil, "restarted")
	case RestartForce:
		err := o.Writer.Unit(p.ctx, privileged.Restart, privileged.UnitName(device))
		p.add(name, err, "restarted")
	default:
		p.add(name, fault.Validation("unknown restart mode %q", mode), "")
	}
}
