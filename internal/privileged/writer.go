package privileged

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/sigreer/zman/internal/command"
	"github.com/sigreer/zman/internal/db"
	"github.com/sigreer/zman/internal/sysfs"
)

// Writer performs privileged mutations.
type Writer interface {
	WriteFile(ctx context.Context, path string, content []byte) (*sysfs.AtomicResult, error)
	DaemonReload(ctx context.Context) error
	Unit(ctx context.Context, action UnitAction, service string) error
}

// Journal records what a writer did. *db.DB implements it.
type Journal interface {
	RecordConfigWrite(w db.ConfigWrite) error
	RecordUnitOperation(op db.UnitOperation) error
}

// Local runs mutations in-process; the caller must already be root.
type Local struct {
	Run     command.Runner
	Backup  bool
	Journal Journal // optional
	Log     *slog.Logger
	// Root re-roots file writes, for tests and chroots. Allow-list checks
	// always apply to the unrooted path.
	Root string
}

func NewLocal(run command.Runner, backup bool, journal Journal, log *slog.Logger) *Local {
	if log == nil {
		log = slog.Default()
	}
	return &Local{Run: run, Backup: backup, Journal: journal, Log: log}
}

func (l *Local) WriteFile(ctx context.Context, path string, content []byte) (*sysfs.AtomicResult, error) {
	if err := CheckPath(path); err != nil {
		return nil, err
	}
	target := path
	if l.Root != "" {
		target = filepath.Join(l.Root, path)
	}

	res, err := sysfs.WriteFileAtomic(target, content, sysfs.AtomicOptions{Backup: l.Backup})
	if err != nil {
		return nil, err
	}
	res.Path = path
	if res.BackupPath != "" {
		res.BackupPath = path + sysfs.BackupSuffix
	}
	l.Log.Info("wrote config", "path", path, "changed", res.Changed, "backup", res.BackupPath)

	if l.Journal != nil {
		if jerr := l.Journal.RecordConfigWrite(db.ConfigWrite{
			OperationID: OperationFrom(ctx),
			Path:        path,
			Changed:     res.Changed,
			BackupPath:  res.BackupPath,
			Diff:        res.Diff,
		}); jerr != nil {
			l.Log.Warn("journal write failed", "err", jerr)
		}
	}
	return res, nil
}

func (l *Local) DaemonReload(ctx context.Context) error {
	_, err := l.Run.Run(ctx, "systemctl", "daemon-reload")
	l.record(ctx, "daemon-reload", "", err)
	if err != nil {
		return fmt.Errorf("daemon-reload failed: %w", err)
	}
	return nil
}

func (l *Local) Unit(ctx context.Context, action UnitAction, service string) error {
	if _, err := ParseUnitAction(string(action)); err != nil {
		return err
	}
	if err := CheckService(service); err != nil {
		return err
	}
	_, err := l.Run.Run(ctx, "systemctl", string(action), service)
	l.record(ctx, string(action), service, err)
	if err != nil {
		return fmt.Errorf("systemctl %s %s failed: %w", action, service, err)
	}
	return nil
}

func (l *Local) record(ctx context.Context, action, service string, err error) {
	if l.Journal == nil {
		return
	}
	op := db.UnitOperation{OperationID: OperationFrom(ctx), Action: action, Service: service, Success: err == nil}
	if err != nil {
		op.Message = err.Error()
	}
	if jerr := l.Journal.RecordUnitOperation(op); jerr != nil {
		l.Log.Warn("journal write failed", "err", jerr)
	}
}

// Delegated hands every mutation to the zman-helper binary through an
// escalation tool such as pkexec. Requests are checked here first so the
// user is not prompted for something the helper will refuse anyway.
type Delegated struct {
	Run        command.Runner
	Escalator  string // "" runs the helper directly
	HelperPath string
	Backup     bool
}

func (d *Delegated) argv(ctx context.Context, verb ...string) (string, []string) {
	args := []string{}
	if id := OperationFrom(ctx); id != "" {
		args = append(args, "--op", id)
	}
	if !d.Backup {
		args = append(args, "--no-backup")
	}
	args = append(args, verb...)
	if d.Escalator == "" {
		return d.HelperPath, args
	}
	return d.Escalator, append([]string{d.HelperPath}, args...)
}

func (d *Delegated) WriteFile(ctx context.Context, path string, content []byte) (*sysfs.AtomicResult, error) {
	if err := CheckPath(path); err != nil {
		return nil, err
	}
	name, args := d.argv(ctx, "write", path)
	out, err := d.Run.RunInput(ctx, content, name, args...)
	if err != nil {
		return nil, fmt.Errorf("helper write %s failed: %w", path, err)
	}
	var res sysfs.AtomicResult
	if err := json.Unmarshal([]byte(out.Stdout), &res); err != nil {
		return nil, fmt.Errorf("unexpected helper output: %w", err)
	}
	return &res, nil
}

func (d *Delegated) DaemonReload(ctx context.Context) error {
	name, args := d.argv(ctx, "daemon-reload")
	if _, err := d.Run.Run(ctx, name, args...); err != nil {
		return fmt.Errorf("helper daemon-reload failed: %w", err)
	}
	return nil
}

func (d *Delegated) Unit(ctx context.Context, action UnitAction, service string) error {
	if _, err := ParseUnitAction(string(action)); err != nil {
		return err
	}
	if err := CheckService(service); err != nil {
		return err
	}
	name, args := d.argv(ctx, string(action), service)
	if _, err := d.Run.Run(ctx, name, args...); err != nil {
		return fmt.Errorf("helper %s %s failed: %w", action, service, err)
	}
	return nil
}
