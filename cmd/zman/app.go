package main

import (
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"

	"github.com/sigreer/zman/internal/cache"
	"github.com/sigreer/zman/internal/command"
	"github.com/sigreer/zman/internal/config"
	"github.com/sigreer/zman/internal/db"
	"github.com/sigreer/zman/internal/genconf"
	"github.com/sigreer/zman/internal/health"
	"github.com/sigreer/zman/internal/lock"
	"github.com/sigreer/zman/internal/orchestrator"
	"github.com/sigreer/zman/internal/privileged"
	"github.com/sigreer/zman/internal/probe"
	"github.com/sigreer/zman/internal/report"
	"github.com/sigreer/zman/internal/sysfs"
	"github.com/sigreer/zman/internal/zram"
)

// app holds everything a command needs, built from the settings file.
type app struct {
	cfg   *config.Config
	log   *slog.Logger
	run   command.Runner
	fs    sysfs.FS
	probe *probe.Prober
	disc  *zram.Discoverer
	store *genconf.Store
	orch  *orchestrator.Orchestrator
	db    *db.DB // nil when the journal could not be opened
}

func newApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	log, err := newLogger(level)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log, run: command.Exec{}}
	a.fs = sysfs.NewOS(cfg.SysfsRoot)
	a.probe = probe.New(a.fs, a.run, cache.New(), log)
	a.disc = &zram.Discoverer{FS: a.fs, Usage: func(dev string) string { return a.probe.Usage(dev).String() }}
	a.store = genconf.NewStore(cfg.GeneratorPaths)

	var writer privileged.Writer
	if unix.Geteuid() == 0 {
		local := privileged.NewLocal(a.run, cfg.BackupEnabled(), nil, log)
		if a.db = openJournal(cfg, log); a.db != nil {
			local.Journal = a.db
		}
		writer = local
	} else {
		writer = &privileged.Delegated{
			Run:        a.run,
			Escalator:  cfg.Escalator,
			HelperPath: cfg.HelperPath,
			Backup:     cfg.BackupEnabled(),
		}
	}

	a.orch = orchestrator.New(orchestrator.Deps{
		Kernel:      zram.NewReconfigurator(a.fs, a.run, log),
		Discover:    a.disc,
		Probe:       a.probe,
		Store:       a.store,
		Writer:      writer,
		Lock:        lock.New(cfg.LockDir),
		Log:         log,
		DefaultSize: cfg.DefaultSize,
	})
	return a, nil
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}

func (a *app) health() *health.Checker {
	return health.New(a.fs, a.run, a.probe, a.disc)
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}

func journalPath(cfg *config.Config) string {
	if cfg.HistoryDB != "" {
		return cfg.HistoryDB
	}
	return db.DefaultPath
}

// openJournal opens the history database; zman keeps working without it.
func openJournal(cfg *config.Config, log *slog.Logger) *db.DB {
	d, err := db.New(journalPath(cfg))
	if err != nil {
		log.Warn("could not open history database", "path", journalPath(cfg), "err", err)
		return nil
	}
	return d
}

// finishResult prints r and turns a failed operation into an error so the
// exit status reflects it.
func finishResult(r *orchestrator.Result, jsonOut bool) error {
	if jsonOut {
		if err := report.PrintJSON(os.Stdout, r); err != nil {
			return err
		}
	} else {
		report.PrintResult(os.Stdout, r)
	}
	if r.Success {
		return nil
	}
	if r.Err != nil {
		return reported{r.Err}
	}
	return reported{fmt.Errorf("%s", r.Message)}
}

// reported wraps an error that was already shown to the user.
type reported struct{ err error }

func (r reported) Error() string { return r.err.Error() }
func (r reported) Unwrap() error { return r.err }
