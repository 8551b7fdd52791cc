package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// SysfsRoot prefixes every /sys and /proc path; "/" on a live system.
	SysfsRoot string `yaml:"sysfs_root"`
	// HelperPath is the zman-helper binary used when not running as root.
	HelperPath string `yaml:"helper_path"`
	Escalator  string `yaml:"escalator"`
	// Backup keeps a .bak copy of each document before it is replaced.
	Backup      *bool  `yaml:"backup,omitempty"`
	DefaultSize string `yaml:"default_size"`
	RestartMode string `yaml:"restart_mode"`
	LockDir     string `yaml:"lock_dir"`
	// HistoryDB overrides the journal database path.
	HistoryDB      string   `yaml:"history_db"`
	LogLevel       string   `yaml:"log_level"`
	GeneratorPaths []string `yaml:"generator_paths,omitempty"`
}

var defaultConfig = Config{
	SysfsRoot:   "/",
	HelperPath:  "/usr/libexec/zman/zman-helper",
	Escalator:   "pkexec",
	DefaultSize: "1G",
	RestartMode: "try",
	LockDir:     "/run/lock",
	LogLevel:    "info",
}

// Candidates are searched in order when Load is given no path.
func Candidates() []string {
	return []string{
		"/etc/zman/config.yaml",
		filepath.Join(os.Getenv("HOME"), ".config/zman/config.yaml"),
		"config.yaml",
	}
}

// Default returns the built-in settings.
func Default() *Config {
	cfg := defaultConfig
	cfg.applyDefaults()
	return &cfg
}

func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		for _, c := range Candidates() {
			if _, err := os.Stat(c); err == nil {
				path = c
				break
			}
		}
	}

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if explicit {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.SysfsRoot == "" {
		c.SysfsRoot = defaultConfig.SysfsRoot
	}
	if c.HelperPath == "" {
		c.HelperPath = defaultConfig.HelperPath
	}
	if c.Escalator == "" {
		c.Escalator = defaultConfig.Escalator
	}
	if c.Backup == nil {
		b := true
		c.Backup = &b
	}
	if c.DefaultSize == "" {
		c.DefaultSize = defaultConfig.DefaultSize
	}
	if c.RestartMode == "" {
		c.RestartMode = defaultConfig.RestartMode
	}
	if c.LockDir == "" {
		c.LockDir = defaultConfig.LockDir
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultConfig.LogLevel
	}
}

// BackupEnabled reports the effective backup setting.
func (c *Config) BackupEnabled() bool {
	return c.Backup == nil || *c.Backup
}
