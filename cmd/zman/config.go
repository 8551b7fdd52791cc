package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sigreer/zman/internal/fault"
	"github.com/sigreer/zman/internal/genconf"
	"github.com/sigreer/zman/internal/orchestrator"
	"github.com/sigreer/zman/internal/report"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or edit the zram-generator configuration",
	Long: `Show or edit /etc/systemd/zram-generator.conf.

Edits keep every comment, blank line and untouched key exactly as they
were. The previous file is kept as a .bak copy unless backups are disabled
in the zman config.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the active configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")
		raw, _ := cmd.Flags().GetBool("raw")
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if raw {
			doc, _, err := a.store.Load()
			if err != nil {
				return err
			}
			fmt.Print(doc.String())
			return nil
		}
		sections, src, err := a.store.Sections()
		if err != nil {
			return err
		}
		if jsonOut {
			return report.PrintJSON(os.Stdout, map[string]any{"source": src, "sections": sections})
		}
		report.PrintSections(os.Stdout, src, sections)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <device>",
	Short: "Set or clear keys of a device section",
	Example: `  zman config set zram0 --size "min(ram / 2, 4096)" --algorithm zstd
  zman config set zram0 --host-memory-limit 0 --clear swap-priority
  zman config set zram1 --fs-type ext4 --mount-point /var/compressed`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")
		u, err := updateFromFlags(cmd)
		if err != nil {
			return err
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		opts, err := applyOptions(cmd, a.cfg.RestartMode)
		if err != nil {
			return err
		}
		return finishResult(a.orch.ApplyDeviceConfig(cmd.Context(), args[0], u, opts), jsonOut)
	},
}

var configDiffCmd = &cobra.Command{
	Use:   "diff <device>",
	Short: "Preview a device change as a unified diff without writing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		u, err := updateFromFlags(cmd)
		if err != nil {
			return err
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		rendered, err := a.store.UpdateDevice(args[0], u)
		if err != nil {
			return err
		}
		if !rendered.Changed() {
			fmt.Println("No changes.")
			return nil
		}
		fmt.Print(rendered.Diff())
		return nil
	},
}

var configRemoveCmd = &cobra.Command{
	Use:   "remove <device>",
	Short: "Stop a device's unit and remove its section",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		opts, err := applyOptions(cmd, string(orchestrator.RestartNone))
		if err != nil {
			return err
		}
		return finishResult(a.orch.RemoveDeviceConfig(cmd.Context(), args[0], opts), jsonOut)
	},
}

var configGlobalCmd = &cobra.Command{
	Use:   "global <key>=<value>...",
	Short: "Set keys of the [zram-generator] section; an empty value clears the key",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")
		patch, err := parseAssignments(args)
		if err != nil {
			return err
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		opts, err := applyOptions(cmd, string(orchestrator.RestartNone))
		if err != nil {
			return err
		}
		return finishResult(a.orch.ApplyGlobalConfig(cmd.Context(), patch, opts), jsonOut)
	},
}

// deviceKeyFlags maps update flags to generator keys.
var deviceKeyFlags = []struct {
	flag, key, usage string
}{
	{"size", genconf.KeySize, `zram-size, a size ("4G") or formula ("min(ram / 2, 4096)")`},
	{"algorithm", genconf.KeyAlgorithm, "compression-algorithm"},
	{"priority", genconf.KeySwapPriority, "swap-priority (-1..32767)"},
	{"writeback-device", genconf.KeyWritebackDevice, "writeback-device path"},
	{"resident-limit", genconf.KeyResidentLimit, "zram-resident-limit"},
	{"options", genconf.KeyOptions, "mount or swapon options"},
}

func addUpdateFlags(c *cobra.Command) {
	for _, f := range deviceKeyFlags {
		c.Flags().String(f.flag, "", f.usage)
	}
	c.Flags().Int("host-memory-limit", 0, "host-memory-limit in MiB; 0 clears it")
	c.Flags().String("fs-type", "", "filesystem type; requires --mount-point, empty clears both")
	c.Flags().String("mount-point", "", "mount point; requires --fs-type, empty clears both")
	c.Flags().StringSlice("clear", nil, "keys to remove from the section")
}

func updateFromFlags(cmd *cobra.Command) (genconf.DeviceUpdate, error) {
	var u genconf.DeviceUpdate
	fields := map[string]*genconf.Value{
		genconf.KeySize:            &u.Size,
		genconf.KeyAlgorithm:       &u.Algorithm,
		genconf.KeySwapPriority:    &u.SwapPriority,
		genconf.KeyWritebackDevice: &u.WritebackDevice,
		genconf.KeyHostMemoryLimit: &u.HostMemoryLimit,
		genconf.KeyResidentLimit:   &u.ResidentLimit,
		genconf.KeyOptions:         &u.Options,
		genconf.KeyFSType:          &u.FSType,
		genconf.KeyMountPoint:      &u.MountPoint,
	}

	flags := cmd.Flags()
	for _, f := range deviceKeyFlags {
		if flags.Changed(f.flag) {
			v, _ := flags.GetString(f.flag)
			*fields[f.key] = genconf.Set(v)
		}
	}
	if flags.Changed("host-memory-limit") {
		mib, _ := flags.GetInt("host-memory-limit")
		u.HostMemoryLimit = genconf.HostLimitMiB(mib)
	}
	if flags.Changed("fs-type") || flags.Changed("mount-point") {
		fsType, _ := flags.GetString("fs-type")
		mp, _ := flags.GetString("mount-point")
		u.FSType, u.MountPoint = genconf.Filesystem(fsType, mp)
	}

	cleared, _ := flags.GetStringSlice("clear")
	for _, key := range cleared {
		field, ok := fields[key]
		if !ok {
			return u, fault.Validation("unknown key %q", key)
		}
		if field.Op == genconf.OpSet {
			return u, fault.Validation("%s is both set and cleared", key)
		}
		*field = genconf.Clear()
	}
	return u, nil
}

func parseAssignments(args []string) (genconf.Patch, error) {
	var patch genconf.Patch
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fault.Validation("expected key=value, got %q", arg)
		}
		v := genconf.Set(strings.TrimSpace(value))
		if strings.TrimSpace(value) == "" {
			v = genconf.Clear()
		}
		patch = append(patch, genconf.Field{Key: key, Value: v})
	}
	return patch, nil
}

func applyOptions(cmd *cobra.Command, defaultRestart string) (orchestrator.ApplyOptions, error) {
	noReload, _ := cmd.Flags().GetBool("no-reload")
	restart, _ := cmd.Flags().GetString("restart")
	if restart == "" {
		restart = defaultRestart
	}
	mode, err := orchestrator.ParseRestartMode(restart)
	if err != nil {
		return orchestrator.ApplyOptions{}, err
	}
	return orchestrator.ApplyOptions{DaemonReload: !noReload, Restart: mode}, nil
}

func init() {
	configShowCmd.Flags().Bool("json", false, "Output as JSON")
	configShowCmd.Flags().Bool("raw", false, "print the file exactly as stored")

	addUpdateFlags(configSetCmd)
	addUpdateFlags(configDiffCmd)

	for _, c := range []*cobra.Command{configSetCmd, configRemoveCmd, configGlobalCmd} {
		c.Flags().Bool("json", false, "Output as JSON")
		c.Flags().Bool("no-reload", false, "skip systemctl daemon-reload")
	}
	configSetCmd.Flags().String("restart", "", "unit restart mode: none, try or force (default from config)")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configDiffCmd)
	configCmd.AddCommand(configRemoveCmd)
	configCmd.AddCommand(configGlobalCmd)
}
