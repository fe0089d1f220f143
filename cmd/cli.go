// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"ephys/internal/config"
	"ephys/pkg/build"
)

// One-off commands that do not start the host.
const (
	CommandList     = "list"
	CommandDevices  = "devices"
	CommandSessions = "sessions"
)

// Options is the parsed command line.
type Options struct {
	Config     *config.Config
	ConfigPath string // Empty when the built-in defaults are used.
	PickDevice bool   // devices --pick

	// Overrides applies the command line flags to a configuration. The
	// runner calls it on every hot reloaded configuration.
	Overrides func(*config.Config)
}

type flagValues struct {
	configPath string
	processor  string
	outputDir  string
	record     bool
	verbose    bool
	monitor    bool
	pick       bool
}

// ParseArgs parses args and loads the configuration. It returns nil options
// when nothing should run, for example after --help or --version.
func ParseArgs(args []string) (*Options, error) {
	buildInfo := build.Get()
	var (
		flags   flagValues
		options *Options
	)

	load := func(cmd *cobra.Command, command string) error {
		path := flags.configPath
		cfg, err := config.LoadConfig(path)
		if err != nil {
			return err
		}
		overrides := flagOverrides(cmd, flags)
		if err := applyFlags(cfg, overrides); err != nil {
			return err
		}
		cfg.Command = command
		if path == "" && fileExists(config.DefaultPath) {
			path = config.DefaultPath
		}
		options = &Options{Config: cfg, ConfigPath: path, PickDevice: flags.pick, Overrides: overrides}
		return nil
	}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         "Host for pluggable electrophysiology signal processors",
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return load(cmd, "")
		},
	}
	rootCmd.SetVersionTemplate(buildInfo.String() + "\n")

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   CommandList,
			Short: "List registered processors",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return load(cmd, CommandList)
			},
		},
		&cobra.Command{
			Use:   CommandSessions,
			Short: "List recorded sessions from the session index",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return load(cmd, CommandSessions)
			},
		},
	)

	devicesCmd := &cobra.Command{
		Use:   CommandDevices,
		Short: "List available PortAudio input devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return load(cmd, CommandDevices)
		},
	}
	devicesCmd.Flags().BoolVar(&flags.pick, "pick", false,
		"Choose a device interactively and print its configuration")
	rootCmd.AddCommand(devicesCmd)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "",
		fmt.Sprintf("Path to the YAML configuration (default ./%s when present)", config.DefaultPath))
	pf.StringVarP(&flags.processor, "processor", "p", config.DefaultProcessor,
		"Processor to load. Use 'list' command to see registered processors.")
	pf.BoolVarP(&flags.record, "record", "r", false,
		"Start recording as soon as acquisition starts")
	pf.StringVarP(&flags.outputDir, "output-dir", "o", config.DefaultRecordingDir,
		"Base directory for recording sessions")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false,
		"Show verbose output")
	pf.BoolVarP(&flags.monitor, "monitor", "m", false,
		"Show the live terminal monitor")

	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	return options, nil
}

// flagOverrides captures the flags set on the command line so they can be
// applied to the loaded file and to every later reload of it.
func flagOverrides(cmd *cobra.Command, f flagValues) func(*config.Config) {
	changed := cmd.Flags().Changed
	processorSet := changed("processor")
	recordSet := changed("record")
	outputSet := changed("output-dir")

	return func(cfg *config.Config) {
		if processorSet {
			cfg.Processor.Name = f.processor
		}
		if recordSet {
			cfg.Recording.Enabled = f.record
		}
		if outputSet {
			cfg.Recording.BaseDir = f.outputDir
		}
		if f.verbose {
			cfg.Debug = true
			cfg.LogLevel = "debug"
		}
		cfg.Monitor = f.monitor
	}
}

// applyFlags overrides file values with flags set on the command line.
func applyFlags(cfg *config.Config, overrides func(*config.Config)) error {
	overrides(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
