// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"

	"ephys/internal/config"
	"ephys/internal/processor"
	"ephys/internal/processors"
	"ephys/internal/session"
	"ephys/internal/source"
	"ephys/internal/tui"
)

var (
	nameColor   = color.New(color.FgGreen, color.Bold)
	activeColor = color.New(color.FgYellow)
	dimColor    = color.New(color.Faint)
)

// Execute runs a one-off command.
func Execute(w io.Writer, opts *Options) error {
	cfg := opts.Config
	switch cfg.Command {
	case CommandList:
		reg := processor.NewRegistry()
		if err := processors.RegisterAll(reg, processors.Deps{Settings: processors.Static(cfg.Processor)}); err != nil {
			return err
		}
		ListProcessors(w, reg, cfg.Processor.Name)
		return nil
	case CommandSessions:
		return ListSessions(w, cfg.Recording.SessionDB)
	case CommandDevices:
		return Devices(w, opts.PickDevice)
	}
	return fmt.Errorf("unknown command %q", cfg.Command)
}

// ListProcessors prints every registered processor, marking the
// configured one.
func ListProcessors(w io.Writer, reg *processor.Registry, current string) {
	fmt.Fprintf(w, "\nRegistered Processors\n\n")
	for _, name := range reg.Names() {
		nameColor.Fprintf(w, "  %s", name)
		if name == current {
			activeColor.Fprint(w, " (configured)")
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w)
}

// ListSessions prints the sessions recorded in the index at path.
func ListSessions(w io.Writer, path string) error {
	if !fileExists(path) {
		fmt.Fprintf(w, "No session index at %s\n", path)
		return nil
	}
	store, err := session.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	sessions, err := store.List()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "\nRecorded Sessions (%d)\n\n", len(sessions))
	for _, s := range sessions {
		nameColor.Fprintf(w, "%s", s.ID)
		fmt.Fprintf(w, "  %s\n", s.Dir)
		fmt.Fprintf(w, "    Processor: %s\n", s.Processor)
		fmt.Fprintf(w, "    Started:   %s\n", s.StartedAt.Format(time.RFC3339))
		if s.Active() {
			activeColor.Fprintf(w, "    Active\n")
		} else {
			fmt.Fprintf(w, "    Duration:  %s (%d buffers)\n", s.StoppedAt.Sub(s.StartedAt).Round(time.Millisecond), s.Buffers)
		}
		fmt.Fprintln(w)
	}
	return nil
}

// Devices prints the PortAudio device table, or runs the interactive
// picker and prints the matching configuration.
func Devices(w io.Writer, pick bool) error {
	if err := source.Initialize(); err != nil {
		return err
	}
	defer source.Terminate()

	if pick {
		sel, err := tui.PickDevice(source.Devices)
		if err != nil {
			return err
		}
		if sel == nil {
			dimColor.Fprintln(w, "No device selected.")
			return nil
		}
		fmt.Fprintf(w, "# %s\n%s", sel.Name, sel.YAML())
		return nil
	}

	devices, err := source.Devices()
	if err != nil {
		return err
	}
	source.ListDevices(w, devices)
	dimColor.Fprintf(w, "Use the device ID as acquisition.input_device (%d selects the system default).\n", config.MinDeviceID)
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
