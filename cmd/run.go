// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"ephys/internal/config"
	"ephys/internal/host"
	applog "ephys/internal/log"
	"ephys/internal/processor"
	"ephys/internal/processors"
	"ephys/internal/session"
	"ephys/internal/source"
	"ephys/internal/transport"
	"ephys/internal/transport/udp"
	"ephys/internal/tui"
)

// sessionDirFormat names recording directories under the base dir.
const sessionDirFormat = "2006-01-02_15-04-05"

// Runner assembles and runs the processor host.
type Runner struct {
	configPath string

	mu  sync.Mutex
	cfg *config.Config

	Registry  *processor.Registry
	Node      *host.Node
	transport transport.Transport
	publisher *udp.Publisher
	store     *session.Store
	source    source.Source
	watcher   *config.Watcher
	portaudio bool
	now       func() time.Time

	overrides func(*config.Config) // Reapplied to reloaded configurations.
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithOverrides applies fn to every configuration loaded by hot reload, so
// command line flags keep precedence over the file.
func WithOverrides(fn func(*config.Config)) RunnerOption {
	return func(r *Runner) { r.overrides = fn }
}

// NewRunner builds transports, the registry, the session index and the
// host node from cfg. Nothing runs until Run is called.
func NewRunner(cfg *config.Config, configPath string, opts ...RunnerOption) (*Runner, error) {
	r := &Runner{configPath: configPath, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.build(); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func (r *Runner) build() (err error) {
	cfg := r.cfg

	if r.transport, err = r.buildTransport(); err != nil {
		return err
	}

	r.Registry = processor.NewRegistry()
	if err = processors.RegisterAll(r.Registry, processors.Deps{
		Settings:  r.processorSettings,
		Transport: r.transport,
	}); err != nil {
		return err
	}

	var opts []host.Option
	if cfg.Recording.SessionDB != "" {
		if r.store, err = session.Open(cfg.Recording.SessionDB); err != nil {
			return fmt.Errorf("failed to open session index: %w", err)
		}
		opts = append(opts, host.WithSessionIndex(r.store))
	}
	r.Node = host.NewNode(r.Registry, opts...)

	if err = r.Node.UpdateSettings(source.Streams(cfg.Acquisition)); err != nil {
		return err
	}
	return r.Node.SetProcessor(cfg.Processor.Name)
}

func (r *Runner) processorSettings() config.ProcessorConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg.Processor
}

func (r *Runner) buildTransport() (transport.Transport, error) {
	tc := r.cfg.Transport
	var multi transport.Multi

	if tc.WebSocketEnabled {
		ws, err := transport.NewWebSocketTransport(tc.WebSocketAddr)
		if err != nil {
			return nil, err
		}
		multi = append(multi, ws)
	}
	if tc.UDPEnabled {
		sender, err := udp.NewSender(tc.UDPTargetAddress)
		if err != nil {
			multi.Close()
			return nil, err
		}
		pub, err := udp.NewPublisher(tc.UDPSendInterval, sender)
		if err != nil {
			sender.Close()
			multi.Close()
			return nil, err
		}
		r.publisher = pub
		multi = append(multi, pub)
	}

	switch len(multi) {
	case 0:
		return transport.NewLoggingTransport(), nil
	case 1:
		return multi[0], nil
	}
	return multi, nil
}

// Run starts acquisition and blocks until ctx is cancelled or, with the
// monitor enabled, until the user quits.
func (r *Runner) Run(ctx context.Context) error {
	cfg := r.config()

	if cfg.Acquisition.Source == config.SourcePortAudio {
		if err := source.Initialize(); err != nil {
			return err
		}
		r.portaudio = true
	}

	src, err := source.New(cfg.Acquisition, r.Node)
	if err != nil {
		return err
	}
	r.source = src

	if err := r.Node.StartAcquisition(); err != nil {
		return err
	}
	if cfg.Recording.Enabled {
		if err := r.StartRecording(); err != nil {
			return err
		}
	}
	if r.publisher != nil {
		r.publisher.Start()
	}
	if err := src.Start(ctx); err != nil {
		return err
	}

	if r.configPath != "" {
		w, err := config.Watch(r.configPath, config.DefaultDebounce, r.applyConfig)
		if err != nil {
			applog.Warnf("Host: config hot reload disabled: %v", err)
		} else {
			r.watcher = w
		}
	}

	if cfg.Monitor {
		return tui.RunMonitor(tui.MonitorActions{
			Stats:           r.Node.Stats,
			Reload:          r.Node.Reload,
			ToggleRecording: r.ToggleRecording,
		})
	}

	<-ctx.Done()
	return nil
}

func (r *Runner) config() *config.Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// StartRecording opens a new timestamped session directory.
func (r *Runner) StartRecording() error {
	dir := filepath.Join(r.config().Recording.BaseDir, r.now().Format(sessionDirFormat))
	return r.Node.StartRecording(dir)
}

// ToggleRecording starts or stops recording.
func (r *Runner) ToggleRecording() error {
	if r.Node.Stats().Recording {
		return r.Node.StopRecording()
	}
	return r.StartRecording()
}

// applyConfig is the hot reload callback. Processor changes take effect
// immediately; acquisition and transport changes need a restart.
func (r *Runner) applyConfig(next *config.Config) {
	r.mu.Lock()
	prev := r.cfg
	next.Monitor = prev.Monitor
	next.Command = prev.Command
	if r.overrides != nil {
		r.overrides(next)
		if err := next.Validate(); err != nil {
			r.mu.Unlock()
			applog.Errorf("Host: ignoring reloaded configuration: %v", err)
			return
		}
	}
	r.cfg = next
	r.mu.Unlock()

	if next.Processor.Name != prev.Processor.Name {
		if err := r.Node.SetProcessor(next.Processor.Name); err != nil {
			applog.Errorf("Host: failed to switch processor: %v", err)
		}
	} else if !reflect.DeepEqual(next.Processor, prev.Processor) {
		if err := r.Node.Reload(); err != nil {
			applog.Errorf("Host: failed to reload processor: %v", err)
		}
	}

	if !reflect.DeepEqual(prev.Acquisition, next.Acquisition) || prev.Transport != next.Transport {
		applog.Warnf("Host: acquisition and transport changes apply on restart")
	}
}

// Close stops every component in reverse start order.
func (r *Runner) Close() error {
	var errs []error
	if r.watcher != nil {
		errs = append(errs, r.watcher.Close())
	}
	if r.source != nil {
		errs = append(errs, r.source.Stop())
	}
	if r.Node != nil {
		errs = append(errs, r.Node.Close())
	}
	if r.transport != nil {
		errs = append(errs, r.transport.Close())
	}
	if r.store != nil {
		errs = append(errs, r.store.Close())
	}
	if r.portaudio {
		errs = append(errs, source.Terminate())
		r.portaudio = false
	}
	return errors.Join(errs...)
}
