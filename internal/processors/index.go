// SPDX-License-Identifier: MIT

// Package processors wires the bundled processors into a registry.
package processors

import (
	"fmt"

	"ephys/internal/config"
	"ephys/internal/processor"
	"ephys/internal/processors/burst"
	"ephys/internal/processors/gate"
	"ephys/internal/processors/spectrum"
	"ephys/internal/processors/wavrecorder"
	"ephys/internal/transport"
)

// Deps carries what the bundled processors need from the host.
type Deps struct {
	// Settings returns the current processor settings. It is read each time
	// an instance is built, so a reload picks up changed values. Nil uses
	// the defaults.
	Settings  func() config.ProcessorConfig
	Transport transport.Transport // Destination for spectrum frames; nil logs them.
}

func (d Deps) settings() config.ProcessorConfig {
	if d.Settings == nil {
		return config.NewConfig().Processor
	}
	return d.Settings()
}

// Static returns a Settings func that always yields pc.
func Static(pc config.ProcessorConfig) func() config.ProcessorConfig {
	return func() config.ProcessorConfig { return pc }
}

func (d Deps) spectrumOptions() (spectrum.Options, error) {
	pc := d.settings()
	win := spectrum.Hann
	if pc.FFTWindow != "" {
		w, err := spectrum.ParseWindowFunc(pc.FFTWindow)
		if err != nil {
			return spectrum.Options{}, fmt.Errorf("%w: %v", processor.ErrInvalidSettings, err)
		}
		win = w
	}
	return spectrum.Options{
		FFTSize:   pc.FFTSize,
		Window:    win,
		Channel:   pc.FFTChannel,
		Transport: d.Transport,
	}, nil
}

func (d Deps) gateOptions() (gate.Options, error) {
	pc := d.settings()
	opts := gate.Options{Threshold: pc.GateThreshold}
	if l := pc.GateControlLine; l != nil {
		if *l < 0 || *l > config.MaxTTLLine {
			return gate.Options{}, fmt.Errorf("%w: gate control line %d", processor.ErrInvalidSettings, *l)
		}
		line := uint8(*l)
		opts.ControlLine = &line
	}
	return opts, nil
}

func (d Deps) burstOptions() (burst.Options, error) {
	pc := d.settings()
	return burst.Options{
		Threshold: pc.BurstThreshold,
		Ratio:     pc.BurstRatio,
		Cooldown:  pc.BurstCooldown.Seconds(),
		Transport: d.Transport,
	}, nil
}

func (d Deps) recorderOptions() (wavrecorder.Options, error) {
	return wavrecorder.Options{BitVolts: d.settings().BitVolts}, nil
}

// RegisterAll registers spectrum, gate, burst and wavrecorder in reg. The
// template is already present in every registry.
func RegisterAll(reg *processor.Registry, deps Deps) error {
	factories := []struct {
		name    string
		factory processor.Factory
	}{
		{spectrum.Name, spectrum.NewFactory(deps.spectrumOptions)},
		{gate.Name, gate.NewFactory(deps.gateOptions)},
		{burst.Name, burst.NewFactory(deps.burstOptions)},
		{wavrecorder.Name, wavrecorder.NewFactory(deps.recorderOptions)},
	}

	for _, f := range factories {
		if err := reg.Register(f.name, f.factory); err != nil {
			return err
		}
	}
	return nil
}
