// SPDX-License-Identifier: MIT
package spectrum

import "math"

// Band is a named frequency range.
type Band struct {
	Name   string
	LowHz  float64
	HighHz float64
}

// NeuralBands are the conventional LFP bands. HighHz is exclusive.
var NeuralBands = []Band{
	{Name: "delta", LowHz: 1, HighHz: 4},
	{Name: "theta", LowHz: 4, HighHz: 8},
	{Name: "alpha", LowHz: 8, HighHz: 13},
	{Name: "beta", LowHz: 13, HighHz: 30},
	{Name: "gamma", LowHz: 30, HighHz: 100},
	{Name: "high_gamma", LowHz: 100, HighHz: 300},
}

// bandEnergy writes the RMS magnitude of every band into out. Bands with
// no bins below Nyquist get zero.
func bandEnergy(mags []float64, binHz float64, bands []Band, out map[string]float64) {
	for _, band := range bands {
		var sum float64
		var bins int
		for i, m := range mags {
			f := float64(i) * binHz
			if f >= band.LowHz && f < band.HighHz {
				sum += m * m
				bins++
			}
		}
		if bins == 0 {
			out[band.Name] = 0
			continue
		}
		out[band.Name] = math.Sqrt(sum / float64(bins))
	}
}
