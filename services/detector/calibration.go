// Copyright (C) 2026 FaultSentinel Authors (maintainers@faultsentinel.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package detector scores process-sensor readings against a pre-trained
// statistical model of normal operation.
//
// # Description
//
// The model is a PCA projection fitted offline on fault-free operating
// data: each channel is standardized with a stored mean and scale, the
// standardized vector is projected onto a fixed orthogonal basis (enough
// components to explain roughly 90% of calibration variance), and a
// Hotelling T² statistic over the projected coordinates is compared
// against a threshold chosen for a fixed false-positive rate (2.5% under
// the calibration distribution). Fitting, component selection, and the
// threshold all live in the calibration artifact; this package only
// loads and applies it.
//
// # Thread Safety
//
// A Detector is safe for concurrent Score calls. Calibration swaps (hot
// reload) are atomic with respect to in-flight scoring.
package detector

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Calibration is the offline-trained model artifact.
//
// # Fields
//
//   - Channels: calibrated channel names, in basis column order
//   - Means, Scales: per-channel standardization parameters
//   - Components: component-major basis, Components[j][i] weights channel i
//     in component j
//   - Eigenvalues: per-component variance of the calibration scores
//   - Threshold: T² decision threshold
type Calibration struct {
	Channels    []string    `yaml:"channels"`
	Means       []float64   `yaml:"means"`
	Scales      []float64   `yaml:"scales"`
	Components  [][]float64 `yaml:"components"`
	Eigenvalues []float64   `yaml:"eigenvalues"`
	Threshold   float64     `yaml:"threshold"`

	// index maps channel name to its position in the basis.
	index map[string]int
}

// LoadCalibration reads and validates a calibration artifact from a YAML
// file. The returned Calibration is ready for use in a Detector.
func LoadCalibration(path string) (*Calibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calibration %s: %w", path, err)
	}

	var cal Calibration
	if err := yaml.Unmarshal(data, &cal); err != nil {
		return nil, fmt.Errorf("parse calibration %s: %w", path, err)
	}

	if err := cal.Validate(); err != nil {
		return nil, fmt.Errorf("invalid calibration %s: %w", path, err)
	}

	cal.buildIndex()
	return &cal, nil
}

// Validate checks internal consistency of the artifact: dimension
// agreement, strictly positive scales and eigenvalues, and a positive
// threshold.
func (c *Calibration) Validate() error {
	n := len(c.Channels)
	if n == 0 {
		return fmt.Errorf("no channels")
	}
	if len(c.Means) != n {
		return fmt.Errorf("means length %d != channels length %d", len(c.Means), n)
	}
	if len(c.Scales) != n {
		return fmt.Errorf("scales length %d != channels length %d", len(c.Scales), n)
	}
	if len(c.Components) == 0 {
		return fmt.Errorf("no components")
	}
	if len(c.Eigenvalues) != len(c.Components) {
		return fmt.Errorf("eigenvalues length %d != components length %d",
			len(c.Eigenvalues), len(c.Components))
	}
	for j, comp := range c.Components {
		if len(comp) != n {
			return fmt.Errorf("component %d length %d != channels length %d", j, len(comp), n)
		}
	}
	for i, s := range c.Scales {
		if s <= 0 {
			return fmt.Errorf("scale for channel %q must be positive, got %g", c.Channels[i], s)
		}
	}
	for j, ev := range c.Eigenvalues {
		if ev <= 0 {
			return fmt.Errorf("eigenvalue %d must be positive, got %g", j, ev)
		}
	}
	if c.Threshold <= 0 {
		return fmt.Errorf("threshold must be positive, got %g", c.Threshold)
	}

	seen := make(map[string]struct{}, n)
	for _, ch := range c.Channels {
		if _, dup := seen[ch]; dup {
			return fmt.Errorf("duplicate channel %q", ch)
		}
		seen[ch] = struct{}{}
	}
	return nil
}

// Save writes the artifact as YAML. Used by tooling and tests; the
// monitor service only reads calibrations.
func (c *Calibration) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal calibration: %w", err)
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		return fmt.Errorf("write calibration %s: %w", path, err)
	}
	return nil
}

func (c *Calibration) buildIndex() {
	c.index = make(map[string]int, len(c.Channels))
	for i, ch := range c.Channels {
		c.index[ch] = i
	}
}

// ChannelIndex returns the basis position of a channel name.
func (c *Calibration) ChannelIndex(name string) (int, bool) {
	if c.index == nil {
		c.buildIndex()
	}
	i, ok := c.index[name]
	return i, ok
}
