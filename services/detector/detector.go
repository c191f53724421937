// Copyright (C) 2026 FaultSentinel Authors (maintainers@faultsentinel.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package detector

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// ErrSchemaMismatch is returned when a reading is missing too many
// calibrated channels for intersection scoring to stay meaningful.
var ErrSchemaMismatch = errors.New("reading does not match calibrated channel schema")

// Reading is one immutable sensor sample from the ingestion feed.
type Reading struct {
	Timestamp time.Time          `json:"timestamp"`
	Values    map[string]float64 `json:"values"`
}

// Score is the detector's verdict on a single reading.
//
// Degraded is set when channels were missing and the statistic was
// computed on the intersection only; the classification still stands but
// carries reduced confidence.
type Score struct {
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Anomalous bool    `json:"anomalous"`
	Degraded  bool    `json:"degraded"`
}

// Detector applies a Calibration to readings.
//
// Score is a pure function of (reading, calibration): identical inputs
// always yield the identical Score. The active calibration can be swapped
// atomically while Score calls are in flight.
type Detector struct {
	cal atomic.Pointer[Calibration]
}

// New creates a Detector over the given calibration.
func New(cal *Calibration) *Detector {
	d := &Detector{}
	d.cal.Store(cal)
	return d
}

// Calibration returns the currently active calibration.
func (d *Detector) Calibration() *Calibration {
	return d.cal.Load()
}

// Swap replaces the active calibration. Invalid calibrations are
// rejected so the last good model stays live.
func (d *Detector) Swap(cal *Calibration) error {
	if err := cal.Validate(); err != nil {
		return fmt.Errorf("rejecting calibration swap: %w", err)
	}
	cal.buildIndex()
	d.cal.Store(cal)
	return nil
}

// Score computes the T² statistic for one reading.
//
// Channels absent from the calibration are ignored. Calibrated channels
// absent from the reading are treated as sitting at their baseline mean
// and the result is flagged Degraded, so sensor dropout never silently
// stops fault detection. If more than half the calibrated channels are
// missing the projection loses meaning and ErrSchemaMismatch is returned.
func (d *Detector) Score(reading Reading) (Score, error) {
	cal := d.cal.Load()
	n := len(cal.Channels)

	standardized := make([]float64, n)
	missing := 0
	for i, ch := range cal.Channels {
		v, ok := reading.Values[ch]
		if !ok {
			// Baseline-mean imputation: standardized value 0 contributes
			// nothing to any component.
			missing++
			continue
		}
		standardized[i] = (v - cal.Means[i]) / cal.Scales[i]
	}

	if missing*2 > n {
		return Score{}, fmt.Errorf("%w: %d of %d calibrated channels missing",
			ErrSchemaMismatch, missing, n)
	}

	var t2 float64
	for j, comp := range cal.Components {
		var proj float64
		for i, w := range comp {
			proj += w * standardized[i]
		}
		t2 += proj * proj / cal.Eigenvalues[j]
	}

	return Score{
		Value:     t2,
		Threshold: cal.Threshold,
		Anomalous: t2 > cal.Threshold,
		Degraded:  missing > 0,
	}, nil
}
