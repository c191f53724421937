// Copyright (C) 2026 FaultSentinel Authors (maintainers@faultsentinel.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package detector

import "math"

// ChannelStats summarizes one channel over the buffered window.
type ChannelStats struct {
	Min float64 `json:"min"`
	Avg float64 `json:"avg"`
	Max float64 `json:"max"`
}

// Buffer is a bounded, insertion-ordered window of the most recent
// readings. Oldest readings are evicted first.
//
// Buffer has exactly one writer (the ingestion loop). Readers must work
// from Snapshot, Means, or Summary, which copy under the single-writer
// discipline; the buffer itself holds no locks.
type Buffer struct {
	capacity int
	readings []Reading
}

// NewBuffer creates a Buffer holding at most capacity readings.
// A non-positive capacity is coerced to 1.
func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{
		capacity: capacity,
		readings: make([]Reading, 0, capacity),
	}
}

// Push appends a reading, evicting the oldest when full.
func (b *Buffer) Push(r Reading) {
	if len(b.readings) == b.capacity {
		copy(b.readings, b.readings[1:])
		b.readings[len(b.readings)-1] = r
		return
	}
	b.readings = append(b.readings, r)
}

// Len returns the number of buffered readings.
func (b *Buffer) Len() int {
	return len(b.readings)
}

// Snapshot returns a copy of the buffered readings, oldest first.
func (b *Buffer) Snapshot() []Reading {
	out := make([]Reading, len(b.readings))
	copy(out, b.readings)
	return out
}

// Means returns the per-channel mean over the window. Channels are
// averaged over the readings that actually carry them.
func (b *Buffer) Means() map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, r := range b.readings {
		for ch, v := range r.Values {
			sums[ch] += v
			counts[ch]++
		}
	}
	means := make(map[string]float64, len(sums))
	for ch, sum := range sums {
		means[ch] = sum / float64(counts[ch])
	}
	return means
}

// Summary returns per-channel {min, avg, max} over the window.
func (b *Buffer) Summary() map[string]ChannelStats {
	stats := make(map[string]ChannelStats)
	counts := make(map[string]int)
	sums := make(map[string]float64)

	for _, r := range b.readings {
		for ch, v := range r.Values {
			s, seen := stats[ch]
			if !seen {
				s = ChannelStats{Min: math.Inf(1), Max: math.Inf(-1)}
			}
			if v < s.Min {
				s.Min = v
			}
			if v > s.Max {
				s.Max = v
			}
			stats[ch] = s
			sums[ch] += v
			counts[ch]++
		}
	}

	for ch, s := range stats {
		s.Avg = sums[ch] / float64(counts[ch])
		stats[ch] = s
	}
	return stats
}
