// Copyright (C) 2026 FaultSentinel Authors (maintainers@faultsentinel.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store persists analysis output: an append-only snapshot log
// and a badger-backed conversation store for follow-up chat turns.
//
// # Snapshot log
//
// Snapshots are written as one JSON object per line (JSONL). The log is
// never rewritten: rename and tag changes append a superseding record
// for the same id, and an index built on open maps each id to the byte
// offset of its newest record, giving O(1) Get without scanning. A write
// torn by a crash leaves a partial trailing line; it is detected on the
// next open, skipped, and overwritten by the next append, so previously
// written records are never corrupted.
package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/faultsentinel/faultsentinel/services/detector"
	"github.com/faultsentinel/faultsentinel/services/llm"
)

// ErrNotFound is returned for lookups of unknown snapshot ids. It is an
// expected, non-fatal condition.
var ErrNotFound = errors.New("snapshot not found")

// Snapshot is the persisted record of one completed (or partially
// completed) analysis round. Snapshots are append-only; only Name and
// Tags are mutable, via Rename.
type Snapshot struct {
	ID                string                           `json:"id"`
	Timestamp         time.Time                        `json:"timestamp"`
	EpisodeID         string                           `json:"episode_id"`
	FeatureComparison string                           `json:"feature_comparison"`
	TopFeatures       []detector.TopFeature            `json:"top_features"`
	ProviderResults   map[string]llm.ProviderResult    `json:"provider_results"`
	SensorSummary     map[string]detector.ChannelStats `json:"sensor_summary"`
	Name              string                           `json:"name,omitempty"`
	Tags              []string                         `json:"tags,omitempty"`
}

// SnapshotSummary is one row of a List result.
type SnapshotSummary struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Name      string    `json:"name,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	Providers []string  `json:"providers"`
}

type indexEntry struct {
	offset int64
	length int64
}

// SnapshotLog is the append-only JSONL store.
//
// Writes are serialized internally; the single-outstanding-analysis
// invariant usually serializes callers anyway, but the log does not
// assume it. Reads go through the offset index and are safe under
// concurrent appends.
type SnapshotLog struct {
	mu     sync.Mutex
	file   *os.File
	size   int64
	index  map[string]indexEntry
	order  []string // ids by first append, oldest first
	logger *slog.Logger
}

// OpenSnapshotLog opens (creating if needed) the log at path and builds
// the id index. A torn trailing record is logged and skipped; the next
// append overwrites it.
func OpenSnapshotLog(path string, logger *slog.Logger) (*SnapshotLog, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0640)
	if err != nil {
		return nil, fmt.Errorf("open snapshot log %s: %w", path, err)
	}

	log := &SnapshotLog{
		file:   file,
		index:  make(map[string]indexEntry),
		logger: logger,
	}
	if err := log.buildIndex(); err != nil {
		file.Close()
		return nil, fmt.Errorf("index snapshot log %s: %w", path, err)
	}
	return log, nil
}

func (l *SnapshotLog) buildIndex() error {
	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return err
	}

	reader := bufio.NewReader(l.file)
	var offset int64

	for {
		line, err := reader.ReadBytes('\n')
		if err == io.EOF {
			if len(line) > 0 {
				// Partial trailing line with no delimiter: a torn write.
				l.logger.Warn("snapshot log has torn trailing record, skipping",
					"offset", offset, "bytes", len(line))
			}
			break
		}
		if err != nil {
			return err
		}

		recordLen := int64(len(line))
		var snap Snapshot
		if jsonErr := json.Unmarshal(bytes.TrimSpace(line), &snap); jsonErr != nil || snap.ID == "" {
			l.logger.Warn("snapshot log has unreadable record, skipping",
				"offset", offset, "error", jsonErr)
			offset += recordLen
			continue
		}

		if _, seen := l.index[snap.ID]; !seen {
			l.order = append(l.order, snap.ID)
		}
		l.index[snap.ID] = indexEntry{offset: offset, length: recordLen}
		offset += recordLen
	}

	l.size = offset
	return nil
}

// Append writes a snapshot and returns its id, assigning one if empty.
func (l *SnapshotLog) Append(snap Snapshot) (string, error) {
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now().UTC()
	}
	if err := l.appendRecord(snap, true); err != nil {
		return "", err
	}
	return snap.ID, nil
}

func (l *SnapshotLog) appendRecord(snap Snapshot, trackOrder bool) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", snap.ID, err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.WriteAt(data, l.size); err != nil {
		return fmt.Errorf("append snapshot %s: %w", snap.ID, err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync snapshot log: %w", err)
	}

	if _, seen := l.index[snap.ID]; !seen && trackOrder {
		l.order = append(l.order, snap.ID)
	}
	l.index[snap.ID] = indexEntry{offset: l.size, length: int64(len(data))}
	l.size += int64(len(data))
	return nil
}

// Get returns the newest version of a snapshot by id.
func (l *SnapshotLog) Get(id string) (Snapshot, error) {
	l.mu.Lock()
	entry, ok := l.index[id]
	l.mu.Unlock()
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	buf := make([]byte, entry.length)
	if _, err := l.file.ReadAt(buf, entry.offset); err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot %s: %w", id, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(bytes.TrimSpace(buf), &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot %s: %w", id, err)
	}
	return snap, nil
}

// List returns up to limit snapshot summaries, most recent first.
// A non-positive limit returns everything.
func (l *SnapshotLog) List(limit int) ([]SnapshotSummary, error) {
	l.mu.Lock()
	ids := make([]string, len(l.order))
	copy(ids, l.order)
	l.mu.Unlock()

	var out []SnapshotSummary
	for i := len(ids) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		snap, err := l.Get(ids[i])
		if err != nil {
			return nil, err
		}
		providers := make([]string, 0, len(snap.ProviderResults))
		for id := range snap.ProviderResults {
			providers = append(providers, id)
		}
		sort.Strings(providers)
		out = append(out, SnapshotSummary{
			ID:        snap.ID,
			Timestamp: snap.Timestamp,
			Name:      snap.Name,
			Tags:      snap.Tags,
			Providers: providers,
		})
	}
	return out, nil
}

// Rename updates a snapshot's name and tags by appending a superseding
// record; prior bytes are never rewritten.
func (l *SnapshotLog) Rename(id, name string, tags []string) error {
	snap, err := l.Get(id)
	if err != nil {
		return err
	}
	snap.Name = name
	snap.Tags = tags
	return l.appendRecord(snap, false)
}

// Len returns the number of distinct snapshots.
func (l *SnapshotLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.order)
}

// Close closes the underlying file.
func (l *SnapshotLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
