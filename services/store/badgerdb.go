// Copyright (C) 2026 FaultSentinel Authors (maintainers@faultsentinel.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BadgerConfig holds configuration for the embedded badger instance
// backing the conversation store.
type BadgerConfig struct {
	// Path is the directory for database files. Required unless
	// InMemory is true.
	Path string

	// InMemory disables disk persistence. Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives badger's internal log output. Nil disables it.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// Zero disables GC.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum discardable ratio before GC rewrites
	// a value log file.
	GCDiscardRatio float64
}

// DefaultBadgerConfig returns production defaults: durable writes and
// five-minute GC.
func DefaultBadgerConfig() BadgerConfig {
	return BadgerConfig{
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryBadgerConfig returns a configuration for tests: no disk I/O,
// no GC.
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{
		InMemory: true,
	}
}

// badgerLogger adapts slog.Logger to badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerDB wraps a badger instance with GC lifecycle management.
type BadgerDB struct {
	*badger.DB
	gcStop chan struct{}
	gcDone chan struct{}
}

// OpenBadger opens a badger database and, when configured, starts the
// value log GC loop. Call Close when done.
func OpenBadger(cfg BadgerConfig) (*BadgerDB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	wrapped := &BadgerDB{DB: db}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		wrapped.gcStop = make(chan struct{})
		wrapped.gcDone = make(chan struct{})
		go wrapped.runGC(cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
	}
	return wrapped, nil
}

func (d *BadgerDB) runGC(interval time.Duration, ratio float64, logger *slog.Logger) {
	defer close(d.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.gcStop:
			return
		case <-ticker.C:
			err := d.DB.RunValueLogGC(ratio)
			if err == nil {
				if logger != nil {
					logger.Debug("badger value log GC completed")
				}
			} else if !errors.Is(err, badger.ErrNoRewrite) {
				// ErrNoRewrite means nothing to collect, not a failure.
				if logger != nil {
					logger.Warn("badger value log GC error", "error", err)
				}
			}
		}
	}
}

// Close stops the GC loop and closes the database.
func (d *BadgerDB) Close() error {
	if d.gcStop != nil {
		close(d.gcStop)
		<-d.gcDone
	}
	return d.DB.Close()
}

// WithTxn executes fn within a read-write transaction, committing when
// fn returns nil and discarding otherwise.
func (d *BadgerDB) WithTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	txn := d.DB.NewTransaction(true)
	defer txn.Discard()

	if err := fn(txn); err != nil {
		return err
	}
	return txn.Commit()
}

// WithReadTxn executes fn within a read-only transaction.
func (d *BadgerDB) WithReadTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	txn := d.DB.NewTransaction(false)
	defer txn.Discard()

	return fn(txn)
}
