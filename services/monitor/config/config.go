// Copyright (C) 2026 FaultSentinel Authors (maintainers@faultsentinel.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads the monitor service configuration: YAML file,
// environment overrides, defaults, then validation. A zero-value file
// (or no file at all) yields a runnable local configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Duration accepts Go duration strings ("30m", "1h30m") in YAML, which
// yaml.v3 does not do for time.Duration itself.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Detector  DetectorConfig  `yaml:"detector"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Providers ProvidersConfig `yaml:"providers"`
	Session   SessionConfig   `yaml:"session"`
	Store     StoreConfig     `yaml:"store"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

type DetectorConfig struct {
	// CalibrationPath is the PCA model artifact, trained offline.
	CalibrationPath string `yaml:"calibration_path" validate:"required"`
	// WatchCalibration reloads the artifact when the file changes.
	WatchCalibration bool `yaml:"watch_calibration"`
}

type PipelineConfig struct {
	WindowSize          int      `yaml:"window_size" validate:"min=1"`
	QueueSize           int      `yaml:"queue_size" validate:"min=1"`
	TriggerThreshold    int      `yaml:"trigger_threshold" validate:"min=1"`
	TopK                int      `yaml:"top_k" validate:"min=1"`
	Similarity          float64  `yaml:"similarity" validate:"gte=0,lte=1"`
	Epsilon             float64  `yaml:"epsilon" validate:"gte=0"`
	MinAnalysisInterval Duration `yaml:"min_analysis_interval"`
}

type ProviderConfig struct {
	Enabled     bool    `yaml:"enabled"`
	CostPerCall float64 `yaml:"cost_per_call" validate:"gte=0"`
}

type ProvidersConfig struct {
	Anthropic ProviderConfig `yaml:"anthropic"`
	Gemini    ProviderConfig `yaml:"gemini"`
	LMStudio  ProviderConfig `yaml:"lmstudio"`
}

type SessionConfig struct {
	// Duration is how long metered providers stay enabled per armed
	// session before auto-shutoff.
	Duration Duration `yaml:"duration"`
}

type StoreConfig struct {
	SnapshotPath string `yaml:"snapshot_path" validate:"required"`
	BadgerDir    string `yaml:"badger_dir" validate:"required"`
}

type KnowledgeConfig struct {
	// BaseURL of the external retrieval service; empty disables lookup.
	BaseURL string `yaml:"base_url"`
}

type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// Load reads the YAML file at path (optional), layers environment
// overrides, applies defaults, and validates. An empty path loads the
// environment-plus-defaults configuration.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Session.Duration.Std() < time.Minute {
		return nil, fmt.Errorf("invalid config: session.duration %s below 1m", cfg.Session.Duration.Std())
	}
	if cfg.Pipeline.MinAnalysisInterval.Std() < 0 {
		return nil, fmt.Errorf("invalid config: pipeline.min_analysis_interval is negative")
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SENTINEL_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("SENTINEL_CALIBRATION"); v != "" {
		c.Detector.CalibrationPath = v
	}
	if v := os.Getenv("SENTINEL_SNAPSHOT_PATH"); v != "" {
		c.Store.SnapshotPath = v
	}
	if v := os.Getenv("SENTINEL_BADGER_DIR"); v != "" {
		c.Store.BadgerDir = v
	}
	if v := os.Getenv("SENTINEL_KNOWLEDGE_URL"); v != "" {
		c.Knowledge.BaseURL = v
	}
	if v := os.Getenv("SENTINEL_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("SENTINEL_SESSION_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Session.Duration = Duration(d)
		}
	}
	if v := os.Getenv("SENTINEL_TRIGGER_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Pipeline.TriggerThreshold = n
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8090"
	}
	if c.Detector.CalibrationPath == "" {
		c.Detector.CalibrationPath = "./config/calibration.yaml"
	}
	if c.Pipeline.WindowSize == 0 {
		c.Pipeline.WindowSize = 120
	}
	if c.Pipeline.QueueSize == 0 {
		c.Pipeline.QueueSize = 256
	}
	if c.Pipeline.TriggerThreshold == 0 {
		c.Pipeline.TriggerThreshold = 3
	}
	if c.Pipeline.TopK == 0 {
		c.Pipeline.TopK = 6
	}
	if c.Pipeline.Similarity == 0 {
		c.Pipeline.Similarity = 0.8
	}
	if c.Pipeline.Epsilon == 0 {
		c.Pipeline.Epsilon = 0.05
	}
	if c.Pipeline.MinAnalysisInterval == 0 {
		c.Pipeline.MinAnalysisInterval = Duration(time.Minute)
	}
	if c.Session.Duration == 0 {
		c.Session.Duration = Duration(30 * time.Minute)
	}
	if c.Store.SnapshotPath == "" {
		c.Store.SnapshotPath = "./data/snapshots.jsonl"
	}
	if c.Store.BadgerDir == "" {
		c.Store.BadgerDir = "./data/conversations"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}
