// Copyright (C) 2026 FaultSentinel Authors (maintainers@faultsentinel.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/faultsentinel/faultsentinel/services/detector"
	"github.com/faultsentinel/faultsentinel/services/monitor/config"
	"github.com/faultsentinel/faultsentinel/services/monitor/datatypes"
)

// HealthCheck is the liveness probe.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// RuntimeConfig exposes the effective runtime configuration, including
// the active calibration's shape.
func RuntimeConfig(cfg *config.Config, det *detector.Detector) gin.HandlerFunc {
	return func(c *gin.Context) {
		cal := det.Calibration()
		c.JSON(http.StatusOK, datatypes.RuntimeConfig{
			TriggerThreshold:    cfg.Pipeline.TriggerThreshold,
			TopK:                cfg.Pipeline.TopK,
			WindowSize:          cfg.Pipeline.WindowSize,
			Similarity:          cfg.Pipeline.Similarity,
			Epsilon:             cfg.Pipeline.Epsilon,
			MinAnalysisInterval: cfg.Pipeline.MinAnalysisInterval.Std().String(),
			SessionDuration:     cfg.Session.Duration.Std().String(),
			CalibrationChannels: len(cal.Channels),
			AnomalyThreshold:    cal.Threshold,
		})
	}
}
