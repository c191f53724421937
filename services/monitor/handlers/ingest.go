// Copyright (C) 2026 FaultSentinel Authors (maintainers@faultsentinel.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the monitor service's gin handlers. Each
// handler is a closure over its dependencies; no package-level state.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/faultsentinel/faultsentinel/pkg/validation"
	"github.com/faultsentinel/faultsentinel/services/detector"
	"github.com/faultsentinel/faultsentinel/services/monitor/datatypes"
	"github.com/faultsentinel/faultsentinel/services/monitor/pipeline"
)

// Ingest accepts one sensor reading, routes it through the pipeline's
// single consumer, and answers with the score and trigger state.
func Ingest(p *pipeline.Pipeline, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.IngestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ingest payload: " + err.Error()})
			return
		}

		for ch := range req.Values {
			if err := validation.ValidateChannel(ch); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}

		update, err := p.Ingest(c.Request.Context(), detector.Reading{
			Timestamp: req.Timestamp,
			Values:    req.Values,
		})
		if err != nil {
			if errors.Is(err, pipeline.ErrBacklogFull) {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ingestion backlog full"})
				return
			}
			logger.Error("ingest failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ingest failed"})
			return
		}

		c.JSON(http.StatusOK, datatypes.IngestResponse{
			Score:     update.Score,
			Threshold: update.Threshold,
			Anomalous: update.Anomalous,
			Degraded:  update.Degraded,
			Status:    update.Status,
			State:     update.State,
			EpisodeID: update.EpisodeID,
		})
	}
}
