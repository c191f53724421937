// Copyright (C) 2026 FaultSentinel Authors (maintainers@faultsentinel.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/faultsentinel/faultsentinel/services/monitor/datatypes"
	"github.com/faultsentinel/faultsentinel/services/monitor/pipeline"
)

// TriggerAnalysis runs an operator-initiated round over an explicit
// feature set. A rate-guard rejection maps to 429 with a Retry-After
// header.
func TriggerAnalysis(p *pipeline.Pipeline, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.TriggerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid trigger payload: " + err.Error()})
			return
		}

		result, snapID, err := p.AnalyzeNow(c.Request.Context(), req.EpisodeID, req.TopFeatures)
		if err != nil {
			var rle *pipeline.RateLimitError
			if errors.As(err, &rle) {
				retryAfter := int(math.Ceil(rle.RetryAfter.Seconds()))
				c.Header("Retry-After", strconv.Itoa(retryAfter))
				c.JSON(http.StatusTooManyRequests, gin.H{
					"error":               err.Error(),
					"retry_after_seconds": retryAfter,
				})
				return
			}
			logger.Error("manual analysis failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "analysis failed"})
			return
		}

		c.JSON(http.StatusOK, datatypes.TriggerResponse{
			EpisodeID:         result.EpisodeID,
			SnapshotID:        snapID,
			FeatureComparison: result.FeatureComparison,
			Results:           result.Results,
			AnySuccess:        result.Succeeded(),
		})
	}
}

// ChangeCheck is the change guard dry-run. With an explicit prior set it
// compares the two; otherwise it consults the guard's own last-analyzed
// set. Never mutates guard state.
func ChangeCheck(p *pipeline.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.ChangeCheckRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid change-check payload: " + err.Error()})
			return
		}

		var should bool
		var reason string
		if len(req.Prior) > 0 {
			should, reason = p.Change().Compare(req.Candidate, req.Prior)
		} else {
			should, reason = p.Change().ShouldAnalyze(req.Candidate)
		}

		c.JSON(http.StatusOK, datatypes.ChangeCheckResponse{
			ShouldAnalyze: should,
			Reason:        reason,
		})
	}
}
