// Copyright (C) 2026 FaultSentinel Authors (maintainers@faultsentinel.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/faultsentinel/faultsentinel/services/llm"
	"github.com/faultsentinel/faultsentinel/services/monitor/datatypes"
)

// SessionStatus reports the metered session countdown.
func SessionStatus(guard *llm.SessionGuard) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, guard.Status())
	}
}

// ExtendSession pushes the metered session's expiry to now + duration.
func ExtendSession(guard *llm.SessionGuard, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.ExtendRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid extend payload: " + err.Error()})
			return
		}

		d, err := time.ParseDuration(req.Duration)
		if err != nil || d <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "duration must be a positive Go duration, e.g. \"30m\""})
			return
		}

		if !guard.Extend(d) {
			c.JSON(http.StatusConflict, gin.H{"error": "no active metered session to extend"})
			return
		}

		logger.Info("metered session extended via API", "duration", d.String())
		c.JSON(http.StatusOK, guard.Status())
	}
}

// ShutdownSession ends the metered session immediately, disabling all
// metered providers.
func ShutdownSession(guard *llm.SessionGuard, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		guard.Shutdown()
		logger.Info("metered session shut down via API")
		c.JSON(http.StatusOK, guard.Status())
	}
}
