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
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/faultsentinel/faultsentinel/services/llm"
	"github.com/faultsentinel/faultsentinel/services/monitor/datatypes"
)

// ListProviders returns every registered provider's state.
func ListProviders(registry *llm.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"providers": registry.All()})
	}
}

// ToggleProvider enables or disables one provider at runtime. Enabling
// a metered provider arms the session guard. The change applies to the
// next analysis round; in-flight calls are unaffected.
func ToggleProvider(registry *llm.Registry, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.ToggleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid toggle payload: " + err.Error()})
			return
		}

		if err := registry.Toggle(req.ProviderID, *req.Enabled); err != nil {
			if errors.Is(err, llm.ErrUnknownProvider) {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			logger.Error("provider toggle failed", "provider", req.ProviderID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "toggle failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":   "success",
			"provider": req.ProviderID,
			"enabled":  *req.Enabled,
		})
	}
}

// GetUsage returns per-provider usage and cost counters.
func GetUsage(registry *llm.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"usage": registry.Usage()})
	}
}

// ResetUsage zeroes all usage counters.
func ResetUsage(registry *llm.Registry, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		registry.ResetUsage()
		logger.Info("provider usage counters reset")
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	}
}
