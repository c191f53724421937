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

	"github.com/faultsentinel/faultsentinel/services/analysis"
	"github.com/faultsentinel/faultsentinel/services/monitor/datatypes"
	"github.com/faultsentinel/faultsentinel/services/store"
)

// Chat answers a follow-up question about a stored snapshot through one
// chosen provider.
func Chat(svc *analysis.ChatService, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat payload: " + err.Error()})
			return
		}

		answer, err := svc.Ask(c.Request.Context(), req.SnapshotID, req.Question,
			req.ProviderID, req.RecentHistory)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "snapshot not found", "id": req.SnapshotID})
				return
			}
			logger.Warn("chat answer failed", "snapshot_id", req.SnapshotID,
				"provider", req.ProviderID, "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, answer)
	}
}
