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
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/faultsentinel/faultsentinel/services/monitor/datatypes"
	"github.com/faultsentinel/faultsentinel/services/store"
)

// ListSnapshots returns snapshot summaries, most recent first.
func ListSnapshots(log *store.SnapshotLog, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 0
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
				return
			}
			limit = parsed
		}

		summaries, err := log.List(limit)
		if err != nil {
			logger.Error("failed to list snapshots", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list snapshots"})
			return
		}
		if summaries == nil {
			summaries = []store.SnapshotSummary{}
		}
		c.JSON(http.StatusOK, gin.H{"snapshots": summaries})
	}
}

// GetSnapshot returns one full snapshot by id.
func GetSnapshot(log *store.SnapshotLog, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		snap, err := log.Get(id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "snapshot not found", "id": id})
				return
			}
			logger.Error("failed to read snapshot", "id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read snapshot"})
			return
		}
		c.JSON(http.StatusOK, snap)
	}
}

// RenameSnapshot updates a snapshot's name and tags.
func RenameSnapshot(log *store.SnapshotLog, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		var req datatypes.RenameRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rename payload: " + err.Error()})
			return
		}

		if err := log.Rename(id, req.Name, req.Tags); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "snapshot not found", "id": id})
				return
			}
			logger.Error("failed to rename snapshot", "id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to rename snapshot"})
			return
		}

		logger.Info("snapshot renamed", "id", id, "name", req.Name)
		c.JSON(http.StatusOK, gin.H{"status": "success", "id": id})
	}
}
