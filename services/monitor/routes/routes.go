// Copyright (C) 2026 FaultSentinel Authors (maintainers@faultsentinel.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/faultsentinel/faultsentinel/services/analysis"
	"github.com/faultsentinel/faultsentinel/services/detector"
	"github.com/faultsentinel/faultsentinel/services/llm"
	"github.com/faultsentinel/faultsentinel/services/monitor/config"
	"github.com/faultsentinel/faultsentinel/services/monitor/handlers"
	"github.com/faultsentinel/faultsentinel/services/monitor/pipeline"
	"github.com/faultsentinel/faultsentinel/services/store"
)

// Deps carries everything the route tree needs.
type Deps struct {
	Config    *config.Config
	Detector  *detector.Detector
	Pipeline  *pipeline.Pipeline
	Registry  *llm.Registry
	Guard     *llm.SessionGuard
	Snapshots *store.SnapshotLog
	Chat      *analysis.ChatService
	Feed      *handlers.LiveFeedHub
	Logger    *slog.Logger
}

// SetupRoutes registers the monitor's endpoints on the router.
func SetupRoutes(router *gin.Engine, deps Deps) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		v1.POST("/ingest", handlers.Ingest(deps.Pipeline, deps.Logger))
		v1.GET("/stream/ws", handlers.StreamLiveFeed(deps.Feed, deps.Logger))

		v1.POST("/analysis/trigger", handlers.TriggerAnalysis(deps.Pipeline, deps.Logger))
		v1.POST("/analysis/change-check", handlers.ChangeCheck(deps.Pipeline))

		snapshots := v1.Group("/snapshots")
		{
			snapshots.GET("", handlers.ListSnapshots(deps.Snapshots, deps.Logger))
			snapshots.GET("/:id", handlers.GetSnapshot(deps.Snapshots, deps.Logger))
			snapshots.PATCH("/:id", handlers.RenameSnapshot(deps.Snapshots, deps.Logger))
		}

		v1.POST("/chat", handlers.Chat(deps.Chat, deps.Logger))

		providers := v1.Group("/providers")
		{
			providers.GET("", handlers.ListProviders(deps.Registry))
			providers.POST("/toggle", handlers.ToggleProvider(deps.Registry, deps.Logger))
		}
		v1.GET("/usage", handlers.GetUsage(deps.Registry))
		v1.POST("/usage/reset", handlers.ResetUsage(deps.Registry, deps.Logger))

		session := v1.Group("/session")
		{
			session.GET("", handlers.SessionStatus(deps.Guard))
			session.POST("/extend", handlers.ExtendSession(deps.Guard, deps.Logger))
			session.POST("/shutdown", handlers.ShutdownSession(deps.Guard, deps.Logger))
		}

		v1.GET("/config/runtime", handlers.RuntimeConfig(deps.Config, deps.Detector))
	}
}
