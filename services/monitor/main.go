// Copyright (C) 2026 FaultSentinel Authors (maintainers@faultsentinel.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// The monitor service: sensor ingestion, PCA anomaly detection, the
// trigger pipeline, multi-provider fault analysis, and the snapshot and
// chat surfaces, behind one HTTP server.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/faultsentinel/faultsentinel/pkg/logging"
	"github.com/faultsentinel/faultsentinel/services/analysis"
	"github.com/faultsentinel/faultsentinel/services/detector"
	"github.com/faultsentinel/faultsentinel/services/llm"
	"github.com/faultsentinel/faultsentinel/services/monitor/config"
	"github.com/faultsentinel/faultsentinel/services/monitor/handlers"
	"github.com/faultsentinel/faultsentinel/services/monitor/observability"
	"github.com/faultsentinel/faultsentinel/services/monitor/pipeline"
	"github.com/faultsentinel/faultsentinel/services/monitor/routes"
	"github.com/faultsentinel/faultsentinel/services/store"
)

// initTracer wires the OTLP/gRPC exporter. Without an endpoint in the
// environment the global no-op tracer stays in place and spans cost
// nothing.
func initTracer(ctx context.Context) (func(context.Context), error) {
	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		return func(context.Context) {}, nil
	}

	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("monitor-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			log.Printf("failed to shutdown OTLP exporter: %v", err)
		}
	}, nil
}

func main() {
	cfg, err := config.Load(os.Getenv("SENTINEL_CONFIG"))
	if err != nil {
		log.Fatalf("FATAL: could not load config: %v", err)
	}

	appLogger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Log.Level),
		LogDir:  cfg.Log.Dir,
		Service: "monitor",
		JSON:    cfg.Log.JSON,
	})
	defer appLogger.Close()
	logger := appLogger.Slog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cleanup, err := initTracer(ctx)
	if err != nil {
		log.Fatalf("FATAL: could not set up the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	observability.InitMetrics()

	cal, err := detector.LoadCalibration(cfg.Detector.CalibrationPath)
	if err != nil {
		log.Fatalf("FATAL: could not load calibration %s: %v", cfg.Detector.CalibrationPath, err)
	}
	det := detector.New(cal)
	logger.Info("calibration loaded",
		"path", cfg.Detector.CalibrationPath,
		"channels", len(cal.Channels),
		"components", len(cal.Components),
		"threshold", cal.Threshold,
	)

	snapshots, err := store.OpenSnapshotLog(cfg.Store.SnapshotPath, logger)
	if err != nil {
		log.Fatalf("FATAL: could not open snapshot log: %v", err)
	}
	defer snapshots.Close()

	badgerCfg := store.DefaultBadgerConfig()
	badgerCfg.Path = cfg.Store.BadgerDir
	badgerCfg.Logger = logger
	db, err := store.OpenBadger(badgerCfg)
	if err != nil {
		log.Fatalf("FATAL: could not open conversation store: %v", err)
	}
	defer db.Close()
	conversations := store.NewConversationStore(db)

	registry := llm.NewRegistry(logger)
	guard := llm.NewSessionGuard(cfg.Session.Duration.Std(), logger)
	registry.AttachGuard(guard)
	guard.SetRemainingGauge(observability.DefaultMetrics.SessionRemainingSeconds.Set)

	if anthropic, err := llm.NewAnthropicProvider(); err != nil {
		logger.Warn("anthropic provider unavailable", "error", err)
	} else {
		registry.Register(anthropic, cfg.Providers.Anthropic.Enabled, cfg.Providers.Anthropic.CostPerCall)
	}
	if gemini, err := llm.NewGeminiProvider(ctx); err != nil {
		logger.Warn("gemini provider unavailable", "error", err)
	} else {
		registry.Register(gemini, cfg.Providers.Gemini.Enabled, cfg.Providers.Gemini.CostPerCall)
	}
	if lmstudio, err := llm.NewLMStudioProvider(); err != nil {
		logger.Warn("lmstudio provider unavailable", "error", err)
	} else {
		registry.Register(lmstudio, cfg.Providers.LMStudio.Enabled, cfg.Providers.LMStudio.CostPerCall)
	}

	orchestrator := analysis.NewOrchestrator(registry, logger)

	var knowledge analysis.KnowledgeSearcher = analysis.NopKnowledgeSearcher{}
	if cfg.Knowledge.BaseURL != "" {
		knowledge = analysis.NewHTTPKnowledgeSearcher(cfg.Knowledge.BaseURL, logger)
	}
	chatService := analysis.NewChatService(orchestrator, snapshots, conversations,
		knowledge, 0, logger)

	feed := handlers.NewLiveFeedHub(logger)
	pipe := pipeline.New(pipeline.Config{
		WindowSize:          cfg.Pipeline.WindowSize,
		QueueSize:           cfg.Pipeline.QueueSize,
		TriggerThreshold:    cfg.Pipeline.TriggerThreshold,
		TopK:                cfg.Pipeline.TopK,
		Similarity:          cfg.Pipeline.Similarity,
		Epsilon:             cfg.Pipeline.Epsilon,
		MinAnalysisInterval: cfg.Pipeline.MinAnalysisInterval.Std(),
	}, det, orchestrator, snapshots, feed, observability.DefaultMetrics, logger)

	router := gin.Default()
	router.Use(otelgin.Middleware("monitor-service"))
	routes.SetupRoutes(router, routes.Deps{
		Config:    cfg,
		Detector:  det,
		Pipeline:  pipe,
		Registry:  registry,
		Guard:     guard,
		Snapshots: snapshots,
		Chat:      chatService,
		Feed:      feed,
		Logger:    logger,
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("monitor service listening", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	group.Go(func() error {
		err := pipe.Run(groupCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	group.Go(func() error {
		err := guard.Run(groupCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if cfg.Detector.WatchCalibration {
		watcher := detector.NewWatcher(det, cfg.Detector.CalibrationPath, logger)
		group.Go(func() error {
			err := watcher.Run(groupCtx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if err := group.Wait(); err != nil {
		log.Fatalf("FATAL: monitor service failed: %v", err)
	}
	logger.Info("monitor service stopped")
}
