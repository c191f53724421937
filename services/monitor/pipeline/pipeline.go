// Copyright (C) 2026 FaultSentinel Authors (maintainers@faultsentinel.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/faultsentinel/faultsentinel/services/analysis"
	"github.com/faultsentinel/faultsentinel/services/detector"
	"github.com/faultsentinel/faultsentinel/services/monitor/observability"
	"github.com/faultsentinel/faultsentinel/services/store"
)

var pipelineTracer = otel.Tracer("faultsentinel/services/monitor/pipeline")

// ErrBacklogFull is returned by Submit when the ingestion queue is full.
var ErrBacklogFull = errors.New("ingestion backlog full")

// Analyzer runs one analysis round. Satisfied by *analysis.Orchestrator.
type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request) analysis.Result
}

// SnapshotAppender persists a settled round. Satisfied by
// *store.SnapshotLog.
type SnapshotAppender interface {
	Append(snap store.Snapshot) (string, error)
}

// Broadcaster pushes updates to live-feed subscribers. Implementations
// must not block the caller.
type Broadcaster interface {
	Broadcast(update LiveUpdate)
}

// LiveUpdate is one message on the live feed: every scored reading
// produces one with Type "reading", and every settled analysis round
// one with Type "analysis".
type LiveUpdate struct {
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	Score      float64   `json:"score,omitempty"`
	Threshold  float64   `json:"threshold,omitempty"`
	Anomalous  bool      `json:"anomalous"`
	Degraded   bool      `json:"degraded,omitempty"`
	State      string    `json:"state"`
	Status     string    `json:"status"` // scored or schema_mismatch
	EpisodeID  string    `json:"episode_id,omitempty"`
	SnapshotID string    `json:"snapshot_id,omitempty"`
	AnySuccess bool      `json:"any_success,omitempty"`
}

// Config sets the pipeline's tunables.
type Config struct {
	// WindowSize is the sensor buffer capacity in readings.
	WindowSize int
	// QueueSize bounds the ingestion backlog.
	QueueSize int
	// TriggerThreshold is the consecutive-anomaly debounce count.
	TriggerThreshold int
	// TopK is how many deviating channels a round's evidence carries.
	TopK int
	// Similarity is the change guard's Jaccard threshold.
	Similarity float64
	// Epsilon is the change guard's per-channel delta tolerance.
	Epsilon float64
	// MinAnalysisInterval spaces analysis round starts.
	MinAnalysisInterval time.Duration
}

type job struct {
	reading detector.Reading
	// reply, when non-nil, receives the reading's update so HTTP ingest
	// can answer synchronously while still flowing through the single
	// consumer.
	reply chan LiveUpdate
}

// Pipeline is the single-consumer ingestion loop. Readings enter through
// Submit or Ingest, are processed strictly in arrival order, and fan out
// to analysis at most one round at a time.
type Pipeline struct {
	cfg       Config
	det       *detector.Detector
	buffer    *detector.Buffer
	policy    *TriggerPolicy
	change    *ChangeGuard
	rate      *RateGuard
	analyzer  Analyzer
	snapshots SnapshotAppender
	feed      Broadcaster
	metrics   *observability.Metrics
	logger    *slog.Logger
	queue     chan job

	now func() time.Time
}

// New wires a pipeline. feed and metrics may be nil.
func New(cfg Config, det *detector.Detector, analyzer Analyzer, snapshots SnapshotAppender,
	feed Broadcaster, metrics *observability.Metrics, logger *slog.Logger) *Pipeline {

	if cfg.WindowSize < 1 {
		cfg.WindowSize = 120
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 256
	}
	if cfg.TopK < 1 {
		cfg.TopK = 6
	}

	return &Pipeline{
		cfg:       cfg,
		det:       det,
		buffer:    detector.NewBuffer(cfg.WindowSize),
		policy:    NewTriggerPolicy(cfg.TriggerThreshold),
		change:    NewChangeGuard(cfg.Similarity, cfg.Epsilon),
		rate:      NewRateGuard(cfg.MinAnalysisInterval),
		analyzer:  analyzer,
		snapshots: snapshots,
		feed:      feed,
		metrics:   metrics,
		logger:    logger,
		queue:     make(chan job, cfg.QueueSize),
		now:       time.Now,
	}
}

// Policy exposes the trigger state machine for status reporting.
func (p *Pipeline) Policy() *TriggerPolicy { return p.policy }

// Change exposes the change guard for the dry-run endpoint.
func (p *Pipeline) Change() *ChangeGuard { return p.change }

// Submit enqueues a reading without waiting for it to be processed.
func (p *Pipeline) Submit(ctx context.Context, r detector.Reading) error {
	return p.enqueue(ctx, job{reading: r})
}

// Ingest enqueues a reading and waits for its scored update. Ordering
// relative to Submit calls is the queue order.
func (p *Pipeline) Ingest(ctx context.Context, r detector.Reading) (LiveUpdate, error) {
	reply := make(chan LiveUpdate, 1)
	if err := p.enqueue(ctx, job{reading: r, reply: reply}); err != nil {
		return LiveUpdate{}, err
	}
	select {
	case update := <-reply:
		return update, nil
	case <-ctx.Done():
		return LiveUpdate{}, ctx.Err()
	}
}

func (p *Pipeline) enqueue(ctx context.Context, j job) error {
	select {
	case p.queue <- j:
		if p.metrics != nil {
			p.metrics.IngestBacklog.Set(float64(len(p.queue)))
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrBacklogFull
	}
}

// Run consumes the queue until ctx is canceled. Exactly one Run must be
// active; it is the buffer's single writer.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case j := <-p.queue:
			if p.metrics != nil {
				p.metrics.IngestBacklog.Set(float64(len(p.queue)))
			}
			update := p.process(ctx, j.reading)
			if j.reply != nil {
				j.reply <- update
			}
			if p.feed != nil {
				p.feed.Broadcast(update)
			}
		}
	}
}

func (p *Pipeline) process(ctx context.Context, r detector.Reading) LiveUpdate {
	if r.Timestamp.IsZero() {
		r.Timestamp = p.now().UTC()
	}
	p.buffer.Push(r)

	update := LiveUpdate{
		Type:      "reading",
		Timestamp: r.Timestamp,
		Status:    "scored",
	}

	score, err := p.det.Score(r)
	if err != nil {
		// Degrade, don't abort: the reading stays in the window but is
		// not scored, and the trigger state is untouched.
		p.logger.Warn("reading not scored", "error", err)
		if p.metrics != nil {
			p.metrics.ReadingsTotal.WithLabelValues("schema_mismatch").Inc()
		}
		state, _ := p.policy.State()
		update.Status = "schema_mismatch"
		update.State = state.String()
		return update
	}

	if p.metrics != nil {
		p.metrics.ReadingsTotal.WithLabelValues("scored").Inc()
		if score.Anomalous {
			p.metrics.AnomalousReadingsTotal.Inc()
		}
	}

	update.Score = score.Value
	update.Threshold = score.Threshold
	update.Anomalous = score.Anomalous
	update.Degraded = score.Degraded

	ep, fired := p.policy.Observe(score.Anomalous, r.Timestamp)
	if fired {
		update.EpisodeID = ep.ID
		p.dispatch(ctx, ep, r)
	}

	state, _ := p.policy.State()
	update.State = state.String()
	return update
}

// dispatch runs the pre-flight guards for a fresh episode and, when
// both pass, starts the analysis round asynchronously. The policy
// stays Dispatched until the round settles.
func (p *Pipeline) dispatch(ctx context.Context, ep Episode, r detector.Reading) {
	features := detector.TopFeatures(r, p.buffer, p.cfg.TopK)

	if ok, reason := p.change.ShouldAnalyze(features); !ok {
		p.logger.Info("analysis suppressed by change guard",
			"episode_id", ep.ID, "reason", reason)
		if p.metrics != nil {
			p.metrics.EpisodesTotal.WithLabelValues(observability.OutcomeChangeSkip).Inc()
		}
		p.policy.RoundSettled()
		return
	}

	if err := p.rate.Allow(p.now()); err != nil {
		var rle *RateLimitError
		retryAfter := time.Duration(0)
		if errors.As(err, &rle) {
			retryAfter = rle.RetryAfter
		}
		p.logger.Warn("analysis suppressed by rate guard",
			"episode_id", ep.ID, "retry_after", retryAfter.String(), "reason", err.Error())
		if p.metrics != nil {
			p.metrics.EpisodesTotal.WithLabelValues(observability.OutcomeRateLimited).Inc()
		}
		p.policy.RoundSettled()
		return
	}

	p.change.Record(features)
	if p.metrics != nil {
		p.metrics.EpisodesTotal.WithLabelValues(observability.OutcomeDispatched).Inc()
		p.metrics.ActiveAnalysisRounds.Inc()
	}

	comparison := detector.RenderComparison(features)
	summary := p.buffer.Summary()

	p.logger.Info("fault episode dispatched",
		"episode_id", ep.ID, "consecutive", ep.ConsecutiveCount, "channels", len(features))

	go p.runRound(ctx, ep, comparison, features, summary)
}

func (p *Pipeline) runRound(ctx context.Context, ep Episode, comparison string,
	features []detector.TopFeature, summary map[string]detector.ChannelStats) {

	ctx, span := pipelineTracer.Start(ctx, "pipeline.runRound")
	defer span.End()
	span.SetAttributes(attribute.String("episode_id", ep.ID))

	defer func() {
		p.policy.RoundSettled()
		if p.metrics != nil {
			p.metrics.ActiveAnalysisRounds.Dec()
		}
	}()

	start := p.now()
	result := p.analyzer.Analyze(ctx, analysis.Request{
		EpisodeID:         ep.ID,
		FeatureComparison: comparison,
		TopFeatures:       features,
	})
	elapsed := time.Since(start)

	if p.metrics != nil {
		label := "all_failed"
		if result.Succeeded() {
			label = "success"
		}
		p.metrics.AnalysisRoundSeconds.WithLabelValues(label).Observe(elapsed.Seconds())
		for id, pr := range result.Results {
			p.metrics.ProviderCallsTotal.WithLabelValues(id, string(pr.Status)).Inc()
		}
	}

	snapID := p.persist(ep, result, features, summary)

	if p.feed != nil {
		p.feed.Broadcast(LiveUpdate{
			Type:       "analysis",
			Timestamp:  p.now().UTC(),
			EpisodeID:  ep.ID,
			SnapshotID: snapID,
			AnySuccess: result.Succeeded(),
			State:      "settled",
			Status:     "scored",
		})
	}
}

// persist appends the round's snapshot. A persistence failure is logged
// and counted but never discards the computed results.
func (p *Pipeline) persist(ep Episode, result analysis.Result,
	features []detector.TopFeature, summary map[string]detector.ChannelStats) string {

	snapID, err := p.snapshots.Append(store.Snapshot{
		Timestamp:         p.now().UTC(),
		EpisodeID:         ep.ID,
		FeatureComparison: result.FeatureComparison,
		TopFeatures:       features,
		ProviderResults:   result.Results,
		SensorSummary:     summary,
	})
	if err != nil {
		p.logger.Error("snapshot append failed, results not persisted",
			"episode_id", ep.ID, "error", err)
		if p.metrics != nil {
			p.metrics.SnapshotFailuresTotal.Inc()
		}
		return ""
	}
	return snapID
}

// AnalyzeNow runs an operator-requested round for an explicit feature
// set, outside the trigger policy but still under the rate guard. The
// settled result is returned even when the snapshot append fails.
func (p *Pipeline) AnalyzeNow(ctx context.Context, episodeID string,
	features []detector.TopFeature) (analysis.Result, string, error) {

	if err := p.rate.Allow(p.now()); err != nil {
		return analysis.Result{}, "", err
	}
	if episodeID == "" {
		episodeID = uuid.NewString()
	}
	p.change.Record(features)

	comparison := detector.RenderComparison(features)
	result := p.analyzer.Analyze(ctx, analysis.Request{
		EpisodeID:         episodeID,
		FeatureComparison: comparison,
		TopFeatures:       features,
	})

	if p.metrics != nil {
		for id, pr := range result.Results {
			p.metrics.ProviderCallsTotal.WithLabelValues(id, string(pr.Status)).Inc()
		}
	}

	// No buffered summary here: the consumer loop owns the buffer, and
	// an operator-supplied feature set already carries its evidence.
	snapID := p.persist(Episode{ID: episodeID, StartedAt: p.now()}, result, features, nil)
	return result, snapID, nil
}

var _ Analyzer = (*analysis.Orchestrator)(nil)
var _ SnapshotAppender = (*store.SnapshotLog)(nil)
