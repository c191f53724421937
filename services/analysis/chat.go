// Copyright (C) 2026 FaultSentinel Authors (maintainers@faultsentinel.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/faultsentinel/faultsentinel/services/llm"
	"github.com/faultsentinel/faultsentinel/services/store"
)

// ChatAnswer is the outcome of one follow-up question.
type ChatAnswer struct {
	Answer               string   `json:"answer"`
	KnowledgeSourcesUsed []string `json:"knowledge_sources_used"`
	ProviderUsed         string   `json:"provider_used"`
}

// ChatService answers free-form follow-up questions about a stored
// snapshot through exactly one chosen provider.
type ChatService struct {
	orchestrator  *Orchestrator
	snapshots     *store.SnapshotLog
	conversations *store.ConversationStore
	knowledge     KnowledgeSearcher
	contextBudget int
	logger        *slog.Logger
}

// NewChatService wires the chat surface. knowledge may be a
// NopKnowledgeSearcher when no retrieval service is deployed.
func NewChatService(orch *Orchestrator, snapshots *store.SnapshotLog,
	conversations *store.ConversationStore, knowledge KnowledgeSearcher,
	contextBudget int, logger *slog.Logger) *ChatService {

	if contextBudget <= 0 {
		contextBudget = DefaultContextBudget
	}
	return &ChatService{
		orchestrator:  orch,
		snapshots:     snapshots,
		conversations: conversations,
		knowledge:     knowledge,
		contextBudget: contextBudget,
		logger:        logger,
	}
}

// Ask rebuilds the snapshot's context, enriches it with knowledge-base
// passages, and queries the chosen provider. Knowledge lookup failures
// degrade to an empty source list and never fail the question; a
// store.ErrNotFound from the snapshot lookup propagates to the caller.
func (c *ChatService) Ask(ctx context.Context, snapshotID, question, providerID string,
	recentHistory []store.Turn) (ChatAnswer, error) {

	snap, err := c.snapshots.Get(snapshotID)
	if err != nil {
		return ChatAnswer{}, err
	}

	history := recentHistory
	if len(history) == 0 && c.conversations != nil {
		history, err = c.conversations.History(ctx, snapshotID, 20)
		if err != nil {
			c.logger.Warn("conversation history unavailable, answering without it",
				"snapshot_id", snapshotID, "error", err)
			history = nil
		}
	}

	var sourceNames []string
	var sourceBlock strings.Builder
	if c.knowledge != nil {
		sources, kerr := c.knowledge.Search(ctx, question, 4)
		if kerr != nil {
			// Fail open: an unreachable knowledge base must not block
			// the operator's question.
			c.logger.Warn("knowledge lookup failed", "error", kerr)
		}
		for _, src := range sources {
			sourceNames = append(sourceNames, src.Title)
			fmt.Fprintf(&sourceBlock, "### %s\n%s\n", src.Title, src.Excerpt)
		}
	}

	systemContext := FollowUpSystemContext + "\n\n" + BuildContext(snap, history, c.contextBudget)
	if sourceBlock.Len() > 0 {
		systemContext += "\n## Plant documentation\n" + sourceBlock.String()
	}

	result := c.orchestrator.QueryOne(ctx, providerID, systemContext, question)
	if result.Status != llm.StatusSuccess {
		return ChatAnswer{}, fmt.Errorf("provider %s did not answer: %s (%s)",
			providerID, result.Status, result.Error)
	}

	if c.conversations != nil {
		now := time.Now().UTC()
		if err := c.conversations.AppendTurn(ctx, snapshotID,
			store.Turn{Role: "user", Content: question, Timestamp: now}); err != nil {
			c.logger.Error("failed to persist chat turn", "snapshot_id", snapshotID, "error", err)
		}
		if err := c.conversations.AppendTurn(ctx, snapshotID,
			store.Turn{Role: "assistant", Content: result.Text, Provider: providerID, Timestamp: now}); err != nil {
			c.logger.Error("failed to persist chat turn", "snapshot_id", snapshotID, "error", err)
		}
	}

	if sourceNames == nil {
		sourceNames = []string{}
	}
	return ChatAnswer{
		Answer:               result.Text,
		KnowledgeSourcesUsed: sourceNames,
		ProviderUsed:         providerID,
	}, nil
}
