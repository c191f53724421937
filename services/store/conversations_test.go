// Copyright (C) 2026 FaultSentinel Authors (maintainers@faultsentinel.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestConversations(t *testing.T) *ConversationStore {
	t.Helper()
	db, err := OpenBadger(InMemoryBadgerConfig())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewConversationStore(db)
}

func TestConversationStore_HistoryPreservesAppendOrder(t *testing.T) {
	s := openTestConversations(t)
	ctx := context.Background()

	require.NoError(t, s.AppendTurn(ctx, "snap-1", Turn{Role: "user", Content: "What failed?"}))
	require.NoError(t, s.AppendTurn(ctx, "snap-1", Turn{Role: "assistant", Content: "Condenser cooling.", Provider: "anthropic"}))
	require.NoError(t, s.AppendTurn(ctx, "snap-1", Turn{Role: "user", Content: "Which valve?"}))

	turns, err := s.History(ctx, "snap-1", 0)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, "What failed?", turns[0].Content)
	assert.Equal(t, "Condenser cooling.", turns[1].Content)
	assert.Equal(t, "anthropic", turns[1].Provider)
	assert.Equal(t, "Which valve?", turns[2].Content)
}

func TestConversationStore_LimitReturnsMostRecentOldestFirst(t *testing.T) {
	s := openTestConversations(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, s.AppendTurn(ctx, "snap-1", Turn{Role: "user", Content: fmt.Sprintf("turn %d", i)}))
	}

	turns, err := s.History(ctx, "snap-1", 3)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, "turn 7", turns[0].Content)
	assert.Equal(t, "turn 9", turns[2].Content)
}

func TestConversationStore_SnapshotsAreIsolated(t *testing.T) {
	s := openTestConversations(t)
	ctx := context.Background()

	require.NoError(t, s.AppendTurn(ctx, "snap-1", Turn{Role: "user", Content: "about snap 1"}))
	require.NoError(t, s.AppendTurn(ctx, "snap-2", Turn{Role: "user", Content: "about snap 2"}))

	turns, err := s.History(ctx, "snap-1", 0)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "about snap 1", turns[0].Content)

	empty, err := s.History(ctx, "never-chatted", 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
