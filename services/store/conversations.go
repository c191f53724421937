// Copyright (C) 2026 FaultSentinel Authors (maintainers@faultsentinel.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Turn is one exchange in a snapshot's follow-up conversation.
type Turn struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Provider  string    `json:"provider,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationStore keeps follow-up chat turns keyed by snapshot id in
// the embedded badger instance. Turns are ordered by a per-snapshot
// sequence counter so history replays in exact append order.
type ConversationStore struct {
	db *BadgerDB
}

// NewConversationStore wraps an open badger instance.
func NewConversationStore(db *BadgerDB) *ConversationStore {
	return &ConversationStore{db: db}
}

func turnKey(snapshotID string, seq uint64) []byte {
	key := make([]byte, 0, len("turn/")+len(snapshotID)+1+8)
	key = append(key, "turn/"...)
	key = append(key, snapshotID...)
	key = append(key, '/')
	key = binary.BigEndian.AppendUint64(key, seq)
	return key
}

func seqKey(snapshotID string) []byte {
	return []byte("seq/" + snapshotID)
}

// AppendTurn stores one turn at the end of a snapshot's conversation.
func (s *ConversationStore) AppendTurn(ctx context.Context, snapshotID string, turn Turn) error {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}
	value, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("marshal turn: %w", err)
	}

	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		var seq uint64
		item, err := txn.Get(seqKey(snapshotID))
		switch {
		case err == nil:
			if err := item.Value(func(v []byte) error {
				if len(v) == 8 {
					seq = binary.BigEndian.Uint64(v)
				}
				return nil
			}); err != nil {
				return err
			}
		case errors.Is(err, badger.ErrKeyNotFound):
			// First turn for this snapshot.
		default:
			return err
		}

		if err := txn.Set(turnKey(snapshotID, seq), value); err != nil {
			return err
		}
		next := make([]byte, 8)
		binary.BigEndian.PutUint64(next, seq+1)
		return txn.Set(seqKey(snapshotID), next)
	})
}

// History returns a snapshot's turns in append order. A positive limit
// returns only the most recent turns, still oldest-first.
func (s *ConversationStore) History(ctx context.Context, snapshotID string, limit int) ([]Turn, error) {
	var turns []Turn

	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := []byte("turn/" + snapshotID + "/")
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var turn Turn
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &turn)
			}); err != nil {
				return err
			}
			turns = append(turns, turn)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read conversation %s: %w", snapshotID, err)
	}

	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns, nil
}
