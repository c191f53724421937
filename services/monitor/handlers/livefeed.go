// Copyright (C) 2026 FaultSentinel Authors (maintainers@faultsentinel.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/faultsentinel/faultsentinel/services/monitor/pipeline"
)

const (
	feedWriteWait  = 10 * time.Second
	feedPongWait   = 60 * time.Second
	feedPingPeriod = (feedPongWait * 9) / 10
	feedSendBuffer = 64
)

var feedUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// LiveFeedHub fans pipeline updates out to websocket subscribers. It
// implements pipeline.Broadcaster; Broadcast never blocks the pipeline —
// a subscriber that cannot keep up is dropped.
type LiveFeedHub struct {
	mu      sync.RWMutex
	clients map[*feedClient]struct{}
	logger  *slog.Logger
}

type feedClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewLiveFeedHub creates an empty hub.
func NewLiveFeedHub(logger *slog.Logger) *LiveFeedHub {
	return &LiveFeedHub{
		clients: make(map[*feedClient]struct{}),
		logger:  logger,
	}
}

// Broadcast implements pipeline.Broadcaster.
func (h *LiveFeedHub) Broadcast(update pipeline.LiveUpdate) {
	payload, err := json.Marshal(update)
	if err != nil {
		h.logger.Error("failed to marshal live update", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- payload:
		default:
			// Slow subscriber: drop it rather than stall the pipeline.
			h.logger.Warn("live feed subscriber lagging, dropping",
				"remote", client.conn.RemoteAddr().String())
			close(client.send)
			delete(h.clients, client)
		}
	}
}

// Subscribers returns the current subscriber count.
func (h *LiveFeedHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *LiveFeedHub) register(c *feedClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *LiveFeedHub) unregister(c *feedClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// StreamLiveFeed upgrades the connection and streams pipeline updates
// until the client disconnects.
func StreamLiveFeed(hub *LiveFeedHub, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := feedUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Error("failed to upgrade live feed websocket", "error", err)
			return
		}

		client := &feedClient{conn: conn, send: make(chan []byte, feedSendBuffer)}
		hub.register(client)
		logger.Info("live feed subscriber connected", "remote", conn.RemoteAddr().String())

		go client.writePump(logger)
		client.readPump(hub, logger)
	}
}

// readPump drains control frames; the feed is broadcast-only.
func (c *feedClient) readPump(hub *LiveFeedHub, logger *slog.Logger) {
	defer func() {
		hub.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(feedPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(feedPongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("live feed read error", "error", err)
			}
			return
		}
	}
}

func (c *feedClient) writePump(logger *slog.Logger) {
	ticker := time.NewTicker(feedPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Warn("live feed write error", "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
