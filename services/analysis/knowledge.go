// Copyright (C) 2026 FaultSentinel Authors (maintainers@faultsentinel.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// KnowledgeSource is one passage returned by the external retrieval
// service.
type KnowledgeSource struct {
	Title   string `json:"title"`
	Excerpt string `json:"excerpt"`
}

// KnowledgeSearcher looks up plant documentation relevant to a
// question. The retrieval service itself (ingestion, vector store) is
// an external collaborator; this core only queries it.
type KnowledgeSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]KnowledgeSource, error)
}

// NopKnowledgeSearcher returns no sources. Used when no retrieval
// service is deployed.
type NopKnowledgeSearcher struct{}

// Search implements KnowledgeSearcher.
func (NopKnowledgeSearcher) Search(ctx context.Context, query string, limit int) ([]KnowledgeSource, error) {
	return nil, nil
}

// HTTPKnowledgeSearcher queries the retrieval service over HTTP.
type HTTPKnowledgeSearcher struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPKnowledgeSearcher creates a searcher against the service at
// baseURL (e.g. "http://knowledge:8200").
func NewHTTPKnowledgeSearcher(baseURL string, logger *slog.Logger) *HTTPKnowledgeSearcher {
	return &HTTPKnowledgeSearcher{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

type knowledgeSearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type knowledgeSearchResponse struct {
	Results []KnowledgeSource `json:"results"`
}

// Search implements KnowledgeSearcher.
func (s *HTTPKnowledgeSearcher) Search(ctx context.Context, query string, limit int) ([]KnowledgeSource, error) {
	payload, err := json.Marshal(knowledgeSearchRequest{Query: query, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("marshal knowledge query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST",
		s.baseURL+"/v1/knowledge/search", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create knowledge request: %w", err)
	}
	req.Header.Set("content-type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("knowledge service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("knowledge service returned status %d: %s", resp.StatusCode, string(body))
	}

	var decoded knowledgeSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode knowledge response: %w", err)
	}
	return decoded.Results, nil
}
