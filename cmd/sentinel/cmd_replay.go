// Copyright (C) 2026 FaultSentinel Authors (maintainers@faultsentinel.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/faultsentinel/faultsentinel/services/monitor/datatypes"
)

// runReplayCommand streams a recorded CSV into the monitor.
//
// # Description
//
// Reads a CSV whose header row names the sensor channels (a "timestamp"
// column, when present, is parsed as RFC 3339 and forwarded), posts one
// reading per row to /v1/ingest at the configured interval, and prints
// each reading's score and trigger state. Episode dispatches are called
// out so an operator can watch a fault develop in real time.
//
// # Examples
//
//	sentinel replay -f runs/idv4.csv               # 1 reading per second
//	sentinel replay -f runs/idv4.csv -i 250ms      # 4x speed
//	sentinel replay -f runs/idv4.csv --json        # JSON per reading
//
// # Limitations
//
//   - The whole file is streamed; there is no seek or resume.
func runReplayCommand(cmd *cobra.Command, args []string) {
	interval, err := time.ParseDuration(replayInterval)
	if err != nil || interval < 0 {
		fatalf("Invalid interval %q: %v", replayInterval, err)
	}

	f, err := os.Open(replayFile)
	if err != nil {
		fatalf("Cannot open %s: %v", replayFile, err)
	}
	defer f.Close()

	channels, timestampCol, reader, err := readReplayHeader(f)
	if err != nil {
		fatalf("Bad replay file %s: %v", replayFile, err)
	}

	fmt.Printf("Replaying %s (%d channels, one reading per %s)\n",
		replayFile, len(channels), interval)

	row := 0
	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			fatalf("Row %d: %v", row+1, err)
		}
		row++

		req, err := buildReading(channels, timestampCol, record)
		if err != nil {
			fatalf("Row %d: %v", row, err)
		}

		var resp datatypes.IngestResponse
		if err := postReading(req, &resp); err != nil {
			fatalf("Row %d: %v", row, err)
		}

		if jsonOutput {
			printJSON(resp)
		} else {
			printReading(row, resp)
		}

		if tick != nil {
			<-tick
		}
	}

	fmt.Printf("Replay finished: %d readings sent\n", row)
}

// readReplayHeader consumes the header row and locates the optional
// timestamp column.
func readReplayHeader(f *os.File) (channels []string, timestampCol int, reader *csv.Reader, err error) {
	reader = csv.NewReader(f)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, -1, nil, fmt.Errorf("reading header: %w", err)
	}

	timestampCol = -1
	for i, name := range header {
		name = strings.TrimSpace(name)
		if strings.EqualFold(name, "timestamp") {
			timestampCol = i
			header[i] = ""
			continue
		}
		header[i] = name
	}
	if len(header) == 0 || (timestampCol >= 0 && len(header) == 1) {
		return nil, -1, nil, fmt.Errorf("header names no sensor channels")
	}
	return header, timestampCol, reader, nil
}

// buildReading turns one CSV record into an ingest request. Empty cells
// are dropped so partially-instrumented recordings still replay; the
// monitor degrades or rejects the reading as its schema rules dictate.
func buildReading(channels []string, timestampCol int, record []string) (datatypes.IngestRequest, error) {
	req := datatypes.IngestRequest{Values: make(map[string]float64, len(channels))}

	for i, cell := range record {
		if i >= len(channels) {
			break
		}
		cell = strings.TrimSpace(cell)
		if i == timestampCol {
			if cell != "" {
				ts, err := time.Parse(time.RFC3339, cell)
				if err != nil {
					return req, fmt.Errorf("bad timestamp %q: %w", cell, err)
				}
				req.Timestamp = ts
			}
			continue
		}
		if cell == "" || channels[i] == "" {
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return req, fmt.Errorf("channel %s: bad value %q", channels[i], cell)
		}
		req.Values[channels[i]] = v
	}

	if len(req.Values) == 0 {
		return req, fmt.Errorf("row carries no values")
	}
	return req, nil
}

func postReading(req datatypes.IngestRequest, resp *datatypes.IngestResponse) error {
	return doJSON(http.MethodPost, "/v1/ingest", req, resp)
}

func printReading(row int, resp datatypes.IngestResponse) {
	marker := " "
	if resp.Anomalous {
		marker = "!"
	}
	line := fmt.Sprintf("%s %5d  score=%8.2f  threshold=%.2f  state=%s",
		marker, row, resp.Score, resp.Threshold, resp.State)
	if resp.Status != "scored" {
		line += "  status=" + resp.Status
	}
	if resp.Degraded {
		line += "  degraded"
	}
	fmt.Println(line)
	if resp.EpisodeID != "" {
		fmt.Printf("  >>> fault episode dispatched: %s\n", resp.EpisodeID)
	}
}
