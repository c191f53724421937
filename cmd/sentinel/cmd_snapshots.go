// Copyright (C) 2026 FaultSentinel Authors (maintainers@faultsentinel.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/faultsentinel/faultsentinel/services/monitor/datatypes"
	"github.com/faultsentinel/faultsentinel/services/store"
)

func runSnapshotsList(cmd *cobra.Command, args []string) {
	var resp struct {
		Snapshots []store.SnapshotSummary `json:"snapshots"`
	}
	path := fmt.Sprintf("/v1/snapshots?limit=%d", snapshotLimit)
	if err := doJSON(http.MethodGet, path, nil, &resp); err != nil {
		fatalf("%v", err)
	}
	if jsonOutput {
		printJSON(resp.Snapshots)
		return
	}
	if len(resp.Snapshots) == 0 {
		fmt.Println("No snapshots stored.")
		return
	}
	for _, s := range resp.Snapshots {
		name := s.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Printf("%s  %s  %-30s providers=%v\n",
			s.ID, s.Timestamp.Format(time.RFC3339), name, s.Providers)
	}
}

func runSnapshotsGet(cmd *cobra.Command, args []string) {
	var snap store.Snapshot
	if err := doJSON(http.MethodGet, "/v1/snapshots/"+args[0], nil, &snap); err != nil {
		fatalf("%v", err)
	}
	if jsonOutput {
		printJSON(snap)
		return
	}

	fmt.Printf("Snapshot %s\n", snap.ID)
	if snap.Name != "" {
		fmt.Printf("Name:     %s\n", snap.Name)
	}
	fmt.Printf("Episode:  %s\n", snap.EpisodeID)
	fmt.Printf("Captured: %s\n", snap.Timestamp.Format(time.RFC3339))
	if len(snap.Tags) > 0 {
		fmt.Printf("Tags:     %v\n", snap.Tags)
	}
	if snap.FeatureComparison != "" {
		fmt.Printf("\n%s\n", snap.FeatureComparison)
	}
	for id, result := range snap.ProviderResults {
		fmt.Printf("\n--- %s [%s, %dms] ---\n", id, result.Status, result.LatencyMs)
		if result.Text != "" {
			fmt.Println(result.Text)
		}
		if result.Error != "" {
			fmt.Printf("error: %s\n", result.Error)
		}
	}
}

func runSnapshotsRename(cmd *cobra.Command, args []string) {
	req := datatypes.RenameRequest{Name: renameName, Tags: renameTags}
	if err := doJSON(http.MethodPatch, "/v1/snapshots/"+args[0], req, nil); err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("Snapshot %s updated.\n", args[0])
}
