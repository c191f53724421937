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

	"github.com/spf13/cobra"

	"github.com/faultsentinel/faultsentinel/services/llm"
	"github.com/faultsentinel/faultsentinel/services/monitor/datatypes"
)

func runProvidersList(cmd *cobra.Command, args []string) {
	var resp struct {
		Providers []llm.ProviderState `json:"providers"`
	}
	if err := doJSON(http.MethodGet, "/v1/providers", nil, &resp); err != nil {
		fatalf("%v", err)
	}
	if jsonOutput {
		printJSON(resp.Providers)
		return
	}
	for _, p := range resp.Providers {
		state := "disabled"
		if p.Enabled {
			state = "enabled"
		}
		kind := "local"
		if p.Metered {
			kind = fmt.Sprintf("metered ($%.4f/call)", p.CostPerCallUSD)
		}
		fmt.Printf("%-12s %-9s %s\n", p.ID, state, kind)
	}
}

func runProvidersToggle(cmd *cobra.Command, args []string) {
	req := datatypes.ToggleRequest{ProviderID: args[0], Enabled: &toggleEnabled}
	if err := doJSON(http.MethodPost, "/v1/providers/toggle", req, nil); err != nil {
		fatalf("%v", err)
	}
	state := "disabled"
	if toggleEnabled {
		state = "enabled"
	}
	fmt.Printf("Provider %s %s. Takes effect on the next analysis round.\n", args[0], state)
}

func runUsage(cmd *cobra.Command, args []string) {
	var resp struct {
		Usage map[string]llm.UsageStats `json:"usage"`
	}
	if err := doJSON(http.MethodGet, "/v1/usage", nil, &resp); err != nil {
		fatalf("%v", err)
	}
	if jsonOutput {
		printJSON(resp.Usage)
		return
	}
	if len(resp.Usage) == 0 {
		fmt.Println("No provider calls recorded.")
		return
	}
	fmt.Printf("%-12s %8s %8s %8s %8s %12s\n",
		"PROVIDER", "CALLS", "OK", "ERRORS", "TIMEOUTS", "EST. COST")
	for id, u := range resp.Usage {
		fmt.Printf("%-12s %8d %8d %8d %8d %11.4f$\n",
			id, u.Calls, u.Successes, u.Errors, u.Timeouts, u.EstimatedCostUSD)
	}
}
