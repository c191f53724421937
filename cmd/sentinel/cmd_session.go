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

	"github.com/faultsentinel/faultsentinel/services/llm"
	"github.com/faultsentinel/faultsentinel/services/monitor/datatypes"
)

func runSessionStatus(cmd *cobra.Command, args []string) {
	var status llm.SessionStatus
	if err := doJSON(http.MethodGet, "/v1/session", nil, &status); err != nil {
		fatalf("%v", err)
	}
	printSessionStatus(status)
}

func runSessionExtend(cmd *cobra.Command, args []string) {
	var status llm.SessionStatus
	req := datatypes.ExtendRequest{Duration: extendBy}
	if err := doJSON(http.MethodPost, "/v1/session/extend", req, &status); err != nil {
		fatalf("%v", err)
	}
	printSessionStatus(status)
}

func runSessionShutdown(cmd *cobra.Command, args []string) {
	var status llm.SessionStatus
	if err := doJSON(http.MethodPost, "/v1/session/shutdown", nil, &status); err != nil {
		fatalf("%v", err)
	}
	fmt.Println("Metered session ended; metered providers disabled.")
	printSessionStatus(status)
}

func printSessionStatus(status llm.SessionStatus) {
	if jsonOutput {
		printJSON(status)
		return
	}
	if !status.Active {
		fmt.Println("No active metered session.")
		return
	}
	remaining := time.Duration(status.RemainingSeconds) * time.Second
	fmt.Printf("Metered session active: %s remaining (expires %s, %d extension(s))\n",
		remaining, status.ExpiresAt.Format(time.RFC3339), status.ExtensionsGranted)
}
