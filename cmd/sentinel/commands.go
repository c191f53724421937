// Copyright (C) 2026 FaultSentinel Authors (maintainers@faultsentinel.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"os"

	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	serverURL      string
	jsonOutput     bool
	replayFile     string
	replayInterval string
	snapshotLimit  int
	renameName     string
	renameTags     []string
	extendBy       string
	toggleEnabled  bool

	rootCmd = &cobra.Command{
		Use:   "sentinel",
		Short: "A cli to operate a running FaultSentinel monitor service",
		Long: `Sentinel talks to the FaultSentinel monitor service over HTTP:
stream recorded plant data into it, inspect analysis snapshots, and
manage providers and the metered analysis session.`,
	}

	// --- Replay ---
	replayCmd = &cobra.Command{
		Use:   "replay",
		Short: "Stream a recorded CSV of sensor readings into the monitor",
		Run:   runReplayCommand, // Defined in cmd_replay.go
	}

	// --- Snapshots ---
	snapshotsCmd = &cobra.Command{
		Use:   "snapshots",
		Short: "Inspect stored analysis snapshots",
	}
	snapshotsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List stored snapshots, most recent first",
		Run:   runSnapshotsList, // Defined in cmd_snapshots.go
	}
	snapshotsGetCmd = &cobra.Command{
		Use:   "get [snapshot_id]",
		Short: "Fetch one snapshot in full",
		Args:  cobra.ExactArgs(1),
		Run:   runSnapshotsGet, // Defined in cmd_snapshots.go
	}
	snapshotsRenameCmd = &cobra.Command{
		Use:   "rename [snapshot_id]",
		Short: "Set a snapshot's name and tags",
		Args:  cobra.ExactArgs(1),
		Run:   runSnapshotsRename, // Defined in cmd_snapshots.go
	}

	// --- Providers ---
	providersCmd = &cobra.Command{
		Use:   "providers",
		Short: "Inspect and toggle analysis providers",
	}
	providersListCmd = &cobra.Command{
		Use:   "list",
		Short: "List registered providers and their state",
		Run:   runProvidersList, // Defined in cmd_providers.go
	}
	providersToggleCmd = &cobra.Command{
		Use:   "toggle [provider_id]",
		Short: "Enable or disable one provider",
		Args:  cobra.ExactArgs(1),
		Run:   runProvidersToggle, // Defined in cmd_providers.go
	}
	usageCmd = &cobra.Command{
		Use:   "usage",
		Short: "Show per-provider call counts and estimated cost",
		Run:   runUsage, // Defined in cmd_providers.go
	}

	// --- Session ---
	sessionCmd = &cobra.Command{
		Use:   "session",
		Short: "Manage the metered analysis session",
	}
	sessionStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show whether a metered session is active and its remaining time",
		Run:   runSessionStatus, // Defined in cmd_session.go
	}
	sessionExtendCmd = &cobra.Command{
		Use:   "extend",
		Short: "Push the metered session's expiry forward",
		Run:   runSessionExtend, // Defined in cmd_session.go
	}
	sessionShutdownCmd = &cobra.Command{
		Use:   "shutdown",
		Short: "End the metered session and disable metered providers now",
		Run:   runSessionShutdown, // Defined in cmd_session.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server",
		defaultServerURL(), "Base URL of the monitor service")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Output raw JSON for scripting")

	replayCmd.Flags().StringVarP(&replayFile, "file", "f", "",
		"CSV file of readings (header row names the channels)")
	replayCmd.Flags().StringVarP(&replayInterval, "interval", "i", "1s",
		"Delay between readings (e.g. 500ms, 1s, 3s)")
	replayCmd.MarkFlagRequired("file")

	snapshotsListCmd.Flags().IntVarP(&snapshotLimit, "limit", "n", 20,
		"Maximum number of snapshots to list")
	snapshotsRenameCmd.Flags().StringVar(&renameName, "name", "",
		"Human-readable snapshot name")
	snapshotsRenameCmd.Flags().StringSliceVar(&renameTags, "tags", nil,
		"Comma-separated tags")

	providersToggleCmd.Flags().BoolVar(&toggleEnabled, "enabled", true,
		"Target state for the provider")

	sessionExtendCmd.Flags().StringVarP(&extendBy, "duration", "d", "30m",
		"How far to push the expiry (e.g. 30m, 1h)")

	snapshotsCmd.AddCommand(snapshotsListCmd, snapshotsGetCmd, snapshotsRenameCmd)
	providersCmd.AddCommand(providersListCmd, providersToggleCmd)
	sessionCmd.AddCommand(sessionStatusCmd, sessionExtendCmd, sessionShutdownCmd)
	rootCmd.AddCommand(replayCmd, snapshotsCmd, providersCmd, usageCmd, sessionCmd)
}

func defaultServerURL() string {
	if url := os.Getenv("SENTINEL_SERVER"); url != "" {
		return url
	}
	return "http://localhost:8090"
}
