// Copyright (C) 2026 FaultSentinel Authors (maintainers@faultsentinel.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	serveBinary string
	serveConfig string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the monitor service in the foreground",
		Long: `Starts the monitor service binary and streams its output.

The service handles its own graceful shutdown; Ctrl-C is forwarded so
in-flight analysis rounds settle before the process exits.`,
		Run: runServeCommand, // Defined below
	}
)

func init() {
	serveCmd.Flags().StringVar(&serveBinary, "bin", "monitor-service",
		"Monitor service binary to run (looked up on PATH)")
	serveCmd.Flags().StringVarP(&serveConfig, "config", "c", "",
		"Config file passed to the service via SENTINEL_CONFIG")
	rootCmd.AddCommand(serveCmd)
}

func runServeCommand(cmd *cobra.Command, args []string) {
	path, err := exec.LookPath(serveBinary)
	if err != nil {
		fatalf("Cannot find %s on PATH: %v\nBuild it with: go build -o monitor-service ./services/monitor", serveBinary, err)
	}

	service := exec.Command(path)
	service.Stdout = os.Stdout
	service.Stderr = os.Stderr
	service.Env = os.Environ()
	if serveConfig != "" {
		service.Env = append(service.Env, "SENTINEL_CONFIG="+serveConfig)
	}

	// Forward interrupts so the service shuts down gracefully instead of
	// dying with the CLI's process group.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	if err := service.Start(); err != nil {
		fatalf("Failed to start %s: %v", path, err)
	}
	go func() {
		for sig := range signals {
			service.Process.Signal(sig)
		}
	}()

	fmt.Printf("Monitor service running (pid %d)\n", service.Process.Pid)
	if err := service.Wait(); err != nil {
		fatalf("Monitor service exited: %v", err)
	}
}
