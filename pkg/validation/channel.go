// Copyright (C) 2026 FaultSentinel Authors (maintainers@faultsentinel.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation utilities for externally
// supplied identifiers.
//
// This package contains validators for values that end up in log lines,
// file names, or store keys. Using these validators keeps malformed feed
// data from propagating past the ingestion boundary.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// channelPattern matches valid sensor channel names.
// Allows: letters, digits, spaces, dots, underscores, hyphens, parentheses
// and percent signs ("Reactor Pressure (kPa)", "Comp Work %").
// Max length: 64 characters.
var channelPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 ._\-()%]{0,63}$`)

// ValidateChannel validates a sensor channel name from the ingestion feed.
//
// Valid names:
//   - 1-64 characters
//   - start with a letter or digit
//   - letters, digits, spaces, dots, underscores, hyphens, parentheses, %
//
// Returns an error if the name is invalid.
//
// Example:
//
//	if err := validation.ValidateChannel(name); err != nil {
//	    return fmt.Errorf("invalid channel: %w", err)
//	}
func ValidateChannel(name string) error {
	if name == "" {
		return fmt.Errorf("channel name cannot be empty")
	}

	if !channelPattern.MatchString(name) {
		return fmt.Errorf("invalid channel name: %q (must be 1-64 alphanumeric chars, spaces, dots, underscores, hyphens, parens, or %%)", name)
	}

	return nil
}

// ValidateChannels validates every channel name in a reading.
// Returns an error listing all invalid names if any fail validation.
func ValidateChannels(names []string) error {
	var invalid []string
	for _, n := range names {
		if err := ValidateChannel(n); err != nil {
			invalid = append(invalid, n)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid channel names: %v", invalid)
	}
	return nil
}

// SanitizeChannel trims and validates a channel name.
// Returns the trimmed name if valid, or an error if invalid.
func SanitizeChannel(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if err := ValidateChannel(trimmed); err != nil {
		return "", err
	}
	return trimmed, nil
}
