// Copyright (C) 2026 FaultSentinel Authors (maintainers@faultsentinel.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateChannel_AcceptsReferenceNames(t *testing.T) {
	names := []string{
		"A Feed",
		"Reactor Pressure",
		"Comp Work",
		"D feed flow valve",
		"Stripper Temp (C)",
		"XMEAS-7",
		"sep_level",
	}
	for _, name := range names {
		assert.NoError(t, ValidateChannel(name), "expected %q to validate", name)
	}
}

func TestValidateChannel_RejectsMalformedNames(t *testing.T) {
	cases := map[string]string{
		"empty":           "",
		"leading space":   " A Feed",
		"newline":         "A\nFeed",
		"shell chars":     "A;rm -rf /",
		"too long":        strings.Repeat("x", 65),
		"null byte":       "A\x00Feed",
		"tab":             "A\tFeed",
	}
	for label, name := range cases {
		assert.Error(t, ValidateChannel(name), "case %s should fail", label)
	}
}

func TestValidateChannels_ReportsAllInvalid(t *testing.T) {
	err := ValidateChannels([]string{"A Feed", "", "ok", "bad\nname"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid channel names")
}

func TestSanitizeChannel_TrimsWhitespace(t *testing.T) {
	got, err := SanitizeChannel("  Reactor Level  ")
	require.NoError(t, err)
	assert.Equal(t, "Reactor Level", got)
}
