//
// Copyright (C) 2023 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "configuration.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[Service]
Port = 9090
LogLevel = "DEBUG"

[Reader]
Region = "FCC"
DualTarget = false

[StopConditions]
MaxNumberOfTags = 500
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Service.Port)
	assert.Equal(t, "DEBUG", cfg.Service.LogLevel)
	assert.Equal(t, "FCC", cfg.Reader.Region)
	assert.False(t, cfg.Reader.DualTarget)
	assert.Equal(t, uint32(500), cfg.StopConditions.MaxNumberOfTags)

	// Untouched values keep their defaults.
	assert.Equal(t, uint8(1), cfg.Reader.Antenna)
	assert.Equal(t, uint32(25), cfg.StopConditions.MaxNumberOfRounds)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestValidateRejectsAllZeroStopConditions(t *testing.T) {
	path := writeConfig(t, `
[StopConditions]
MaxNumberOfRounds = 0
MaxNumberOfTags = 0
MaxDurationUs = 0
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stop condition")
}

func TestValidateRejectsBadSession(t *testing.T) {
	cfg := Default()
	cfg.Reader.Session = 4
	assert.Error(t, cfg.Validate())
}

func TestValidateRequiresGpioChipInHardwareMode(t *testing.T) {
	cfg := Default()
	cfg.Hardware.UseSimulator = false
	cfg.Hardware.GpioChip = ""
	assert.Error(t, cfg.Validate())
}
