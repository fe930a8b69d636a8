package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags_Defaults(t *testing.T) {
	t.Setenv("MEETING_SERVER", "")
	t.Setenv("MEETING_CONTROL", "")

	cfg, err := parseFlags([]string{})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8090", cfg.ServerURL)
	assert.True(t, cfg.CanControl)
	assert.False(t, cfg.Offline)
}

func TestParseFlags_EnvVars(t *testing.T) {
	t.Setenv("MEETING_SERVER", "http://room.local:9000")
	t.Setenv("MEETING_NAME", "Ann")
	t.Setenv("MEETING_CONTROL", "false")

	cfg, err := parseFlags([]string{})
	require.NoError(t, err)
	assert.Equal(t, "http://room.local:9000", cfg.ServerURL)
	assert.Equal(t, "Ann", cfg.Name)
	assert.False(t, cfg.CanControl)
}

func TestParseFlags_CLIOverridesEnv(t *testing.T) {
	t.Setenv("MEETING_SERVER", "http://room.local:9000")
	t.Setenv("MEETING_CONTROL", "false")

	cfg, err := parseFlags([]string{"-s", "http://other:8090", "-control", "true", "-offline"})
	require.NoError(t, err)
	assert.Equal(t, "http://other:8090", cfg.ServerURL)
	assert.True(t, cfg.CanControl)
	assert.True(t, cfg.Offline)
}

func TestParseFlags_InvalidControl(t *testing.T) {
	_, err := parseFlags([]string{"-control", "maybe"})
	assert.Error(t, err)
}
