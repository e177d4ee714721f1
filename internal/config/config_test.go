// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	snap, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8765, snap.Server.Port)
	assert.Equal(t, 10, snap.Registry.MaxSessions)
	assert.Equal(t, 60*time.Second, snap.Registry.GracePeriod)
	assert.Equal(t, 5, snap.Emulator.ParallelMaxSessions)
	assert.Equal(t, "IBM-3278-2-E", snap.Emulator.TerminalType)
	assert.False(t, snap.Redis.Enabled)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MAX_SESSIONS", "3")
	t.Setenv("SESSION_GRACE_PERIOD", "15")
	t.Setenv("HOST_ADDRESS", "mainframe.example.com")
	t.Setenv("PARALLEL_MAX_SESSIONS", "2")

	snap, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Registry.MaxSessions)
	assert.Equal(t, 15*time.Second, snap.Registry.GracePeriod, "plain integers are seconds")
	assert.Equal(t, "mainframe.example.com", snap.Emulator.Host)
	assert.Equal(t, 2, snap.Emulator.ParallelMaxSessions)
}

func TestFileMergedUnderEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hostgw.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
registry:
  maxSessions: 4
  gracePeriodSeconds: 30
emulator:
  host: file-host.example.com
`), 0o600))

	t.Setenv("HOST_ADDRESS", "env-host.example.com")

	snap, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, snap.Server.Port, "file overrides default")
	assert.Equal(t, 4, snap.Registry.MaxSessions)
	assert.Equal(t, 30*time.Second, snap.Registry.GracePeriod)
	assert.Equal(t, "env-host.example.com", snap.Emulator.Host, "env wins over file")
}

func TestInvalidLimitsRejected(t *testing.T) {
	t.Setenv("MAX_SESSIONS", "0")
	_, err := Load("")
	require.Error(t, err)
}

func TestParseDurationFormats(t *testing.T) {
	t.Setenv("EMULATOR_MAX_WAIT", "1500ms")
	snap, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, snap.Emulator.MaxWait)
}
