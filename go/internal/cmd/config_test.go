package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettingsDefaults(t *testing.T) {
	s, err := loadSettings()
	require.NoError(t, err)

	assert.Equal(t, "localhost", s.Network)
	assert.Equal(t, "api/config", s.RoundConfigDir)
	assert.Equal(t, "api/data/leaderboard.json", s.LeaderboardPath)
	assert.Equal(t, RuntimeHardhat, s.ContractRuntime)
	assert.Equal(t, 2*time.Minute, s.ContractCallTimeout)
	assert.Empty(t, s.NATSURL)
	assert.False(t, s.SnapshotHistory)
}

func TestLoadSettingsConnectRuntime(t *testing.T) {
	t.Setenv("CONTRACT_RUNTIME", " Connect ")
	t.Setenv("CONTRACT_RUNTIME_URL", "http://bridge:8080")
	t.Setenv("CONTRACT_CALL_TIMEOUT", "30s")

	s, err := loadSettings()
	require.NoError(t, err)
	assert.Equal(t, RuntimeConnect, s.ContractRuntime)
	assert.Equal(t, 30*time.Second, s.ContractCallTimeout)
}

func TestLoadSettingsRejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"connect without url", map[string]string{"CONTRACT_RUNTIME": "connect"}},
		{"bridge over remote runtime", map[string]string{
			"CONTRACT_RUNTIME":     "connect",
			"CONTRACT_RUNTIME_URL": "http://bridge:8080",
			"CONTRACT_BRIDGE":      "true",
		}},
		{"unknown runtime", map[string]string{"CONTRACT_RUNTIME": "foundry"}},
		{"bad timeout", map[string]string{"CONTRACT_CALL_TIMEOUT": "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := loadSettings()
			assert.Error(t, err)
		})
	}
}

func TestSetupLoggingJSON(t *testing.T) {
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	var buf bytes.Buffer
	require.NoError(t, setupLogging(Settings{LogLevel: "warn", LogFormat: "json"}, &buf))

	log.Info().Msg("hidden")
	log.Warn().Str("network", "localhost").Msg("shown")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["message"])
	assert.Equal(t, "localhost", line["network"])
}

func TestSetupLoggingRejectsLevel(t *testing.T) {
	assert.Error(t, setupLogging(Settings{LogLevel: "loud"}, &bytes.Buffer{}))
}
