package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Contract runtime modes.
const (
	RuntimeHardhat = "hardhat"
	RuntimeConnect = "connect"
)

// Settings are the process settings read from the environment.
type Settings struct {
	Network         string `env:"NETWORK"          envDefault:"localhost"`
	RoundConfigDir  string `env:"ROUND_CONFIG_DIR" envDefault:"api/config"`
	Port            string `env:"PORT"             envDefault:"8080"`
	LeaderboardPath string `env:"LEADERBOARD_PATH" envDefault:"api/data/leaderboard.json"`

	ContractRuntime     string        `env:"CONTRACT_RUNTIME"      envDefault:"hardhat"`
	HardhatBin          string        `env:"HARDHAT_BIN"           envDefault:"npx"`
	HardhatDir          string        `env:"HARDHAT_DIR"           envDefault:"."`
	ScoresPath          string        `env:"SCORES_PATH"           envDefault:"alt-player-scores.csv"`
	ContractRuntimeURL  string        `env:"CONTRACT_RUNTIME_URL"`
	ContractCallTimeout time.Duration `env:"CONTRACT_CALL_TIMEOUT" envDefault:"2m"`
	// ContractBridge serves the hardhat runtime over Connect for other processes.
	ContractBridge bool `env:"CONTRACT_BRIDGE" envDefault:"false"`

	NATSURL         string `env:"NATS_URL"`
	SnapshotHistory bool   `env:"SNAPSHOT_HISTORY" envDefault:"false"`

	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`
}

func loadSettings() (Settings, error) {
	var s Settings
	if err := env.Parse(&s); err != nil {
		return Settings{}, fmt.Errorf("parse env: %w", err)
	}

	s.ContractRuntime = strings.ToLower(strings.TrimSpace(s.ContractRuntime))
	switch s.ContractRuntime {
	case RuntimeHardhat:
	case RuntimeConnect:
		if s.ContractRuntimeURL == "" {
			return Settings{}, fmt.Errorf("CONTRACT_RUNTIME_URL is required when CONTRACT_RUNTIME=%s", RuntimeConnect)
		}
		if s.ContractBridge {
			return Settings{}, fmt.Errorf("CONTRACT_BRIDGE requires CONTRACT_RUNTIME=%s", RuntimeHardhat)
		}
	default:
		return Settings{}, fmt.Errorf("unknown CONTRACT_RUNTIME %q", s.ContractRuntime)
	}
	return s, nil
}

func setupLogging(s Settings, out io.Writer) error {
	level, err := zerolog.ParseLevel(s.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	zerolog.SetGlobalLevel(level)

	if s.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	} else {
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
	}
	return nil
}
