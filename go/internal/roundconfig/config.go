package roundconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mcdev12/roundkeeper/go/internal/round"
	"gopkg.in/yaml.v3"
)

// DefaultRefreshInterval applies when scoreRefreshInterval is absent, zero or negative.
const DefaultRefreshInterval = 5 * time.Minute

// MaxRefreshMinutes bounds scoreRefreshInterval. Anything of an hour or more
// already fires once per hour.
const MaxRefreshMinutes = 24 * 60

var (
	// ErrInvalidInstant is returned when gameStart or gameEnd cannot be parsed.
	ErrInvalidInstant = errors.New("invalid ISO-8601 instant")
	// ErrInvalidWindow is returned when gameStart is not before gameEnd.
	ErrInvalidWindow = round.ErrInvalidWindow
	// ErrInvalidInterval is returned when scoreRefreshInterval exceeds MaxRefreshMinutes.
	ErrInvalidInterval = errors.New("invalid score refresh interval")
)

// Document mirrors the per-network configuration file. The files are JSON,
// which yaml.v3 decodes as well.
type Document struct {
	GameStart            string `yaml:"gameStart"`
	GameEnd              string `yaml:"gameEnd"`
	ScoreRefreshInterval int    `yaml:"scoreRefreshInterval"`
}

// Config is the validated, immutable round configuration.
type Config struct {
	Network         string
	Path            string
	Window          round.Window
	RefreshInterval time.Duration
}

// Path returns the location of the configuration document for a network.
func Path(dir, network string) string {
	return filepath.Join(dir, network+".json")
}

// Load reads and validates the configuration document of the given network.
func Load(dir, network string) (*Config, error) {
	if strings.TrimSpace(network) == "" {
		return nil, errors.New("network name is required")
	}

	path := Path(dir, network)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	cfg.Network = network
	cfg.Path = path
	return cfg, nil
}

// Parse validates a raw configuration document.
func Parse(data []byte) (*Config, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	start, err := parseInstant(doc.GameStart)
	if err != nil {
		return nil, fmt.Errorf("gameStart: %w", err)
	}
	end, err := parseInstant(doc.GameEnd)
	if err != nil {
		return nil, fmt.Errorf("gameEnd: %w", err)
	}

	window, err := round.NewWindow(start, end)
	if err != nil {
		return nil, err
	}

	interval := DefaultRefreshInterval
	if doc.ScoreRefreshInterval > MaxRefreshMinutes {
		return nil, fmt.Errorf("%w: %d minutes exceeds %d", ErrInvalidInterval, doc.ScoreRefreshInterval, MaxRefreshMinutes)
	}
	if doc.ScoreRefreshInterval > 0 {
		interval = time.Duration(doc.ScoreRefreshInterval) * time.Minute
	}

	return &Config{
		Window:          window,
		RefreshInterval: interval,
	}, nil
}

// Zone-less layouts are read as UTC.
var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

func parseInstant(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrInvalidInstant)
	}
	for _, layout := range instantLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidInstant, value)
}
