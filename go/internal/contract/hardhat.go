package contract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Hardhat tasks driven by the service.
const (
	TaskResume       = "game:resume"
	TaskPause        = "game:pause"
	TaskPlayerScores = "alt:get-player-scores"
)

// DefaultScoresFile is where the player score task writes its table.
const DefaultScoresFile = "alt-player-scores.csv"

// HardhatConfig configures the hardhat task runner.
type HardhatConfig struct {
	// Bin is the launcher, "npx" by default.
	Bin string
	// Dir is the hardhat project directory tasks run in.
	Dir string
	// Network is passed as --network.
	Network string
	// ScoresPath is the CSV written by the score task, relative to Dir unless absolute.
	ScoresPath string
	// Timeout bounds a single task run.
	Timeout time.Duration
}

// Hardhat runs hardhat tasks as child processes. It acts as both the contract
// runtime and the score source.
type Hardhat struct {
	cfg HardhatConfig
}

// NewHardhat applies defaults and returns a runner.
func NewHardhat(cfg HardhatConfig) *Hardhat {
	if cfg.Bin == "" {
		cfg.Bin = "npx"
	}
	if cfg.Dir == "" {
		cfg.Dir = "."
	}
	if cfg.ScoresPath == "" {
		cfg.ScoresPath = DefaultScoresFile
	}
	if !filepath.IsAbs(cfg.ScoresPath) {
		cfg.ScoresPath = filepath.Join(cfg.Dir, cfg.ScoresPath)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &Hardhat{cfg: cfg}
}

// ResumeRound unpauses the game contract.
func (h *Hardhat) ResumeRound(ctx context.Context) error {
	return h.run(ctx, TaskResume)
}

// PauseRound pauses the game contract.
func (h *Hardhat) PauseRound(ctx context.Context) error {
	return h.run(ctx, TaskPause)
}

// FetchScores runs the player score task and returns the table it wrote.
func (h *Hardhat) FetchScores(ctx context.Context) ([]byte, error) {
	if err := h.run(ctx, TaskPlayerScores); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(h.cfg.ScoresPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read player scores: %w", err)
	}
	return data, nil
}

func (h *Hardhat) run(ctx context.Context, task string) error {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()

	args := []string{"hardhat", task}
	if h.cfg.Network != "" {
		args = append(args, "--network", h.cfg.Network)
	}

	cmd := exec.CommandContext(ctx, h.cfg.Bin, args...)
	cmd.Dir = h.cfg.Dir
	cmd.WaitDelay = time.Second
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	start := time.Now()
	err := cmd.Run()
	took := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w (%v)", ctx.Err(), err)
		}
		return fmt.Errorf("hardhat task %s failed: %w: %s", task, err, tail(output.String(), 512))
	}

	log.Debug().
		Str("task", task).
		Str("network", h.cfg.Network).
		Dur("took", took).
		Msg("hardhat task completed")
	return nil
}

func tail(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max:]
}
