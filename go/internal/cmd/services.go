package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"

	"github.com/mcdev12/roundkeeper/go/internal/contract"
	"github.com/mcdev12/roundkeeper/go/internal/events"
	"github.com/mcdev12/roundkeeper/go/internal/gateway"
	"github.com/mcdev12/roundkeeper/go/internal/leaderboard"
	"github.com/mcdev12/roundkeeper/go/internal/lifecycle"
	"github.com/mcdev12/roundkeeper/go/internal/roundapi"
	"github.com/mcdev12/roundkeeper/go/internal/roundconfig"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Round     roundconfig.Config
	Contract  contract.RoundService
	Sink      *leaderboard.FileSink
	Pipeline  *leaderboard.Pipeline
	Scheduler *lifecycle.Scheduler
	Stream    *gateway.ConnectionManager
	// Bridge is set when the contract runtime is served to other processes.
	Bridge contract.RoundService
	Checks map[string]roundapi.Check

	closers []func()
}

// Close releases publishers and pools in reverse order of creation.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func setupContract(settings Settings) contract.RoundService {
	if settings.ContractRuntime == RuntimeConnect {
		log.Info().Str("url", settings.ContractRuntimeURL).Msg("using remote contract runtime")
		httpClient := &http.Client{Timeout: settings.ContractCallTimeout}
		return contract.NewRemote(httpClient, settings.ContractRuntimeURL)
	}

	log.Info().
		Str("bin", settings.HardhatBin).
		Str("dir", settings.HardhatDir).
		Str("network", settings.Network).
		Msg("using hardhat contract runtime")
	return contract.NewHardhat(contract.HardhatConfig{
		Bin:        settings.HardhatBin,
		Dir:        settings.HardhatDir,
		Network:    settings.Network,
		ScoresPath: settings.ScoresPath,
		Timeout:    settings.ContractCallTimeout,
	})
}

func setupServices(ctx context.Context, settings Settings, roundCfg roundconfig.Config) (*Services, error) {
	// Wire up the chain
	// contract runtime → leaderboard pipeline → scheduler → listeners/observers
	svc := &Services{Round: roundCfg, Checks: make(map[string]roundapi.Check)}

	svc.Contract = setupContract(settings)
	if settings.ContractBridge {
		svc.Bridge = svc.Contract
	}

	svc.Sink = leaderboard.NewFileSink(settings.LeaderboardPath)
	svc.Pipeline = leaderboard.NewPipeline(svc.Contract, svc.Sink, nil)
	svc.Scheduler = lifecycle.NewScheduler(lifecycle.Config{
		Window:          roundCfg.Window,
		RefreshInterval: roundCfg.RefreshInterval,
		Runtime:         svc.Contract,
		Snapshotter:     svc.Pipeline,
	})

	// Live stream
	svc.Stream = gateway.NewConnectionManager(gateway.DefaultConnectionConfig(), settings.Network, svc.Sink, nil)
	svc.Pipeline.AddListener(svc.Stream)
	svc.Scheduler.AddObserver(svc.Stream)

	// Snapshot history
	if settings.SnapshotHistory {
		pool, err := setupDatabase(ctx)
		if err != nil {
			svc.Close()
			return nil, err
		}
		svc.closers = append(svc.closers, pool.Close)
		svc.Checks["database"] = pool.Ping

		history := leaderboard.NewHistoryStore(pool, settings.Network)
		if err := history.EnsureSchema(ctx); err != nil {
			svc.Close()
			return nil, err
		}
		if err := restoreLeaderboard(ctx, history, svc.Sink); err != nil {
			log.Warn().Err(err).Msg("could not restore leaderboard from history")
		}
		svc.Pipeline.AddListener(history)
	}

	// Round events
	if settings.NATSURL != "" {
		jsCfg := events.DefaultJetStreamConfig()
		jsCfg.URL = settings.NATSURL
		publisher, err := events.NewJetStreamPublisher(ctx, jsCfg)
		if err != nil {
			svc.Close()
			return nil, fmt.Errorf("create JetStream publisher: %w", err)
		}
		svc.closers = append(svc.closers, func() {
			if err := publisher.Close(); err != nil {
				log.Error().Err(err).Msg("close publisher")
			}
		})

		svc.Checks["nats"] = publisher.Ping

		emitter := events.NewEmitter(publisher, settings.Network)
		svc.Pipeline.AddListener(emitter)
		svc.Scheduler.AddObserver(emitter)
	}

	return svc, nil
}

// restoreLeaderboard seeds a missing leaderboard document from the latest
// stored snapshot so a fresh host serves the last known standings.
func restoreLeaderboard(ctx context.Context, history *leaderboard.HistoryStore, sink *leaderboard.FileSink) error {
	if _, err := os.Stat(sink.Path()); !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	snap, ok, err := history.Latest(ctx)
	if err != nil || !ok {
		return err
	}
	if err := sink.Replace(ctx, snap); err != nil {
		return err
	}

	log.Info().
		Time("taken_at", snap.TakenAt).
		Int("entries", len(snap.Entries)).
		Msg("restored leaderboard from history")
	return nil
}

// compile-time checks
var (
	_ lifecycle.Runtime       = (*contract.Hardhat)(nil)
	_ lifecycle.Runtime       = (*contract.Remote)(nil)
	_ leaderboard.ScoreSource = (*contract.Hardhat)(nil)
	_ leaderboard.ScoreSource = (*contract.Remote)(nil)
	_ lifecycle.Snapshotter   = (*leaderboard.Pipeline)(nil)
	_ leaderboard.Listener    = (*gateway.ConnectionManager)(nil)
	_ lifecycle.Observer      = (*gateway.ConnectionManager)(nil)
	_ leaderboard.Listener    = (*events.Emitter)(nil)
	_ lifecycle.Observer      = (*events.Emitter)(nil)
	_ leaderboard.Listener    = (*leaderboard.HistoryStore)(nil)
)
