package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/loopcall/internal/adapters/http"
	"github.com/dkeye/loopcall/internal/adapters/media"
	"github.com/dkeye/loopcall/internal/adapters/memory"
	"github.com/dkeye/loopcall/internal/adapters/rtc"
	"github.com/dkeye/loopcall/internal/app/orch"
	"github.com/dkeye/loopcall/internal/config"
	"github.com/dkeye/loopcall/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	zerolog.SetGlobalLevel(cfg.Level())

	peers, closePeers, err := newPeerFactory(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("engine", cfg.Engine).Msg("failed to create peer factory")
	}
	defer closePeers()

	devices := media.NewDevices(mediaOptions(cfg))
	coord := orch.NewCoordinator(peers, devices, orch.Options{
		Audio:     cfg.Audio,
		AutoMedia: cfg.AutoMedia,
	})
	if err := coord.Start(ctx); err != nil {
		log.Error().Err(err).Msg("initial session start failed")
	}

	r := router.SetupRouter(ctx, cfg, coord)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("engine", cfg.Engine).Msg("loopcall server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := coord.Close(); err != nil {
		log.Error().Err(err).Msg("session close")
	}
	log.Info().Msg("Server exited gracefully")
}

func newPeerFactory(cfg *config.Config) (core.PeerFactory, func(), error) {
	switch cfg.Engine {
	case config.EnginePion:
		f, err := rtc.NewFactory(rtc.Options{
			ICEServers:     cfg.ICEServers,
			PLIInterval:    cfg.PLIInterval,
			VirtualNetwork: cfg.VNet,
		})
		if err != nil {
			return nil, nil, err
		}
		return f, func() {
			if err := f.Close(); err != nil {
				log.Error().Err(err).Str("module", "webrtc").Msg("factory close")
			}
		}, nil
	default:
		f := memory.NewFactory(memory.Options{
			CandidatesPerDescription: cfg.Memory.CandidatesPerDescription,
		})
		return f, func() {}, nil
	}
}

func mediaOptions(cfg *config.Config) media.Options {
	opts := media.Options{PumpInterval: cfg.Media.PumpInterval}
	// Packets only matter when a real transport carries them.
	if cfg.Engine != config.EnginePion {
		opts.PumpInterval = 0
	}
	for _, c := range cfg.Media.Cameras {
		opts.Cameras = append(opts.Cameras, media.Camera{ID: c.ID, Label: c.Label, Unavailable: c.Unavailable})
	}
	return opts
}
