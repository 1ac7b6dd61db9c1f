package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"kopiad/internal/bridge"
	"kopiad/internal/config"
	"kopiad/internal/engine"
	"kopiad/internal/httpapi"
	"kopiad/internal/locate"
)

const shutdownTimeout = 5 * time.Second

func buildServeCmd(opts *cliOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(false)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			return runServe(cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (defaults "+config.DefaultAddr+")")
	return cmd
}

func runServe(cfg config.Config) error {
	logger := newLogger(cfg.LogLevel)
	httpapi.SetLogger(logger)

	enginePath := cfg.EnginePath
	if enginePath == "" {
		p, err := locate.Locate()
		if err != nil {
			if locate.IsBinaryNotFound(err) {
				logger.Error().Strs("searched", locate.SearchedPaths(err)).Msg("engine binary not found")
			}
			return err
		}
		enginePath = p
	}
	if err := config.EnsureDir(cfg.ConfigDir); err != nil {
		return err
	}

	reg := engine.NewRegistry(engine.Options{
		BinaryPath:     enginePath,
		ConfigDir:      cfg.ConfigDir,
		PortRangeStart: cfg.PortRangeStart,
		PortRangeEnd:   cfg.PortRangeEnd,
		ReadyTimeout:   time.Duration(cfg.ReadyTimeoutSec) * time.Second,
	})
	hub := httpapi.NewHub()
	br := bridge.New(hub)

	baseCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	httpapi.SetBaseContext(baseCtx)

	mux := httpapi.NewMux(httpapi.Deps{Registry: reg, Bridge: br, Hub: hub})
	srv := &http.Server{Addr: cfg.Addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Str("engine", enginePath).Str("config_dir", cfg.ConfigDir).Msg("kopiad listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	cancel()
	br.DisconnectAll()
	hub.Shutdown()
	reg.StopAll()
	ctx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
		return err
	}
	return nil
}
