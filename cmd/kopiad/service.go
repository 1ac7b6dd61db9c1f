package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"kopiad/internal/config"
	"kopiad/internal/engine"
	"kopiad/internal/ipc"
	"kopiad/internal/locate"
)

func buildServiceCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Background-service host and its control commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("service requires a subcommand: run|status|stop")
		},
	}
	run := &cobra.Command{
		Use:   "run",
		Short: "Run the service host: default engine instance plus the pipe endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(true)
			if err != nil {
				return err
			}
			return runService(cfg)
		},
	}
	status := &cobra.Command{
		Use:   "status",
		Short: "Query a running service host over the pipe",
		RunE: func(cmd *cobra.Command, args []string) error {
			return callAndPrint(ipc.Request{Command: ipc.CommandGetStatus})
		},
	}
	stop := &cobra.Command{
		Use:   "stop",
		Short: "Ask a running service host to stop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return callAndPrint(ipc.Request{Command: ipc.CommandStop})
		},
	}
	cmd.AddCommand(run, status, stop)
	return cmd
}

func callAndPrint(req ipc.Request) error {
	resp, err := ipc.Call(req)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// runService hosts the default engine instance and the service channel. The
// UI gateway is absent here; a user-session UI reaches the engine directly
// with the credentials obtained over the pipe.
func runService(cfg config.Config) error {
	logger := newLogger(cfg.LogLevel)

	enginePath := cfg.EnginePath
	if enginePath == "" {
		p, err := locate.Locate()
		if err != nil {
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

	stopRequested := make(chan struct{}, 1)
	srv, err := ipc.Listen(&ipc.Handler{
		Source: reg,
		OnStop: func() {
			select {
			case stopRequested <- struct{}{}:
			default:
			}
		},
	})
	if err != nil {
		return err
	}
	defer srv.Close()

	// The service host supervises a single default instance.
	if _, err := reg.Start(engine.DefaultRepoID, ""); err != nil {
		logger.Error().Err(err).Msg("default instance start failed")
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ReadyTimeoutSec)*time.Second)
		if err := reg.WaitReady(ctx, engine.DefaultRepoID); err != nil {
			logger.Error().Err(err).Msg("default instance not ready")
		}
		cancel()
	}

	logger.Info().Str("pipe", ipc.PipeName).Str("config_dir", cfg.ConfigDir).Msg("service host running")
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("service stopping")
	case <-stopRequested:
		logger.Info().Msg("stop requested over the service channel")
	}
	reg.StopAll()
	return nil
}
