package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"kopiad/internal/config"
)

type cliOptions struct {
	configPath string
	logLevel   string
}

// buildRootCmd constructs the Cobra command tree.
func buildRootCmd() *cobra.Command {
	opts := &cliOptions{}
	root := &cobra.Command{
		Use:           "kopiad",
		Short:         "Supervisor daemon for local Kopia engine instances",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to a yaml/json/toml config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug|info|warn|error")
	root.AddCommand(buildServeCmd(opts))
	root.AddCommand(buildServiceCmd(opts))
	return root
}

// loadConfig resolves the effective configuration: file first, flags on top,
// defaults last. service selects the system-data config directory.
func (o *cliOptions) loadConfig(service bool) (config.Config, error) {
	var cfg config.Config
	if o.configPath != "" {
		var err error
		cfg, err = config.Load(o.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if service && cfg.ConfigDir == "" {
		cfg.ConfigDir = config.DefaultConfigDir(true)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// newLogger builds the process logger at the configured level.
func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}
