package main

import (
	"os"
	"path/filepath"
	"testing"

	"kopiad/internal/config"
)

func TestLoadConfigDefaults(t *testing.T) {
	opts := &cliOptions{}
	cfg, err := opts.loadConfig(false)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Addr != config.DefaultAddr {
		t.Fatalf("addr %q, want %q", cfg.Addr, config.DefaultAddr)
	}
	if cfg.PortRangeStart != config.DefaultPortRangeStart || cfg.PortRangeEnd != config.DefaultPortRangeEnd {
		t.Fatalf("port range %d-%d", cfg.PortRangeStart, cfg.PortRangeEnd)
	}
	if cfg.ReadyTimeoutSec != config.DefaultReadyTimeoutSec {
		t.Fatalf("ready timeout %d", cfg.ReadyTimeoutSec)
	}
}

func TestLoadConfigFileAndFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kopiad.yaml")
	body := "addr: 127.0.0.1:9999\nlog_level: debug\nport_range_start: 52000\nport_range_end: 52010\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	opts := &cliOptions{configPath: path, logLevel: "warn"}
	cfg, err := opts.loadConfig(false)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Addr != "127.0.0.1:9999" {
		t.Fatalf("addr %q", cfg.Addr)
	}
	// The flag wins over the file.
	if cfg.LogLevel != "warn" {
		t.Fatalf("log level %q, want warn", cfg.LogLevel)
	}
	if cfg.PortRangeStart != 52000 || cfg.PortRangeEnd != 52010 {
		t.Fatalf("port range %d-%d", cfg.PortRangeStart, cfg.PortRangeEnd)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	opts := &cliOptions{configPath: filepath.Join(t.TempDir(), "absent.yaml")}
	if _, err := opts.loadConfig(false); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestRootCommandTree(t *testing.T) {
	root := buildRootCmd()
	for _, name := range []string{"serve", "service"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("subcommand %q not found: %v", name, err)
		}
	}
	svc, _, _ := root.Find([]string{"service"})
	for _, name := range []string{"run", "status", "stop"} {
		cmd, _, err := svc.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("service subcommand %q not found: %v", name, err)
		}
	}
}
