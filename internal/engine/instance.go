package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"kopiad/pkg/types"
)

// ServerUsername is the fixed Basic-Auth username the engine is spawned with.
// The password is generated per instance.
const ServerUsername = "kopiad"

// csrfSentinel is sent when the engine runs with CSRF checks disabled.
const csrfSentinel = "-"

const (
	readyPath     = "/api/v1/repo/status"
	spawnGrace    = 300 * time.Millisecond
	probeInterval = 500 * time.Millisecond
	stopGrace     = 5 * time.Second
	stderrTailMax = 4096
)

// State is the lifecycle state of one engine instance.
type State string

const (
	StateStarting State = "starting"
	StateReady    State = "ready"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
	StateFailed   State = "failed"
)

// Options configures how engine instances are spawned.
type Options struct {
	BinaryPath       string
	ConfigDir        string
	Host             string // defaults to 127.0.0.1
	PortRangeStart   int
	PortRangeEnd     int
	ReadyTimeout     time.Duration // defaults to 30s
	OverrideHostname string
	OverrideUsername string
}

func (o *Options) applyDefaults() {
	if o.Host == "" {
		o.Host = "127.0.0.1"
	}
	if o.PortRangeStart == 0 {
		o.PortRangeStart = 51515
	}
	if o.PortRangeEnd < o.PortRangeStart {
		o.PortRangeEnd = o.PortRangeStart + 10
	}
	if o.ReadyTimeout == 0 {
		o.ReadyTimeout = 30 * time.Second
	}
}

// Instance owns exactly one engine child process: its port, its generated
// credentials, and a pre-built authenticated HTTP client. Credentials belong
// to the instance and are never logged.
type Instance struct {
	repoID types.RepoID
	opts   Options

	mu        sync.Mutex
	state     State
	cmd       *exec.Cmd
	pid       int
	port      int
	baseURL   string
	password  string
	csrfToken string
	startedAt time.Time
	client    *http.Client
	stderr    bytes.Buffer
	exitErr   error

	// doneCh is closed once the child process has been reaped.
	doneCh chan struct{}
}

func newInstance(repoID types.RepoID, opts Options) *Instance {
	opts.applyDefaults()
	return &Instance{
		repoID: repoID,
		opts:   opts,
		state:  StateStarting,
		doneCh: make(chan struct{}),
	}
}

// configFilePath pins the engine's on-disk config location for one
// repository. The engine owns the file; the daemon only names it.
func configFilePath(configDir string, repoID types.RepoID) string {
	return filepath.Join(configDir, "repository-"+string(repoID)+".config")
}

// start spawns the engine child and builds the authenticated client. It does
// not wait for readiness; see WaitReady. excludePorts carries the ports held
// by sibling instances so no two live instances ever share one.
func (inst *Instance) start(excludePorts map[int]bool) error {
	port, err := pickPortInRange(inst.opts.Host, inst.opts.PortRangeStart, inst.opts.PortRangeEnd, excludePorts)
	if err != nil {
		inst.fail()
		return err
	}
	password, err := generatePassword()
	if err != nil {
		inst.fail()
		return err
	}
	addr := net.JoinHostPort(inst.opts.Host, fmt.Sprint(port))
	baseURL := "http://" + addr

	cfgFile := configFilePath(inst.opts.ConfigDir, inst.repoID)
	if _, err := os.Stat(cfgFile); err == nil {
		// Leftover from an earlier run; the engine reconnects to whatever
		// repository the file names.
		log.Printf("engine=instance event=config_exists repo=%s file=%s", inst.repoID, cfgFile)
	}

	args := []string{
		"server", "start",
		"--ui",
		"--insecure",
		"--address", addr,
		"--server-username", ServerUsername,
		"--server-password", password,
		"--disable-csrf-token-checks",
		"--config-file", cfgFile,
	}
	if inst.opts.OverrideHostname != "" {
		args = append(args, "--override-hostname", inst.opts.OverrideHostname)
	}
	if inst.opts.OverrideUsername != "" {
		args = append(args, "--override-username", inst.opts.OverrideUsername)
	}

	cmd := exec.Command(inst.opts.BinaryPath, args...)
	cmd.Env = append(os.Environ(), "KOPIA_CHECK_FOR_UPDATES=false")
	cmd.Stdin = nil // child gets a closed stdin
	cmd.Stderr = &inst.stderr

	if err := cmd.Start(); err != nil {
		serr := spawnFailedError{cause: err}
		inst.fail()
		return serr
	}

	inst.mu.Lock()
	inst.cmd = cmd
	inst.pid = cmd.Process.Pid
	inst.port = port
	inst.baseURL = baseURL
	inst.password = password
	inst.csrfToken = csrfSentinel
	inst.startedAt = time.Now()
	inst.client = newEngineClient(ServerUsername, password, csrfSentinel)
	inst.mu.Unlock()

	go func() {
		err := cmd.Wait()
		inst.mu.Lock()
		inst.exitErr = err
		inst.mu.Unlock()
		close(inst.doneCh)
	}()

	// Grace window: poll the exit status once so a child that dies
	// immediately (bad flags, bind collision) fails the start call.
	select {
	case <-inst.doneCh:
		serr := spawnFailedError{cause: inst.exitError(), stderr: inst.stderrTail()}
		inst.fail()
		log.Printf("engine=instance event=exit_early repo=%s pid=%d err=%v", inst.repoID, inst.pid, inst.exitError())
		return serr
	case <-time.After(spawnGrace):
	}

	log.Printf("engine=instance event=start repo=%s pid=%d port=%d", inst.repoID, inst.pid, port)
	return nil
}

func (inst *Instance) fail() {
	inst.mu.Lock()
	inst.state = StateFailed
	inst.client = nil
	inst.mu.Unlock()
}

func (inst *Instance) exitError() error {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.exitErr
}

func (inst *Instance) stderrTail() string {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	tail := inst.stderr.String()
	if len(tail) > stderrTailMax {
		tail = tail[len(tail)-stderrTailMax:]
	}
	return tail
}

func (inst *Instance) exited() bool {
	select {
	case <-inst.doneCh:
		return true
	default:
		return false
	}
}

// WaitReady polls the engine's repo-status endpoint until it answers, the
// child exits, or the readiness deadline expires.
func (inst *Instance) WaitReady(ctx context.Context) error {
	timeoutSec := int(inst.opts.ReadyTimeout / time.Second)
	deadline := time.Now().Add(inst.opts.ReadyTimeout)
	for {
		if inst.exited() {
			serr := spawnFailedError{cause: inst.exitError(), stderr: inst.stderrTail()}
			inst.fail()
			return serr
		}
		inst.mu.Lock()
		client, baseURL := inst.client, inst.baseURL
		inst.mu.Unlock()
		if client != nil && probeOnce(ctx, client, baseURL) {
			inst.mu.Lock()
			if inst.state == StateStarting {
				inst.state = StateReady
			}
			inst.mu.Unlock()
			log.Printf("engine=instance event=ready repo=%s pid=%d url=%s", inst.repoID, inst.pid, baseURL)
			return nil
		}
		if time.Now().After(deadline) {
			inst.mu.Lock()
			if inst.state == StateStarting {
				inst.state = StateFailed
			}
			inst.mu.Unlock()
			log.Printf("engine=instance event=ready_timeout repo=%s pid=%d timeout_s=%d", inst.repoID, inst.pid, timeoutSec)
			return notReadyError{timeoutSec: timeoutSec}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-inst.doneCh:
			// loop re-checks the exit on the next iteration
		case <-time.After(probeInterval):
		}
	}
}

// probeOnce performs one readiness probe. Any 2xx counts, as does 404 and the
// engine's NOT_CONNECTED answer: a server with no repository connected is
// still a live server.
func probeOnce(ctx context.Context, client *http.Client, baseURL string) bool {
	pctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(pctx, http.MethodGet, baseURL+readyPath, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true
	case resp.StatusCode == http.StatusNotFound:
		return true
	case resp.StatusCode == http.StatusBadRequest:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return strings.Contains(string(b), "NOT_CONNECTED")
	default:
		return false
	}
}

// Stop terminates the child: SIGTERM first, then a kill after the grace
// period. Repeated calls after Stopped return NotRunning.
func (inst *Instance) Stop() error {
	inst.mu.Lock()
	if inst.state == StateStopped || inst.state == StateStopping || inst.cmd == nil {
		inst.mu.Unlock()
		return ErrNotRunning(string(inst.repoID))
	}
	inst.state = StateStopping
	cmd := inst.cmd
	inst.mu.Unlock()

	_ = cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-inst.doneCh:
	case <-time.After(stopGrace):
		_ = cmd.Process.Kill()
		<-inst.doneCh
	}

	inst.mu.Lock()
	inst.state = StateStopped
	inst.client = nil
	inst.mu.Unlock()
	log.Printf("engine=instance event=stop repo=%s pid=%d", inst.repoID, inst.pid)
	return nil
}

// Status is a cheap local read; it never touches the network. An instance
// counts as running while its process is alive, even when readiness has not
// been established yet.
func (inst *Instance) Status() types.InstanceStatus {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	running := inst.cmd != nil && inst.state != StateStopped && inst.state != StateStopping && !inst.exitedLocked()
	st := types.InstanceStatus{RepoID: inst.repoID, Running: running}
	if running {
		st.BaseURL = inst.baseURL
		st.Port = inst.port
		st.UptimeSeconds = int64(time.Since(inst.startedAt) / time.Second)
	}
	return st
}

func (inst *Instance) exitedLocked() bool {
	select {
	case <-inst.doneCh:
		return true
	default:
		return false
	}
}

// Info returns the connection details handed back from a successful start.
// This is the only surface that exposes the generated password.
func (inst *Instance) Info() types.InstanceInfo {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return types.InstanceInfo{
		RepoID:   inst.repoID,
		BaseURL:  inst.baseURL,
		Port:     inst.port,
		Password: inst.password,
		PID:      inst.pid,
	}
}

// Client returns the pre-built authenticated HTTP client, or nil unless the
// instance is Ready.
func (inst *Instance) Client() *http.Client {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.state != StateReady {
		return nil
	}
	return inst.client
}

// BaseURL returns the engine's HTTP base URL.
func (inst *Instance) BaseURL() string {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.baseURL
}

// Port returns the TCP port assigned at spawn, or 0 before spawn.
func (inst *Instance) Port() int {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.port
}

// Password returns the generated Basic-Auth password. Callers must not
// persist or log it.
func (inst *Instance) Password() string {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.password
}

// State returns the current lifecycle state.
func (inst *Instance) State() State {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.state
}
