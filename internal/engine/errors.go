package engine

import "fmt"

// alreadyRunningError signals a duplicate start for a repository id.
type alreadyRunningError struct{ repoID string }

func (e alreadyRunningError) Error() string { return "repository already running: " + e.repoID }

// ErrAlreadyRunning constructs an alreadyRunningError.
func ErrAlreadyRunning(repoID string) error { return alreadyRunningError{repoID: repoID} }

// IsAlreadyRunning reports whether err indicates a duplicate start.
func IsAlreadyRunning(err error) bool {
	_, ok := err.(alreadyRunningError)
	return ok
}

// notRunningError signals an operation against an absent or stopped instance.
type notRunningError struct{ repoID string }

func (e notRunningError) Error() string { return "repository not running: " + e.repoID }

// ErrNotRunning constructs a notRunningError.
func ErrNotRunning(repoID string) error { return notRunningError{repoID: repoID} }

// IsNotRunning reports whether err indicates a missing instance.
func IsNotRunning(err error) bool {
	_, ok := err.(notRunningError)
	return ok
}

// spawnFailedError carries the captured stderr tail of an engine child that
// failed to start or exited during the grace window.
type spawnFailedError struct {
	cause  error
	stderr string
}

func (e spawnFailedError) Error() string {
	if e.stderr == "" {
		return fmt.Sprintf("engine spawn failed: %v", e.cause)
	}
	return fmt.Sprintf("engine spawn failed: %v; stderr tail: %s", e.cause, e.stderr)
}

func (e spawnFailedError) Unwrap() error { return e.cause }

// IsSpawnFailed reports whether err indicates a failed engine spawn.
func IsSpawnFailed(err error) bool {
	_, ok := err.(spawnFailedError)
	return ok
}

// SpawnStderr returns the captured stderr tail of a spawn failure.
func SpawnStderr(err error) string {
	if e, ok := err.(spawnFailedError); ok {
		return e.stderr
	}
	return ""
}

// notReadyError signals that the readiness probe did not succeed in time.
type notReadyError struct{ timeoutSec int }

func (e notReadyError) Error() string {
	return fmt.Sprintf("engine not ready after %ds", e.timeoutSec)
}

// IsNotReady reports whether err indicates a readiness timeout.
func IsNotReady(err error) bool {
	_, ok := err.(notReadyError)
	return ok
}

// NotReadyTimeout returns the deadline in seconds carried by a NotReady error.
func NotReadyTimeout(err error) int {
	if e, ok := err.(notReadyError); ok {
		return e.timeoutSec
	}
	return 0
}

// noPortAvailableError signals port-range exhaustion.
type noPortAvailableError struct{ start, end int }

func (e noPortAvailableError) Error() string {
	return fmt.Sprintf("no free port in range %d-%d", e.start, e.end)
}

// IsNoPortAvailable reports whether err indicates port-range exhaustion.
func IsNoPortAvailable(err error) bool {
	_, ok := err.(noPortAvailableError)
	return ok
}
