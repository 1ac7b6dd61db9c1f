package locate

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// EnvOverride names the environment variable that short-circuits the search.
const EnvOverride = "KOPIAD_ENGINE_PATH"

const engineName = "kopia"

// binaryNotFoundError reports every path that was probed so packaging
// problems can be diagnosed from the error alone.
type binaryNotFoundError struct{ searched []string }

func (e binaryNotFoundError) Error() string {
	return "engine binary not found; searched: " + strings.Join(e.searched, ", ")
}

// IsBinaryNotFound reports whether err indicates a missing engine binary.
func IsBinaryNotFound(err error) bool {
	_, ok := err.(binaryNotFoundError)
	return ok
}

// SearchedPaths returns the probed paths carried by a BinaryNotFound error.
func SearchedPaths(err error) []string {
	if e, ok := err.(binaryNotFoundError); ok {
		return e.searched
	}
	return nil
}

// BinaryName returns the platform-specific engine binary filename,
// kopia-{os}-{arch}[.exe]. Architectures are reported in the engine's own
// naming (amd64 is published as x64).
func BinaryName(goos, goarch string) (string, error) {
	var arch string
	switch goarch {
	case "amd64":
		arch = "x64"
	case "arm64":
		arch = "arm64"
	default:
		return "", fmt.Errorf("unsupported architecture: %s", goarch)
	}
	switch goos {
	case "linux", "darwin":
		return engineName + "-" + goos + "-" + arch, nil
	case "windows":
		return engineName + "-windows-" + arch + ".exe", nil
	default:
		return "", fmt.Errorf("unsupported OS: %s", goos)
	}
}

// Locate resolves the absolute path of the engine binary for this host.
// Resolution order: env override, development layouts relative to the
// executable, packaged resources/bin, then ./bin in the working directory.
// Never mutates the filesystem.
func Locate() (string, error) {
	exeDir := ""
	if exe, err := os.Executable(); err == nil {
		exeDir = filepath.Dir(exe)
	}
	cwd, _ := os.Getwd()
	return locate(exeDir, cwd, os.Getenv, runtime.GOOS, runtime.GOARCH)
}

func locate(exeDir, cwd string, getenv func(string) string, goos, goarch string) (string, error) {
	if p := getenv(EnvOverride); p != "" {
		if fileExists(p) {
			return p, nil
		}
		return "", binaryNotFoundError{searched: []string{p}}
	}

	name, err := BinaryName(goos, goarch)
	if err != nil {
		return "", err
	}

	var candidates []string
	if exeDir != "" {
		// Development layouts, then the packaged layout.
		candidates = append(candidates,
			filepath.Join(exeDir, "..", "..", "..", "bin", name),
			filepath.Join(exeDir, "..", "..", "bin", name),
			filepath.Join(exeDir, "resources", "bin", name),
		)
	}
	if cwd != "" {
		candidates = append(candidates, filepath.Join(cwd, "bin", name))
	}

	searched := make([]string, 0, len(candidates))
	for _, c := range candidates {
		abs := c
		if a, err := filepath.Abs(c); err == nil {
			abs = a
		}
		searched = append(searched, abs)
		if fileExists(abs) {
			return abs, nil
		}
	}
	return "", binaryNotFoundError{searched: searched}
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}
