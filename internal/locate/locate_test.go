package locate

import (
	"os"
	"path/filepath"
	"testing"
)

func writeBinary(t *testing.T, dir, name string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestBinaryName(t *testing.T) {
	cases := []struct {
		goos, goarch, want string
	}{
		{"linux", "amd64", "kopia-linux-x64"},
		{"darwin", "arm64", "kopia-darwin-arm64"},
		{"windows", "amd64", "kopia-windows-x64.exe"},
	}
	for _, c := range cases {
		got, err := BinaryName(c.goos, c.goarch)
		if err != nil || got != c.want {
			t.Fatalf("BinaryName(%s,%s)=%q err=%v want %q", c.goos, c.goarch, got, err, c.want)
		}
	}
	if _, err := BinaryName("plan9", "amd64"); err == nil {
		t.Fatalf("expected error for unsupported OS")
	}
	if _, err := BinaryName("linux", "mips"); err == nil {
		t.Fatalf("expected error for unsupported arch")
	}
}

func TestLocateEnvOverride(t *testing.T) {
	d := t.TempDir()
	p := writeBinary(t, d, "custom-kopia")
	getenv := func(k string) string {
		if k == EnvOverride {
			return p
		}
		return ""
	}
	got, err := locate("", "", getenv, "linux", "amd64")
	if err != nil || got != p {
		t.Fatalf("locate=%q err=%v want %q", got, err, p)
	}
}

func TestLocateEnvOverrideMissingFile(t *testing.T) {
	getenv := func(k string) string {
		if k == EnvOverride {
			return "/nonexistent/kopia"
		}
		return ""
	}
	_, err := locate("", "", getenv, "linux", "amd64")
	if !IsBinaryNotFound(err) {
		t.Fatalf("expected BinaryNotFound, got %v", err)
	}
	if sp := SearchedPaths(err); len(sp) != 1 || sp[0] != "/nonexistent/kopia" {
		t.Fatalf("unexpected searched paths: %v", sp)
	}
}

func TestLocateDevLayout(t *testing.T) {
	root := t.TempDir()
	name, _ := BinaryName("linux", "amd64")
	want := writeBinary(t, filepath.Join(root, "bin"), name)
	exeDir := filepath.Join(root, "out", "debug", "app")
	if err := os.MkdirAll(exeDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	got, err := locate(exeDir, "", func(string) string { return "" }, "linux", "amd64")
	if err != nil || got != want {
		t.Fatalf("locate=%q err=%v want %q", got, err, want)
	}
}

func TestLocateWorkingDirFallback(t *testing.T) {
	cwd := t.TempDir()
	name, _ := BinaryName("linux", "amd64")
	want := writeBinary(t, filepath.Join(cwd, "bin"), name)
	got, err := locate("", cwd, func(string) string { return "" }, "linux", "amd64")
	if err != nil || got != want {
		t.Fatalf("locate=%q err=%v want %q", got, err, want)
	}
}

func TestLocateNotFoundListsAllCandidates(t *testing.T) {
	exeDir := t.TempDir()
	cwd := t.TempDir()
	_, err := locate(exeDir, cwd, func(string) string { return "" }, "linux", "amd64")
	if !IsBinaryNotFound(err) {
		t.Fatalf("expected BinaryNotFound, got %v", err)
	}
	if sp := SearchedPaths(err); len(sp) != 4 {
		t.Fatalf("expected 4 searched paths, got %v", sp)
	}
}
