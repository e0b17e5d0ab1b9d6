package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"reelstream/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected missing config to report exists=false")
	}
	if resolved != path {
		t.Fatalf("expected resolved path %q, got %q", path, resolved)
	}
	if cfg.Transcoding.MaxConcurrent != 2 {
		t.Fatalf("expected default max_concurrent 2, got %d", cfg.Transcoding.MaxConcurrent)
	}
	if cfg.Buffering.AggressiveSpeed != 4.0 || cfg.Buffering.ConservativeSpeed != 2.0 {
		t.Fatalf("unexpected buffering defaults: %+v", cfg.Buffering)
	}
}

func TestLoadParsesAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `
[paths]
library_dir = "` + filepath.Join(dir, "library") + `"
output_dir = "` + filepath.Join(dir, "streams") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"

[transcoding]
max_concurrent = 4
source_extensions = ["MKV", "mp4", "", ".mp4"]

[logging]
format = "JSON"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to be found")
	}
	if cfg.Transcoding.MaxConcurrent != 4 {
		t.Fatalf("expected max_concurrent 4, got %d", cfg.Transcoding.MaxConcurrent)
	}
	want := []string{".mkv", ".mp4"}
	if len(cfg.Transcoding.SourceExtensions) != len(want) {
		t.Fatalf("expected extensions %v, got %v", want, cfg.Transcoding.SourceExtensions)
	}
	for i, ext := range want {
		if cfg.Transcoding.SourceExtensions[i] != ext {
			t.Fatalf("expected extensions %v, got %v", want, cfg.Transcoding.SourceExtensions)
		}
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected json log format, got %q", cfg.Logging.Format)
	}
}

func TestValidateRejectsInvertedBufferThresholds(t *testing.T) {
	cfg := config.Default()
	cfg.Buffering.AggressiveSpeed = 1.0
	cfg.Buffering.ConservativeSpeed = 2.0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for inverted thresholds")
	}
}

func TestValidateRejectsSharedLibraryAndOutput(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.LibraryDir = dir
	cfg.Paths.OutputDir = dir
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for shared library/output dir")
	}
}

func TestSocketPathDefaultsUnderLogDir(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = "/tmp/reelstream-logs"
	got := cfg.SocketPath()
	if got != filepath.Join(cfg.Paths.LogDir, "reelstreamd.sock") {
		t.Fatalf("unexpected socket path %q", got)
	}
}
