package encoder_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"reelstream/internal/config"
	"reelstream/internal/encoder"
	"reelstream/internal/logging"
	"reelstream/internal/testsupport"
)

func newTestEncoder(t *testing.T, ffmpegScript string) (*encoder.Encoder, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	if ffmpegScript != "" {
		binDir := filepath.Join(testsupport.BaseDir(cfg), "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			t.Fatalf("mkdir bin: %v", err)
		}
		target := filepath.Join(binDir, "ffmpeg")
		if err := os.WriteFile(target, []byte(ffmpegScript), 0o755); err != nil {
			t.Fatalf("write stub ffmpeg: %v", err)
		}
		cfg.Transcoding.FFmpegBinary = target
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return encoder.New(cfg, logging.NewNop()), cfg
}

func TestOutputDirForIsDeterministicAndDistinct(t *testing.T) {
	enc, cfg := newTestEncoder(t, "")

	a := enc.OutputDirFor("/library/show/episode.mkv")
	b := enc.OutputDirFor("/library/show/episode.mkv")
	c := enc.OutputDirFor("/library/other/episode.mkv")

	if a != b {
		t.Fatalf("expected deterministic output dir, got %q and %q", a, b)
	}
	if a == c {
		t.Fatal("expected distinct output dirs for distinct sources sharing a basename")
	}
	if filepath.Dir(a) != cfg.Paths.OutputDir {
		t.Fatalf("expected output dir under %q, got %q", cfg.Paths.OutputDir, a)
	}
}

func TestRunSucceedsWhenManifestProduced(t *testing.T) {
	// Stub emits two progress blocks and writes the manifest like a real
	// segmented encode would.
	script := `#!/bin/sh
printf 'out_time_us=10000000\nspeed=2.0x\nprogress=continue\n'
printf 'out_time_us=20000000\nspeed=2.0x\nprogress=end\n'
: > index.m3u8
exit 0
`
	enc, cfg := newTestEncoder(t, script)

	source := filepath.Join(cfg.Paths.LibraryDir, "movie.mkv")
	testsupport.WriteFile(t, source, 64)

	var samples []encoder.Progress
	result, err := enc.Run(context.Background(), encoder.RunSpec{
		SourcePath: source,
		OutputDir:  enc.OutputDirFor(source),
		Duration:   40 * time.Second,
	}, func(p encoder.Progress) {
		samples = append(samples, p)
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !encoder.ManifestExists(result.OutputDir) {
		t.Fatal("expected manifest to exist after successful run")
	}
	if len(samples) != 2 {
		t.Fatalf("expected 2 progress samples, got %d", len(samples))
	}
	if samples[0].Percent != 25 || samples[1].Percent != 50 {
		t.Fatalf("unexpected percents: %+v", samples)
	}
}

func TestRunFailsOnNonZeroExitAndCleansUp(t *testing.T) {
	script := `#!/bin/sh
echo "Conversion failed!" >&2
exit 1
`
	enc, cfg := newTestEncoder(t, script)

	source := filepath.Join(cfg.Paths.LibraryDir, "broken.mkv")
	testsupport.WriteFile(t, source, 64)
	outputDir := enc.OutputDirFor(source)

	_, err := enc.Run(context.Background(), encoder.RunSpec{SourcePath: source, OutputDir: outputDir}, nil)
	var runErr *encoder.RunError
	if !errors.As(err, &runErr) {
		t.Fatalf("expected RunError, got %v", err)
	}
	if runErr.ExitCode != 1 {
		t.Fatalf("expected exit code 1, got %d", runErr.ExitCode)
	}
	if runErr.Stderr == "" {
		t.Fatal("expected captured stderr tail")
	}
	if _, statErr := os.Stat(outputDir); !os.IsNotExist(statErr) {
		t.Fatalf("expected partial output removed, stat err: %v", statErr)
	}
}

func TestRunFailsWhenManifestMissing(t *testing.T) {
	script := `#!/bin/sh
exit 0
`
	enc, cfg := newTestEncoder(t, script)

	source := filepath.Join(cfg.Paths.LibraryDir, "silent.mkv")
	testsupport.WriteFile(t, source, 64)

	_, err := enc.Run(context.Background(), encoder.RunSpec{SourcePath: source, OutputDir: enc.OutputDirFor(source)}, nil)
	var runErr *encoder.RunError
	if !errors.As(err, &runErr) {
		t.Fatalf("expected RunError for missing manifest, got %v", err)
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	script := `#!/bin/sh
sleep 30
`
	enc, cfg := newTestEncoder(t, script)

	source := filepath.Join(cfg.Paths.LibraryDir, "slow.mkv")
	testsupport.WriteFile(t, source, 64)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := enc.Run(ctx, encoder.RunSpec{SourcePath: source, OutputDir: enc.OutputDirFor(source)}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("cancellation took too long: %v", elapsed)
	}
}

func TestCleanupArtifactsRemovesOutput(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "job-out")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "segment-00000.ts"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write segment: %v", err)
	}

	encoder.CleanupArtifacts(dir)
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("expected output dir removed, stat err: %v", err)
	}
}
