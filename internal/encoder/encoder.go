package encoder

import (
	"context"
	"fmt"
	"hash/crc32"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"reelstream/internal/config"
	"reelstream/internal/logging"
)

// ManifestName is the HLS playlist filename inside every job output
// directory.
const ManifestName = "index.m3u8"

// Encoder launches ffmpeg child processes that produce segmented HLS
// output.
type Encoder struct {
	ffmpegPath     string
	ffprobePath    string
	segmentSeconds int
	outputRoot     string
	logger         *slog.Logger
}

// RunSpec describes one encode invocation.
type RunSpec struct {
	SourcePath string
	OutputDir  string
	// Duration of the source; zero disables percent/ETA derivation.
	Duration time.Duration
}

// Result summarizes a successful encode.
type Result struct {
	OutputDir    string
	ManifestPath string
	WallTime     time.Duration
}

// RunError carries the diagnostics of a failed encode.
type RunError struct {
	Message  string
	Stderr   string
	ExitCode int
}

func (e *RunError) Error() string { return e.Message }

// New builds an encoder from configuration.
func New(cfg *config.Config, logger *slog.Logger) *Encoder {
	return &Encoder{
		ffmpegPath:     cfg.FFmpegBinary(),
		ffprobePath:    cfg.FFprobeBinary(),
		segmentSeconds: cfg.Transcoding.SegmentSeconds,
		outputRoot:     cfg.Paths.OutputDir,
		logger:         logging.WithComponent(logger, "encoder"),
	}
}

// OutputDirFor returns the job's exclusive output directory under the
// output root. The short hash keeps two different sources with the same
// basename apart.
func (e *Encoder) OutputDirFor(sourcePath string) string {
	base := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	if base == "" {
		base = "source"
	}
	sum := crc32.ChecksumIEEE([]byte(sourcePath))
	return filepath.Join(e.outputRoot, fmt.Sprintf("%s-%08x", sanitizeDirName(base), sum))
}

// ProbeSourceDuration resolves the source duration used for percent
// derivation.
func (e *Encoder) ProbeSourceDuration(ctx context.Context, sourcePath string) (time.Duration, error) {
	return ProbeDuration(ctx, e.ffprobePath, sourcePath)
}

// Run executes one encode to completion, invoking onProgress for every
// progress block ffmpeg emits. Cancellation through ctx kills the whole
// process group and removes partial output. Exit 0 with the manifest
// present is success; anything else returns a RunError with the stderr
// tail.
func (e *Encoder) Run(ctx context.Context, spec RunSpec, onProgress func(Progress)) (*Result, error) {
	if spec.SourcePath == "" || spec.OutputDir == "" {
		return nil, fmt.Errorf("run spec incomplete: source=%q output=%q", spec.SourcePath, spec.OutputDir)
	}
	if err := os.MkdirAll(spec.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	args := e.buildArgs(spec)
	e.logger.Info("starting encode",
		logging.String("source", spec.SourcePath),
		logging.String("output_dir", spec.OutputDir),
		logging.Duration("duration", spec.Duration),
	)

	start := time.Now()
	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	cmd.Dir = spec.OutputDir
	// Own process group so cancellation reaches ffmpeg's helpers too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderrTail := newTailBuffer(16 * 1024)
	cmd.Stderr = stderrTail

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		if err := readProgress(stdout, spec.Duration, onProgress); err != nil {
			e.logger.Warn("progress stream ended with error", logging.Error(err))
		}
	}()

	waitErr := cmd.Wait()
	<-progressDone

	if waitErr != nil {
		CleanupArtifacts(spec.OutputDir)
		exitCode := 1
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &RunError{
			Message:  fmt.Sprintf("ffmpeg exited with status %d", exitCode),
			Stderr:   stderrTail.String(),
			ExitCode: exitCode,
		}
	}

	manifest := filepath.Join(spec.OutputDir, ManifestName)
	if _, err := os.Stat(manifest); err != nil {
		CleanupArtifacts(spec.OutputDir)
		return nil, &RunError{
			Message: "ffmpeg exited cleanly but produced no manifest",
			Stderr:  stderrTail.String(),
		}
	}

	return &Result{
		OutputDir:    spec.OutputDir,
		ManifestPath: manifest,
		WallTime:     time.Since(start),
	}, nil
}

// buildArgs assembles the explicit ffmpeg argument list for a segmented
// HLS encode.
func (e *Encoder) buildArgs(spec RunSpec) []string {
	segment := e.segmentSeconds
	if segment <= 0 {
		segment = 4
	}
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", spec.SourcePath,
		"-progress", "pipe:1",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "22",
		"-c:a", "aac",
		"-b:a", "160k",
		"-f", "hls",
		"-hls_time", strconv.Itoa(segment),
		"-hls_playlist_type", "event",
		"-hls_segment_filename", "segment-%05d.ts",
		ManifestName,
	}
}

// CleanupArtifacts removes a job's on-disk output, forcing a re-encode on
// the next run.
func CleanupArtifacts(outputDir string) {
	if outputDir == "" || outputDir == "/" {
		return
	}
	_ = os.RemoveAll(outputDir)
}

// ManifestExists reports whether a completed encode's playlist is present.
func ManifestExists(outputDir string) bool {
	info, err := os.Stat(filepath.Join(outputDir, ManifestName))
	return err == nil && !info.IsDir()
}

func sanitizeDirName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// tailBuffer keeps the last max bytes written, for bounded stderr capture.
type tailBuffer struct {
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}
