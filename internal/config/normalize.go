package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTranscoding()
	c.normalizeBuffering()
	c.normalizeWorkflow()
	c.normalizeLogging()
	c.normalizeNotifications()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.LibraryDir, err = expandPath(c.Paths.LibraryDir); err != nil {
		return fmt.Errorf("paths.library_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if path := strings.TrimSpace(c.Paths.SocketPath); path != "" {
		if c.Paths.SocketPath, err = expandPath(path); err != nil {
			return fmt.Errorf("paths.socket_path: %w", err)
		}
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeTranscoding() {
	if c.Transcoding.MaxConcurrent <= 0 {
		c.Transcoding.MaxConcurrent = defaultMaxConcurrent
	}
	if c.Transcoding.SegmentSeconds <= 0 {
		c.Transcoding.SegmentSeconds = defaultSegmentSeconds
	}
	if c.Transcoding.StaleTimeout <= 0 {
		c.Transcoding.StaleTimeout = defaultStaleTimeout
	}
	if c.Transcoding.CompletedHistory <= 0 {
		c.Transcoding.CompletedHistory = defaultCompletedHistory
	}
	c.Transcoding.FFmpegBinary = strings.TrimSpace(c.Transcoding.FFmpegBinary)
	c.Transcoding.FFprobeBinary = strings.TrimSpace(c.Transcoding.FFprobeBinary)

	if len(c.Transcoding.SourceExtensions) == 0 {
		c.Transcoding.SourceExtensions = append([]string(nil), defaultSourceExtensions...)
		return
	}
	exts := make([]string, 0, len(c.Transcoding.SourceExtensions))
	seen := make(map[string]struct{}, len(c.Transcoding.SourceExtensions))
	for _, ext := range c.Transcoding.SourceExtensions {
		normalized := strings.ToLower(strings.TrimSpace(ext))
		if normalized == "" {
			continue
		}
		if !strings.HasPrefix(normalized, ".") {
			normalized = "." + normalized
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		exts = append(exts, normalized)
	}
	if len(exts) == 0 {
		exts = append([]string(nil), defaultSourceExtensions...)
	}
	c.Transcoding.SourceExtensions = exts
}

func (c *Config) normalizeBuffering() {
	if c.Buffering.AggressiveSpeed <= 0 {
		c.Buffering.AggressiveSpeed = defaultAggressiveSpeed
	}
	if c.Buffering.ConservativeSpeed <= 0 {
		c.Buffering.ConservativeSpeed = defaultConservativeSpeed
	}
	if c.Buffering.AverageWindow <= 0 {
		c.Buffering.AverageWindow = defaultAverageWindow
	}
	if c.Buffering.SlowdownWindow < 2 {
		c.Buffering.SlowdownWindow = defaultSlowdownWindow
	}
	if c.Buffering.SampleCapacity <= 0 {
		c.Buffering.SampleCapacity = defaultSampleCapacity
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.QueuePollInterval <= 0 {
		c.Workflow.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		c.Workflow.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Workflow.ReconcileInterval <= 0 {
		c.Workflow.ReconcileInterval = defaultReconcileInterval
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = 10
	}
}
