package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateTranscoding(); err != nil {
		return err
	}
	if err := c.validateBuffering(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.LibraryDir) == "" {
		return errors.New("paths.library_dir must be set")
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return errors.New("paths.output_dir must be set")
	}
	if c.Paths.LibraryDir == c.Paths.OutputDir {
		return errors.New("paths.output_dir must differ from paths.library_dir")
	}
	return nil
}

func (c *Config) validateTranscoding() error {
	if c.Transcoding.MaxConcurrent > 16 {
		return fmt.Errorf("transcoding.max_concurrent %d exceeds the supported maximum of 16", c.Transcoding.MaxConcurrent)
	}
	if c.Transcoding.SegmentSeconds > 30 {
		return fmt.Errorf("transcoding.segment_seconds %d exceeds the supported maximum of 30", c.Transcoding.SegmentSeconds)
	}
	return nil
}

func (c *Config) validateBuffering() error {
	if c.Buffering.ConservativeSpeed >= c.Buffering.AggressiveSpeed {
		return fmt.Errorf(
			"buffering.conservative_speed %.2f must be below buffering.aggressive_speed %.2f",
			c.Buffering.ConservativeSpeed, c.Buffering.AggressiveSpeed,
		)
	}
	if c.Buffering.AverageWindow > c.Buffering.SampleCapacity {
		return errors.New("buffering.average_window cannot exceed buffering.sample_capacity")
	}
	if c.Buffering.SlowdownWindow > c.Buffering.SampleCapacity {
		return errors.New("buffering.slowdown_window cannot exceed buffering.sample_capacity")
	}
	return nil
}
