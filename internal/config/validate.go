package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateSequence(); err != nil {
		return err
	}
	if err := c.validateTimeline(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if c.Lifecycle.PhaseDurationHours < 0 {
		return errors.New("lifecycle.phase_duration_hours must be positive")
	}
	if c.Lifecycle.EffectTimeoutSeconds < 0 {
		return errors.New("lifecycle.effect_timeout_seconds must be positive")
	}
	if c.Redis.DB < 0 {
		return errors.New("redis.db must be zero or positive")
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Driver {
	case StorageMemory, StorageSQLite:
		return nil
	case StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			return errors.New("storage.postgres_dsn is required when storage.driver is postgres (or set CELLAR_POSTGRES_DSN)")
		}
		return nil
	default:
		return fmt.Errorf("storage.driver %q is not one of memory, sqlite, postgres", c.Storage.Driver)
	}
}

func (c *Config) validateSequence() error {
	switch c.Sequence.Backend {
	case SequenceScan, SequenceRedis:
	default:
		return fmt.Errorf("sequence.backend %q is not one of scan, redis", c.Sequence.Backend)
	}
	if c.Sequence.MaxAttempts < 1 {
		return errors.New("sequence.max_attempts must be at least 1")
	}
	return nil
}

func (c *Config) validateTimeline() error {
	switch c.Timeline.Driver {
	case TimelineDriverNone, TimelineDriverLog, TimelineDriverMemory, TimelineDriverFS, TimelineDriverRedis:
		return nil
	case TimelineDriverS3:
		if c.Timeline.S3.Bucket == "" {
			return errors.New("timeline.s3.bucket is required when timeline.driver is s3")
		}
		return nil
	default:
		return fmt.Errorf("timeline.driver %q is not one of none, log, memory, fs, s3, redis", c.Timeline.Driver)
	}
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	return nil
}
