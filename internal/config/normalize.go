package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.applyEnv(); err != nil {
		return err
	}
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	c.normalizeSequence()
	c.normalizeRedis()
	if err := c.normalizeTimeline(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.Metrics.Namespace = strings.TrimSpace(c.Metrics.Namespace)
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = defaultMetricsNamespace
	}
	if c.Lifecycle.PhaseDurationHours == 0 {
		c.Lifecycle.PhaseDurationHours = defaultPhaseDurationHours
	}
	if c.Lifecycle.EffectTimeoutSeconds == 0 {
		c.Lifecycle.EffectTimeoutSeconds = defaultEffectTimeoutSeconds
	}
	return nil
}

// applyEnv overrides file values with CELLAR_* variables.
func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"CELLAR_STORAGE_DRIVER":   &c.Storage.Driver,
		"CELLAR_SQLITE_PATH":      &c.Storage.SQLitePath,
		"CELLAR_POSTGRES_DSN":     &c.Storage.PostgresDSN,
		"CELLAR_SEQUENCE_BACKEND": &c.Sequence.Backend,
		"CELLAR_REDIS_ADDR":       &c.Redis.Addr,
		"CELLAR_REDIS_PASSWORD":   &c.Redis.Password,
		"CELLAR_TIMELINE_DRIVER":  &c.Timeline.Driver,
		"CELLAR_LOG_LEVEL":        &c.Logging.Level,
		"CELLAR_LOG_FORMAT":       &c.Logging.Format,
	}
	for key, target := range strs {
		if value, ok := os.LookupEnv(key); ok {
			*target = value
		}
	}
	if value, ok := os.LookupEnv("CELLAR_REDIS_DB"); ok {
		db, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("CELLAR_REDIS_DB: %w", err)
		}
		c.Redis.DB = db
	}
	return nil
}

func (c *Config) normalizeStorage() error {
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if c.Storage.Driver == "" {
		c.Storage.Driver = defaultStorageDriver
	}
	if strings.TrimSpace(c.Storage.SQLitePath) == "" {
		c.Storage.SQLitePath = defaultSQLitePath
	}
	var err error
	if c.Storage.SQLitePath, err = expandPath(c.Storage.SQLitePath); err != nil {
		return fmt.Errorf("storage.sqlite_path: %w", err)
	}
	c.Storage.PostgresDSN = strings.TrimSpace(c.Storage.PostgresDSN)
	return nil
}

func (c *Config) normalizeSequence() {
	c.Sequence.Backend = strings.ToLower(strings.TrimSpace(c.Sequence.Backend))
	if c.Sequence.Backend == "" {
		c.Sequence.Backend = defaultSequenceBackend
	}
	if c.Sequence.MaxAttempts == 0 {
		c.Sequence.MaxAttempts = defaultSequenceMaxAttempts
	}
}

func (c *Config) normalizeRedis() {
	c.Redis.Addr = strings.TrimSpace(c.Redis.Addr)
	if c.Redis.Addr == "" {
		c.Redis.Addr = defaultRedisAddr
	}
	c.Redis.Namespace = strings.TrimSpace(c.Redis.Namespace)
	if c.Redis.Namespace == "" {
		c.Redis.Namespace = defaultRedisNamespace
	}
}

func (c *Config) normalizeTimeline() error {
	c.Timeline.Driver = strings.ToLower(strings.TrimSpace(c.Timeline.Driver))
	if c.Timeline.Driver == "" {
		c.Timeline.Driver = defaultTimelineDriver
	}
	if strings.TrimSpace(c.Timeline.FSDir) == "" {
		c.Timeline.FSDir = defaultTimelineFSDir
	}
	var err error
	if c.Timeline.FSDir, err = expandPath(c.Timeline.FSDir); err != nil {
		return fmt.Errorf("timeline.fs_dir: %w", err)
	}
	s3 := &c.Timeline.S3
	s3.Bucket = strings.TrimSpace(s3.Bucket)
	s3.Region = strings.TrimSpace(s3.Region)
	s3.Endpoint = strings.TrimSpace(s3.Endpoint)
	if s3.Prefix != "" && !strings.HasSuffix(s3.Prefix, "/") {
		s3.Prefix += "/"
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
