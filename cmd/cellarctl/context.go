package main

import (
	"cellarcore/internal/codes"
	"cellarcore/internal/config"
	"cellarcore/internal/core"
	"cellarcore/internal/infra/redisx"
	"cellarcore/internal/timeline"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	config  string
	tenant  string
	json    bool
	trace   bool
	metrics bool
}

type commandContext struct {
	flags *globalFlags

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(strings.TrimSpace(c.flags.config))
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) tenant() string { return c.flags.tenant }

// app is the service graph assembled for one command invocation.
type app struct {
	svc      *core.Service
	cfg      *config.Config
	logger   *slog.Logger
	timeline timeline.Sink
	metrics  *prometheus.Registry
	closers  []func() error
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// withApp opens the configured backends, runs fn and releases them.
func (c *commandContext) withApp(cmd *cobra.Command, fn func(*app) error) error {
	a, err := c.open(cmd.Context(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	runErr := fn(a)
	if c.flags.metrics && a.metrics != nil {
		printMetrics(cmd.ErrOrStderr(), a.metrics)
	}
	if err := a.close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func (c *commandContext) open(ctx context.Context, stderr io.Writer) (*app, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	logger := newLogger(cfg.Logging, stderr)
	a := &app{cfg: cfg, logger: logger}

	store, closeStore, err := core.OpenPersistentStore(ctx, cfg.Storage, core.NewDefaultRulesEngine())
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeStore)

	opts := []core.Option{
		core.WithLogger(logger),
		core.WithAuditRecorder(auditLogger{logger: logger}),
		core.WithMaxCodeAttempts(cfg.Sequence.MaxAttempts),
		core.WithPhaseDuration(cfg.PhaseDuration()),
		core.WithEffectTimeout(cfg.EffectTimeout()),
	}

	var rc *redisx.Client
	if cfg.NeedsRedis() {
		rc, err = redisx.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.Redis.Namespace)
		if err != nil {
			_ = a.close()
			return nil, err
		}
		a.closers = append(a.closers, rc.Close)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err = rc.Ping(pingCtx)
		cancel()
		if err != nil {
			_ = a.close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
	}
	if cfg.Sequence.Backend == config.SequenceRedis {
		opts = append(opts, core.WithSequencer(codes.NewRedisSequencer(rc)))
	}
	if cfg.Mirror.Enabled {
		opts = append(opts, core.WithEquipmentMirror(redisx.NewEquipmentMirror(rc)))
	}

	sink, err := timeline.Open(ctx, cfg.Timeline, timeline.Deps{Logger: logger, Redis: rc})
	if err != nil {
		_ = a.close()
		return nil, err
	}
	if sink != nil {
		a.timeline = sink
		opts = append(opts, core.WithTimeline(sink))
	}

	if cfg.Metrics.Enabled {
		a.metrics = prometheus.NewRegistry()
		rec, err := core.NewPrometheusMetricsRecorder(a.metrics, cfg.Metrics.Namespace)
		if err != nil {
			_ = a.close()
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		opts = append(opts, core.WithMetricsRecorder(rec))
	}
	if c.flags.trace {
		opts = append(opts, core.WithTracer(core.NewJSONTracer(stderr)))
	}

	a.svc = core.NewService(store, opts...)
	return a, nil
}

func newLogger(cfg config.Logging, w io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// auditLogger records audit entries as debug log lines.
type auditLogger struct {
	logger *slog.Logger
}

func (a auditLogger) Record(ctx context.Context, entry core.AuditEntry) {
	a.logger.DebugContext(ctx, "audit",
		"operation", entry.Operation,
		"entity", string(entry.Entity),
		"action", string(entry.Action),
		"entity_id", entry.EntityID,
		"status", string(entry.Status),
		"duration", entry.Duration,
	)
}
