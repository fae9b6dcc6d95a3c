package timeline

import (
	"cellarcore/internal/config"
	"cellarcore/internal/infra/blob/fs"
	"cellarcore/internal/infra/blob/s3"
	"cellarcore/internal/infra/redisx"
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Deps carries the shared collaborators some drivers need.
type Deps struct {
	Logger *slog.Logger
	Redis  *redisx.Client
}

// Open builds the sink selected by cfg. The "none" driver returns a nil
// sink, which disables the timeline effect.
func Open(ctx context.Context, cfg config.Timeline, deps Deps) (Sink, error) {
	switch cfg.Driver {
	case config.TimelineDriverNone, "":
		return nil, nil
	case config.TimelineDriverLog:
		return NewLogSink(deps.Logger), nil
	case config.TimelineDriverMemory:
		return NewMemorySink(), nil
	case config.TimelineDriverFS:
		store, err := fs.New(cfg.FSDir)
		if err != nil {
			return nil, fmt.Errorf("open timeline dir: %w", err)
		}
		return NewBlobSink(store, ""), nil
	case config.TimelineDriverS3:
		store, err := s3.New(ctx, s3.Config{
			Region:    cfg.S3.Region,
			Bucket:    cfg.S3.Bucket,
			Endpoint:  cfg.S3.Endpoint,
			PathStyle: cfg.S3.UsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("open timeline bucket: %w", err)
		}
		return NewBlobSink(store, cfg.S3.Prefix), nil
	case config.TimelineDriverRedis:
		if deps.Redis == nil {
			return nil, errors.New("redis timeline requires a redis client")
		}
		return redisx.NewTimelineStream(deps.Redis, 0), nil
	default:
		return nil, fmt.Errorf("unsupported timeline driver %q", cfg.Driver)
	}
}
