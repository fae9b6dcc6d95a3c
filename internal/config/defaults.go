package config

// Storage drivers.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Lot code sequence backends.
const (
	SequenceScan  = "scan"
	SequenceRedis = "redis"
)

// Timeline drivers.
const (
	TimelineDriverNone   = "none"
	TimelineDriverLog    = "log"
	TimelineDriverMemory = "memory"
	TimelineDriverFS     = "fs"
	TimelineDriverS3     = "s3"
	TimelineDriverRedis  = "redis"
)

const (
	defaultStorageDriver        = StorageSQLite
	defaultSQLitePath           = "~/.local/share/cellarcore/cellarcore.db"
	defaultSequenceBackend      = SequenceScan
	defaultSequenceMaxAttempts  = 5
	defaultRedisAddr            = "127.0.0.1:6379"
	defaultRedisNamespace       = "cellar"
	defaultTimelineDriver       = TimelineDriverLog
	defaultTimelineFSDir        = "~/.local/share/cellarcore/timeline"
	defaultTimelineS3Prefix     = "timeline/"
	defaultLogFormat            = "text"
	defaultLogLevel             = "info"
	defaultMetricsNamespace     = "cellarcore"
	defaultPhaseDurationHours   = 14 * 24
	defaultEffectTimeoutSeconds = 2
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Storage: Storage{
			Driver:     defaultStorageDriver,
			SQLitePath: defaultSQLitePath,
		},
		Sequence: Sequence{
			Backend:     defaultSequenceBackend,
			MaxAttempts: defaultSequenceMaxAttempts,
		},
		Redis: Redis{
			Addr:      defaultRedisAddr,
			Namespace: defaultRedisNamespace,
		},
		Timeline: Timeline{
			Driver: defaultTimelineDriver,
			FSDir:  defaultTimelineFSDir,
			S3: TimelineS3{
				Prefix: defaultTimelineS3Prefix,
			},
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Metrics: Metrics{
			Namespace: defaultMetricsNamespace,
		},
		Lifecycle: Lifecycle{
			PhaseDurationHours:   defaultPhaseDurationHours,
			EffectTimeoutSeconds: defaultEffectTimeoutSeconds,
		},
	}
}
