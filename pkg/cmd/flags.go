package cmd

import (
	cli "github.com/urfave/cli/v3"
)

// Flag names shared by every binary.
const (
	FlagDatabaseURL        = "database-url"
	FlagQueueURL           = "queue-url"
	FlagQueuePrefix        = "queue-prefix"
	FlagEventBus           = "event-bus"
	FlagKafkaBrokers       = "kafka-brokers"
	FlagEncryptionKey      = "encryption-key"
	FlagEncryptionVersion  = "encryption-key-version"
	FlagPreviousKeys       = "previous-encryption-keys"
	FlagEnvironment        = "environment"
	FlagLogLevel           = "log-level"
	FlagOtel               = "otel"
	FlagMaxLoopIterations  = "max-loop-iterations"
	defaultEnvironment     = "production"
	defaultEventBusBackend = EventBusGoChannel
)

// CommonFlags returns the storage, queue, event bus, vault and logging flags.
func CommonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     FlagDatabaseURL,
			Usage:    "Database connection URL for persistence (memory:// or postgres://...)",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    FlagQueueURL,
			Usage:   "Job queue URL (memory:// or redis://...)",
			Value:   "memory://",
			Sources: cli.EnvVars("QUEUE_URL", "REDIS_URL"),
		},
		&cli.StringFlag{
			Name:    FlagQueuePrefix,
			Usage:   "Key prefix for the Redis queue",
			Value:   "flowforge:queue",
			Sources: cli.EnvVars("QUEUE_PREFIX"),
		},
		&cli.StringFlag{
			Name:    FlagEventBus,
			Usage:   "Event bus type (gochannel, kafka)",
			Value:   defaultEventBusBackend,
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    FlagKafkaBrokers,
			Usage:   "Comma separated Kafka brokers, used with --event-bus=kafka",
			Value:   "kafka:9092",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    FlagEncryptionKey,
			Usage:   "Active credential encryption key, 64 hex characters",
			Sources: cli.EnvVars("FLOWFORGE_ENCRYPTION_KEY"),
		},
		&cli.IntFlag{
			Name:    FlagEncryptionVersion,
			Usage:   "Version number of the active encryption key",
			Value:   1,
			Sources: cli.EnvVars("FLOWFORGE_ENCRYPTION_KEY_VERSION"),
		},
		&cli.StringFlag{
			Name:    FlagPreviousKeys,
			Usage:   "Retired encryption keys still used for decryption, as version:hex pairs separated by commas",
			Sources: cli.EnvVars("FLOWFORGE_PREVIOUS_ENCRYPTION_KEYS"),
		},
		&cli.StringFlag{
			Name:    FlagEnvironment,
			Usage:   "Deployment environment; development allows running without an encryption key",
			Value:   defaultEnvironment,
			Sources: cli.EnvVars("FLOWFORGE_ENV"),
		},
		&cli.StringFlag{
			Name:    FlagLogLevel,
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.BoolFlag{
			Name:    FlagOtel,
			Usage:   "Export traces over OTLP/HTTP (configured with OTEL_EXPORTER_OTLP_* variables)",
			Sources: cli.EnvVars("OTEL_ENABLED"),
		},
	}
}
