package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 200

	DefaultLimit = 100
	MaxLimit     = 1000
)

const (
	CacheKeyPrefixDispatch = "dispatch:"
)

const (
	DefaultDispatchDedupTTL = time.Hour
)

const (
	// Fraction of failed dispatches above which a batch run is logged as
	// an error rather than a warning.
	DefaultFailureThreshold = 0.5

	DefaultBatchConcurrency = 8
)

const (
	DefaultApprovalMaxLevel = 2
)

const (
	ExecutedBySystem = "system"
)

const (
	DefaultMongoDBName    = "iris"
	DefaultMigrationsPath = "migrations"
)
