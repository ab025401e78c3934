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
	DefaultFailureThreshold = uint32(5)
	DefaultRecoveryTimeout  = 30 * time.Second
)

const (
	DefaultDrainInterval  = 5 * time.Second
	DefaultDrainBatchSize = 50
)

const (
	DefaultRingCapacity   = 1000
	DefaultSampleInterval = 30 * time.Second
)

const (
	InboxKeyPrefix  = "inbox:"
	DefaultInboxTTL = time.Hour
)

const (
	DefaultMigrationsPath = "migrations"
)
