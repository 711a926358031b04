package configuration

import (
	"time"

	authconfig "github.com/flotillaproject/flotilla/internal/common/auth/configuration"
	commonconfig "github.com/flotillaproject/flotilla/internal/common/config"
)

type FlotillaConfig struct {
	HttpPort uint16

	Auth  authconfig.AuthConfig
	Redis commonconfig.RedisConfig

	Retention  RetentionPolicy
	Allocation AllocationConfig
	EventsNats NatsConfig
	Metrics    MetricsConfig
}

// RetentionPolicy holds the sliding expiries applied to broker state. Zero
// values disable expiry for that class of key.
type RetentionPolicy struct {
	// Jobs, their status, results and event streams; refreshed on activity.
	JobRetention time.Duration
	// Agent heartbeat documents.
	AgentRetention time.Duration
	// Queue advertisements and wait-time samples.
	QueueRetention time.Duration
	// Unclaimed job output; anchored at first write.
	OutputRetention time.Duration
	// Refresh tokens; refreshed on every successful validation.
	TokenRetention time.Duration
}

// AllocationConfig drives the in-process executor for multi-device parents.
type AllocationConfig struct {
	// Queues the broker itself claims multi-device jobs from. Empty disables
	// the runner.
	Queues []string
	// AgentName is the name the runner heartbeats and claims under.
	AgentName string
	// PollInterval between saga iterations.
	PollInterval time.Duration
	// DefaultTimeout bounds sagas whose jobs carry no allocation_timeout.
	DefaultTimeout time.Duration
}

// NatsConfig enables mirroring job events to a NATS subject when Servers is
// non-empty.
type NatsConfig struct {
	Servers []string
	Subject string
}

type MetricsConfig struct {
	Port uint16
	// RefreshInterval at which the queue cache snapshots Redis.
	RefreshInterval time.Duration
}
