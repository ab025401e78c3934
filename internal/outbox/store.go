package outbox

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"synapse/pkg/errors"
)

const DefaultLeaseDuration = 30 * time.Second

// Store is the durable outbox used when the transport is unavailable.
// Implementations perform short transactional operations; retry policy
// belongs to the caller.
type Store interface {
	// StoreMessage durably writes a pending message and returns its id.
	StoreMessage(ctx context.Context, subject string, payload []byte, priority int) (string, error)

	// GetPending leases up to limit pending messages, ordered by
	// priority descending then enqueue time ascending. Returned
	// messages are invisible to other drainers until their lease
	// expires; expired leases become pending again on the next scan.
	GetPending(ctx context.Context, limit int) ([]Message, error)

	// Acknowledge marks a message delivered. Idempotent; safe to call
	// for messages the caller never leased.
	Acknowledge(ctx context.Context, id string) error

	// PendingCount reports the redelivery backlog, leased rows included.
	PendingCount(ctx context.Context) (int, error)

	// PurgeAcknowledged physically deletes acknowledged rows older
	// than the given age and returns how many were removed.
	PurgeAcknowledged(ctx context.Context, olderThan time.Duration) (int64, error)

	Close() error
}

// Config selects and tunes a store backend.
type Config struct {
	Backend       string        `mapstructure:"backend"`
	SQLitePath    string        `mapstructure:"sqlite_path"`
	LeaseDuration time.Duration `mapstructure:"lease_duration"`
}

// New builds a store for the configured backend. The postgres backend
// reuses the caller's database handle; sqlite owns its own file.
func New(cfg Config, pg *sql.DB) (Store, error) {
	lease := cfg.LeaseDuration
	if lease <= 0 {
		lease = DefaultLeaseDuration
	}

	switch cfg.Backend {
	case "postgres":
		if pg == nil {
			return nil, errors.ErrConfiguration.WithDetail("outbox", "postgres backend requires a database connection")
		}
		return NewPostgresStore(pg, lease), nil
	case "sqlite", "":
		return NewSQLiteStore(cfg.SQLitePath, lease)
	default:
		return nil, errors.ErrConfiguration.WithDetail("outbox_backend", cfg.Backend)
	}
}

// drain order: priority descending, enqueue time ascending.
func sortForDrain(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].Priority != msgs[j].Priority {
			return msgs[i].Priority > msgs[j].Priority
		}
		return msgs[i].EnqueuedAt.Before(msgs[j].EnqueuedAt)
	})
}
