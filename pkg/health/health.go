package health

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"synapse/pkg/circuitbreaker"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// ErrDegraded marks a check result as degraded rather than failed.
// Wrap it: fmt.Errorf("%w: backlog growing", health.ErrDegraded).
var ErrDegraded = errors.New("degraded")

type Checker interface {
	Check(ctx context.Context) error
	Name() string
}

type Health struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

type CheckResult struct {
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type CheckerRegistry struct {
	checkers []Checker
}

func NewCheckerRegistry() *CheckerRegistry {
	return &CheckerRegistry{
		checkers: make([]Checker, 0),
	}
}

func (r *CheckerRegistry) Register(checker Checker) {
	r.checkers = append(r.checkers, checker)
}

func (r *CheckerRegistry) Check(ctx context.Context) Health {
	results := make(map[string]CheckResult)
	overall := StatusHealthy

	for _, checker := range r.checkers {
		err := checker.Check(ctx)
		result := CheckResult{
			Status:    StatusHealthy,
			Timestamp: time.Now(),
		}

		switch {
		case err == nil:
		case errors.Is(err, ErrDegraded):
			result.Status = StatusDegraded
			result.Message = err.Error()
			if overall == StatusHealthy {
				overall = StatusDegraded
			}
		default:
			result.Status = StatusUnhealthy
			result.Message = err.Error()
			overall = StatusUnhealthy
		}

		results[checker.Name()] = result
	}

	return Health{
		Status:    overall,
		Timestamp: time.Now(),
		Checks:    results,
	}
}

type PostgreSQLChecker struct {
	db *sql.DB
}

func NewPostgreSQLChecker(db *sql.DB) *PostgreSQLChecker {
	return &PostgreSQLChecker{db: db}
}

func (c *PostgreSQLChecker) Name() string {
	return "postgresql"
}

func (c *PostgreSQLChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgresql ping failed: %w", err)
	}
	return nil
}

type RedisChecker struct {
	client *redis.Client
}

func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

func (c *RedisChecker) Name() string {
	return "redis"
}

func (c *RedisChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// BreakerChecker reports degraded while any transport breaker is not
// closed. Open breakers are expected during outages, so this is never
// unhealthy: the bus still accepts messages into the outbox.
type BreakerChecker struct {
	registry *circuitbreaker.Registry
}

func NewBreakerChecker(registry *circuitbreaker.Registry) *BreakerChecker {
	return &BreakerChecker{registry: registry}
}

func (c *BreakerChecker) Name() string {
	return "circuit_breakers"
}

func (c *BreakerChecker) Check(ctx context.Context) error {
	for target, state := range c.registry.States() {
		if state != "closed" {
			return fmt.Errorf("%w: breaker %s is %s", ErrDegraded, target, state)
		}
	}
	return nil
}

// BacklogReader is satisfied by the outbox store.
type BacklogReader interface {
	PendingCount(ctx context.Context) (int, error)
}

// BacklogChecker reports degraded once the redelivery backlog crosses
// the threshold.
type BacklogChecker struct {
	store     BacklogReader
	threshold int
}

func NewBacklogChecker(store BacklogReader, threshold int) *BacklogChecker {
	if threshold <= 0 {
		threshold = 1000
	}
	return &BacklogChecker{store: store, threshold: threshold}
}

func (c *BacklogChecker) Name() string {
	return "outbox_backlog"
}

func (c *BacklogChecker) Check(ctx context.Context) error {
	count, err := c.store.PendingCount(ctx)
	if err != nil {
		return fmt.Errorf("backlog query failed: %w", err)
	}
	if count > c.threshold {
		return fmt.Errorf("%w: %d messages awaiting redelivery", ErrDegraded, count)
	}
	return nil
}
