package outbox

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"synapse/pkg/errors"
)

// PostgresStore keeps the outbox in a bus_messages table (see the
// migrations directory for the schema). Lease acquisition uses
// FOR UPDATE SKIP LOCKED so concurrent drainers never double-lease.
type PostgresStore struct {
	db    *sql.DB
	lease time.Duration
}

func NewPostgresStore(db *sql.DB, lease time.Duration) *PostgresStore {
	return &PostgresStore{db: db, lease: lease}
}

func (s *PostgresStore) StoreMessage(ctx context.Context, subject string, payload []byte, priority int) (string, error) {
	id := uuid.NewString()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bus_messages (id, subject, payload, priority, status, enqueued_at, attempt_count)
		VALUES ($1, $2, $3, $4, 'pending', NOW(), 0)
	`, id, subject, payload, priority)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrPersistence)
	}

	return id, nil
}

func (s *PostgresStore) GetPending(ctx context.Context, limit int) ([]Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrPersistence)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, subject, payload, priority, enqueued_at, attempt_count
		FROM bus_messages
		WHERE status = 'pending'
		   OR (status = 'leased' AND leased_until < NOW())
		ORDER BY priority DESC, enqueued_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrPersistence)
	}

	var msgs []Message
	var ids []string
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Subject, &m.Payload, &m.Priority, &m.EnqueuedAt, &m.AttemptCount); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, errors.ErrPersistence)
		}
		msgs = append(msgs, m)
		ids = append(ids, m.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, errors.Wrap(err, errors.ErrPersistence)
	}
	rows.Close()

	if len(msgs) == 0 {
		return nil, tx.Commit()
	}

	leasedUntil := time.Now().Add(s.lease)
	if _, err := tx.ExecContext(ctx, `
		UPDATE bus_messages
		SET status = 'leased', leased_until = $1, attempt_count = attempt_count + 1
		WHERE id = ANY($2)
	`, leasedUntil, pq.Array(ids)); err != nil {
		return nil, errors.Wrap(err, errors.ErrPersistence)
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, errors.ErrPersistence)
	}

	for i := range msgs {
		msgs[i].Status = StatusLeased
		until := leasedUntil
		msgs[i].LeasedUntil = &until
		msgs[i].AttemptCount++
	}

	sortForDrain(msgs)
	return msgs, nil
}

func (s *PostgresStore) Acknowledge(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE bus_messages
		SET status = 'acknowledged', leased_until = NULL
		WHERE id = $1 AND status != 'acknowledged'
	`, id)
	if err != nil {
		return errors.Wrap(err, errors.ErrPersistence)
	}
	return nil
}

func (s *PostgresStore) PendingCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM bus_messages WHERE status != 'acknowledged'
	`).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrPersistence)
	}
	return count, nil
}

func (s *PostgresStore) PurgeAcknowledged(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM bus_messages
		WHERE status = 'acknowledged' AND enqueued_at < NOW() - ($1 * interval '1 millisecond')
	`, olderThan.Milliseconds())
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrPersistence)
	}

	removed, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrPersistence)
	}
	return removed, nil
}

// Close is a no-op: the database handle is owned by the application.
func (s *PostgresStore) Close() error {
	return nil
}
