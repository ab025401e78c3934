package outbox

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"synapse/pkg/errors"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS bus_messages (
	id TEXT PRIMARY KEY,
	subject TEXT NOT NULL,
	payload BLOB NOT NULL,
	priority INTEGER NOT NULL DEFAULT 5,
	status TEXT NOT NULL DEFAULT 'pending',
	enqueued_at INTEGER NOT NULL,
	leased_until INTEGER,
	attempt_count INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_bus_messages_drain
	ON bus_messages (status, priority DESC, enqueued_at ASC);
`

// SQLiteStore is the embedded outbox backend. Timestamps are stored
// as unix microseconds. SQLite serializes writers, which is enough
// for the single-process lease discipline this backend targets.
type SQLiteStore struct {
	db    *sql.DB
	lease time.Duration
}

func NewSQLiteStore(path string, lease time.Duration) (*SQLiteStore, error) {
	if path == "" {
		path = "synapse-outbox.db"
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrPersistence)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.ErrPersistence)
	}

	return &SQLiteStore{db: db, lease: lease}, nil
}

func (s *SQLiteStore) StoreMessage(ctx context.Context, subject string, payload []byte, priority int) (string, error) {
	id := uuid.NewString()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bus_messages (id, subject, payload, priority, status, enqueued_at, attempt_count)
		VALUES (?, ?, ?, ?, 'pending', ?, 0)
	`, id, subject, payload, priority, time.Now().UnixMicro())
	if err != nil {
		return "", wrapSQLite(err)
	}

	return id, nil
}

func (s *SQLiteStore) GetPending(ctx context.Context, limit int) ([]Message, error) {
	now := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapSQLite(err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, subject, payload, priority, enqueued_at, attempt_count
		FROM bus_messages
		WHERE status = 'pending'
		   OR (status = 'leased' AND leased_until < ?)
		ORDER BY priority DESC, enqueued_at ASC
		LIMIT ?
	`, now.UnixMicro(), limit)
	if err != nil {
		return nil, wrapSQLite(err)
	}

	var msgs []Message
	for rows.Next() {
		var m Message
		var enqueued int64
		if err := rows.Scan(&m.ID, &m.Subject, &m.Payload, &m.Priority, &enqueued, &m.AttemptCount); err != nil {
			rows.Close()
			return nil, wrapSQLite(err)
		}
		m.EnqueuedAt = time.UnixMicro(enqueued)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, wrapSQLite(err)
	}
	rows.Close()

	if len(msgs) == 0 {
		return nil, tx.Commit()
	}

	leasedUntil := now.Add(s.lease)
	leased := msgs[:0]
	for _, m := range msgs {
		res, err := tx.ExecContext(ctx, `
			UPDATE bus_messages
			SET status = 'leased', leased_until = ?, attempt_count = attempt_count + 1
			WHERE id = ? AND (status = 'pending' OR (status = 'leased' AND leased_until < ?))
		`, leasedUntil.UnixMicro(), m.ID, now.UnixMicro())
		if err != nil {
			return nil, wrapSQLite(err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, wrapSQLite(err)
		}
		if affected == 0 {
			// raced by another drainer between select and update
			continue
		}
		m.Status = StatusLeased
		until := leasedUntil
		m.LeasedUntil = &until
		m.AttemptCount++
		leased = append(leased, m)
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapSQLite(err)
	}

	sortForDrain(leased)
	return leased, nil
}

func (s *SQLiteStore) Acknowledge(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE bus_messages
		SET status = 'acknowledged', leased_until = NULL
		WHERE id = ? AND status != 'acknowledged'
	`, id)
	if err != nil {
		return wrapSQLite(err)
	}
	return nil
}

func (s *SQLiteStore) PendingCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM bus_messages WHERE status != 'acknowledged'
	`).Scan(&count)
	if err != nil {
		return 0, wrapSQLite(err)
	}
	return count, nil
}

func (s *SQLiteStore) PurgeAcknowledged(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UnixMicro()

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM bus_messages WHERE status = 'acknowledged' AND enqueued_at < ?
	`, cutoff)
	if err != nil {
		return 0, wrapSQLite(err)
	}

	removed, err := res.RowsAffected()
	if err != nil {
		return 0, wrapSQLite(err)
	}
	return removed, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func wrapSQLite(err error) error {
	if err == nil {
		return nil
	}
	// a locked database means another drainer holds the write lock
	if strings.Contains(err.Error(), "database is locked") || strings.Contains(err.Error(), "SQLITE_BUSY") {
		return errors.Wrap(err, errors.ErrLeaseConflict)
	}
	return errors.Wrap(err, errors.ErrPersistence)
}
