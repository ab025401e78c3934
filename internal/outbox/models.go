package outbox

import "time"

type Status string

const (
	StatusPending      Status = "pending"
	StatusLeased       Status = "leased"
	StatusAcknowledged Status = "acknowledged"
)

// Message is one persisted bus message awaiting redelivery. Created
// pending, leased while a drainer holds it, acknowledged once the
// redelivery succeeded. AttemptCount grows by one per lease and never
// decreases.
type Message struct {
	ID           string
	Subject      string
	Payload      []byte
	Priority     int
	Status       Status
	EnqueuedAt   time.Time
	LeasedUntil  *time.Time
	AttemptCount uint
}
