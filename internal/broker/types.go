package broker

import "context"

// Handler processes one delivered message. Returning an error leaves
// redelivery to the transport's own semantics.
type Handler func(ctx context.Context, subject string, payload []byte) error

// Transport is the abstract capability the bus consumes; the wire
// protocol itself lives behind it. Publish failures surface as
// TRANSPORT_ERROR coded errors so the breaker classifier can count
// them.
type Transport interface {
	Publish(ctx context.Context, subject string, payload []byte) error
	Subscribe(ctx context.Context, subject string, handler Handler) error
	Close() error
}
