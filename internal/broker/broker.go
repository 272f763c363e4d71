package broker

import "context"

// Publisher sends a JSON-encoded payload to a named queue. A publish
// attempted while the broker is unreachable fails with a BrokerError; the
// caller decides whether to drop or re-attempt.
type Publisher interface {
	Publish(ctx context.Context, queue string, payload any) error
}

// Handler processes one consumed message. A nil return acknowledges the
// message; an error negatively acknowledges it without requeue.
type Handler func(ctx context.Context, payload []byte) error
