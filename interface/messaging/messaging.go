package messaging

import "context"

// Publisher sends messages to a queue
type Publisher interface {
	Publish(ctx context.Context, data ...[]byte) error
}
