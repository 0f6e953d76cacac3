package core

import (
	"context"
)

type Sender interface {
	Send(ctx context.Context, event EventType, payload []byte) error
}

// HandlerFunc handles a remote command. It runs on the messaging client's
// goroutine, never on a scheduler task.
type HandlerFunc func(ctx context.Context, payload []byte) error
