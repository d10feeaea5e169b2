package relay

import "context"

// Handle identifies the message created by a Sink for one invocation.
type Handle string

// Sink is where a relay shows its progress: one message is created, then
// edited in place until the final text is written.
type Sink interface {
	Create(ctx context.Context, text string) (Handle, error)
	Update(ctx context.Context, handle Handle, text string) error
}
