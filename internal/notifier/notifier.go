// Package notifier pushes trade and scan events to an external channel.
package notifier

import "context"

// Notifier delivers human-readable messages about account activity.
type Notifier interface {
	Send(ctx context.Context, msg string) error
	SendWithRetry(ctx context.Context, msg string) error
}

// Noop discards every message. Used when no channel is configured and in
// backtests.
type Noop struct{}

func NewNoop() *Noop { return &Noop{} }

func (*Noop) Send(ctx context.Context, msg string) error          { return nil }
func (*Noop) SendWithRetry(ctx context.Context, msg string) error { return nil }
