package notifier

import (
	"context"

	"github.com/potooio/pvcwatch/internal/types"
)

// Sender is an external notification channel. Implementations own their
// queueing and retries; Send must not block on network I/O.
type Sender interface {
	Name() string
	// ShouldSend filters by the transition's severity before any payload
	// is built.
	ShouldSend(severity types.Severity) bool
	Send(ctx context.Context, data TransitionData) error
	// Start launches background workers and returns immediately.
	Start(ctx context.Context)
}
