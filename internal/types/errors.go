package types

import (
	"errors"
	"fmt"
)

// ErrSourceUnavailable reports that the Kubernetes API could not be reached
// for a snapshot or that the change stream failed. Callers wrap it with
// context and test with errors.Is.
var ErrSourceUnavailable = errors.New("source unavailable")

// SourceError wraps err so that errors.Is(err, ErrSourceUnavailable) holds
// while keeping the underlying cause in the chain.
func SourceError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrSourceUnavailable, err)
}
