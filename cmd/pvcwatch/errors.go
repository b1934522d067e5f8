package main

import (
	"errors"

	"github.com/potooio/pvcwatch/internal/quantity"
	"github.com/potooio/pvcwatch/internal/types"
)

// Process exit codes.
const (
	exitOK          = 0
	exitUsage       = 1
	exitParse       = 2
	exitUnavailable = 3
)

// configError marks a failure to resolve or validate configuration. It takes
// precedence over any error it wraps when choosing the exit code.
type configError struct {
	err error
}

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var cfgErr *configError
	if errors.As(err, &cfgErr) {
		return exitUsage
	}
	var parseErr *quantity.ParseError
	if errors.As(err, &parseErr) {
		return exitParse
	}
	if errors.Is(err, types.ErrSourceUnavailable) {
		return exitUnavailable
	}
	return exitUsage
}
