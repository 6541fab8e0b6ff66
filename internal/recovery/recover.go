// Package recovery provides panic recovery for user-facing entry points.
// Ensures user-provided expressions and feature stores don't crash the
// process.
package recovery

import (
	"fmt"
	"log/slog"
	"runtime/debug"
)

// RecoverToError wraps a function call with panic recovery.
// If the function panics, converts the panic to an error.
// Use this to wrap user-provided functions (feature predicates, catalog
// providers).
//
// Example:
//
//	err := recovery.RecoverToError(logger, "Apply", func() error {
//	    return engine.Apply(ctx, id, e)
//	})
func RecoverToError(logger *slog.Logger, operation string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()

			logger.Error("Panic recovered",
				"operation", operation,
				"panic", r,
				"stack", string(stack),
			)

			err = fmt.Errorf("%s panicked: %v", operation, r)
		}
	}()

	return fn()
}

// RecoverToValue wraps a function that returns a value and error.
// If the function panics, returns zero value and error.
//
// Example:
//
//	res, err := recovery.RecoverToValue(logger, "Combine", func() (Result, error) {
//	    return opt.Combine(old, e, op, meta, kind, rows)
//	})
func RecoverToValue[T any](logger *slog.Logger, operation string, fn func() (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()

			logger.Error("Panic recovered",
				"operation", operation,
				"panic", r,
				"stack", string(stack),
			)

			var zero T
			result = zero
			err = fmt.Errorf("%s panicked: %v", operation, r)
		}
	}()

	return fn()
}

// Recover wraps a void function with panic recovery.
// Logs the panic but doesn't return an error.
// Use for background jobs and cleanup where errors can't be returned.
func Recover(logger *slog.Logger, operation string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()

			logger.Error("Panic recovered in background task",
				"operation", operation,
				"panic", r,
				"stack", string(stack),
			)
		}
	}()

	fn()
}
