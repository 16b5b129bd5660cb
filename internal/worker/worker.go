// Package worker provides background task infrastructure for the client.
package worker

import "context"

// Worker is a long-running background task.
type Worker interface {
	// Run blocks until ctx is cancelled or an unrecoverable error occurs.
	Run(ctx context.Context) error
}

// Named is implemented by workers that report a name in logs.
type Named interface {
	Name() string
}
