package storage

import (
	"context"
	"log/slog"
	"time"

	"clipit/pkg/types"
)

// Querier is one storage handle. A handle must only be used by the
// goroutine that owns it.
type Querier interface {
	// Insert appends a row without reporting the generated id
	Insert(ctx context.Context, entry types.Entry) error

	// Save updates the row matching entry.ID, or inserts it and assigns the new id
	Save(ctx context.Context, entry *types.Entry) error

	// Fetch returns the rows matching every set field of the filter, in insertion order
	Fetch(ctx context.Context, filter Filter) (*ResultSet, error)

	// Delete removes the row and, for images, its backing file
	Delete(ctx context.Context, entry types.Entry) error

	// Close releases the handle
	Close() error
}

// Config holds storage configuration
type Config struct {
	DBPath      string        // Path to SQLite database
	BusyTimeout time.Duration // How long a handle waits on a locked database
	Debug       bool          // Log slow and failed statements
	Logger      *slog.Logger  // Defaults to slog.Default()
}
