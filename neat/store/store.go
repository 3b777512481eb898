// Package store persists checkpoints so that runs can be resumed.
package store

import (
	"context"
	"fmt"

	"github.com/baldhumanity/neat-evo/neat"
)

// Store saves and loads checkpoints. Every Store satisfies
// evolve.CheckpointSink.
type Store interface {
	Init(ctx context.Context) error
	Save(ctx context.Context, cp *neat.Checkpoint) error
	// Latest returns the most recently saved checkpoint.
	Latest(ctx context.Context) (*neat.Checkpoint, bool, error)
	// Load returns the checkpoint of a run at a generation. An empty runID
	// matches any run.
	Load(ctx context.Context, runID string, generation int) (*neat.Checkpoint, bool, error)
	Close() error
}

// NewStore creates an uninitialized store of the given kind: "memory", "file"
// (path is a directory) or "sqlite" (path is a database file).
func NewStore(kind, path string) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "file":
		return NewFileStore(path), nil
	case "sqlite":
		return NewSQLiteStore(path), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}
