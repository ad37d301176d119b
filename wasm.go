package wasmcache

import (
	"context"

	"github.com/wippyai/wasm-cache/engine"
)

// Cache is the engine the boundary drives. *engine.Cache implements it.
type Cache interface {
	// Save stores module bytes and returns their checksum.
	Save(ctx context.Context, wasm []byte) (engine.Checksum, error)

	// Load returns the module bytes stored under checksum.
	Load(checksum engine.Checksum) ([]byte, error)

	// Close releases the engine's resources.
	Close(ctx context.Context) error
}

// Factory constructs a Cache from engine options.
type Factory func(ctx context.Context, opts engine.Options) (Cache, error)

var _ Cache = (*engine.Cache)(nil)
