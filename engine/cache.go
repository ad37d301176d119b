package engine

import (
	"bytes"
	"context"
	stderrors "errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-cache/errors"
)

// ErrClosed is returned by operations on a closed Cache.
var ErrClosed = stderrors.New("cache closed")

// Cache is a content addressed store of validated, compiled wasm modules.
type Cache struct {
	runtime  wazero.Runtime
	compiled wazero.CompilationCache
	memory   *memoryCache
	store    *diskStore
	logger   *zap.Logger
	opts     Options
	stats    stats
	mu       sync.RWMutex
	closed   bool
}

// New creates a cache rooted at opts.BaseDir. Modules are kept in
// <base>/state/wasm and compiled code in <base>/cache/modules.
func New(ctx context.Context, opts Options) (*Cache, error) {
	if opts.BaseDir == "" {
		return nil, errors.Config([]string{"base_dir"}, "base directory is empty", nil)
	}
	if strings.IndexByte(opts.BaseDir, 0) >= 0 {
		return nil, errors.Config([]string{"base_dir"}, "path contains a nul byte", nil)
	}
	if opts.MemoryCacheSize.Bytes() > math.MaxInt {
		return nil, errors.Overflow(errors.PhaseConfig, []string{"memory_cache_size"}, opts.MemoryCacheSize.Bytes(), "int")
	}
	if opts.SupportedFeatures == nil {
		opts.SupportedFeatures = make(Features)
	}

	logger := opts.Logger
	if logger == nil {
		logger = Logger()
	}

	wasmDir := filepath.Join(opts.BaseDir, "state", "wasm")
	if err := os.MkdirAll(wasmDir, 0o755); err != nil {
		return nil, errors.Engine(errors.PhaseInit, "create wasm dir for cache", err)
	}
	modulesDir := filepath.Join(opts.BaseDir, "cache", "modules")
	if err := os.MkdirAll(modulesDir, 0o755); err != nil {
		return nil, errors.Engine(errors.PhaseInit, "create module cache dir", err)
	}

	compiled, err := wazero.NewCompilationCacheWithDir(modulesDir)
	if err != nil {
		return nil, errors.Engine(errors.PhaseInit, "open compilation cache", err)
	}

	memory, err := newMemoryCache(int(opts.MemoryCacheSize.Bytes()), logger)
	if err != nil {
		compiled.Close(ctx)
		return nil, errors.Engine(errors.PhaseInit, "create memory cache", err)
	}

	cfg := wazero.NewRuntimeConfig().WithCompilationCache(compiled)
	if pages := opts.memoryLimitPages(); pages > 0 {
		cfg = cfg.WithMemoryLimitPages(pages)
	}

	c := &Cache{
		runtime:  wazero.NewRuntimeWithConfig(ctx, cfg),
		compiled: compiled,
		memory:   memory,
		store:    &diskStore{dir: wasmDir},
		logger:   logger,
		opts:     opts,
	}

	if opts.Registerer != nil {
		if err := opts.Registerer.Register(newStatsCollector(&c.stats, memory, opts.BaseDir)); err != nil {
			c.Close(ctx)
			return nil, errors.Config([]string{"registerer"}, "register cache metrics", err)
		}
	}

	logger.Debug("cache opened",
		zap.String("base_dir", opts.BaseDir),
		zap.Stringer("features", opts.SupportedFeatures),
		zap.Stringer("memory_cache_size", opts.MemoryCacheSize),
		zap.Stringer("instance_memory_limit", opts.InstanceMemoryLimit),
	)
	return c, nil
}

// Save validates, compiles and persists code, returning its checksum.
// Saving the same bytes again returns the same checksum and leaves the
// stored copy untouched.
func (c *Cache) Save(ctx context.Context, code []byte) (Checksum, error) {
	if len(code) == 0 {
		return Checksum{}, errors.EmptyArg(errors.PhaseSave, "wasm")
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return Checksum{}, errors.Engine(errors.PhaseSave, "save module", ErrClosed)
	}

	checksum := ChecksumOf(code)
	if c.memory.hasCompiled(checksum) && c.store.intact(checksum) {
		c.stats.saves.Add(1)
		return checksum, nil
	}

	if err := CheckWasm(code, c.opts.SupportedFeatures, c.opts.memoryLimitPages()); err != nil {
		return Checksum{}, err
	}

	compiled, err := c.runtime.CompileModule(ctx, code)
	if err != nil {
		return Checksum{}, errors.Engine(errors.PhaseCompile, "compile module", err)
	}

	if err := c.store.save(checksum, code); err != nil {
		compiled.Close(ctx)
		return Checksum{}, errors.Engine(errors.PhaseStore, "persist module", err)
	}

	retained := c.memory.add(checksum, &module{compiled: compiled, code: bytes.Clone(code)})
	c.stats.saves.Add(1)

	c.logger.Debug("module saved",
		zap.Stringer("checksum", checksum),
		zap.Int("size", len(code)),
		zap.Bool("in_memory", retained),
	)
	return checksum, nil
}

// Load returns the bytes stored under checksum. A missing module is a
// not_found error; stored bytes that no longer hash to checksum are an
// integrity error. Modules read from disk are put back into the memory cache.
func (c *Cache) Load(checksum Checksum) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, errors.Engine(errors.PhaseLoad, "load module", ErrClosed)
	}

	if m, ok := c.memory.get(checksum); ok {
		c.stats.hitsMemory.Add(1)
		return bytes.Clone(m.code), nil
	}

	code, err := c.store.load(checksum)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			c.stats.misses.Add(1)
			return nil, errors.NotFound(errors.PhaseLoad, "module", checksum.String())
		}
		return nil, errors.Engine(errors.PhaseStore, "read module", err)
	}

	if ChecksumOf(code) != checksum {
		c.logger.Warn("stored module failed integrity check", zap.Stringer("checksum", checksum))
		return nil, errors.Integrity(errors.PhaseLoad, checksum.String())
	}

	c.memory.add(checksum, &module{code: bytes.Clone(code)})
	c.stats.hitsFs.Add(1)
	return code, nil
}

// Checksums lists every module persisted under the base directory.
func (c *Cache) Checksums() ([]Checksum, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrClosed
	}
	return c.store.list()
}

// Stats returns a snapshot of the cache's activity counters.
func (c *Cache) Stats() Stats {
	return c.stats.snapshot()
}

// Options returns the options the cache was created with.
func (c *Cache) Options() Options {
	return c.opts
}

// Close releases compiled modules, the runtime and the compilation cache.
// It waits for in-flight operations and is safe to call more than once.
func (c *Cache) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	c.memory.purge()
	if c.opts.Registerer != nil {
		c.opts.Registerer.Unregister(newStatsCollector(&c.stats, c.memory, c.opts.BaseDir))
	}

	err := c.runtime.Close(ctx)
	if cerr := c.compiled.Close(ctx); err == nil {
		err = cerr
	}
	return err
}
