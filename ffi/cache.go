package ffi

import (
	"context"
	"math"
	"sync"
	"unicode/utf8"

	"github.com/c2h5oh/datasize"
	"go.uber.org/zap"

	wasmcache "github.com/wippyai/wasm-cache"
	"github.com/wippyai/wasm-cache/engine"
	"github.com/wippyai/wasm-cache/errors"
	"github.com/wippyai/wasm-cache/memory"
	"github.com/wippyai/wasm-cache/resource"
)

const (
	cacheArg    = "cache"
	dataDirArg  = "data_dir"
	featuresArg = "supported_features"
	wasmArg     = "wasm"
	checksumArg = "checksum"
)

var (
	caches = newCacheRegistry()

	factoryMu sync.RWMutex
	factory   wasmcache.Factory = newEngineCache
)

func newCacheRegistry() *resource.Registry[wasmcache.Cache] {
	reg := resource.NewRegistry[wasmcache.Cache]()
	reg.Subscribe(resource.ObserverFunc(func(e resource.Event) {
		switch e.Type {
		case resource.EventCreated:
			engine.Logger().Debug("cache handle created", zap.Stringer("handle", e.Handle))
		case resource.EventReleased:
			engine.Logger().Debug("cache handle released", zap.Stringer("handle", e.Handle))
		}
	}))
	return reg
}

func newEngineCache(ctx context.Context, opts engine.Options) (wasmcache.Cache, error) {
	c, err := engine.New(ctx, opts)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// SetFactory replaces the engine constructor used by InitCache and returns a
// function that restores the previous one.
func SetFactory(f wasmcache.Factory) (restore func()) {
	factoryMu.Lock()
	prev := factory
	factory = f
	factoryMu.Unlock()

	return func() {
		factoryMu.Lock()
		factory = prev
		factoryMu.Unlock()
	}
}

func currentFactory() wasmcache.Factory {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	return factory
}

// OpenCaches returns the number of handles that have not been released.
func OpenCaches() int {
	return caches.Len()
}

// InitCache creates a cache rooted at dataDir. supportedFeatures is a comma
// separated capability list. cacheSize and instanceMemoryLimit are in MiB.
// On failure it returns the null handle and fills errOut.
func InitCache(dataDir, supportedFeatures memory.Buffer, cacheSize, instanceMemoryLimit uint32, errOut *memory.Buffer) resource.Handle {
	h, err := Contain(errors.PhaseInit, func() (resource.Handle, error) {
		return doInitCache(dataDir, supportedFeatures, cacheSize, instanceMemoryLimit)
	})
	if err != nil {
		setError(err, errOut)
		return 0
	}
	clearError(errOut)
	return h
}

func doInitCache(dataDir, supportedFeatures memory.Buffer, cacheSize, instanceMemoryLimit uint32) (resource.Handle, error) {
	dir, ok := dataDir.Read()
	if !ok || len(dir) == 0 {
		return 0, errors.EmptyArg(errors.PhaseInit, dataDirArg)
	}
	if !utf8.Valid(dir) {
		return 0, errors.InvalidUTF8(errors.PhaseInit, []string{dataDirArg}, dir)
	}

	// A present but empty feature list is an empty capability set.
	features, ok := supportedFeatures.Read()
	if !ok {
		return 0, errors.EmptyArg(errors.PhaseInit, featuresArg)
	}
	if !utf8.Valid(features) {
		return 0, errors.InvalidUTF8(errors.PhaseInit, []string{featuresArg}, features)
	}

	memoryCacheSize, err := mebibytes("cache_size", cacheSize)
	if err != nil {
		return 0, err
	}
	memoryLimit, err := mebibytes("instance_memory_limit", instanceMemoryLimit)
	if err != nil {
		return 0, err
	}

	opts := engine.Options{
		BaseDir:             string(dir),
		SupportedFeatures:   engine.FeaturesFromCSV(string(features)),
		MemoryCacheSize:     memoryCacheSize,
		InstanceMemoryLimit: memoryLimit,
	}

	ctx := context.Background()
	cache, err := currentFactory()(ctx, opts)
	if err != nil {
		return 0, categorize(errors.PhaseInit, "create cache", err)
	}

	h := caches.Insert(cache)
	if h == 0 {
		cache.Close(ctx)
		return 0, errors.Engine(errors.PhaseInit, "register cache handle", resource.ErrFull)
	}
	return h, nil
}

// mebibytes converts a MiB count to a byte size that fits the platform int.
func mebibytes(name string, mib uint32) (datasize.ByteSize, error) {
	size := datasize.ByteSize(mib) * datasize.MB
	if size.Bytes() > math.MaxInt {
		return 0, errors.Overflow(errors.PhaseInit, []string{name}, size.Bytes(), "int")
	}
	return size, nil
}

// resolve maps a handle to its cache. The null handle and released handles
// are both empty handle errors.
func resolve(phase errors.Phase, h resource.Handle) (wasmcache.Cache, error) {
	if h == 0 {
		return nil, errors.New(phase, errors.KindEmptyArg).Path(cacheArg).Detail("empty handle").Build()
	}
	cache, ok := caches.Get(h)
	if !ok {
		return nil, errors.New(phase, errors.KindEmptyArg).
			Path(cacheArg).
			Value(h).
			Detail("unknown or released handle %s", h).
			Build()
	}
	return cache, nil
}

// SaveWasm stores wasm in the cache and returns its checksum as an owned
// buffer. On failure it returns the absent buffer and fills errOut.
func SaveWasm(h resource.Handle, wasm memory.Buffer, errOut *memory.Buffer) memory.Buffer {
	checksum, err := Contain(errors.PhaseSave, func() ([]byte, error) {
		return doSaveWasm(h, wasm)
	})
	return result(checksum, err, errOut)
}

func doSaveWasm(h resource.Handle, wasm memory.Buffer) ([]byte, error) {
	cache, err := resolve(errors.PhaseSave, h)
	if err != nil {
		return nil, err
	}
	code, ok := wasm.Read()
	if !ok || len(code) == 0 {
		return nil, errors.EmptyArg(errors.PhaseSave, wasmArg)
	}

	checksum, err := cache.Save(context.Background(), code)
	if err != nil {
		return nil, categorize(errors.PhaseSave, "save module", err)
	}
	return checksum.Bytes(), nil
}

// LoadWasm returns the module stored under checksum as an owned buffer. On
// failure it returns the absent buffer and fills errOut.
func LoadWasm(h resource.Handle, checksum memory.Buffer, errOut *memory.Buffer) memory.Buffer {
	code, err := Contain(errors.PhaseLoad, func() ([]byte, error) {
		return doLoadWasm(h, checksum)
	})
	return result(code, err, errOut)
}

func doLoadWasm(h resource.Handle, checksum memory.Buffer) ([]byte, error) {
	cache, err := resolve(errors.PhaseLoad, h)
	if err != nil {
		return nil, err
	}
	raw, ok := checksum.Read()
	if !ok || len(raw) == 0 {
		return nil, errors.EmptyArg(errors.PhaseLoad, checksumArg)
	}
	sum, err := engine.ChecksumFromBytes(raw)
	if err != nil {
		return nil, err
	}

	code, err := cache.Load(sum)
	if err != nil {
		return nil, categorize(errors.PhaseLoad, "load module", err)
	}
	return code, nil
}

// ReleaseCache destroys the cache behind h. The null handle is a no-op, as is
// a handle that was already released.
func ReleaseCache(h resource.Handle) {
	if h == 0 {
		return
	}
	_, err := Contain(errors.PhaseRelease, func() (struct{}, error) {
		cache, ok := caches.Remove(h)
		if !ok {
			engine.Logger().Warn("release of unknown cache handle", zap.Stringer("handle", h))
			return struct{}{}, nil
		}
		return struct{}{}, cache.Close(context.Background())
	})
	if err != nil {
		engine.Logger().Warn("release cache", zap.Stringer("handle", h), zap.Error(err))
	}
}

// ReleaseAll releases every open cache, for process teardown, and returns the
// number of handles it released.
func ReleaseAll() int {
	var handles []resource.Handle
	caches.Each(func(h resource.Handle, _ wasmcache.Cache) bool {
		handles = append(handles, h)
		return true
	})
	for _, h := range handles {
		ReleaseCache(h)
	}
	return len(handles)
}
