// Package engine provides the content addressed module cache that the
// boundary in package ffi drives.
//
// A Cache validates module bytes, compiles them with wazero and persists them
// keyed by their SHA-256 checksum:
//
//	cache, err := engine.New(ctx, engine.Options{
//	    BaseDir:             dir,
//	    SupportedFeatures:   engine.FeaturesFromCSV("staking,iterator"),
//	    MemoryCacheSize:     512 * datasize.MB,
//	    InstanceMemoryLimit: 32 * datasize.MB,
//	})
//	checksum, err := cache.Save(ctx, code)
//	code, err = cache.Load(checksum)
//
// # Layout
//
//	<base>/state/wasm/<hex checksum>   module bytes, written atomically
//	<base>/cache/modules/              wazero compilation cache
//
// # Static Checks
//
// Before compiling, Save decodes the module and requires exactly one defined
// memory within the instance memory limit, allocate and deallocate exports,
// function-only imports from the env module, and that every requires_<name>
// export names a supported feature. See CheckWasm.
//
// # Memory Cache
//
// Compiled modules are held in an LRU bounded by MemoryCacheSize, accounted
// by module size. Loads are served from memory first, then from disk; disk
// reads are re-hashed and a mismatch is reported as an integrity error.
//
// # Thread Safety
//
// Cache is safe for concurrent use. Close waits for in-flight operations.
package engine
