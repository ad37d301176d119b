// Package wasmcache provides a content addressed cache of sandboxed wasm
// modules behind a minimal, handle based boundary.
//
// The host never touches cache objects directly. It holds an opaque handle
// and passes byte buffers across the boundary; every failure comes back as a
// sentinel result plus an optional error buffer.
//
// # Architecture Overview
//
//	wasmcache/           Root package with the engine Cache interface
//	├── ffi/             Boundary entry points, error channel, fault containment
//	├── engine/          wazero backed module cache (checks, disk store, LRU)
//	├── memory/          Transfer buffers (borrowed or owned)
//	├── resource/        Generation checked handle registry
//	├── errors/          Structured error types
//	└── cmd/
//	    ├── libwasmcache C shared library exposing the boundary
//	    └── wasmcache    Operator CLI
//
// # Quick Start
//
//	var errBuf memory.Buffer
//	h := ffi.InitCache(memory.Borrow([]byte(dir)), memory.Borrow([]byte("staking")), 512, 32, &errBuf)
//	if h == 0 {
//	    msg, _ := errBuf.Consume()
//	    log.Fatal(string(msg))
//	}
//	defer ffi.ReleaseCache(h)
//
//	out := ffi.SaveWasm(h, memory.Borrow(code), &errBuf)
//	checksum, _ := out.Consume()
//
//	out = ffi.LoadWasm(h, memory.Borrow(checksum), &errBuf)
//	code, _ = out.Consume()
//
// # Handle Lifecycle
//
// A handle is created by InitCache and released exactly once by
// ReleaseCache. Releasing the null handle is a no-op. A released handle never
// resolves again; using it yields an empty handle error.
//
// # Thread Safety
//
// All boundary functions may be called concurrently, including with the same
// handle. The boundary keeps no global error state: diagnostics travel only
// through the caller's error buffer.
package wasmcache
