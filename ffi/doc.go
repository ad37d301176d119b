// Package ffi is the boundary between a host runtime and the module cache.
//
// The boundary exposes four operations and nothing else:
//
//	InitCache     create a cache, returning an opaque handle
//	SaveWasm      store module bytes, returning their checksum
//	LoadWasm      fetch module bytes by checksum
//	ReleaseCache  destroy a cache
//
// Arguments and results are memory.Buffer values. Inputs are borrowed: the
// boundary reads them and never keeps them. Results are owned and belong to
// the caller, who consumes each exactly once.
//
// # Errors
//
// Every operation takes an optional error buffer. On failure the operation
// returns its sentinel (the null handle or the absent buffer) and, if the
// error buffer is non-nil, stores the error message in it as an owned buffer.
// On success the error buffer is reset. Passing nil only loses the message;
// success and failure are reported the same way.
//
// # Fault Containment
//
// Each call runs inside a recover scope. A panic anywhere below the boundary
// is logged with its stack and returned as "[<phase>] panic: internal fault".
// The handle stays valid: engine state is guarded by deferred unlocks, so a
// contained fault cannot leave a cache half released.
package ffi
