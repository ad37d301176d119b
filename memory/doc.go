// Package memory provides the Transfer Buffer used to move byte data across
// the cache boundary.
//
// A Buffer is either borrowed or owned. A borrowed buffer is a view of memory
// the caller keeps ownership of; the callee reads it and never releases it.
// An owned buffer carries its bytes to the other side, which must consume it
// exactly once:
//
//	in := memory.Borrow(wasm)        // host keeps wasm
//	out := ffi.SaveWasm(h, in, &errBuf)
//	checksum, err := out.Consume()   // out is now the absent buffer
//
// The absent buffer (nil) and a present zero-length buffer are distinct
// values. Read reports absence with a false second result and never panics.
package memory
