//go:build cgo

// Command libwasmcache builds the cache boundary as a C shared library:
//
//	go build -buildmode=c-shared -o libwasmcache.so ./cmd/libwasmcache
//
// Types are declared in wasmcache.h. Every buffer returned to the host,
// including error messages, is allocated with malloc and must be released
// with destroy_buffer, which also zeroes it.
//
// An error buffer passed to an operation must be zeroed or hold a buffer the
// library returned earlier and the host has not freed; its previous content
// is freed before it is overwritten. A host that frees a buffer by other means
// than destroy_buffer must zero it before passing it again.
//
// Input buffers are copied before use and may be at most 2GiB long. A null
// pointer is the absent buffer whatever its length; a non-null pointer with
// length 0 is a present empty buffer.
package main

/*
#include "wasmcache.h"
*/
import "C"

import (
	"bytes"
	"math"
	"unsafe"

	"github.com/wippyai/wasm-cache/errors"
	"github.com/wippyai/wasm-cache/ffi"
	"github.com/wippyai/wasm-cache/memory"
	"github.com/wippyai/wasm-cache/resource"
)

// maxBufferLen bounds host buffers; a longer length is an overflow error.
const maxBufferLen = math.MaxInt32

func main() {}

// borrow copies a host buffer into Go memory.
func borrow(phase errors.Phase, name string, b C.Buffer) (memory.Buffer, error) {
	if b.ptr == nil {
		return memory.Buffer{}, nil
	}
	if uint64(b.len) > maxBufferLen {
		return memory.Buffer{}, errors.Overflow(phase, []string{name}, uint64(b.len), "int32")
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(b.ptr)), int(b.len))
	return memory.Borrow(bytes.Clone(data)), nil
}

// release hands an owned Go buffer to the host. Empty results travel as the
// null buffer.
func release(b memory.Buffer) C.Buffer {
	data, err := b.Consume()
	if err != nil || len(data) == 0 {
		return C.Buffer{}
	}
	n := C.size_t(len(data))
	return C.Buffer{ptr: (*C.uint8_t)(C.CBytes(data)), len: n, cap: n}
}

// call runs fn, including its input conversion, under fault containment and
// moves the resulting error message into errOut.
func call(phase errors.Phase, errOut *C.Buffer, fn func(errBuf *memory.Buffer) error) {
	var errBuf memory.Buffer
	_, err := ffi.Contain(phase, func() (struct{}, error) {
		return struct{}{}, fn(&errBuf)
	})
	if err != nil {
		errBuf = memory.Own([]byte(err.Error()))
	}

	if errOut == nil {
		return
	}
	destroy_buffer(errOut)
	*errOut = release(errBuf)
}

//export init_cache
func init_cache(dataDir, supportedFeatures C.Buffer, cacheSize, instanceMemoryLimit C.uint32_t, errOut *C.Buffer) C.cache_t {
	var h resource.Handle
	call(errors.PhaseInit, errOut, func(errBuf *memory.Buffer) error {
		dir, err := borrow(errors.PhaseInit, "data_dir", dataDir)
		if err != nil {
			return err
		}
		features, err := borrow(errors.PhaseInit, "supported_features", supportedFeatures)
		if err != nil {
			return err
		}
		h = ffi.InitCache(dir, features, uint32(cacheSize), uint32(instanceMemoryLimit), errBuf)
		return nil
	})
	return C.cache_t(h)
}

//export save_wasm
func save_wasm(cache C.cache_t, wasm C.Buffer, errOut *C.Buffer) C.Buffer {
	var out memory.Buffer
	call(errors.PhaseSave, errOut, func(errBuf *memory.Buffer) error {
		code, err := borrow(errors.PhaseSave, "wasm", wasm)
		if err != nil {
			return err
		}
		out = ffi.SaveWasm(resource.Handle(cache), code, errBuf)
		return nil
	})
	return release(out)
}

//export load_wasm
func load_wasm(cache C.cache_t, checksum C.Buffer, errOut *C.Buffer) C.Buffer {
	var out memory.Buffer
	call(errors.PhaseLoad, errOut, func(errBuf *memory.Buffer) error {
		sum, err := borrow(errors.PhaseLoad, "checksum", checksum)
		if err != nil {
			return err
		}
		out = ffi.LoadWasm(resource.Handle(cache), sum, errBuf)
		return nil
	})
	return release(out)
}

//export release_cache
func release_cache(cache C.cache_t) {
	ffi.ReleaseCache(resource.Handle(cache))
}

//export release_all_caches
func release_all_caches() C.size_t {
	return C.size_t(ffi.ReleaseAll())
}

//export destroy_buffer
func destroy_buffer(b *C.Buffer) {
	if b == nil {
		return
	}
	if b.ptr != nil {
		C.free(unsafe.Pointer(b.ptr))
	}
	*b = C.Buffer{}
}
