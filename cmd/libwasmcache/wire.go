//go:build cgo

package main

/*
#include "wasmcache.h"
*/
import "C"

import (
	"bytes"
	"unsafe"
)

// wireBuffer names the C buffer type for the package tests, which cannot
// import C themselves.
type wireBuffer = C.Buffer

// hostBuffer allocates a buffer the way a host would. nil yields the null
// buffer; an empty slice yields a non-null pointer with length 0.
func hostBuffer(data []byte) wireBuffer {
	if data == nil {
		return wireBuffer{}
	}
	n := C.size_t(len(data))
	if len(data) == 0 {
		return wireBuffer{ptr: (*C.uint8_t)(C.malloc(1)), cap: 1}
	}
	return wireBuffer{ptr: (*C.uint8_t)(C.CBytes(data)), len: n, cap: n}
}

// wireBytes copies the contents of b. The null buffer yields nil.
func wireBytes(b wireBuffer) []byte {
	if b.ptr == nil {
		return nil
	}
	return bytes.Clone(unsafe.Slice((*byte)(unsafe.Pointer(b.ptr)), int(b.len)))
}

func isNull(b wireBuffer) bool {
	return b.ptr == nil && b.len == 0 && b.cap == 0
}

// withLen returns b claiming n bytes.
func withLen(b wireBuffer, n uint64) wireBuffer {
	b.len = C.size_t(n)
	return b
}
