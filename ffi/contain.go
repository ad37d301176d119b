package ffi

import (
	"go.uber.org/zap"

	"github.com/wippyai/wasm-cache/engine"
	"github.com/wippyai/wasm-cache/errors"
)

// Contain runs fn and converts a panic into the generic internal fault error
// for phase. The recovered value is logged, never returned. Adapters that
// convert host input before calling an entry point run that conversion under
// Contain too.
func Contain[T any](phase errors.Phase, fn func() (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			engine.Logger().Error("contained panic at cache boundary",
				zap.String("phase", string(phase)),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			var zero T
			out, err = zero, errors.Panic(phase)
		}
	}()
	return fn()
}
