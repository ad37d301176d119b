package ffi

import (
	stderrors "errors"

	"github.com/wippyai/wasm-cache/errors"
	"github.com/wippyai/wasm-cache/memory"
)

// setError stores err's message in out as an owned buffer. A nil out drops
// the message.
func setError(err error, out *memory.Buffer) {
	if out == nil {
		return
	}
	*out = memory.Own([]byte(err.Error()))
}

// clearError resets out after a successful call.
func clearError(out *memory.Buffer) {
	if out == nil {
		return
	}
	out.Reset()
}

// categorize returns err unchanged when it already carries a category and
// wraps anything else as an engine error.
func categorize(phase errors.Phase, detail string, err error) error {
	var e *errors.Error
	if stderrors.As(err, &e) {
		return err
	}
	return errors.Engine(phase, detail, err)
}

// result turns an operation outcome into the boundary's return value.
func result(data []byte, err error, errOut *memory.Buffer) memory.Buffer {
	if err != nil {
		setError(err, errOut)
		return memory.Buffer{}
	}
	clearError(errOut)
	return memory.Own(data)
}
