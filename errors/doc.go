// Package errors provides structured error types for the wasm cache.
//
// Errors are categorized by Phase (which operation failed) and Kind (error category).
// The Error type carries an argument path, a human-readable detail and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseInit, errors.KindConfig).
//		Path("supported_features").
//		Detail("feature list is not valid UTF-8").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.EmptyArg(errors.PhaseSave, "wasm")
//	err := errors.NotFound(errors.PhaseLoad, "module", checksum.String())
//
// The message returned by Error() is what the boundary hands back to the host
// in the error output buffer, so it must never contain panic values or other
// partial state.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
