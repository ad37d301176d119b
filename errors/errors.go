package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// Phase indicates which operation produced the error
type Phase string

const (
	PhaseInit    Phase = "init"    // cache construction
	PhaseSave    Phase = "save"    // module store
	PhaseLoad    Phase = "load"    // module retrieval
	PhaseRelease Phase = "release" // cache teardown
	PhaseCheck   Phase = "check"   // static analysis of module bytes
	PhaseCompile Phase = "compile" // engine compilation
	PhaseStore   Phase = "store"   // disk persistence
	PhaseConfig  Phase = "config"  // option parsing
)

// Kind categorizes the error
type Kind string

const (
	KindEmptyArg           Kind = "empty_arg"
	KindInvalidUTF8        Kind = "invalid_utf8"
	KindInvalidChecksum    Kind = "invalid_checksum"
	KindConfig             Kind = "config"
	KindOverflow           Kind = "overflow"
	KindEngine             Kind = "engine"
	KindNotFound           Kind = "not_found"
	KindIntegrity          Kind = "integrity"
	KindStaticCheck        Kind = "static_check"
	KindUnsupportedFeature Kind = "unsupported_feature"
	KindPanic              Kind = "panic"
)

// Error is the structured error type used throughout the cache
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the argument path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// EmptyArg creates an error for a required argument that was absent or empty
func EmptyArg(phase Phase, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindEmptyArg,
		Path:   []string{name},
		Detail: "argument is empty or absent",
	}
}

// InvalidUTF8 creates an invalid UTF-8 error
func InvalidUTF8(phase Phase, path []string, data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidUTF8,
		Path:   path,
		Detail: fmt.Sprintf("invalid UTF-8 sequence: %x", preview),
	}
}

// InvalidChecksum creates an error for a checksum of the wrong length
func InvalidChecksum(phase Phase, got, want int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidChecksum,
		Path:   []string{"checksum"},
		Detail: fmt.Sprintf("checksum not of length %d (got %d)", want, got),
		Value:  got,
	}
}

// Config creates a configuration error
func Config(path []string, detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseConfig,
		Kind:   KindConfig,
		Path:   path,
		Detail: detail,
		Cause:  cause,
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, path []string, value any, targetType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverflow,
		Path:   path,
		Detail: fmt.Sprintf("value %v overflows %s", value, targetType),
		Value:  value,
	}
}

// Engine wraps a failure reported by the underlying engine
func Engine(phase Phase, detail string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindEngine,
		Detail: detail,
		Cause:  cause,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// Integrity creates an error for stored content that no longer matches its checksum
func Integrity(phase Phase, checksum string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindIntegrity,
		Detail: fmt.Sprintf("stored content does not match checksum %s", checksum),
	}
}

// StaticCheck creates a module validation error
func StaticCheck(detail string, args ...any) *Error {
	return New(PhaseCheck, KindStaticCheck).Detail(detail, args...).Build()
}

// UnsupportedFeatures creates an error listing required features the cache does not support
func UnsupportedFeatures(missing []string) *Error {
	sorted := append([]string(nil), missing...)
	sort.Strings(sorted)
	return &Error{
		Phase:  PhaseCheck,
		Kind:   KindUnsupportedFeature,
		Detail: fmt.Sprintf("module requires unsupported features: {%s}", strings.Join(sorted, ", ")),
		Value:  sorted,
	}
}

// Panic creates the generic internal fault error. It carries no information
// about the recovered value.
func Panic(phase Phase) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindPanic,
		Detail: "internal fault",
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
