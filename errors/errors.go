package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseBuild    Phase = "build"    // host value to foreign tree
	PhaseReflect  Phase = "reflect"  // foreign tree to host value
	PhaseArray    Phase = "array"    // typed array access
	PhaseCallback Phase = "callback" // callback registration and dispatch
	PhaseSession  Phase = "session"  // session lifecycle
	PhaseForeign  Phase = "foreign"  // foreign entry point calls
	PhaseLoad     Phase = "load"     // engine loading
	PhaseConfig   Phase = "config"   // configuration decoding
	PhaseStore    Phase = "store"    // report archive
)

// Kind categorizes the error
type Kind string

const (
	KindUnsupported    Kind = "unsupported"
	KindOutOfBounds    Kind = "out_of_bounds"
	KindTypeMismatch   Kind = "type_mismatch"
	KindMissingData    Kind = "missing_data"
	KindKeyCollision   Kind = "key_collision"
	KindDuplicate      Kind = "duplicate"
	KindEngineFailure  Kind = "engine_failure"
	KindReleased       Kind = "released"
	KindContract       Kind = "contract"
	KindNotFound       Kind = "not_found"
	KindInvalidInput   Kind = "invalid_input"
	KindInvalidData    Kind = "invalid_data"
	KindAllocation     Kind = "allocation"
	KindMissingExport  Kind = "missing_export"
	KindRegistration   Kind = "registration"
	KindInstantiation  Kind = "instantiation"
	KindNotInitialized Kind = "not_initialized"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	GoType string
	Entry  string
	Detail string
	Path   []string
}

// Error renders "[phase] kind at path: entry X, Go type T - detail (caused by: cause)".
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Phase, e.Kind)
	if len(e.Path) > 0 {
		b.WriteString(" at " + strings.Join(e.Path, "."))
	}

	var subject []string
	if e.Entry != "" {
		subject = append(subject, "entry "+e.Entry)
	}
	if e.GoType != "" {
		subject = append(subject, "Go type "+e.GoType)
	}
	sep := ": "
	if len(subject) > 0 {
		b.WriteString(sep + strings.Join(subject, ", "))
		sep = " - "
	}
	if e.Detail != "" {
		b.WriteString(sep + e.Detail)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, " (caused by: %v)", e.Cause)
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

// Path sets the key path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// Entry sets the foreign entry point name
func (b *Builder) Entry(name string) *Builder {
	b.err.Entry = name
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

// UnsupportedValue creates an error for a configuration value the bridge cannot represent
func UnsupportedValue(phase Phase, path []string, value any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Path:   path,
		GoType: fmt.Sprintf("%T", value),
		Detail: "unsupported configuration value",
		Value:  value,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// MissingData creates an error for a null pointer returned where data was expected
func MissingData(phase Phase, path []string, entry string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindMissingData,
		Path:   path,
		Entry:  entry,
		Detail: "foreign call returned null",
	}
}

// KeyCollision creates an error for a key already used in another namespace of a node
func KeyCollision(path []string, key, existing string) *Error {
	return &Error{
		Phase:  PhaseBuild,
		Kind:   KindKeyCollision,
		Path:   path,
		Detail: fmt.Sprintf("key %q already present as %s", key, existing),
	}
}

// Duplicate creates a duplicate registration error
func Duplicate(phase Phase, namespace, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindDuplicate,
		Detail: fmt.Sprintf("%s callback %q already registered", namespace, name),
	}
}

// EngineFailure creates an error for an engine call that produced no result
func EngineFailure(entry, detail string) *Error {
	return &Error{
		Phase:  PhaseSession,
		Kind:   KindEngineFailure,
		Entry:  entry,
		Detail: detail,
	}
}

// Released creates a use-after-release error
func Released(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindReleased,
		Detail: fmt.Sprintf("%s already released", what),
	}
}

// Contract creates a programming-contract violation error
func Contract(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindContract,
		Detail: detail,
	}
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, goType, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Path:   path,
		GoType: goType,
		Detail: detail,
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size, align uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes (align %d)", size, align),
	}
}

// Foreign wraps the failure of a foreign entry point call
func Foreign(entry string, cause error) *Error {
	return &Error{
		Phase: PhaseForeign,
		Kind:  KindInvalidData,
		Entry: entry,
		Cause: cause,
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

// MissingExportsError is returned when a guest engine lacks required entry points
type MissingExportsError struct {
	Exports []string
}

func (e *MissingExportsError) Error() string {
	prefix := fmt.Sprintf("[%s] %s: ", PhaseLoad, KindMissingExport)
	if len(e.Exports) == 0 {
		return prefix + "no exports specified"
	}

	var b strings.Builder
	b.WriteString(prefix)
	fmt.Fprintf(&b, "missing %d engine export(s):\n", len(e.Exports))
	for _, name := range e.Exports {
		b.WriteString("  - ")
		b.WriteString(name)
		b.WriteByte('\n')
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target is a MissingExportsError or an *Error with
// the load phase and missing_export kind.
func (e *MissingExportsError) Is(target error) bool {
	switch t := target.(type) {
	case *MissingExportsError:
		return true
	case *Error:
		return t.Phase == PhaseLoad && t.Kind == KindMissingExport
	}
	return false
}

// NotInitialized creates a not-initialized error
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
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

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Registration creates a foreign registration error
func Registration(namespace, name string, cause error) *Error {
	return &Error{
		Phase:  PhaseCallback,
		Kind:   KindRegistration,
		Detail: fmt.Sprintf("register %s#%s", namespace, name),
		Cause:  cause,
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInstantiation,
		Detail: "instantiate engine",
		Cause:  cause,
	}
}

// Load creates an engine loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// ParseFailed creates a configuration parsing error
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseConfig,
		Kind:   KindInvalidData,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}
