// Package errors provides structured error types for the syngen bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: key path, Go type, foreign entry point and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseBuild, errors.KindUnsupported).
//		Path("layers", "0", "shape").
//		GoType("chan int").
//		Detail("unsupported configuration value").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.OutOfBounds(errors.PhaseArray, nil, 10, 5)
//	err := errors.Duplicate(errors.PhaseCallback, "io", "feed")
//
// All errors implement the standard error interface and support errors.Is/As.
// Two *Error values match under errors.Is when Phase and Kind are equal.
package errors
