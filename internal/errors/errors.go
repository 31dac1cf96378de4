package errors

import (
	"fmt"
)

// Kind partitions analysis failures by how the caller must react.
type Kind string

const (
	// InputError marks IR the analyzer refuses to process. Fatal to the path.
	InputError Kind = "input"

	// Unsupported marks a feature the analyzer does not model. Fatal to the path.
	Unsupported Kind = "unsupported"

	// WarningKind marks a non-fatal condition surfaced on the warning sink.
	WarningKind Kind = "warning"

	// Precondition marks a programmer error inside the analyzer. These
	// panic; recovering from one hides a bug.
	Precondition Kind = "precondition"
)

// AnalysisError is the typed error handed to callers when a path aborts.
type AnalysisError struct {
	Kind    Kind
	Code    string // code like G0101
	Message string
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("%s[%s]: %s", e.Kind, e.Code, e.Message)
}

// Input creates a fatal input error.
func Input(code, format string, args ...interface{}) *AnalysisError {
	return &AnalysisError{Kind: InputError, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Unsupportedf creates a fatal unsupported-feature error.
func Unsupportedf(code, format string, args ...interface{}) *AnalysisError {
	return &AnalysisError{Kind: Unsupported, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Panicf aborts with a precondition violation. Callers never see these as
// returned errors; hitting one means the analyzer itself is broken.
func Panicf(code, format string, args ...interface{}) {
	panic(&AnalysisError{Kind: Precondition, Code: code, Message: fmt.Sprintf(format, args...)})
}

// KindOf reports the Kind of err, or the empty string for foreign errors.
func KindOf(err error) Kind {
	if ae, ok := err.(*AnalysisError); ok {
		return ae.Kind
	}
	return ""
}
