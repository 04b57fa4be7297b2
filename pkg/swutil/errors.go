package swutil

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors, one per spec.md §7 error kind plus the registry
// invariants of §3/§8. Concrete error types below wrap these via
// Unwrap() so callers can classify with errors.Is without inspecting
// message text.
var (
	ErrNotFound           = errors.New("resource not found")
	ErrAlreadyExists      = errors.New("resource already exists")
	ErrInUse              = errors.New("resource in use")
	ErrValidationFailed   = errors.New("validation failed")
	ErrDependencyMissing  = errors.New("required dependency missing")
	ErrRefcountUnderflow  = errors.New("refcount underflow")
	ErrUnknownSAIID       = errors.New("unknown SAI object id")
	ErrInvariantViolation = errors.New("invariant violation")
	ErrTransient          = errors.New("transient failure")
	ErrCorruptSnapshot    = errors.New("corrupt warm-restart snapshot")
)

// ValidationError accumulates one or more field-level validation
// failures for a single mutation; it is the InvalidEntry outcome's
// payload (spec.md §4.4).
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return "validation failed: " + e.Errors[0]
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

func (e *ValidationError) Unwrap() error { return ErrValidationFailed }

// NewValidationError builds a ValidationError from one or more messages.
func NewValidationError(messages ...string) *ValidationError {
	return &ValidationError{Errors: messages}
}

// ValidationBuilder accumulates conditional validation failures before
// a handler commits to a mutation, mirroring the teacher's
// pkg/util.ValidationBuilder.
type ValidationBuilder struct {
	errors []string
}

func (v *ValidationBuilder) Add(condition bool, message string) *ValidationBuilder {
	if !condition {
		v.errors = append(v.errors, message)
	}
	return v
}

func (v *ValidationBuilder) AddErrorf(format string, args ...interface{}) *ValidationBuilder {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
	return v
}

func (v *ValidationBuilder) HasErrors() bool { return len(v.errors) > 0 }

func (v *ValidationBuilder) Build() error {
	if len(v.errors) == 0 {
		return nil
	}
	return &ValidationError{Errors: v.errors}
}

// DependencyError reports a mutation blocked on another resource key,
// the payload of the WaitingForDependency outcome (spec.md §4.4, §4.2).
type DependencyError struct {
	Resource  string
	OnKind    string
	OnKey     string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s requires %s %q to exist", e.Resource, e.OnKind, e.OnKey)
}

func (e *DependencyError) Unwrap() error { return ErrDependencyMissing }

// NewDependencyError builds a DependencyError.
func NewDependencyError(resource, onKind, onKey string) *DependencyError {
	return &DependencyError{Resource: resource, OnKind: onKind, OnKey: onKey}
}

// InUseError reports a resource that cannot be destroyed because its
// refcount is still positive.
type InUseError struct {
	Resource string
	Refcount int
}

func (e *InUseError) Error() string {
	return fmt.Sprintf("%s is in use (refcount=%d)", e.Resource, e.Refcount)
}

func (e *InUseError) Unwrap() error { return ErrInUse }

// RefcountError reports an attempted decrement below zero (spec.md §4.5
// "Refcount operations are saturating at zero... returns an error").
type RefcountError struct {
	Resource string
	Key      string
}

func (e *RefcountError) Error() string {
	return fmt.Sprintf("refcount underflow decrementing %s %q", e.Resource, e.Key)
}

func (e *RefcountError) Unwrap() error { return ErrRefcountUnderflow }

// InvariantError reports a corrupt-state condition (spec.md §7 "Invariant"
// kind): the current mutation aborts but the process continues, unless
// the caller determines the state is unrecoverable, in which case Fatal
// applies instead (handled by the caller, not this type).
type InvariantError struct {
	Context string
	Detail  string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation in %s: %s", e.Context, e.Detail)
}

func (e *InvariantError) Unwrap() error { return ErrInvariantViolation }

// NewInvariantError builds an InvariantError.
func NewInvariantError(context, detail string) *InvariantError {
	return &InvariantError{Context: context, Detail: detail}
}

// TransientError reports a retryable failure from the database or SAI
// boundary (spec.md §7 "Transient" kind).
type TransientError struct {
	Source string
	Detail string
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure from %s: %s", e.Source, e.Detail)
}

func (e *TransientError) Unwrap() error { return ErrTransient }

// NewTransientError builds a TransientError.
func NewTransientError(source, detail string) *TransientError {
	return &TransientError{Source: source, Detail: detail}
}
