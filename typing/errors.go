package typing

import (
	"fmt"

	"github.com/pkg/errors"
)

// UnifyError is returned when two types are structurally incompatible.
// The types are rendered at the time of the failure.
type UnifyError struct {
	T1, T2 string

	// Reason is an optional detail, e.g. which shape axis differs.
	Reason string
}

// Error implements error.
func (e *UnifyError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot unify %s and %s: %s", e.T1, e.T2, e.Reason)
	}
	return fmt.Sprintf("cannot unify %s and %s", e.T1, e.T2)
}

func newUnifyError(t1, t2 Type) *UnifyError {
	return &UnifyError{T1: Show(t1), T2: Show(t2)}
}

// OccursCheckError is returned when binding a variable would create a cyclic type.
type OccursCheckError struct {
	Var  string
	Type string
}

// Error implements error.
func (e *OccursCheckError) Error() string {
	return fmt.Sprintf("occurs check failed: %s appears in %s (cyclic type)", e.Var, e.Type)
}

// MatchFail is returned when a rule template doesn't match a concrete type.
// It is recoverable: callers usually try the next candidate template.
type MatchFail struct {
	Template, Concrete string
}

// Error implements error.
func (e *MatchFail) Error() string {
	return fmt.Sprintf("couldn't match %s with %s", e.Template, e.Concrete)
}

// IsMatchFail returns whether err is (or wraps) a *MatchFail.
func IsMatchFail(err error) bool {
	var mf *MatchFail
	return errors.As(err, &mf)
}

// InvalidOperationUse is returned when the arguments of a recognized operation violate its preconditions.
type InvalidOperationUse struct {
	Op  string
	Pos Pos
	Err error
}

// Error implements error.
func (e *InvalidOperationUse) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("invalid use of %s at %s: %v", e.Op, e.Pos, e.Err)
	}
	return fmt.Sprintf("invalid use of %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying precondition failure.
func (e *InvalidOperationUse) Unwrap() error { return e.Err }

// UnresolvedTypeError is returned when a type is needed in its final form but a variable in it was never bound.
type UnresolvedTypeError struct {
	// Name of the value whose type is unresolved, if known.
	Name   string
	Var    string
	Origin Pos
}

// Error implements error.
func (e *UnresolvedTypeError) Error() string {
	what := e.Var
	if e.Name != "" {
		what = fmt.Sprintf("%q (%s)", e.Name, e.Var)
	}
	if e.Origin.IsValid() {
		return fmt.Sprintf("type of %s is unresolved, variable created at %s", what, e.Origin)
	}
	return fmt.Sprintf("type of %s is unresolved", what)
}
