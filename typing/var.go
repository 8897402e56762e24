package typing

import (
	"fmt"

	"github.com/gomlx/exceptions"
)

// Pos is a location in the source program, used to report where a type variable came from.
// The zero value means "unknown location".
type Pos struct {
	File string
	Line int
}

// IsValid returns whether the position points somewhere.
func (p Pos) IsValid() bool { return p.Line > 0 }

// String implements fmt.Stringer.
func (p Pos) String() string {
	if !p.IsValid() {
		return "unknown location"
	}
	if p.File == "" {
		return fmt.Sprintf("line %d", p.Line)
	}
	return fmt.Sprintf("%s:%d", p.File, p.Line)
}

// Var is a type variable: a mutable cell standing for a type not known yet.
//
// It is bound at most once, with Set, usually by unification. Bound variables are transparent: use Deref to
// get to the type they stand for.
type Var struct {
	optionalFlag
	ID     int
	Origin Pos

	// ref is the bound type, nil while unbound.
	ref Type
}

// IsBound returns whether the variable was already set.
func (v *Var) IsBound() bool { return v.ref != nil }

// Set binds the variable to t. Binding a variable twice is a programming error and panics.
func (v *Var) Set(t Type) {
	if v.ref != nil {
		exceptions.Panicf("type variable a%d bound twice (to %s and to %s)", v.ID, v.ref, t)
	}
	if t == nil {
		exceptions.Panicf("type variable a%d bound to nil", v.ID)
	}
	v.ref = t
}

// Unit is one compilation unit. It owns the counter used to name fresh type variables, so two units never
// share variables ids nor any mutable state.
//
// A Unit is not safe for concurrent use; separate units can be used from separate goroutines.
type Unit struct {
	nextVarID int
}

// NewUnit creates a new compilation unit.
func NewUnit() *Unit {
	return &Unit{}
}

// NewVar returns a fresh unbound type variable, originating at pos (optional).
func (u *Unit) NewVar(pos ...Pos) *Var {
	v := &Var{ID: u.nextVarID}
	u.nextVarID++
	if len(pos) > 0 {
		v.Origin = pos[0]
	}
	return v
}

// NumVars returns how many variables were created in this unit so far.
func (u *Unit) NumVars() int { return u.nextVarID }

// Reset restarts the variable ids. Only call it once every type of the previous unit was discarded.
func (u *Unit) Reset() {
	u.nextVarID = 0
}

// chase follows bound variables until a non-variable type or an unbound variable, compressing the path
// so that later lookups take one step.
func chase(t Type) Type {
	v, ok := t.(*Var)
	if !ok || v.ref == nil {
		return t
	}
	target := chase(v.ref)
	v.ref = target
	return target
}

// Deref follows bound type variables, recursively through every contained type, and returns the resolved
// type. Contained types are updated in place to point to their resolved forms.
//
// The result is either a non-variable type or an unbound *Var.
func Deref(t Type) Type {
	t = chase(t)
	switch t := t.(type) {
	case *Arrow:
		for ii, arg := range t.Args {
			t.Args[ii] = Deref(arg)
		}
		t.Ret = Deref(t.Ret)
	case *Sequence:
		if t.fixed {
			for ii, e := range t.elems {
				t.elems[ii] = Deref(e)
			}
		} else {
			t.elem = Deref(t.elem)
		}
	case *Dict:
		t.Key = Deref(t.Key)
		t.Value = Deref(t.Value)
	}
	return t
}

// FreeVar returns the first unbound variable reachable from t, or nil if t is fully resolved.
func FreeVar(t Type) *Var {
	switch t := chase(t).(type) {
	case *Var:
		return t
	case *Arrow:
		for _, arg := range t.Args {
			if v := FreeVar(arg); v != nil {
				return v
			}
		}
		return FreeVar(t.Ret)
	case *Sequence:
		if !t.fixed {
			return FreeVar(t.elem)
		}
		for _, e := range t.elems {
			if v := FreeVar(e); v != nil {
				return v
			}
		}
	case *Dict:
		if v := FreeVar(t.Key); v != nil {
			return v
		}
		return FreeVar(t.Value)
	}
	return nil
}

// Resolve dereferences t and fails with an *UnresolvedTypeError if any reachable variable is still unbound.
func Resolve(t Type) (Type, error) {
	t = Deref(t)
	if v := FreeVar(t); v != nil {
		return nil, &UnresolvedTypeError{Var: fmt.Sprintf("a%d", v.ID), Origin: v.Origin}
	}
	return t, nil
}

// occurs returns whether v appears in t.
func occurs(v *Var, t Type) bool {
	switch t := chase(t).(type) {
	case *Var:
		return t == v
	case *Arrow:
		for _, arg := range t.Args {
			if occurs(v, arg) {
				return true
			}
		}
		return occurs(v, t.Ret)
	case *Sequence:
		if !t.fixed {
			return occurs(v, t.elem)
		}
		for _, e := range t.elems {
			if occurs(v, e) {
				return true
			}
		}
	case *Dict:
		return occurs(v, t.Key) || occurs(v, t.Value)
	}
	return false
}
