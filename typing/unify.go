package typing

import (
	"github.com/pkg/errors"
)

// Unify makes t1 and t2 equal, binding type variables and refining both types in place.
// Shapes of tensors are unified too, see UnifyIgnoringShape otherwise.
//
// It returns an *OccursCheckError if a binding would create a cyclic type, or an *UnifyError naming both
// (sub-)types that are incompatible. After a failure both operands may be partially modified: discard them.
func (u *Unit) Unify(t1, t2 Type) error {
	return u.unify(t1, t2, true)
}

// UnifyIgnoringShape is like Unify, but tensors only need to agree on dtype and rank: their dimensions are
// not compared. It is used in broadcasting contexts.
func (u *Unit) UnifyIgnoringShape(t1, t2 Type) error {
	return u.unify(t1, t2, false)
}

func (u *Unit) unify(t1, t2 Type, inspectShape bool) error {
	t1, t2 = chase(t1), chase(t2)

	// Variables.
	if v1, ok := t1.(*Var); ok {
		if v2, ok := t2.(*Var); ok && v1 == v2 {
			return nil
		}
		return bindVar(v1, t2)
	}
	if v2, ok := t2.(*Var); ok {
		return bindVar(v2, t1)
	}

	// None is absorbed: the other side becomes optional.
	_, none1 := t1.(*None)
	_, none2 := t2.(*None)
	switch {
	case none1 && none2:
		return nil
	case none1:
		t2.SetOptional(true)
		return nil
	case none2:
		t1.SetOptional(true)
		return nil
	}

	optional := t1.IsOptional() || t2.IsOptional()
	t1.SetOptional(optional)
	t2.SetOptional(optional)

	switch t1 := t1.(type) {
	case *Num:
		switch t2 := t2.(type) {
		case *Num:
			kind := max(t1.Kind, t2.Kind)
			t1.Kind, t2.Kind = kind, kind
			t1.Value = castLiteral(t1.Value, kind)
			t2.Value = castLiteral(t2.Value, kind)
			return nil
		case *Tensor:
			if t2.Rank() == 0 {
				return nil
			}
		}

	case *String:
		if _, ok := t2.(*String); ok {
			return nil
		}

	case *Arrow:
		if t2, ok := t2.(*Arrow); ok && len(t1.Args) == len(t2.Args) {
			for ii := range t1.Args {
				if err := u.unify(t1.Args[ii], t2.Args[ii], true); err != nil {
					return err
				}
			}
			return u.unify(t1.Ret, t2.Ret, true)
		}

	case *Sequence:
		if t2, ok := t2.(*Sequence); ok {
			return u.unifySequences(t1, t2)
		}

	case *Dict:
		if t2, ok := t2.(*Dict); ok {
			if err := u.unify(t1.Key, t2.Key, true); err != nil {
				return err
			}
			return u.unify(t1.Value, t2.Value, true)
		}

	case *Tensor:
		switch t2 := t2.(type) {
		case *Tensor:
			return unifyTensors(t1, t2, inspectShape)
		case *Num:
			if t1.Rank() == 0 {
				return nil
			}
		}

	case *DType:
		if t2, ok := t2.(*DType); ok && t1.DType == t2.DType {
			return nil
		}

	case *Class:
		if t2, ok := t2.(*Class); ok {
			if t1.Name == t2.Name || (t1.Family != "" && t1.Family == t2.Family) {
				return nil
			}
		}
	}
	return newUnifyError(t1, t2)
}

// bindVar binds the unbound variable v to t, after the occurs check.
func bindVar(v *Var, t Type) error {
	if occurs(v, t) {
		return &OccursCheckError{Var: Show(v), Type: Show(t)}
	}
	v.Set(t)
	return nil
}

func unifyTensors(t1, t2 *Tensor, inspectShape bool) error {
	if !compatibleKinds(t1.Kind, t2.Kind) {
		err := newUnifyError(t1, t2)
		err.Reason = "incompatible tensor kinds"
		return err
	}
	if t1.Kind == UnsetTensor {
		t1.Kind = t2.Kind
	} else if t2.Kind == UnsetTensor {
		t2.Kind = t1.Kind
	}
	if t1.DType != t2.DType {
		err := newUnifyError(t1, t2)
		err.Reason = "different dtypes"
		return err
	}
	if t1.Rank() != t2.Rank() {
		err := newUnifyError(t1, t2)
		err.Reason = "different ranks"
		return err
	}
	if !inspectShape {
		return nil
	}
	if shapeErr := UnifyShape(t1.Shape, t2.Shape); shapeErr != nil {
		err := newUnifyError(t1, t2)
		err.Reason = shapeErr.Error()
		return err
	}
	return nil
}

func (u *Unit) unifySequences(s1, s2 *Sequence) error {
	switch {
	case s1.fixed && s2.fixed:
		if len(s1.elems) == len(s2.elems) {
			for ii := range s1.elems {
				if err := u.unify(s1.elems[ii], s2.elems[ii], true); err != nil {
					return err
				}
			}
			return nil
		}
		// Lengths differ: both lose their fixed length.
		if err := u.CoerceToVariableLen(s1, nil); err != nil {
			return err
		}
		if err := u.CoerceToVariableLen(s2, nil); err != nil {
			return err
		}
	case s1.fixed:
		if err := u.CoerceToVariableLen(s1, s2.elem); err != nil {
			return err
		}
	case s2.fixed:
		if err := u.CoerceToVariableLen(s2, s1.elem); err != nil {
			return err
		}
	}
	return u.unify(s1.elem, s2.elem, true)
}

// CoerceToVariableLen irreversibly turns a fixed-length sequence into a variable-length one.
// All element types are unified (ignoring shapes) into the new representative element type, seeded by
// elem if not nil, or by a fresh variable otherwise.
//
// It does nothing if s is already variable-length.
func (u *Unit) CoerceToVariableLen(s *Sequence, elem Type) error {
	if !s.fixed {
		return nil
	}
	if elem == nil {
		elem = u.NewVar()
	}
	for ii, e := range s.elems {
		if err := u.unify(elem, e, false); err != nil {
			return errors.WithMessagef(err, "coercing element #%d of %s to variable length", ii, s)
		}
	}
	s.fixed = false
	s.elems = nil
	s.elem = elem
	return nil
}

// castLiteral converts a number literal to the Go representation of kind. nil stays nil.
func castLiteral(value any, kind NumKind) any {
	if value == nil {
		return nil
	}
	switch kind {
	case NumBool:
		switch v := value.(type) {
		case bool:
			return v
		case int:
			return v != 0
		case float64:
			return v != 0
		}
	case NumInt:
		switch v := value.(type) {
		case bool:
			if v {
				return 1
			}
			return 0
		case int:
			return v
		case float64:
			return int(v)
		}
	case NumFloat:
		switch v := value.(type) {
		case bool:
			if v {
				return 1.0
			}
			return 0.0
		case int:
			return float64(v)
		case float64:
			return v
		}
	}
	return nil
}
