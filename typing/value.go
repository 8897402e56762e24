package typing

import (
	"cmp"
	"fmt"
	"math"
	"reflect"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/shapeinfer/internal/togomlx"
	"github.com/pkg/errors"
)

// Tuple is the host representation of a tuple value. A plain []any is a list.
type Tuple []any

// Tracked wraps a host tensor belonging to one of the autodiff-tracked families.
// A bare *tensors.Tensor (or a numeric Go slice) is an untracked array.
type Tracked struct {
	Kind   TensorKind
	Tensor *tensors.Tensor
}

// Construct returns the type of a concrete host value.
//
// Scalars and strings keep their literal value, normalized as Num.Value: every Go integer type becomes an
// int literal and float32 a float64 one, so the literal of a uint8 or float32 value reads back as an int or
// float64. Unsigned values above math.MaxInt panic. Containers recurse per element; empty containers get
// a fresh element type variable. Values that are not recognized become a *Class named after their Go type.
func (u *Unit) Construct(value any) Type {
	switch v := value.(type) {
	case nil:
		return NewNone()
	case Type:
		exceptions.Panicf("typing.Construct called with a type (%s), not a value", v)
	case bool:
		return NewBool(v)
	case int, int8, int16, int32, int64:
		return NewInt(int(reflect.ValueOf(v).Int()))
	case uint, uint8, uint16, uint32, uint64:
		n := reflect.ValueOf(v).Uint()
		if n > math.MaxInt {
			exceptions.Panicf("typing.Construct: %d overflows int", n)
		}
		return NewInt(int(n))
	case float32:
		return NewFloat(float64(v))
	case float64:
		return NewFloat(v)
	case string:
		return NewString(v)
	case Dim:
		if n, ok := v.Value(); ok {
			return NewInt(n)
		}
		return NewInt()
	case dtypes.DType:
		return NewDType(v)
	case []any:
		return u.constructSequence(ListSeq, v)
	case Tuple:
		return u.constructSequence(TupleSeq, v)
	case Tracked:
		t := u.Construct(v.Tensor)
		if tensor, ok := t.(*Tensor); ok {
			tensor.Kind = v.Kind
		}
		return t
	}

	if shape, ok := togomlx.Shape(value); ok {
		return NewTensor(ArrayTensor, shape.DType, MakeShape(shape.Dimensions...))
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Map {
		return u.constructDict(rv)
	}
	name := rv.Type().Name()
	if rv.Kind() == reflect.Pointer {
		name = rv.Type().Elem().Name()
	}
	return NewClass(name, value)
}

func (u *Unit) constructSequence(kind SeqKind, values []any) *Sequence {
	if len(values) == 0 {
		return &Sequence{Kind: kind, elem: u.NewVar()}
	}
	elems := make([]Type, len(values))
	for ii, v := range values {
		elems[ii] = u.Construct(v)
	}
	return &Sequence{Kind: kind, fixed: true, elems: elems}
}

// constructDict types a map from its first entry, in sorted key order so the result is deterministic.
func (u *Unit) constructDict(rv reflect.Value) *Dict {
	if rv.Len() == 0 {
		return NewDict(u.NewVar(), u.NewVar())
	}
	keys := rv.MapKeys()
	slices.SortFunc(keys, func(a, b reflect.Value) int {
		return cmp.Compare(fmt.Sprint(a.Interface()), fmt.Sprint(b.Interface()))
	})
	return NewDict(u.Construct(keys[0].Interface()), u.Construct(rv.MapIndex(keys[0]).Interface()))
}

// ExtractLiteral returns the literal value embedded in t, if any: None, literal scalars and strings,
// dtypes, and fixed-length lists (as []any) or tuples (as Tuple) whose elements all have literals.
//
// It returns ok=false if no literal is available.
func ExtractLiteral(t Type) (value any, ok bool) {
	switch t := chase(t).(type) {
	case *None:
		return nil, true
	case *Num:
		return t.Value, t.Value != nil
	case *String:
		return t.Value, t.Value != nil
	case *DType:
		return t.DType, true
	case *Sequence:
		if !t.fixed {
			return nil, false
		}
		values := make([]any, len(t.elems))
		for ii, e := range t.elems {
			values[ii], ok = ExtractLiteral(e)
			if !ok {
				return nil, false
			}
		}
		if t.Kind == TupleSeq {
			return Tuple(values), true
		}
		return values, true
	}
	return nil, false
}

// ExtractInts returns the literal integers of a fixed-length sequence of numbers. Elements without a
// literal are reported in known as false.
func ExtractInts(t Type) (values []int, known []bool, ok bool) {
	seq, isSeq := chase(t).(*Sequence)
	if !isSeq || !seq.fixed {
		return nil, nil, false
	}
	values = make([]int, len(seq.elems))
	known = make([]bool, len(seq.elems))
	for ii, e := range seq.elems {
		n, isNum := chase(e).(*Num)
		if !isNum || n.Kind == NumFloat {
			return nil, nil, false
		}
		if v, hasValue := castLiteral(n.Value, NumInt).(int); hasValue {
			values[ii], known[ii] = v, true
		}
	}
	return values, known, true
}

// LacksValue returns whether t misses some static information to build a concrete value: a scalar or
// string without literal, a variable-length sequence, a dict, a tensor with unknown dimensions or an
// unbound variable.
func LacksValue(t Type) bool {
	switch t := chase(t).(type) {
	case *None, *DType, *Class, *Arrow:
		return false
	case *Num:
		return t.Value == nil
	case *String:
		return t.Value == nil
	case *Sequence:
		if !t.fixed {
			return true
		}
		return slices.ContainsFunc(t.elems, LacksValue)
	case *Dict:
		return true
	case *Tensor:
		return !t.Shape.IsConcrete()
	case *Var:
		return true
	default:
		exceptions.Panicf("typing.LacksValue: unknown type %T", t)
		return true
	}
}

// GenerateExample returns a minimal concrete host value of type t, used to probe operations that need
// sample data.
//
// Literals are used when present; numbers default to 1 (never 0, to avoid degenerate divisions); strings
// to ""; variable-length sequences and dicts materialize one element; tensors are zero-filled with unknown
// dimensions taken as 1. It fails with an *UnresolvedTypeError if t holds an unbound variable.
func GenerateExample(t Type) (any, error) {
	switch t := chase(t).(type) {
	case *None:
		return nil, nil
	case *Num:
		if t.Value != nil {
			return t.Value, nil
		}
		return castLiteral(1, t.Kind), nil
	case *String:
		if t.Value != nil {
			return t.Value, nil
		}
		return "", nil
	case *Sequence:
		var types []Type
		if t.fixed {
			types = t.elems
		} else {
			types = []Type{t.elem}
		}
		values := make([]any, len(types))
		for ii, e := range types {
			v, err := GenerateExample(e)
			if err != nil {
				return nil, err
			}
			values[ii] = v
		}
		if t.Kind == TupleSeq {
			return Tuple(values), nil
		}
		return values, nil
	case *Dict:
		key, err := GenerateExample(t.Key)
		if err != nil {
			return nil, err
		}
		value, err := GenerateExample(t.Value)
		if err != nil {
			return nil, err
		}
		return map[any]any{key: value}, nil
	case *Tensor:
		dims, _ := t.Shape.Ints()
		for ii, d := range dims {
			if d < 0 {
				dims[ii] = 1
			}
		}
		tensor, err := togomlx.Zeros(t.DType, dims)
		if err != nil {
			return nil, errors.WithMessagef(err, "generating example for %s", t)
		}
		if t.Kind.IsTracked() {
			return Tracked{Kind: t.Kind, Tensor: tensor}, nil
		}
		return tensor, nil
	case *DType:
		return t.DType, nil
	case *Class:
		// The instance is not copied: examples never mutate it.
		return t.Instance, nil
	case *Arrow:
		return nil, errors.Errorf("cannot generate an example function of type %s", t)
	case *Var:
		return nil, &UnresolvedTypeError{Var: t.String(), Origin: t.Origin}
	default:
		exceptions.Panicf("typing.GenerateExample: unknown type %T", t)
		return nil, nil
	}
}

// Copy returns an independent clone of t, so that unifying the copy doesn't affect the original.
//
// Dicts and classes are the exception: their key/value types and instance are shared. A bound variable
// is copied as the type it is bound to; an unbound one is returned as is, so the copy stays linked to the
// rest of its compilation unit. Use Unit.Copy to bring a type into another unit.
func Copy(t Type) Type {
	return (&copier{}).copy(t)
}

// Copy returns a clone of t, possibly coming from another compilation unit, that shares no mutable state
// with t: every unbound variable is replaced by a fresh variable of u (the same fresh one for each
// occurrence, so "a0 -> a0" becomes "a1 -> a1"), and dict contents are copied too.
func (u *Unit) Copy(t Type) Type {
	return (&copier{unit: u, fresh: make(map[*Var]*Var)}).copy(t)
}

// copier clones types. With a unit, it replaces unbound variables by fresh ones and copies dicts deeply.
type copier struct {
	unit  *Unit
	fresh map[*Var]*Var
}

func (cp *copier) copy(t Type) Type {
	var c Type
	switch t := t.(type) {
	case *None:
		c = &None{}
	case *Num:
		c = &Num{Kind: t.Kind, Value: t.Value}
	case *String:
		c = &String{Value: t.Value}
	case *Arrow:
		args := make([]Type, len(t.Args))
		for ii, arg := range t.Args {
			args[ii] = cp.copy(arg)
		}
		c = NewArrow(args, cp.copy(t.Ret))
	case *Sequence:
		if t.fixed {
			elems := make([]Type, len(t.elems))
			for ii, e := range t.elems {
				elems[ii] = cp.copy(e)
			}
			c = &Sequence{Kind: t.Kind, fixed: true, elems: elems}
		} else {
			c = &Sequence{Kind: t.Kind, elem: cp.copy(t.elem)}
		}
	case *Dict:
		if cp.unit == nil {
			c = NewDict(t.Key, t.Value)
		} else {
			c = NewDict(cp.copy(t.Key), cp.copy(t.Value))
		}
	case *Tensor:
		c = NewTensor(t.Kind, t.DType, t.Shape.Clone())
	case *DType:
		c = NewDType(t.DType)
	case *Class:
		c = &Class{Name: t.Name, Instance: t.Instance, Family: t.Family}
	case *Var:
		if t.IsBound() {
			return cp.copy(chase(t))
		}
		if cp.unit == nil {
			return t
		}
		v, found := cp.fresh[t]
		if !found {
			v = cp.unit.NewVar(t.Origin)
			v.SetOptional(t.IsOptional())
			cp.fresh[t] = v
		}
		return v
	default:
		exceptions.Panicf("typing.Copy: unknown type %T", t)
	}
	c.SetOptional(t.IsOptional())
	return c
}

// NumKindOfDType returns the scalar kind matching a dtype: bool, int (signed and unsigned) or float.
func NumKindOfDType(dtype dtypes.DType) (NumKind, error) {
	switch {
	case dtype == dtypes.Bool:
		return NumBool, nil
	case dtype.IsInt():
		return NumInt, nil
	case dtype.IsFloat():
		return NumFloat, nil
	default:
		return 0, errors.Errorf("no scalar kind for dtype %s", DTypeName(dtype))
	}
}

// DTypeOfNumKind returns the default dtype of values of a scalar kind.
func DTypeOfNumKind(kind NumKind) dtypes.DType {
	switch kind {
	case NumBool:
		return dtypes.Bool
	case NumInt:
		return dtypes.Int64
	default:
		return dtypes.Float64
	}
}
