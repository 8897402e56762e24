// Package typing holds the type representation used to statically infer the type, dtype and shape of every
// value of a tensor program, before it is converted to a fixed computation graph.
//
//   - Type: closed set of variants (None, Num, String, Arrow, Sequence, Dict, Tensor, DType, Class and Var).
//   - Dim and Shape: per-dimension knowledge (known size or unknown) with arithmetic.
//   - Unit: one compilation unit. It hands out fresh type variables and unifies types.
//   - Match: one-directional matching of rule templates against concrete types.
//
// Types are mutable: unification binds variables and refines numbers, sequences and shapes in place.
// After a failed unification the operands may be partially modified and should be discarded.
package typing

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
)

// Type is one of the type variants defined in this package.
//
// The set is closed: only *None, *Num, *String, *Arrow, *Sequence, *Dict, *Tensor, *DType, *Class and *Var
// implement it.
type Type interface {
	// IsOptional reports whether the value may additionally hold no value (None).
	IsOptional() bool

	// SetOptional sets the optional flag.
	SetOptional(optional bool)

	// String renders the type, see Show.
	String() string

	// isType seals the interface.
	isType()
}

// optionalFlag is embedded in every variant.
type optionalFlag struct {
	optional bool
}

func (o *optionalFlag) IsOptional() bool          { return o.optional }
func (o *optionalFlag) SetOptional(optional bool) { o.optional = optional }

// None is the type of the None value.
type None struct {
	optionalFlag
}

// NumKind enumerates the scalar number kinds, in increasing strength: bool < int < float.
type NumKind int8

const (
	NumBool NumKind = iota
	NumInt
	NumFloat
)

// String implements fmt.Stringer.
func (k NumKind) String() string {
	switch k {
	case NumBool:
		return "bool"
	case NumInt:
		return "int"
	case NumFloat:
		return "float"
	default:
		return "invalid"
	}
}

// Num is a scalar number: a bool, int or float.
//
// Value holds the literal value, if statically known, normalized to a Go bool, int or float64 matching Kind.
// It is nil otherwise.
type Num struct {
	optionalFlag
	Kind  NumKind
	Value any
}

// String is a string, with an optional literal Value (a Go string, or nil).
type String struct {
	optionalFlag
	Value any
}

// Arrow is a function type with uncurried arguments.
type Arrow struct {
	optionalFlag
	Args []Type
	Ret  Type
}

// SeqKind is the kind of Sequence.
type SeqKind int8

const (
	ListSeq SeqKind = iota
	TupleSeq
)

// String implements fmt.Stringer.
func (k SeqKind) String() string {
	if k == TupleSeq {
		return "tuple"
	}
	return "list"
}

// Sequence is a list or tuple.
//
// A fixed-length sequence knows the type of each of its elements. A variable-length one only knows a
// representative element type shared by all its elements. Being fixed-length is part of the identity of the
// sequence and it can only be lost: see CoerceToVariableLen.
type Sequence struct {
	optionalFlag
	Kind SeqKind

	fixed bool
	elems []Type
	elem  Type
}

// Dict is a dictionary with homogeneous keys and values.
type Dict struct {
	optionalFlag
	Key, Value Type
}

// TensorKind tells which host tensor family a Tensor belongs to.
type TensorKind int8

const (
	// UnsetTensor is a tensor whose family is not known yet: it adopts the kind of the first tensor
	// it is unified with.
	UnsetTensor TensorKind = iota

	// ArrayTensor is a plain n-dimensional array (ndarray), not tracked by autodiff.
	ArrayTensor

	// VariableTensor is the first autodiff-tracked tensor family (variables).
	VariableTensor

	// TorchTensor is the second autodiff-tracked tensor family.
	TorchTensor
)

// String implements fmt.Stringer. It is also the prefix used when rendering tensor types.
func (k TensorKind) String() string {
	switch k {
	case ArrayTensor:
		return "ndarray"
	case VariableTensor:
		return "variable"
	default:
		return "tensor"
	}
}

// IsTracked returns whether the kind belongs to one of the autodiff-tracked families.
func (k TensorKind) IsTracked() bool {
	return k == VariableTensor || k == TorchTensor
}

// compatibleKinds implements the tensor family policy used by unification and matching:
// unset adopts anything, equal kinds match, and the two autodiff-tracked families are accepted together.
func compatibleKinds(a, b TensorKind) bool {
	return a == UnsetTensor || b == UnsetTensor || a == b || (a.IsTracked() && b.IsTracked())
}

// Tensor is a tensor with a homogeneous element dtype. len(Shape) is its rank.
type Tensor struct {
	optionalFlag
	Kind  TensorKind
	DType dtypes.DType
	Shape Shape
}

// Rank returns the number of dimensions of the tensor.
func (t *Tensor) Rank() int { return len(t.Shape) }

// DType is the type of a dtype value (e.g. the value passed as `dtype=` argument).
type DType struct {
	optionalFlag
	DType dtypes.DType
}

// Class is a user-defined class, holding the opaque host instance it was built from.
//
// Family names the opaque host module family the instance belongs to (e.g. "nn.Module"), if any.
// Two classes with different names still unify if they share a non-empty Family.
type Class struct {
	optionalFlag
	Name     string
	Instance any
	Family   string
}

func (*None) isType()     {}
func (*Num) isType()      {}
func (*String) isType()   {}
func (*Arrow) isType()    {}
func (*Sequence) isType() {}
func (*Dict) isType()     {}
func (*Tensor) isType()   {}
func (*DType) isType()    {}
func (*Class) isType()    {}
func (*Var) isType()      {}

// NewNone returns a None type.
func NewNone() *None { return &None{} }

// NewBool returns a bool type with an optional literal value.
func NewBool(value ...bool) *Num {
	n := &Num{Kind: NumBool}
	if len(value) > 0 {
		n.Value = value[0]
	}
	return n
}

// NewInt returns an int type with an optional literal value.
func NewInt(value ...int) *Num {
	n := &Num{Kind: NumInt}
	if len(value) > 0 {
		n.Value = value[0]
	}
	return n
}

// NewFloat returns a float type with an optional literal value.
func NewFloat(value ...float64) *Num {
	n := &Num{Kind: NumFloat}
	if len(value) > 0 {
		n.Value = value[0]
	}
	return n
}

// NewString returns a string type with an optional literal value.
func NewString(value ...string) *String {
	s := &String{}
	if len(value) > 0 {
		s.Value = value[0]
	}
	return s
}

// NewArrow returns the type of a function taking args and returning ret.
func NewArrow(args []Type, ret Type) *Arrow {
	return &Arrow{Args: args, Ret: ret}
}

// NewList returns a fixed-length list with the given element types.
func NewList(elems ...Type) *Sequence {
	return &Sequence{Kind: ListSeq, fixed: true, elems: elems}
}

// NewTuple returns a fixed-length tuple with the given element types.
func NewTuple(elems ...Type) *Sequence {
	return &Sequence{Kind: TupleSeq, fixed: true, elems: elems}
}

// NewListOf returns a variable-length list whose elements are all of type elem.
func NewListOf(elem Type) *Sequence {
	return &Sequence{Kind: ListSeq, elem: elem}
}

// NewTupleOf returns a variable-length tuple whose elements are all of type elem.
func NewTupleOf(elem Type) *Sequence {
	return &Sequence{Kind: TupleSeq, elem: elem}
}

// NewDict returns a dictionary type.
func NewDict(key, value Type) *Dict {
	return &Dict{Key: key, Value: value}
}

// NewTensor returns a tensor type of the given kind, dtype and shape.
func NewTensor(kind TensorKind, dtype dtypes.DType, shape Shape) *Tensor {
	return &Tensor{Kind: kind, DType: dtype, Shape: shape}
}

// NewTensorOfRank returns a tensor type whose rank is known but none of its dimensions.
func NewTensorOfRank(kind TensorKind, dtype dtypes.DType, rank int) *Tensor {
	return &Tensor{Kind: kind, DType: dtype, Shape: UnknownShape(rank)}
}

// NewDType returns the type of the given dtype value.
func NewDType(dtype dtypes.DType) *DType {
	return &DType{DType: dtype}
}

// NewClass returns the type of a user-defined class instance.
func NewClass(name string, instance any) *Class {
	c := &Class{Name: name, Instance: instance}
	if fam, ok := instance.(interface{ ModuleFamily() string }); ok {
		c.Family = fam.ModuleFamily()
	}
	return c
}

// IsFixedLen returns whether the sequence knows each of its element types.
func (s *Sequence) IsFixedLen() bool { return s.fixed }

// Len returns the number of elements of a fixed-length sequence, and false for a variable-length one.
func (s *Sequence) Len() (int, bool) {
	if !s.fixed {
		return 0, false
	}
	return len(s.elems), true
}

// Elems returns the element types of a fixed-length sequence. It panics if the sequence is variable-length.
func (s *Sequence) Elems() []Type {
	if !s.fixed {
		exceptions.Panicf("Sequence.Elems() called on variable-length sequence %s", s)
	}
	return s.elems
}

// Elem returns the element type of a variable-length sequence. It panics if the sequence is fixed-length.
func (s *Sequence) Elem() Type {
	if s.fixed {
		exceptions.Panicf("Sequence.Elem() called on fixed-length sequence %s", s)
	}
	return s.elem
}

// Representative returns one element type standing for all elements: the first element of a fixed-length
// sequence, or the shared element type of a variable-length one.
// It returns nil for an empty fixed-length sequence.
func (s *Sequence) Representative() Type {
	if !s.fixed {
		return s.elem
	}
	if len(s.elems) == 0 {
		return nil
	}
	return s.elems[0]
}

// IsMutable reports whether values of type t can be mutated in place: tensors, dicts, classes and lists are
// mutable; scalars, strings, functions, dtypes and tuples of immutable values are not.
func IsMutable(t Type) bool {
	switch t := Deref(t).(type) {
	case *None, *Num, *String, *Arrow, *DType:
		return false
	case *Tensor, *Dict, *Class:
		return true
	case *Sequence:
		if t.Kind == ListSeq {
			return true
		}
		if !t.fixed {
			return IsMutable(t.elem)
		}
		for _, e := range t.elems {
			if IsMutable(e) {
				return true
			}
		}
		return false
	case *Var:
		// Unbound: nothing is known about it yet.
		return false
	default:
		exceptions.Panicf("typing.IsMutable: unknown type %T", t)
		return false
	}
}
