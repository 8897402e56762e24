package rules

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/shapeinfer/typing"
)

// DefaultFloatDType is the dtype of created tensors when none is given, and of float literals.
const DefaultFloatDType = dtypes.Float32

// inferIsTensor: torch.is_tensor(x) is a bool, with a literal if the kind of x is known.
func inferIsTensor(call *Call) typing.Type {
	switch x := call.Arg(0).(type) {
	case *typing.Var:
		return typing.NewBool()
	case *typing.Tensor:
		if x.Kind == typing.UnsetTensor {
			return typing.NewBool()
		}
		return typing.NewBool(x.Kind.IsTracked())
	default:
		return typing.NewBool(false)
	}
}

// inferTensor: torch.tensor(data, dtype=...) builds a tensor from (nested) lists of numbers.
func inferTensor(call *Call) typing.Type {
	shape, dtype := dataShape(call.Arg(0))
	dtype = call.DTypeKwargOr("dtype", dtype)
	return typing.NewTensor(typing.TorchTensor, dtype, shape)
}

// dataShape returns the shape and dtype of nested sequences of numbers. The length of variable-length
// sequences is unknown.
func dataShape(t typing.Type) (typing.Shape, dtypes.DType) {
	switch t := t.(type) {
	case *typing.Num:
		return typing.Shape{}, dtypeOfNumKind(t.Kind)
	case *typing.Tensor:
		if t.Rank() != 0 {
			exceptions.Panicf("tensor data must be numbers or sequences of numbers, got %s", t)
		}
		return typing.Shape{}, t.DType
	case *typing.Sequence:
		n, fixed := t.Len()
		if fixed && n == 0 {
			return typing.MakeShape(0), DefaultFloatDType
		}
		dim := typing.Unknown()
		if fixed {
			dim = typing.Known(n)
		}
		inner, dtype := dataShape(typing.Deref(t.Representative()))
		return append(typing.Shape{dim}, inner...), dtype
	default:
		exceptions.Panicf("tensor data must be numbers or sequences of numbers, got %s", t)
		return nil, dtypes.InvalidDType
	}
}

// dtypeOfNumKind returns the dtype torch uses for a Python scalar kind.
func dtypeOfNumKind(kind typing.NumKind) dtypes.DType {
	switch kind {
	case typing.NumBool:
		return dtypes.Bool
	case typing.NumInt:
		return dtypes.Int64
	default:
		return DefaultFloatDType
	}
}

// inferTensorOfShape: torch.zeros/ones/rand/randn(*sizes, dtype=...). Sizes are given as separate ints or
// as one sequence.
func inferTensorOfShape(call *Call) typing.Type {
	for _, arg := range call.Args {
		if _, isNum := arg.(*typing.Num); isNum {
			call.Unify(arg, typing.NewInt())
		}
	}
	values, known := call.intsOf(0, "size")
	shape := make(typing.Shape, len(values))
	for ii, v := range values {
		if !known[ii] {
			shape[ii] = typing.Unknown()
			continue
		}
		if v < 0 {
			exceptions.Panicf("negative size %d at axis %d", v, ii)
		}
		shape[ii] = typing.Known(v)
	}
	dtype := call.DTypeKwargOr("dtype", DefaultFloatDType)
	return typing.NewTensor(typing.TorchTensor, dtype, shape)
}

// inferFromNumpy: torch.from_numpy(array) shares the dtype and shape of the array.
func inferFromNumpy(call *Call) typing.Type {
	x := call.TensorArg(0)
	if x.Kind != typing.ArrayTensor && x.Kind != typing.UnsetTensor {
		exceptions.Panicf("expects an ndarray, got %s", x)
	}
	return typing.NewTensor(typing.TorchTensor, x.DType, x.Shape.Clone())
}

// inferNumpy: Tensor.numpy() converts a tracked tensor to an ndarray.
func inferNumpy(call *Call) typing.Type {
	x := call.TensorArg(0)
	if x.Kind == typing.ArrayTensor {
		exceptions.Panicf("expects a tensor, got %s", x)
	}
	return typing.NewTensor(typing.ArrayTensor, x.DType, x.Shape.Clone())
}

// inferSize: Tensor.size() returns the tuple of dimensions; Tensor.size(dim) one of them.
func inferSize(call *Call) typing.Type {
	x := call.TensorArg(0)
	if call.HasArgOrKwarg(1, "dim") {
		axis, known := call.IntArgOrKwarg(1, "dim", 0)
		if !known {
			return typing.NewInt()
		}
		return dimToInt(x.Shape[typing.NormalizeAxis(axis, x.Rank())])
	}
	return sizesOf(x)
}

// inferShapeAttr: x.shape is the tuple of the dimensions of x, as x.size().
func inferShapeAttr(call *Call) typing.Type {
	return sizesOf(call.TensorArg(0))
}

// inferDTypeAttr: x.dtype is the static dtype of x.
func inferDTypeAttr(call *Call) typing.Type {
	return typing.NewDType(call.TensorArg(0).DType)
}

func sizesOf(x *typing.Tensor) *typing.Sequence {
	elems := make([]typing.Type, x.Rank())
	for ii, d := range x.Shape {
		elems[ii] = dimToInt(d)
	}
	return typing.NewTuple(elems...)
}

func dimToInt(d typing.Dim) *typing.Num {
	if v, known := d.Value(); known {
		return typing.NewInt(v)
	}
	return typing.NewInt()
}
