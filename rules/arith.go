package rules

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/shapeinfer/typing"
)

// BroadcastShapes returns the shape resulting from broadcasting a and b, numpy style: dimensions are
// aligned to the right, and a dimension of size 1 stretches to the other.
//
// An unknown dimension paired with a known size n other than 1 is taken as n (the only size that could be
// valid); paired with 1 or with another unknown dimension it stays unknown. It panics if two known sizes
// are incompatible.
func BroadcastShapes(a, b typing.Shape) typing.Shape {
	rank := max(len(a), len(b))
	result := make(typing.Shape, rank)
	for i := 0; i < rank; i++ {
		aIdx := len(a) - 1 - i
		bIdx := len(b) - 1 - i

		aDim := typing.Known(1)
		if aIdx >= 0 {
			aDim = a[aIdx]
		}
		bDim := typing.Known(1)
		if bIdx >= 0 {
			bDim = b[bIdx]
		}

		switch {
		case aDim.Is(1):
			result[rank-1-i] = bDim
		case bDim.Is(1):
			result[rank-1-i] = aDim
		case !aDim.IsKnown():
			result[rank-1-i] = bDim
		case !bDim.IsKnown():
			result[rank-1-i] = aDim
		case aDim.Equal(bDim):
			result[rank-1-i] = aDim
		default:
			exceptions.Panicf("shapes not compatible for broadcasting: %s vs %s (dimension %d: %s vs %s)",
				a, b, rank-1-i, aDim, bDim)
		}
	}
	return result
}

// scalarResultDType returns the dtype of a tensor of dtype operated with a Python scalar: the tensor's
// dtype wins, unless the scalar has a stronger kind.
func scalarResultDType(dtype dtypes.DType, kind typing.NumKind) dtypes.DType {
	switch {
	case kind == typing.NumFloat && !dtype.IsFloat():
		return DefaultFloatDType
	case kind == typing.NumInt && dtype == dtypes.Bool:
		return dtypes.Int64
	}
	return dtype
}

// arithRule returns the rule of elementwise binary operations (add, sub, mul, div), in the functional or
// method form, or the in-place method form.
//
// Two tensors must have broadcast-compatible shapes, and the same dtype unless promotion is enabled
// (see Registry.WithDTypePromotion). A tensor and a scalar give a tensor. An in-place operation returns its
// first operand, whose shape and dtype can't change.
func arithRule(inPlace bool) RuleFunc {
	return func(call *Call) typing.Type {
		if call.NumArgs() != 2 {
			exceptions.Panicf("expects 2 operands, got %d", call.NumArgs())
		}
		if alpha, found := call.Kwarg("alpha"); found {
			if _, isNum := alpha.(*typing.Num); !isNum {
				exceptions.Panicf("alpha must be a number, got %s", alpha)
			}
		}

		var result *typing.Tensor
		lhs, rhs := call.Arg(0), call.Arg(1)
		switch lhsT := lhs.(type) {
		case *typing.Tensor:
			switch rhsT := rhs.(type) {
			case *typing.Tensor:
				dtype := call.registry.promoteDTypes(lhsT.DType, rhsT.DType)
				result = typing.NewTensor(typing.TorchTensor, dtype, BroadcastShapes(lhsT.Shape, rhsT.Shape))
			case *typing.Num:
				result = typing.NewTensor(typing.TorchTensor, scalarResultDType(lhsT.DType, rhsT.Kind), lhsT.Shape.Clone())
			default:
				exceptions.Panicf("operand #1 must be a tensor or a number, got %s", rhs)
			}
		case *typing.Num:
			rhsT, ok := rhs.(*typing.Tensor)
			if !ok {
				exceptions.Panicf("expects at least one tensor operand, got %s and %s", lhs, rhs)
			}
			if inPlace {
				exceptions.Panicf("in-place operation on a number %s", lhs)
			}
			result = typing.NewTensor(typing.TorchTensor, scalarResultDType(rhsT.DType, lhsT.Kind), rhsT.Shape.Clone())
		default:
			exceptions.Panicf("operand #0 must be a tensor or a number, got %s", lhs)
		}

		if !inPlace {
			return result
		}
		self := lhs.(*typing.Tensor)
		if result.DType != self.DType {
			exceptions.Panicf("result dtype %s can't be cast to %s in an in-place operation",
				typing.DTypeName(result.DType), typing.DTypeName(self.DType))
		}
		if result.Rank() != self.Rank() {
			exceptions.Panicf("output with shape %s doesn't match the broadcast shape %s", self.Shape, result.Shape)
		}
		for axis, d := range result.Shape {
			if current := self.Shape[axis]; current.IsKnown() && d.IsKnown() && !current.Equal(d) {
				exceptions.Panicf("output with shape %s doesn't match the broadcast shape %s", self.Shape, result.Shape)
			}
		}
		return self
	}
}

// identicalRule returns the rule of operations whose result has the type of their first argument, e.g.
// activation functions. floatOnly requires a float tensor, and minRank a minimum rank.
func identicalRule(floatOnly bool, minRank int) RuleFunc {
	return func(call *Call) typing.Type {
		x := call.TensorArg(0)
		checkIdentical(x, floatOnly, minRank)
		return typing.Copy(x)
	}
}

func checkIdentical(x *typing.Tensor, floatOnly bool, minRank int) {
	if floatOnly && !x.DType.IsFloat() {
		exceptions.Panicf("expects a float tensor, got %s", x)
	}
	if x.Rank() < minRank {
		exceptions.Panicf("expects a tensor of rank at least %d, got %s", minRank, x)
	}
}

// inferSoftmax: F.softmax(x, dim) and F.log_softmax(x, dim) keep the type of x; dim must be a valid axis.
func inferSoftmax(call *Call) typing.Type {
	x := call.TensorArg(0)
	checkIdentical(x, true, 0)
	if axis, known := call.IntArgOrKwarg(1, "dim", 0); known && x.Rank() > 0 {
		typing.NormalizeAxis(axis, x.Rank())
	}
	return typing.Copy(x)
}

// matmulDTypes are the dtypes for which matrix multiplication signatures are generated.
var matmulDTypes = []dtypes.DType{dtypes.Float32, dtypes.Float64, dtypes.Float16, dtypes.BFloat16}

func symbolic(dtype dtypes.DType, symbols ...string) *typing.Tensor {
	shape := make(typing.Shape, len(symbols))
	for ii, s := range symbols {
		shape[ii] = typing.Symbol(s)
	}
	return typing.NewTensor(typing.UnsetTensor, dtype, shape)
}

func symbolicResult(dtype dtypes.DType, symbols ...string) *typing.Tensor {
	t := symbolic(dtype, symbols...)
	t.Kind = typing.TorchTensor
	return t
}

// mmOverloads: torch.mm multiplies two matrices, (n, k) x (k, m) -> (n, m).
func mmOverloads() Overloads {
	var o Overloads
	for _, dtype := range matmulDTypes {
		o = append(o, Signature{
			Args:   []typing.Type{symbolic(dtype, "n", "k"), symbolic(dtype, "k", "m")},
			Result: symbolicResult(dtype, "n", "m"),
		})
	}
	return o
}

// matmulOverloads: torch.matmul on 1-D, 2-D and batched 3-D operands.
func matmulOverloads() Overloads {
	var o Overloads
	for _, dtype := range matmulDTypes {
		o = append(o,
			Signature{Args: []typing.Type{symbolic(dtype, "k"), symbolic(dtype, "k")}, Result: symbolicResult(dtype)},
			Signature{Args: []typing.Type{symbolic(dtype, "n", "k"), symbolic(dtype, "k")}, Result: symbolicResult(dtype, "n")},
			Signature{Args: []typing.Type{symbolic(dtype, "k"), symbolic(dtype, "k", "m")}, Result: symbolicResult(dtype, "m")},
			Signature{Args: []typing.Type{symbolic(dtype, "n", "k"), symbolic(dtype, "k", "m")}, Result: symbolicResult(dtype, "n", "m")},
			Signature{Args: []typing.Type{symbolic(dtype, "b", "n", "k"), symbolic(dtype, "b", "k", "m")}, Result: symbolicResult(dtype, "b", "n", "m")},
			Signature{Args: []typing.Type{symbolic(dtype, "b", "n", "k"), symbolic(dtype, "k", "m")}, Result: symbolicResult(dtype, "b", "n", "m")},
		)
	}
	return o
}

// inferFEmbedding: F.embedding(input, weight) looks up rows of weight, (*) x (num, dim) -> (*, dim).
func inferFEmbedding(call *Call) typing.Type {
	input := call.TensorArg(0)
	weight := call.TensorArg(1)
	if !input.DType.IsInt() {
		exceptions.Panicf("embedding indices must be integers, got %s", input)
	}
	if weight.Rank() != 2 {
		exceptions.Panicf("embedding weight must be a matrix, got %s", weight)
	}
	shape := append(input.Shape.Clone(), weight.Shape[1])
	return typing.NewTensor(typing.TorchTensor, weight.DType, shape)
}
