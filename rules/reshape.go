package rules

import (
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/support/sets"
	"github.com/gomlx/shapeinfer/typing"
)

// inferReshape: torch.reshape(x, shape), with shape a fixed-length tuple of ints.
func inferReshape(call *Call) typing.Type {
	x := call.TensorArg(0)
	if call.NumArgs() != 2 {
		exceptions.Panicf("expects 2 arguments (input, shape), got %d", call.NumArgs())
	}
	seq, ok := call.Arg(1).(*typing.Sequence)
	if !ok || !seq.IsFixedLen() {
		exceptions.Panicf("shape must be a fixed-length sequence of ints, got %s", call.Arg(1))
	}
	values, known := call.intsOf(1, "shape")
	return typing.NewTensor(typing.TorchTensor, x.DType, reshapeDims(x.Shape, values, known))
}

// inferView: Tensor.view(*shape) and Tensor.reshape(*shape). The shape is given as separate ints or as
// one sequence.
func inferView(call *Call) typing.Type {
	x := call.TensorArg(0)
	values, known := call.intsOf(1, "shape")
	return typing.NewTensor(typing.TorchTensor, x.DType, reshapeDims(x.Shape, values, known))
}

// reshapeDims computes the reshaped dimensions. At most one entry can be -1, and it is resolved by
// dividing the total size of the input by the size of the other entries. Entries whose value is not
// static are unknown.
func reshapeDims(input typing.Shape, values []int, known []bool) typing.Shape {
	output := make(typing.Shape, len(values))
	inferredAxis := -1
	for ii, v := range values {
		switch {
		case !known[ii]:
			output[ii] = typing.Unknown()
		case v == -1:
			if inferredAxis >= 0 {
				exceptions.Panicf("only one dimension can be inferred, got shape %v", values)
			}
			inferredAxis = ii
		case v < -1:
			exceptions.Panicf("invalid shape dimension %d", v)
		default:
			output[ii] = typing.Known(v)
		}
	}

	inputSize := input.Size()
	if inferredAxis >= 0 {
		others := typing.Known(1)
		for ii, d := range output {
			if ii != inferredAxis {
				others = others.Mul(d)
			}
		}
		if others.Is(0) {
			exceptions.Panicf("cannot reshape tensor of shape %s to %v: the unspecified dimension is ambiguous", input, values)
		}
		if inputSize.IsKnown() && others.IsKnown() && !inputSize.Mod(others).Is(0) {
			exceptions.Panicf("shape %v is invalid for input %s of size %s", values, input, inputSize)
		}
		output[inferredAxis] = inputSize.FloorDiv(others)
		return output
	}
	if outputSize := output.Size(); inputSize.IsKnown() && outputSize.IsKnown() && !inputSize.Equal(outputSize) {
		exceptions.Panicf("shape %v is invalid for input %s of size %s", values, input, inputSize)
	}
	return output
}

// inferFlatten: torch.flatten(x, start_dim=0, end_dim=-1) merges the dimensions from start_dim to end_dim
// (inclusive) into one.
func inferFlatten(call *Call) typing.Type {
	x := call.TensorArg(0)
	start, startKnown := call.IntArgOrKwarg(1, "start_dim", 0)
	end, endKnown := call.IntArgOrKwarg(2, "end_dim", -1)
	if !startKnown || !endKnown {
		exceptions.Panicf("start_dim and end_dim must be static")
	}
	if x.Rank() == 0 {
		return typing.NewTensor(typing.TorchTensor, x.DType, typing.MakeShape(1))
	}
	start = typing.NormalizeAxis(start, x.Rank())
	end = typing.NormalizeAxis(end, x.Rank())
	if start > end {
		exceptions.Panicf("start_dim (%d) cannot come after end_dim (%d)", start, end)
	}
	shape := slices.Clone(x.Shape[:start])
	shape = append(shape, x.Shape[start:end+1].Size())
	shape = append(shape, x.Shape[end+1:]...)
	return typing.NewTensor(typing.TorchTensor, x.DType, shape)
}

// inferSqueeze: torch.squeeze(x, dim=None) removes dimensions of size 1: all of them, or only dim.
// A dimension of unknown size at dim is assumed to be 1.
func inferSqueeze(call *Call) typing.Type {
	x := call.TensorArg(0)
	if !call.HasArgOrKwarg(1, "dim") {
		if !x.Shape.IsConcrete() {
			exceptions.Panicf("cannot guess the rank of the result of squeezing %s", x)
		}
		shape := make(typing.Shape, 0, x.Rank())
		for _, d := range x.Shape {
			if !d.Is(1) {
				shape = append(shape, d)
			}
		}
		return typing.NewTensor(typing.TorchTensor, x.DType, shape)
	}

	axis, known := call.IntArgOrKwarg(1, "dim", 0)
	if !known {
		exceptions.Panicf("cannot guess the rank of the result of squeezing %s on a non-static dim", x)
	}
	if x.Rank() == 0 {
		return typing.NewTensor(typing.TorchTensor, x.DType, typing.Shape{})
	}
	axis = typing.NormalizeAxis(axis, x.Rank())
	shape := x.Shape.Clone()
	if d := shape[axis]; d.Is(1) || !d.IsKnown() {
		shape = slices.Delete(shape, axis, axis+1)
	}
	return typing.NewTensor(typing.TorchTensor, x.DType, shape)
}

// inferUnsqueeze: torch.unsqueeze(x, dim) inserts a dimension of size 1 at dim.
func inferUnsqueeze(call *Call) typing.Type {
	x := call.TensorArg(0)
	axis, known := call.IntArgOrKwarg(1, "dim", 0)
	if !call.HasArgOrKwarg(1, "dim") {
		exceptions.Panicf("missing dim")
	}
	if !known {
		return typing.NewTensor(typing.TorchTensor, x.DType, typing.UnknownShape(x.Rank()+1))
	}
	axis = typing.NormalizeAxis(axis, x.Rank()+1)
	shape := slices.Insert(x.Shape.Clone(), axis, typing.Known(1))
	return typing.NewTensor(typing.TorchTensor, x.DType, shape)
}

// inferTranspose: torch.transpose(x, dim0, dim1) swaps two dimensions. If either is not static, every
// dimension of the result is unknown.
func inferTranspose(call *Call) typing.Type {
	x := call.TensorArg(0)
	dim0, known0 := call.IntArgOrKwarg(1, "dim0", 0)
	dim1, known1 := call.IntArgOrKwarg(2, "dim1", 0)
	if !call.HasArgOrKwarg(1, "dim0") || !call.HasArgOrKwarg(2, "dim1") {
		exceptions.Panicf("expects two dimensions to swap")
	}
	if !known0 || !known1 {
		return typing.NewTensor(typing.TorchTensor, x.DType, typing.UnknownShape(x.Rank()))
	}
	if x.Rank() == 0 {
		return typing.NewTensor(typing.TorchTensor, x.DType, typing.Shape{})
	}
	dim0 = typing.NormalizeAxis(dim0, x.Rank())
	dim1 = typing.NormalizeAxis(dim1, x.Rank())
	shape := x.Shape.Clone()
	shape[dim0], shape[dim1] = shape[dim1], shape[dim0]
	return typing.NewTensor(typing.TorchTensor, x.DType, shape)
}

// inferPermute: torch.permute(x, dims) and Tensor.permute(*dims) reorder the dimensions.
func inferPermute(call *Call) typing.Type {
	x := call.TensorArg(0)
	values, known := call.intsOf(1, "dims")
	if len(values) != x.Rank() {
		exceptions.Panicf("permutation %v doesn't match the rank of %s", values, x)
	}
	if slices.Contains(known, false) {
		return typing.NewTensor(typing.TorchTensor, x.DType, typing.UnknownShape(x.Rank()))
	}
	seen := sets.Make[int]()
	shape := make(typing.Shape, len(values))
	for ii, v := range values {
		axis := typing.NormalizeAxis(v, x.Rank())
		if seen.Has(axis) {
			exceptions.Panicf("permutation %v repeats axis %d", values, axis)
		}
		seen.Insert(axis)
		shape[ii] = x.Shape[axis]
	}
	return typing.NewTensor(typing.TorchTensor, x.DType, shape)
}

// inferRepeat: Tensor.repeat(*sizes) tiles the tensor. There can be more sizes than dimensions, in which
// case new leading dimensions are added.
func inferRepeat(call *Call) typing.Type {
	x := call.TensorArg(0)
	values, known := call.intsOf(1, "sizes")
	if len(values) < x.Rank() {
		exceptions.Panicf("number of repeat sizes (%d) can't be smaller than the rank of %s", len(values), x)
	}
	shape := make(typing.Shape, len(values))
	offset := len(values) - x.Rank()
	for ii, v := range values {
		d := typing.Unknown()
		if known[ii] {
			if v < 0 {
				exceptions.Panicf("negative repeat size %d", v)
			}
			d = typing.Known(v)
		}
		if ii >= offset {
			d = d.Mul(x.Shape[ii-offset])
		}
		shape[ii] = d
	}
	return typing.NewTensor(typing.TorchTensor, x.DType, shape)
}

// inferExpand: Tensor.expand(*sizes) broadcasts dimensions of size 1 to a larger size; -1 keeps the
// dimension. New leading dimensions can be added, but not with -1.
func inferExpand(call *Call) typing.Type {
	x := call.TensorArg(0)
	values, known := call.intsOf(1, "sizes")
	if len(values) < x.Rank() {
		exceptions.Panicf("number of sizes (%d) can't be smaller than the rank of %s", len(values), x)
	}
	shape := make(typing.Shape, len(values))
	offset := len(values) - x.Rank()
	for ii, v := range values {
		if !known[ii] {
			shape[ii] = typing.Unknown()
			continue
		}
		if ii < offset {
			if v < 0 {
				exceptions.Panicf("expanded size %d is not allowed in a new leading dimension", v)
			}
			shape[ii] = typing.Known(v)
			continue
		}
		current := x.Shape[ii-offset]
		switch {
		case v == -1:
			shape[ii] = current
		case v < 0:
			exceptions.Panicf("invalid expanded size %d", v)
		case current.IsKnown() && !current.Is(1) && !current.Is(v):
			exceptions.Panicf("the expanded size %d must match the existing size %s at axis %d", v, current, ii)
		default:
			shape[ii] = typing.Known(v)
		}
	}
	return typing.NewTensor(typing.TorchTensor, x.DType, shape)
}
