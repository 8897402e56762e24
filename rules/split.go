package rules

import (
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/shapeinfer/typing"
)

// withDim returns a torch tensor of the dtype of x, with the shape of x except for axis.
func withDim(x *typing.Tensor, axis int, d typing.Dim) *typing.Tensor {
	shape := x.Shape.Clone()
	shape[axis] = d
	return typing.NewTensor(typing.TorchTensor, x.DType, shape)
}

// unknownParts is the result of splitting x into a number of parts not known statically: a variable-length
// tuple of tensors whose split dimension is unknown.
func unknownParts(x *typing.Tensor, axis int) typing.Type {
	if axis < 0 {
		return typing.NewTupleOf(typing.NewTensor(typing.TorchTensor, x.DType, typing.UnknownShape(x.Rank())))
	}
	return typing.NewTupleOf(withDim(x, axis, typing.Unknown()))
}

// splitAxis returns the normalized dim argument of split-like operations, or -1 if it is not static.
func splitAxis(call *Call, x *typing.Tensor, argIdx int) int {
	axis, known := call.IntArgOrKwarg(argIdx, "dim", 0)
	if x.Rank() == 0 {
		exceptions.Panicf("cannot split a scalar tensor %s", x)
	}
	if !known {
		return -1
	}
	return typing.NormalizeAxis(axis, x.Rank())
}

// inferSplit: torch.split(x, split_size_or_sections, dim=0).
//
// With an int size, dim is split into parts of that size, the last one getting the remainder. With a list
// of sections, each part gets the size of its section. If the number of parts is not static, the result is a
// variable-length tuple.
func inferSplit(call *Call) typing.Type {
	x := call.TensorArg(0)
	axis := splitAxis(call, x, 2)
	if axis < 0 {
		return unknownParts(x, axis)
	}
	total := x.Shape[axis]

	switch arg := call.Arg(1).(type) {
	case *typing.Num:
		size, known := mustInt(arg, "split_size")
		if !known || !total.IsKnown() {
			return unknownParts(x, axis)
		}
		if size <= 0 {
			exceptions.Panicf("split_size must be positive, got %d", size)
		}
		sizeDim := typing.Known(size)
		if total.Is(0) {
			return typing.NewTuple(withDim(x, axis, total))
		}
		numParts, _ := total.CeilDiv(sizeDim).Value()
		parts := make([]typing.Type, numParts)
		for ii := range parts {
			parts[ii] = withDim(x, axis, sizeDim)
		}
		if remainder := total.Mod(sizeDim); !remainder.Is(0) {
			parts[numParts-1] = withDim(x, axis, remainder)
		}
		return typing.NewTuple(parts...)

	case *typing.Sequence:
		if !arg.IsFixedLen() {
			return unknownParts(x, axis)
		}
		sections, known, ok := typing.ExtractInts(arg)
		if !ok {
			exceptions.Panicf("split sections must be ints, got %s", arg)
		}
		parts := make([]typing.Type, len(sections))
		sum := typing.Known(0)
		for ii, section := range sections {
			d := typing.Unknown()
			if known[ii] {
				if section < 0 {
					exceptions.Panicf("split sections must be non-negative, got %v", sections)
				}
				d = typing.Known(section)
			}
			sum = sum.Add(d)
			parts[ii] = withDim(x, axis, d)
		}
		if sum.IsKnown() && total.IsKnown() && !sum.Equal(total) {
			exceptions.Panicf("split sections %v don't sum to the size %s of axis %d", sections, total, axis)
		}
		return typing.NewTuple(parts...)

	default:
		exceptions.Panicf("split_size_or_sections must be an int or a sequence of ints, got %s", arg)
		return nil
	}
}

// inferChunk: torch.chunk(x, chunks, dim=0) splits dim into chunks parts of size ceil(size/chunks), the
// last one getting the remainder; there may be fewer than chunks parts. If the size of dim is unknown,
// there are exactly chunks parts with unknown size.
func inferChunk(call *Call) typing.Type {
	x := call.TensorArg(0)
	axis := splitAxis(call, x, 2)
	chunks, known := call.IntArgOrKwarg(1, "chunks", 0)
	if !call.HasArgOrKwarg(1, "chunks") {
		exceptions.Panicf("missing chunks")
	}
	if !known || axis < 0 {
		return unknownParts(x, axis)
	}
	if chunks <= 0 {
		exceptions.Panicf("chunks must be positive, got %d", chunks)
	}
	total := x.Shape[axis]
	if !total.IsKnown() || total.Is(0) {
		parts := make([]typing.Type, chunks)
		for ii := range parts {
			parts[ii] = withDim(x, axis, total)
		}
		return typing.NewTuple(parts...)
	}
	size := total.CeilDiv(typing.Known(chunks))
	numParts, _ := total.CeilDiv(size).Value()
	parts := make([]typing.Type, numParts)
	for ii := range parts {
		parts[ii] = withDim(x, axis, size)
	}
	if remainder := total.Mod(size); !remainder.Is(0) {
		parts[numParts-1] = withDim(x, axis, remainder)
	}
	return typing.NewTuple(parts...)
}

// commonTensor returns the type shared by the tensors of a sequence: the elements are unified on copies, so
// the arguments are not refined. For a variable-length sequence it's a copy of the element type.
func commonTensor(call *Call, seq *typing.Sequence, ignoreAxis int) *typing.Tensor {
	if !seq.IsFixedLen() {
		return mustTensor(typing.Copy(seq.Elem()), "sequence element")
	}
	elems := seq.Elems()
	if len(elems) == 0 {
		exceptions.Panicf("expects a non-empty sequence of tensors")
	}
	common := mustTensor(typing.Copy(elems[0]), "sequence element #0")
	for ii, e := range elems[1:] {
		other := mustTensor(typing.Copy(e), "sequence element")
		if other.Rank() != common.Rank() {
			exceptions.Panicf("all tensors must have the same rank, got %s and %s at position %d", common, e, ii+1)
		}
		if ignoreAxis >= 0 {
			other.Shape[ignoreAxis] = common.Shape[ignoreAxis]
		}
		call.Unify(common, other)
	}
	return common
}

// commonRankTensor is like commonTensor, but only dtype and rank must agree: the shape of the result is
// all unknown.
func commonRankTensor(call *Call, seq *typing.Sequence) *typing.Tensor {
	var common *typing.Tensor
	if seq.IsFixedLen() {
		for ii, e := range seq.Elems() {
			other := mustTensor(typing.Copy(e), "sequence element")
			if common == nil {
				common = other
				continue
			}
			if other.Rank() != common.Rank() {
				exceptions.Panicf("all tensors must have the same rank, got %s and %s at position %d", common, e, ii)
			}
			call.UnifyIgnoringShape(common, other)
		}
	} else {
		common = mustTensor(typing.Copy(seq.Elem()), "sequence element")
	}
	if common == nil {
		exceptions.Panicf("expects a non-empty sequence of tensors")
	}
	return typing.NewTensor(common.Kind, common.DType, typing.UnknownShape(common.Rank()))
}

// inferStack: torch.stack(tensors, dim=0) joins same-shaped tensors along a new dimension.
func inferStack(call *Call) typing.Type {
	seq, ok := call.Arg(0).(*typing.Sequence)
	if !ok {
		exceptions.Panicf("expects a sequence of tensors, got %s", call.Arg(0))
	}
	common := commonTensor(call, seq, -1)
	axis, known := call.IntArgOrKwarg(1, "dim", 0)
	if !known {
		return typing.NewTensor(typing.TorchTensor, common.DType, typing.UnknownShape(common.Rank()+1))
	}
	axis = typing.NormalizeAxis(axis, common.Rank()+1)
	count := typing.Unknown()
	if n, fixed := seq.Len(); fixed {
		count = typing.Known(n)
	}
	shape := slices.Insert(common.Shape.Clone(), axis, count)
	return typing.NewTensor(typing.TorchTensor, common.DType, shape)
}

// inferCat: torch.cat(tensors, dim=0) concatenates tensors along an existing dimension. The other
// dimensions must agree. With a non-static dim, only dtypes and ranks are checked.
func inferCat(call *Call) typing.Type {
	seq, ok := call.Arg(0).(*typing.Sequence)
	if !ok {
		exceptions.Panicf("expects a sequence of tensors, got %s", call.Arg(0))
	}
	if n, fixed := seq.Len(); fixed && n == 0 {
		exceptions.Panicf("expects a non-empty sequence of tensors")
	}
	first := mustTensor(typing.Deref(seq.Representative()), "sequence element")
	if first.Rank() == 0 {
		exceptions.Panicf("zero-dimensional tensor %s cannot be concatenated", first)
	}
	axis, known := call.IntArgOrKwarg(1, "dim", 0)
	if !known {
		common := commonRankTensor(call, seq)
		return typing.NewTensor(typing.TorchTensor, common.DType, common.Shape)
	}
	axis = typing.NormalizeAxis(axis, first.Rank())
	common := commonTensor(call, seq, axis)
	if !seq.IsFixedLen() {
		return withDim(common, axis, typing.Unknown())
	}
	total := typing.Known(0)
	for _, e := range seq.Elems() {
		total = total.Add(mustTensor(typing.Deref(e), "sequence element").Shape[axis])
	}
	return withDim(common, axis, total)
}
