package rules

import (
	"math"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/shapeinfer/typing"
)

// ModuleFamily is the family of every layer descriptor: two layer objects of different classes still unify
// (see typing.Class).
const ModuleFamily = "nn.Module"

// Layer describes a layer object: its configuration and the dtype of its parameters.
//
// Layer descriptors are the instances of the *typing.Class types passed as Call.Self, and are used by
// pointer (e.g. *Linear).
type Layer interface {
	// ParamDType is the dtype of the layer parameters, or dtypes.InvalidDType if it has none.
	// Inputs must have the same dtype.
	ParamDType() dtypes.DType

	// ModuleFamily returns ModuleFamily.
	ModuleFamily() string
}

// Module is embedded in every layer descriptor.
type Module struct {
	DType dtypes.DType
}

// ParamDType implements Layer.
func (m Module) ParamDType() dtypes.DType { return m.DType }

// ModuleFamily implements Layer.
func (Module) ModuleFamily() string { return ModuleFamily }

// Linear is an nn.Linear layer: (*, InFeatures) -> (*, OutFeatures).
type Linear struct {
	Module
	InFeatures, OutFeatures int
}

// NewLinear returns a Linear layer with float32 parameters.
func NewLinear(inFeatures, outFeatures int) *Linear {
	return &Linear{Module: Module{DType: DefaultFloatDType}, InFeatures: inFeatures, OutFeatures: outFeatures}
}

// Conv is an nn.ConvNd or nn.ConvTransposeNd layer. The per-spatial-axis settings can hold one value for
// every axis; empty ones take the default (stride and dilation 1, padding 0).
type Conv struct {
	Module
	InChannels, OutChannels                             int
	KernelSize, Stride, Padding, Dilation, OutputPadding []int
}

// Pool is an nn.AvgPoolNd or nn.MaxPoolNd layer. Stride defaults to KernelSize.
type Pool struct {
	Module
	KernelSize, Stride, Padding, Dilation []int
	CeilMode                              bool
}

// AdaptivePool is an nn.AdaptiveAvgPoolNd layer. A non-positive output size keeps the input size.
type AdaptivePool struct {
	Module
	OutputSize []int
}

// Pad is one of the padding layers. Padding holds either one value for every side, or (left, right) pairs
// starting from the last axis.
type Pad struct {
	Module
	Padding []int
}

// BatchNorm is an nn.BatchNormNd layer.
type BatchNorm struct {
	Module
	NumFeatures int
}

// Embedding is an nn.Embedding layer: (*) -> (*, EmbeddingDim).
type Embedding struct {
	Module
	NumEmbeddings, EmbeddingDim int
}

// InstanceNorm is an nn.InstanceNormNd layer. A non-positive NumFeatures skips the features check.
type InstanceNorm struct {
	Module
	NumFeatures int
}

// LSTMCell is an nn.LSTMCell layer: (N, InputSize) -> ((N, HiddenSize), (N, HiddenSize)).
type LSTMCell struct {
	Module
	InputSize, HiddenSize int
}

// CrossEntropyLoss is an nn.CrossEntropyLoss layer. Reduction is "mean" (the default if empty), "sum" or
// "none".
type CrossEntropyLoss struct {
	Module
	Reduction string
}

// PixelShuffle is an nn.PixelShuffle layer: (*, C*r*r, H, W) -> (*, C, H*r, W*r), with r the UpscaleFactor.
type PixelShuffle struct {
	Module
	UpscaleFactor int
}

// Activation is a parameterless layer whose output has the type of its input: activations and dropouts.
type Activation struct {
	Module
}

// layerAs returns the layer descriptor of the call, which must be of type L.
func layerAs[L Layer](call *Call) L {
	layer := call.Layer()
	l, ok := layer.(L)
	if !ok {
		exceptions.Panicf("%s called on a %T layer object", call.op, layer)
	}
	return l
}

// checkParamDType checks that the layer parameters have the dtype of its input x.
func checkParamDType(layer Layer, x *typing.Tensor) {
	if dtype := layer.ParamDType(); dtype != dtypes.InvalidDType && dtype != x.DType {
		exceptions.Panicf("layer parameters are %s, but the input is %s", typing.DTypeName(dtype), x)
	}
}

// channelAxis checks x is a batched or unbatched input of a layer with spatialRank spatial axes, and returns
// its channel axis.
func channelAxis(x *typing.Tensor, spatialRank int) int {
	if x.Rank() != spatialRank+1 && x.Rank() != spatialRank+2 {
		exceptions.Panicf("expects a tensor of rank %d or %d, got %s", spatialRank+1, spatialRank+2, x)
	}
	return x.Rank() - spatialRank - 1
}

// dimsFromInts expands per-axis settings to n dimensions: empty takes defaultValue, and one value is
// repeated.
func dimsFromInts(values []int, n, defaultValue int, what string) []typing.Dim {
	dims := make([]typing.Dim, n)
	switch len(values) {
	case 0:
		for ii := range dims {
			dims[ii] = typing.Known(defaultValue)
		}
	case 1:
		for ii := range dims {
			dims[ii] = typing.Known(values[0])
		}
	case n:
		for ii, v := range values {
			dims[ii] = typing.Known(v)
		}
	default:
		exceptions.Panicf("%s must have 1 or %d values, got %v", what, n, values)
	}
	return dims
}

var (
	one = typing.Known(1)
	two = typing.Known(2)
)

// slidingWindowDim returns the output size of a convolution or pooling along one axis:
// (in + 2*padding - dilation*(kernel-1) - 1) / stride + 1, rounded down or up.
func slidingWindowDim(in, kernel, stride, padding, dilation typing.Dim, ceilMode bool) typing.Dim {
	span := in.Add(padding.Mul(two)).Sub(dilation.Mul(kernel.Sub(one))).Sub(one)
	if ceilMode {
		return span.CeilDiv(stride).Add(one)
	}
	return span.FloorDiv(stride).Add(one)
}

// transposedWindowDim returns the output size of a transposed convolution along one axis:
// (in-1)*stride - 2*padding + dilation*(kernel-1) + outputPadding + 1.
func transposedWindowDim(in, kernel, stride, padding, dilation, outputPadding typing.Dim) typing.Dim {
	return in.Sub(one).Mul(stride).Add(dilation.Mul(kernel.Sub(one))).Add(outputPadding).Add(one).Sub(padding.Mul(two))
}

// convRule returns the rule of nn.ConvNd (or nn.ConvTransposeNd) layers with spatialRank spatial axes.
func convRule(spatialRank int, transposed bool) RuleFunc {
	return func(call *Call) typing.Type {
		conv := layerAs[*Conv](call)
		x := call.TensorArg(0)
		checkParamDType(conv, x)
		chAxis := channelAxis(x, spatialRank)
		if ch := x.Shape[chAxis]; ch.IsKnown() && !ch.Is(conv.InChannels) {
			exceptions.Panicf("expected input with %d channels, got %s", conv.InChannels, x)
		}
		if len(conv.KernelSize) == 0 {
			exceptions.Panicf("convolution layer has no kernel size")
		}
		kernel := dimsFromInts(conv.KernelSize, spatialRank, 1, "kernel_size")
		stride := dimsFromInts(conv.Stride, spatialRank, 1, "stride")
		padding := dimsFromInts(conv.Padding, spatialRank, 0, "padding")
		dilation := dimsFromInts(conv.Dilation, spatialRank, 1, "dilation")
		outputPadding := dimsFromInts(conv.OutputPadding, spatialRank, 0, "output_padding")

		out := typing.Copy(x).(*typing.Tensor)
		out.Shape[chAxis] = typing.Known(conv.OutChannels)
		for ii := range spatialRank {
			axis := chAxis + 1 + ii
			if transposed {
				out.Shape[axis] = transposedWindowDim(x.Shape[axis], kernel[ii], stride[ii], padding[ii], dilation[ii], outputPadding[ii])
			} else {
				out.Shape[axis] = slidingWindowDim(x.Shape[axis], kernel[ii], stride[ii], padding[ii], dilation[ii], false)
			}
		}
		return out
	}
}

// poolShape returns the type of pooling x over its last spatialRank axes.
func poolShape(x *typing.Tensor, spatialRank int, kernel, stride, padding, dilation []typing.Dim, ceilMode bool) *typing.Tensor {
	chAxis := channelAxis(x, spatialRank)
	out := typing.Copy(x).(*typing.Tensor)
	for ii := range spatialRank {
		axis := chAxis + 1 + ii
		out.Shape[axis] = slidingWindowDim(x.Shape[axis], kernel[ii], stride[ii], padding[ii], dilation[ii], ceilMode)
	}
	return out
}

// poolRule returns the rule of nn.AvgPoolNd and nn.MaxPoolNd layers.
func poolRule(spatialRank int) RuleFunc {
	return func(call *Call) typing.Type {
		pool := layerAs[*Pool](call)
		x := call.TensorArg(0)
		checkParamDType(pool, x)
		if len(pool.KernelSize) == 0 {
			exceptions.Panicf("pooling layer has no kernel size")
		}
		kernel := dimsFromInts(pool.KernelSize, spatialRank, 1, "kernel_size")
		stride := kernel
		if len(pool.Stride) > 0 {
			stride = dimsFromInts(pool.Stride, spatialRank, 1, "stride")
		}
		padding := dimsFromInts(pool.Padding, spatialRank, 0, "padding")
		dilation := dimsFromInts(pool.Dilation, spatialRank, 1, "dilation")
		return poolShape(x, spatialRank, kernel, stride, padding, dilation, pool.CeilMode)
	}
}

// poolFuncRule returns the rule of F.avg_poolNd and F.max_poolNd:
// (input, kernel_size, stride=None, padding=0[, dilation=1], ceil_mode=False).
func poolFuncRule(spatialRank int, withDilation bool) RuleFunc {
	return func(call *Call) typing.Type {
		x := call.TensorArg(0)
		kernelArg, found := call.argOrKwarg(1, "kernel_size")
		if !found {
			exceptions.Panicf("missing kernel_size")
		}
		kernel := dimsOf(kernelArg, spatialRank, "kernel_size")
		stride := kernel
		if t, found := call.argOrKwarg(2, "stride"); found {
			stride = dimsOf(t, spatialRank, "stride")
		}
		padding := dimsFromInts(nil, spatialRank, 0, "padding")
		if t, found := call.argOrKwarg(3, "padding"); found {
			padding = dimsOf(t, spatialRank, "padding")
		}
		dilation := dimsFromInts(nil, spatialRank, 1, "dilation")
		ceilModeIdx := 4
		if withDilation {
			if t, found := call.argOrKwarg(4, "dilation"); found {
				dilation = dimsOf(t, spatialRank, "dilation")
			}
			ceilModeIdx = 5
		}
		ceilMode, known := call.IntArgOrKwarg(ceilModeIdx, "ceil_mode", 0)
		if !known {
			exceptions.Panicf("ceil_mode must be static")
		}
		return poolShape(x, spatialRank, kernel, stride, padding, dilation, ceilMode != 0)
	}
}

// adaptivePoolRule returns the rule of nn.AdaptiveAvgPoolNd layers.
func adaptivePoolRule(spatialRank int) RuleFunc {
	return func(call *Call) typing.Type {
		pool := layerAs[*AdaptivePool](call)
		x := call.TensorArg(0)
		checkParamDType(pool, x)
		chAxis := channelAxis(x, spatialRank)
		if len(pool.OutputSize) != 1 && len(pool.OutputSize) != spatialRank {
			exceptions.Panicf("output_size must have 1 or %d values, got %v", spatialRank, pool.OutputSize)
		}
		out := typing.Copy(x).(*typing.Tensor)
		for ii := range spatialRank {
			size := pool.OutputSize[0]
			if len(pool.OutputSize) > 1 {
				size = pool.OutputSize[ii]
			}
			if size > 0 {
				out.Shape[chAxis+1+ii] = typing.Known(size)
			}
		}
		return out
	}
}

// padRule returns the rule of the padding layers over spatialRank axes.
func padRule(spatialRank int) RuleFunc {
	return func(call *Call) typing.Type {
		pad := layerAs[*Pad](call)
		x := call.TensorArg(0)
		checkParamDType(pad, x)
		channelAxis(x, spatialRank)
		padding := pad.Padding
		switch len(padding) {
		case 1:
			padding = make([]int, 2*spatialRank)
			for ii := range padding {
				padding[ii] = pad.Padding[0]
			}
		case 2 * spatialRank:
		default:
			exceptions.Panicf("padding must have 1 or %d values, got %v", 2*spatialRank, pad.Padding)
		}
		out := typing.Copy(x).(*typing.Tensor)
		for ii := range spatialRank {
			axis := x.Rank() - 1 - ii
			total := padding[2*ii] + padding[2*ii+1]
			if total >= 0 {
				out.Shape[axis] = x.Shape[axis].Add(typing.Known(total))
			} else {
				out.Shape[axis] = x.Shape[axis].Sub(typing.Known(-total))
			}
		}
		return out
	}
}

// batchNormRule returns the rule of nn.BatchNormNd layers. BatchNorm1d also accepts inputs without the
// length axis.
func batchNormRule(spatialRank int) RuleFunc {
	return func(call *Call) typing.Type {
		bn := layerAs[*BatchNorm](call)
		x := call.TensorArg(0)
		checkParamDType(bn, x)
		valid := x.Rank() == spatialRank+2 || (spatialRank == 1 && x.Rank() == 2)
		if !valid {
			exceptions.Panicf("expects a batched tensor of rank %d, got %s", spatialRank+2, x)
		}
		if ch := x.Shape[1]; ch.IsKnown() && !ch.Is(bn.NumFeatures) {
			exceptions.Panicf("expected input with %d features, got %s", bn.NumFeatures, x)
		}
		return typing.Copy(x)
	}
}

// inferLinear: nn.Linear applies to the last axis.
func inferLinear(call *Call) typing.Type {
	linear := layerAs[*Linear](call)
	x := call.TensorArg(0)
	checkParamDType(linear, x)
	if x.Rank() == 0 {
		exceptions.Panicf("expects a tensor of rank at least 1, got %s", x)
	}
	last := x.Rank() - 1
	if d := x.Shape[last]; d.IsKnown() && !d.Is(linear.InFeatures) {
		exceptions.Panicf("expected input with %d features, got %s", linear.InFeatures, x)
	}
	out := typing.Copy(x).(*typing.Tensor)
	out.Shape[last] = typing.Known(linear.OutFeatures)
	return out
}

// inferEmbedding: nn.Embedding maps integer indices (*) to (*, EmbeddingDim).
func inferEmbedding(call *Call) typing.Type {
	emb := layerAs[*Embedding](call)
	x := call.TensorArg(0)
	if !x.DType.IsInt() {
		exceptions.Panicf("embedding indices must be integers, got %s", x)
	}
	dtype := emb.ParamDType()
	if dtype == dtypes.InvalidDType {
		dtype = DefaultFloatDType
	}
	shape := append(x.Shape.Clone(), typing.Known(emb.EmbeddingDim))
	return typing.NewTensor(typing.TorchTensor, dtype, shape)
}

// activationRule returns the rule of parameterless layers that keep the type of their input.
func activationRule(minRank int) RuleFunc {
	return func(call *Call) typing.Type {
		layer := layerAs[*Activation](call)
		x := call.TensorArg(0)
		checkParamDType(layer, x)
		checkIdentical(x, true, minRank)
		return typing.Copy(x)
	}
}

// instanceNormRule returns the rule of nn.InstanceNormNd layers, which accept batched and unbatched inputs.
func instanceNormRule(spatialRank int) RuleFunc {
	return func(call *Call) typing.Type {
		norm := layerAs[*InstanceNorm](call)
		x := call.TensorArg(0)
		checkParamDType(norm, x)
		checkIdentical(x, true, 0)
		chAxis := channelAxis(x, spatialRank)
		if ch := x.Shape[chAxis]; norm.NumFeatures > 0 && ch.IsKnown() && !ch.Is(norm.NumFeatures) {
			exceptions.Panicf("expected input with %d features, got %s", norm.NumFeatures, x)
		}
		return typing.Copy(x)
	}
}

// inferLSTMCell: nn.LSTMCell(input, hx=None) returns the tuple (h, c) of the next hidden and cell states.
// hx, if given, must be a (h, c) pair with the shape of the result.
func inferLSTMCell(call *Call) typing.Type {
	cell := layerAs[*LSTMCell](call)
	x := call.TensorArg(0)
	checkParamDType(cell, x)
	checkIdentical(x, true, 1)
	if x.Rank() > 2 {
		exceptions.Panicf("expects a tensor of rank 1 or 2, got %s", x)
	}
	last := x.Rank() - 1
	if d := x.Shape[last]; d.IsKnown() && !d.Is(cell.InputSize) {
		exceptions.Panicf("expected input with %d features, got %s", cell.InputSize, x)
	}
	shape := x.Shape.Clone()
	shape[last] = typing.Known(cell.HiddenSize)
	state := func() *typing.Tensor { return typing.NewTensor(typing.TorchTensor, x.DType, shape.Clone()) }
	if hx, found := call.argOrKwarg(1, "hx"); found {
		call.Unify(hx, typing.NewTuple(state(), state()))
	}
	return typing.NewTuple(state(), state())
}

// inferCrossEntropyLoss: nn.CrossEntropyLoss(input, target) takes float logits (C), (N, C) or
// (N, C, d1, ...) and either integer class indices (the input shape without C) or float probabilities
// (the input shape). The loss is a scalar, or per-element with reduction "none".
func inferCrossEntropyLoss(call *Call) typing.Type {
	loss := layerAs[*CrossEntropyLoss](call)
	x := call.TensorArg(0)
	checkParamDType(loss, x)
	checkIdentical(x, true, 1)
	target := call.TensorArg(1)
	classAxis := 0
	if x.Rank() > 1 {
		classAxis = 1
	}
	perElement := slices.Delete(x.Shape.Clone(), classAxis, classAxis+1)
	switch {
	case target.DType.IsInt():
		if target.Rank() != len(perElement) {
			exceptions.Panicf("class indices %s must have rank %d for input %s", target, len(perElement), x)
		}
		call.Unify(typing.NewTensor(typing.TorchTensor, target.DType, target.Shape.Clone()),
			typing.NewTensor(typing.TorchTensor, target.DType, perElement.Clone()))
	case target.DType == x.DType:
		call.Unify(typing.NewTensor(typing.TorchTensor, x.DType, target.Shape.Clone()),
			typing.NewTensor(typing.TorchTensor, x.DType, x.Shape.Clone()))
	default:
		exceptions.Panicf("target must hold class indices or %s probabilities, got %s", typing.DTypeName(x.DType), target)
	}
	switch loss.Reduction {
	case "", "mean", "sum":
		return typing.NewTensor(typing.TorchTensor, x.DType, typing.Shape{})
	case "none":
		return typing.NewTensor(typing.TorchTensor, x.DType, perElement)
	}
	exceptions.Panicf("invalid reduction %q", loss.Reduction)
	return nil
}

// inferPixelShuffle: nn.PixelShuffle moves r*r channels into an r-times larger spatial grid.
func inferPixelShuffle(call *Call) typing.Type {
	shuffle := layerAs[*PixelShuffle](call)
	x := call.TensorArg(0)
	checkParamDType(shuffle, x)
	if x.Rank() < 3 {
		exceptions.Panicf("expects a tensor of rank at least 3, got %s", x)
	}
	if shuffle.UpscaleFactor <= 0 {
		exceptions.Panicf("upscale factor must be positive, got %d", shuffle.UpscaleFactor)
	}
	r := typing.Known(shuffle.UpscaleFactor)
	blocks := r.Mul(r)
	rank := x.Rank()
	ch, h, w := x.Shape[rank-3], x.Shape[rank-2], x.Shape[rank-1]
	if ch.IsKnown() && !ch.Mod(blocks).Is(0) {
		exceptions.Panicf("channels of %s must be divisible by %s", x, blocks)
	}
	out := typing.Copy(x).(*typing.Tensor)
	out.Shape[rank-3] = ch.FloorDiv(blocks)
	out.Shape[rank-2] = h.Mul(r)
	out.Shape[rank-1] = w.Mul(r)
	return out
}

// inferInterpolate: F.interpolate(input, size=None, scale_factor=None, ...) resizes the spatial axes of a
// (N, C, d1[, d2[, d3]]) input. Exactly one of size and scale_factor must be given; an output dimension
// whose size or scale is not static is unknown.
func inferInterpolate(call *Call) typing.Type {
	x := call.TensorArg(0)
	checkIdentical(x, true, 0)
	if x.Rank() < 3 || x.Rank() > 5 {
		exceptions.Panicf("expects a tensor of rank 3 to 5, got %s", x)
	}
	spatialRank := x.Rank() - 2
	sizeArg, hasSize := call.argOrKwarg(1, "size")
	scaleArg, hasScale := call.argOrKwarg(2, "scale_factor")
	if hasSize == hasScale {
		exceptions.Panicf("exactly one of size or scale_factor must be given")
	}
	out := typing.Copy(x).(*typing.Tensor)
	if hasSize {
		copy(out.Shape[2:], dimsOf(sizeArg, spatialRank, "size"))
		return out
	}
	for ii, scale := range scalesOf(scaleArg, spatialRank) {
		axis := 2 + ii
		in, known := x.Shape[axis].Value()
		if !known || scale < 0 {
			out.Shape[axis] = typing.Unknown()
			continue
		}
		out.Shape[axis] = typing.Known(int(math.Floor(float64(in) * scale)))
	}
	return out
}

// scalesOf converts a scale_factor argument to n scales: a number is repeated n times, and a fixed-length
// sequence must have n elements. Scales not static are reported as -1.
func scalesOf(t typing.Type, n int) []float64 {
	scales := make([]float64, n)
	for ii := range scales {
		scales[ii] = -1
	}
	seq, isSeq := t.(*typing.Sequence)
	if !isSeq {
		scale := mustScale(t)
		for ii := range scales {
			scales[ii] = scale
		}
		return scales
	}
	if !seq.IsFixedLen() {
		return scales
	}
	elems := seq.Elems()
	if len(elems) != n {
		exceptions.Panicf("scale_factor must have %d values, got %s", n, t)
	}
	for ii, e := range elems {
		scales[ii] = mustScale(e)
	}
	return scales
}

func mustScale(t typing.Type) float64 {
	n, ok := t.(*typing.Num)
	if !ok {
		exceptions.Panicf("scale_factor must be a number, got %s", t)
	}
	var scale float64
	switch v := n.Value.(type) {
	case float64:
		scale = v
	case int:
		scale = float64(v)
	default:
		return -1
	}
	if scale <= 0 {
		exceptions.Panicf("scale_factor must be positive, got %s", t)
	}
	return scale
}
