package rules

import (
	"testing"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/shapeinfer/typing"
	"github.com/stretchr/testify/assert"
)

func layerCall(layer Layer, x typing.Type) *Call {
	return newCall(x).WithSelf(typing.NewClass("Layer", layer))
}

func float32Module() Module { return Module{DType: dtypes.Float32} }

// withArg appends a positional argument to the call.
func (c *Call) withArg(t typing.Type) *Call {
	c.Args = append(c.Args, t)
	return c
}

func TestLinear(t *testing.T) {
	linear := NewLinear(784, 400)
	assert.Equal(t, ModuleFamily, typing.NewClass("Linear", linear).Family)
	assert.Equal(t, "tensor(float32, (128, 400))", evaluateShow(t, OpNNLinear, layerCall(linear, f32(128, 784))))
	assert.Equal(t, "tensor(float32, (?, 400))", evaluateShow(t, OpNNLinear, layerCall(linear, f32(-1, 784))))
	assert.Equal(t, "tensor(float32, (2, 5, 400))", evaluateShow(t, OpNNLinear, layerCall(linear, f32(2, 5, -1))))

	variable := typing.NewTensor(typing.VariableTensor, dtypes.Float32, typing.MakeShape(128, 784))
	assert.Equal(t, "variable(float32, (128, 400))", evaluateShow(t, OpNNLinear, layerCall(linear, variable)))

	requireInvalidUse(t, OpNNLinear, layerCall(linear, f32(128, 10)))
	requireInvalidUse(t, OpNNLinear, layerCall(linear, tensorOf(dtypes.Float64, 128, 784)))
	requireInvalidUse(t, OpNNLinear, layerCall(linear, f32()))
	requireInvalidUse(t, OpNNLinear, newCall(f32(128, 784)))
	requireInvalidUse(t, OpNNLinear, newCall(f32(128, 784)).WithSelf(typing.NewClass("NotALayer", nil)))
	requireInvalidUse(t, OpNNConv2d, layerCall(linear, f32(1, 3, 32, 32)))
}

func TestConv(t *testing.T) {
	conv := &Conv{Module: float32Module(), InChannels: 3, OutChannels: 16, KernelSize: []int{3}, Padding: []int{1}}
	assert.Equal(t, "tensor(float32, (1, 16, 32, 32))", evaluateShow(t, OpNNConv2d, layerCall(conv, f32(1, 3, 32, 32))))

	strided := &Conv{Module: float32Module(), InChannels: 3, OutChannels: 16, KernelSize: []int{3}, Stride: []int{2}, Padding: []int{1}}
	assert.Equal(t, "tensor(float32, (1, 16, 16, 16))", evaluateShow(t, OpNNConv2d, layerCall(strided, f32(1, 3, 32, 32))))

	unpadded := &Conv{Module: float32Module(), InChannels: 3, OutChannels: 16, KernelSize: []int{3, 5}}
	assert.Equal(t, "tensor(float32, (16, 30, 28))", evaluateShow(t, OpNNConv2d, layerCall(unpadded, f32(3, 32, 32))))

	conv1d := &Conv{Module: float32Module(), InChannels: 3, OutChannels: 8, KernelSize: []int{3}, Dilation: []int{2}}
	assert.Equal(t, "tensor(float32, (4, 8, ?))", evaluateShow(t, OpNNConv1d, layerCall(conv1d, f32(4, 3, -1))))
	assert.Equal(t, "tensor(float32, (4, 8, 16))", evaluateShow(t, OpNNConv1d, layerCall(conv1d, f32(4, 3, 20))))

	requireInvalidUse(t, OpNNConv2d, layerCall(conv, f32(1, 4, 32, 32)))
	requireInvalidUse(t, OpNNConv2d, layerCall(conv, f32(32, 32)))
	requireInvalidUse(t, OpNNConv2d, layerCall(&Conv{Module: float32Module(), InChannels: 3, OutChannels: 16}, f32(1, 3, 32, 32)))

	t.Run("Transposed", func(t *testing.T) {
		deconv := &Conv{Module: float32Module(), InChannels: 16, OutChannels: 3, KernelSize: []int{4}, Stride: []int{2}, Padding: []int{1}}
		assert.Equal(t, "tensor(float32, (1, 3, 32, 32))",
			evaluateShow(t, OpNNConvTranspose2d, layerCall(deconv, f32(1, 16, 16, 16))))
		withOutputPadding := &Conv{Module: float32Module(), InChannels: 16, OutChannels: 3, KernelSize: []int{3}, Stride: []int{2}, OutputPadding: []int{1}}
		assert.Equal(t, "tensor(float32, (1, 3, 34))",
			evaluateShow(t, OpNNConvTranspose1d, layerCall(withOutputPadding, f32(1, 16, 16))))
	})
}

func TestPool(t *testing.T) {
	pool := &Pool{KernelSize: []int{2}}
	assert.Equal(t, "tensor(float32, (1, 16, 16, 16))", evaluateShow(t, OpNNMaxPool2d, layerCall(pool, f32(1, 16, 32, 32))))
	assert.Equal(t, "tensor(float64, (1, 16, 16, 16))",
		evaluateShow(t, OpNNAvgPool2d, layerCall(pool, tensorOf(dtypes.Float64, 1, 16, 32, 32))))

	floor := &Pool{KernelSize: []int{3}, Stride: []int{2}}
	ceil := &Pool{KernelSize: []int{3}, Stride: []int{2}, CeilMode: true}
	assert.Equal(t, "tensor(float32, (2, 4, 15))", evaluateShow(t, OpNNAvgPool1d, layerCall(floor, f32(2, 4, 32))))
	assert.Equal(t, "tensor(float32, (2, 4, 16))", evaluateShow(t, OpNNAvgPool1d, layerCall(ceil, f32(2, 4, 32))))
	requireInvalidUse(t, OpNNMaxPool3d, layerCall(pool, f32(16, 32, 32)))
	requireInvalidUse(t, OpNNMaxPool2d, layerCall(&Pool{}, f32(1, 16, 32, 32)))

	t.Run("Functional", func(t *testing.T) {
		assert.Equal(t, "tensor(float32, (1, 16, 16, 16))",
			evaluateShow(t, OpMaxPool2d, newCall(f32(1, 16, 32, 32), typing.NewInt(2))))
		assert.Equal(t, "tensor(float32, (2, 4, 8))",
			evaluateShow(t, OpAvgPool1d, newCall(f32(2, 4, 10), typing.NewInt(3), typing.NewInt(1))))
		assert.Equal(t, "tensor(float32, (1, 16, 16, 8))",
			evaluateShow(t, OpMaxPool2d, newCall(f32(1, 16, 32, 32), ints(2, 4))))
		assert.Equal(t, "tensor(float32, (2, 4, 16))",
			evaluateShow(t, OpAvgPool1d, newCall(f32(2, 4, 32), typing.NewInt(3), typing.NewInt(2)).
				WithKwarg("ceil_mode", typing.NewBool(true))))
		assert.Equal(t, "tensor(float32, (1, 2, ?, ?, ?))",
			evaluateShow(t, OpMaxPool3d, newCall(f32(1, 2, 8, 8, 8), typing.NewInt())))
		requireInvalidUse(t, OpMaxPool2d, newCall(f32(1, 16, 32, 32)))
		requireInvalidUse(t, OpMaxPool2d, newCall(f32(1, 16, 32, 32), ints(2, 2, 2)))
	})

	t.Run("Adaptive", func(t *testing.T) {
		assert.Equal(t, "tensor(float32, (1, 512, 1, 1))",
			evaluateShow(t, OpNNAdaptiveAvgPool2d, layerCall(&AdaptivePool{OutputSize: []int{1}}, f32(1, 512, 7, 7))))
		assert.Equal(t, "tensor(float32, (2, 8, 7, 3))",
			evaluateShow(t, OpNNAdaptiveAvgPool2d, layerCall(&AdaptivePool{OutputSize: []int{-1, 3}}, f32(2, 8, 7, 9))))
		requireInvalidUse(t, OpNNAdaptiveAvgPool2d, layerCall(&AdaptivePool{}, f32(2, 8, 7, 9)))
	})
}

func TestPad(t *testing.T) {
	assert.Equal(t, "tensor(float32, (1, 3, 34, 34))",
		evaluateShow(t, OpNNReflectionPad2d, layerCall(&Pad{Padding: []int{1}}, f32(1, 3, 32, 32))))
	assert.Equal(t, "tensor(float32, (1, 3, 13, 23))",
		evaluateShow(t, OpNNZeroPad2d, layerCall(&Pad{Padding: []int{1, 2, 0, 3}}, f32(1, 3, 10, 20))))
	assert.Equal(t, "tensor(float32, (2, 8))",
		evaluateShow(t, OpNNConstantPad1d, layerCall(&Pad{Padding: []int{-1, -1}}, f32(2, 10))))
	requireInvalidUse(t, OpNNReplicationPad2d, layerCall(&Pad{Padding: []int{1, 2, 3}}, f32(1, 3, 10, 20)))
}

func TestBatchNorm(t *testing.T) {
	bn2d := &BatchNorm{Module: float32Module(), NumFeatures: 16}
	assert.Equal(t, "tensor(float32, (8, 16, 4, 4))", evaluateShow(t, OpNNBatchNorm2d, layerCall(bn2d, f32(8, 16, 4, 4))))
	requireInvalidUse(t, OpNNBatchNorm2d, layerCall(bn2d, f32(8, 10, 4, 4)))
	requireInvalidUse(t, OpNNBatchNorm2d, layerCall(bn2d, f32(16, 4, 4)))

	bn1d := &BatchNorm{Module: float32Module(), NumFeatures: 20}
	assert.Equal(t, "tensor(float32, (8, 20))", evaluateShow(t, OpNNBatchNorm1d, layerCall(bn1d, f32(8, 20))))
	assert.Equal(t, "tensor(float32, (8, 20, 5))", evaluateShow(t, OpNNBatchNorm1d, layerCall(bn1d, f32(8, 20, 5))))
}

func TestEmbedding(t *testing.T) {
	emb := &Embedding{NumEmbeddings: 1000, EmbeddingDim: 64}
	assert.Equal(t, "tensor(float32, (8, 20, 64))",
		evaluateShow(t, OpNNEmbedding, layerCall(emb, tensorOf(dtypes.Int64, 8, 20))))
	requireInvalidUse(t, OpNNEmbedding, layerCall(emb, f32(8, 20)))

	assert.Equal(t, "tensor(float32, (8, 20, 64))",
		evaluateShow(t, OpEmbedding, newCall(tensorOf(dtypes.Int64, 8, 20), f32(1000, 64))))
	requireInvalidUse(t, OpEmbedding, newCall(tensorOf(dtypes.Int64, 8, 20), f32(64)))
}

func TestActivationLayers(t *testing.T) {
	act := &Activation{}
	for _, op := range []Op{OpNNReLU, OpNNLeakyReLU, OpNNSigmoid, OpNNTanh, OpNNDropout, OpNNAlphaDropout} {
		assert.Equal(t, "tensor(float32, (2, 3))", evaluateShow(t, op, layerCall(act, f32(2, 3))), "op %s", op)
		requireInvalidUse(t, op, layerCall(act, tensorOf(dtypes.Int64, 2, 3)))
	}
	assert.Equal(t, "tensor(float32, ())", evaluateShow(t, OpNNDropout, layerCall(act, f32())))
	assert.Equal(t, "tensor(float32, (1, 8, 4, 4))", evaluateShow(t, OpNNDropout2d, layerCall(act, f32(1, 8, 4, 4))))
	requireInvalidUse(t, OpNNDropout2d, layerCall(act, f32()))

	typed := &Activation{Module: Module{DType: dtypes.Float64}}
	requireInvalidUse(t, OpNNReLU, layerCall(typed, f32(2, 3)))
}

func TestInstanceNorm(t *testing.T) {
	norm := &InstanceNorm{Module: float32Module(), NumFeatures: 16}
	assert.Equal(t, "tensor(float32, (8, 16, 32, 32))", evaluateShow(t, OpNNInstanceNorm2d, layerCall(norm, f32(8, 16, 32, 32))))
	assert.Equal(t, "tensor(float32, (16, 32, 32))", evaluateShow(t, OpNNInstanceNorm2d, layerCall(norm, f32(16, 32, 32))))
	assert.Equal(t, "tensor(float32, (8, ?, 5))", evaluateShow(t, OpNNInstanceNorm1d, layerCall(norm, f32(8, -1, 5))))
	requireInvalidUse(t, OpNNInstanceNorm2d, layerCall(norm, f32(8, 10, 4, 4)))
	requireInvalidUse(t, OpNNInstanceNorm3d, layerCall(norm, f32(8, 16, 4, 4)))
	requireInvalidUse(t, OpNNInstanceNorm1d, layerCall(norm, tensorOf(dtypes.Float64, 8, 16, 5)))

	anyFeatures := &InstanceNorm{}
	assert.Equal(t, "tensor(float32, (2, 3, 4, 4, 4))", evaluateShow(t, OpNNInstanceNorm3d, layerCall(anyFeatures, f32(2, 3, 4, 4, 4))))
	requireInvalidUse(t, OpNNInstanceNorm1d, layerCall(anyFeatures, tensorOf(dtypes.Int64, 2, 3, 4)))
}

func TestLSTMCell(t *testing.T) {
	cell := &LSTMCell{Module: float32Module(), InputSize: 10, HiddenSize: 20}
	assert.Equal(t, []string{"tensor(float32, (3, 20))", "tensor(float32, (3, 20))"},
		parts(t, OpNNLSTMCell, layerCall(cell, f32(3, 10))))
	assert.Equal(t, []string{"tensor(float32, (?, 20))", "tensor(float32, (?, 20))"},
		parts(t, OpNNLSTMCell, layerCall(cell, f32(-1, 10))))
	assert.Equal(t, []string{"tensor(float32, (20,))", "tensor(float32, (20,))"},
		parts(t, OpNNLSTMCell, layerCall(cell, f32(10))))
	requireInvalidUse(t, OpNNLSTMCell, layerCall(cell, f32(3, 12)))
	requireInvalidUse(t, OpNNLSTMCell, layerCall(cell, f32(2, 3, 10)))
	requireInvalidUse(t, OpNNLSTMCell, layerCall(cell, tensorOf(dtypes.Float64, 3, 10)))

	t.Run("State", func(t *testing.T) {
		withState := func(h, c typing.Type) *Call {
			return newCall(f32(3, 10), typing.NewTuple(h, c)).WithSelf(typing.NewClass("LSTMCell", cell))
		}
		assert.Equal(t, []string{"tensor(float32, (3, 20))", "tensor(float32, (3, 20))"},
			parts(t, OpNNLSTMCell, withState(f32(3, 20), f32(-1, 20))))
		requireInvalidUse(t, OpNNLSTMCell, withState(f32(3, 21), f32(3, 20)))
		requireInvalidUse(t, OpNNLSTMCell, withState(f32(3, 20), tensorOf(dtypes.Float64, 3, 20)))

		call := layerCall(cell, f32(3, 10)).WithKwarg("hx", typing.NewTuple(f32(3, 20), f32(4, 20)))
		requireInvalidUse(t, OpNNLSTMCell, call)
	})
}

func TestCrossEntropyLoss(t *testing.T) {
	loss := &CrossEntropyLoss{}
	assert.Equal(t, "tensor(float32, ())",
		evaluateShow(t, OpNNCrossEntropyLoss, layerCall(loss, f32(8, 10)).withArg(tensorOf(dtypes.Int64, 8))))
	assert.Equal(t, "tensor(float32, ())",
		evaluateShow(t, OpNNCrossEntropyLoss, layerCall(loss, f32(8, 10)).withArg(f32(8, 10))))
	assert.Equal(t, "tensor(float32, ())",
		evaluateShow(t, OpNNCrossEntropyLoss, layerCall(loss, f32(10)).withArg(tensorOf(dtypes.Int64))))
	requireInvalidUse(t, OpNNCrossEntropyLoss, layerCall(loss, f32(8, 10)).withArg(tensorOf(dtypes.Int64, 9)))
	requireInvalidUse(t, OpNNCrossEntropyLoss, layerCall(loss, f32(8, 10)).withArg(tensorOf(dtypes.Int64, 8, 10)))
	requireInvalidUse(t, OpNNCrossEntropyLoss, layerCall(loss, f32(8, 10)).withArg(tensorOf(dtypes.Float64, 8, 10)))
	requireInvalidUse(t, OpNNCrossEntropyLoss, layerCall(loss, tensorOf(dtypes.Int64, 8, 10)).withArg(tensorOf(dtypes.Int64, 8)))
	requireInvalidUse(t, OpNNCrossEntropyLoss, layerCall(loss, f32(8, 10)))

	perElement := &CrossEntropyLoss{Reduction: "none"}
	assert.Equal(t, "tensor(float32, (8, 4, 4))",
		evaluateShow(t, OpNNCrossEntropyLoss, layerCall(perElement, f32(8, 10, 4, 4)).withArg(tensorOf(dtypes.Int64, 8, 4, -1))))
	assert.Equal(t, "tensor(float32, (8,))",
		evaluateShow(t, OpNNCrossEntropyLoss, layerCall(perElement, f32(8, 10)).withArg(f32(8, 10))))
	requireInvalidUse(t, OpNNCrossEntropyLoss,
		layerCall(&CrossEntropyLoss{Reduction: "avg"}, f32(8, 10)).withArg(tensorOf(dtypes.Int64, 8)))
}

func TestPixelShuffle(t *testing.T) {
	shuffle := &PixelShuffle{UpscaleFactor: 3}
	assert.Equal(t, "tensor(float32, (1, 2, 12, 15))", evaluateShow(t, OpNNPixelShuffle, layerCall(shuffle, f32(1, 18, 4, 5))))
	assert.Equal(t, "tensor(float32, (1, 12, 6))", evaluateShow(t, OpNNPixelShuffle, layerCall(shuffle, f32(9, 4, 2))))
	assert.Equal(t, "tensor(float32, (1, ?, 12, ?))", evaluateShow(t, OpNNPixelShuffle, layerCall(shuffle, f32(1, -1, 4, -1))))
	requireInvalidUse(t, OpNNPixelShuffle, layerCall(shuffle, f32(1, 8, 4, 4)))
	requireInvalidUse(t, OpNNPixelShuffle, layerCall(shuffle, f32(9, 4)))
	requireInvalidUse(t, OpNNPixelShuffle, layerCall(&PixelShuffle{}, f32(1, 9, 4, 4)))
}

func TestInterpolate(t *testing.T) {
	x := f32(1, 3, 10, -1)
	assert.Equal(t, "tensor(float32, (1, 3, 20, 40))", evaluateShow(t, OpInterpolate, newCall(x, ints(20, 40))))
	assert.Equal(t, "tensor(float32, (1, 3, 7, 7))", evaluateShow(t, OpInterpolate, newCall(x).WithKwarg("size", typing.NewInt(7))))
	assert.Equal(t, "tensor(float32, (1, 3, 25, ?))",
		evaluateShow(t, OpInterpolate, newCall(x, typing.NewNone(), typing.NewFloat(2.5))))
	assert.Equal(t, "tensor(float32, (1, 3, 20, ?))",
		evaluateShow(t, OpInterpolate, newCall(x).WithKwarg("scale_factor", typing.NewInt(2))))
	assert.Equal(t, "tensor(float32, (2, 4, 20, 5, 2))",
		evaluateShow(t, OpInterpolate, newCall(f32(2, 4, 10, 10, 4)).
			WithKwarg("scale_factor", typing.NewTuple(typing.NewInt(2), typing.NewFloat(0.5), typing.NewFloat(0.6)))))

	t.Run("NotStatic", func(t *testing.T) {
		assert.Equal(t, "tensor(float32, (1, 3, ?, ?))",
			evaluateShow(t, OpInterpolate, newCall(x).WithKwarg("scale_factor", typing.NewFloat())))
		assert.Equal(t, "tensor(float32, (1, 3, ?, ?))",
			evaluateShow(t, OpInterpolate, newCall(x).WithKwarg("size", typing.NewInt())))
		assert.Equal(t, "tensor(float32, (1, 3, ?, ?))",
			evaluateShow(t, OpInterpolate, newCall(x).WithKwarg("size", typing.NewListOf(typing.NewInt()))))
	})

	requireInvalidUse(t, OpInterpolate, newCall(x))
	requireInvalidUse(t, OpInterpolate, newCall(x, ints(20, 40), typing.NewFloat(2)))
	requireInvalidUse(t, OpInterpolate, newCall(x, ints(20, 40, 60)))
	requireInvalidUse(t, OpInterpolate, newCall(f32(3, 10), typing.NewInt(20)))
	requireInvalidUse(t, OpInterpolate, newCall(x).WithKwarg("scale_factor", typing.NewFloat(-2)))
	requireInvalidUse(t, OpInterpolate, newCall(x).WithKwarg("scale_factor", typing.NewString("2")))
}
