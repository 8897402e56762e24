package rules

import "fmt"

// Op enumerates the external operations with a shape/dtype rule. The constraint generator maps each
// recognized call site to its Op, see OpByName.
type Op int

const (
	OpInvalid Op = iota

	// Creation.
	OpIsTensor
	OpTensor
	OpZeros
	OpOnes
	OpRand
	OpRandn
	OpFromNumpy
	OpRandLike
	OpRandnLike

	// Indexing, slicing, joining.
	OpCat
	OpChunk
	OpReshape
	OpSplit
	OpSqueeze
	OpStack
	OpTranspose
	OpUnsqueeze
	OpPermute
	OpFlatten

	// Math.
	OpAbs
	OpCos
	OpCosh
	OpExp
	OpLog
	OpSigmoid
	OpSin
	OpSinh
	OpSqrt
	OpTan
	OpTanh
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMM
	OpMatMul

	// Functional.
	OpAvgPool1d
	OpAvgPool2d
	OpAvgPool3d
	OpMaxPool1d
	OpMaxPool2d
	OpMaxPool3d
	OpRelu
	OpSoftmax
	OpLogSoftmax
	OpFTanh
	OpFSigmoid
	OpEmbedding
	OpInterpolate

	// Tensor methods: the receiver is the first argument.
	OpTensorAdd
	OpTensorAddInPlace
	OpTensorSub
	OpTensorSubInPlace
	OpTensorMul
	OpTensorMulInPlace
	OpTensorDiv
	OpTensorDivInPlace
	OpTensorChunk
	OpTensorCPU
	OpTensorNumpy
	OpTensorRepeat
	OpTensorSize
	OpTensorSqueeze
	OpTensorTranspose
	OpTensorUnsqueeze
	OpTensorView
	OpTensorReshape
	OpTensorDetach
	OpTensorExpand
	OpTensorPermute
	OpTensorFlatten

	// Tensor attributes: the tensor is the only argument.
	OpTensorShape
	OpTensorDType

	// Layers: the layer descriptor is the call's Self.
	OpNNConv1d
	OpNNConv2d
	OpNNConv3d
	OpNNConvTranspose1d
	OpNNConvTranspose2d
	OpNNConvTranspose3d
	OpNNAvgPool1d
	OpNNAvgPool2d
	OpNNAvgPool3d
	OpNNMaxPool1d
	OpNNMaxPool2d
	OpNNMaxPool3d
	OpNNAdaptiveAvgPool1d
	OpNNAdaptiveAvgPool2d
	OpNNAdaptiveAvgPool3d
	OpNNReflectionPad1d
	OpNNReflectionPad2d
	OpNNReplicationPad1d
	OpNNReplicationPad2d
	OpNNReplicationPad3d
	OpNNZeroPad2d
	OpNNConstantPad1d
	OpNNConstantPad2d
	OpNNConstantPad3d
	OpNNLeakyReLU
	OpNNReLU
	OpNNSigmoid
	OpNNTanh
	OpNNBatchNorm1d
	OpNNBatchNorm2d
	OpNNBatchNorm3d
	OpNNLinear
	OpNNDropout
	OpNNDropout2d
	OpNNDropout3d
	OpNNAlphaDropout
	OpNNEmbedding
	OpNNInstanceNorm1d
	OpNNInstanceNorm2d
	OpNNInstanceNorm3d
	OpNNLSTMCell
	OpNNCrossEntropyLoss
	OpNNPixelShuffle

	numOps
)

var opNames = [numOps]string{
	OpInvalid: "invalid",

	OpIsTensor:  "torch.is_tensor",
	OpTensor:    "torch.tensor",
	OpZeros:     "torch.zeros",
	OpOnes:      "torch.ones",
	OpRand:      "torch.rand",
	OpRandn:     "torch.randn",
	OpFromNumpy: "torch.from_numpy",
	OpRandLike:  "torch.rand_like",
	OpRandnLike: "torch.randn_like",

	OpCat:       "torch.cat",
	OpChunk:     "torch.chunk",
	OpReshape:   "torch.reshape",
	OpSplit:     "torch.split",
	OpSqueeze:   "torch.squeeze",
	OpStack:     "torch.stack",
	OpTranspose: "torch.transpose",
	OpUnsqueeze: "torch.unsqueeze",
	OpPermute:   "torch.permute",
	OpFlatten:   "torch.flatten",

	OpAbs:     "torch.abs",
	OpCos:     "torch.cos",
	OpCosh:    "torch.cosh",
	OpExp:     "torch.exp",
	OpLog:     "torch.log",
	OpSigmoid: "torch.sigmoid",
	OpSin:     "torch.sin",
	OpSinh:    "torch.sinh",
	OpSqrt:    "torch.sqrt",
	OpTan:     "torch.tan",
	OpTanh:    "torch.tanh",
	OpAdd:     "torch.add",
	OpSub:     "torch.sub",
	OpMul:     "torch.mul",
	OpDiv:     "torch.div",
	OpMM:      "torch.mm",
	OpMatMul:  "torch.matmul",

	OpAvgPool1d:   "F.avg_pool1d",
	OpAvgPool2d:   "F.avg_pool2d",
	OpAvgPool3d:   "F.avg_pool3d",
	OpMaxPool1d:   "F.max_pool1d",
	OpMaxPool2d:   "F.max_pool2d",
	OpMaxPool3d:   "F.max_pool3d",
	OpRelu:        "F.relu",
	OpSoftmax:     "F.softmax",
	OpLogSoftmax:  "F.log_softmax",
	OpFTanh:       "F.tanh",
	OpFSigmoid:    "F.sigmoid",
	OpEmbedding:   "F.embedding",
	OpInterpolate: "F.interpolate",

	OpTensorAdd:        "torch.Tensor.add",
	OpTensorAddInPlace: "torch.Tensor.add_",
	OpTensorSub:        "torch.Tensor.sub",
	OpTensorSubInPlace: "torch.Tensor.sub_",
	OpTensorMul:        "torch.Tensor.mul",
	OpTensorMulInPlace: "torch.Tensor.mul_",
	OpTensorDiv:        "torch.Tensor.div",
	OpTensorDivInPlace: "torch.Tensor.div_",
	OpTensorChunk:      "torch.Tensor.chunk",
	OpTensorCPU:        "torch.Tensor.cpu",
	OpTensorNumpy:      "torch.Tensor.numpy",
	OpTensorRepeat:     "torch.Tensor.repeat",
	OpTensorSize:       "torch.Tensor.size",
	OpTensorSqueeze:    "torch.Tensor.squeeze",
	OpTensorTranspose:  "torch.Tensor.transpose",
	OpTensorUnsqueeze:  "torch.Tensor.unsqueeze",
	OpTensorView:       "torch.Tensor.view",
	OpTensorReshape:    "torch.Tensor.reshape",
	OpTensorDetach:     "torch.Tensor.detach",
	OpTensorExpand:     "torch.Tensor.expand",
	OpTensorPermute:    "torch.Tensor.permute",
	OpTensorFlatten:    "torch.Tensor.flatten",

	OpTensorShape: "torch.Tensor.shape",
	OpTensorDType: "torch.Tensor.dtype",

	OpNNConv1d:            "nn.Conv1d",
	OpNNConv2d:            "nn.Conv2d",
	OpNNConv3d:            "nn.Conv3d",
	OpNNConvTranspose1d:   "nn.ConvTranspose1d",
	OpNNConvTranspose2d:   "nn.ConvTranspose2d",
	OpNNConvTranspose3d:   "nn.ConvTranspose3d",
	OpNNAvgPool1d:         "nn.AvgPool1d",
	OpNNAvgPool2d:         "nn.AvgPool2d",
	OpNNAvgPool3d:         "nn.AvgPool3d",
	OpNNMaxPool1d:         "nn.MaxPool1d",
	OpNNMaxPool2d:         "nn.MaxPool2d",
	OpNNMaxPool3d:         "nn.MaxPool3d",
	OpNNAdaptiveAvgPool1d: "nn.AdaptiveAvgPool1d",
	OpNNAdaptiveAvgPool2d: "nn.AdaptiveAvgPool2d",
	OpNNAdaptiveAvgPool3d: "nn.AdaptiveAvgPool3d",
	OpNNReflectionPad1d:   "nn.ReflectionPad1d",
	OpNNReflectionPad2d:   "nn.ReflectionPad2d",
	OpNNReplicationPad1d:  "nn.ReplicationPad1d",
	OpNNReplicationPad2d:  "nn.ReplicationPad2d",
	OpNNReplicationPad3d:  "nn.ReplicationPad3d",
	OpNNZeroPad2d:         "nn.ZeroPad2d",
	OpNNConstantPad1d:     "nn.ConstantPad1d",
	OpNNConstantPad2d:     "nn.ConstantPad2d",
	OpNNConstantPad3d:     "nn.ConstantPad3d",
	OpNNLeakyReLU:         "nn.LeakyReLU",
	OpNNReLU:              "nn.ReLU",
	OpNNSigmoid:           "nn.Sigmoid",
	OpNNTanh:              "nn.Tanh",
	OpNNBatchNorm1d:       "nn.BatchNorm1d",
	OpNNBatchNorm2d:       "nn.BatchNorm2d",
	OpNNBatchNorm3d:       "nn.BatchNorm3d",
	OpNNLinear:            "nn.Linear",
	OpNNDropout:           "nn.Dropout",
	OpNNDropout2d:         "nn.Dropout2d",
	OpNNDropout3d:         "nn.Dropout3d",
	OpNNAlphaDropout:      "nn.AlphaDropout",
	OpNNEmbedding:         "nn.Embedding",
	OpNNInstanceNorm1d:    "nn.InstanceNorm1d",
	OpNNInstanceNorm2d:    "nn.InstanceNorm2d",
	OpNNInstanceNorm3d:    "nn.InstanceNorm3d",
	OpNNLSTMCell:          "nn.LSTMCell",
	OpNNCrossEntropyLoss:  "nn.CrossEntropyLoss",
	OpNNPixelShuffle:      "nn.PixelShuffle",
}

var opByName map[string]Op

func init() {
	opByName = make(map[string]Op, numOps)
	for op := OpInvalid + 1; op < numOps; op++ {
		name := opNames[op]
		if name == "" {
			panic(fmt.Sprintf("rules: Op #%d has no name", op))
		}
		opByName[name] = op
	}
}

// String returns the host API name of the operation, e.g. "torch.reshape".
func (op Op) String() string {
	if op < 0 || op >= numOps {
		return fmt.Sprintf("Op(%d)", int(op))
	}
	return opNames[op]
}

// IsValid returns whether op is one of the enumerated operations.
func (op Op) IsValid() bool {
	return op > OpInvalid && op < numOps
}

// OpByName returns the operation for a host API name, e.g. "nn.Linear".
func OpByName(name string) (Op, bool) {
	op, found := opByName[name]
	return op, found
}

// Ops returns all valid operations, in enumeration order.
func Ops() []Op {
	ops := make([]Op, 0, numOps-1)
	for op := OpInvalid + 1; op < numOps; op++ {
		ops = append(ops, op)
	}
	return ops
}
