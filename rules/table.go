package rules

// builtinRules returns the rule of every Op.
func builtinRules() map[Op]Rule {
	floatIdentical := identicalRule(true, 0)
	anyIdentical := identicalRule(false, 0)
	add, addInPlace := arithRule(false), arithRule(true)
	mm, matmul := mmOverloads(), matmulOverloads()

	return map[Op]Rule{
		OpIsTensor:  RuleFunc(inferIsTensor),
		OpTensor:    RuleFunc(inferTensor),
		OpZeros:     RuleFunc(inferTensorOfShape),
		OpOnes:      RuleFunc(inferTensorOfShape),
		OpRand:      RuleFunc(inferTensorOfShape),
		OpRandn:     RuleFunc(inferTensorOfShape),
		OpFromNumpy: RuleFunc(inferFromNumpy),
		OpRandLike:  floatIdentical,
		OpRandnLike: floatIdentical,

		OpCat:       RuleFunc(inferCat),
		OpChunk:     RuleFunc(inferChunk),
		OpReshape:   RuleFunc(inferReshape),
		OpSplit:     RuleFunc(inferSplit),
		OpSqueeze:   RuleFunc(inferSqueeze),
		OpStack:     RuleFunc(inferStack),
		OpTranspose: RuleFunc(inferTranspose),
		OpUnsqueeze: RuleFunc(inferUnsqueeze),
		OpPermute:   RuleFunc(inferPermute),
		OpFlatten:   RuleFunc(inferFlatten),

		OpAbs:     floatIdentical,
		OpCos:     floatIdentical,
		OpCosh:    floatIdentical,
		OpExp:     floatIdentical,
		OpLog:     floatIdentical,
		OpSigmoid: floatIdentical,
		OpSin:     floatIdentical,
		OpSinh:    floatIdentical,
		OpSqrt:    floatIdentical,
		OpTan:     floatIdentical,
		OpTanh:    floatIdentical,
		OpAdd:     add,
		OpSub:     add,
		OpMul:     add,
		OpDiv:     add,
		OpMM:      mm,
		OpMatMul:  matmul,

		OpAvgPool1d:   poolFuncRule(1, false),
		OpAvgPool2d:   poolFuncRule(2, false),
		OpAvgPool3d:   poolFuncRule(3, false),
		OpMaxPool1d:   poolFuncRule(1, true),
		OpMaxPool2d:   poolFuncRule(2, true),
		OpMaxPool3d:   poolFuncRule(3, true),
		OpRelu:        floatIdentical,
		OpSoftmax:     RuleFunc(inferSoftmax),
		OpLogSoftmax:  RuleFunc(inferSoftmax),
		OpFTanh:       floatIdentical,
		OpFSigmoid:    floatIdentical,
		OpEmbedding:   RuleFunc(inferFEmbedding),
		OpInterpolate: RuleFunc(inferInterpolate),

		OpTensorAdd:        add,
		OpTensorAddInPlace: addInPlace,
		OpTensorSub:        add,
		OpTensorSubInPlace: addInPlace,
		OpTensorMul:        add,
		OpTensorMulInPlace: addInPlace,
		OpTensorDiv:        add,
		OpTensorDivInPlace: addInPlace,
		OpTensorChunk:      RuleFunc(inferChunk),
		OpTensorCPU:        anyIdentical,
		OpTensorNumpy:      RuleFunc(inferNumpy),
		OpTensorRepeat:     RuleFunc(inferRepeat),
		OpTensorSize:       RuleFunc(inferSize),
		OpTensorSqueeze:    RuleFunc(inferSqueeze),
		OpTensorTranspose:  RuleFunc(inferTranspose),
		OpTensorUnsqueeze:  RuleFunc(inferUnsqueeze),
		OpTensorView:       RuleFunc(inferView),
		OpTensorReshape:    RuleFunc(inferView),
		OpTensorDetach:     anyIdentical,
		OpTensorExpand:     RuleFunc(inferExpand),
		OpTensorPermute:    RuleFunc(inferPermute),
		OpTensorFlatten:    RuleFunc(inferFlatten),
		OpTensorShape:      RuleFunc(inferShapeAttr),
		OpTensorDType:      RuleFunc(inferDTypeAttr),

		OpNNConv1d:            convRule(1, false),
		OpNNConv2d:            convRule(2, false),
		OpNNConv3d:            convRule(3, false),
		OpNNConvTranspose1d:   convRule(1, true),
		OpNNConvTranspose2d:   convRule(2, true),
		OpNNConvTranspose3d:   convRule(3, true),
		OpNNAvgPool1d:         poolRule(1),
		OpNNAvgPool2d:         poolRule(2),
		OpNNAvgPool3d:         poolRule(3),
		OpNNMaxPool1d:         poolRule(1),
		OpNNMaxPool2d:         poolRule(2),
		OpNNMaxPool3d:         poolRule(3),
		OpNNAdaptiveAvgPool1d: adaptivePoolRule(1),
		OpNNAdaptiveAvgPool2d: adaptivePoolRule(2),
		OpNNAdaptiveAvgPool3d: adaptivePoolRule(3),
		OpNNReflectionPad1d:   padRule(1),
		OpNNReflectionPad2d:   padRule(2),
		OpNNReplicationPad1d:  padRule(1),
		OpNNReplicationPad2d:  padRule(2),
		OpNNReplicationPad3d:  padRule(3),
		OpNNZeroPad2d:         padRule(2),
		OpNNConstantPad1d:     padRule(1),
		OpNNConstantPad2d:     padRule(2),
		OpNNConstantPad3d:     padRule(3),
		OpNNLeakyReLU:         activationRule(0),
		OpNNReLU:              activationRule(0),
		OpNNSigmoid:           activationRule(0),
		OpNNTanh:              activationRule(0),
		OpNNBatchNorm1d:       batchNormRule(1),
		OpNNBatchNorm2d:       batchNormRule(2),
		OpNNBatchNorm3d:       batchNormRule(3),
		OpNNLinear:            RuleFunc(inferLinear),
		OpNNDropout:           activationRule(0),
		OpNNDropout2d:         activationRule(1),
		OpNNDropout3d:         activationRule(1),
		OpNNAlphaDropout:      activationRule(0),
		OpNNEmbedding:         RuleFunc(inferEmbedding),
		OpNNInstanceNorm1d:    instanceNormRule(1),
		OpNNInstanceNorm2d:    instanceNormRule(2),
		OpNNInstanceNorm3d:    instanceNormRule(3),
		OpNNLSTMCell:          RuleFunc(inferLSTMCell),
		OpNNCrossEntropyLoss:  RuleFunc(inferCrossEntropyLoss),
		OpNNPixelShuffle:      RuleFunc(inferPixelShuffle),
	}
}
