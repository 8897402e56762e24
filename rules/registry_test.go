package rules

import (
	"testing"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/shapeinfer/typing"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f32(dims ...int) *typing.Tensor {
	return typing.NewTensor(typing.TorchTensor, dtypes.Float32, typing.MakeShape(dims...))
}

func tensorOf(dtype dtypes.DType, dims ...int) *typing.Tensor {
	return typing.NewTensor(typing.TorchTensor, dtype, typing.MakeShape(dims...))
}

func ints(values ...int) *typing.Sequence {
	elems := make([]typing.Type, len(values))
	for ii, v := range values {
		elems[ii] = typing.NewInt(v)
	}
	return typing.NewTuple(elems...)
}

func newCall(args ...typing.Type) *Call {
	return NewCall(typing.NewUnit(), typing.Pos{Line: 7}, args...)
}

// evaluate evaluates op with the builtin rules and requires it to succeed.
func evaluate(t *testing.T, op Op, call *Call) typing.Type {
	t.Helper()
	result, err := NewRegistry().Evaluate(op, call)
	require.NoError(t, err, "evaluating %s%s", op, call)
	return result
}

// evaluateShow evaluates op and returns the rendering of the result.
func evaluateShow(t *testing.T, op Op, call *Call) string {
	t.Helper()
	return typing.Show(evaluate(t, op, call))
}

// requireInvalidUse evaluates op and requires it to fail with an InvalidOperationUse.
func requireInvalidUse(t *testing.T, op Op, call *Call) *typing.InvalidOperationUse {
	t.Helper()
	_, err := NewRegistry().Evaluate(op, call)
	require.Error(t, err, "evaluating %s%s should fail", op, call)
	var invalid *typing.InvalidOperationUse
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, op.String(), invalid.Op)
	return invalid
}

func TestOps(t *testing.T) {
	for _, op := range Ops() {
		require.True(t, op.IsValid())
		byName, found := OpByName(op.String())
		require.True(t, found, "op %s", op)
		assert.Equal(t, op, byName)
		assert.NotNil(t, NewRegistry().Rule(op), "op %s has no rule", op)
	}
	_, found := OpByName("torch.nonexistent")
	assert.False(t, found)
	assert.False(t, OpInvalid.IsValid())
	assert.Equal(t, "Op(-1)", Op(-1).String())

	op, found := OpByName("nn.Linear")
	require.True(t, found)
	assert.Equal(t, OpNNLinear, op)
}

func TestEvaluate(t *testing.T) {
	t.Run("DereferencesArguments", func(t *testing.T) {
		unit := typing.NewUnit()
		x := unit.NewVar()
		require.NoError(t, unit.Unify(x, f32(2, 3)))
		call := NewCall(unit, typing.Pos{}, x)
		assert.Equal(t, "tensor(float32, (2, 3))", evaluateShow(t, OpSigmoid, call))
	})

	t.Run("InvalidUse", func(t *testing.T) {
		invalid := requireInvalidUse(t, OpReshape, newCall(f32(2, 3), typing.NewString("oops")))
		assert.Equal(t, 7, invalid.Pos.Line)
		assert.Contains(t, invalid.Error(), "torch.reshape")
		assert.Contains(t, invalid.Error(), "line 7")
	})

	t.Run("MissingArgument", func(t *testing.T) {
		requireInvalidUse(t, OpSigmoid, newCall())
	})

	t.Run("UnboundArgument", func(t *testing.T) {
		unit := typing.NewUnit()
		requireInvalidUse(t, OpTanh, NewCall(unit, typing.Pos{}, unit.NewVar()))
	})

	t.Run("WrapsUnifyError", func(t *testing.T) {
		_, err := NewRegistry().Evaluate(OpStack, newCall(typing.NewTuple(f32(2, 3), f32(4, 3))))
		var unifyErr *typing.UnifyError
		require.True(t, errors.As(err, &unifyErr), "expected a wrapped UnifyError, got %v", err)
	})

	t.Run("Register", func(t *testing.T) {
		r := NewRegistry()
		r.Register(OpSigmoid, RuleFunc(func(call *Call) typing.Type { return typing.NewString() }))
		result, err := r.Evaluate(OpSigmoid, newCall(f32(1)))
		require.NoError(t, err)
		assert.Equal(t, "string", typing.Show(result))
		require.Panics(t, func() { r.Register(OpInvalid, nil) })
	})

	t.Run("NoRule", func(t *testing.T) {
		_, err := NewRegistry().Evaluate(OpInvalid, newCall())
		var invalid *typing.InvalidOperationUse
		require.ErrorAs(t, err, &invalid)
	})
}

func TestOverloads(t *testing.T) {
	assert.Equal(t, "tensor(float32, (128, 400))", evaluateShow(t, OpMM, newCall(f32(128, 784), f32(784, 400))))
	assert.Equal(t, "tensor(float32, (?, 400))", evaluateShow(t, OpMM, newCall(f32(-1, 784), f32(784, 400))))
	requireInvalidUse(t, OpMM, newCall(f32(128, 784), f32(10, 400)))
	requireInvalidUse(t, OpMM, newCall(f32(128, 784), tensorOf(dtypes.Float64, 784, 400)))

	assert.Equal(t, "tensor(float64, ())", evaluateShow(t, OpMatMul,
		newCall(tensorOf(dtypes.Float64, 3), tensorOf(dtypes.Float64, 3))))
	assert.Equal(t, "tensor(float32, (5,))", evaluateShow(t, OpMatMul, newCall(f32(5, 3), f32(3))))
	assert.Equal(t, "tensor(float32, (8, 5, 2))", evaluateShow(t, OpMatMul, newCall(f32(8, 5, 3), f32(8, 3, 2))))
	assert.Equal(t, "tensor(float32, (8, 5, 2))", evaluateShow(t, OpMatMul, newCall(f32(8, 5, 3), f32(3, 2))))

	// The batch dimension is refined by the second operand.
	assert.Equal(t, "tensor(float32, (8, 5, 2))", evaluateShow(t, OpMatMul, newCall(f32(-1, 5, 3), f32(8, 3, 2))))
}

func TestDTypePromotion(t *testing.T) {
	call := func() *Call { return newCall(f32(2, 3), tensorOf(dtypes.Float16, 2, 3)) }
	requireInvalidUse(t, OpAdd, call())

	result, err := NewRegistry().WithDTypePromotion(DTypePromotion{AllowPromotion: true}).Evaluate(OpAdd, call())
	require.NoError(t, err)
	assert.Equal(t, "tensor(float32, (2, 3))", typing.Show(result))

	result, err = NewRegistry().
		WithDTypePromotion(DTypePromotion{AllowPromotion: true, PrioritizeFloat16: true}).
		Evaluate(OpAdd, call())
	require.NoError(t, err)
	assert.Equal(t, "tensor(float16, (2, 3))", typing.Show(result))

	result, err = NewRegistry().WithDTypePromotion(DTypePromotion{AllowPromotion: true}).
		Evaluate(OpMul, newCall(tensorOf(dtypes.Int32, 4), tensorOf(dtypes.Int64, 4)))
	require.NoError(t, err)
	assert.Equal(t, "tensor(int64, (4,))", typing.Show(result))
}
