package typing

import (
	"testing"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func float32Tensor(dims ...int) *Tensor {
	return NewTensor(TorchTensor, dtypes.Float32, MakeShape(dims...))
}

// concretePairs returns fresh pairs of non-variable types that unify.
func concretePairs() [][2]Type {
	return [][2]Type{
		{NewInt(3), NewFloat()},
		{NewBool(true), NewInt()},
		{NewString("a"), NewString()},
		{NewNone(), NewInt(5)},
		{NewTuple(NewInt(), NewFloat(1.5)), NewTuple(NewFloat(), NewInt(2))},
		{NewTuple(NewInt(), NewInt()), NewTuple(NewInt(), NewInt(), NewInt())},
		{NewListOf(NewInt()), NewList(NewFloat(), NewInt())},
		{NewDict(NewString(), NewInt()), NewDict(NewString("k"), NewFloat())},
		{float32Tensor(128, -1), float32Tensor(-1, 20)},
		{float32Tensor(), NewFloat()},
		{NewTensor(UnsetTensor, dtypes.Int64, MakeShape(3)), NewTensor(ArrayTensor, dtypes.Int64, MakeShape(-1))},
		{NewDType(dtypes.Float32), NewDType(dtypes.Float32)},
		{NewClass("VAE", nil), NewClass("VAE", nil)},
	}
}

func TestUnifyCommutative(t *testing.T) {
	forward, backward := concretePairs(), concretePairs()
	for ii := range forward {
		u1, u2 := NewUnit(), NewUnit()
		a, b := forward[ii][0], forward[ii][1]
		require.NoError(t, u1.Unify(a, b), "unify(%s, %s)", a, b)
		c, d := backward[ii][0], backward[ii][1]
		require.NoError(t, u2.Unify(d, c), "unify(%s, %s)", d, c)
		assert.Equal(t, Show(Deref(a)), Show(Deref(c)), "pair #%d", ii)
		assert.Equal(t, Show(Deref(b)), Show(Deref(d)), "pair #%d", ii)
	}
}

func TestUnifyIdempotent(t *testing.T) {
	for ii, pair := range concretePairs() {
		u := NewUnit()
		a := pair[0]
		before := Show(Deref(a))
		require.NoError(t, u.Unify(a, a), "pair #%d", ii)
		assert.Equal(t, before, Show(Deref(a)))
	}
}

func TestUnifyVariables(t *testing.T) {
	u := NewUnit()
	v1, v2 := u.NewVar(), u.NewVar()
	require.NoError(t, u.Unify(v1, v2))
	require.NoError(t, u.Unify(v2, NewInt(3)))
	assert.Equal(t, "int", Show(Deref(v1)))
	require.NoError(t, u.Unify(v1, v1))

	// Arrow: (a, a) -> a with (int, float) -> b widens and binds b.
	x, ret := u.NewVar(), u.NewVar()
	f := NewArrow([]Type{x, x}, x)
	g := NewArrow([]Type{NewInt(), NewFloat()}, ret)
	require.NoError(t, u.Unify(f, g))
	assert.Equal(t, "(float, float) -> float", Show(Deref(f)))
	assert.Equal(t, "float", Show(Deref(ret)))

	// Arity mismatch.
	err := u.Unify(NewArrow([]Type{NewInt()}, NewInt()), NewArrow(nil, NewInt()))
	var unifyErr *UnifyError
	require.ErrorAs(t, err, &unifyErr)
}

func TestOccursCheck(t *testing.T) {
	u := NewUnit()
	v := u.NewVar()
	err := u.Unify(v, NewArrow([]Type{v}, NewInt()))
	var occursErr *OccursCheckError
	require.ErrorAs(t, err, &occursErr)
	assert.False(t, v.IsBound())

	w := u.NewVar()
	err = u.Unify(NewArrow([]Type{NewInt()}, NewListOf(w)), w)
	require.ErrorAs(t, err, &occursErr)
}

func TestVarSetTwicePanics(t *testing.T) {
	u := NewUnit()
	v := u.NewVar()
	v.Set(NewInt())
	require.Panics(t, func() { v.Set(NewFloat()) })
}

func TestUnifyNumbers(t *testing.T) {
	u := NewUnit()
	a, b := NewInt(3), NewFloat()
	require.NoError(t, u.Unify(a, b))
	assert.Equal(t, NumFloat, a.Kind)
	assert.Equal(t, NumFloat, b.Kind)
	assert.Equal(t, 3.0, a.Value)
	assert.Nil(t, b.Value)

	c, d := NewBool(true), NewInt(7)
	require.NoError(t, u.Unify(c, d))
	assert.Equal(t, 1, c.Value)
	assert.Equal(t, 7, d.Value)
}

func TestUnifySequenceCoercion(t *testing.T) {
	u := NewUnit()
	a := NewTuple(NewInt(), NewInt())
	b := NewTuple(NewInt(), NewInt(), NewInt())
	require.NoError(t, u.Unify(a, b))
	assert.False(t, a.IsFixedLen())
	assert.False(t, b.IsFixedLen())
	assert.Equal(t, "int tuple", Show(Deref(a)))
	assert.Equal(t, "int tuple", Show(Deref(b)))

	// Only one side fixed: it is seeded with the other side's element type.
	c := NewListOf(NewInt())
	d := NewList(NewInt(1), NewFloat(2))
	require.NoError(t, u.Unify(c, d))
	assert.Equal(t, "float list", Show(Deref(c)))
	assert.Equal(t, "float list", Show(Deref(d)))

	// Empty fixed tuples still coerce.
	e := NewTuple()
	f := NewTuple(NewString())
	require.NoError(t, u.Unify(e, f))
	assert.Equal(t, "string tuple", Show(Deref(e)))

	// Elements that can't be merged.
	err := u.Unify(NewTuple(NewInt()), NewTuple(NewString(), NewString()))
	var unifyErr *UnifyError
	require.ErrorAs(t, err, &unifyErr)
}

func TestUnifyShapes(t *testing.T) {
	u := NewUnit()
	a, b := float32Tensor(128, -1), float32Tensor(-1, 20)
	require.NoError(t, u.Unify(a, b))
	assert.Equal(t, "tensor(float32, (128, 20))", Show(a))
	assert.Equal(t, "tensor(float32, (128, 20))", Show(b))

	err := u.Unify(float32Tensor(128, 20), float32Tensor(1, 20))
	var unifyErr *UnifyError
	require.ErrorAs(t, err, &unifyErr)
	assert.Contains(t, err.Error(), "(128, 20)")
	assert.Contains(t, err.Error(), "(1, 20)")

	// Shapes are ignored, but not dtypes nor ranks.
	require.NoError(t, u.UnifyIgnoringShape(float32Tensor(128, 20), float32Tensor(1, 20)))
	require.Error(t, u.UnifyIgnoringShape(float32Tensor(128, 20), float32Tensor(128)))
	require.Error(t, u.Unify(float32Tensor(3), NewTensor(TorchTensor, dtypes.Float64, MakeShape(3))))
}

func TestUnifyTensorKinds(t *testing.T) {
	u := NewUnit()
	unset := NewTensor(UnsetTensor, dtypes.Float32, MakeShape(2))
	require.NoError(t, u.Unify(unset, NewTensor(VariableTensor, dtypes.Float32, MakeShape(2))))
	assert.Equal(t, VariableTensor, unset.Kind)

	// Both autodiff-tracked families are accepted together.
	require.NoError(t, u.Unify(NewTensor(VariableTensor, dtypes.Float32, MakeShape(2)), float32Tensor(2)))
	require.Error(t, u.Unify(NewTensor(ArrayTensor, dtypes.Float32, MakeShape(2)), float32Tensor(2)))
}

func TestUnifyOptional(t *testing.T) {
	u := NewUnit()
	n := NewInt(5)
	require.NoError(t, u.Unify(NewNone(), n))
	assert.Equal(t, 5, n.Value)
	assert.Equal(t, "optional(int)", Show(n))

	require.NoError(t, u.Unify(NewNone(), NewNone()))

	// Optional propagates to the other side.
	m := NewInt()
	require.NoError(t, u.Unify(m, n))
	assert.True(t, m.IsOptional())
}

func TestUnifyMismatch(t *testing.T) {
	u := NewUnit()
	testCases := [][2]Type{
		{NewInt(), NewString()},
		{NewDType(dtypes.Float32), NewDType(dtypes.Int64)},
		{NewClass("A", nil), NewClass("B", nil)},
		{float32Tensor(2), NewInt()},
		{NewListOf(NewInt()), NewDict(NewInt(), NewInt())},
	}
	for _, tc := range testCases {
		err := u.Unify(tc[0], tc[1])
		var unifyErr *UnifyError
		require.True(t, errors.As(err, &unifyErr), "unify(%s, %s) should fail with UnifyError, got %v", tc[0], tc[1], err)
		assert.Equal(t, Show(tc[0]), unifyErr.T1)
		assert.Equal(t, Show(tc[1]), unifyErr.T2)
	}
}

type fakeModule struct{ name string }

func (fakeModule) ModuleFamily() string { return "nn.Module" }

func TestUnifyClassFamily(t *testing.T) {
	u := NewUnit()
	a := NewClass("Linear", fakeModule{"fc1"})
	b := NewClass("Conv2d", fakeModule{"conv"})
	require.NoError(t, u.Unify(a, b))
}
