package rules

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/shapeinfer/typing"
)

// Call is one recognized call of an external operation, with the types of its arguments.
//
// For tensor methods (e.g. "torch.Tensor.view") the receiver is the first of Args. For layers (e.g.
// "nn.Linear") Self is the type of the layer object, a *typing.Class holding a Layer descriptor.
type Call struct {
	// Unit owns the variables created while evaluating the rule. If nil, Registry.Evaluate creates one.
	Unit *typing.Unit

	// Pos is the call site, reported in errors.
	Pos typing.Pos

	Self   typing.Type
	Args   []typing.Type
	Kwargs map[string]typing.Type

	op       Op
	registry *Registry
}

// NewCall creates a call with the given positional arguments.
func NewCall(unit *typing.Unit, pos typing.Pos, args ...typing.Type) *Call {
	return &Call{Unit: unit, Pos: pos, Args: args}
}

// WithKwarg sets a keyword argument and returns the call itself, so it can be chained.
func (c *Call) WithKwarg(name string, t typing.Type) *Call {
	if c.Kwargs == nil {
		c.Kwargs = make(map[string]typing.Type)
	}
	c.Kwargs[name] = t
	return c
}

// WithSelf sets the layer object type and returns the call itself, so it can be chained.
func (c *Call) WithSelf(self typing.Type) *Call {
	c.Self = self
	return c
}

// String renders the argument types, e.g. "(tensor(float32, (2, 3)), int, dim=int)".
func (c *Call) String() string {
	parts := make([]string, 0, len(c.Args)+len(c.Kwargs))
	for _, arg := range c.Args {
		parts = append(parts, typing.Show(arg))
	}
	for _, name := range slices.Sorted(maps.Keys(c.Kwargs)) {
		parts = append(parts, fmt.Sprintf("%s=%s", name, typing.Show(c.Kwargs[name])))
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// NumArgs returns the number of positional arguments.
func (c *Call) NumArgs() int { return len(c.Args) }

// Arg returns the positional argument #i. It panics if it is missing.
func (c *Call) Arg(i int) typing.Type {
	if i >= len(c.Args) {
		exceptions.Panicf("missing argument #%d, only %d given", i, len(c.Args))
	}
	return c.Args[i]
}

// Kwarg returns the keyword argument name. A keyword argument explicitly given as None is reported as
// absent.
func (c *Call) Kwarg(name string) (typing.Type, bool) {
	t, found := c.Kwargs[name]
	if !found {
		return nil, false
	}
	if _, isNone := t.(*typing.None); isNone {
		return nil, false
	}
	return t, true
}

// TensorArg returns the positional argument #i, which must be a tensor.
func (c *Call) TensorArg(i int) *typing.Tensor {
	return mustTensor(c.Arg(i), fmt.Sprintf("argument #%d", i))
}

// IntArg returns the literal value of the integer positional argument #i, and whether it is known.
// It panics if the argument is not an integer.
func (c *Call) IntArg(i int) (value int, known bool) {
	return mustInt(c.Arg(i), fmt.Sprintf("argument #%d", i))
}

// IntKwargOr returns the literal value of the integer keyword argument name, or defaultValue if it is absent.
// known is false if the argument is given but its value is not static.
func (c *Call) IntKwargOr(name string, defaultValue int) (value int, known bool) {
	t, found := c.Kwarg(name)
	if !found {
		return defaultValue, true
	}
	return mustInt(t, fmt.Sprintf("keyword argument %q", name))
}

// IntArgOrKwarg returns the integer given either as positional argument #i or as keyword argument name,
// or defaultValue if neither is given.
func (c *Call) IntArgOrKwarg(i int, name string, defaultValue int) (value int, known bool) {
	if i < len(c.Args) {
		if _, isNone := c.Args[i].(*typing.None); !isNone {
			return c.IntArg(i)
		}
		return defaultValue, true
	}
	return c.IntKwargOr(name, defaultValue)
}

// argOrKwarg returns the not-None value given either as positional argument #i or as keyword argument name.
func (c *Call) argOrKwarg(i int, name string) (typing.Type, bool) {
	if i < len(c.Args) {
		if _, isNone := c.Args[i].(*typing.None); isNone {
			return nil, false
		}
		return c.Args[i], true
	}
	return c.Kwarg(name)
}

// HasArgOrKwarg returns whether a not-None value is given either as positional argument #i or as keyword
// argument name.
func (c *Call) HasArgOrKwarg(i int, name string) bool {
	if i < len(c.Args) {
		_, isNone := c.Args[i].(*typing.None)
		return !isNone
	}
	_, found := c.Kwarg(name)
	return found
}

// DTypeKwargOr returns the dtype given as keyword argument name, or defaultValue if absent.
// It panics if the dtype is given but not static.
func (c *Call) DTypeKwargOr(name string, defaultValue dtypes.DType) dtypes.DType {
	t, found := c.Kwarg(name)
	if !found {
		return defaultValue
	}
	dt, ok := t.(*typing.DType)
	if !ok {
		exceptions.Panicf("keyword argument %q must be a dtype, got %s", name, t)
	}
	return dt.DType
}

// Unify unifies a and b in the call's unit, panicking with the unification error.
func (c *Call) Unify(a, b typing.Type) {
	if err := c.Unit.Unify(a, b); err != nil {
		panic(err)
	}
}

// UnifyIgnoringShape is like Unify, but tensors only need to agree on dtype and rank.
func (c *Call) UnifyIgnoringShape(a, b typing.Type) {
	if err := c.Unit.UnifyIgnoringShape(a, b); err != nil {
		panic(err)
	}
}

// Layer returns the layer descriptor held by Self. It panics if the call has no layer object.
func (c *Call) Layer() Layer {
	if c.Self == nil {
		exceptions.Panicf("%s must be called on a layer object", c.op)
	}
	class, ok := typing.Deref(c.Self).(*typing.Class)
	if !ok {
		exceptions.Panicf("%s must be called on a layer object, got %s", c.op, c.Self)
	}
	layer, ok := class.Instance.(Layer)
	if !ok {
		exceptions.Panicf("%s called on %s, which holds no layer descriptor", c.op, class)
	}
	return layer
}

// mustTensor returns t as a tensor, or panics naming what it is.
func mustTensor(t typing.Type, what string) *typing.Tensor {
	tensor, ok := t.(*typing.Tensor)
	if !ok {
		exceptions.Panicf("%s must be a tensor, got %s", what, t)
	}
	return tensor
}

// mustInt returns the literal of the integer t, or panics if t is not an integer.
func mustInt(t typing.Type, what string) (value int, known bool) {
	n, ok := t.(*typing.Num)
	if !ok || n.Kind == typing.NumFloat {
		exceptions.Panicf("%s must be an int, got %s", what, t)
	}
	literal, _ := typing.ExtractLiteral(n)
	switch v := literal.(type) {
	case int:
		return v, true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// mustDim returns the integer t as a dimension: unknown if its value is not static. It panics if the
// value is negative.
func mustDim(t typing.Type, what string) typing.Dim {
	v, known := mustInt(t, what)
	if !known {
		return typing.Unknown()
	}
	if v < 0 {
		exceptions.Panicf("%s must be a non-negative size, got %d", what, v)
	}
	return typing.Known(v)
}

// dimsOf converts a size argument to n dimensions: an int is repeated n times, and a fixed-length sequence
// of ints must have n elements.
func dimsOf(t typing.Type, n int, what string) []typing.Dim {
	if seq, ok := t.(*typing.Sequence); ok {
		if !seq.IsFixedLen() {
			dims := make([]typing.Dim, n)
			for ii := range dims {
				dims[ii] = typing.Unknown()
			}
			return dims
		}
		elems := seq.Elems()
		if len(elems) != n {
			exceptions.Panicf("%s must have %d values, got %s", what, n, t)
		}
		dims := make([]typing.Dim, n)
		for ii, e := range elems {
			dims[ii] = mustDim(e, what)
		}
		return dims
	}
	d := mustDim(t, what)
	dims := make([]typing.Dim, n)
	for ii := range dims {
		dims[ii] = d
	}
	return dims
}

// intsOf returns the integers of a size list: either a fixed-length sequence of ints, or the ints given
// as positional arguments from #first on (as in x.view(2, 3) or x.view((2, 3))).
// Values that are not static are reported with known[i]=false.
func (c *Call) intsOf(first int, what string) (values []int, known []bool) {
	if first >= len(c.Args) {
		return nil, nil
	}
	if seq, ok := c.Args[first].(*typing.Sequence); ok && len(c.Args) == first+1 {
		var isInts bool
		values, known, isInts = typing.ExtractInts(seq)
		if !isInts {
			exceptions.Panicf("%s must be a fixed-length sequence of ints, got %s", what, seq)
		}
		return values, known
	}
	values = make([]int, len(c.Args)-first)
	known = make([]bool, len(values))
	for ii := range values {
		values[ii], known[ii] = mustInt(c.Args[first+ii], what)
	}
	return values, known
}
