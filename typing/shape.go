package typing

import (
	"strconv"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// Dim is the statically known or unknown size of one tensor dimension.
//
// The zero value is an unknown dimension. Unknown dimensions used in rule templates may carry a symbol
// name, which Match binds to the corresponding concrete dimension.
type Dim struct {
	value  int
	known  bool
	symbol string
}

// Known returns a dimension of known size n. n must be non-negative.
func Known(n int) Dim {
	if n < 0 {
		exceptions.Panicf("typing.Known(%d): dimensions must be non-negative", n)
	}
	return Dim{value: n, known: true}
}

// Unknown returns a dimension whose size is not statically known.
func Unknown() Dim { return Dim{} }

// Symbol returns an unknown dimension named name, to be bound by Match when used in a template.
func Symbol(name string) Dim { return Dim{symbol: name} }

// IsKnown returns whether the size of the dimension is known.
func (d Dim) IsKnown() bool { return d.known }

// Value returns the size of the dimension and whether it is known.
func (d Dim) Value() (int, bool) { return d.value, d.known }

// Symbol returns the template symbol name of the dimension, or "".
func (d Dim) Symbol() string { return d.symbol }

// String implements fmt.Stringer: the size, or "?" if unknown.
func (d Dim) String() string {
	if !d.known {
		return "?"
	}
	return strconv.Itoa(d.value)
}

// Equal returns whether both dimensions are definitely equal: it is false if either one is unknown.
func (d Dim) Equal(o Dim) bool {
	return d.known && o.known && d.value == o.value
}

// Is returns whether the dimension is known to be n.
func (d Dim) Is(n int) bool {
	return d.known && d.value == n
}

// Add returns d+o, unknown if any operand is unknown.
func (d Dim) Add(o Dim) Dim {
	if !d.known || !o.known {
		return Unknown()
	}
	return Known(d.value + o.value)
}

// Sub returns d-o, unknown if any operand is unknown. It panics if the result would be negative.
func (d Dim) Sub(o Dim) Dim {
	if !d.known || !o.known {
		return Unknown()
	}
	if o.value > d.value {
		exceptions.Panicf("negative dimension: %d - %d", d.value, o.value)
	}
	return Known(d.value - o.value)
}

// Mul returns d*o, unknown if any operand is unknown.
func (d Dim) Mul(o Dim) Dim {
	if !d.known || !o.known {
		return Unknown()
	}
	return Known(d.value * o.value)
}

// FloorDiv returns d//o, unknown if any operand is unknown. It panics on a known division by zero.
func (d Dim) FloorDiv(o Dim) Dim {
	if !d.known || !o.known {
		return Unknown()
	}
	if o.value == 0 {
		exceptions.Panicf("dimension division by zero: %d // 0", d.value)
	}
	return Known(d.value / o.value)
}

// Mod returns d%o, unknown if any operand is unknown. It panics on a known modulo by zero.
func (d Dim) Mod(o Dim) Dim {
	if !d.known || !o.known {
		return Unknown()
	}
	if o.value == 0 {
		exceptions.Panicf("dimension modulo by zero: %d %% 0", d.value)
	}
	return Known(d.value % o.value)
}

// CeilDiv returns ceil(d/o), unknown if any operand is unknown.
func (d Dim) CeilDiv(o Dim) Dim {
	if !d.known || !o.known {
		return Unknown()
	}
	if o.value == 0 {
		exceptions.Panicf("dimension division by zero: ceil(%d / 0)", d.value)
	}
	return Known((d.value + o.value - 1) / o.value)
}

// Shape is the ordered list of dimensions of a tensor. Its length is the tensor rank.
type Shape []Dim

// MakeShape builds a fully known shape from the given sizes. Negative sizes become unknown dimensions.
func MakeShape(dims ...int) Shape {
	s := make(Shape, len(dims))
	for ii, d := range dims {
		if d < 0 {
			s[ii] = Unknown()
		} else {
			s[ii] = Known(d)
		}
	}
	return s
}

// UnknownShape returns a shape of the given rank with every dimension unknown.
func UnknownShape(rank int) Shape {
	return make(Shape, rank)
}

// Rank returns the number of dimensions.
func (s Shape) Rank() int { return len(s) }

// Clone returns an independent copy of the shape.
func (s Shape) Clone() Shape {
	if s == nil {
		return nil
	}
	c := make(Shape, len(s))
	copy(c, s)
	return c
}

// Size returns the total number of elements, unknown if any dimension is unknown.
// The size of a scalar (rank 0) is 1.
func (s Shape) Size() Dim {
	size := Known(1)
	for _, d := range s {
		size = size.Mul(d)
	}
	return size
}

// IsConcrete returns whether every dimension is known.
func (s Shape) IsConcrete() bool {
	for _, d := range s {
		if !d.known {
			return false
		}
	}
	return true
}

// Ints returns the sizes of the dimensions, with -1 for unknown ones, and whether all of them were known.
func (s Shape) Ints() ([]int, bool) {
	ints := make([]int, len(s))
	concrete := true
	for ii, d := range s {
		if d.known {
			ints[ii] = d.value
		} else {
			ints[ii] = -1
			concrete = false
		}
	}
	return ints, concrete
}

// String renders the shape as a tuple, e.g. "(128, ?)" or "(5,)".
func (s Shape) String() string {
	parts := make([]string, len(s))
	for ii, d := range s {
		parts[ii] = d.String()
	}
	if len(parts) == 1 {
		return "(" + parts[0] + ",)"
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// UnifyShape makes both shapes agree, in place: it fails if the ranks differ or if two known dimensions
// differ. A known dimension paired with an unknown one refines the unknown one on both sides.
func UnifyShape(a, b Shape) error {
	if len(a) != len(b) {
		return errors.Errorf("shapes %s and %s have different ranks", a, b)
	}
	for ii := range a {
		da, db := a[ii], b[ii]
		switch {
		case da.known && db.known:
			if da.value != db.value {
				return errors.Errorf("shapes %s and %s differ at axis %d", a, b, ii)
			}
		case da.known:
			b[ii] = da
		case db.known:
			a[ii] = db
		}
	}
	return nil
}

// NormalizeAxis converts a possibly negative axis to its position in a shape of the given rank.
// It panics if the axis is out of range.
func NormalizeAxis(axis, rank int) int {
	if axis < -rank || axis >= rank {
		exceptions.Panicf("axis %d out of range for rank %d", axis, rank)
	}
	if axis < 0 {
		axis += rank
	}
	return axis
}
