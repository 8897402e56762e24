// Package togomlx contains conversion utilities between host tensor values and GoMLX shapes and tensors.
package togomlx

import (
	"reflect"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

// Shape returns the dtype and dimensions of a host tensor value: a *tensors.Tensor, a shapes.Shape or a
// (possibly multi-dimensional) Go slice of a numeric or bool base type.
//
// It returns ok=false if value is not a tensor value.
func Shape(value any) (shape shapes.Shape, ok bool) {
	switch v := value.(type) {
	case *tensors.Tensor:
		if v == nil {
			return
		}
		return v.Shape(), true
	case shapes.Shape:
		return v, true
	case *shapes.Shape:
		if v == nil {
			return
		}
		return *v, true
	}
	dims, baseType, ok := sliceDims(reflect.ValueOf(value))
	if !ok || len(dims) == 0 {
		return shapes.Shape{}, false
	}
	dtype := dtypes.FromGoType(baseType)
	if dtype == dtypes.InvalidDType {
		return shapes.Shape{}, false
	}
	return shapes.Make(dtype, dims...), true
}

// sliceDims returns the dimensions of a rectangular nested slice, and its base element type.
func sliceDims(v reflect.Value) (dims []int, base reflect.Type, ok bool) {
	if !v.IsValid() {
		return nil, nil, false
	}
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		switch v.Kind() {
		case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
			return nil, v.Type(), true
		}
		return nil, nil, false
	}
	n := v.Len()
	if n == 0 {
		// Empty slices have no base value to inspect: use the static element type.
		elemType := v.Type().Elem()
		for elemType.Kind() == reflect.Slice {
			elemType = elemType.Elem()
			dims = append(dims, 0)
		}
		return append([]int{0}, dims...), elemType, elemType.Kind() != reflect.Interface
	}
	var subDims []int
	for ii := 0; ii < n; ii++ {
		d, b, subOk := sliceDims(v.Index(ii))
		if !subOk {
			return nil, nil, false
		}
		if ii == 0 {
			subDims, base = d, b
			continue
		}
		if b != base || !reflect.DeepEqual(d, subDims) {
			// Ragged.
			return nil, nil, false
		}
	}
	return append([]int{n}, subDims...), base, true
}

// Zeros returns a zero-filled tensor with the given dtype and dimensions.
func Zeros(dtype dtypes.DType, dims []int) (*tensors.Tensor, error) {
	if dtype == dtypes.InvalidDType {
		return nil, errors.New("cannot create tensor with an invalid dtype")
	}
	for axis, d := range dims {
		if d < 0 {
			return nil, errors.Errorf("cannot create tensor with negative dimension %d at axis %d", d, axis)
		}
	}
	return tensors.FromShape(shapes.Make(dtype, dims...)), nil
}
