package typedump

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/shapeinfer/typing"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Descriptor describes the structure of the resolved type t as a protobuf Struct.
//
// Every descriptor has a "category" field (see Category) and an "optional" field, plus the fields of its
// variant: e.g. a tensor has "kind", "dtype" and "shape" (unknown dimensions are null), and a fixed-length
// sequence has "elements". Literals are kept under "value".
//
// It fails with a *typing.UnresolvedTypeError if t still holds an unbound variable.
func Descriptor(t typing.Type) (*structpb.Struct, error) {
	resolved, err := typing.Resolve(t)
	if err != nil {
		return nil, err
	}
	s, err := structpb.NewStruct(describe(resolved))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build descriptor of %s", typing.Show(resolved))
	}
	return s, nil
}

// describe returns the descriptor of t as a map accepted by structpb.NewStruct.
func describe(t typing.Type) map[string]any {
	d := map[string]any{
		"category": Category(t),
		"optional": t.IsOptional(),
	}
	switch t := t.(type) {
	case *typing.None:
	case *typing.Num:
		d["kind"] = t.Kind.String()
		if t.Value != nil {
			d["value"] = t.Value
		}
	case *typing.String:
		if t.Value != nil {
			d["value"] = t.Value
		}
	case *typing.Arrow:
		d["args"] = describeList(t.Args)
		d["result"] = describe(t.Ret)
	case *typing.Sequence:
		d["kind"] = t.Kind.String()
		d["fixed"] = t.IsFixedLen()
		if t.IsFixedLen() {
			d["elements"] = describeList(t.Elems())
		} else {
			d["element"] = describe(t.Elem())
		}
	case *typing.Dict:
		d["key"] = describe(t.Key)
		d["value"] = describe(t.Value)
	case *typing.Tensor:
		d["kind"] = t.Kind.String()
		d["dtype"] = typing.DTypeName(t.DType)
		shape := make([]any, t.Rank())
		for ii, dim := range t.Shape {
			if n, ok := dim.Value(); ok {
				shape[ii] = n
			}
		}
		d["shape"] = shape
	case *typing.DType:
		d["dtype"] = typing.DTypeName(t.DType)
	case *typing.Class:
		d["name"] = t.Name
		if t.Family != "" {
			d["family"] = t.Family
		}
	default:
		exceptions.Panicf("typedump.Descriptor: unexpected type %T", t)
	}
	return d
}

func describeList(types []typing.Type) []any {
	list := make([]any, len(types))
	for ii, t := range types {
		list[ii] = describe(t)
	}
	return list
}

// MarshalJSON renders the descriptors of every value of table as one JSON object keyed by name.
func MarshalJSON(table map[string]typing.Type) ([]byte, error) {
	all := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(table))}
	for name, t := range table {
		d, err := Descriptor(t)
		if err != nil {
			return nil, errors.WithMessagef(err, "describing %q", name)
		}
		all.Fields[name] = structpb.NewStructValue(d)
	}
	return protojson.Marshal(all)
}
