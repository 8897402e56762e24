package typing

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
)

// Show renders t. The rendering is stable and used both for diagnostics and in tests, e.g.:
//
//	tensor(float32, (128, 20))
//	(int, string) -> float
//	int list
//	optional(int)
//
// Bound variables are rendered as the type they are bound to.
func Show(t Type) string {
	var buf bytes.Buffer
	writeType(&buf, t)
	return buf.String()
}

// DTypeName returns the lower-case name of a dtype, as used in renderings (e.g. "float32").
func DTypeName(dtype dtypes.DType) string {
	return strings.ToLower(dtype.String())
}

func writeType(buf *bytes.Buffer, t Type) {
	t = chase(t)
	if t.IsOptional() {
		if _, isNone := t.(*None); !isNone {
			buf.WriteString("optional(")
			writeBody(buf, t)
			buf.WriteString(")")
			return
		}
	}
	writeBody(buf, t)
}

// writeList writes the types separated by ", ".
func writeList(buf *bytes.Buffer, types []Type) {
	for ii, t := range types {
		if ii > 0 {
			buf.WriteString(", ")
		}
		writeType(buf, t)
	}
}

func writeBody(buf *bytes.Buffer, t Type) {
	// w writes formatted text to buf.
	w := func(format string, args ...any) {
		if len(args) == 0 {
			buf.WriteString(format)
		} else {
			_, _ = fmt.Fprintf(buf, format, args...)
		}
	}
	switch t := t.(type) {
	case *None:
		w("none")
	case *Num:
		w(t.Kind.String())
	case *String:
		w("string")
	case *Arrow:
		w("(")
		writeList(buf, t.Args)
		w(") -> ")
		writeType(buf, t.Ret)
	case *Sequence:
		if !t.fixed {
			writeType(buf, t.elem)
			w(" %s", t.Kind)
			return
		}
		if t.Kind == ListSeq {
			w("[")
			writeList(buf, t.elems)
			w("]")
			return
		}
		w("(")
		writeList(buf, t.elems)
		if len(t.elems) == 1 {
			w(",")
		}
		w(")")
	case *Dict:
		w("{")
		writeType(buf, t.Key)
		w(" : ")
		writeType(buf, t.Value)
		w("}")
	case *Tensor:
		w("%s(%s, %s)", t.Kind, DTypeName(t.DType), t.Shape)
	case *DType:
		w("dtype(%s)", DTypeName(t.DType))
	case *Class:
		w("class %s", t.Name)
	case *Var:
		w("a%d", t.ID)
		if t.Origin.IsValid() {
			w(" (from %s)", t.Origin)
		}
	default:
		exceptions.Panicf("typing.Show: unknown type %T", t)
	}
}

func (t *None) String() string     { return Show(t) }
func (t *Num) String() string      { return Show(t) }
func (t *String) String() string   { return Show(t) }
func (t *Arrow) String() string    { return Show(t) }
func (t *Sequence) String() string { return Show(t) }
func (t *Dict) String() string     { return Show(t) }
func (t *Tensor) String() string   { return Show(t) }
func (t *DType) String() string    { return Show(t) }
func (t *Class) String() string    { return Show(t) }
func (t *Var) String() string      { return Show(t) }
