// Package typedump exports tables of resolved types, for tools consuming the inference results outside
// of Go: as flat rows stored in Parquet files, or as structural descriptors (protobuf Struct, JSON).
package typedump

import (
	"fmt"
	"io"
	"slices"
	"sort"

	"github.com/gomlx/shapeinfer/typing"
	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"
)

// Row is the flat description of the type of one named value.
//
// Tensor-only columns (DType, Rank, Shape) are empty (Rank is -1) for other categories. Unknown dimensions
// are stored as -1.
type Row struct {
	Name     string  `parquet:"name,snappy"`
	Type     string  `parquet:"type,snappy"`
	Category string  `parquet:"category,dict"`
	Kind     string  `parquet:"kind,dict"`
	DType    string  `parquet:"dtype,dict"`
	Rank     int32   `parquet:"rank"`
	Shape    []int64 `parquet:"shape"`
	Literal  string  `parquet:"literal,snappy"`
	Concrete bool    `parquet:"concrete"`
	Optional bool    `parquet:"optional"`
}

// Category returns the name of the variant of t (after dereferencing): "none", "num", "string", "arrow",
// "sequence", "dict", "tensor", "dtype", "class" or "var" for an unbound variable.
func Category(t typing.Type) string {
	switch typing.Deref(t).(type) {
	case *typing.None:
		return "none"
	case *typing.Num:
		return "num"
	case *typing.String:
		return "string"
	case *typing.Arrow:
		return "arrow"
	case *typing.Sequence:
		return "sequence"
	case *typing.Dict:
		return "dict"
	case *typing.Tensor:
		return "tensor"
	case *typing.DType:
		return "dtype"
	case *typing.Class:
		return "class"
	default:
		return "var"
	}
}

// Rows flattens table into one Row per value, sorted by name.
func Rows(table map[string]typing.Type) []Row {
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)
	rows := make([]Row, 0, len(names))
	for _, name := range names {
		rows = append(rows, NewRow(name, table[name]))
	}
	return rows
}

// NewRow describes the type t of the value name.
func NewRow(name string, t typing.Type) Row {
	t = typing.Deref(t)
	row := Row{
		Name:     name,
		Type:     typing.Show(t),
		Category: Category(t),
		Rank:     -1,
		Concrete: !typing.LacksValue(t),
		Optional: t.IsOptional(),
	}
	switch t := t.(type) {
	case *typing.Num:
		row.Kind = t.Kind.String()
	case *typing.Sequence:
		row.Kind = t.Kind.String()
	case *typing.Tensor:
		row.Kind = t.Kind.String()
		row.DType = typing.DTypeName(t.DType)
		row.Rank = int32(t.Rank())
		row.Shape = dims(t.Shape)
	case *typing.DType:
		row.DType = typing.DTypeName(t.DType)
	case *typing.Class:
		row.Kind = t.Name
	}
	if literal, ok := typing.ExtractLiteral(t); ok && literal != nil {
		row.Literal = fmt.Sprint(literal)
	}
	return row
}

// dims converts shape to int64 dimensions, -1 for the unknown ones. It returns nil for scalars.
func dims(shape typing.Shape) []int64 {
	if shape.Rank() == 0 {
		return nil
	}
	values := make([]int64, shape.Rank())
	for ii, dim := range shape {
		values[ii] = -1
		if n, ok := dim.Value(); ok {
			values[ii] = int64(n)
		}
	}
	return values
}

// WriteParquet writes rows as a Parquet file to w.
func WriteParquet(w io.Writer, rows []Row) error {
	writer := parquet.NewGenericWriter[Row](w)
	if _, err := writer.Write(rows); err != nil {
		return errors.Wrap(err, "failed to write type rows")
	}
	if err := writer.Close(); err != nil {
		return errors.Wrap(err, "failed to close parquet writer")
	}
	return nil
}

// ReadParquet reads back the rows of a Parquet file written by WriteParquet.
func ReadParquet(r io.ReaderAt, size int64) ([]Row, error) {
	f, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open parquet file")
	}
	schema := parquet.SchemaOf(&Row{})
	reader := parquet.NewGenericReader[Row](f, schema)
	defer func() { _ = reader.Close() }()

	numRows := int(reader.NumRows())
	rows := make([]Row, numRows)
	var read int
	for read < numRows {
		n, err := reader.Read(rows[read:])
		read += n
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read row #%d", read)
		}
		if n == 0 {
			break
		}
	}
	if read != numRows {
		return nil, errors.Errorf("read %d rows out of %d", read, numRows)
	}
	return slices.Clip(rows), nil
}
