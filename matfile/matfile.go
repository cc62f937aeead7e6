// Package matfile reads MATLAB level 5 MAT-files, the binary container
// produced by MATLAB's save command and read by scipy.io.loadmat. The format is
// documented in
// https://www.mathworks.com/help/pdf_doc/matlab/matfile_format.pdf
// Only the element types needed for analysed imaging data are supported:
// numeric arrays, character arrays, cell arrays, struct arrays and
// zlib-compressed elements. Sparse and complex arrays are rejected.
package matfile

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Class identifies the MATLAB array class of an element.
type Class int

// MATLAB array classes (mxCLASS values from the MAT-file format).
const (
	ClassCell   Class = 1
	ClassStruct Class = 2
	ClassObject Class = 3
	ClassChar   Class = 4
	ClassSparse Class = 5
	ClassDouble Class = 6
	ClassSingle Class = 7
	ClassInt8   Class = 8
	ClassUint8  Class = 9
	ClassInt16  Class = 10
	ClassUint16 Class = 11
	ClassInt32  Class = 12
	ClassUint32 Class = 13
	ClassInt64  Class = 14
	ClassUint64 Class = 15
)

func (c Class) String() string {
	switch c {
	case ClassCell:
		return "cell"
	case ClassStruct:
		return "struct"
	case ClassObject:
		return "object"
	case ClassChar:
		return "char"
	case ClassSparse:
		return "sparse"
	case ClassDouble:
		return "double"
	case ClassSingle:
		return "single"
	case ClassInt8, ClassUint8, ClassInt16, ClassUint16,
		ClassInt32, ClassUint32, ClassInt64, ClassUint64:
		return "integer"
	}
	return fmt.Sprintf("class(%d)", int(c))
}

// Array is a single MATLAB array. Numeric data is kept in the file's
// column-major order and promoted to float64; accessors convert to the
// row-major conventions used by gonum.
type Array struct {
	Name  string
	Class Class

	dims    []int
	logical bool
	data    []float64 // numeric and logical classes, column-major

	chars  string            // ClassChar
	cells  []*Array          // ClassCell, column-major order
	fields map[string]*Array // ClassStruct, scalar structs only
	order  []string          // struct field order as stored
}

// Dims returns the array dimensions with singleton dimensions squeezed,
// matching scipy.io.loadmat(squeeze_me=True). A scalar reports no dimensions.
func (a *Array) Dims() []int {
	var squeezed []int
	for _, d := range a.dims {
		if d != 1 {
			squeezed = append(squeezed, d)
		}
	}
	return squeezed
}

// IsLogical reports whether the array carried the MATLAB logical flag. The
// values are still exposed as float64 zeros and ones.
func (a *Array) IsLogical() bool {
	return a.logical
}

// NumElements returns the total element count across all dimensions.
func (a *Array) NumElements() int {
	n := 1
	for _, d := range a.dims {
		n *= d
	}
	return n
}

func (a *Array) isNumeric() bool {
	switch a.Class {
	case ClassDouble, ClassSingle, ClassInt8, ClassUint8, ClassInt16,
		ClassUint16, ClassInt32, ClassUint32, ClassInt64, ClassUint64:
		return true
	}
	return false
}

// Scalar returns the value of a 1x1 numeric array.
func (a *Array) Scalar() (float64, error) {
	if !a.isNumeric() {
		return 0, errors.Errorf("matfile: %q is %v, not numeric", a.Name, a.Class)
	}
	if a.NumElements() != 1 {
		return 0, errors.Errorf("matfile: %q has %d elements, want scalar", a.Name, a.NumElements())
	}
	return a.data[0], nil
}

// Floats returns a numeric vector (an array whose squeezed shape has at most
// one dimension) as a flat slice.
func (a *Array) Floats() ([]float64, error) {
	if !a.isNumeric() {
		return nil, errors.Errorf("matfile: %q is %v, not numeric", a.Name, a.Class)
	}
	if len(a.Dims()) > 1 {
		return nil, errors.Errorf("matfile: %q has shape %v, want vector", a.Name, a.Dims())
	}
	out := make([]float64, len(a.data))
	copy(out, a.data)
	return out, nil
}

// Matrix returns a 2-D numeric array as a row-major gonum matrix. Vectors are
// returned as a single row. Empty arrays (any zero dimension) are rejected;
// gonum matrices cannot be zero-extent.
func (a *Array) Matrix() (*mat.Dense, error) {
	if !a.isNumeric() {
		return nil, errors.Errorf("matfile: %q is %v, not numeric", a.Name, a.Class)
	}
	if a.NumElements() == 0 {
		return nil, errors.Errorf("matfile: %q is empty (shape %v)", a.Name, a.dims)
	}
	dims := a.Dims()
	switch len(dims) {
	case 0:
		return mat.NewDense(1, 1, []float64{a.data[0]}), nil
	case 1:
		row := make([]float64, dims[0])
		copy(row, a.data)
		return mat.NewDense(1, dims[0], row), nil
	case 2:
		// column-major to row-major
		rows, cols := dims[0], dims[1]
		out := mat.NewDense(rows, cols, nil)
		for c := 0; c < cols; c++ {
			for r := 0; r < rows; r++ {
				out.Set(r, c, a.data[c*rows+r])
			}
		}
		return out, nil
	}
	return nil, errors.Errorf("matfile: %q has shape %v, want 2-D", a.Name, dims)
}

// At indexes an n-D numeric array with row-style subscripts over the squeezed
// dimensions.
func (a *Array) At(idx ...int) float64 {
	dims := a.Dims()
	if len(idx) != len(dims) {
		panic(fmt.Sprintf("matfile: %d subscripts for %d-D array %q", len(idx), len(dims), a.Name))
	}
	// column-major linear offset
	offset := 0
	stride := 1
	for d := 0; d < len(dims); d++ {
		if idx[d] < 0 || idx[d] >= dims[d] {
			panic(fmt.Sprintf("matfile: subscript %d out of range [0,%d) in %q", idx[d], dims[d], a.Name))
		}
		offset += idx[d] * stride
		stride *= dims[d]
	}
	return a.data[offset]
}

// Chars returns the contents of a char array.
func (a *Array) Chars() (string, error) {
	if a.Class != ClassChar {
		return "", errors.Errorf("matfile: %q is %v, not char", a.Name, a.Class)
	}
	return a.chars, nil
}

// NumCells returns the number of elements in a cell array.
func (a *Array) NumCells() (int, error) {
	if a.Class != ClassCell {
		return 0, errors.Errorf("matfile: %q is %v, not cell", a.Name, a.Class)
	}
	return len(a.cells), nil
}

// Cell returns element i of a cell array in column-major order.
func (a *Array) Cell(i int) (*Array, error) {
	if a.Class != ClassCell {
		return nil, errors.Errorf("matfile: %q is %v, not cell", a.Name, a.Class)
	}
	if i < 0 || i >= len(a.cells) {
		return nil, errors.Errorf("matfile: cell index %d out of range [0,%d) in %q", i, len(a.cells), a.Name)
	}
	return a.cells[i], nil
}

// Field returns the named field of a scalar struct array.
func (a *Array) Field(name string) (*Array, error) {
	if a.Class != ClassStruct {
		return nil, errors.Errorf("matfile: %q is %v, not struct", a.Name, a.Class)
	}
	f, ok := a.fields[name]
	if !ok {
		return nil, errors.Errorf("matfile: struct %q has no field %q (fields: %v)", a.Name, name, a.order)
	}
	return f, nil
}

// FieldNames returns the struct field names in stored order.
func (a *Array) FieldNames() []string {
	out := make([]string, len(a.order))
	copy(out, a.order)
	return out
}
