package matfile

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"math"
	"testing"
)

// matBuilder assembles little-endian MAT 5 fixtures for the reader tests.
type matBuilder struct {
	buf bytes.Buffer
}

func newMatBuilder() *matBuilder {
	b := &matBuilder{}
	header := make([]byte, 128)
	copy(header, []byte("MATLAB 5.0 MAT-file, written by reader_test"))
	binary.LittleEndian.PutUint16(header[124:126], 0x0100)
	header[126] = 'I'
	header[127] = 'M'
	b.buf.Write(header)
	return b
}

func (b *matBuilder) bytes() []byte { return b.buf.Bytes() }

func u32(v uint32) []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, v)
	return out
}

// element encodes a full-tag data element with trailing padding.
func element(typ int, data []byte) []byte {
	var out bytes.Buffer
	out.Write(u32(uint32(typ)))
	out.Write(u32(uint32(len(data))))
	out.Write(data)
	if rem := out.Len() % 8; rem != 0 {
		out.Write(make([]byte, 8-rem))
	}
	return out.Bytes()
}

// smallElement encodes a packed small data element (payload of at most 4 bytes).
func smallElement(typ int, data []byte) []byte {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint32(out, uint32(typ)|uint32(len(data))<<16)
	copy(out[4:], data)
	return out
}

func doubles(vals ...float64) []byte {
	out := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(out[i*8:], math.Float64bits(v))
	}
	return out
}

func dims(ds ...int) []byte {
	var out bytes.Buffer
	for _, d := range ds {
		out.Write(u32(uint32(d)))
	}
	return out.Bytes()
}

// matrix encodes a miMATRIX element for a double array with the given
// column-major values.
func matrix(name string, class Class, dim []int, data []byte) []byte {
	var body bytes.Buffer
	flags := make([]byte, 8)
	binary.LittleEndian.PutUint32(flags, uint32(class))
	body.Write(element(miUINT32, flags))
	body.Write(element(miINT32, dims(dim...)))
	body.Write(element(miINT8, []byte(name)))
	body.Write(data)
	return element(miMATRIX, body.Bytes())
}

func TestReadNumericMatrix(t *testing.T) {
	b := newMatBuilder()
	// 2x3, column-major: columns (1,2), (3,4), (5,6)
	b.buf.Write(matrix("A", ClassDouble, []int{2, 3}, element(miDOUBLE, doubles(1, 2, 3, 4, 5, 6))))

	f, err := Read(bytes.NewReader(b.bytes()))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	arr, err := f.Array("A")
	if err != nil {
		t.Fatalf("missing array: %v", err)
	}
	m, err := arr.Matrix()
	if err != nil {
		t.Fatalf("Matrix failed: %v", err)
	}
	r, c := m.Dims()
	if r != 2 || c != 3 {
		t.Fatalf("wrong shape: got %dx%d, want 2x3", r, c)
	}
	want := [][]float64{{1, 3, 5}, {2, 4, 6}}
	for i := 0; i < 2; i++ {
		for j := 0; j < 3; j++ {
			if m.At(i, j) != want[i][j] {
				t.Errorf("At(%d,%d) = %v, want %v", i, j, m.At(i, j), want[i][j])
			}
		}
	}
}

func TestReadScalarWithSmallElements(t *testing.T) {
	b := newMatBuilder()
	var body bytes.Buffer
	flags := make([]byte, 8)
	binary.LittleEndian.PutUint32(flags, uint32(ClassDouble))
	body.Write(element(miUINT32, flags))
	body.Write(element(miINT32, dims(1, 1)))
	body.Write(smallElement(miINT8, []byte("s")))
	body.Write(element(miDOUBLE, doubles(42.5)))
	b.buf.Write(element(miMATRIX, body.Bytes()))

	f, err := Read(bytes.NewReader(b.bytes()))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	arr, err := f.Array("s")
	if err != nil {
		t.Fatalf("missing array: %v", err)
	}
	v, err := arr.Scalar()
	if err != nil {
		t.Fatalf("Scalar failed: %v", err)
	}
	if v != 42.5 {
		t.Errorf("Scalar = %v, want 42.5", v)
	}
	if len(arr.Dims()) != 0 {
		t.Errorf("scalar should squeeze to no dims, got %v", arr.Dims())
	}
}

func TestReadIntegerPromotion(t *testing.T) {
	b := newMatBuilder()
	raw := make([]byte, 6)
	for i, v := range []int16{-3, 0, 7} {
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(v))
	}
	b.buf.Write(matrix("n", ClassInt16, []int{1, 3}, element(miINT16, raw)))

	f, err := Read(bytes.NewReader(b.bytes()))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	arr, _ := f.Array("n")
	vals, err := arr.Floats()
	if err != nil {
		t.Fatalf("Floats failed: %v", err)
	}
	want := []float64{-3, 0, 7}
	for i := range want {
		if vals[i] != want[i] {
			t.Errorf("vals[%d] = %v, want %v", i, vals[i], want[i])
		}
	}
}

func TestReadCharArray(t *testing.T) {
	b := newMatBuilder()
	text := "hello"
	raw := make([]byte, 2*len(text))
	for i, r := range text {
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(r))
	}
	b.buf.Write(matrix("msg", ClassChar, []int{1, len(text)}, element(miUINT16, raw)))

	f, err := Read(bytes.NewReader(b.bytes()))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	arr, _ := f.Array("msg")
	s, err := arr.Chars()
	if err != nil {
		t.Fatalf("Chars failed: %v", err)
	}
	if s != text {
		t.Errorf("Chars = %q, want %q", s, text)
	}
}

func TestReadCellArray(t *testing.T) {
	b := newMatBuilder()
	c1 := matrix("", ClassDouble, []int{1, 2}, element(miDOUBLE, doubles(1, 2)))
	c2 := matrix("", ClassDouble, []int{1, 3}, element(miDOUBLE, doubles(3, 4, 5)))
	b.buf.Write(matrix("scans", ClassCell, []int{1, 2}, append(c1, c2...)))

	f, err := Read(bytes.NewReader(b.bytes()))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	arr, _ := f.Array("scans")
	n, err := arr.NumCells()
	if err != nil || n != 2 {
		t.Fatalf("NumCells = %d, %v; want 2", n, err)
	}
	second, err := arr.Cell(1)
	if err != nil {
		t.Fatalf("Cell(1) failed: %v", err)
	}
	vals, _ := second.Floats()
	if len(vals) != 3 || vals[0] != 3 {
		t.Errorf("cell 1 = %v, want [3 4 5]", vals)
	}
	if _, err := arr.Cell(2); err == nil {
		t.Error("Cell(2) should be out of range")
	}
}

// structElement encodes a scalar struct with the given ordered fields.
func structElement(name string, fields map[string][]byte, order []string) []byte {
	var body bytes.Buffer
	flags := make([]byte, 8)
	binary.LittleEndian.PutUint32(flags, uint32(ClassStruct))
	body.Write(element(miUINT32, flags))
	body.Write(element(miINT32, dims(1, 1)))
	body.Write(element(miINT8, []byte(name)))
	body.Write(smallElement(miINT32, u32(32)))
	names := make([]byte, 32*len(order))
	for i, fn := range order {
		copy(names[i*32:], fn)
	}
	body.Write(element(miINT8, names))
	for _, fn := range order {
		body.Write(fields[fn])
	}
	return element(miMATRIX, body.Bytes())
}

func TestReadStruct(t *testing.T) {
	b := newMatBuilder()
	fields := map[string][]byte{
		"Ephys_Time": matrix("", ClassDouble, []int{1, 4}, element(miDOUBLE, doubles(0, 1, 2, 3))),
		"Ephys_data": matrix("", ClassDouble, []int{2, 2}, element(miDOUBLE, doubles(10, 20, 30, 40))),
	}
	b.buf.Write(structElement("Analysed_data", fields, []string{"Ephys_Time", "Ephys_data"}))

	f, err := Read(bytes.NewReader(b.bytes()))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	arr, err := f.Array("Analysed_data")
	if err != nil {
		t.Fatalf("missing struct: %v", err)
	}
	tv, err := arr.Field("Ephys_Time")
	if err != nil {
		t.Fatalf("Field failed: %v", err)
	}
	vals, _ := tv.Floats()
	if len(vals) != 4 || vals[3] != 3 {
		t.Errorf("Ephys_Time = %v", vals)
	}
	if _, err := arr.Field("missing"); err == nil {
		t.Error("Field(missing) should fail")
	}
	got := arr.FieldNames()
	if len(got) != 2 || got[0] != "Ephys_Time" || got[1] != "Ephys_data" {
		t.Errorf("FieldNames = %v", got)
	}
}

func TestReadCompressed(t *testing.T) {
	b := newMatBuilder()
	plain := matrix("z", ClassDouble, []int{1, 2}, element(miDOUBLE, doubles(6, 7)))
	var comp bytes.Buffer
	zw := zlib.NewWriter(&comp)
	if _, err := zw.Write(plain); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	b.buf.Write(u32(miCOMPRESSED))
	b.buf.Write(u32(uint32(comp.Len())))
	b.buf.Write(comp.Bytes())

	f, err := Read(bytes.NewReader(b.bytes()))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	arr, err := f.Array("z")
	if err != nil {
		t.Fatalf("missing array: %v", err)
	}
	vals, _ := arr.Floats()
	if len(vals) != 2 || vals[1] != 7 {
		t.Errorf("z = %v, want [6 7]", vals)
	}
}

func TestReadThreeDimensional(t *testing.T) {
	b := newMatBuilder()
	// 2x2x2, column-major within each plane
	b.buf.Write(matrix("cube", ClassDouble, []int{2, 2, 2},
		element(miDOUBLE, doubles(1, 2, 3, 4, 5, 6, 7, 8))))

	f, err := Read(bytes.NewReader(b.bytes()))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	arr, _ := f.Array("cube")
	if d := arr.Dims(); len(d) != 3 {
		t.Fatalf("Dims = %v, want 3-D", d)
	}
	// value at row 1, col 0, plane 1: offset 1 + 0*2 + 1*4 = 5
	if got := arr.At(1, 0, 1); got != 6 {
		t.Errorf("At(1,0,1) = %v, want 6", got)
	}
}

func TestReadLogicalArray(t *testing.T) {
	b := newMatBuilder()
	var body bytes.Buffer
	flags := make([]byte, 8)
	binary.LittleEndian.PutUint32(flags, uint32(ClassUint8)|flagLogical)
	body.Write(element(miUINT32, flags))
	body.Write(element(miINT32, dims(1, 3)))
	body.Write(element(miINT8, []byte("mask")))
	body.Write(element(miUINT8, []byte{1, 0, 1}))
	b.buf.Write(element(miMATRIX, body.Bytes()))

	f, err := Read(bytes.NewReader(b.bytes()))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	arr, err := f.Array("mask")
	if err != nil {
		t.Fatalf("missing array: %v", err)
	}
	if !arr.IsLogical() {
		t.Error("IsLogical should report the logical flag")
	}
	vals, err := arr.Floats()
	if err != nil {
		t.Fatalf("Floats failed: %v", err)
	}
	want := []float64{1, 0, 1}
	for i := range want {
		if vals[i] != want[i] {
			t.Errorf("vals[%d] = %v, want %v", i, vals[i], want[i])
		}
	}

}

func TestNumericArrayIsNotLogical(t *testing.T) {
	b := newMatBuilder()
	b.buf.Write(matrix("plain", ClassDouble, []int{1, 2}, element(miDOUBLE, doubles(1, 2))))

	f, err := Read(bytes.NewReader(b.bytes()))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	arr, err := f.Array("plain")
	if err != nil {
		t.Fatalf("missing array: %v", err)
	}
	if arr.IsLogical() {
		t.Error("plain double array should not report logical")
	}
}

func TestMatrixRejectsEmptyArrays(t *testing.T) {
	b := newMatBuilder()
	b.buf.Write(matrix("empty", ClassDouble, []int{0, 0}, element(miDOUBLE, nil)))
	b.buf.Write(matrix("row", ClassDouble, []int{1, 0}, element(miDOUBLE, nil)))

	f, err := Read(bytes.NewReader(b.bytes()))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	for _, name := range []string{"empty", "row"} {
		arr, err := f.Array(name)
		if err != nil {
			t.Fatalf("missing array %q: %v", name, err)
		}
		if _, err := arr.Matrix(); err == nil {
			t.Errorf("Matrix on %q should reject a zero-extent array", name)
		}
	}
}

func TestReadRejectsBadFiles(t *testing.T) {
	if _, err := Read(bytes.NewReader(make([]byte, 12))); err == nil {
		t.Error("short file should fail")
	}
	bad := newMatBuilder().bytes()
	bad[126], bad[127] = 'X', 'Y'
	if _, err := Read(bytes.NewReader(bad)); err == nil {
		t.Error("bad endian indicator should fail")
	}
	trunc := newMatBuilder()
	trunc.buf.Write(u32(miMATRIX))
	trunc.buf.Write(u32(4096))
	if _, err := Read(bytes.NewReader(trunc.bytes())); err == nil {
		t.Error("truncated element should fail")
	}
}
