package matfile

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"
	"math"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// MAT-file data element types (mi values).
const (
	miINT8       = 1
	miUINT8      = 2
	miINT16      = 3
	miUINT16     = 4
	miINT32      = 5
	miUINT32     = 6
	miSINGLE     = 7
	miDOUBLE     = 9
	miINT64      = 12
	miUINT64     = 13
	miMATRIX     = 14
	miCOMPRESSED = 15
	miUTF8       = 16
	miUTF16      = 17
)

const headerLen = 128

// File is a parsed MAT-file holding its top-level arrays.
type File struct {
	// Header is the descriptive text from the file preamble.
	Header string

	arrays map[string]*Array
	names  []string
}

// Open reads and parses the MAT-file at path.
func Open(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "matfile: open %s", path)
	}
	f, err := Read(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrapf(err, "matfile: parse %s", path)
	}
	return f, nil
}

// Read parses a MAT-file from r.
func Read(r io.Reader) (*File, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "matfile: read")
	}
	if len(raw) < headerLen {
		return nil, errors.Errorf("matfile: file too short for header (%d bytes)", len(raw))
	}

	var order binary.ByteOrder
	switch {
	case raw[126] == 'I' && raw[127] == 'M':
		order = binary.LittleEndian
	case raw[126] == 'M' && raw[127] == 'I':
		order = binary.BigEndian
	default:
		return nil, errors.Errorf("matfile: bad endian indicator %q", string(raw[126:128]))
	}
	if v := order.Uint16(raw[124:126]); v != 0x0100 {
		return nil, errors.Errorf("matfile: unsupported MAT-file version %#04x", v)
	}

	f := &File{
		Header: strings.TrimRight(string(raw[:116]), " \x00"),
		arrays: make(map[string]*Array),
	}
	d := &decoder{buf: raw, pos: headerLen, order: order}
	for d.pos < len(d.buf) {
		typ, data, err := d.element()
		if err != nil {
			return nil, err
		}
		arr, err := parseTopLevel(typ, data, order)
		if err != nil {
			return nil, err
		}
		if arr == nil {
			continue // element type we do not care about at top level
		}
		f.arrays[arr.Name] = arr
		f.names = append(f.names, arr.Name)
	}
	return f, nil
}

// Names returns the top-level array names in file order.
func (f *File) Names() []string {
	out := make([]string, len(f.names))
	copy(out, f.names)
	return out
}

// Array returns the named top-level array.
func (f *File) Array(name string) (*Array, error) {
	arr, ok := f.arrays[name]
	if !ok {
		return nil, errors.Errorf("matfile: no array %q (have %v)", name, f.names)
	}
	return arr, nil
}

func parseTopLevel(typ int, data []byte, order binary.ByteOrder) (*Array, error) {
	switch typ {
	case miMATRIX:
		return parseMatrix(data, order)
	case miCOMPRESSED:
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, errors.Wrap(err, "matfile: compressed element")
		}
		defer zr.Close()
		inner, err := io.ReadAll(zr)
		if err != nil {
			return nil, errors.Wrap(err, "matfile: decompress element")
		}
		d := &decoder{buf: inner, pos: 0, order: order}
		ityp, idata, err := d.element()
		if err != nil {
			return nil, err
		}
		return parseTopLevel(ityp, idata, order)
	default:
		// Subsystem-specific and padding elements are skipped.
		return nil, nil
	}
}

// decoder walks data elements in a byte buffer. Elements start on 8-byte
// boundaries; small data elements pack type, size and payload into one
// 8-byte unit.
type decoder struct {
	buf   []byte
	pos   int
	order binary.ByteOrder
}

func (d *decoder) element() (typ int, data []byte, err error) {
	if d.pos+8 > len(d.buf) {
		return 0, nil, errors.Errorf("matfile: truncated element tag at offset %d", d.pos)
	}
	word := d.order.Uint32(d.buf[d.pos : d.pos+4])
	if small := word >> 16; small != 0 {
		// small data element: payload lives in the tag's second word
		typ = int(word & 0xFFFF)
		if small > 4 {
			return 0, nil, errors.Errorf("matfile: small element of %d bytes at offset %d", small, d.pos)
		}
		data = d.buf[d.pos+4 : d.pos+4+int(small)]
		d.pos += 8
		return typ, data, nil
	}
	typ = int(word)
	size := int(d.order.Uint32(d.buf[d.pos+4 : d.pos+8]))
	d.pos += 8
	if d.pos+size > len(d.buf) {
		return 0, nil, errors.Errorf("matfile: element of %d bytes overruns buffer at offset %d", size, d.pos)
	}
	data = d.buf[d.pos : d.pos+size]
	d.pos += size
	// data is padded to the next 8-byte boundary, except for compressed
	// elements whose zlib streams are stored back to back
	if typ != miCOMPRESSED {
		if rem := d.pos % 8; rem != 0 {
			d.pos += 8 - rem
			if d.pos > len(d.buf) {
				d.pos = len(d.buf)
			}
		}
	}
	return typ, data, nil
}

// array flag bits in the first array-flags word
const (
	flagComplex = 0x0800
	flagLogical = 0x0200
)

func parseMatrix(data []byte, order binary.ByteOrder) (*Array, error) {
	d := &decoder{buf: data, pos: 0, order: order}

	typ, flagBytes, err := d.element()
	if err != nil {
		return nil, err
	}
	if typ != miUINT32 || len(flagBytes) < 8 {
		return nil, errors.Errorf("matfile: bad array flags element (type %d, %d bytes)", typ, len(flagBytes))
	}
	flags := order.Uint32(flagBytes[:4])
	class := Class(flags & 0xFF)
	if flags&flagComplex != 0 {
		return nil, errors.New("matfile: complex arrays are not supported")
	}
	if class == ClassSparse {
		return nil, errors.New("matfile: sparse arrays are not supported")
	}

	typ, dimBytes, err := d.element()
	if err != nil {
		return nil, err
	}
	if typ != miINT32 {
		return nil, errors.Errorf("matfile: bad dimensions element (type %d)", typ)
	}
	dims := make([]int, len(dimBytes)/4)
	for i := range dims {
		dims[i] = int(int32(order.Uint32(dimBytes[i*4 : i*4+4])))
	}

	typ, nameBytes, err := d.element()
	if err != nil {
		return nil, err
	}
	if typ != miINT8 {
		return nil, errors.Errorf("matfile: bad array name element (type %d)", typ)
	}

	arr := &Array{
		Name:    string(nameBytes),
		Class:   class,
		dims:    dims,
		logical: flags&flagLogical != 0,
	}

	switch class {
	case ClassCell:
		return parseCell(arr, d, order)
	case ClassStruct:
		return parseStruct(arr, d, order)
	case ClassChar:
		return parseChar(arr, d, order)
	case ClassObject:
		return nil, errors.Errorf("matfile: object array %q is not supported", arr.Name)
	default:
		return parseNumeric(arr, d, order)
	}
}

func parseNumeric(arr *Array, d *decoder, order binary.ByteOrder) (*Array, error) {
	typ, data, err := d.element()
	if err != nil {
		return nil, errors.Wrapf(err, "matfile: numeric data of %q", arr.Name)
	}
	arr.data, err = promote(typ, data, order)
	if err != nil {
		return nil, errors.Wrapf(err, "matfile: numeric data of %q", arr.Name)
	}
	if n := arr.NumElements(); len(arr.data) != n {
		return nil, errors.Errorf("matfile: %q has %d values for shape %v", arr.Name, len(arr.data), arr.dims)
	}
	return arr, nil
}

func parseChar(arr *Array, d *decoder, order binary.ByteOrder) (*Array, error) {
	typ, data, err := d.element()
	if err != nil {
		return nil, errors.Wrapf(err, "matfile: char data of %q", arr.Name)
	}
	var sb strings.Builder
	switch typ {
	case miUTF8:
		sb.Write(data)
	case miINT8, miUINT8:
		for _, b := range data {
			sb.WriteRune(rune(b))
		}
	case miUINT16, miINT16, miUTF16:
		for i := 0; i+2 <= len(data); i += 2 {
			sb.WriteRune(rune(order.Uint16(data[i : i+2])))
		}
	default:
		return nil, errors.Errorf("matfile: char array %q stored as type %d", arr.Name, typ)
	}
	arr.chars = sb.String()
	return arr, nil
}

func parseCell(arr *Array, d *decoder, order binary.ByteOrder) (*Array, error) {
	n := arr.NumElements()
	arr.cells = make([]*Array, 0, n)
	for i := 0; i < n; i++ {
		typ, data, err := d.element()
		if err != nil {
			return nil, errors.Wrapf(err, "matfile: cell %d of %q", i, arr.Name)
		}
		if typ != miMATRIX {
			return nil, errors.Errorf("matfile: cell %d of %q is element type %d, not a matrix", i, arr.Name, typ)
		}
		cell, err := parseMatrix(data, order)
		if err != nil {
			return nil, errors.Wrapf(err, "matfile: cell %d of %q", i, arr.Name)
		}
		arr.cells = append(arr.cells, cell)
	}
	return arr, nil
}

func parseStruct(arr *Array, d *decoder, order binary.ByteOrder) (*Array, error) {
	if arr.NumElements() != 1 {
		return nil, errors.Errorf("matfile: struct array %q has shape %v; only scalar structs are supported", arr.Name, arr.dims)
	}

	typ, lenBytes, err := d.element()
	if err != nil {
		return nil, errors.Wrapf(err, "matfile: field name length of %q", arr.Name)
	}
	if typ != miINT32 || len(lenBytes) != 4 {
		return nil, errors.Errorf("matfile: bad field name length element of %q (type %d)", arr.Name, typ)
	}
	nameLen := int(int32(order.Uint32(lenBytes)))
	if nameLen <= 0 {
		return nil, errors.Errorf("matfile: struct %q has field name length %d", arr.Name, nameLen)
	}

	typ, nameBytes, err := d.element()
	if err != nil {
		return nil, errors.Wrapf(err, "matfile: field names of %q", arr.Name)
	}
	if typ != miINT8 || len(nameBytes)%nameLen != 0 {
		return nil, errors.Errorf("matfile: bad field names element of %q", arr.Name)
	}

	nFields := len(nameBytes) / nameLen
	arr.fields = make(map[string]*Array, nFields)
	for i := 0; i < nFields; i++ {
		name := string(bytes.TrimRight(nameBytes[i*nameLen:(i+1)*nameLen], "\x00"))
		typ, data, err := d.element()
		if err != nil {
			return nil, errors.Wrapf(err, "matfile: field %q of %q", name, arr.Name)
		}
		if typ != miMATRIX {
			return nil, errors.Errorf("matfile: field %q of %q is element type %d, not a matrix", name, arr.Name, typ)
		}
		field, err := parseMatrix(data, order)
		if err != nil {
			return nil, errors.Wrapf(err, "matfile: field %q of %q", name, arr.Name)
		}
		field.Name = name
		arr.fields[name] = field
		arr.order = append(arr.order, name)
	}
	return arr, nil
}

// promote converts raw element data of any numeric mi type to float64.
func promote(typ int, data []byte, order binary.ByteOrder) ([]float64, error) {
	switch typ {
	case miINT8:
		out := make([]float64, len(data))
		for i, b := range data {
			out[i] = float64(int8(b))
		}
		return out, nil
	case miUINT8:
		out := make([]float64, len(data))
		for i, b := range data {
			out[i] = float64(b)
		}
		return out, nil
	case miINT16:
		out := make([]float64, len(data)/2)
		for i := range out {
			out[i] = float64(int16(order.Uint16(data[i*2:])))
		}
		return out, nil
	case miUINT16:
		out := make([]float64, len(data)/2)
		for i := range out {
			out[i] = float64(order.Uint16(data[i*2:]))
		}
		return out, nil
	case miINT32:
		out := make([]float64, len(data)/4)
		for i := range out {
			out[i] = float64(int32(order.Uint32(data[i*4:])))
		}
		return out, nil
	case miUINT32:
		out := make([]float64, len(data)/4)
		for i := range out {
			out[i] = float64(order.Uint32(data[i*4:]))
		}
		return out, nil
	case miSINGLE:
		out := make([]float64, len(data)/4)
		for i := range out {
			out[i] = float64(math.Float32frombits(order.Uint32(data[i*4:])))
		}
		return out, nil
	case miDOUBLE:
		out := make([]float64, len(data)/8)
		for i := range out {
			out[i] = math.Float64frombits(order.Uint64(data[i*8:]))
		}
		return out, nil
	case miINT64:
		out := make([]float64, len(data)/8)
		for i := range out {
			out[i] = float64(int64(order.Uint64(data[i*8:])))
		}
		return out, nil
	case miUINT64:
		out := make([]float64, len(data)/8)
		for i := range out {
			out[i] = float64(order.Uint64(data[i*8:]))
		}
		return out, nil
	}
	return nil, errors.Errorf("matfile: element type %d is not numeric", typ)
}
