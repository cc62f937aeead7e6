// Package linescan assembles ragged two-photon linescans into the regular
// blocks required for acquisition series. A single linescan is a (lines x
// width) matrix; scans within one region of interest share the line count but
// not the width, so scans are padded with NaN columns to the widest scan
// before stacking.
package linescan

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Block is a dense (Scans x Lines x Width) stack of linescans. Data is laid
// out scan-major, then line-major.
type Block struct {
	Scans int
	Lines int
	Width int
	Data  []float64
}

// Dims returns the block shape as (scans, lines, width).
func (b *Block) Dims() []int {
	return []int{b.Scans, b.Lines, b.Width}
}

// At returns the sample of scan s at line l and column w.
func (b *Block) At(s, l, w int) float64 {
	return b.Data[(s*b.Lines+l)*b.Width+w]
}

// full returns an (m by n) matrix filled with value.
func full(m, n int, value float64) *mat.Dense {
	data := make([]float64, m*n)
	for index := range data {
		data[index] = value
	}
	return mat.NewDense(m, n, data)
}

// Pad widens every scan to the largest width in the set by appending NaN
// columns on the right. Scans must agree on the line count.
func Pad(scans []*mat.Dense) ([]*mat.Dense, error) {
	if len(scans) == 0 {
		return nil, errors.New("linescan: no scans to pad")
	}
	lines, maxWidth := scans[0].Dims()
	for _, scan := range scans {
		r, c := scan.Dims()
		if r != lines {
			return nil, errors.Errorf("linescan: scan has %d lines, want %d", r, lines)
		}
		if c > maxWidth {
			maxWidth = c
		}
	}

	out := make([]*mat.Dense, len(scans))
	for i, scan := range scans {
		_, c := scan.Dims()
		if c == maxWidth {
			out[i] = scan
			continue
		}
		padded := full(lines, maxWidth, math.NaN())
		padded.Slice(0, lines, 0, c).(*mat.Dense).Copy(scan)
		out[i] = padded
	}
	return out, nil
}

// Stack packs equally sized scans into a single block with the scan number as
// the leading dimension.
func Stack(scans []*mat.Dense) (*Block, error) {
	if len(scans) == 0 {
		return nil, errors.New("linescan: no scans to stack")
	}
	lines, width := scans[0].Dims()
	block := &Block{
		Scans: len(scans),
		Lines: lines,
		Width: width,
		Data:  make([]float64, len(scans)*lines*width),
	}
	for s, scan := range scans {
		r, c := scan.Dims()
		if r != lines || c != width {
			return nil, errors.Errorf("linescan: scan %d is %dx%d, want %dx%d", s, r, c, lines, width)
		}
		for l := 0; l < lines; l++ {
			copy(block.Data[(s*lines+l)*width:(s*lines+l+1)*width], scan.RawRowView(l))
		}
	}
	return block, nil
}

// DeltaF turns a (lines x scans) delta-fluorescence matrix, already averaged
// across the dendritic width, into a (scans x lines x 1) block.
func DeltaF(df *mat.Dense) (*Block, error) {
	lines, scans := df.Dims()
	if lines == 0 || scans == 0 {
		return nil, errors.New("linescan: empty delta-F matrix")
	}
	block := &Block{
		Scans: scans,
		Lines: lines,
		Width: 1,
		Data:  make([]float64, scans*lines),
	}
	for s := 0; s < scans; s++ {
		for l := 0; l < lines; l++ {
			block.Data[s*lines+l] = df.At(l, s)
		}
	}
	return block, nil
}

// MeanTrace reduces a block to one value per scan, the mean over all finite
// samples of that scan. A scan with no finite samples yields NaN.
func MeanTrace(b *Block) []float64 {
	out := make([]float64, b.Scans)
	per := b.Lines * b.Width
	for s := 0; s < b.Scans; s++ {
		sum, n := 0., 0
		for i := s * per; i < (s+1)*per; i++ {
			v := b.Data[i]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			sum += v
			n++
		}
		if n == 0 {
			out[s] = math.NaN()
			continue
		}
		out[s] = sum / float64(n)
	}
	return out
}
