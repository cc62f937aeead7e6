package linescan

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestPad(t *testing.T) {
	scans := []*mat.Dense{
		mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6}),
		mat.NewDense(2, 5, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}),
		mat.NewDense(2, 4, []float64{1, 2, 3, 4, 5, 6, 7, 8}),
	}
	padded, err := Pad(scans)
	if err != nil {
		t.Fatalf("Pad failed: %v", err)
	}
	for i, p := range padded {
		if _, c := p.Dims(); c != 5 {
			t.Errorf("scan %d padded to width %d, want 5", i, c)
		}
	}
	// original values survive
	if padded[0].At(1, 2) != 6 {
		t.Errorf("padded[0] At(1,2) = %v, want 6", padded[0].At(1, 2))
	}
	// appended columns are NaN
	if !math.IsNaN(padded[0].At(0, 3)) || !math.IsNaN(padded[0].At(1, 4)) {
		t.Error("appended columns should be NaN")
	}
	if !math.IsNaN(padded[2].At(0, 4)) {
		t.Error("appended column of scan 2 should be NaN")
	}
	// widest scan is returned untouched
	if padded[1] != scans[1] {
		t.Error("widest scan should not be reallocated")
	}
}

func TestPadRejectsMismatchedLines(t *testing.T) {
	scans := []*mat.Dense{
		mat.NewDense(2, 3, nil),
		mat.NewDense(3, 3, nil),
	}
	if _, err := Pad(scans); err == nil {
		t.Error("Pad should reject scans with different line counts")
	}
	if _, err := Pad(nil); err == nil {
		t.Error("Pad should reject an empty scan set")
	}
}

func TestStack(t *testing.T) {
	scans := []*mat.Dense{
		mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6}),
		mat.NewDense(2, 3, []float64{7, 8, 9, 10, 11, 12}),
	}
	block, err := Stack(scans)
	if err != nil {
		t.Fatalf("Stack failed: %v", err)
	}
	if block.Scans != 2 || block.Lines != 2 || block.Width != 3 {
		t.Fatalf("block dims = %v, want [2 2 3]", block.Dims())
	}
	if block.At(0, 1, 2) != 6 {
		t.Errorf("At(0,1,2) = %v, want 6", block.At(0, 1, 2))
	}
	if block.At(1, 0, 0) != 7 {
		t.Errorf("At(1,0,0) = %v, want 7", block.At(1, 0, 0))
	}

	uneven := append(scans, mat.NewDense(2, 4, nil))
	if _, err := Stack(uneven); err == nil {
		t.Error("Stack should reject scans of unequal width")
	}
}

func TestDeltaF(t *testing.T) {
	// 3 lines x 2 scans
	df := mat.NewDense(3, 2, []float64{
		1, 10,
		2, 20,
		3, 30,
	})
	block, err := DeltaF(df)
	if err != nil {
		t.Fatalf("DeltaF failed: %v", err)
	}
	if block.Scans != 2 || block.Lines != 3 || block.Width != 1 {
		t.Fatalf("block dims = %v, want [2 3 1]", block.Dims())
	}
	if block.At(0, 2, 0) != 3 {
		t.Errorf("At(0,2,0) = %v, want 3", block.At(0, 2, 0))
	}
	if block.At(1, 0, 0) != 10 {
		t.Errorf("At(1,0,0) = %v, want 10", block.At(1, 0, 0))
	}
}

func TestMeanTraceIgnoresNaN(t *testing.T) {
	block := &Block{
		Scans: 2,
		Lines: 2,
		Width: 2,
		Data: []float64{
			1, 3, math.NaN(), 5,
			math.NaN(), math.NaN(), math.NaN(), math.NaN(),
		},
	}
	trace := MeanTrace(block)
	if trace[0] != 3 {
		t.Errorf("trace[0] = %v, want 3", trace[0])
	}
	if !math.IsNaN(trace[1]) {
		t.Errorf("trace[1] = %v, want NaN", trace[1])
	}
}
