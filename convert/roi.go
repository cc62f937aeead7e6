package convert

import (
	"path/filepath"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/dervinism/convert2nwbCaImg/linescan"
	"github.com/dervinism/convert2nwbCaImg/matfile"
)

// Dendrite identifies one imaged dendritic region of interest.
type Dendrite struct {
	ID     string // bottom, middle, top
	Code   string // Bot, Mid, Top fragment of the analysed file name
	Suffix string // numeric suffix of the series names
}

// Dendrites lists the three imaged regions in recording order.
var Dendrites = []Dendrite{
	{ID: "bottom", Code: "Bot", Suffix: "1"},
	{ID: "middle", Code: "Mid", Suffix: "2"},
	{ID: "top", Code: "Top", Suffix: "3"},
}

// DendriteByID resolves a region by its id.
func DendriteByID(id string) (Dendrite, error) {
	for _, d := range Dendrites {
		if d.ID == id {
			return d, nil
		}
	}
	return Dendrite{}, errors.Errorf("convert: unknown dendrite %q", id)
}

// ROI is the analysed data of one dendritic region, reshaped for acquisition
// series.
type ROI struct {
	Dendrite Dendrite

	Green  *linescan.Block // denoised green indicator linescans
	Red    *linescan.Block // denoised red indicator linescans
	DeltaF *linescan.Block // width-averaged delta fluorescence

	Neuron   []float64 // RGB image of the full neuron, row-major interleaved
	NeuronH  int
	NeuronW  int
	ROIImage *mat.Dense // grayscale image of the dendrite

	EphysTime []float64  // within-sweep time base, ms
	Ephys     *mat.Dense // sweeps x samples
}

// Frames returns the number of linescans recorded at this region.
func (r *ROI) Frames() int {
	return r.Green.Scans
}

// LoadROI reads one region's analysed MAT-file from dir.
func LoadROI(dir string, name string, d Dendrite) (*ROI, error) {
	path := filepath.Join(dir, name)
	f, err := matfile.Open(path)
	if err != nil {
		return nil, err
	}
	analysed, err := f.Array("Analysed_data")
	if err != nil {
		return nil, errors.Wrapf(err, "convert: %s", path)
	}

	roi := &ROI{Dendrite: d}
	if roi.Green, err = loadLinescans(analysed, "Flur5_denoised"); err != nil {
		return nil, errors.Wrapf(err, "convert: %s", path)
	}
	if roi.Red, err = loadLinescans(analysed, "Alexa_denoised"); err != nil {
		return nil, errors.Wrapf(err, "convert: %s", path)
	}

	df, err := fieldMatrix(analysed, "Calcium_deltaF")
	if err != nil {
		return nil, errors.Wrapf(err, "convert: %s", path)
	}
	if roi.DeltaF, err = linescan.DeltaF(df); err != nil {
		return nil, errors.Wrapf(err, "convert: %s", path)
	}

	if err := loadNeuronImage(analysed, roi); err != nil {
		return nil, errors.Wrapf(err, "convert: %s", path)
	}
	if roi.ROIImage, err = fieldMatrix(analysed, "ROI_img"); err != nil {
		return nil, errors.Wrapf(err, "convert: %s", path)
	}

	ephysTime, err := analysed.Field("Ephys_Time")
	if err != nil {
		return nil, errors.Wrapf(err, "convert: %s", path)
	}
	if roi.EphysTime, err = ephysTime.Floats(); err != nil {
		return nil, errors.Wrapf(err, "convert: %s", path)
	}

	ephys, err := fieldMatrix(analysed, "Ephys_data")
	if err != nil {
		return nil, errors.Wrapf(err, "convert: %s", path)
	}
	// stored samples x sweeps; series want sweep-major rows
	var sweeps mat.Dense
	sweeps.CloneFrom(ephys.T())
	roi.Ephys = &sweeps

	if _, c := roi.Ephys.Dims(); c != len(roi.EphysTime) {
		return nil, errors.Errorf("convert: %s: %d ephys samples per sweep but %d timestamps",
			path, c, len(roi.EphysTime))
	}
	return roi, nil
}

// loadLinescans pads a cell array of ragged linescans and stacks it into a
// block.
func loadLinescans(analysed *matfile.Array, field string) (*linescan.Block, error) {
	arr, err := analysed.Field(field)
	if err != nil {
		return nil, err
	}
	n, err := arr.NumCells()
	if err != nil {
		return nil, errors.Wrapf(err, "field %s", field)
	}
	scans := make([]*mat.Dense, n)
	for i := 0; i < n; i++ {
		cell, err := arr.Cell(i)
		if err != nil {
			return nil, err
		}
		if scans[i], err = cell.Matrix(); err != nil {
			return nil, errors.Wrapf(err, "field %s scan %d", field, i)
		}
	}
	padded, err := linescan.Pad(scans)
	if err != nil {
		return nil, errors.Wrapf(err, "field %s", field)
	}
	return linescan.Stack(padded)
}

func fieldMatrix(analysed *matfile.Array, field string) (*mat.Dense, error) {
	arr, err := analysed.Field(field)
	if err != nil {
		return nil, err
	}
	m, err := arr.Matrix()
	if err != nil {
		return nil, errors.Wrapf(err, "field %s", field)
	}
	return m, nil
}

func loadNeuronImage(analysed *matfile.Array, roi *ROI) error {
	arr, err := analysed.Field("Neuron")
	if err != nil {
		return err
	}
	dims := arr.Dims()
	if len(dims) != 3 || dims[2] != 3 {
		return errors.Errorf("field Neuron has shape %v, want height x width x 3", dims)
	}
	roi.NeuronH, roi.NeuronW = dims[0], dims[1]
	roi.Neuron = make([]float64, dims[0]*dims[1]*3)
	for h := 0; h < dims[0]; h++ {
		for w := 0; w < dims[1]; w++ {
			for c := 0; c < 3; c++ {
				roi.Neuron[(h*dims[1]+w)*3+c] = arr.At(h, w, c)
			}
		}
	}
	return nil
}
