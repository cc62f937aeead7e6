package convert

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/dervinism/convert2nwbCaImg/linescan"
	"github.com/dervinism/convert2nwbCaImg/nwb"
	"github.com/dervinism/convert2nwbCaImg/session"
)

// addTwoPhoton stores one region's linescans for one indicator, e.g.
// TwoPhotonSeriesGreen1 for the green indicator at the bottom dendrite.
func addTwoPhoton(file *nwb.File, meta *session.Metadata, roi *ROI,
	plane *nwb.ImagingPlane, indicator, channel string, block *linescan.Block) error {
	comments := fmt.Sprintf("This two-photon series contains %s linescans of the %s (ROI) "+
		"with the first dimension corresponding to time (or to individual linescans). "+
		"The second dimension corresponds to individual lines spanning the length of the "+
		"dendrite in the ROI. The third dimension corresponds to the width of the dendrite. "+
		"Some linescans may contain appended NaN values to make widths of different "+
		"linescans be equal within the same ROI.   data_continuity = step",
		indicator, roi.Dendrite.ID)
	return file.AddAcquisition(&nwb.TwoPhotonSeries{
		Name:         "TwoPhotonSeries" + channel + roi.Dendrite.Suffix,
		Description:  fmt.Sprintf("%s linescans of the %s dendrite", indicator, roi.Dendrite.ID),
		Comments:     comments,
		ImagingPlane: plane,
		StartingTime: 0,
		Rate:         meta.Session.ImagingRate,
		ScanLineRate: meta.Session.LineRate,
		Unit:         "a.u.",
		Data:         block.Data,
		Dims:         [3]int{block.Scans, block.Lines, block.Width},
	})
}

// addDeltaF stores a region's width-averaged delta fluorescence, e.g.
// TwoPhotonDeltaFSeries1.
func addDeltaF(file *nwb.File, meta *session.Metadata, roi *ROI, plane *nwb.ImagingPlane) error {
	comments := fmt.Sprintf("This two-photon series contains delta F data calculated based on "+
		"%s for the %s (ROI) with the first dimension corresponding to time (or to "+
		"individual linescans). The second dimension corresponds to individual lines "+
		"spanning the length of the dendrite in the ROI. The data is averaged across "+
		"the dendritic width.   data_continuity = step",
		meta.Project.RedIndicator, roi.Dendrite.ID)
	return file.AddAcquisition(&nwb.TwoPhotonSeries{
		Name: "TwoPhotonDeltaFSeries" + roi.Dendrite.Suffix,
		Description: fmt.Sprintf("Delta F data for the %s calculated based on %s.",
			roi.Dendrite.ID, meta.Project.RedIndicator),
		Comments:     comments,
		ImagingPlane: plane,
		StartingTime: 0,
		Rate:         meta.Session.ImagingRate,
		ScanLineRate: meta.Session.LineRate,
		Unit:         "normalised",
		Data:         roi.DeltaF.Data,
		Dims:         [3]int{roi.DeltaF.Scans, roi.DeltaF.Lines, roi.DeltaF.Width},
	})
}

// addImages stores the full-neuron RGB image from the first region and one
// grayscale image per region.
func addImages(file *nwb.File, rois []*ROI) error {
	collection := &nwb.Images{
		Name:        "ImageCollection",
		Description: "A collection of neuron and dendrite images.",
		Members: []*nwb.Image{{
			Name:        "neuron_image",
			Description: "RGB image of the full neuron.",
			Kind:        nwb.RGB,
			Height:      rois[0].NeuronH,
			Width:       rois[0].NeuronW,
			Data:        rois[0].Neuron,
		}},
	}
	for _, roi := range rois {
		h, w := roi.ROIImage.Dims()
		data := make([]float64, 0, h*w)
		for r := 0; r < h; r++ {
			data = append(data, roi.ROIImage.RawRowView(r)...)
		}
		collection.Members = append(collection.Members, &nwb.Image{
			Name:        fmt.Sprintf("dendrite%s_image", roi.Dendrite.Suffix),
			Description: fmt.Sprintf("Grayscale image of the %s dendrite.", roi.Dendrite.ID),
			Kind:        nwb.Grayscale,
			Height:      h,
			Width:       w,
			Data:        data,
		})
	}
	return file.AddAcquisition(collection)
}

// addCurrentClamp partitions the somatic sweeps across regions and stores one
// CurrentClampSeries per region. Region i takes the sweeps recorded while its
// own linescans ran: a contiguous range sized by its linescan count,
// offset by the counts of the regions before it.
func addCurrentClamp(file *nwb.File, meta *session.Metadata, rois []*ROI, electrode *nwb.Electrode) error {
	offset := 0
	for _, roi := range rois {
		frames := roi.Frames()
		total, samples := roi.Ephys.Dims()
		if offset+frames > total {
			return errors.Errorf("convert: %s dendrite needs sweeps [%d,%d) but only %d were recorded",
				roi.Dendrite.ID, offset, offset+frames, total)
		}

		data := make([]float64, 0, frames*samples)
		for s := offset; s < offset+frames; s++ {
			data = append(data, roi.Ephys.RawRowView(s)...)
		}
		timestamps := make([]float64, len(roi.EphysTime))
		for i, t := range roi.EphysTime {
			timestamps[i] = t / 1000 // ms to s
		}

		description := fmt.Sprintf("Somatic current clamp recording corresponding to "+
			"the initial part of the calcium imaging period at %s dendrite.", roi.Dendrite.ID)
		comments := description + " The first dimension corresponds to individual " +
			"recording sweeps. The second dimension corresponds to individual sweep " +
			"data samples. The associated timestamps variable provides timestamps for " +
			"the second dimension.   data_continuity = step.   " +
			fmt.Sprintf("rate = %v", meta.Session.ImagingRate)

		err := file.AddAcquisition(&nwb.CurrentClampSeries{
			Name:                "CurrentClampSeries" + roi.Dendrite.Suffix,
			Description:         description,
			Comments:            comments,
			Electrode:           electrode,
			StimulusDescription: "N/A",
			Unit:                "millivolt",
			Gain:                1,
			Sweeps:              frames,
			Samples:             samples,
			Data:                data,
			Timestamps:          timestamps,
		})
		if err != nil {
			return err
		}
		offset += frames
	}
	return nil
}
