// Package convert turns analysed Bristol linescan recordings into a single
// NWB file: six two-photon series (green and red indicator per region), a
// delta-fluorescence series per region, the neuron and dendrite reference
// images, and the paired somatic current clamp sweeps.
package convert

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/dervinism/convert2nwbCaImg/nwb"
	"github.com/dervinism/convert2nwbCaImg/session"
)

// Options controls a conversion run.
type Options struct {
	// DataDir holds the analysed MAT-files.
	DataDir string
	// OutPath overrides the derived <SessionID>.nwb output name.
	OutPath string
	// Dendrites restricts the run to a subset of region ids; empty means all.
	Dendrites []string
	// Logger receives progress events. Nil disables logging.
	Logger *zap.Logger
}

func (o *Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

func (o *Options) dendrites() ([]Dendrite, error) {
	if len(o.Dendrites) == 0 {
		return Dendrites, nil
	}
	// preserve recording order regardless of flag order
	want := make(map[string]bool, len(o.Dendrites))
	for _, id := range o.Dendrites {
		if _, err := DendriteByID(id); err != nil {
			return nil, err
		}
		want[id] = true
	}
	var out []Dendrite
	for _, d := range Dendrites {
		if want[d.ID] {
			out = append(out, d)
		}
	}
	return out, nil
}

// Run loads every requested region, assembles the NWB model and writes it
// out. It returns the path of the written file.
func Run(ctx context.Context, meta *session.Metadata, opts Options) (string, error) {
	dendrites, err := opts.dendrites()
	if err != nil {
		return "", err
	}
	log := opts.logger()

	rois, err := loadAll(ctx, meta, opts.DataDir, dendrites, log)
	if err != nil {
		return "", err
	}

	file, err := Assemble(meta, rois)
	if err != nil {
		return "", err
	}

	out := opts.OutPath
	if out == "" {
		out = meta.OutputFile()
	}
	log.Info("writing NWB file",
		zap.String("path", out),
		zap.Int("acquisitions", len(file.Acquisitions())))
	if err := file.Write(out); err != nil {
		return "", err
	}
	return out, nil
}

// loadAll reads the region files concurrently; each region parses and
// reshapes independently.
func loadAll(ctx context.Context, meta *session.Metadata, dir string, dendrites []Dendrite, log *zap.Logger) ([]*ROI, error) {
	type result struct {
		index int
		roi   *ROI
		err   error
	}

	var wg sync.WaitGroup
	results := make(chan result)
	wg.Add(len(dendrites))
	for i, d := range dendrites {
		go func(i int, d Dendrite) {
			defer wg.Done()
			name := meta.InputFile(d.Code)
			log.Debug("loading region", zap.String("dendrite", d.ID), zap.String("file", name))
			roi, err := LoadROI(dir, name, d)
			results <- result{index: i, roi: roi, err: err}
		}(i, d)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	rois := make([]*ROI, len(dendrites))
	var firstErr error
	for r := range results {
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		rois[r.index] = r.roi
		log.Info("loaded region",
			zap.String("dendrite", r.roi.Dendrite.ID),
			zap.Int("linescans", r.roi.Frames()))
	}
	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return rois, nil
}

// Assemble builds the in-memory NWB file from loaded regions. Regions must be
// in recording order; sweep ranges of the current clamp series are assigned
// contiguously from each region's own linescan count.
func Assemble(meta *session.Metadata, rois []*ROI) (*nwb.File, error) {
	if len(rois) == 0 {
		return nil, errors.New("convert: no regions to assemble")
	}
	start, err := meta.Start()
	if err != nil {
		return nil, err
	}

	file := nwb.NewFile(meta.SessionID(), meta.Session.Description, start)
	file.SessionID = meta.SessionID()
	file.Institution = meta.Project.Institution
	file.Lab = meta.Project.Lab
	file.Notes = meta.Session.Notes
	if meta.Project.Experimenter != "" {
		file.Experimenter = []string{meta.Project.Experimenter}
	}
	if meta.Project.Publications != "" {
		file.RelatedPublications = []string{meta.Project.Publications}
	}
	file.Subject = &nwb.Subject{
		SubjectID:   meta.Animal.ID,
		Age:         meta.Animal.Age(),
		Description: meta.Animal.Description,
		Species:     meta.Animal.Species,
		Sex:         meta.Animal.Sex,
		Strain:      meta.Animal.Strain,
	}
	if meta.Animal.WeightGrams > 0 {
		file.Subject.Weight = fmt.Sprintf("%g g", meta.Animal.WeightGrams)
	}

	scope := file.CreateDevice("2P_microscope", "Two-photon microscope", "Scientifica")
	green, red, err := createImagingPlanes(file, meta, scope)
	if err != nil {
		return nil, err
	}

	for _, roi := range rois {
		if err := addTwoPhoton(file, meta, roi, green, meta.Project.GreenIndicator, "Green", roi.Green); err != nil {
			return nil, err
		}
		if err := addTwoPhoton(file, meta, roi, red, meta.Project.RedIndicator, "Red", roi.Red); err != nil {
			return nil, err
		}
		if err := addDeltaF(file, meta, roi, red); err != nil {
			return nil, err
		}
	}

	if err := addImages(file, rois); err != nil {
		return nil, err
	}

	amp := file.CreateDevice("Amplifier_Multiclamp_700A",
		"Amplifier for recording current clamp data.", "Molecular Devices")
	electrode, err := file.CreateIcephysElectrode(nwb.Electrode{
		Name:        "icephys_electrode",
		Description: "A patch clamp electrode",
		Location:    "Cell soma in " + meta.Project.BrainArea,
		Slice:       fmt.Sprintf("slice #%d", meta.Session.SliceNumber),
		Device:      amp,
	})
	if err != nil {
		return nil, err
	}
	if err := addCurrentClamp(file, meta, rois, electrode); err != nil {
		return nil, err
	}

	if err := file.Validate(); err != nil {
		return nil, err
	}
	return file, nil
}

func createImagingPlanes(file *nwb.File, meta *session.Metadata, scope *nwb.Device) (green, red *nwb.ImagingPlane, err error) {
	green, err = file.CreateImagingPlane(nwb.ImagingPlane{
		Name: "green_imaging_plane",
		OpticalChannel: nwb.OpticalChannel{
			Name:           "OpticalChannel",
			Description:    "green channel corresponding to " + meta.Project.GreenIndicator,
			EmissionLambda: 516,
		},
		Device:           scope,
		Description:      "The plane for imaging calcium indicator " + meta.Project.GreenIndicator + ".",
		ImagingRate:      meta.Session.ImagingRate,
		ExcitationLambda: 810,
		Indicator:        meta.Project.GreenIndicator,
		Location:         meta.Project.BrainArea,
	})
	if err != nil {
		return nil, nil, err
	}
	red, err = file.CreateImagingPlane(nwb.ImagingPlane{
		Name: "red_imaging_plane",
		OpticalChannel: nwb.OpticalChannel{
			Name:           "OpticalChannel",
			Description:    "red channel corresponding to " + meta.Project.RedIndicator,
			EmissionLambda: 616,
		},
		Device:           scope,
		Description:      "The plane for imaging calcium indicator " + meta.Project.RedIndicator + ".",
		ImagingRate:      meta.Session.ImagingRate,
		ExcitationLambda: 810,
		Indicator:        meta.Project.RedIndicator,
		Location:         meta.Project.BrainArea,
	})
	if err != nil {
		return nil, nil, err
	}
	return green, red, nil
}
