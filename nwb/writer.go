package nwb

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gonum.org/v1/hdf5"
)

// iso8601 is the timestamp layout pynwb uses for session times.
const iso8601 = "2006-01-02T15:04:05.000000Z07:00"

// Write serializes the file as HDF5 at path, truncating any existing file.
//
// The hdf5 binding exposes attribute creation on datasets but not on groups
// or the file root, and has no soft-link API. Group-level annotations such as
// neurodata_type are therefore stored as member string datasets, and object
// references (device, imaging_plane, electrode) as absolute path strings.
func (f *File) Write(path string) error {
	if err := f.Validate(); err != nil {
		return err
	}

	hf, err := hdf5.CreateFile(path, hdf5.F_ACC_TRUNC)
	if err != nil {
		return errors.Wrapf(err, "nwb: create %s", path)
	}
	defer hf.Close()

	root := &hf.CommonFG
	now := time.Now().Format(iso8601)
	rootStrings := map[string]string{
		"nwb_version":               Version,
		"identifier":                f.Identifier,
		"session_description":       f.SessionDescription,
		"session_start_time":        f.SessionStartTime.Format(iso8601),
		"timestamps_reference_time": f.SessionStartTime.Format(iso8601),
		"object_id":                 uuid.NewString(),
	}
	for name, value := range rootStrings {
		if err := writeString(root, name, value); err != nil {
			return err
		}
	}
	if err := writeStrings(root, "file_create_date", []string{now}); err != nil {
		return err
	}

	for _, empty := range []string{"analysis", "processing", "stimulus"} {
		g, err := root.CreateGroup(empty)
		if err != nil {
			return errors.Wrapf(err, "nwb: create group %s", empty)
		}
		g.Close()
	}

	if err := f.writeGeneral(root); err != nil {
		return err
	}
	return f.writeAcquisition(root)
}

func (f *File) writeGeneral(root *hdf5.CommonFG) error {
	general, err := root.CreateGroup("general")
	if err != nil {
		return errors.Wrap(err, "nwb: create group general")
	}
	defer general.Close()
	fg := &general.CommonFG

	optional := map[string]string{
		"institution": f.Institution,
		"lab":         f.Lab,
		"notes":       f.Notes,
		"session_id":  f.SessionID,
	}
	for name, value := range optional {
		if value == "" {
			continue
		}
		if err := writeString(fg, name, value); err != nil {
			return err
		}
	}
	if len(f.Experimenter) > 0 {
		if err := writeStrings(fg, "experimenter", f.Experimenter); err != nil {
			return err
		}
	}
	if len(f.RelatedPublications) > 0 {
		if err := writeStrings(fg, "related_publications", f.RelatedPublications); err != nil {
			return err
		}
	}

	devices, err := fg.CreateGroup("devices")
	if err != nil {
		return errors.Wrap(err, "nwb: create group devices")
	}
	defer devices.Close()
	for _, d := range f.devices {
		if err := writeDevice(&devices.CommonFG, d); err != nil {
			return err
		}
	}

	if f.Subject != nil {
		if err := writeSubject(fg, f.Subject); err != nil {
			return err
		}
	}

	if len(f.planes) > 0 {
		ophys, err := fg.CreateGroup("optophysiology")
		if err != nil {
			return errors.Wrap(err, "nwb: create group optophysiology")
		}
		defer ophys.Close()
		for _, p := range f.planes {
			if err := writeImagingPlane(&ophys.CommonFG, p); err != nil {
				return err
			}
		}
	}

	if len(f.electrodes) > 0 {
		icephys, err := fg.CreateGroup("intracellular_ephys")
		if err != nil {
			return errors.Wrap(err, "nwb: create group intracellular_ephys")
		}
		defer icephys.Close()
		for _, e := range f.electrodes {
			if err := writeElectrode(&icephys.CommonFG, e); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeDevice(fg *hdf5.CommonFG, d *Device) error {
	g, err := fg.CreateGroup(d.Name)
	if err != nil {
		return errors.Wrapf(err, "nwb: create device %s", d.Name)
	}
	defer g.Close()
	return writeAll(&g.CommonFG, typed("Device", map[string]string{
		"description":  d.Description,
		"manufacturer": d.Manufacturer,
	}))
}

func writeSubject(fg *hdf5.CommonFG, s *Subject) error {
	g, err := fg.CreateGroup("subject")
	if err != nil {
		return errors.Wrap(err, "nwb: create subject")
	}
	defer g.Close()
	fields := typed("Subject", map[string]string{
		"subject_id":  s.SubjectID,
		"age":         s.Age,
		"description": s.Description,
		"species":     s.Species,
		"sex":         s.Sex,
	})
	if s.Strain != "" {
		fields["strain"] = s.Strain
	}
	if s.Weight != "" {
		fields["weight"] = s.Weight
	}
	return writeAll(&g.CommonFG, fields)
}

func writeImagingPlane(fg *hdf5.CommonFG, p *ImagingPlane) error {
	g, err := fg.CreateGroup(p.Name)
	if err != nil {
		return errors.Wrapf(err, "nwb: create imaging plane %s", p.Name)
	}
	defer g.Close()
	pg := &g.CommonFG
	if err := writeAll(pg, typed("ImagingPlane", map[string]string{
		"description": p.Description,
		"indicator":   p.Indicator,
		"location":    p.Location,
		"device":      devicePath(p.Device),
	})); err != nil {
		return err
	}
	if err := writeFloatScalar(pg, "excitation_lambda", p.ExcitationLambda); err != nil {
		return err
	}
	if err := writeFloatScalar(pg, "imaging_rate", p.ImagingRate); err != nil {
		return err
	}

	cg, err := pg.CreateGroup(p.OpticalChannel.Name)
	if err != nil {
		return errors.Wrapf(err, "nwb: create optical channel %s", p.OpticalChannel.Name)
	}
	defer cg.Close()
	if err := writeAll(&cg.CommonFG, typed("OpticalChannel", map[string]string{
		"description": p.OpticalChannel.Description,
	})); err != nil {
		return err
	}
	return writeFloatScalar(&cg.CommonFG, "emission_lambda", p.OpticalChannel.EmissionLambda)
}

func writeElectrode(fg *hdf5.CommonFG, e *Electrode) error {
	g, err := fg.CreateGroup(e.Name)
	if err != nil {
		return errors.Wrapf(err, "nwb: create electrode %s", e.Name)
	}
	defer g.Close()
	return writeAll(&g.CommonFG, typed("IntracellularElectrode", map[string]string{
		"description": e.Description,
		"location":    e.Location,
		"slice":       e.Slice,
		"device":      devicePath(e.Device),
	}))
}

func (f *File) writeAcquisition(root *hdf5.CommonFG) error {
	acq, err := root.CreateGroup("acquisition")
	if err != nil {
		return errors.Wrap(err, "nwb: create group acquisition")
	}
	defer acq.Close()
	fg := &acq.CommonFG

	for _, a := range f.Acquisitions() {
		switch s := a.(type) {
		case *TwoPhotonSeries:
			err = writeTwoPhotonSeries(fg, s)
		case *CurrentClampSeries:
			err = writeCurrentClampSeries(fg, s)
		case *Images:
			err = writeImages(fg, s)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func writeTwoPhotonSeries(fg *hdf5.CommonFG, s *TwoPhotonSeries) error {
	g, err := fg.CreateGroup(s.Name)
	if err != nil {
		return errors.Wrapf(err, "nwb: create series %s", s.Name)
	}
	defer g.Close()
	sg := &g.CommonFG
	if err := writeAll(sg, typed("TwoPhotonSeries", map[string]string{
		"description":   s.Description,
		"comments":      s.Comments,
		"imaging_plane": "/general/optophysiology/" + s.ImagingPlane.Name,
	})); err != nil {
		return err
	}

	dims := []uint{uint(s.Dims[0]), uint(s.Dims[1]), uint(s.Dims[2])}
	data, err := writeFloats(sg, "data", dims, s.Data)
	if err != nil {
		return err
	}
	defer data.Close()
	if err := stringAttr(data, "unit", s.Unit); err != nil {
		return err
	}
	if err := floatAttr(data, "conversion", 1.0); err != nil {
		return err
	}

	start, err := writeFloats(sg, "starting_time", []uint{1}, []float64{s.StartingTime})
	if err != nil {
		return err
	}
	defer start.Close()
	if err := stringAttr(start, "unit", "seconds"); err != nil {
		return err
	}
	if err := floatAttr(start, "rate", s.Rate); err != nil {
		return err
	}

	return writeFloatScalar(sg, "scan_line_rate", s.ScanLineRate)
}

func writeCurrentClampSeries(fg *hdf5.CommonFG, s *CurrentClampSeries) error {
	g, err := fg.CreateGroup(s.Name)
	if err != nil {
		return errors.Wrapf(err, "nwb: create series %s", s.Name)
	}
	defer g.Close()
	sg := &g.CommonFG
	if err := writeAll(sg, typed("CurrentClampSeries", map[string]string{
		"description":          s.Description,
		"comments":             s.Comments,
		"stimulus_description": s.StimulusDescription,
		"electrode":            "/general/intracellular_ephys/" + s.Electrode.Name,
	})); err != nil {
		return err
	}
	if err := writeFloatScalar(sg, "gain", s.Gain); err != nil {
		return err
	}

	data, err := writeFloats(sg, "data", []uint{uint(s.Sweeps), uint(s.Samples)}, s.Data)
	if err != nil {
		return err
	}
	defer data.Close()
	if err := stringAttr(data, "unit", s.Unit); err != nil {
		return err
	}
	if err := floatAttr(data, "conversion", 1.0); err != nil {
		return err
	}

	ts, err := writeFloats(sg, "timestamps", []uint{uint(len(s.Timestamps))}, s.Timestamps)
	if err != nil {
		return err
	}
	defer ts.Close()
	if err := stringAttr(ts, "unit", "seconds"); err != nil {
		return err
	}
	return floatAttr(ts, "interval", 1)
}

func writeImages(fg *hdf5.CommonFG, c *Images) error {
	g, err := fg.CreateGroup(c.Name)
	if err != nil {
		return errors.Wrapf(err, "nwb: create images %s", c.Name)
	}
	defer g.Close()
	sg := &g.CommonFG
	if err := writeAll(sg, typed("Images", map[string]string{
		"description": c.Description,
	})); err != nil {
		return err
	}

	for _, im := range c.Members {
		dims := []uint{uint(im.Height), uint(im.Width)}
		kind := "GrayscaleImage"
		if im.Kind == RGB {
			dims = append(dims, 3)
			kind = "RGBImage"
		}
		dset, err := writeFloats(sg, im.Name, dims, im.Data)
		if err != nil {
			return err
		}
		for name, value := range typed(kind, map[string]string{"description": im.Description}) {
			if err := stringAttr(dset, name, value); err != nil {
				dset.Close()
				return err
			}
		}
		dset.Close()
	}
	return nil
}

func devicePath(d *Device) string {
	return "/general/devices/" + d.Name
}

// typed builds the annotation fields shared by every typed group: the
// neurodata_type, its core namespace, and any type-specific extras.
func typed(neurodataType string, extra map[string]string) map[string]string {
	fields := map[string]string{
		"neurodata_type": neurodataType,
		"namespace":      "core",
	}
	for name, value := range extra {
		fields[name] = value
	}
	return fields
}

// writeAll writes a set of string datasets into one group.
func writeAll(fg *hdf5.CommonFG, fields map[string]string) error {
	for name, value := range fields {
		if err := writeString(fg, name, value); err != nil {
			return err
		}
	}
	return nil
}

func writeString(fg *hdf5.CommonFG, name, value string) error {
	space, err := hdf5.CreateSimpleDataspace([]uint{1}, nil)
	if err != nil {
		return errors.Wrapf(err, "nwb: dataspace for %s", name)
	}
	defer space.Close()
	dset, err := fg.CreateDataset(name, hdf5.T_GO_STRING, space)
	if err != nil {
		return errors.Wrapf(err, "nwb: create dataset %s", name)
	}
	defer dset.Close()
	if err := dset.Write(&value); err != nil {
		return errors.Wrapf(err, "nwb: write dataset %s", name)
	}
	return nil
}

func writeStrings(fg *hdf5.CommonFG, name string, values []string) error {
	space, err := hdf5.CreateSimpleDataspace([]uint{uint(len(values))}, nil)
	if err != nil {
		return errors.Wrapf(err, "nwb: dataspace for %s", name)
	}
	defer space.Close()
	dset, err := fg.CreateDataset(name, hdf5.T_GO_STRING, space)
	if err != nil {
		return errors.Wrapf(err, "nwb: create dataset %s", name)
	}
	defer dset.Close()
	if err := dset.Write(&values); err != nil {
		return errors.Wrapf(err, "nwb: write dataset %s", name)
	}
	return nil
}

func writeFloatScalar(fg *hdf5.CommonFG, name string, value float64) error {
	dset, err := writeFloats(fg, name, []uint{1}, []float64{value})
	if err != nil {
		return err
	}
	return dset.Close()
}

// writeFloats creates and fills a float64 dataset, returning it still open so
// the caller can attach attributes.
func writeFloats(fg *hdf5.CommonFG, name string, dims []uint, values []float64) (*hdf5.Dataset, error) {
	n := uint(1)
	for _, d := range dims {
		n *= d
	}
	if n != uint(len(values)) {
		return nil, errors.Errorf("nwb: dataset %s has %d values for shape %v", name, len(values), dims)
	}
	space, err := hdf5.CreateSimpleDataspace(dims, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "nwb: dataspace for %s", name)
	}
	defer space.Close()
	dset, err := fg.CreateDataset(name, hdf5.T_NATIVE_DOUBLE, space)
	if err != nil {
		return nil, errors.Wrapf(err, "nwb: create dataset %s", name)
	}
	if err := dset.Write(&values); err != nil {
		dset.Close()
		return nil, errors.Wrapf(err, "nwb: write dataset %s", name)
	}
	return dset, nil
}

func stringAttr(dset *hdf5.Dataset, name, value string) error {
	space, err := hdf5.CreateSimpleDataspace([]uint{1}, nil)
	if err != nil {
		return errors.Wrapf(err, "nwb: dataspace for attribute %s", name)
	}
	defer space.Close()
	attr, err := dset.CreateAttribute(name, hdf5.T_GO_STRING, space)
	if err != nil {
		return errors.Wrapf(err, "nwb: create attribute %s", name)
	}
	defer attr.Close()
	if err := attr.Write(&value, hdf5.T_GO_STRING); err != nil {
		return errors.Wrapf(err, "nwb: write attribute %s", name)
	}
	return nil
}

func floatAttr(dset *hdf5.Dataset, name string, value float64) error {
	space, err := hdf5.CreateSimpleDataspace([]uint{1}, nil)
	if err != nil {
		return errors.Wrapf(err, "nwb: dataspace for attribute %s", name)
	}
	defer space.Close()
	attr, err := dset.CreateAttribute(name, hdf5.T_NATIVE_DOUBLE, space)
	if err != nil {
		return errors.Wrapf(err, "nwb: create attribute %s", name)
	}
	defer attr.Close()
	if err := attr.Write(&value, hdf5.T_NATIVE_DOUBLE); err != nil {
		return errors.Wrapf(err, "nwb: write attribute %s", name)
	}
	return nil
}
