// Package nwb is an in-memory model of a Neurodata Without Borders 2.x file,
// covering the subset of neurodata types needed for two-photon linescan
// acquisitions with paired current clamp recordings, and a writer that lays
// the model out as HDF5. The type and group layout follows the NWB core
// schema, https://nwb-schema.readthedocs.io/en/latest/.
package nwb

import (
	"time"

	"github.com/pkg/errors"
)

// Version is the nwb_version recorded in written files.
const Version = "2.6.0"

// File is the root NWB container.
type File struct {
	Identifier          string
	SessionDescription  string
	SessionStartTime    time.Time
	SessionID           string
	Experimenter        []string
	Institution         string
	Lab                 string
	RelatedPublications []string
	Notes               string

	Subject *Subject

	devices    []*Device
	planes     []*ImagingPlane
	electrodes []*Electrode

	acqOrder []string
	acq      map[string]Acquisition
}

// NewFile builds a root container with the three required fields.
func NewFile(identifier, sessionDescription string, start time.Time) *File {
	return &File{
		Identifier:         identifier,
		SessionDescription: sessionDescription,
		SessionStartTime:   start,
		acq:                make(map[string]Acquisition),
	}
}

// Subject describes the experimental animal.
type Subject struct {
	SubjectID   string
	Age         string // ISO 8601 duration
	Description string
	Species     string
	Sex         string
	Strain      string
	Weight      string // empty when not recorded
}

// Device is a recording or imaging instrument.
type Device struct {
	Name         string
	Description  string
	Manufacturer string
}

// CreateDevice registers an instrument under /general/devices.
func (f *File) CreateDevice(name, description, manufacturer string) *Device {
	d := &Device{Name: name, Description: description, Manufacturer: manufacturer}
	f.devices = append(f.devices, d)
	return d
}

// OpticalChannel is one detection channel of an imaging plane.
type OpticalChannel struct {
	Name           string
	Description    string
	EmissionLambda float64 // nm
}

// ImagingPlane describes the imaged volume for one indicator.
type ImagingPlane struct {
	Name             string
	OpticalChannel   OpticalChannel
	Device           *Device
	Description      string
	ImagingRate      float64 // Hz
	ExcitationLambda float64 // nm
	Indicator        string
	Location         string
}

// CreateImagingPlane registers a plane under /general/optophysiology.
func (f *File) CreateImagingPlane(p ImagingPlane) (*ImagingPlane, error) {
	if p.Name == "" {
		return nil, errors.New("nwb: imaging plane needs a name")
	}
	if p.Device == nil {
		return nil, errors.Errorf("nwb: imaging plane %q has no device", p.Name)
	}
	for _, have := range f.planes {
		if have.Name == p.Name {
			return nil, errors.Errorf("nwb: duplicate imaging plane %q", p.Name)
		}
	}
	plane := p
	f.planes = append(f.planes, &plane)
	return &plane, nil
}

// Electrode is an intracellular patch electrode.
type Electrode struct {
	Name        string
	Description string
	Location    string
	Slice       string
	Device      *Device
}

// CreateIcephysElectrode registers an electrode under
// /general/intracellular_ephys.
func (f *File) CreateIcephysElectrode(e Electrode) (*Electrode, error) {
	if e.Name == "" {
		return nil, errors.New("nwb: electrode needs a name")
	}
	if e.Device == nil {
		return nil, errors.Errorf("nwb: electrode %q has no device", e.Name)
	}
	for _, have := range f.electrodes {
		if have.Name == e.Name {
			return nil, errors.Errorf("nwb: duplicate electrode %q", e.Name)
		}
	}
	electrode := e
	f.electrodes = append(f.electrodes, &electrode)
	return &electrode, nil
}

// Acquisition is any container stored under /acquisition.
type Acquisition interface {
	AcquisitionName() string
}

// AddAcquisition stores a container under /acquisition. Names are unique
// within a file.
func (f *File) AddAcquisition(a Acquisition) error {
	name := a.AcquisitionName()
	if name == "" {
		return errors.New("nwb: acquisition needs a name")
	}
	if _, dup := f.acq[name]; dup {
		return errors.Errorf("nwb: duplicate acquisition %q", name)
	}
	f.acq[name] = a
	f.acqOrder = append(f.acqOrder, name)
	return nil
}

// Acquisitions returns the stored containers in insertion order.
func (f *File) Acquisitions() []Acquisition {
	out := make([]Acquisition, 0, len(f.acqOrder))
	for _, name := range f.acqOrder {
		out = append(out, f.acq[name])
	}
	return out
}

// TwoPhotonSeries is a 3-D imaging acquisition: scans, then lines, then the
// samples across the scanned segment.
type TwoPhotonSeries struct {
	Name         string
	Description  string
	Comments     string
	ImagingPlane *ImagingPlane
	StartingTime float64 // s
	Rate         float64 // Hz
	ScanLineRate float64 // Hz
	Unit         string
	Data         []float64
	Dims         [3]int
}

func (s *TwoPhotonSeries) AcquisitionName() string { return s.Name }

func (s *TwoPhotonSeries) validate() error {
	if s.ImagingPlane == nil {
		return errors.Errorf("nwb: series %q has no imaging plane", s.Name)
	}
	if n := s.Dims[0] * s.Dims[1] * s.Dims[2]; n != len(s.Data) {
		return errors.Errorf("nwb: series %q has %d samples for shape %v", s.Name, len(s.Data), s.Dims)
	}
	if s.Rate <= 0 {
		return errors.Errorf("nwb: series %q has rate %v", s.Name, s.Rate)
	}
	return nil
}

// CurrentClampSeries is a set of somatic current clamp sweeps sharing one
// within-sweep time base.
type CurrentClampSeries struct {
	Name                string
	Description         string
	Comments            string
	Electrode           *Electrode
	StimulusDescription string
	Unit                string
	Gain                float64
	Sweeps              int
	Samples             int
	Data                []float64 // sweep-major
	Timestamps          []float64 // s, one per sample within a sweep
}

func (s *CurrentClampSeries) AcquisitionName() string { return s.Name }

func (s *CurrentClampSeries) validate() error {
	if s.Electrode == nil {
		return errors.Errorf("nwb: series %q has no electrode", s.Name)
	}
	if s.Sweeps*s.Samples != len(s.Data) {
		return errors.Errorf("nwb: series %q has %d samples for %d sweeps of %d", s.Name, len(s.Data), s.Sweeps, s.Samples)
	}
	if len(s.Timestamps) != s.Samples {
		return errors.Errorf("nwb: series %q has %d timestamps for %d samples", s.Name, len(s.Timestamps), s.Samples)
	}
	return nil
}

// ImageKind distinguishes the stored image neurodata types.
type ImageKind int

const (
	Grayscale ImageKind = iota
	RGB
)

// Image is one reference image, grayscale (height x width) or RGB
// (height x width x 3).
type Image struct {
	Name        string
	Description string
	Kind        ImageKind
	Height      int
	Width       int
	Data        []float64 // row-major; RGB interleaved
}

func (im *Image) samples() int {
	if im.Kind == RGB {
		return im.Height * im.Width * 3
	}
	return im.Height * im.Width
}

func (im *Image) validate() error {
	if len(im.Data) != im.samples() {
		return errors.Errorf("nwb: image %q has %d samples for %dx%d", im.Name, len(im.Data), im.Height, im.Width)
	}
	return nil
}

// Images is an ordered collection of reference images.
type Images struct {
	Name        string
	Description string
	Members     []*Image
}

func (c *Images) AcquisitionName() string { return c.Name }

func (c *Images) validate() error {
	seen := make(map[string]bool, len(c.Members))
	for _, im := range c.Members {
		if seen[im.Name] {
			return errors.Errorf("nwb: duplicate image %q in %q", im.Name, c.Name)
		}
		seen[im.Name] = true
		if err := im.validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks cross references and shapes before writing.
func (f *File) Validate() error {
	if f.Identifier == "" {
		return errors.New("nwb: file needs an identifier")
	}
	if f.SessionStartTime.IsZero() {
		return errors.New("nwb: file needs a session start time")
	}
	havePlane := make(map[*ImagingPlane]bool, len(f.planes))
	for _, p := range f.planes {
		havePlane[p] = true
	}
	haveElectrode := make(map[*Electrode]bool, len(f.electrodes))
	for _, e := range f.electrodes {
		haveElectrode[e] = true
	}
	haveDevice := make(map[*Device]bool, len(f.devices))
	for _, d := range f.devices {
		haveDevice[d] = true
	}
	for _, p := range f.planes {
		if !haveDevice[p.Device] {
			return errors.Errorf("nwb: imaging plane %q uses an unregistered device", p.Name)
		}
	}
	for _, e := range f.electrodes {
		if !haveDevice[e.Device] {
			return errors.Errorf("nwb: electrode %q uses an unregistered device", e.Name)
		}
	}
	for _, name := range f.acqOrder {
		switch a := f.acq[name].(type) {
		case *TwoPhotonSeries:
			if err := a.validate(); err != nil {
				return err
			}
			if !havePlane[a.ImagingPlane] {
				return errors.Errorf("nwb: series %q uses an unregistered imaging plane", a.Name)
			}
		case *CurrentClampSeries:
			if err := a.validate(); err != nil {
				return err
			}
			if !haveElectrode[a.Electrode] {
				return errors.Errorf("nwb: series %q uses an unregistered electrode", a.Name)
			}
		case *Images:
			if err := a.validate(); err != nil {
				return err
			}
		default:
			return errors.Errorf("nwb: unsupported acquisition type %T", a)
		}
	}
	return nil
}
