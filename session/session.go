// Package session holds the experiment metadata that names and annotates a
// converted recording: project and lab details, the animal, and the imaging
// session itself. Metadata is loaded from a YAML file; fields left out fall
// back to the Bristol linescan protocol values.
package session

import (
	"fmt"
	"time"

	"github.com/creasty/defaults"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Metadata is the full description of one recording session.
type Metadata struct {
	Project Project `mapstructure:"project"`
	Animal  Animal  `mapstructure:"animal"`
	Session Session `mapstructure:"session"`
}

// Project describes the experiment and the lab that ran it.
type Project struct {
	Name           string `mapstructure:"name"`
	Experimenter   string `mapstructure:"experimenter"`
	Institution    string `mapstructure:"institution" default:"University of Bristol"`
	Lab            string `mapstructure:"lab" default:"Jack Mellor lab"`
	Publications   string `mapstructure:"publications" default:"In preparation"`
	BrainArea      string `mapstructure:"brain_area" default:"Hippocampus CA1-2"`
	GreenIndicator string `mapstructure:"green_indicator" default:"Fluo5f"`
	RedIndicator   string `mapstructure:"red_indicator" default:"Alexa594"`
}

// Animal describes the experimental subject.
type Animal struct {
	ID          string  `mapstructure:"id"`
	AgeDays     int     `mapstructure:"age_days" default:"100"`
	Strain      string  `mapstructure:"strain" default:"C57BL/6J"`
	Sex         string  `mapstructure:"sex" default:"M"`
	Species     string  `mapstructure:"species" default:"Mus musculus"`
	WeightGrams float64 `mapstructure:"weight_grams"` // 0 means not recorded
	Description string  `mapstructure:"description" default:"001"`
}

// Age returns the animal age as an ISO 8601 duration, e.g. P100D.
func (a Animal) Age() string {
	return fmt.Sprintf("P%dD", a.AgeDays)
}

// Session describes one slice-and-cell recording session.
type Session struct {
	StartDate   string  `mapstructure:"start_date"`
	SliceNumber int     `mapstructure:"slice_number" default:"1"`
	CellNumber  int     `mapstructure:"cell_number" default:"1"`
	ImagingRate float64 `mapstructure:"imaging_rate"`
	LineRate    float64 `mapstructure:"line_rate" default:"1000"`
	Description string  `mapstructure:"description"`
	Notes       string  `mapstructure:"notes"`
}

// Load reads session metadata from a YAML file, fills defaults and validates.
func Load(path string) (*Metadata, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "session: read config %s", path)
	}
	var m Metadata
	if err := v.Unmarshal(&m); err != nil {
		return nil, errors.Wrapf(err, "session: decode config %s", path)
	}
	if err := m.Fill(); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, errors.Wrapf(err, "session: config %s", path)
	}
	return &m, nil
}

// Fill populates unset fields with protocol defaults.
func (m *Metadata) Fill() error {
	if err := defaults.Set(m); err != nil {
		return errors.Wrap(err, "session: set defaults")
	}
	if m.Session.ImagingRate == 0 {
		// a 1 s linescan every 21 s
		m.Session.ImagingRate = 1.0 / 21.0
	}
	return nil
}

// Validate rejects metadata that cannot produce a well-formed output file.
func (m *Metadata) Validate() error {
	if m.Animal.ID == "" {
		return errors.New("animal id is required")
	}
	if _, err := m.Start(); err != nil {
		return err
	}
	if m.Session.SliceNumber < 1 || m.Session.CellNumber < 1 {
		return errors.Errorf("slice %d and cell %d numbers must be positive",
			m.Session.SliceNumber, m.Session.CellNumber)
	}
	if m.Session.ImagingRate <= 0 {
		return errors.Errorf("imaging rate %v must be positive", m.Session.ImagingRate)
	}
	if m.Session.LineRate <= 0 {
		return errors.Errorf("line rate %v must be positive", m.Session.LineRate)
	}
	return nil
}

// Start parses the session start date.
func (m *Metadata) Start() (time.Time, error) {
	t, err := time.Parse("2006-01-02", m.Session.StartDate)
	if err != nil {
		return time.Time{}, errors.Errorf("start date %q is not YYYY-MM-DD", m.Session.StartDate)
	}
	return t, nil
}

// datePart is the yymmdd fragment used in session IDs and file names. The
// start date must already have passed Validate; an unparseable date formats
// the zero time.
func (m *Metadata) datePart() string {
	t, _ := m.Start()
	return t.Format("060102")
}

// SessionID derives the session identifier
// <animal>_<yymmdd>_s<slice>_c<cell>, e.g. m1_201204_s2_c1.
// Validate must succeed first; only the parsed start date feeds the yymmdd
// fragment.
func (m *Metadata) SessionID() string {
	return fmt.Sprintf("%s_%s_s%d_c%d",
		m.Animal.ID, m.datePart(), m.Session.SliceNumber, m.Session.CellNumber)
}

// InputFile names the analysed recording file for one dendritic region, where
// code is the Bot/Mid/Top fragment of the lab's naming scheme.
func (m *Metadata) InputFile(code string) string {
	return fmt.Sprintf("%s__s%dd%d_004_ED__1 %sden_Analysed.mat",
		m.datePart(), m.Session.SliceNumber, m.Session.CellNumber, code)
}

// OutputFile names the converted file, <SessionID>.nwb.
func (m *Metadata) OutputFile() string {
	return m.SessionID() + ".nwb"
}
