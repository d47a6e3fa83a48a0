package uvdata

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDescriptor is the sentinel matched by every DescriptorError.
var ErrDescriptor = errors.New("invalid dataset descriptor")

// DescriptorError reports metadata that is unreadable or inconsistent.
// It is fatal and always raised before any batch is read.
type DescriptorError struct {
	// Path is the offending file, empty when the problem spans the set.
	Path   string
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *DescriptorError) Error() string {
	var b strings.Builder
	b.WriteString("descriptor")
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *DescriptorError) Unwrap() error {
	return e.Err
}

// Is matches ErrDescriptor.
func (e *DescriptorError) Is(target error) bool {
	return target == ErrDescriptor
}

func descriptorError(path, reason string, err error) *DescriptorError {
	return &DescriptorError{Path: path, Reason: reason, Err: err}
}

// Format names for Descriptor.Format.
const (
	FormatGPUBoxFloat = "gpubox-float32"
	FormatGPUBoxInt   = "gpubox-int32"
)

// Bytes per visibility cell: a complex64 plus one flag byte.
const (
	complexBytes = 8
	flagBytes    = 1
	cellBytes    = complexBytes + flagBytes
)

// Polarisations per baseline in a gpubox correlator dump.
const polarisations = 4

// Observation is one obsid's contribution to a dataset.
type Observation struct {
	ObsID    string   `json:"obsid" yaml:"obsid"`
	Metafits string   `json:"metafits" yaml:"metafits"`
	Files    []string `json:"files" yaml:"files"`
	Records  int      `json:"records" yaml:"records"`
	StartGPS float64  `json:"start_gps" yaml:"start_gps"`
}

// Descriptor describes the shape of a dataset without holding any of its
// data. A record is one integration across every coarse-channel file.
// Descriptors are built once by a Processor and never mutated.
type Descriptor struct {
	Format          string        `json:"format" yaml:"format"`
	Observations    []Observation `json:"observations" yaml:"observations"`
	RecordCount     int           `json:"record_count" yaml:"record_count"`
	RecordBytes     int64         `json:"record_bytes" yaml:"record_bytes"`
	Rows            int           `json:"rows" yaml:"rows"`
	Antennas        int           `json:"antennas" yaml:"antennas"`
	Channels        int           `json:"channels" yaml:"channels"`
	ChannelsPerFile int           `json:"channels_per_file" yaml:"channels_per_file"`
	IntegrationTime float64       `json:"integration_time" yaml:"integration_time"`
	BitPix          int           `json:"bitpix" yaml:"bitpix"`
	OrderingKey     string        `json:"ordering_key" yaml:"ordering_key"`
}

// CoarseChannels returns the number of coarse-channel files per record.
func (d *Descriptor) CoarseChannels() int {
	if d.ChannelsPerFile == 0 {
		return 0
	}
	return d.Channels / d.ChannelsPerFile
}

// TotalBytes returns the in-memory size of the whole dataset.
func (d *Descriptor) TotalBytes() int64 {
	return int64(d.RecordCount) * d.RecordBytes
}

// Validate checks the invariants every descriptor must hold.
func (d *Descriptor) Validate() error {
	switch {
	case d.RecordCount <= 0:
		return descriptorError("", fmt.Sprintf("record count must be positive, got %d", d.RecordCount), nil)
	case d.RecordBytes <= 0:
		return descriptorError("", fmt.Sprintf("record size must be positive, got %d", d.RecordBytes), nil)
	case d.Rows <= 0 || d.Channels <= 0:
		return descriptorError("", fmt.Sprintf("empty record shape %dx%d", d.Rows, d.Channels), nil)
	case d.OrderingKey == "":
		return descriptorError("", "ordering key is empty", nil)
	}

	total := 0
	for _, obs := range d.Observations {
		total += obs.Records
	}
	if total != d.RecordCount {
		return descriptorError("", fmt.Sprintf("observations hold %d records, descriptor declares %d", total, d.RecordCount), nil)
	}
	return nil
}

// locate maps a dataset-wide record index to an observation and the
// record's index within it.
func (d *Descriptor) locate(record int) (int, int) {
	for i, obs := range d.Observations {
		if record < obs.Records {
			return i, record
		}
		record -= obs.Records
	}
	return -1, -1
}

// baselineRows returns the visibility rows for nInputs correlator inputs
// (two per antenna) including autocorrelations.
func baselineRows(nInputs int) (int, int) {
	nAnt := nInputs / 2
	baselines := nAnt * (nAnt + 1) / 2
	return nAnt, baselines * polarisations
}

func orderingKey(obsIDs []string, startGPS float64, files int) string {
	return fmt.Sprintf("%s/gps=%.0f/files=%d", strings.Join(obsIDs, "+"), startGPS, files)
}
