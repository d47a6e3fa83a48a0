package uvdata

import (
	"fmt"
	"os"
)

// Metafits holds the observation parameters read from a metafits primary
// header.
type Metafits struct {
	Path            string
	ObsID           string
	GPSTime         float64
	IntegrationTime float64
	Inputs          int
	Channels        int
	Scans           int
}

// ReadMetafits parses the primary header of a metafits file. OBSID falls
// back to the file name when absent.
func ReadMetafits(path string) (*Metafits, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, descriptorError(path, "opening metafits", err)
	}
	defer f.Close()

	h, _, err := readHeader(f)
	if err != nil {
		return nil, descriptorError(path, "reading metafits header", err)
	}

	m := &Metafits{Path: path, ObsID: ObsIDFromPath(path)}
	if id, ok := h.String("OBSID"); ok && id != "" {
		m.ObsID = id
	}

	if m.GPSTime, err = h.Float("GPSTIME"); err != nil {
		return nil, descriptorError(path, "metafits", err)
	}
	if m.IntegrationTime, err = h.Float("INTTIME"); err != nil {
		return nil, descriptorError(path, "metafits", err)
	}
	if m.Inputs, err = h.Int("NINPUTS"); err != nil {
		return nil, descriptorError(path, "metafits", err)
	}
	if m.Channels, err = h.IntDefault("NCHANS", 0); err != nil {
		return nil, descriptorError(path, "metafits", err)
	}
	if m.Scans, err = h.IntDefault("NSCANS", 0); err != nil {
		return nil, descriptorError(path, "metafits", err)
	}

	if m.Inputs <= 0 || m.Inputs%2 != 0 {
		return nil, descriptorError(path, fmt.Sprintf("NINPUTS must be a positive even number, got %d", m.Inputs), nil)
	}
	if m.IntegrationTime <= 0 {
		return nil, descriptorError(path, fmt.Sprintf("INTTIME must be positive, got %g", m.IntegrationTime), nil)
	}
	return m, nil
}

// sameChannels reports whether two metafits describe the same correlator
// configuration.
func (m *Metafits) sameChannels(other *Metafits) bool {
	return m.Channels == other.Channels && m.Inputs == other.Inputs
}
