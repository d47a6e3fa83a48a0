// Package uvdatatest writes small metafits and gpubox fits fixtures for
// tests.
package uvdatatest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	blockSize = 2880
	cardSize  = 80
)

// Card is one header record with a pre-formatted value.
type Card struct {
	Key   string
	Value string
}

// Str returns a string-valued card.
func Str(key, v string) Card {
	return Card{Key: key, Value: "'" + strings.ReplaceAll(v, "'", "''") + "'"}
}

// Int returns an integer-valued card.
func Int(key string, v int) Card {
	return Card{Key: key, Value: strconv.Itoa(v)}
}

// Float returns a float-valued card.
func Float(key string, v float64) Card {
	return Card{Key: key, Value: strconv.FormatFloat(v, 'f', -1, 64)}
}

// HDU is a header plus raw (unpadded) data.
type HDU struct {
	Cards []Card
	Data  []byte
}

// EncodeHDU renders an HDU with block padding.
func EncodeHDU(h HDU) []byte {
	var buf bytes.Buffer
	for _, c := range h.Cards {
		buf.WriteString(pad(fmt.Sprintf("%-8s= %20s", c.Key, c.Value), cardSize))
	}
	buf.WriteString(pad("END", cardSize))
	padTo(&buf, ' ')

	buf.Write(h.Data)
	padTo(&buf, 0)
	return buf.Bytes()
}

// WriteFITS writes hdus to path.
func WriteFITS(t testing.TB, path string, hdus ...HDU) {
	t.Helper()
	var buf bytes.Buffer
	for _, h := range hdus {
		buf.Write(EncodeHDU(h))
	}
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
}

func pad(s string, n int) string {
	if len(s) >= n {
		return s[:n]
	}
	return s + strings.Repeat(" ", n-len(s))
}

func padTo(buf *bytes.Buffer, fill byte) {
	if rem := buf.Len() % blockSize; rem != 0 {
		buf.Write(bytes.Repeat([]byte{fill}, blockSize-rem))
	}
}

// Observation describes a synthetic observation.
type Observation struct {
	ObsID           string
	GPSTime         float64
	IntTime         float64
	Inputs          int
	Files           int
	ChannelsPerFile int
	Records         int
	// Scans is written as NSCANS when positive.
	Scans int
	// BitPix is -32 (float) or 32 (int); zero means -32.
	BitPix int
	// Value overrides Value for generated visibilities.
	Value func(file, record, channel, row int) complex64
}

// Rows returns the visibility rows implied by Inputs.
func (o Observation) Rows() int {
	nAnt := o.Inputs / 2
	return nAnt * (nAnt + 1) / 2 * 4
}

// Value is the default visibility generator: the real part encodes the
// record and row, the imaginary part the dataset-wide channel.
func Value(file, record, channel, row, channelsPerFile int) complex64 {
	return complex(float32(record*1000+row), float32(file*channelsPerFile+channel))
}

// Small returns a tiny valid observation: 2 antennas, 2 coarse files of 4
// channels, 5 records.
func Small(obsID string) Observation {
	return Observation{
		ObsID:           obsID,
		GPSTime:         1065880128,
		IntTime:         2,
		Inputs:          4,
		Files:           2,
		ChannelsPerFile: 4,
		Records:         5,
	}
}

// Written holds the paths of a written observation.
type Written struct {
	Metafits string
	Files    []string
}

// All returns the metafits followed by the gpubox files.
func (w Written) All() []string {
	return append([]string{w.Metafits}, w.Files...)
}

// Write creates the metafits and gpubox files of obs in dir.
func Write(t testing.TB, dir string, obs Observation) Written {
	t.Helper()

	bitpix := obs.BitPix
	if bitpix == 0 {
		bitpix = -32
	}

	meta := []Card{
		{Key: "SIMPLE", Value: "T"},
		Int("BITPIX", 8),
		Int("NAXIS", 0),
		Str("OBSID", obs.ObsID),
		Float("GPSTIME", obs.GPSTime),
		Float("INTTIME", obs.IntTime),
		Int("NINPUTS", obs.Inputs),
		Int("NCHANS", obs.Files*obs.ChannelsPerFile),
	}
	if obs.Scans > 0 {
		meta = append(meta, Int("NSCANS", obs.Scans))
	}

	w := Written{Metafits: filepath.Join(dir, obs.ObsID+".metafits")}
	WriteFITS(t, w.Metafits, HDU{Cards: meta})

	rows := obs.Rows()
	for f := range obs.Files {
		hdus := []HDU{{Cards: []Card{{Key: "SIMPLE", Value: "T"}, Int("BITPIX", 8), Int("NAXIS", 0)}}}
		for rec := range obs.Records {
			data := make([]byte, 0, rows*obs.ChannelsPerFile*8)
			for c := range obs.ChannelsPerFile {
				for row := range rows {
					v := Value(f, rec, c, row, obs.ChannelsPerFile)
					if obs.Value != nil {
						v = obs.Value(f, rec, c, row)
					}
					data = appendSample(data, real(v), bitpix)
					data = appendSample(data, imag(v), bitpix)
				}
			}
			hdus = append(hdus, HDU{
				Cards: []Card{
					{Key: "XTENSION", Value: "'IMAGE   '"},
					Int("BITPIX", bitpix),
					Int("NAXIS", 2),
					Int("NAXIS1", 2*rows),
					Int("NAXIS2", obs.ChannelsPerFile),
					Int("PCOUNT", 0),
					Int("GCOUNT", 1),
					Float("TIME", obs.GPSTime+float64(rec)*obs.IntTime),
				},
				Data: data,
			})
		}
		path := filepath.Join(dir, fmt.Sprintf("%s_20131015134830_gpubox%02d_00.fits", obs.ObsID, f+1))
		WriteFITS(t, path, hdus...)
		w.Files = append(w.Files, path)
	}
	return w
}

func appendSample(b []byte, v float32, bitpix int) []byte {
	if bitpix == 32 {
		return binary.BigEndian.AppendUint32(b, uint32(int32(v)))
	}
	return binary.BigEndian.AppendUint32(b, math.Float32bits(v))
}
