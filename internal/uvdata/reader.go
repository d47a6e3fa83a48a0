package uvdata

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// gpuboxReader reads records from the gpubox files of a descriptor. File
// handles stay open until Close; reads use ReadAt so no seek state is
// shared.
type gpuboxReader struct {
	desc  *Descriptor
	files [][]*os.File
	hdus  [][][]HDU
	buf   []byte
}

func openGPUBoxReader(desc *Descriptor) (*gpuboxReader, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	r := &gpuboxReader{
		desc:  desc,
		files: make([][]*os.File, len(desc.Observations)),
		hdus:  make([][][]HDU, len(desc.Observations)),
	}
	for i, obs := range desc.Observations {
		for _, path := range obs.Files {
			f, err := os.Open(path)
			if err != nil {
				_ = r.Close()
				return nil, descriptorError(path, "opening gpubox file", err)
			}
			r.files[i] = append(r.files[i], f)

			hdus, err := scanHDUs(f)
			if err != nil {
				_ = r.Close()
				return nil, descriptorError(path, "scanning HDUs", err)
			}
			if len(hdus)-1 < obs.Records {
				_ = r.Close()
				return nil, descriptorError(path, fmt.Sprintf(
					"holds %d records, descriptor expects %d", len(hdus)-1, obs.Records), nil)
			}
			r.hdus[i] = append(r.hdus[i], hdus[1:])
		}
	}
	return r, nil
}

// ReadBatch implements Reader.
func (r *gpuboxReader) ReadBatch(ctx context.Context, start, end int) (*Batch, error) {
	if start < 0 || end > r.desc.RecordCount || start >= end {
		return nil, fmt.Errorf("record range [%d, %d) outside dataset of %d records", start, end, r.desc.RecordCount)
	}

	d := r.desc
	b := NewBatch(start, end, d.Rows, d.Channels, d.CoarseChannels())
	b.Antennas = d.Antennas
	for rec := start; rec < end; rec++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		obsIdx, local := d.locate(rec)
		obs := d.Observations[obsIdx]
		b.Times[rec-start] = obs.StartGPS + float64(local)*d.IntegrationTime

		for fileIdx, f := range r.files[obsIdx] {
			hdu := r.hdus[obsIdx][fileIdx][local]
			if err := r.readImage(f, hdu, b.Vis[rec-start], fileIdx*d.ChannelsPerFile); err != nil {
				return nil, fmt.Errorf("reading record %d from %s: %w", rec, f.Name(), err)
			}
		}
	}
	return b, nil
}

// readImage decodes one [channel][row][re,im] image into vis, placing
// the file's channels at chanOffset.
func (r *gpuboxReader) readImage(f *os.File, hdu HDU, vis []complex64, chanOffset int) error {
	d := r.desc
	if hdu.DataSize != int64(d.Rows)*int64(d.ChannelsPerFile)*complexBytes {
		return fmt.Errorf("image data is %d bytes, want %d", hdu.DataSize,
			int64(d.Rows)*int64(d.ChannelsPerFile)*complexBytes)
	}
	if int64(cap(r.buf)) < hdu.DataSize {
		r.buf = make([]byte, hdu.DataSize)
	}
	buf := r.buf[:hdu.DataSize]
	n, err := f.ReadAt(buf, hdu.DataOffset)
	if n < len(buf) {
		if err == nil || errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return err
	}

	for c := range d.ChannelsPerFile {
		for row := range d.Rows {
			off := (c*d.Rows + row) * complexBytes
			re := decodeSample(buf[off:off+4], d.BitPix)
			im := decodeSample(buf[off+4:off+8], d.BitPix)
			vis[row*d.Channels+chanOffset+c] = complex(re, im)
		}
	}
	return nil
}

func decodeSample(b []byte, bitpix int) float32 {
	bits := binary.BigEndian.Uint32(b)
	if bitpix == 32 {
		return float32(int32(bits))
	}
	return math.Float32frombits(bits)
}

// Close implements Reader.
func (r *gpuboxReader) Close() error {
	var errs []error
	for _, files := range r.files {
		for _, f := range files {
			if err := f.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	r.files = nil
	return errors.Join(errs...)
}
