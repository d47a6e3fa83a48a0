package uvdata

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"
)

// scanConcurrency bounds how many gpubox files are header-scanned at once.
const scanConcurrency = 4

// GPUBoxProcessor reads metafits plus raw gpubox correlator fits files.
type GPUBoxProcessor struct {
	concurrency int
}

// NewGPUBoxProcessor returns a processor for metafits + gpubox fits sets.
func NewGPUBoxProcessor() *GPUBoxProcessor {
	return &GPUBoxProcessor{concurrency: scanConcurrency}
}

// Name implements Processor.
func (p *GPUBoxProcessor) Name() string {
	return "gpubox"
}

// CanHandle implements Processor.
func (p *GPUBoxProcessor) CanHandle(files *FileSet) bool {
	for _, kind := range files.Kinds() {
		if kind != KindFITS && kind != KindMetafits {
			return false
		}
	}
	return files.Has(KindFITS) && files.Has(KindMetafits)
}

// Validate implements Processor.
func (p *GPUBoxProcessor) Validate(files *FileSet) error {
	if !p.CanHandle(files) {
		return descriptorError("", "gpubox processing needs metafits and fits files only", nil)
	}
	return nil
}

// fileLayout is the scanned shape of one gpubox file.
type fileLayout struct {
	path     string
	images   []HDU
	bitpix   int
	naxis1   int
	channels int
}

// obsLayout ties an observation's metadata to its scanned files.
type obsLayout struct {
	meta  *Metafits
	files []fileLayout
}

// Describe implements Processor.
func (p *GPUBoxProcessor) Describe(ctx context.Context, files *FileSet) (*Descriptor, error) {
	layouts, err := p.scan(ctx, files)
	if err != nil {
		return nil, err
	}
	return buildDescriptor(layouts)
}

// scan reads every metafits and the HDU headers of every gpubox file.
func (p *GPUBoxProcessor) scan(ctx context.Context, files *FileSet) ([]obsLayout, error) {
	metas := make(map[string]*Metafits)
	var first *Metafits
	for _, path := range files.Group(KindMetafits) {
		m, err := ReadMetafits(path)
		if err != nil {
			return nil, err
		}
		if first == nil {
			first = m
		} else if !first.sameChannels(m) {
			return nil, descriptorError(path, fmt.Sprintf(
				"metafits describe different channels: %s has NCHANS=%d NINPUTS=%d, %s has NCHANS=%d NINPUTS=%d",
				first.Path, first.Channels, first.Inputs, m.Path, m.Channels, m.Inputs), nil)
		}
		metas[ObsIDFromPath(path)] = m
	}

	obsIDs := files.ObsIDs()
	layouts := make([]obsLayout, len(obsIDs))
	for i, id := range obsIDs {
		meta, ok := metas[id]
		if !ok {
			return nil, descriptorError("", fmt.Sprintf("observation %s has no metafits", id), nil)
		}
		paths := files.ObservationFiles(id)
		layouts[i] = obsLayout{meta: meta, files: make([]fileLayout, len(paths))}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.concurrency)
		for j, path := range paths {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				layout, err := scanGPUBoxFile(path)
				if err != nil {
					return err
				}
				layouts[i].files[j] = layout
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}
	return layouts, nil
}

// scanGPUBoxFile records the image HDUs that follow the primary HDU and
// checks they share a shape.
func scanGPUBoxFile(path string) (fileLayout, error) {
	f, err := os.Open(path)
	if err != nil {
		return fileLayout{}, descriptorError(path, "opening gpubox file", err)
	}
	defer f.Close()

	hdus, err := scanHDUs(f)
	if err != nil {
		return fileLayout{}, descriptorError(path, "scanning HDUs", err)
	}

	layout := fileLayout{path: path}
	for i, hdu := range hdus[1:] {
		naxis, axisErr := hdu.Header.Int("NAXIS")
		if axisErr != nil {
			return fileLayout{}, descriptorError(path, fmt.Sprintf("HDU %d", i+1), axisErr)
		}
		if naxis != 2 {
			return fileLayout{}, descriptorError(path, fmt.Sprintf("HDU %d has NAXIS=%d, want 2", i+1, naxis), nil)
		}
		bitpix, _ := hdu.Header.Int("BITPIX")
		naxis1, _ := hdu.Header.Int("NAXIS1")
		naxis2, _ := hdu.Header.Int("NAXIS2")

		if bitpix != -32 && bitpix != 32 {
			return fileLayout{}, descriptorError(path, fmt.Sprintf("HDU %d has unsupported BITPIX=%d", i+1, bitpix), nil)
		}
		if i == 0 {
			layout.bitpix, layout.naxis1, layout.channels = bitpix, naxis1, naxis2
		} else if bitpix != layout.bitpix || naxis1 != layout.naxis1 || naxis2 != layout.channels {
			return fileLayout{}, descriptorError(path, fmt.Sprintf(
				"HDU %d shape %dx%d (BITPIX=%d) differs from HDU 1 shape %dx%d (BITPIX=%d)",
				i+1, naxis1, naxis2, bitpix, layout.naxis1, layout.channels, layout.bitpix), nil)
		}
		layout.images = append(layout.images, hdu)
	}
	if len(layout.images) == 0 {
		return fileLayout{}, descriptorError(path, "no image HDUs after the primary header", nil)
	}
	return layout, nil
}

// buildDescriptor checks cross-file consistency and assembles the
// descriptor. Observations are concatenated in obsid order.
func buildDescriptor(layouts []obsLayout) (*Descriptor, error) {
	ref := layouts[0]
	refFile := ref.files[0]
	nAnt, rows := baselineRows(ref.meta.Inputs)

	desc := &Descriptor{
		Rows:            rows,
		Antennas:        nAnt,
		ChannelsPerFile: refFile.channels,
		Channels:        refFile.channels * len(ref.files),
		IntegrationTime: ref.meta.IntegrationTime,
		BitPix:          refFile.bitpix,
		Format:          FormatGPUBoxFloat,
	}
	if refFile.bitpix == 32 {
		desc.Format = FormatGPUBoxInt
	}

	var obsIDs []string
	for _, obs := range layouts {
		if len(obs.files) != len(ref.files) {
			return nil, descriptorError(obs.meta.Path, fmt.Sprintf(
				"observation %s has %d coarse-channel files, %s has %d",
				obs.meta.ObsID, len(obs.files), ref.meta.ObsID, len(ref.files)), nil)
		}

		records := -1
		paths := make([]string, len(obs.files))
		for i, f := range obs.files {
			paths[i] = f.path
			if f.naxis1 != 2*rows {
				return nil, descriptorError(f.path, fmt.Sprintf(
					"NAXIS1=%d does not match %d correlator inputs (want %d)", f.naxis1, ref.meta.Inputs, 2*rows), nil)
			}
			if f.channels != desc.ChannelsPerFile || f.bitpix != desc.BitPix {
				return nil, descriptorError(f.path, fmt.Sprintf(
					"shape %d channels (BITPIX=%d) differs from %s", f.channels, f.bitpix, refFile.path), nil)
			}
			if records >= 0 && len(f.images) != records {
				return nil, descriptorError(f.path, fmt.Sprintf(
					"holds %d records, %s holds %d", len(f.images), obs.files[0].path, records), nil)
			}
			records = len(f.images)
		}
		if obs.meta.Scans > 0 && obs.meta.Scans < records {
			records = obs.meta.Scans
		}

		desc.Observations = append(desc.Observations, Observation{
			ObsID:    obs.meta.ObsID,
			Metafits: obs.meta.Path,
			Files:    paths,
			Records:  records,
			StartGPS: obs.meta.GPSTime,
		})
		desc.RecordCount += records
		obsIDs = append(obsIDs, obs.meta.ObsID)
	}

	desc.RecordBytes = int64(desc.Rows) * int64(desc.Channels) * cellBytes
	desc.OrderingKey = orderingKey(obsIDs, ref.meta.GPSTime, len(ref.files)*len(layouts))

	if err := desc.Validate(); err != nil {
		return nil, err
	}
	return desc, nil
}

// Open implements Processor.
func (p *GPUBoxProcessor) Open(desc *Descriptor) (Reader, error) {
	return openGPUBoxReader(desc)
}
