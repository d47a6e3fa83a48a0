// Package uvdata loads MWA visibility datasets without materialising them.
//
// Loading happens in two steps. NewFileSet groups input paths by file kind
// and observation ID and rejects unusable combinations, reporting every
// problem at once. A Processor then reads only metadata (metafits primary
// headers and gpubox HDU headers) to build an immutable Descriptor: the
// record count, the per-record byte size and a stable ordering key.
//
// Record data is read later, one range at a time, through a Reader:
//
//	ds, err := uvdata.NewLoader().Load(ctx, paths)
//	r, err := ds.Open()
//	defer r.Close()
//	b, err := r.ReadBatch(ctx, 0, 50)
//
// Supported inputs are metafits plus raw gpubox fits files. Measurement
// sets, uvfits and uvh5 are recognised and validated but have no processor.
package uvdata
