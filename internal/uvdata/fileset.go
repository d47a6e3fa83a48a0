package uvdata

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
)

// File kinds recognised by extension.
const (
	KindFITS     = "fits"
	KindMetafits = "metafits"
	KindMS       = "ms"
	KindUVFITS   = "uvfits"
	KindUVF      = "uvf"
	KindUVH5     = "uvh5"
)

// SupportedKinds lists every extension a FileSet accepts.
var SupportedKinds = []string{KindFITS, KindMetafits, KindMS, KindUVFITS, KindUVF, KindUVH5}

// blockSize is the unit SizeMB counts in.
const blockSize = 1 << 20

// FileSet validation errors.
var (
	ErrNoInputFiles         = errors.New("no input files")
	ErrNoSupportedFiles     = errors.New("no supported file types found")
	ErrUnsupportedFile      = errors.New("unsupported file type")
	ErrFITSWithoutMetafits  = errors.New("fits files require a metafits file")
	ErrObsIDWithoutMetafits = errors.New("observation has no metafits file")
	ErrUVFITSWithUVH5       = errors.New("uvfits and uvh5 files cannot be combined")
	ErrMeasurementSetMixed  = errors.New("measurement sets cannot be combined with uvfits or uvh5")
	ErrInputPathNotReadable = errors.New("input path is not readable")
)

// FileSet is a validated collection of input files grouped by kind and,
// for gpubox fits files, by observation ID.
type FileSet struct {
	byKind  map[string][]string
	byObsID map[string][]string
	paths   []string
}

// NewFileSet expands directories in paths, groups the files it finds and
// validates the combination. Every problem is reported in a single joined
// error.
func NewFileSet(paths []string) (*FileSet, error) {
	fsys := &FileSet{
		byKind:  make(map[string][]string),
		byObsID: make(map[string][]string),
	}

	var errs []error
	files, expandErrs := expandPaths(paths)
	errs = append(errs, expandErrs...)

	for _, path := range files {
		kind := kindOf(path)
		if !slices.Contains(SupportedKinds, kind) {
			errs = append(errs, fmt.Errorf("%w: %s", ErrUnsupportedFile, path))
			continue
		}
		fsys.paths = append(fsys.paths, path)
		fsys.byKind[kind] = append(fsys.byKind[kind], path)
		if kind == KindFITS {
			id := ObsIDFromPath(path)
			fsys.byObsID[id] = append(fsys.byObsID[id], path)
		}
	}

	for _, group := range fsys.byKind {
		sort.Strings(group)
	}
	for _, group := range fsys.byObsID {
		sort.Strings(group)
	}
	sort.Strings(fsys.paths)

	errs = append(errs, fsys.validate(len(files))...)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return fsys, nil
}

func (f *FileSet) validate(found int) []error {
	var errs []error

	if found == 0 {
		return append(errs, ErrNoInputFiles)
	}
	if len(f.paths) == 0 {
		return append(errs, ErrNoSupportedFiles)
	}

	if f.Has(KindFITS) && !f.Has(KindMetafits) {
		errs = append(errs, ErrFITSWithoutMetafits)
	}

	metafitsIDs := make(map[string]bool)
	for _, path := range f.byKind[KindMetafits] {
		metafitsIDs[ObsIDFromPath(path)] = true
	}
	for _, id := range f.ObsIDs() {
		if !metafitsIDs[id] && f.Has(KindMetafits) {
			errs = append(errs, fmt.Errorf("%w: %s", ErrObsIDWithoutMetafits, id))
		}
	}

	hasUVFITS := f.Has(KindUVFITS) || f.Has(KindUVF)
	if hasUVFITS && f.Has(KindUVH5) {
		errs = append(errs, ErrUVFITSWithUVH5)
	}
	if f.Has(KindMS) && (hasUVFITS || f.Has(KindUVH5)) {
		errs = append(errs, ErrMeasurementSetMixed)
	}

	return errs
}

// Has reports whether the set holds at least one file of kind.
func (f *FileSet) Has(kind string) bool {
	return len(f.byKind[kind]) > 0
}

// Group returns the sorted paths of kind.
func (f *FileSet) Group(kind string) []string {
	return slices.Clone(f.byKind[kind])
}

// ObsIDs returns the sorted observation IDs of the gpubox fits files.
func (f *FileSet) ObsIDs() []string {
	ids := make([]string, 0, len(f.byObsID))
	for id := range f.byObsID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ObservationFiles returns the sorted gpubox fits files of one observation.
func (f *FileSet) ObservationFiles(obsID string) []string {
	return slices.Clone(f.byObsID[obsID])
}

// Paths returns every accepted path, sorted.
func (f *FileSet) Paths() []string {
	return slices.Clone(f.paths)
}

// Kinds returns the kinds present in the set, in SupportedKinds order.
func (f *FileSet) Kinds() []string {
	var kinds []string
	for _, kind := range SupportedKinds {
		if f.Has(kind) {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

// SizeMB returns the total on-disk size of the set in whole 1 MiB blocks.
// Each file is rounded down on its own; a directory (measurement set) is
// summed recursively and its total rounded down.
func (f *FileSet) SizeMB() (int64, error) {
	var total int64
	for _, path := range f.paths {
		blocks, err := diskUsageInBlocks(path)
		if err != nil {
			return 0, err
		}
		total += blocks
	}
	return total, nil
}

func diskUsageInBlocks(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return blocksFor(info.Size()), nil
	}

	var total int64
	err = filepath.WalkDir(path, func(_ string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		fi, infoErr := d.Info()
		if infoErr != nil {
			return infoErr
		}
		total += fi.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walking %s: %w", path, err)
	}
	return blocksFor(total), nil
}

func blocksFor(size int64) int64 {
	return size / blockSize
}

// ObsIDFromPath returns the observation ID encoded in a file name: the
// stem up to the first underscore.
func ObsIDFromPath(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	id, _, _ := strings.Cut(stem, "_")
	return id
}

func kindOf(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// expandPaths replaces directories with the regular files they contain.
// Directories with a .ms extension are measurement sets and kept whole.
// expandPaths lists the files named by paths, expanding directories one
// level. A file reached twice, through a directory and directly or by two
// spellings of its path, is listed once.
func expandPaths(paths []string) ([]string, []error) {
	var (
		files []string
		errs  []error
	)
	seen := make(map[string]bool)
	add := func(path string) {
		key := path
		if abs, err := filepath.Abs(path); err == nil {
			key = abs
		}
		if !seen[key] {
			seen[key] = true
			files = append(files, path)
		}
	}
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %w", ErrInputPathNotReadable, path, err))
			continue
		}
		if !info.IsDir() || kindOf(path) == KindMS {
			add(path)
			continue
		}

		entries, err := os.ReadDir(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %w", ErrInputPathNotReadable, path, err))
			continue
		}
		for _, entry := range entries {
			if entry.Type().IsRegular() || (entry.IsDir() && kindOf(entry.Name()) == KindMS) {
				add(filepath.Join(path, entry.Name()))
			}
		}
	}
	return files, errs
}
