package uvdata

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mwa-utils/mwapipe/internal/logging"
)

// DescriptorCache stores descriptors keyed by a fingerprint of the input
// files. Implementations must tolerate concurrent use.
type DescriptorCache interface {
	Get(key string) (*Descriptor, bool)
	Put(key string, desc *Descriptor) error
}

// Dataset is a loaded input: its files, its descriptor and the processor
// that can open it.
type Dataset struct {
	Files      *FileSet
	Descriptor *Descriptor
	Processor  Processor
	// Cached is true when the descriptor came from the cache.
	Cached bool
}

// Open returns a reader over the dataset's records.
func (d *Dataset) Open() (Reader, error) {
	return d.Processor.Open(d.Descriptor)
}

// Loader resolves input paths into a Dataset.
type Loader struct {
	processors []Processor
	cache      DescriptorCache
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithCache enables descriptor caching.
func WithCache(cache DescriptorCache) LoaderOption {
	return func(l *Loader) {
		l.cache = cache
	}
}

// WithProcessors replaces the default processor list.
func WithProcessors(processors ...Processor) LoaderOption {
	return func(l *Loader) {
		l.processors = processors
	}
}

// NewLoader creates a loader using DefaultProcessors.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{processors: DefaultProcessors()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load validates the input files and builds their descriptor. Every
// failure is a DescriptorError. Only metadata is read.
func (l *Loader) Load(ctx context.Context, paths []string) (*Dataset, error) {
	log := logging.FromContext(ctx)

	files, err := NewFileSet(paths)
	if err != nil {
		return nil, descriptorError("", "invalid input files", err)
	}

	proc, err := selectProcessor(l.processors, files)
	if err != nil {
		return nil, err
	}
	if err = proc.Validate(files); err != nil {
		return nil, err
	}

	ds := &Dataset{Files: files, Processor: proc}

	var key string
	if l.cache != nil {
		key, err = CacheKey(proc.Name(), files)
		if err != nil {
			log.Debug().Err(err).Msg("descriptor cache key unavailable")
		} else if desc, ok := l.cache.Get(key); ok && desc.Validate() == nil {
			log.Debug().Str("ordering_key", desc.OrderingKey).Msg("descriptor cache hit")
			ds.Descriptor = desc
			ds.Cached = true
			return ds, nil
		}
	}

	desc, err := proc.Describe(ctx, files)
	if err != nil {
		return nil, err
	}
	ds.Descriptor = desc

	log.Debug().
		Str("processor", proc.Name()).
		Int("records", desc.RecordCount).
		Int64("record_bytes", desc.RecordBytes).
		Str("ordering_key", desc.OrderingKey).
		Msg("dataset described")

	if key != "" {
		if putErr := l.cache.Put(key, desc); putErr != nil {
			log.Warn().Err(putErr).Msg("failed to cache descriptor")
		}
	}
	return ds, nil
}

// CacheKey derives a cache key from the processor name and the path,
// size and modification time of every file in the set.
func CacheKey(processor string, files *FileSet) (string, error) {
	var b strings.Builder
	b.WriteString(processor)
	for _, path := range files.Paths() {
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", path, err)
		}
		fmt.Fprintf(&b, "\n%s|%d|%d", abs, info.Size(), info.ModTime().UnixNano())
	}
	return b.String(), nil
}
