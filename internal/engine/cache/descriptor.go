package cache

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"

	"github.com/mwa-utils/mwapipe/internal/uvdata"
)

// DescriptorStore adapts a FileStore to uvdata.DescriptorCache.
type DescriptorStore struct {
	store  *FileStore
	logger zerolog.Logger
}

var _ uvdata.DescriptorCache = (*DescriptorStore)(nil)

// NewDescriptorStore wraps store. Cache failures are logged to logger and
// otherwise treated as misses.
func NewDescriptorStore(store *FileStore, logger zerolog.Logger) *DescriptorStore {
	return &DescriptorStore{store: store, logger: logger}
}

// Get implements uvdata.DescriptorCache.
func (d *DescriptorStore) Get(key string) (*uvdata.Descriptor, bool) {
	entry, err := d.store.Get(key)
	if err != nil {
		if !errors.Is(err, ErrCacheNotFound) && !errors.Is(err, ErrCacheExpired) {
			d.logger.Warn().Err(err).Msg("descriptor cache read failed")
		}
		return nil, false
	}

	var desc uvdata.Descriptor
	if err = json.Unmarshal(entry.Data, &desc); err != nil {
		d.logger.Warn().Err(err).Msg("descriptor cache entry is corrupt")
		_ = d.store.Delete(key)
		return nil, false
	}
	return &desc, true
}

// Put implements uvdata.DescriptorCache.
func (d *DescriptorStore) Put(key string, desc *uvdata.Descriptor) error {
	data, err := json.Marshal(desc)
	if err != nil {
		return err
	}
	return d.store.Set(key, data)
}
