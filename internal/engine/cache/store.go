package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// cacheFileExtension is the file extension used for cache entries.
const cacheFileExtension = ".json"

// Common cache errors.
var (
	ErrCacheNotFound   = errors.New("cache entry not found")
	ErrCacheExpired    = errors.New("cache entry expired")
	ErrInvalidCacheKey = errors.New("cache key cannot be empty")
	ErrEmptyDirectory  = errors.New("cache directory cannot be empty")
)

// FileStore keeps JSON entries, one file per hashed key.
// Thread-safe for concurrent access.
type FileStore struct {
	// directory is the cache directory path.
	directory string

	// ttlSeconds is the TTL given to new entries.
	ttlSeconds int

	// mu protects concurrent access to file operations.
	mu sync.RWMutex
}

// NewFileStore creates the cache directory if needed and returns a store.
func NewFileStore(directory string, ttlSeconds int) (*FileStore, error) {
	if directory == "" {
		return nil, ErrEmptyDirectory
	}
	if err := ValidateTTL(ttlSeconds); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(directory, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	return &FileStore{directory: directory, ttlSeconds: ttlSeconds}, nil
}

// Get returns the entry stored under key. It returns ErrCacheNotFound when
// absent and ErrCacheExpired (after removing the file) when stale.
func (s *FileStore) Get(key string) (*Entry, error) {
	if key == "" {
		return nil, ErrInvalidCacheKey
	}

	filePath := s.keyToFilePath(key)

	s.mu.RLock()
	data, err := os.ReadFile(filePath)
	s.mu.RUnlock()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrCacheNotFound
		}
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}

	var entry Entry
	if unmarshalErr := json.Unmarshal(data, &entry); unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal cache entry: %w", unmarshalErr)
	}

	if entry.IsExpired() {
		s.mu.Lock()
		_ = os.Remove(filePath)
		s.mu.Unlock()
		return nil, ErrCacheExpired
	}

	return &entry, nil
}

// Set stores data under key, replacing any existing entry.
func (s *FileStore) Set(key string, data json.RawMessage) error {
	if key == "" {
		return ErrInvalidCacheKey
	}

	entry := NewEntry(HashKey(key), data, s.ttlSeconds)
	entryData, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	filePath := s.keyToFilePath(key)

	// Write to temporary file first, then rename for atomicity
	tempPath := filePath + ".tmp"
	if writeErr := os.WriteFile(tempPath, entryData, 0o600); writeErr != nil {
		return fmt.Errorf("failed to write cache file: %w", writeErr)
	}

	if renameErr := os.Rename(tempPath, filePath); renameErr != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename cache file: %w", renameErr)
	}

	return nil
}

// Delete removes the entry under key. Deleting a missing entry is not an
// error.
func (s *FileStore) Delete(key string) error {
	if key == "" {
		return ErrInvalidCacheKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.keyToFilePath(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete cache file: %w", err)
	}
	return nil
}

// Clear removes every entry.
func (s *FileStore) Clear() error {
	return s.removeEntries(func(*Entry) bool { return true })
}

// CleanupExpired removes expired and unreadable entries.
func (s *FileStore) CleanupExpired() error {
	return s.removeEntries(func(e *Entry) bool { return e == nil || e.IsExpired() })
}

// removeEntries deletes entries matching remove. Unreadable files are
// passed to remove as nil.
func (s *FileStore) removeEntries(remove func(*Entry) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.directory)
	if err != nil {
		return fmt.Errorf("failed to read cache directory: %w", err)
	}

	for _, dirEntry := range entries {
		if dirEntry.IsDir() || filepath.Ext(dirEntry.Name()) != cacheFileExtension {
			continue
		}

		filePath := filepath.Join(s.directory, dirEntry.Name())
		var entry *Entry
		if data, readErr := os.ReadFile(filePath); readErr == nil {
			var e Entry
			if json.Unmarshal(data, &e) == nil {
				entry = &e
			}
		}

		if remove(entry) {
			if removeErr := os.Remove(filePath); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
				return fmt.Errorf("failed to remove cache file %s: %w", dirEntry.Name(), removeErr)
			}
		}
	}
	return nil
}

// Count returns the number of entries, including expired ones.
func (s *FileStore) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.directory)
	if err != nil {
		return 0, fmt.Errorf("failed to read cache directory: %w", err)
	}

	count := 0
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == cacheFileExtension {
			count++
		}
	}
	return count, nil
}

// Directory returns the cache directory path.
func (s *FileStore) Directory() string {
	return s.directory
}

// TTLSeconds returns the TTL given to new entries.
func (s *FileStore) TTLSeconds() int {
	return s.ttlSeconds
}

func (s *FileStore) keyToFilePath(key string) string {
	return filepath.Join(s.directory, HashKey(key)+cacheFileExtension)
}
