package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rshade/phonelookup/internal/statefile"
)

// cacheFileExtension is the file extension used for cache entries.
const cacheFileExtension = ".json"

// Common cache errors.
var (
	ErrCacheNotFound   = errors.New("cache entry not found")
	ErrCacheExpired    = errors.New("cache entry expired")
	ErrInvalidCacheKey = errors.New("cache key cannot be empty")
	ErrCacheDisabled   = errors.New("cache is disabled")
)

// FileStore keeps downloads as JSON files in one directory.
// Thread-safe for concurrent access.
type FileStore struct {
	directory string
	enabled   bool
	ttl       time.Duration
	now       func() time.Time

	// mu protects concurrent access to file operations.
	mu sync.RWMutex
}

// Option configures a FileStore.
type Option func(*FileStore)

// WithClock replaces time.Now for creation and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *FileStore) { s.now = now }
}

// NewFileStore creates a store in directory, creating it if needed.
// A disabled store accepts every call and returns ErrCacheDisabled.
func NewFileStore(directory string, enabled bool, ttl time.Duration, opts ...Option) (*FileStore, error) {
	if !enabled {
		return &FileStore{enabled: false, now: time.Now}, nil
	}

	if directory == "" {
		return nil, errors.New("cache directory cannot be empty")
	}
	if err := ValidateTTL(ttl); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(directory, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	s := &FileStore{
		directory: directory,
		enabled:   true,
		ttl:       ttl,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Get returns the cached body for url.
// Returns ErrCacheNotFound if there is no entry and ErrCacheExpired if the
// entry has expired; expired entries are removed.
func (s *FileStore) Get(url string) ([]byte, error) {
	if !s.enabled {
		return nil, ErrCacheDisabled
	}
	if url == "" {
		return nil, ErrInvalidCacheKey
	}

	filePath := s.keyToFilePath(Key(url))

	s.mu.RLock()
	data, err := os.ReadFile(filePath)
	s.mu.RUnlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrCacheNotFound
		}
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}

	var entry Entry
	if unmarshalErr := json.Unmarshal(data, &entry); unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal cache entry: %w", unmarshalErr)
	}

	if entry.IsExpired(s.now()) {
		s.mu.Lock()
		_ = os.Remove(filePath)
		s.mu.Unlock()
		return nil, ErrCacheExpired
	}

	return entry.Data, nil
}

// Set stores data for url, replacing any existing entry.
func (s *FileStore) Set(url string, data []byte) error {
	if !s.enabled {
		return ErrCacheDisabled
	}
	if url == "" {
		return ErrInvalidCacheKey
	}

	entry := NewEntry(url, data, s.ttl, s.now())
	entryData, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if writeErr := statefile.WriteAtomic(s.keyToFilePath(entry.Key), entryData, 0o600); writeErr != nil {
		return fmt.Errorf("failed to write cache file: %w", writeErr)
	}
	return nil
}

// Delete removes the entry for url. Missing entries are not an error.
func (s *FileStore) Delete(url string) error {
	if !s.enabled {
		return ErrCacheDisabled
	}
	if url == "" {
		return ErrInvalidCacheKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.keyToFilePath(Key(url)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete cache file: %w", err)
	}
	return nil
}

// Clear removes all cache entries from the store.
func (s *FileStore) Clear() error {
	if !s.enabled {
		return ErrCacheDisabled
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.directory)
	if err != nil {
		return fmt.Errorf("failed to read cache directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != cacheFileExtension {
			continue
		}
		if removeErr := os.Remove(filepath.Join(s.directory, entry.Name())); removeErr != nil {
			return fmt.Errorf("failed to remove cache file %s: %w", entry.Name(), removeErr)
		}
	}
	return nil
}

// CleanupExpired removes expired entries and returns how many were removed.
func (s *FileStore) CleanupExpired() (int, error) {
	if !s.enabled {
		return 0, ErrCacheDisabled
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.directory)
	if err != nil {
		return 0, fmt.Errorf("failed to read cache directory: %w", err)
	}

	now := s.now()
	removed := 0
	for _, dirEntry := range entries {
		if dirEntry.IsDir() || filepath.Ext(dirEntry.Name()) != cacheFileExtension {
			continue
		}

		filePath := filepath.Join(s.directory, dirEntry.Name())
		data, readErr := os.ReadFile(filePath)
		if readErr != nil {
			continue
		}

		var entry Entry
		if unmarshalErr := json.Unmarshal(data, &entry); unmarshalErr != nil {
			continue
		}

		if entry.IsExpired(now) && os.Remove(filePath) == nil {
			removed++
		}
	}
	return removed, nil
}

// Size returns the total size of the cache files in bytes.
func (s *FileStore) Size() (int64, error) {
	if !s.enabled {
		return 0, ErrCacheDisabled
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.directory)
	if err != nil {
		return 0, fmt.Errorf("failed to read cache directory: %w", err)
	}

	var totalSize int64
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != cacheFileExtension {
			continue
		}
		info, infoErr := entry.Info()
		if infoErr != nil {
			continue
		}
		totalSize += info.Size()
	}
	return totalSize, nil
}

// Count returns the number of cache entries, expired ones included.
func (s *FileStore) Count() (int, error) {
	if !s.enabled {
		return 0, ErrCacheDisabled
	}

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

// IsEnabled returns true if caching is enabled.
func (s *FileStore) IsEnabled() bool {
	return s.enabled
}

// Directory returns the cache directory path.
func (s *FileStore) Directory() string {
	return s.directory
}

// TTL returns the entry lifetime.
func (s *FileStore) TTL() time.Duration {
	return s.ttl
}

func (s *FileStore) keyToFilePath(key string) string {
	return filepath.Join(s.directory, key+cacheFileExtension)
}
