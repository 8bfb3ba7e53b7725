package cache

import (
	"encoding/json"
	"errors"
	"time"
)

// Entry is one cached download with its expiration metadata.
type Entry struct {
	// Key is the SHA256 hex of URL.
	Key string `json:"key"`

	// URL is the source the bytes were fetched from.
	URL string `json:"url"`

	// Data is the raw body. encoding/json stores it as base64.
	Data []byte `json:"data"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`

	// TTLSeconds is kept for reference and for Touch.
	TTLSeconds int `json:"ttl_seconds"`
}

// NewEntry creates an entry created at now that expires after ttl.
func NewEntry(url string, data []byte, ttl time.Duration, now time.Time) *Entry {
	return &Entry{
		Key:        Key(url),
		URL:        url,
		Data:       data,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
		TTLSeconds: int(ttl / time.Second),
	}
}

// IsExpired reports whether the entry is past its expiration at now.
func (e *Entry) IsExpired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Age returns how long ago the entry was created.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}

// TimeUntilExpiration returns the remaining lifetime, or 0 once expired.
func (e *Entry) TimeUntilExpiration(now time.Time) time.Duration {
	if remaining := e.ExpiresAt.Sub(now); remaining > 0 {
		return remaining
	}
	return 0
}

// Touch extends the expiration by the original TTL from now.
func (e *Entry) Touch(now time.Time) {
	e.ExpiresAt = now.Add(time.Duration(e.TTLSeconds) * time.Second)
}

// MarshalJSON formats times as RFC3339 for readability in the cache files.
func (e *Entry) MarshalJSON() ([]byte, error) {
	type Alias Entry
	return json.Marshal(&struct {
		*Alias

		CreatedAt string `json:"created_at"`
		ExpiresAt string `json:"expires_at"`
	}{
		Alias:     (*Alias)(e),
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
		ExpiresAt: e.ExpiresAt.Format(time.RFC3339),
	})
}

// UnmarshalJSON parses the RFC3339 timestamps written by MarshalJSON.
func (e *Entry) UnmarshalJSON(data []byte) error {
	if e == nil {
		return errors.New("cannot unmarshal into nil Entry")
	}
	type Alias Entry
	aux := &struct {
		*Alias

		CreatedAt string `json:"created_at"`
		ExpiresAt string `json:"expires_at"`
	}{
		Alias: (*Alias)(e),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	e.CreatedAt, err = time.Parse(time.RFC3339, aux.CreatedAt)
	if err != nil {
		return err
	}
	e.ExpiresAt, err = time.Parse(time.RFC3339, aux.ExpiresAt)
	return err
}
