package images

import (
	"encoding/base64"
	"errors"
	"strings"
)

// ErrInvalidBase64 is returned when a payload cannot be decoded with any
// of the accepted alphabets.
var ErrInvalidBase64 = errors.New("invalid base64 image data")

// DecodeBase64 decodes provider image payloads, which are not always
// clean: a data URL prefix is stripped, embedded whitespace is removed,
// missing padding is restored and the URL-safe alphabet is accepted.
func DecodeBase64(payload string) ([]byte, error) {
	s := payload
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, s)
	s = strings.TrimRight(s, "=")
	if s == "" {
		return nil, ErrInvalidBase64
	}

	if data, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	if data, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return nil, ErrInvalidBase64
}
