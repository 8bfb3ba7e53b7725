package lookup

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rshade/phonelookup/internal/engine"
)

// Valid normalized numbers have this many digits, country code included.
const (
	MinDigits = 10
	MaxDigits = 15
)

// spreadsheetFloat matches numbers that went through a float column, e.g. "923001234567.0".
var spreadsheetFloat = regexp.MustCompile(`^\+?\d+\.0+$`)

// Normalize cleans a raw number cell and applies the country code policy:
// everything but digits and a leading '+' is dropped, a trunk '0' or a
// '+' prefix is replaced by the international form, and the result must
// have MinDigits to MaxDigits digits.
func Normalize(raw, countryCode string) (string, error) {
	s := strings.TrimSpace(raw)
	if spreadsheetFloat.MatchString(s) {
		s = s[:strings.IndexByte(s, '.')]
	}

	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	cleaned := b.String()

	switch {
	case strings.HasPrefix(cleaned, "+"):
		cleaned = cleaned[1:]
	case strings.HasPrefix(cleaned, "00"):
		cleaned = cleaned[2:]
	case strings.HasPrefix(cleaned, "0"):
		cleaned = countryCode + cleaned[1:]
	}

	if cleaned == "" {
		return "", fmt.Errorf("%w: empty", engine.ErrInvalidNumber)
	}
	if n := len(cleaned); n < MinDigits || n > MaxDigits {
		return "", fmt.Errorf("%w: %q has %d digits, want %d-%d", engine.ErrInvalidNumber, raw, n, MinDigits, MaxDigits)
	}
	return cleaned, nil
}

// Normalizer returns an engine.NumberNormalizer bound to countryCode.
func Normalizer(countryCode string) engine.NumberNormalizer {
	return func(raw string) (string, error) {
		return Normalize(raw, countryCode)
	}
}

// Split separates a normalized number into the country code and the local
// part. Numbers that do not start with countryCode are sent whole as the
// local part.
func Split(number, countryCode string) (string, string) {
	if countryCode != "" && strings.HasPrefix(number, countryCode) && len(number) > len(countryCode) {
		return countryCode, number[len(countryCode):]
	}
	return countryCode, number
}
