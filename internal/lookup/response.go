package lookup

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrMalformedResponse is returned for bodies that are not the expected JSON.
var ErrMalformedResponse = errors.New("invalid JSON response from API")

// ErrProviderRejected is returned when the provider answers with status false.
var ErrProviderRejected = errors.New("API error")

type envelope struct {
	Status  *bool           `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type entry struct {
	FullName   string            `json:"fullName"`
	OtherNames []json.RawMessage `json:"otherNames"`
	Image      string            `json:"image"`
	Images     []struct {
		Pictures map[string]string `json:"pictures"`
	} `json:"images"`
	B64 string `json:"b64"`
}

// candidates is the normalized content of a provider response.
type candidates struct {
	Names     []string
	ImageURLs []string
	Inline    []string
}

// parseResponse decodes a provider body. Limits of zero or less mean no limit.
func parseResponse(body []byte, maxNames, maxURLs int) (candidates, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return candidates{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if env.Status == nil || !*env.Status {
		msg := env.Message
		if msg == "" {
			msg = "unknown error"
		}
		return candidates{}, fmt.Errorf("%w: %s", ErrProviderRejected, msg)
	}

	entries, err := decodeEntries(env.Data)
	if err != nil {
		return candidates{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	var full, other, urls, inline []string
	for _, e := range entries {
		if s := strings.TrimSpace(e.FullName); s != "" {
			full = append(full, s)
		}
		for _, raw := range e.OtherNames {
			if s := otherName(raw); s != "" {
				other = append(other, s)
			}
		}
		if s := strings.TrimSpace(e.Image); s != "" {
			urls = append(urls, s)
		}
		for _, img := range e.Images {
			if u := largestPicture(img.Pictures, urls); u != "" {
				urls = append(urls, u)
			}
		}
		if s := strings.TrimSpace(e.B64); s != "" {
			inline = append(inline, s)
		}
	}

	return candidates{
		Names:     truncate(dedupe(append(full, other...)), maxNames),
		ImageURLs: truncate(dedupe(urls), maxURLs),
		Inline:    dedupe(inline),
	}, nil
}

// decodeEntries accepts an object, a list of objects, or null.
func decodeEntries(data json.RawMessage) ([]entry, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	if data[0] == '[' {
		var list []entry
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	var one entry
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, err
	}
	return []entry{one}, nil
}

// otherName accepts either "name" or {"name": "..."}.
func otherName(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return strings.TrimSpace(obj.Name)
	}
	return ""
}

// largestPicture returns the URL under the largest numeric size key that
// is not already in seen. Non-numeric keys sort as size zero.
func largestPicture(pictures map[string]string, seen []string) string {
	keys := make([]string, 0, len(pictures))
	for k := range pictures {
		keys = append(keys, k)
	}
	sort.SliceStable(keys, func(i, j int) bool {
		si, sj := sizeKey(keys[i]), sizeKey(keys[j])
		if si != sj {
			return si > sj
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys {
		u := strings.TrimSpace(pictures[k])
		if u != "" && !contains(seen, u) {
			return u
		}
	}
	return ""
}

func sizeKey(k string) int {
	n, err := strconv.Atoi(k)
	if err != nil {
		return 0
	}
	return n
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

func truncate(in []string, n int) []string {
	if n > 0 && len(in) > n {
		return in[:n]
	}
	return in
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
