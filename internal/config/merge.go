package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Top-level YAML config key names used for shallow merge.
const (
	keyAPI        = "api"
	keyLookup     = "lookup"
	keyProcessing = "processing"
	keyImages     = "images"
	keyCache      = "cache"
	keyUsage      = "usage"
	keyLogging    = "logging"
)

// knownTopLevelKeys lists the YAML keys that correspond to Config sections.
// Keys not in this list are silently ignored during merge.
//
//nolint:gochecknoglobals // Compile-time constant lookup table.
var knownTopLevelKeys = map[string]bool{
	keyAPI:        true,
	keyLookup:     true,
	keyProcessing: true,
	keyImages:     true,
	keyCache:      true,
	keyUsage:      true,
	keyLogging:    true,
}

// ShallowMergeYAML loads a YAML file and merges its top-level keys onto
// target. A section present in the overlay is applied over the target's
// current values for that section; absent sections are left unchanged.
// Used by `run --config` to layer a per-job file over the global config.
func ShallowMergeYAML(target *Config, overlayPath string) error {
	if target == nil {
		return errors.New("nil target *Config in ShallowMergeYAML")
	}

	data, err := os.ReadFile(overlayPath)
	if err != nil {
		return fmt.Errorf("reading overlay file %s: %w", overlayPath, err)
	}

	var overlay map[string]interface{}
	if err = yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parsing overlay YAML from %s: %w", overlayPath, err)
	}

	// Empty or comment-only file.
	if len(overlay) == 0 {
		return nil
	}

	for key, value := range overlay {
		if !knownTopLevelKeys[key] {
			continue
		}

		sectionBytes, marshalErr := yaml.Marshal(value)
		if marshalErr != nil {
			return fmt.Errorf("re-marshalling overlay section %q: %w", key, marshalErr)
		}

		if err = unmarshalSection(target, key, sectionBytes); err != nil {
			return fmt.Errorf("applying overlay section %q: %w", key, err)
		}
	}

	return nil
}

// unmarshalSection decodes one section onto the matching field of target.
// Sections are plain structs, so fields missing from the overlay keep the
// target's value.
func unmarshalSection(target *Config, key string, data []byte) error {
	switch key {
	case keyAPI:
		return yaml.Unmarshal(data, &target.API)
	case keyLookup:
		return yaml.Unmarshal(data, &target.Lookup)
	case keyProcessing:
		return yaml.Unmarshal(data, &target.Processing)
	case keyImages:
		return yaml.Unmarshal(data, &target.Images)
	case keyCache:
		return yaml.Unmarshal(data, &target.Cache)
	case keyUsage:
		return yaml.Unmarshal(data, &target.Usage)
	case keyLogging:
		return yaml.Unmarshal(data, &target.Logging)
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
}
