package config

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Get returns the value of a dotted key such as "lookup.max_retries".
func (c *Config) Get(key string) (interface{}, error) {
	section, field, err := splitKey(key)
	if err != nil {
		return nil, err
	}

	tree, err := c.asMap()
	if err != nil {
		return nil, err
	}
	values, ok := tree[section].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	if !fieldExists(section, field) {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return values[field], nil
}

// Set parses value as a YAML scalar and assigns it to a dotted key.
// The config is not validated or saved.
func (c *Config) Set(key, value string) error {
	section, field, err := splitKey(key)
	if err != nil {
		return err
	}
	if !fieldExists(section, field) {
		return fmt.Errorf("unknown config key: %s", key)
	}

	var parsed interface{}
	if err = yaml.Unmarshal([]byte(value), &parsed); err != nil || parsed == nil {
		parsed = value
	}
	if _, isMap := parsed.(map[string]interface{}); isMap {
		parsed = value
	}

	data, err := yaml.Marshal(map[string]interface{}{field: parsed})
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err = unmarshalSection(c, section, data); err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return nil
}

// Keys returns every settable dotted key in sorted order.
func Keys() []string {
	var keys []string
	for section, fields := range sectionFields() {
		for _, f := range fields {
			keys = append(keys, section+"."+f)
		}
	}
	sort.Strings(keys)
	return keys
}

func splitKey(key string) (string, string, error) {
	section, field, ok := strings.Cut(key, ".")
	if !ok || field == "" || !knownTopLevelKeys[section] {
		return "", "", fmt.Errorf("unknown config key: %s (use section.field, e.g. lookup.max_retries)", key)
	}
	return section, field, nil
}

func (c *Config) asMap() (map[string]interface{}, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	var tree map[string]interface{}
	if err = yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return tree, nil
}

func fieldExists(section, field string) bool {
	for _, f := range sectionFields()[section] {
		if f == field {
			return true
		}
	}
	return false
}

// sectionFields lists yaml field names per section. Built from the
// defaults with omitempty fields filled so every key shows up.
func sectionFields() map[string][]string {
	cfg := Defaults()
	cfg.API.Key = "-"
	cfg.API.Endpoint = "-"
	cfg.Cache.Directory = "-"
	cfg.Usage.File = "-"
	cfg.Logging.File = "-"

	tree, err := cfg.asMap()
	if err != nil {
		return nil
	}
	out := make(map[string][]string, len(tree))
	for section, v := range tree {
		values, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		for field := range values {
			out[section] = append(out[section], field)
		}
	}
	return out
}
