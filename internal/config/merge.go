package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Top-level YAML config key names used for shallow merge.
const (
	keyPipeline = "pipeline"
	keyLogging  = "logging"
	keyReport   = "report"
	keyCache    = "cache"
)

// knownTopLevelKeys lists the YAML keys that correspond to exported Config fields.
// Keys not in this list are silently ignored during merge.
//
//nolint:gochecknoglobals // Compile-time constant lookup table.
var knownTopLevelKeys = map[string]bool{
	keyPipeline: true,
	keyLogging:  true,
	keyReport:   true,
	keyCache:    true,
}

// ShallowMergeYAML loads a YAML file and merges its top-level sections onto
// target. A section present in the overlay replaces the whole section in
// target; options the overlay leaves out take their built-in defaults, not
// the values target had before. Absent sections are left unchanged.
func ShallowMergeYAML(target *Config, overlayPath string) error {
	if target == nil {
		return errors.New("nil target *Config in ShallowMergeYAML")
	}

	data, err := os.ReadFile(overlayPath)
	if err != nil {
		return fmt.Errorf("reading overlay file %s: %w", overlayPath, err)
	}

	var overlay map[string]yaml.Node
	if err = yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parsing overlay YAML from %s: %w", overlayPath, err)
	}

	// Empty or comment-only file: nothing to merge.
	if len(overlay) == 0 {
		return nil
	}

	defaults := New()
	for key, node := range overlay {
		if !knownTopLevelKeys[key] {
			continue
		}
		if err = unmarshalSection(target, defaults, key, &node); err != nil {
			return fmt.Errorf("applying overlay section %q: %w", key, err)
		}
	}

	return nil
}

// unmarshalSection decodes node onto a copy of the default section named by
// key and stores the result in target.
func unmarshalSection(target, defaults *Config, key string, node *yaml.Node) error {
	switch key {
	case keyPipeline:
		v := defaults.Pipeline
		if err := node.Decode(&v); err != nil {
			return err
		}
		target.Pipeline = v
	case keyLogging:
		v := defaults.Logging
		if err := node.Decode(&v); err != nil {
			return err
		}
		target.Logging = v
	case keyReport:
		v := defaults.Report
		if err := node.Decode(&v); err != nil {
			return err
		}
		target.Report = v
	case keyCache:
		v := defaults.Cache
		if err := node.Decode(&v); err != nil {
			return err
		}
		target.Cache = v
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}
