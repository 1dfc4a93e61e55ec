package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/walletrunner/service/orchestrator"
	"gopkg.in/yaml.v3"
)

// source resolves a key from the overrides first, then the environment, then
// the config file. File keys are the lower-cased environment names, e.g.
// action_delay.
type source struct {
	overrides map[string]string
	file      map[string]string
}

func newSource(path string, overrides map[string]string) (*source, error) {
	s := &source{overrides: overrides, file: map[string]string{}}
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := s.parse(data); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return s, nil
}

// parse flattens a YAML mapping of scalars and scalar lists. Lists become
// comma separated values; a {min, max} mapping becomes "min-max".
func (s *source) parse(data []byte) error {
	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key, node := range raw {
		val, err := flatten(&node)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		s.file[strings.ToLower(key)] = val
	}
	return nil
}

func flatten(n *yaml.Node) (string, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		return n.Value, nil
	case yaml.SequenceNode:
		parts := make([]string, 0, len(n.Content))
		for _, c := range n.Content {
			if c.Kind != yaml.ScalarNode {
				return "", fmt.Errorf("line %d: lists may only hold scalars", c.Line)
			}
			parts = append(parts, c.Value)
		}
		return strings.Join(parts, ","), nil
	case yaml.MappingNode:
		var bounds struct {
			Min string `yaml:"min"`
			Max string `yaml:"max"`
		}
		if err := n.Decode(&bounds); err != nil {
			return "", err
		}
		if bounds.Min == "" || bounds.Max == "" {
			return "", fmt.Errorf("line %d: range needs min and max", n.Line)
		}
		return bounds.Min + "-" + bounds.Max, nil
	}
	return "", fmt.Errorf("line %d: unsupported value", n.Line)
}

func (s *source) get(key, defaultValue string) string {
	if v := s.overrides[key]; v != "" {
		return v
	}
	if v := os.Getenv(key); v != "" {
		return v
	}
	if v, ok := s.file[strings.ToLower(key)]; ok && v != "" {
		return v
	}
	return defaultValue
}

func (s *source) duration(key, defaultValue string) (time.Duration, error) {
	value := s.get(key, defaultValue)
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return d, nil
}

func (s *source) durationRange(key, defaultValue string) (orchestrator.Range, error) {
	r, err := orchestrator.ParseRange(s.get(key, defaultValue))
	if err != nil {
		return orchestrator.Range{}, fmt.Errorf("%s: %w", key, err)
	}
	return r, nil
}

func (s *source) int(key string, defaultValue int) (int, error) {
	value := s.get(key, "")
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return n, nil
}

func (s *source) uint(key string, defaultValue uint64, bits int) (uint64, error) {
	value := s.get(key, "")
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseUint(value, 10, bits)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid unsigned integer %q: %w", key, value, err)
	}
	return n, nil
}

func (s *source) bool(key string, defaultValue bool) (bool, error) {
	value := s.get(key, "")
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q: %w", key, value, err)
	}
	return b, nil
}
