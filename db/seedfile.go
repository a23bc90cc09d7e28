package db

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var ErrInvalidSeedSet = errors.New("invalid seed set")

// LoadSeedFile reads a YAML seed set with the same shape as DefaultSeedSet.
// Unknown keys are rejected so a typo cannot silently drop records.
func LoadSeedFile(path string) (SeedSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SeedSet{}, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeedSet(data)
}

// ParseSeedSet decodes and validates a YAML seed set.
func ParseSeedSet(data []byte) (SeedSet, error) {
	var s SeedSet
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return SeedSet{}, fmt.Errorf("%w: %v", ErrInvalidSeedSet, err)
	}
	if err := s.Validate(); err != nil {
		return SeedSet{}, err
	}
	return s, nil
}
