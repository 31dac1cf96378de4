package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"gametime/internal/errors"
)

// Config carries every option the analyzer recognizes. Identifier prefixes
// are configurable because generated names must never collide with source
// names in the unit under analysis.
type Config struct {
	// Machine model
	WordBits  int    `yaml:"word_bits"`
	Endian    string `yaml:"endian"` // "little" or "big"
	ArrayMode string `yaml:"array_mode"` // "nested" or "flat"

	// Identifier prefixes for synthesized names
	IdentConstraint   string `yaml:"ident_constraint"`
	IdentTempVar      string `yaml:"ident_temp_var"`
	IdentTempIndex    string `yaml:"ident_temp_index"`
	IdentTempPtr      string `yaml:"ident_temp_ptr"`
	IdentField        string `yaml:"ident_field"`
	IdentAggregate    string `yaml:"ident_aggregate"`
	IdentEFC          string `yaml:"ident_efc"`
	MangledPrefix     string `yaml:"mangled_prefix"`

	// Annotation function names
	AnnotationAssume   string `yaml:"annotation_assume"`
	AnnotationSimulate string `yaml:"annotation_simulate"`
}

const (
	EndianLittle = "little"
	EndianBig    = "big"

	ArrayModeNested = "nested"
	ArrayModeFlat   = "flat"
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		WordBits:           32,
		Endian:             EndianLittle,
		ArrayMode:          ArrayModeNested,
		IdentConstraint:    "__gtCONSTRAINT",
		IdentTempVar:       "__gtTEMP",
		IdentTempIndex:     "__gtINDEX",
		IdentTempPtr:       "__gtPTR",
		IdentField:         "__gtFIELD_",
		IdentAggregate:     "__gtAGG_",
		IdentEFC:           "__gtEFC_",
		MangledPrefix:      "$",
		AnnotationAssume:   "gt_assume",
		AnnotationSimulate: "gt_simulate",
	}
}

// Load reads a YAML configuration file, filling unset options with defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Input(errors.ErrorBadConfig, "parse config %s: %v", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects option values the analyzer cannot honor.
func (c *Config) Validate() error {
	if c.WordBits <= 0 || c.WordBits%8 != 0 {
		return errors.Input(errors.ErrorBadConfig, "word_bits must be a positive multiple of 8, got %d", c.WordBits)
	}
	if c.Endian != EndianLittle && c.Endian != EndianBig {
		return errors.Input(errors.ErrorBadConfig, "endian must be %q or %q, got %q", EndianLittle, EndianBig, c.Endian)
	}
	if c.ArrayMode != ArrayModeNested && c.ArrayMode != ArrayModeFlat {
		return errors.Input(errors.ErrorBadConfig, "array_mode must be %q or %q, got %q", ArrayModeNested, ArrayModeFlat, c.ArrayMode)
	}
	return nil
}

// BigEndian reports whether the target is big-endian.
func (c *Config) BigEndian() bool { return c.Endian == EndianBig }
