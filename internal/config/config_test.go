package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 32, cfg.WordBits)
	assert.Equal(t, EndianLittle, cfg.Endian)
	assert.Equal(t, ArrayModeNested, cfg.ArrayMode)
	assert.Equal(t, "__gtINDEX", cfg.IdentTempIndex)
	assert.Equal(t, "gt_assume", cfg.AnnotationAssume)
	assert.NoError(t, cfg.Validate())
	assert.False(t, cfg.BigEndian())
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
word_bits: 64
endian: big
array_mode: flat
ident_temp_index: __IDX
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.WordBits)
	assert.True(t, cfg.BigEndian())
	assert.Equal(t, ArrayModeFlat, cfg.ArrayMode)
	assert.Equal(t, "__IDX", cfg.IdentTempIndex)
	// Unset options keep their defaults.
	assert.Equal(t, "__gtCONSTRAINT", cfg.IdentConstraint)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"ZeroWordBits", func(c *Config) { c.WordBits = 0 }},
		{"OddWordBits", func(c *Config) { c.WordBits = 12 }},
		{"BadEndian", func(c *Config) { c.Endian = "middle" }},
		{"BadArrayMode", func(c *Config) { c.ArrayMode = "ragged" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
