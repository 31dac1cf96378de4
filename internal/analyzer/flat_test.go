package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gametime/internal/config"
)

const twoDimSource = `
unit grid word 32 {
  block 0 {
    start @ 1
    a = chi @ 1 : [4][8]i32
    i = chi @ 1 : i32
    j = chi @ 1 : i32
    %t0 = value subscript a, i @ 4 : *i32
    %t1 = value subscript %t0, j @ 4 : i32
    y = value assign %t1 @ 4 : i32
  }
}`

func TestTwoDimensionalAccess(t *testing.T) {
	p := buildPath(t, config.Default(), twoDimSource, 0)
	values := conditionValues(p)

	assert.Contains(t, values, "(__gtINDEX0 == i)")
	assert.Contains(t, values, "(__gtINDEX1 == j)")
	assert.Contains(t, values, "((0 <= __gtINDEX0) && (__gtINDEX0 < 4))")
	assert.Contains(t, values, "((0 <= __gtINDEX1) && (__gtINDEX1 < 8))")

	dims, ok := p.ArrayDimensions["a"]
	require.True(t, ok)
	assert.Equal(t, []int{32, 32, 32}, dims)

	require.Len(t, p.ArrayAccesses, 1)
	assert.Equal(t, []int{0, 1}, p.ArrayAccesses[0].Indices)

	query, err := p.Query()
	require.NoError(t, err)
	assert.Contains(t, query, "(select (select a __gtINDEX0) __gtINDEX1)")
	assert.Contains(t, query,
		"(declare-fun a () (Array (_ BitVec 32) (Array (_ BitVec 32) (_ BitVec 32))))")
}

func TestTwoDimensionalAccessFlat(t *testing.T) {
	cfg := config.Default()
	cfg.ArrayMode = config.ArrayModeFlat
	p := buildPath(t, cfg, twoDimSource, 0)

	query, err := p.Query()
	require.NoError(t, err)
	assert.Contains(t, query, "(select a (concat __gtINDEX0 __gtINDEX1))")
	assert.Contains(t, query, "(declare-fun a () (Array (_ BitVec 64) (_ BitVec 32)))")
}
