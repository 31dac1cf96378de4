package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gametime/internal/config"
	"gametime/internal/expr"
)

func TestVersionedNames(t *testing.T) {
	assert.Equal(t, "x", VersionedName("x", 0))
	assert.Equal(t, "x<1>", VersionedName("x", 1))
	assert.Equal(t, "x<12>", VersionedName("x", 12))

	assert.Equal(t, "x", OriginalName("x<3>"))
	assert.Equal(t, "x", OriginalName("x"))
	assert.Equal(t, 3, VersionOf("x<3>"))
	assert.Equal(t, 0, VersionOf("x"))
}

func TestCountersPropagateToLaterBlocks(t *testing.T) {
	source := `
unit prop word 32 {
  block 0 succ 1 {
    start @ 1
    x = chi @ 1 : i32
  }
  block 1 succ 2 {
    v = value add x, 1:i32 @ 3 : i32
  }
  block 2 {
    return @ 5
  }
}`
	p := buildPath(t, config.Default(), source, 0, 1, 2)

	// The assignment in block 1 bumps the counter in block 1 and every
	// later block, but not in block 0.
	assert.Equal(t, 0, p.addenda[0].Count("v"))
	assert.Equal(t, 1, p.addenda[1].Count("v"))
	assert.Equal(t, 1, p.addenda[2].Count("v"))
}

func TestUpdateExpressionUsesBlockAddendum(t *testing.T) {
	source := `
unit upd word 32 {
  block 0 succ 1 {
    start @ 1
    x = chi @ 1 : i32
    v = value add x, 1:i32 @ 2 : i32
  }
  block 1 {
    return @ 4
  }
}`
	p := buildPath(t, config.Default(), source, 0, 1)

	use := expr.New(expr.KindAdd, 32,
		expr.NewVariable("v", 32, nil), expr.NewVariable("x", 32, nil))
	updated := p.updateExpression(use, 1)
	assert.Equal(t, "(v<1> + x)", updated.Value(),
		"assigned variables version, untouched ones keep their bare name")

	require.Len(t, p.Conditions, 1)
	assert.Equal(t, "(v<1> == (x + 1))", p.Conditions[0].Expr.Value())
}
