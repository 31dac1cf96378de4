package analyzer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gametime/grammar"
	"gametime/internal/config"
	"gametime/internal/expr"
	"gametime/internal/ssa"
)

// buildPath parses a fixture, builds its single unit, and runs the analyzer
// over the given block sequence.
func buildPath(t *testing.T, cfg *config.Config, source string, blockIDs ...int) *Path {
	t.Helper()
	file, err := grammar.ParseSource("fixture.ir", source)
	require.NoError(t, err, "fixture should parse")
	program, err := ssa.BuildProgram(file)
	require.NoError(t, err, "fixture should build")
	var unit *ssa.Unit
	for _, u := range program.Units {
		unit = u
	}
	require.NotNil(t, unit)
	path, err := NewPath(cfg, unit, blockIDs)
	require.NoError(t, err)
	require.NoError(t, path.GenerateConditionsAndAssignments())
	return path
}

func conditionValues(p *Path) []string {
	out := make([]string, len(p.Conditions))
	for i, c := range p.Conditions {
		out[i] = c.Expr.Value()
	}
	return out
}

func TestEmptyPathYieldsSingleTrue(t *testing.T) {
	source := `
unit straight word 32 {
  block 0 {
    start @ 1
    return @ 2
  }
}`
	p := buildPath(t, config.Default(), source, 0)

	require.Len(t, p.Conditions, 1, "a path with nothing to say yields exactly one condition")
	assert.Equal(t, expr.KindTrue, p.Conditions[0].Expr.Kind())
	assert.Equal(t, 0, p.Conditions[0].BlockID, "the condition anchors at the first block")
	assert.Empty(t, p.ArrayDimensions)

	query, err := p.Query()
	require.NoError(t, err)
	assert.Contains(t, query, "(assert (= __gtCONSTRAINT0 true))")
	assert.Contains(t, query, "(assert (and __gtCONSTRAINT0))")
}

func TestDivisionByConstant(t *testing.T) {
	source := `
unit div word 32 {
  block 0 {
    start @ 1
    x = chi @ 1 : i32
    y = value div x, 4:i32 @ 3 : i32
  }
}`
	p := buildPath(t, config.Default(), source, 0)
	values := conditionValues(p)

	assert.Contains(t, values, "(y<1> == (x / 4))")
	assert.Contains(t, values, "(4 != 0)",
		"the divisor guard is emitted even for a literal constant")

	// Exactly one guard for the divisor.
	guards := 0
	for _, v := range values {
		if v == "(4 != 0)" {
			guards++
		}
	}
	assert.Equal(t, 1, guards)

	query, err := p.Query()
	require.NoError(t, err)
	assert.Contains(t, query, "bvsdiv")
}

func TestDivisorGuardDeduplicated(t *testing.T) {
	source := `
unit twodiv word 32 {
  block 0 {
    start @ 1
    x = chi @ 1 : i32
    k = chi @ 1 : i32
    y = value div x, k @ 3 : i32
    z = value rem x, k @ 4 : i32
  }
}`
	p := buildPath(t, config.Default(), source, 0)
	guards := 0
	for _, v := range conditionValues(p) {
		if v == "(k != 0)" {
			guards++
		}
	}
	assert.Equal(t, 1, guards, "one guard per distinct divisor")
}

func TestArraySubscript(t *testing.T) {
	source := `
unit sub word 32 {
  block 0 {
    start @ 1
    p = chi @ 1 : [8]i32
    i = chi @ 1 : i32
    %t0 = value subscript p, i @ 4 : i32
    y = value assign %t0 @ 4 : i32
  }
}`
	p := buildPath(t, config.Default(), source, 0)
	values := conditionValues(p)

	assert.Contains(t, values, "(__gtINDEX0 == i)")
	assert.Contains(t, values, "((0 <= __gtINDEX0) && (__gtINDEX0 < 8))")

	require.Len(t, p.ArrayAccesses, 1)
	assert.Equal(t, "p", p.ArrayAccesses[0].Array.Value())
	assert.Equal(t, []int{0}, p.ArrayAccesses[0].Indices)
	assert.True(t, p.TempIndexExprs[0].Equal(expr.NewVariable("i", 32, nil).WithType(p.TempIndexExprs[0].Type())))

	dims, ok := p.ArrayDimensions["p"]
	require.True(t, ok)
	assert.Equal(t, []int{32, 32}, dims)

	query, err := p.Query()
	require.NoError(t, err)
	assert.Contains(t, query, "(select p __gtINDEX0)")
}

func TestAddressTakenPromotion(t *testing.T) {
	source := `
unit addr word 32 {
  block 0 {
    start @ 1
    x = chi @ 1 : i32
    p = value assign addr(x) @ 3 : *i32
    mem(p) = value assign 7:i32 @ 4 : i32
  }
}`
	p := buildPath(t, config.Default(), source, 0)
	values := conditionValues(p)

	ptr, ok := p.AddressTaken.Get(expr.NewVariable("x", 32, nil))
	require.True(t, ok, "x should be recorded as address-taken")
	assert.Equal(t, "__gtPTR0", ptr.Value())

	// The synthesized *p = x equality anchors the temporary pointer; the
	// store through the pointer resolves to the variable via the alias
	// table, not to a pointer in the query.
	joined := strings.Join(values, "\n")
	assert.Contains(t, joined, "select(__gtPTR0, __gtINDEX0)")
	assert.Contains(t, values, "(x<1> == 7)")

	query, err := p.Query()
	require.NoError(t, err)
	assert.Contains(t, query, "(= x<1> (_ bv7 32))")
}

func TestAggregateWordAccess(t *testing.T) {
	source := `
unit agg word 32 {
  type Pair { a: i16 @ 0; b: i16 @ 16 }
  block 0 {
    start @ 1
    s = chi @ 1 : *Pair
    w = value assign mem(s):i32 @ 4 : i32
  }
}`
	t.Run("LittleEndian", func(t *testing.T) {
		p := buildPath(t, config.Default(), source, 0)
		joined := strings.Join(conditionValues(p), "\n")
		bPos := strings.Index(joined, "__gtFIELD_b__gtAGG_Pair")
		aPos := strings.Index(joined, "__gtFIELD_a__gtAGG_Pair")
		require.GreaterOrEqual(t, bPos, 0)
		require.GreaterOrEqual(t, aPos, 0)
		assert.Less(t, bPos, aPos, "little-endian puts the high-offset field first in the concat")
		assert.Contains(t, joined, "concat(")
	})

	t.Run("BigEndian", func(t *testing.T) {
		cfg := config.Default()
		cfg.Endian = config.EndianBig
		p := buildPath(t, cfg, source, 0)
		joined := strings.Join(conditionValues(p), "\n")
		bPos := strings.Index(joined, "__gtFIELD_b__gtAGG_Pair")
		aPos := strings.Index(joined, "__gtFIELD_a__gtAGG_Pair")
		require.GreaterOrEqual(t, bPos, 0)
		require.GreaterOrEqual(t, aPos, 0)
		assert.Less(t, aPos, bPos, "big-endian reverses the field order")
	})
}

func TestBranchDirections(t *testing.T) {
	source := `
unit br word 32 {
  block 0 succ 1, 2 {
    start @ 1
    x = chi @ 1 : i32
    %c0 = cmp lt x, 10:i32 @ 3 : i32
    branch %c0, 1, 2 @ 3
  }
  block 1 succ 3, 4 {
    %c1 = cmp gt x, 5:i32 @ 5 : i32
    branch %c1, 3, 4 @ 5
  }
  block 2 {
    return @ 7
  }
  block 3 {
    return @ 8
  }
  block 4 {
    return @ 9
  }
}`
	p := buildPath(t, config.Default(), source, 0, 1, 4)
	values := conditionValues(p)

	require.Len(t, values, 2)
	assert.Equal(t, "(x < 10)", values[0], "taken true edge leaves the compare untouched")
	assert.Equal(t, "(! (x > 5))", values[1], "taken false edge wraps the compare in Not")
	assert.Equal(t, 0, p.Conditions[0].BlockID)
	assert.Equal(t, 1, p.Conditions[1].BlockID)

	require.Len(t, p.Branches, 2)
	assert.Equal(t, BranchRecord{Line: 3, TakenTrue: true}, p.Branches[0])
	assert.Equal(t, BranchRecord{Line: 5, TakenTrue: false}, p.Branches[1])

	dir := t.TempDir()
	edges := filepath.Join(dir, "edges")
	identity := func(id int) int { return id }
	require.NoError(t, p.DumpConditionEdges(edges, identity, identity))
	data, err := os.ReadFile(edges)
	require.NoError(t, err)
	assert.Equal(t, "0: 0 1\n1: 1 4\n", string(data))

	branches := filepath.Join(dir, "branches")
	require.NoError(t, p.DumpBranches(branches))
	data, err = os.ReadFile(branches)
	require.NoError(t, err)
	assert.Equal(t, "3: True\n5: False\n", string(data))
}

func TestSwitchIsFatal(t *testing.T) {
	source := `
unit sw word 32 {
  block 0 succ 1, 2 {
    start @ 1
    x = chi @ 1 : i32
    switch x, 1, 2 @ 3
  }
  block 1 {
    return @ 4
  }
  block 2 {
    return @ 5
  }
}`
	file, err := grammar.ParseSource("fixture.ir", source)
	require.NoError(t, err)
	program, err := ssa.BuildProgram(file)
	require.NoError(t, err)
	unit, err := program.Unit("sw")
	require.NoError(t, err)

	path, err := NewPath(config.Default(), unit, []int{0, 1})
	require.NoError(t, err)
	err = path.GenerateConditionsAndAssignments()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "G0101")
}

func TestAssumeAnnotation(t *testing.T) {
	source := `
unit asm word 32 {
  block 0 {
    start @ 1
    x = chi @ 1 : i32
    %c = cmp lt x, 100:i32 @ 3 : i32
    call gt_assume(%c) @ 3
  }
}`
	p := buildPath(t, config.Default(), source, 0)
	values := conditionValues(p)
	assert.Contains(t, values, "((x < 100) != 0)")

	_, err := p.Query()
	require.NoError(t, err, "boolean sub-terms in equalities must lower")
}

func TestAssignmentVersioning(t *testing.T) {
	source := `
unit ver word 32 {
  block 0 succ 1 {
    start @ 1
    x = chi @ 1 : i32
    y = value add x, 1:i32 @ 3 : i32
  }
  block 1 {
    y#1 = value add y, 1:i32 @ 4 : i32
  }
}`
	p := buildPath(t, config.Default(), source, 0, 1)
	values := conditionValues(p)
	assert.Equal(t, []string{
		"(y<1> == (x + 1))",
		"(y<2> == (y<1> + 1))",
	}, values, "later uses pick up the incremented version")
}

func TestPathValidation(t *testing.T) {
	source := `
unit v word 32 {
  block 0 succ 0 {
    start @ 1
  }
}`
	file, err := grammar.ParseSource("fixture.ir", source)
	require.NoError(t, err)
	program, err := ssa.BuildProgram(file)
	require.NoError(t, err)
	unit, err := program.Unit("v")
	require.NoError(t, err)

	t.Run("RepeatedBlockRejected", func(t *testing.T) {
		_, err := NewPath(config.Default(), unit, []int{0, 0})
		assert.Error(t, err)
	})

	t.Run("UnknownBlockRejected", func(t *testing.T) {
		_, err := NewPath(config.Default(), unit, []int{0, 9})
		assert.Error(t, err)
	})

	t.Run("UnknownUnitRejected", func(t *testing.T) {
		_, err := program.Unit("missing")
		assert.Error(t, err)
	})
}
