package smt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gametime/internal/expr"
)

func baseInput(conds ...*expr.Expression) *Input {
	return &Input{
		Conditions:       conds,
		WordBits:         32,
		ConstraintPrefix: "__gtCONSTRAINT",
		Dimensions:       map[string][]int{},
	}
}

func TestLowerWellFormedness(t *testing.T) {
	in := baseInput(expr.True())
	query, err := Lower(in)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(query, "(set-logic QF_AUFBV)\n"))
	assert.True(t, strings.HasSuffix(query, "(check-sat)\n(exit)\n"))
	assert.Contains(t, query, "(declare-fun __gtCONSTRAINT0 () Bool)")
	assert.Contains(t, query, "(assert (= __gtCONSTRAINT0 true))")
	assert.Contains(t, query, "(assert (and __gtCONSTRAINT0))")
}

func TestLowerDeclaresBeforeUse(t *testing.T) {
	x := expr.NewVariable("x", 32, nil)
	cond := expr.New(expr.KindEqual, 32, x, expr.NewConstant(4, 32))
	in := baseInput(cond)
	in.Variables = []*expr.Expression{x}

	query, err := Lower(in)
	require.NoError(t, err)
	decl := strings.Index(query, "(declare-fun x () (_ BitVec 32))")
	use := strings.Index(query, "(= x (_ bv4 32))")
	require.GreaterOrEqual(t, decl, 0)
	require.GreaterOrEqual(t, use, 0)
	assert.Less(t, decl, use, "declaration must precede first use")
}

func TestLowerOperators(t *testing.T) {
	x := expr.NewVariable("x", 32, nil)
	y := expr.NewVariable("y", 32, nil)

	t.Run("DivisionAndRemainder", func(t *testing.T) {
		cond := expr.New(expr.KindEqual, 32, y,
			expr.New(expr.KindSDiv, 32, x, expr.NewConstant(4, 32)))
		query, err := Lower(baseInputWithVars(cond, x, y))
		require.NoError(t, err)
		assert.Contains(t, query, "(bvsdiv x (_ bv4 32))")

		// Remainder keeps the signed form regardless of operand signs.
		cond = expr.New(expr.KindEqual, 32, y,
			expr.New(expr.KindRem, 32, x, expr.NewConstant(4, 32)))
		query, err = Lower(baseInputWithVars(cond, x, y))
		require.NoError(t, err)
		assert.Contains(t, query, "(bvsmod x (_ bv4 32))")
	})

	t.Run("NegativeConstants", func(t *testing.T) {
		cond := expr.New(expr.KindEqual, 32, x, expr.NewConstant(-5, 32))
		query, err := Lower(baseInputWithVars(cond, x))
		require.NoError(t, err)
		assert.Contains(t, query, "(bvneg (_ bv5 32))")
	})

	t.Run("IndexedForms", func(t *testing.T) {
		ze := expr.New(expr.KindZeroExtend, 48, x, expr.NewConstant(16, 32))
		ext := expr.New(expr.KindBitExtract, 8, x,
			expr.NewConstant(0, 32), expr.NewConstant(7, 32))
		cond := expr.New(expr.KindEqual, 48, ze,
			expr.New(expr.KindZeroExtend, 48, expr.New(expr.KindConcat, 40, ext, x),
				expr.NewConstant(8, 32)))
		query, err := Lower(baseInputWithVars(cond, x))
		require.NoError(t, err)
		assert.Contains(t, query, "((_ zero_extend 16) x)")
		assert.Contains(t, query, "((_ extract 7 0) x)")
		assert.Contains(t, query, "(concat ")
	})

	t.Run("BooleanLiftAppliesToBothSides", func(t *testing.T) {
		cmp := expr.New(expr.KindLess, 32, x, y)
		cond := expr.New(expr.KindEqual, 32, cmp, expr.True())
		query, err := Lower(baseInputWithVars(cond, x, y))
		require.NoError(t, err)
		assert.Contains(t, query, "(ite (bvslt x y) (_ bv1 32) (_ bv0 32))")
		assert.Contains(t, query, "(ite true (_ bv1 32) (_ bv0 32))")
	})

	t.Run("PlainBitvectorEqualityNotLifted", func(t *testing.T) {
		cond := expr.New(expr.KindEqual, 32, x, y)
		query, err := Lower(baseInputWithVars(cond, x, y))
		require.NoError(t, err)
		assert.Contains(t, query, "(= x y)")
		assert.NotContains(t, query, "(ite (= x y)")
	})
}

func TestLowerArrays(t *testing.T) {
	a := expr.NewArrayVariable("a", 32, nil)
	i := expr.NewVariable("i", 32, nil)
	j := expr.NewVariable("j", 32, nil)
	sel2 := expr.New(expr.KindSelect, 32,
		expr.New(expr.KindSelect, 32, a, i), j)
	cond := expr.New(expr.KindEqual, 32, sel2, expr.NewConstant(1, 32))

	dims := map[string][]int{"a": {32, 32, 16}}

	t.Run("NestedSort", func(t *testing.T) {
		in := baseInputWithVars(cond, i, j)
		in.Arrays = []*expr.Expression{a}
		in.Dimensions = dims
		query, err := Lower(in)
		require.NoError(t, err)
		assert.Contains(t, query,
			"(declare-fun a () (Array (_ BitVec 32) (Array (_ BitVec 32) (_ BitVec 16))))")
		assert.Contains(t, query, "(select (select a i) j)")
	})

	t.Run("FlatSortAndCompositeIndex", func(t *testing.T) {
		in := baseInputWithVars(cond, i, j)
		in.Arrays = []*expr.Expression{a}
		in.Dimensions = dims
		in.Flat = true
		query, err := Lower(in)
		require.NoError(t, err)
		assert.Contains(t, query, "(declare-fun a () (Array (_ BitVec 64) (_ BitVec 16)))")
		assert.Contains(t, query, "(select a (concat i j))")
	})

	t.Run("FlatStore", func(t *testing.T) {
		inner := expr.New(expr.KindStore, 32,
			expr.New(expr.KindSelect, 32, a, i), j, expr.NewConstant(9, 16))
		outer := expr.New(expr.KindStore, 32, a, i, inner)
		b := expr.NewArrayVariable("b", 32, nil)
		cond := expr.New(expr.KindEqual, 32, b, outer)
		in := baseInputWithVars(cond, i, j)
		in.Arrays = []*expr.Expression{a, b}
		in.Dimensions = map[string][]int{"a": {32, 32, 16}, "b": {32, 32, 16}}
		in.Flat = true
		query, err := Lower(in)
		require.NoError(t, err)
		assert.Contains(t, query, "(store a (concat i j) (_ bv9 16))")
	})

	t.Run("MissingDimensionsRejected", func(t *testing.T) {
		in := baseInputWithVars(cond, i, j)
		in.Arrays = []*expr.Expression{a}
		_, err := Lower(in)
		assert.Error(t, err)
	})
}

func baseInputWithVars(cond *expr.Expression, vars ...*expr.Expression) *Input {
	in := baseInput(cond)
	in.Variables = vars
	return in
}
