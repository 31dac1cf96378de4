package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimplifyIdentities(t *testing.T) {
	x := NewVariable("x", 32, nil)

	cases := []struct {
		name string
		in   *Expression
		want string
	}{
		{"AddZeroRight", New(KindAdd, 32, x, NewConstant(0, 32)), "x"},
		{"AddZeroLeft", New(KindAdd, 32, NewConstant(0, 32), x), "x"},
		{"SubZero", New(KindSub, 32, x, NewConstant(0, 32)), "x"},
		{"MulOne", New(KindMul, 32, x, NewConstant(1, 32)), "x"},
		{"MulZero", New(KindMul, 32, x, NewConstant(0, 32)), "0"},
		{"DivOne", New(KindSDiv, 32, x, NewConstant(1, 32)), "x"},
		{"RemOne", New(KindRem, 32, x, NewConstant(1, 32)), "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Simplify(tc.in).Value())
		})
	}
}

func TestSimplifyConstantFolding(t *testing.T) {
	t.Run("Arithmetic", func(t *testing.T) {
		sum := New(KindAdd, 32, NewConstant(3, 32), NewConstant(4, 32))
		assert.Equal(t, "7", Simplify(sum).Value())

		quot := New(KindSDiv, 32, NewConstant(-9, 32), NewConstant(2, 32))
		assert.Equal(t, "-4", Simplify(quot).Value(), "division truncates toward zero")
	})

	t.Run("NegativeFactorFolds", func(t *testing.T) {
		prod := New(KindMul, 32, NewConstant(-1, 32), NewConstant(-13, 32))
		assert.Equal(t, "13", Simplify(prod).Value())
	})

	t.Run("DoubleNegationNotFolded", func(t *testing.T) {
		x := NewVariable("x", 32, nil)
		nn := New(KindNegate, 32, New(KindNegate, 32, x))
		assert.Equal(t, "(- (- x))", Simplify(nn).Value())
	})

	t.Run("ComparisonOfConstants", func(t *testing.T) {
		lt := New(KindLess, 32, NewConstant(2, 32), NewConstant(5, 32))
		assert.Equal(t, KindTrue, Simplify(lt).Kind())

		eq := New(KindEqual, 32, NewConstant(2, 32), NewConstant(5, 32))
		assert.Equal(t, KindFalse, Simplify(eq).Kind())
	})

	t.Run("UnsignedComparisonWraps", func(t *testing.T) {
		// -1 at 32 bits is the largest unsigned value.
		lt := New(KindLessU, 32, NewConstant(-1, 32), NewConstant(1, 32))
		assert.Equal(t, KindFalse, Simplify(lt).Kind())
	})
}

func TestSimplifyDivisionDistribution(t *testing.T) {
	x := NewVariable("x", 32, nil)

	t.Run("DivUndoesScaling", func(t *testing.T) {
		scaled := New(KindMul, 32, x, NewConstant(32, 32))
		q := New(KindSDiv, 32, scaled, NewConstant(32, 32))
		assert.Equal(t, "x", Simplify(q).Value())
	})

	t.Run("DivPartialFactor", func(t *testing.T) {
		scaled := New(KindMul, 32, x, NewConstant(64, 32))
		q := New(KindSDiv, 32, scaled, NewConstant(32, 32))
		assert.Equal(t, "(2 * x)", Simplify(q).Value())
	})

	t.Run("RemOfScaledIsZero", func(t *testing.T) {
		scaled := New(KindMul, 32, x, NewConstant(32, 32))
		r := New(KindRem, 32, scaled, NewConstant(32, 32))
		assert.Equal(t, "0", Simplify(r).Value())
	})

	t.Run("DivDistributesOverSum", func(t *testing.T) {
		scaled := New(KindAdd, 32,
			New(KindMul, 32, x, NewConstant(32, 32)),
			NewConstant(64, 32))
		q := New(KindSDiv, 32, scaled, NewConstant(32, 32))
		assert.Equal(t, "(x + 2)", Simplify(q).Value())
	})

	t.Run("IndivisibleLeftAlone", func(t *testing.T) {
		q := New(KindSDiv, 32, x, NewConstant(3, 32))
		assert.Equal(t, "(x / 3)", Simplify(q).Value())
	})
}

func TestSimplifyIte(t *testing.T) {
	a := NewVariable("a", 32, nil)
	b := NewVariable("b", 32, nil)
	assert.Equal(t, "a", Simplify(New(KindIte, 32, True(), a, b)).Value())
	assert.Equal(t, "b", Simplify(New(KindIte, 32, False(), a, b)).Value())
}

func TestSimplifyIdempotent(t *testing.T) {
	x := NewVariable("x", 32, nil)
	samples := []*Expression{
		New(KindAdd, 32, x, NewConstant(0, 32)),
		New(KindSDiv, 32, New(KindMul, 32, x, NewConstant(32, 32)), NewConstant(32, 32)),
		New(KindIte, 32, New(KindLess, 32, NewConstant(1, 32), NewConstant(2, 32)), x, NewConstant(0, 32)),
		New(KindRem, 32, x, NewConstant(5, 32)),
	}
	for _, e := range samples {
		once := Simplify(e)
		twice := Simplify(once)
		assert.True(t, once.Equal(twice), "simplify should be idempotent on %s", e.Value())
	}
}
