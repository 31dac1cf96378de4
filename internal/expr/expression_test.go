package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpressionConstruction(t *testing.T) {
	t.Run("LeafRendering", func(t *testing.T) {
		x := NewVariable("x", 32, nil)
		assert.Equal(t, "x", x.Value())
		assert.Equal(t, 32, x.Bits())
		assert.Equal(t, KindVariable, x.Kind())

		c := NewConstant(-7, 16)
		assert.Equal(t, "-7", c.Value())
		assert.True(t, c.IsConstant())
	})

	t.Run("BinaryRendering", func(t *testing.T) {
		x := NewVariable("x", 32, nil)
		y := NewVariable("y", 32, nil)
		sum := New(KindAdd, 32, x, y)
		assert.Equal(t, "(x + y)", sum.Value())
	})

	t.Run("MemoryAndTernaryRendering", func(t *testing.T) {
		a := NewArrayVariable("a", 32, nil)
		i := NewVariable("i", 32, nil)
		access := New(KindArray, 32, a, i)
		assert.Equal(t, "a[i]", access.Value())

		off := New(KindOffset, 32, a, NewConstant(16, 32))
		assert.Equal(t, "(a . 16)", off.Value())

		ite := New(KindIte, 32, True(), a, i)
		assert.Equal(t, "ite(true, a, i)", ite.Value())

		st := New(KindStore, 32, a, i, NewConstant(1, 32))
		assert.Equal(t, "store(a, i, 1)", st.Value())
	})

	t.Run("FunctionRendering", func(t *testing.T) {
		x := NewVariable("x", 32, nil)
		y := NewVariable("y", 32, nil)
		body := New(KindAdd, 32, x, y)
		fn := New(KindFunction, 32, x, y, body)
		assert.Equal(t, "(f (x, y) (x + y))", fn.Value())
	})

	t.Run("ArityMismatchPanics", func(t *testing.T) {
		x := NewVariable("x", 32, nil)
		assert.Panics(t, func() { New(KindAdd, 32, x) })
		assert.Panics(t, func() { New(KindIte, 32, x, x) })
	})
}

func TestParameterAccess(t *testing.T) {
	x := NewVariable("x", 32, nil)
	y := NewVariable("y", 32, nil)
	sum := New(KindAdd, 32, x, y)

	t.Run("OutOfRangePanics", func(t *testing.T) {
		assert.Panics(t, func() { sum.Parameter(-1) })
		assert.Panics(t, func() { sum.Parameter(2) })
	})

	t.Run("UpdateParameterRerendersValue", func(t *testing.T) {
		z := NewVariable("z", 32, nil)
		updated := sum.UpdateParameter(1, z)
		assert.Equal(t, "(x + z)", updated.Value())
		// The original is untouched.
		assert.Equal(t, "(x + y)", sum.Value())
	})

	t.Run("UpdateParameterRederivesConcatWidth", func(t *testing.T) {
		hi := NewVariable("hi", 16, nil)
		lo := NewVariable("lo", 16, nil)
		cat := New(KindConcat, 32, hi, lo)
		wide := NewVariable("w", 24, nil)
		updated := cat.UpdateParameter(0, wide)
		assert.Equal(t, 40, updated.Bits())
	})
}

func TestEquality(t *testing.T) {
	x := NewVariable("x", 32, nil)
	y := NewVariable("y", 32, nil)

	t.Run("ReflexiveSymmetric", func(t *testing.T) {
		e1 := New(KindAdd, 32, x, y)
		e2 := New(KindAdd, 32, x.Clone(), y.Clone())
		assert.True(t, e1.Equal(e1))
		assert.True(t, e1.Equal(e2))
		assert.True(t, e2.Equal(e1))
	})

	t.Run("DifferentWidthsDiffer", func(t *testing.T) {
		assert.False(t, NewConstant(4, 8).Equal(NewConstant(4, 32)))
	})

	t.Run("AlphaInvariance", func(t *testing.T) {
		a := NewVariable("a", 32, nil)
		b := NewVariable("b", 32, nil)
		body := New(KindAdd, 32, a, NewConstant(1, 32))
		f1 := New(KindFunction, 32, a, body)
		f2 := New(KindFunction, 32, b, body.Replace(a, b))
		assert.True(t, f1.Equal(f2), "functions should be equal modulo formal renaming")
	})

	t.Run("HashConsistentWithEquality", func(t *testing.T) {
		a := NewVariable("a", 32, nil)
		b := NewVariable("b", 32, nil)
		body := New(KindMul, 32, a, a)
		f1 := New(KindFunction, 32, a, body)
		f2 := New(KindFunction, 32, b, body.Replace(a, b))
		require.True(t, f1.Equal(f2))
		assert.Equal(t, f1.Hash(), f2.Hash())
		assert.Equal(t, f1.Key(), f2.Key())
	})
}

func TestReplace(t *testing.T) {
	x := NewVariable("x", 32, nil)
	y := NewVariable("y", 32, nil)

	t.Run("ReplaceWithSelfIsIdentity", func(t *testing.T) {
		e := New(KindMul, 32, x, New(KindAdd, 32, x, y))
		assert.True(t, e.Replace(x, x).Equal(e))
	})

	t.Run("RoundTripWithFreshVariable", func(t *testing.T) {
		e := New(KindMul, 32, x, New(KindAdd, 32, x, y))
		z := NewVariable("z", 32, nil)
		assert.True(t, e.Replace(x, z).Replace(z, x).Equal(e))
	})

	t.Run("LeafMismatchClones", func(t *testing.T) {
		replaced := x.Replace(y, NewConstant(0, 32))
		assert.True(t, replaced.Equal(x))
	})

	t.Run("ReplacementContainingNeedle", func(t *testing.T) {
		e := New(KindAdd, 32, x, y)
		grown := e.Replace(x, New(KindAdd, 32, x, NewConstant(1, 32)))
		assert.Equal(t, "((x + 1) + y)", grown.Value())
	})
}

func TestStructuralCollections(t *testing.T) {
	t.Run("MapUsesStructuralKeys", func(t *testing.T) {
		m := NewMap()
		k1 := New(KindAdd, 32, NewVariable("x", 32, nil), NewConstant(1, 32))
		k2 := New(KindAdd, 32, NewVariable("x", 32, nil), NewConstant(1, 32))
		m.Put(k1, NewConstant(9, 32))
		v, ok := m.Get(k2)
		require.True(t, ok, "structurally equal keys should resolve")
		assert.Equal(t, "9", v.Value())
	})

	t.Run("SetDeduplicates", func(t *testing.T) {
		s := NewSet()
		s.Add(NewVariable("v", 32, nil))
		s.Add(NewVariable("v", 32, nil))
		assert.Equal(t, 1, s.Len())
	})

	t.Run("InsertionOrderPreserved", func(t *testing.T) {
		s := NewSet()
		s.Add(NewVariable("b", 32, nil))
		s.Add(NewVariable("a", 32, nil))
		var names []string
		s.Each(func(e *Expression) { names = append(names, e.Value()) })
		assert.Equal(t, []string{"b", "a"}, names)
	})
}
