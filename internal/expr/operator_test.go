package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperatorTable(t *testing.T) {
	t.Run("Singletons", func(t *testing.T) {
		assert.Same(t, Op(KindAdd), Op(KindAdd))
		assert.Equal(t, ArityBinary, Op(KindAdd).Arity)
		assert.Equal(t, ArityNil, Op(KindConstant).Arity)
		assert.Equal(t, ArityTernary, Op(KindStore).Arity)
		assert.Equal(t, ArityPoly, Op(KindFunction).Arity)
	})

	t.Run("Predicates", func(t *testing.T) {
		assert.True(t, Op(KindLessU).IsComparison())
		assert.True(t, Op(KindAnd).IsBoolean())
		assert.True(t, Op(KindTrue).IsBoolean())
		assert.False(t, Op(KindAdd).IsBoolean())
		assert.True(t, Op(KindVariable).IsLeaf())
	})

	t.Run("Negation", func(t *testing.T) {
		assert.Equal(t, KindGreaterEqual, Op(KindLess).Negation().Kind)
		assert.Equal(t, KindLessEqualU, Op(KindGreaterU).Negation().Kind)
		assert.Equal(t, KindNotEqual, Op(KindEqual).Negation().Kind)
		assert.Nil(t, Op(KindAdd).Negation())
	})
}
