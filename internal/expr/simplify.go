package expr

import (
	"math/big"
)

// Arithmetic and algebraic simplification. The rewriter runs bottom-up and
// dispatches on the operator; every rule strictly shrinks the term or folds
// to a constant, so a single pass reaches a fixed point and Simplify is
// idempotent.
//
// Division and remainder distribute over a constant-factor multiplication
// when the divisor divides the factor. That rule is what undoes the
// element-size scaling introduced by pointer arithmetic, so it is not
// optional.

// Simplify returns the simplified form of e. The input is never mutated.
func Simplify(e *Expression) *Expression {
	if e == nil || e.op.IsLeaf() {
		return e
	}
	params := make([]*Expression, len(e.params))
	for i, p := range e.params {
		params[i] = Simplify(p)
	}
	out := New(e.op.Kind, deriveBits(e.op, e.bits, params), params...)
	out.typ = e.typ

	switch e.op.Kind {
	case KindAdd:
		return simplifyAdd(out)
	case KindSub:
		return simplifySub(out)
	case KindMul:
		return simplifyMul(out)
	case KindSDiv, KindUDiv:
		return simplifyDiv(out)
	case KindRem:
		return simplifyRem(out)
	case KindNegate:
		return simplifyNegate(out)
	case KindIte:
		return simplifyIte(out)
	default:
		if e.op.IsComparison() {
			return simplifyComparison(out)
		}
	}
	return out
}

func simplifyAdd(e *Expression) *Expression {
	a, b := e.params[0], e.params[1]
	if av, ok := a.ConstInt(); ok {
		if bv, ok := b.ConstInt(); ok {
			return NewConstantBig(new(big.Int).Add(av, bv), e.bits)
		}
		if av.Sign() == 0 {
			return b
		}
	}
	if bv, ok := b.ConstInt(); ok && bv.Sign() == 0 {
		return a
	}
	return e
}

func simplifySub(e *Expression) *Expression {
	a, b := e.params[0], e.params[1]
	if av, ok := a.ConstInt(); ok {
		if bv, ok := b.ConstInt(); ok {
			return NewConstantBig(new(big.Int).Sub(av, bv), e.bits)
		}
	}
	if bv, ok := b.ConstInt(); ok && bv.Sign() == 0 {
		return a
	}
	return e
}

func simplifyMul(e *Expression) *Expression {
	a, b := e.params[0], e.params[1]
	av, aConst := a.ConstInt()
	bv, bConst := b.ConstInt()
	if aConst && bConst {
		return NewConstantBig(new(big.Int).Mul(av, bv), e.bits)
	}
	if aConst {
		if av.Sign() == 0 {
			return NewConstant(0, e.bits)
		}
		if av.Cmp(big.NewInt(1)) == 0 {
			return b
		}
	}
	if bConst {
		if bv.Sign() == 0 {
			return NewConstant(0, e.bits)
		}
		if bv.Cmp(big.NewInt(1)) == 0 {
			return a
		}
	}
	return e
}

// constFactor recognizes a multiplication with one constant factor.
func constFactor(e *Expression) (factor *big.Int, other *Expression, ok bool) {
	if e.op.Kind != KindMul {
		return nil, nil, false
	}
	if v, isConst := e.params[0].ConstInt(); isConst {
		return v, e.params[1], true
	}
	if v, isConst := e.params[1].ConstInt(); isConst {
		return v, e.params[0], true
	}
	return nil, nil, false
}

func simplifyDiv(e *Expression) *Expression {
	a, b := e.params[0], e.params[1]
	bv, bConst := b.ConstInt()
	if av, ok := a.ConstInt(); ok && bConst && bv.Sign() != 0 {
		return NewConstantBig(new(big.Int).Quo(av, bv), e.bits)
	}
	if bConst && bv.Cmp(big.NewInt(1)) == 0 {
		return a
	}
	if bConst && bv.Sign() != 0 {
		// (c * x) / d -> (c/d) * x when d divides c
		if factor, other, ok := constFactor(a); ok {
			q, r := new(big.Int).QuoRem(factor, bv, new(big.Int))
			if r.Sign() == 0 {
				return Simplify(New(KindMul, e.bits, NewConstantBig(q, e.bits), other))
			}
		}
		// (x ± y) / d -> x/d ± y/d when both halves divide out exactly
		if a.op.Kind == KindAdd || a.op.Kind == KindSub {
			qa := Simplify(New(e.op.Kind, e.bits, a.params[0], b))
			qb := Simplify(New(e.op.Kind, e.bits, a.params[1], b))
			if qa.op.Kind != e.op.Kind && qb.op.Kind != e.op.Kind {
				return Simplify(New(a.op.Kind, e.bits, qa, qb))
			}
		}
	}
	return e
}

func simplifyRem(e *Expression) *Expression {
	a, b := e.params[0], e.params[1]
	bv, bConst := b.ConstInt()
	if av, ok := a.ConstInt(); ok && bConst && bv.Sign() != 0 {
		return NewConstantBig(new(big.Int).Rem(av, bv), e.bits)
	}
	if bConst && bv.CmpAbs(big.NewInt(1)) == 0 {
		return NewConstant(0, e.bits)
	}
	if bConst && bv.Sign() != 0 {
		// (c * x) % d -> 0 when d divides c
		if factor, _, ok := constFactor(a); ok {
			if new(big.Int).Rem(factor, bv).Sign() == 0 {
				return NewConstant(0, e.bits)
			}
		}
		// (x ± y) % d folds when both residues are constants
		if a.op.Kind == KindAdd || a.op.Kind == KindSub {
			ra := Simplify(New(KindRem, e.bits, a.params[0], b))
			rb := Simplify(New(KindRem, e.bits, a.params[1], b))
			rav, raConst := ra.ConstInt()
			rbv, rbConst := rb.ConstInt()
			if raConst && rbConst {
				sum := new(big.Int)
				if a.op.Kind == KindAdd {
					sum.Add(rav, rbv)
				} else {
					sum.Sub(rav, rbv)
				}
				return NewConstantBig(sum.Rem(sum, bv), e.bits)
			}
		}
	}
	return e
}

func simplifyNegate(e *Expression) *Expression {
	// Double negation is deliberately left alone; only constants fold.
	if v, ok := e.params[0].ConstInt(); ok {
		return NewConstantBig(new(big.Int).Neg(v), e.bits)
	}
	return e
}

func simplifyIte(e *Expression) *Expression {
	switch e.params[0].op.Kind {
	case KindTrue:
		return e.params[1]
	case KindFalse:
		return e.params[2]
	}
	return e
}

func simplifyComparison(e *Expression) *Expression {
	a, b := e.params[0], e.params[1]
	av, aConst := a.ConstInt()
	bv, bConst := b.ConstInt()
	if !aConst || !bConst {
		return e
	}
	unsigned := false
	switch e.op.Kind {
	case KindLessU, KindLessEqualU, KindGreaterU, KindGreaterEqualU:
		unsigned = true
	}
	if unsigned {
		av = toUnsigned(av, a.bits)
		bv = toUnsigned(bv, b.bits)
	}
	cmp := av.Cmp(bv)
	holds := false
	switch e.op.Kind {
	case KindEqual, KindFloatEqual:
		holds = cmp == 0
	case KindNotEqual, KindFloatNotEqual:
		holds = cmp != 0
	case KindLess, KindLessU, KindLessF:
		holds = cmp < 0
	case KindLessEqual, KindLessEqualU, KindLessEqualF:
		holds = cmp <= 0
	case KindGreater, KindGreaterU, KindGreaterF:
		holds = cmp > 0
	case KindGreaterEqual, KindGreaterEqualU, KindGreaterEqualF:
		holds = cmp >= 0
	}
	if holds {
		return True()
	}
	return False()
}

// toUnsigned reinterprets a signed constant as its two's-complement
// unsigned value at the given width.
func toUnsigned(v *big.Int, bits int) *big.Int {
	if v.Sign() >= 0 {
		return v
	}
	modulus := new(big.Int).Lsh(big.NewInt(1), uint(bits))
	return new(big.Int).Add(modulus, v)
}
