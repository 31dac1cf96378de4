package smt

import (
	"fmt"
	"math/big"
	"strings"

	"gametime/internal/errors"
	"gametime/internal/expr"
)

// Lowering of path conditions to an SMT-LIB v2 query in QF_AUFBV.
//
// Every condition is bound to a fresh boolean constant and asserted equal to
// it; the final assertion conjoins all of the constants. That structure lets
// a caller extract unsat cores over whole conditions.

// Input is everything the lowering needs from a populated path.
type Input struct {
	Conditions       []*expr.Expression
	Variables        []*expr.Expression
	Arrays           []*expr.Expression
	Dimensions       map[string][]int // keyed by original array variable name
	WordBits         int
	Flat             bool
	ConstraintPrefix string
}

type lowerer struct {
	in *Input
	b  strings.Builder
}

// Lower serializes the input to a complete query string.
func Lower(in *Input) (string, error) {
	l := &lowerer{in: in}
	l.b.WriteString("(set-logic QF_AUFBV)\n")

	for _, v := range in.Variables {
		l.b.WriteString(fmt.Sprintf("(declare-fun %s () (_ BitVec %d))\n",
			v.Value(), l.bitsOf(v)))
	}
	for _, a := range in.Arrays {
		sort, err := l.arraySort(a)
		if err != nil {
			return "", err
		}
		l.b.WriteString(fmt.Sprintf("(declare-fun %s () %s)\n", a.Value(), sort))
	}
	names := make([]string, len(in.Conditions))
	for k := range in.Conditions {
		names[k] = fmt.Sprintf("%s%d", in.ConstraintPrefix, k)
		l.b.WriteString(fmt.Sprintf("(declare-fun %s () Bool)\n", names[k]))
	}

	for k, c := range in.Conditions {
		lowered, err := l.lowerBool(c)
		if err != nil {
			return "", err
		}
		l.b.WriteString(fmt.Sprintf("(assert (= %s %s))\n", names[k], lowered))
	}

	l.b.WriteString(fmt.Sprintf("(assert (and %s))\n", strings.Join(names, " ")))
	l.b.WriteString("(check-sat)\n")
	l.b.WriteString("(exit)\n")
	return l.b.String(), nil
}

// arraySort derives the SMT sort of an array variable from its dimensions.
// Nested modelling nests one array sort per index level; flat modelling
// concatenates every index width into a single composite index.
func (l *lowerer) arraySort(a *expr.Expression) (string, error) {
	dims, ok := l.in.Dimensions[originalName(a.Value())]
	if !ok || len(dims) < 2 {
		return "", errors.Input(errors.ErrorMalformedIR,
			"array variable %s has no dimensions", a.Value())
	}
	elem := fmt.Sprintf("(_ BitVec %d)", dims[len(dims)-1])
	if l.in.Flat {
		sum := 0
		for _, d := range dims[:len(dims)-1] {
			sum += d
		}
		return fmt.Sprintf("(Array (_ BitVec %d) %s)", sum, elem), nil
	}
	sort := elem
	for i := len(dims) - 2; i >= 0; i-- {
		sort = fmt.Sprintf("(Array (_ BitVec %d) %s)", dims[i], sort)
	}
	return sort, nil
}

func originalName(name string) string {
	if i := strings.IndexByte(name, '<'); i >= 0 {
		return name[:i]
	}
	return name
}

func (l *lowerer) bitsOf(e *expr.Expression) int {
	if e.Bits() > 0 {
		return e.Bits()
	}
	return l.in.WordBits
}

// lowerBool serializes an expression in boolean position. Non-boolean
// sub-terms are compared against zero.
func (l *lowerer) lowerBool(e *expr.Expression) (string, error) {
	op := e.Operator()
	switch e.Kind() {
	case expr.KindTrue:
		return "true", nil
	case expr.KindFalse:
		return "false", nil
	case expr.KindNot:
		inner, err := l.lowerBool(e.Parameter(0))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(not %s)", inner), nil
	case expr.KindAnd, expr.KindOr, expr.KindImplies, expr.KindIff:
		sym := map[expr.Kind]string{
			expr.KindAnd: "and", expr.KindOr: "or",
			expr.KindImplies: "=>", expr.KindIff: "=",
		}[e.Kind()]
		a, err := l.lowerBool(e.Parameter(0))
		if err != nil {
			return "", err
		}
		b, err := l.lowerBool(e.Parameter(1))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s %s %s)", sym, a, b), nil
	case expr.KindEqual, expr.KindFloatEqual:
		return l.lowerEquality(e, false)
	case expr.KindNotEqual, expr.KindFloatNotEqual:
		return l.lowerEquality(e, true)
	}
	if op.IsComparison() {
		return l.lowerRelation(e)
	}
	// A bitvector term in boolean position holds when it is non-zero.
	bv, err := l.lowerBV(e)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("(not (= %s (_ bv0 %d)))", bv, l.bitsOf(e)), nil
}

// lowerEquality lowers = and !=. When either side is a boolean sub-term,
// both sides are lifted to bitvectors uniformly.
func (l *lowerer) lowerEquality(e *expr.Expression, negate bool) (string, error) {
	a, b := e.Parameter(0), e.Parameter(1)
	var sa, sb string
	var err error
	if a.Operator().IsBoolean() || b.Operator().IsBoolean() {
		// The lift width comes from the bitvector side when one exists.
		w := a.Bits()
		if a.Operator().IsBoolean() && !b.Operator().IsBoolean() {
			w = b.Bits()
		}
		if w == 0 {
			w = l.in.WordBits
		}
		sa, err = l.liftToBV(a, w)
		if err != nil {
			return "", err
		}
		sb, err = l.liftToBV(b, w)
		if err != nil {
			return "", err
		}
	} else {
		sa, err = l.lowerBV(a)
		if err != nil {
			return "", err
		}
		sb, err = l.lowerBV(b)
		if err != nil {
			return "", err
		}
	}
	s := fmt.Sprintf("(= %s %s)", sa, sb)
	if negate {
		s = fmt.Sprintf("(not %s)", s)
	}
	return s, nil
}

var relationSymbols = map[expr.Kind]string{
	expr.KindLess:          "bvslt",
	expr.KindLessU:         "bvult",
	expr.KindLessF:         "bvslt",
	expr.KindLessEqual:     "bvsle",
	expr.KindLessEqualU:    "bvule",
	expr.KindLessEqualF:    "bvsle",
	expr.KindGreater:       "bvsgt",
	expr.KindGreaterU:      "bvugt",
	expr.KindGreaterF:      "bvsgt",
	expr.KindGreaterEqual:  "bvsge",
	expr.KindGreaterEqualU: "bvuge",
	expr.KindGreaterEqualF: "bvsge",
}

func (l *lowerer) lowerRelation(e *expr.Expression) (string, error) {
	sym, ok := relationSymbols[e.Kind()]
	if !ok {
		return "", errors.Input(errors.ErrorUnknownOpcode,
			"relation %q has no SMT form", e.Operator().Symbol)
	}
	a, err := l.lowerBV(e.Parameter(0))
	if err != nil {
		return "", err
	}
	b, err := l.lowerBV(e.Parameter(1))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("(%s %s %s)", sym, a, b), nil
}

// liftToBV serializes a sub-term in bitvector position of a given width,
// lifting boolean sub-terms via ite.
func (l *lowerer) liftToBV(e *expr.Expression, width int) (string, error) {
	if e.Operator().IsBoolean() {
		cond, err := l.lowerBool(e)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(ite %s (_ bv1 %d) (_ bv0 %d))", cond, width, width), nil
	}
	return l.lowerBV(e)
}

var bvSymbols = map[expr.Kind]string{
	expr.KindAdd:           "bvadd",
	expr.KindSub:           "bvsub",
	expr.KindMul:           "bvmul",
	expr.KindSDiv:          "bvsdiv",
	expr.KindUDiv:          "bvudiv",
	expr.KindRem:           "bvsmod",
	expr.KindShl:           "bvshl",
	expr.KindAShr:          "bvashr",
	expr.KindLShr:          "bvlshr",
	expr.KindBitAnd:        "bvand",
	expr.KindBitOr:         "bvor",
	expr.KindBitXor:        "bvxor",
}

func (l *lowerer) lowerBV(e *expr.Expression) (string, error) {
	switch e.Kind() {
	case expr.KindConstant:
		return l.lowerConstant(e)
	case expr.KindVariable, expr.KindArrayVariable:
		return e.Value(), nil
	case expr.KindNegate:
		inner, err := l.lowerBV(e.Parameter(0))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(bvneg %s)", inner), nil
	case expr.KindBitComplement:
		inner, err := l.lowerBV(e.Parameter(0))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(bvnot %s)", inner), nil
	case expr.KindConcat:
		a, err := l.lowerBV(e.Parameter(0))
		if err != nil {
			return "", err
		}
		b, err := l.lowerBV(e.Parameter(1))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(concat %s %s)", a, b), nil
	case expr.KindZeroExtend, expr.KindSignExtend:
		form := "zero_extend"
		if e.Kind() == expr.KindSignExtend {
			form = "sign_extend"
		}
		k, ok := e.Parameter(1).ConstInt()
		if !ok {
			return "", errors.Input(errors.ErrorMalformedIR,
				"extension with non-constant count: %s", e)
		}
		inner, err := l.lowerBV(e.Parameter(0))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("((_ %s %d) %s)", form, k.Int64(), inner), nil
	case expr.KindBitExtract:
		lo, okLo := e.Parameter(1).ConstInt()
		hi, okHi := e.Parameter(2).ConstInt()
		if !okLo || !okHi {
			return "", errors.Input(errors.ErrorMalformedIR,
				"extract with non-constant bounds: %s", e)
		}
		inner, err := l.lowerBV(e.Parameter(0))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("((_ extract %d %d) %s)", hi.Int64(), lo.Int64(), inner), nil
	case expr.KindIte:
		cond, err := l.lowerBool(e.Parameter(0))
		if err != nil {
			return "", err
		}
		a, err := l.lowerBV(e.Parameter(1))
		if err != nil {
			return "", err
		}
		b, err := l.lowerBV(e.Parameter(2))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(ite %s %s %s)", cond, a, b), nil
	case expr.KindSelect:
		return l.lowerSelect(e)
	case expr.KindStore:
		return l.lowerStore(e)
	}
	if sym, ok := bvSymbols[e.Kind()]; ok {
		a, err := l.liftToBV(e.Parameter(0), l.bitsOf(e))
		if err != nil {
			return "", err
		}
		b, err := l.liftToBV(e.Parameter(1), l.bitsOf(e))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s %s %s)", sym, a, b), nil
	}
	if e.Operator().IsBoolean() {
		return l.liftToBV(e, l.bitsOf(e))
	}
	return "", errors.Input(errors.ErrorUnknownOpcode,
		"expression %q cannot be lowered to QF_AUFBV", e.Operator().Symbol)
}

func (l *lowerer) lowerConstant(e *expr.Expression) (string, error) {
	v, ok := e.ConstInt()
	if !ok {
		return "", errors.Input(errors.ErrorMalformedIR, "malformed constant %q", e.Value())
	}
	w := l.bitsOf(e)
	if v.Sign() < 0 {
		return fmt.Sprintf("(bvneg (_ bv%s %d))", new(big.Int).Neg(v).Text(10), w), nil
	}
	return fmt.Sprintf("(_ bv%s %d)", v.Text(10), w), nil
}

// lowerSelect serializes a select chain. Flat modelling folds the chain
// into one select over the concatenation of every index.
func (l *lowerer) lowerSelect(e *expr.Expression) (string, error) {
	if !l.in.Flat {
		a, err := l.lowerBV(e.Parameter(0))
		if err != nil {
			return "", err
		}
		i, err := l.lowerBV(e.Parameter(1))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(select %s %s)", a, i), nil
	}
	root, indices := selectChain(e)
	a, err := l.lowerBV(root)
	if err != nil {
		return "", err
	}
	idx, err := l.flatIndex(indices)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("(select %s %s)", a, idx), nil
}

// lowerStore serializes a store. Flat modelling flattens the nested
// store-through-select shape into one store with a composite index.
func (l *lowerer) lowerStore(e *expr.Expression) (string, error) {
	if !l.in.Flat {
		a, err := l.lowerBV(e.Parameter(0))
		if err != nil {
			return "", err
		}
		i, err := l.lowerBV(e.Parameter(1))
		if err != nil {
			return "", err
		}
		v, err := l.lowerBV(e.Parameter(2))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(store %s %s %s)", a, i, v), nil
	}
	root, indices, value := storeChain(e)
	a, err := l.lowerBV(root)
	if err != nil {
		return "", err
	}
	idx, err := l.flatIndex(indices)
	if err != nil {
		return "", err
	}
	v, err := l.lowerBV(value)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("(store %s %s %s)", a, idx, v), nil
}

func (l *lowerer) flatIndex(indices []*expr.Expression) (string, error) {
	s, err := l.lowerBV(indices[0])
	if err != nil {
		return "", err
	}
	for _, idx := range indices[1:] {
		next, err := l.lowerBV(idx)
		if err != nil {
			return "", err
		}
		s = fmt.Sprintf("(concat %s %s)", s, next)
	}
	return s, nil
}

// selectChain peels nested selects, outermost dimension first.
func selectChain(e *expr.Expression) (*expr.Expression, []*expr.Expression) {
	var indices []*expr.Expression
	for e.Kind() == expr.KindSelect {
		indices = append([]*expr.Expression{e.Parameter(1)}, indices...)
		e = e.Parameter(0)
	}
	return e, indices
}

// storeChain peels the nested store shape store(a, i, store(select(a, i),
// j, v)) into (a, [i j], v).
func storeChain(e *expr.Expression) (*expr.Expression, []*expr.Expression, *expr.Expression) {
	indices := []*expr.Expression{e.Parameter(1)}
	value := e.Parameter(2)
	for value.Kind() == expr.KindStore {
		indices = append(indices, value.Parameter(1))
		value = value.Parameter(2)
	}
	root := e.Parameter(0)
	for root.Kind() == expr.KindSelect {
		root = root.Parameter(0)
	}
	return root, indices, value
}
