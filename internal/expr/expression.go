package expr

import (
	"hash/fnv"
	"math/big"
	"strconv"
	"strings"

	"gametime/internal/errors"
	"gametime/internal/ssa"
)

// Expression is an immutable, typed, bit-accurate symbolic expression tree.
// Leaves carry a string payload; internal nodes carry an ordered parameter
// list. The canonical rendering is computed at construction and never
// changes afterwards, so sharing subtrees between expressions is safe.
type Expression struct {
	op     *Operator
	bits   int
	value  string // payload for leaves, canonical rendering otherwise
	params []*Expression
	typ    *ssa.Type // associated source-level type, optional
}

// NewLeaf creates a nil-arity expression carrying a string payload.
func NewLeaf(kind Kind, value string, bits int, typ *ssa.Type) *Expression {
	op := Op(kind)
	if !op.IsLeaf() {
		panic(errors.Unsupportedf(errors.ErrorArityMismatch,
			"operator %q is not nil-arity", op.Symbol))
	}
	return &Expression{op: op, bits: bits, value: value, typ: typ}
}

// NewVariable creates a scalar variable leaf.
func NewVariable(name string, bits int, typ *ssa.Type) *Expression {
	return NewLeaf(KindVariable, name, bits, typ)
}

// NewArrayVariable creates an array variable leaf.
func NewArrayVariable(name string, bits int, typ *ssa.Type) *Expression {
	return NewLeaf(KindArrayVariable, name, bits, typ)
}

// NewConstant creates a constant expression from an integer value.
func NewConstant(value int64, bits int) *Expression {
	return NewLeaf(KindConstant, strconv.FormatInt(value, 10), bits, nil)
}

// NewConstantBig creates a constant expression from a big integer.
func NewConstantBig(value *big.Int, bits int) *Expression {
	return NewLeaf(KindConstant, value.Text(10), bits, nil)
}

// True returns a fresh boolean-true leaf.
func True() *Expression { return NewLeaf(KindTrue, "true", 0, nil) }

// False returns a fresh boolean-false leaf.
func False() *Expression { return NewLeaf(KindFalse, "false", 0, nil) }

// New creates an internal node. The parameter count must match the
// operator's arity; polynary operators accept one or more parameters.
func New(kind Kind, bits int, params ...*Expression) *Expression {
	op := Op(kind)
	ok := false
	switch op.Arity {
	case ArityNil:
		ok = len(params) == 0
	case ArityUnary:
		ok = len(params) == 1
	case ArityBinary:
		ok = len(params) == 2
	case ArityTernary:
		ok = len(params) == 3
	case ArityPoly:
		ok = len(params) >= 1
	}
	if !ok {
		panic(errors.Unsupportedf(errors.ErrorArityMismatch,
			"operator %q applied to %d parameters", op.Symbol, len(params)))
	}
	for i, p := range params {
		if p == nil {
			panic(errors.Unsupportedf(errors.ErrorArityMismatch,
				"operator %q has nil parameter %d", op.Symbol, i))
		}
	}
	e := &Expression{op: op, bits: bits, params: params}
	e.value = renderNode(op, params)
	return e
}

// Operator returns the node's operator singleton.
func (e *Expression) Operator() *Operator { return e.op }

// Kind returns the operator kind.
func (e *Expression) Kind() Kind { return e.op.Kind }

// Bits returns the expression's width in bits.
func (e *Expression) Bits() int { return e.bits }

// Value returns the canonical rendering of the expression. For leaves this
// is the payload itself.
func (e *Expression) Value() string { return e.value }

func (e *Expression) String() string { return e.value }

// Type returns the associated source-level type, possibly nil.
func (e *Expression) Type() *ssa.Type { return e.typ }

// WithType returns a copy of the expression carrying the given type.
func (e *Expression) WithType(t *ssa.Type) *Expression {
	c := *e
	c.typ = t
	return &c
}

// WithBits returns a copy of the expression with the given width.
func (e *Expression) WithBits(bits int) *Expression {
	c := *e
	c.bits = bits
	return &c
}

// NumParameters returns the parameter count.
func (e *Expression) NumParameters() int { return len(e.params) }

// Parameter returns the i-th parameter. Out-of-range indices are analyzer
// bugs and panic.
func (e *Expression) Parameter(i int) *Expression {
	if i < 0 || i >= len(e.params) {
		errors.Panicf(errors.PrecondParameterIndex,
			"parameter index %d out of range for %q with %d parameters",
			i, e.op.Symbol, len(e.params))
	}
	return e.params[i]
}

// Parameters returns a copy of the parameter list.
func (e *Expression) Parameters() []*Expression {
	out := make([]*Expression, len(e.params))
	copy(out, e.params)
	return out
}

// UpdateParameter returns a fresh expression with the i-th parameter
// replaced. The width is re-derived for shape operators whose width depends
// on their parameters.
func (e *Expression) UpdateParameter(i int, p *Expression) *Expression {
	if i < 0 || i >= len(e.params) {
		errors.Panicf(errors.PrecondParameterIndex,
			"parameter index %d out of range for %q with %d parameters",
			i, e.op.Symbol, len(e.params))
	}
	params := make([]*Expression, len(e.params))
	copy(params, e.params)
	params[i] = p
	out := New(e.op.Kind, deriveBits(e.op, e.bits, params), params...)
	out.typ = e.typ
	return out
}

// deriveBits recomputes the width for operators whose width is a function
// of their parameters; everything else keeps the existing width.
func deriveBits(op *Operator, current int, params []*Expression) int {
	switch op.Kind {
	case KindConcat:
		return params[0].bits + params[1].bits
	case KindZeroExtend, KindSignExtend:
		if k, ok := params[1].ConstInt(); ok {
			return params[0].bits + int(k.Int64())
		}
	case KindBitExtract:
		lo, okLo := params[1].ConstInt()
		hi, okHi := params[2].ConstInt()
		if okLo && okHi {
			return int(hi.Int64()-lo.Int64()) + 1
		}
	}
	return current
}

// Clone returns a deep copy of the expression.
func (e *Expression) Clone() *Expression {
	if e == nil {
		return nil
	}
	c := *e
	if len(e.params) > 0 {
		c.params = make([]*Expression, len(e.params))
		for i, p := range e.params {
			c.params[i] = p.Clone()
		}
	}
	return &c
}

// IsConstant reports whether the expression is a constant leaf.
func (e *Expression) IsConstant() bool { return e.op.Kind == KindConstant }

// ConstInt returns the integer value of a constant leaf.
func (e *Expression) ConstInt() (*big.Int, bool) {
	if e.op.Kind != KindConstant {
		return nil, false
	}
	v, ok := new(big.Int).SetString(e.value, 10)
	return v, ok
}

// Equal is structural equality modulo alpha-renaming of function formals:
// two function literals are equal when substituting the left formals with
// the right formals makes the bodies equal.
func (e *Expression) Equal(o *Expression) bool {
	if e == nil || o == nil {
		return e == o
	}
	if e.op != o.op || e.bits != o.bits {
		return false
	}
	if e.op.IsLeaf() {
		return e.value == o.value
	}
	if len(e.params) != len(o.params) {
		return false
	}
	if e.op.Kind == KindFunction {
		n := len(e.params) - 1
		body := e.params[n]
		for i := 0; i < n; i++ {
			if e.params[i].bits != o.params[i].bits {
				return false
			}
			body = body.Replace(e.params[i], o.params[i])
		}
		return body.Equal(o.params[n])
	}
	for i := range e.params {
		if !e.params[i].Equal(o.params[i]) {
			return false
		}
	}
	return true
}

// Replace substitutes every subtree equal to needle with replacement.
// Leaves that are not equal to needle come back as clones.
func (e *Expression) Replace(needle, replacement *Expression) *Expression {
	if e.Equal(needle) {
		return replacement.Clone()
	}
	if e.op.IsLeaf() {
		return e.Clone()
	}
	params := make([]*Expression, len(e.params))
	changed := false
	for i, p := range e.params {
		params[i] = p.Replace(needle, replacement)
		if params[i].value != p.value {
			changed = true
		}
	}
	if !changed {
		return e.Clone()
	}
	out := New(e.op.Kind, deriveBits(e.op, e.bits, params), params...)
	out.typ = e.typ
	return out
}

// Key returns the alpha-normalized rendering used as a structural map key.
// Function formals are renamed %0, %1, ... in binding order so that
// alpha-equal expressions share a key.
func (e *Expression) Key() string {
	var b strings.Builder
	counter := 0
	e.writeCanon(&b, nil, &counter)
	return b.String()
}

// Hash is consistent with Equal: alpha-equal expressions hash alike.
func (e *Expression) Hash() uint64 {
	h := fnv.New64a()
	h.Write([]byte(e.Key()))
	return h.Sum64()
}

func (e *Expression) writeCanon(b *strings.Builder, env map[string]string, counter *int) {
	if e.op.IsLeaf() {
		if e.op.Kind == KindVariable && env != nil {
			if canon, ok := env[e.value]; ok {
				b.WriteString(canon)
				return
			}
		}
		b.WriteString(e.value)
		return
	}
	if e.op.Kind == KindFunction {
		inner := make(map[string]string, len(env)+len(e.params)-1)
		for k, v := range env {
			inner[k] = v
		}
		n := len(e.params) - 1
		b.WriteString("(f (")
		for i := 0; i < n; i++ {
			canon := "%" + strconv.Itoa(*counter)
			*counter++
			inner[e.params[i].value] = canon
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(canon)
		}
		b.WriteString(") ")
		e.params[n].writeCanon(b, inner, counter)
		b.WriteString(")")
		return
	}
	// Mirror renderNode but with canonical children.
	parts := make([]string, len(e.params))
	for i, p := range e.params {
		var pb strings.Builder
		p.writeCanon(&pb, env, counter)
		parts[i] = pb.String()
	}
	b.WriteString(renderParts(e.op, parts))
}

// renderNode computes the canonical rendering of an internal node.
func renderNode(op *Operator, params []*Expression) string {
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = p.value
	}
	return renderParts(op, parts)
}

func renderParts(op *Operator, parts []string) string {
	switch op.Kind {
	case KindRelease:
		return "release(" + parts[0] + ")"
	case KindArray:
		return parts[0] + "[" + parts[1] + "]"
	case KindOffset:
		return "(" + parts[0] + " . " + parts[1] + ")"
	case KindSelect:
		return "select(" + parts[0] + ", " + parts[1] + ")"
	case KindConcat:
		return "concat(" + parts[0] + ", " + parts[1] + ")"
	case KindZeroExtend:
		return "zext(" + parts[0] + ", " + parts[1] + ")"
	case KindSignExtend:
		return "sext(" + parts[0] + ", " + parts[1] + ")"
	case KindLet:
		return "(let " + parts[0] + " " + parts[1] + ")"
	case KindIte:
		return "ite(" + parts[0] + ", " + parts[1] + ", " + parts[2] + ")"
	case KindStore:
		return "store(" + parts[0] + ", " + parts[1] + ", " + parts[2] + ")"
	case KindBitExtract:
		return "extract(" + parts[0] + ", " + parts[1] + ", " + parts[2] + ")"
	case KindFunction:
		n := len(parts) - 1
		return "(f (" + strings.Join(parts[:n], ", ") + ") " + parts[n] + ")"
	case KindFunctionCall:
		return "(" + parts[0] + " (" + strings.Join(parts[1:], ", ") + "))"
	}
	switch op.Arity {
	case ArityUnary:
		return "(" + op.Symbol + " " + parts[0] + ")"
	case ArityBinary:
		return "(" + parts[0] + " " + op.Symbol + " " + parts[1] + ")"
	}
	return op.Symbol + "(" + strings.Join(parts, ", ") + ")"
}
