package analyzer

import (
	"strconv"
	"strings"

	"gametime/internal/errors"
	"gametime/internal/expr"
	"gametime/internal/ssa"
)

// Executor performs backward symbolic execution: given an operand and the
// block where it is used, it chases the operand's definition chain and
// produces the expression the operand denotes on this path.
//
// Results are memoized per operand identity. The memo is both an
// optimization and the defense against exponential blow-up on diamond IRs;
// memoized results are cloned on the way out so callers can never alias a
// cached tree.
type Executor struct {
	path *Path
	memo map[int]*expr.Expression
}

func newExecutor(p *Path) *Executor {
	return &Executor{path: p, memo: make(map[int]*expr.Expression)}
}

// Trace produces the expression for an operand used in the given block.
// Operands defined by a value instruction with a non-temporary destination
// short-circuit to a variable leaf; the assignment condition emitted by the
// path analyzer ties that leaf to its right-hand side.
func (ex *Executor) Trace(op *ssa.Operand, at *ssa.Block) (*expr.Expression, error) {
	return ex.trace(op, at, false)
}

// TraceComplete is the complete-trace mode used for the right-hand side of
// an assignment: the top-level non-temporary destination is not
// short-circuited, so the defining computation is expanded one level.
func (ex *Executor) TraceComplete(op *ssa.Operand, at *ssa.Block) (*expr.Expression, error) {
	return ex.trace(op, at, true)
}

func (ex *Executor) trace(op *ssa.Operand, at *ssa.Block, complete bool) (*expr.Expression, error) {
	if op == nil {
		return nil, errors.Input(errors.ErrorMalformedIR, "null operand in instruction")
	}
	if !complete {
		if m, ok := ex.memo[op.ID]; ok {
			return m.Clone(), nil
		}
	}
	e, err := ex.traceUncached(op, at, complete)
	if err != nil {
		return nil, err
	}
	if !complete {
		ex.memo[op.ID] = e.Clone()
	}
	return e, nil
}

func (ex *Executor) traceUncached(op *ssa.Operand, at *ssa.Block, complete bool) (*expr.Expression, error) {
	if op.Immediate {
		return ex.traceImmediate(op)
	}
	// Complete mode asks for the right-hand side of the operand's defining
	// instruction, so the use-position readings of memory and address-of
	// operands do not apply.
	if !complete {
		if op.Memory {
			return ex.traceMemory(op, at)
		}
		if op.AddressOf {
			return ex.traceAddressOf(op, at)
		}
	}

	def := op.Def
	if def == nil || !ex.path.onPath(def.Block.ID) ||
		def.Kind == ssa.InstrStart || isChiOfStart(def) {
		return ex.leafFor(op), nil
	}

	switch def.Kind {
	case ssa.InstrChi:
		// A chi over an on-path definition merges through memory; follow
		// the merged value.
		if len(def.Srcs) > 0 {
			return ex.trace(def.Srcs[0], at, false)
		}
		return ex.leafFor(op), nil

	case ssa.InstrCall:
		// One distinct symbolic value per textual call site.
		name := ex.path.cfg.IdentEFC + def.Callee + "@" + strconv.Itoa(def.Line)
		return expr.NewVariable(name, op.Bits(), op.Type), nil

	case ssa.InstrCompare:
		return ex.traceCompare(def, at)

	case ssa.InstrPhi:
		return ex.tracePhi(def, op, at)

	case ssa.InstrValue:
		if !complete && !op.Temp {
			return ex.leafFor(op), nil
		}
		return ex.traceValue(def, at)

	case ssa.InstrSwitch:
		return nil, errors.Input(errors.ErrorSwitchInstruction,
			"operand defined by a switch instruction at line %d", def.Line)
	}
	return nil, errors.Input(errors.ErrorUnknownOpcode,
		"operand defined by unhandled instruction kind %s at line %d", def.Kind, def.Line)
}

func isChiOfStart(def *ssa.Instr) bool {
	if def.Kind != ssa.InstrChi {
		return false
	}
	if len(def.Srcs) == 0 {
		return true
	}
	src := def.Srcs[0]
	return src.Def == nil || src.Def.Kind == ssa.InstrStart
}

func (ex *Executor) traceImmediate(op *ssa.Operand) (*expr.Expression, error) {
	if op.Type.IsAggregate() {
		return nil, errors.Unsupportedf(errors.ErrorImmediateKind,
			"immediate operand of aggregate type %s at line %d", op.Type, op.Line)
	}
	if op.Float {
		truncated := int64(op.FloatValue)
		ex.path.Warnings.Warnf(errors.WarningFloatTruncated,
			"float immediate %v truncated to %d at line %d", op.FloatValue, truncated, op.Line)
		return expr.NewConstant(truncated, op.Bits()), nil
	}
	return expr.NewConstant(op.IntValue, op.Bits()), nil
}

// leafFor emits a fresh variable or array-variable leaf for an operand whose
// value the path cannot explain: a formal parameter, a chi-of-start, or
// anything defined off the path.
func (ex *Executor) leafFor(op *ssa.Operand) *expr.Expression {
	name := strings.TrimPrefix(op.SourceName(), ex.path.cfg.MangledPrefix)
	if op.Type.IsPointer() || op.Type.IsUnmanagedArray() {
		return expr.NewArrayVariable(name, op.Bits(), op.Type)
	}
	return expr.NewVariable(name, op.Bits(), op.Type)
}

// traceMemory handles *p and p->f operands: trace the base pointer, shift
// it by the field offset, then dereference.
func (ex *Executor) traceMemory(op *ssa.Operand, at *ssa.Block) (*expr.Expression, error) {
	if op.Base == nil {
		return nil, errors.Input(errors.ErrorMalformedIR,
			"memory operand without a base at line %d", op.Line)
	}
	pe, err := ex.trace(op.Base, at, false)
	if err != nil {
		return nil, err
	}
	fn := ex.path.derefFunction(pe)
	if op.FieldOffset != 0 {
		fn = ex.path.addOffsetToPointer(fn,
			expr.NewConstant(int64(op.FieldOffset), ex.path.word()))
	}
	// When the memory operand and the pointer's referent share the same
	// aggregate type, the access aliases the whole aggregate and the
	// field decomposition is skipped.
	referent := op.Base.Type.Indirect()
	aliased := op.Type.IsAggregate() && referent.IsAggregate() &&
		referent.Name == op.Type.Name
	return ex.path.dereference(fn, op.Type, aliased)
}

// traceAddressOf promotes an address-taken variable: the first taken
// address of x synthesizes a temporary pointer p with *p = x, so the
// address-of operator never reaches the emitted query.
func (ex *Executor) traceAddressOf(op *ssa.Operand, at *ssa.Block) (*expr.Expression, error) {
	if !op.Type.IsPointer() {
		return nil, errors.Input(errors.ErrorMalformedIR,
			"address-of operand with non-pointer type %s at line %d", op.Type, op.Line)
	}
	referent := op.Type.Referent
	name := strings.TrimPrefix(op.SourceName(), ex.path.cfg.MangledPrefix)
	target := expr.NewVariable(name, referent.Bits, referent)

	if ptr, ok := ex.path.AddressTaken.Get(target); ok {
		return ptr.Clone(), nil
	}
	ptr := ex.path.freshTempPointer(op.Type)
	ex.path.AddressTaken.Put(target, ptr)

	deref, err := ex.path.dereference(ex.path.derefFunction(ptr), referent, false)
	if err != nil {
		return nil, err
	}
	ex.path.AliasTable.Put(deref, target)
	cond := expr.New(expr.KindEqual, ex.path.word(),
		deref, ex.path.updateExpression(target, at.ID))
	ex.path.addCondition(cond, at.ID)
	return ptr, nil
}

func (ex *Executor) traceCompare(def *ssa.Instr, at *ssa.Block) (*expr.Expression, error) {
	if len(def.Srcs) < 2 {
		return nil, errors.Input(errors.ErrorMalformedIR,
			"compare at line %d needs two operands", def.Line)
	}
	a, err := ex.trace(def.Srcs[0], at, false)
	if err != nil {
		return nil, err
	}
	b, err := ex.trace(def.Srcs[1], at, false)
	if err != nil {
		return nil, err
	}
	kind := comparisonKind(def.Op, def.Srcs[0].Type, def.Srcs[1].Type)
	out := expr.New(kind, ex.path.word(), a, b)

	// When this compare feeds the conditional branch that ends its block
	// and the path takes the false edge, the comparison negates here.
	if br := def.Next(); br != nil && br.Kind == ssa.InstrBranch &&
		len(br.Srcs) > 0 && br.Srcs[0].Def == def &&
		ex.path.takesFalseEdge(def.Block) {
		out = expr.New(expr.KindNot, ex.path.word(), out)
	}
	return out, nil
}

// comparisonKind picks the signed, unsigned, or float variant of a relation
// from the operand types.
func comparisonKind(op ssa.Opcode, ta, tb *ssa.Type) expr.Kind {
	float := ta.IsFloat() || tb.IsFloat()
	unsigned := !float && !ta.IsSignedInt() && !tb.IsSignedInt()
	switch op {
	case ssa.OpCmpEq:
		if float {
			return expr.KindFloatEqual
		}
		return expr.KindEqual
	case ssa.OpCmpNe:
		if float {
			return expr.KindFloatNotEqual
		}
		return expr.KindNotEqual
	case ssa.OpCmpLt:
		return pick(float, unsigned, expr.KindLessF, expr.KindLessU, expr.KindLess)
	case ssa.OpCmpLe:
		return pick(float, unsigned, expr.KindLessEqualF, expr.KindLessEqualU, expr.KindLessEqual)
	case ssa.OpCmpGt:
		return pick(float, unsigned, expr.KindGreaterF, expr.KindGreaterU, expr.KindGreater)
	case ssa.OpCmpGe:
		return pick(float, unsigned, expr.KindGreaterEqualF, expr.KindGreaterEqualU, expr.KindGreaterEqual)
	}
	return expr.KindEqual
}

func pick(float, unsigned bool, f, u, s expr.Kind) expr.Kind {
	if float {
		return f
	}
	if unsigned {
		return u
	}
	return s
}

// tracePhi selects the phi source whose defining block is on the path and
// latest in path order before the phi's block. Ties cannot occur on an
// acyclic single path.
func (ex *Executor) tracePhi(def *ssa.Instr, op *ssa.Operand, at *ssa.Block) (*expr.Expression, error) {
	bestPos := -1
	var best *ssa.Operand
	phiPos := ex.path.posOf[def.Block.ID]
	for _, edge := range def.Phi {
		pos, ok := ex.path.posOf[edge.BlockID]
		if !ok || pos >= phiPos {
			continue
		}
		if pos > bestPos {
			bestPos = pos
			best = edge.Src
		}
	}
	if best == nil {
		return ex.leafFor(op), nil
	}
	return ex.trace(best, at, false)
}

func (ex *Executor) traceValue(def *ssa.Instr, at *ssa.Block) (*expr.Expression, error) {
	word := ex.path.word()
	srcs := make([]*expr.Expression, len(def.Srcs))
	for i, s := range def.Srcs {
		e, err := ex.trace(s, at, false)
		if err != nil {
			return nil, err
		}
		srcs[i] = e
	}
	if len(srcs) == 0 {
		return nil, errors.Input(errors.ErrorMalformedIR,
			"value instruction at line %d has no sources", def.Line)
	}
	dstBits := 0
	if def.Dst != nil {
		dstBits = def.Dst.Bits()
	}

	switch def.Op {
	case ssa.OpAdd, ssa.OpSub, ssa.OpMul, ssa.OpDiv, ssa.OpRem,
		ssa.OpAnd, ssa.OpOr, ssa.OpBitAnd, ssa.OpBitOr, ssa.OpBitXor,
		ssa.OpShl, ssa.OpShr, ssa.OpSubscript:
		if len(srcs) < 2 {
			return nil, errors.Input(errors.ErrorMalformedIR,
				"value opcode %q at line %d needs two operands", def.Op, def.Line)
		}
	}

	switch def.Op {
	case ssa.OpAssign:
		return srcs[0], nil

	case ssa.OpAdd, ssa.OpSub:
		kind := expr.KindAdd
		if def.Op == ssa.OpSub {
			kind = expr.KindSub
		}
		if def.Dst != nil && def.Dst.Type.IsPointer() {
			return ex.tracePointerArith(def, kind, srcs)
		}
		return expr.New(kind, dstBits, srcs[0], srcs[1]), nil

	case ssa.OpMul:
		return expr.New(expr.KindMul, dstBits, srcs[0], srcs[1]), nil

	case ssa.OpDiv:
		kind := expr.KindSDiv
		if !def.Srcs[0].Type.IsSignedInt() && !def.Srcs[1].Type.IsSignedInt() {
			kind = expr.KindUDiv
		}
		return expr.New(kind, dstBits, srcs[0], srcs[1]), nil

	case ssa.OpRem:
		return expr.New(expr.KindRem, dstBits, srcs[0], srcs[1]), nil

	case ssa.OpNeg:
		return expr.New(expr.KindNegate, dstBits, srcs[0]), nil

	case ssa.OpBitNot:
		return expr.New(expr.KindBitComplement, dstBits, srcs[0]), nil

	case ssa.OpNot:
		// Logical not of x is ite(x == 0, 1, 0) at the destination width.
		test := expr.New(expr.KindEqual, word, srcs[0],
			expr.NewConstant(0, srcs[0].Bits()))
		return expr.New(expr.KindIte, dstBits, test,
			expr.NewConstant(1, dstBits), expr.NewConstant(0, dstBits)), nil

	case ssa.OpAnd:
		return expr.New(expr.KindAnd, dstBits, srcs[0], srcs[1]), nil
	case ssa.OpOr:
		return expr.New(expr.KindOr, dstBits, srcs[0], srcs[1]), nil
	case ssa.OpBitAnd:
		return expr.New(expr.KindBitAnd, dstBits, srcs[0], srcs[1]), nil
	case ssa.OpBitOr:
		return expr.New(expr.KindBitOr, dstBits, srcs[0], srcs[1]), nil
	case ssa.OpBitXor:
		return expr.New(expr.KindBitXor, dstBits, srcs[0], srcs[1]), nil

	case ssa.OpShl:
		return expr.New(expr.KindShl, dstBits, srcs[0], srcs[1]), nil

	case ssa.OpShr:
		// Logical shift iff the shifted operand is unsigned.
		kind := expr.KindAShr
		if !def.Srcs[0].Type.IsSignedInt() {
			kind = expr.KindLShr
		}
		return expr.New(kind, dstBits, srcs[0], srcs[1]), nil

	case ssa.OpConvert:
		src := def.Srcs[0]
		if def.Dst != nil && def.Dst.Type.IsPointer() && src.Type.IsPointer() {
			// Pointer-to-pointer conversions keep the source expression
			// and its type; residual offsets surface at dereference time.
			return srcs[0], nil
		}
		return adjustBitSize(srcs[0], src.Bits(), dstBits, src.Type.IsSignedInt()), nil

	case ssa.OpSubscript:
		return ex.traceSubscript(def, srcs, at)
	}

	return nil, errors.Input(errors.ErrorUnknownOpcode,
		"value opcode %q at line %d is not handled", def.Op, def.Line)
}

// tracePointerArith reshapes pointer-typed arithmetic as (base, offset):
// the non-pointer addend is scaled by the referent's bit size and folded
// into the pointer's dereferencing function.
func (ex *Executor) tracePointerArith(def *ssa.Instr, kind expr.Kind, srcs []*expr.Expression) (*expr.Expression, error) {
	base, addend := getAugendAndAddend(def, srcs)
	if kind == expr.KindSub {
		addend = expr.New(expr.KindNegate, addend.Bits(), addend)
	}
	// Alias lookup applies only when the first source was a non-temporary
	// operand; temporaries already carry their resolved form.
	if !def.Srcs[0].Temp {
		if alias, ok := ex.path.AliasTable.Get(base); ok {
			base = alias
		}
	}
	referent := def.Dst.Type.Referent
	if referent == nil {
		return nil, errors.Input(errors.ErrorMalformedIR,
			"pointer arithmetic destination without referent at line %d", def.Line)
	}
	offsetBits := expr.Simplify(expr.New(expr.KindMul, ex.path.word(),
		addend, expr.NewConstant(int64(referent.Bits), ex.path.word())))
	fn := ex.path.derefFunction(base)
	return ex.path.addOffsetToPointer(fn, offsetBits), nil
}

// getAugendAndAddend splits a two-source arithmetic instruction into the
// pointer-valued base and the integer addend.
func getAugendAndAddend(def *ssa.Instr, srcs []*expr.Expression) (base, addend *expr.Expression) {
	if def.Srcs[1].Type.IsPointer() || def.Srcs[1].Type.IsUnmanagedArray() {
		return srcs[1], srcs[0]
	}
	return srcs[0], srcs[1]
}

// traceSubscript resolves p[i]: offset the pointer's dereferencing function
// by the scaled index and dereference, unless the destination itself is a
// pointer, in which case the offset function is the result.
func (ex *Executor) traceSubscript(def *ssa.Instr, srcs []*expr.Expression, at *ssa.Block) (*expr.Expression, error) {
	if len(srcs) < 2 {
		return nil, errors.Input(errors.ErrorMalformedIR,
			"subscript at line %d needs a pointer and an index", def.Line)
	}
	pe := srcs[0]
	if alias, ok := ex.path.AliasTable.Get(pe); ok {
		pe = alias
	}
	elem := def.Srcs[0].Type.Indirect()
	if elem == nil {
		return nil, errors.Input(errors.ErrorMalformedIR,
			"subscript base at line %d is not a pointer or array", def.Line)
	}
	indices := getArrayAccessIndices(srcs[1])
	fn := ex.path.derefFunction(pe)
	for _, idx := range indices {
		offsetBits := expr.Simplify(expr.New(expr.KindMul, ex.path.word(),
			idx, expr.NewConstant(int64(elem.Bits), ex.path.word())))
		fn = ex.path.addOffsetToPointer(fn, offsetBits)
	}
	if def.Dst != nil && def.Dst.Type.IsPointer() {
		// A subscript that yields a row of a multi-level array descends
		// one function layer, so the next subscript offsets the inner
		// level rather than this one.
		if fn.Kind() == expr.KindFunction && fn.Parameter(2).Kind() == expr.KindFunction {
			zeroI := expr.NewConstant(0, fn.Parameter(0).Bits())
			zeroO := expr.NewConstant(0, fn.Parameter(1).Bits())
			return ex.path.apply(fn, zeroI, zeroO), nil
		}
		return fn, nil
	}
	accessType := elem
	if def.Dst != nil && def.Dst.Type != nil {
		accessType = def.Dst.Type
	}
	return ex.path.dereference(fn, accessType, false)
}

// getArrayAccessIndices yields the index expressions of a subscript. A
// concatenated index denotes one index per level and is split at the
// concatenation boundary.
func getArrayAccessIndices(idx *expr.Expression) []*expr.Expression {
	if idx.Kind() == expr.KindConcat {
		return append(getArrayAccessIndices(idx.Parameter(0)),
			getArrayAccessIndices(idx.Parameter(1))...)
	}
	return []*expr.Expression{idx}
}

// adjustBitSize widens or narrows a scalar expression: sign- or zero-extend
// on the way up, extract on the way down.
func adjustBitSize(e *expr.Expression, from, to int, signed bool) *expr.Expression {
	switch {
	case to == from || from == 0 || to == 0:
		return e
	case to > from:
		kind := expr.KindZeroExtend
		if signed {
			kind = expr.KindSignExtend
		}
		return expr.New(kind, to, e, expr.NewConstant(int64(to-from), to))
	default:
		return expr.New(expr.KindBitExtract, to, e,
			expr.NewConstant(0, to), expr.NewConstant(int64(to-1), to))
	}
}
