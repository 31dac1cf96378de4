package analyzer

import (
	"fmt"

	"github.com/tliron/commonlog"

	"gametime/internal/config"
	"gametime/internal/errors"
	"gametime/internal/expr"
	"gametime/internal/ssa"
)

// Condition is one path condition, stamped with the id of the block whose
// processing produced it.
type Condition struct {
	Expr    *expr.Expression
	BlockID int
}

// ArrayAccess is one witnessed access to an array variable, identified by
// the numbers of the temporary indices substituted into it.
type ArrayAccess struct {
	Array   *expr.Expression
	Indices []int
}

// BranchRecord remembers the direction a conditional branch took on the path.
type BranchRecord struct {
	Line      int
	TakenTrue bool
}

// Path drives the backward symbolic execution of one acyclic block sequence
// and accumulates everything the SMT lowering and the sidecar dumps need.
// A Path is single-use: populate it with GenerateConditionsAndAssignments,
// then hand it to the lowering. None of its tables may be mutated afterwards.
type Path struct {
	cfg    *config.Config
	unit   *ssa.Unit
	blocks []*ssa.Block

	posOf      map[int]int // block id -> position on the path
	nextOnPath map[int]int // block id -> id of the successor taken
	addenda    map[int]*BlockAddendum

	Conditions      []Condition
	Variables       *expr.Set
	ArrayVariables  *expr.Set
	ArrayDimensions map[string][]int
	AddressTaken    *expr.Map
	AliasTable      *expr.Map
	AggregateOffsets *expr.Map
	ArrayAccesses   []ArrayAccess
	TempIndexExprs  map[int]*expr.Expression
	Branches        []BranchRecord
	Warnings        *errors.WarningSink

	tempVarCount   int
	tempIndexCount int
	tempPtrCount   int

	exec *Executor
	log  commonlog.Logger
}

// NewPath creates a path over the given block ids, which must all belong to
// the unit and must not repeat.
func NewPath(cfg *config.Config, unit *ssa.Unit, blockIDs []int) (*Path, error) {
	if len(blockIDs) == 0 {
		return nil, errors.Input(errors.ErrorMalformedIR, "path has no blocks")
	}
	p := &Path{
		cfg:              cfg,
		unit:             unit,
		posOf:            make(map[int]int),
		nextOnPath:       make(map[int]int),
		addenda:          make(map[int]*BlockAddendum),
		Variables:        expr.NewSet(),
		ArrayVariables:   expr.NewSet(),
		ArrayDimensions:  make(map[string][]int),
		AddressTaken:     expr.NewMap(),
		AliasTable:       expr.NewMap(),
		AggregateOffsets: expr.NewMap(),
		TempIndexExprs:   make(map[int]*expr.Expression),
		Warnings:         errors.NewWarningSink("gametime.analyzer"),
		log:              commonlog.GetLogger("gametime.analyzer"),
	}
	for i, id := range blockIDs {
		b, err := unit.Block(id)
		if err != nil {
			return nil, err
		}
		if _, seen := p.posOf[id]; seen {
			return nil, errors.Input(errors.ErrorMalformedIR, "path visits block %d twice", id)
		}
		p.blocks = append(p.blocks, b)
		p.posOf[id] = i
		p.addenda[id] = newBlockAddendum()
		if i > 0 {
			p.nextOnPath[blockIDs[i-1]] = id
		}
	}
	p.exec = newExecutor(p)
	return p, nil
}

func (p *Path) word() int { return p.cfg.WordBits }

// onPath reports whether a block id belongs to the path.
func (p *Path) onPath(id int) bool {
	_, ok := p.posOf[id]
	return ok
}

// takesFalseEdge reports whether the path leaves the block through the
// false successor of its branch.
func (p *Path) takesFalseEdge(b *ssa.Block) bool {
	br := b.Branch()
	if br == nil {
		return false
	}
	next, ok := p.nextOnPath[b.ID]
	return ok && next == br.FalseTarget
}

func (p *Path) addCondition(e *expr.Expression, blockID int) {
	p.Conditions = append(p.Conditions, Condition{Expr: e, BlockID: blockID})
}

// freshTempVar synthesizes a scalar temporary variable leaf.
func (p *Path) freshTempVar(bits int) *expr.Expression {
	name := fmt.Sprintf("%s%d", p.cfg.IdentTempVar, p.tempVarCount)
	p.tempVarCount++
	return expr.NewVariable(name, bits, nil)
}

// freshTempPointer synthesizes a temporary pointer as an array variable of
// the given pointer type.
func (p *Path) freshTempPointer(typ *ssa.Type) *expr.Expression {
	if !typ.IsPointer() {
		errors.Panicf(errors.PrecondTempPointerType,
			"temporary pointer constructed with non-pointer type %s", typ)
	}
	name := fmt.Sprintf("%s%d", p.cfg.IdentTempPtr, p.tempPtrCount)
	p.tempPtrCount++
	return expr.NewArrayVariable(name, p.word(), typ)
}

// incrementAssignments bumps the assignment counter for an original
// variable name in the given block and every later block on the path, so
// subsequent uses pick up the new version.
func (p *Path) incrementAssignments(blockID int, name string) {
	for i := p.posOf[blockID]; i < len(p.blocks); i++ {
		p.addenda[p.blocks[i].ID].increment(name)
	}
}

// updateExpression rewrites every variable leaf to its current version
// according to the addendum of the given block.
func (p *Path) updateExpression(e *expr.Expression, blockID int) *expr.Expression {
	add := p.addenda[blockID]
	return transform(e, func(n *expr.Expression) *expr.Expression {
		switch n.Kind() {
		case expr.KindVariable, expr.KindArrayVariable:
			orig := OriginalName(n.Value())
			k := add.Count(orig)
			if k == 0 {
				return n
			}
			return expr.NewLeaf(n.Kind(), VersionedName(orig, k), n.Bits(), n.Type())
		}
		return n
	})
}

// transform rebuilds an expression bottom-up, applying fn to every node.
func transform(e *expr.Expression, fn func(*expr.Expression) *expr.Expression) *expr.Expression {
	if e.Operator().IsLeaf() {
		return fn(e)
	}
	params := e.Parameters()
	out := e
	for i, param := range params {
		np := transform(param, fn)
		if np != param {
			out = out.UpdateParameter(i, np)
		}
	}
	return fn(out)
}

// GenerateConditionsAndAssignments walks the path's blocks in order,
// producing the condition list and populating every table. Fatal analysis
// errors raised anywhere below come back as typed errors; precondition
// panics propagate because they are bugs.
func (p *Path) GenerateConditionsAndAssignments() (err error) {
	defer func() {
		if r := recover(); r != nil {
			ae, ok := r.(*errors.AnalysisError)
			if !ok || ae.Kind == errors.Precondition {
				panic(r)
			}
			err = ae
		}
	}()

	p.log.Debugf("analyzing path of %d blocks through unit %q", len(p.blocks), p.unit.Name)
	for _, b := range p.blocks {
		if walkErr := p.walkBlock(b); walkErr != nil {
			return walkErr
		}
	}

	// A path with nothing to say still yields a well-formed query.
	if len(p.Conditions) == 0 {
		p.addCondition(expr.True(), p.blocks[0].ID)
	}

	return p.postProcess()
}

func (p *Path) walkBlock(b *ssa.Block) error {
	for _, in := range b.Instrs {
		switch in.Kind {
		case ssa.InstrSwitch:
			return errors.Input(errors.ErrorSwitchInstruction,
				"switch instruction at line %d; lower switches to if-chains first", in.Line)

		case ssa.InstrValue:
			if in.Dst == nil {
				return errors.Input(errors.ErrorMalformedIR,
					"value instruction at line %d has no destination", in.Line)
			}
			if in.Dst.Temp {
				continue // folds into later uses
			}
			dest, err := p.exec.Trace(in.Dst, b)
			if err != nil {
				return err
			}
			src, err := p.exec.TraceComplete(in.Dst, b)
			if err != nil {
				return err
			}
			src = p.updateExpression(expr.Simplify(src), b.ID)
			if err := p.generateAndLogAssignment(b, dest, src); err != nil {
				return err
			}

		case ssa.InstrCall:
			if in.Callee == p.cfg.AnnotationAssume {
				if len(in.Srcs) == 0 {
					return errors.Input(errors.ErrorMalformedIR,
						"%s call at line %d has no argument", in.Callee, in.Line)
				}
				arg, err := p.exec.Trace(in.Srcs[0], b)
				if err != nil {
					return err
				}
				arg = p.updateExpression(expr.Simplify(arg), b.ID)
				cond := expr.New(expr.KindNotEqual, p.word(),
					arg, expr.NewConstant(0, arg.Bits()))
				p.addCondition(cond, b.ID)
			}
			// Other calls contribute only through their destinations,
			// traced on demand as external-function-call values.
		}
	}

	// Conditional branch: the direction the path takes becomes a condition.
	if b.HasMultipleSuccessors() {
		if _, hasNext := p.nextOnPath[b.ID]; hasNext {
			if err := p.addBranchCondition(b); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Path) addBranchCondition(b *ssa.Block) error {
	br := b.Branch()
	if br == nil || len(br.Srcs) == 0 {
		return errors.Input(errors.ErrorMalformedIR,
			"block %d has multiple successors but no branch condition", b.ID)
	}
	condOp := br.Srcs[0]
	e, err := p.exec.Trace(condOp, b)
	if err != nil {
		return err
	}
	e = p.updateExpression(expr.Simplify(e), b.ID)

	takesFalse := p.takesFalseEdge(b)
	// A compare feeding the branch directly is already direction-adjusted
	// by the executor; anything else gets wrapped.
	negatedByExec := takesFalse && condOp.Def != nil &&
		condOp.Def.Kind == ssa.InstrCompare && condOp.Def.Next() == br &&
		p.onPath(condOp.Def.Block.ID)
	if takesFalse && !negatedByExec {
		e = expr.New(expr.KindNot, p.word(), e)
	}
	p.addCondition(e, b.ID)
	p.Branches = append(p.Branches, BranchRecord{Line: br.Line, TakenTrue: !takesFalse})
	return nil
}

// generateAndLogAssignment dispatches on the shape of the destination
// expression, recursing until the assignment bottoms out in alias logging,
// an array store, or a scalar equality.
func (p *Path) generateAndLogAssignment(b *ssa.Block, dest, src *expr.Expression) error {
	switch dest.Kind() {
	case expr.KindConcat:
		hi, lo := dest.Parameter(0), dest.Parameter(1)
		loBits := lo.Bits()
		srcHi := expr.New(expr.KindBitExtract, hi.Bits(), src,
			expr.NewConstant(int64(loBits), p.word()),
			expr.NewConstant(int64(loBits+hi.Bits()-1), p.word()))
		srcLo := expr.New(expr.KindBitExtract, loBits, src,
			expr.NewConstant(0, p.word()),
			expr.NewConstant(int64(loBits-1), p.word()))
		if err := p.generateAndLogAssignment(b, hi, srcHi); err != nil {
			return err
		}
		return p.generateAndLogAssignment(b, lo, srcLo)

	case expr.KindZeroExtend, expr.KindSignExtend:
		inner := dest.Parameter(0)
		truncated := expr.New(expr.KindBitExtract, inner.Bits(), src,
			expr.NewConstant(0, p.word()),
			expr.NewConstant(int64(inner.Bits()-1), p.word()))
		return p.generateAndLogAssignment(b, inner, truncated)

	case expr.KindBitExtract:
		inner := dest.Parameter(0)
		lo, okLo := dest.Parameter(1).ConstInt()
		hi, okHi := dest.Parameter(2).ConstInt()
		if !okLo || !okHi {
			return errors.Unsupportedf(errors.ErrorAggregateOffset,
				"bit-extract destination with non-constant bounds: %s", dest)
		}
		reassembled := src
		if int(lo.Int64()) > 0 {
			low := expr.New(expr.KindBitExtract, int(lo.Int64()), inner,
				expr.NewConstant(0, p.word()),
				expr.NewConstant(lo.Int64()-1, p.word()))
			reassembled = expr.New(expr.KindConcat, reassembled.Bits()+low.Bits(), reassembled, low)
		}
		if int(hi.Int64()) < inner.Bits()-1 {
			high := expr.New(expr.KindBitExtract, inner.Bits()-1-int(hi.Int64()), inner,
				expr.NewConstant(hi.Int64()+1, p.word()),
				expr.NewConstant(int64(inner.Bits()-1), p.word()))
			reassembled = expr.New(expr.KindConcat, high.Bits()+reassembled.Bits(), high, reassembled)
		}
		return p.generateAndLogAssignment(b, inner, reassembled)

	case expr.KindIte:
		c, a, alt := dest.Parameter(0), dest.Parameter(1), dest.Parameter(2)
		guarded := expr.New(expr.KindIte, a.Bits(), c, src, a)
		if err := p.generateAndLogAssignment(b, a, guarded); err != nil {
			return err
		}
		return p.generateAndLogAssignment(b, alt, src)

	case expr.KindArray:
		return p.logArrayAssignment(b, dest, src)
	}

	if dest.Type().IsPointer() {
		p.AliasTable.Put(dest, src)
		return nil
	}
	if dest.Type().IsAggregate() || dest.Kind() == expr.KindOffset {
		p.AggregateOffsets.Put(dest, p.baseAndOffset(src))
		return nil
	}
	if dest.Kind() == expr.KindVariable {
		orig := OriginalName(dest.Value())
		p.incrementAssignments(b.ID, orig)
		k := p.addenda[b.ID].Count(orig)
		renamed := expr.NewVariable(VersionedName(orig, k), dest.Bits(), dest.Type())
		p.addCondition(expr.New(expr.KindEqual, p.word(), renamed, src), b.ID)
		return nil
	}
	return errors.Unsupportedf(errors.ErrorUnknownOpcode,
		"assignment destination shape %q is not supported", dest.Operator().Symbol)
}

// baseAndOffset normalizes an aggregate-valued source into a
// (base, bit offset) pair encoded as an offset expression. Offsets compose
// through the aggregate-offset table.
func (p *Path) baseAndOffset(src *expr.Expression) *expr.Expression {
	if pair, ok := p.AggregateOffsets.Get(src); ok {
		return pair
	}
	if src.Kind() == expr.KindOffset {
		base := src.Parameter(0)
		off := src.Parameter(1)
		if pair, ok := p.AggregateOffsets.Get(base); ok {
			composed := expr.Simplify(expr.New(expr.KindAdd, p.word(), pair.Parameter(1), off))
			return expr.New(expr.KindOffset, pair.Parameter(0).Bits(), pair.Parameter(0), composed)
		}
		return src
	}
	return expr.New(expr.KindOffset, src.Bits(), src, expr.NewConstant(0, p.word()))
}

// logArrayAssignment rewrites a store through an array access into a
// versioned store equation on the root array variable.
func (p *Path) logArrayAssignment(b *ssa.Block, dest, src *expr.Expression) error {
	leaf, indices := rootArray(dest)
	if leaf == nil {
		return errors.Unsupportedf(errors.ErrorUnknownOpcode,
			"array assignment does not bottom out in an array variable: %s", dest)
	}
	orig := OriginalName(leaf.Value())
	// Index expressions read the pre-assignment state.
	for i, idx := range indices {
		indices[i] = p.updateExpression(idx, b.ID)
	}
	oldK := p.addenda[b.ID].Count(orig)
	p.incrementAssignments(b.ID, orig)
	newK := p.addenda[b.ID].Count(orig)

	oldLeaf := expr.NewArrayVariable(VersionedName(orig, oldK), leaf.Bits(), leaf.Type())
	newLeaf := expr.NewArrayVariable(VersionedName(orig, newK), leaf.Bits(), leaf.Type())
	store := buildStore(oldLeaf, indices, src)
	p.addCondition(expr.New(expr.KindEqual, p.word(), newLeaf, store), b.ID)
	return nil
}

// rootArray peels nested accesses, returning the root array variable and
// the index expressions from outermost dimension inwards.
func rootArray(access *expr.Expression) (*expr.Expression, []*expr.Expression) {
	var indices []*expr.Expression
	e := access
	for e.Kind() == expr.KindArray {
		indices = append([]*expr.Expression{e.Parameter(1)}, indices...)
		e = e.Parameter(0)
	}
	if e.Kind() != expr.KindArrayVariable {
		return nil, nil
	}
	return e, indices
}

// buildStore nests stores for multi-dimensional accesses:
// store(a, i, store(a[i], j, src)).
func buildStore(arr *expr.Expression, indices []*expr.Expression, src *expr.Expression) *expr.Expression {
	if len(indices) == 1 {
		return expr.New(expr.KindStore, arr.Bits(), arr, indices[0], src)
	}
	inner := expr.New(expr.KindArray, arr.Bits(), arr, indices[0])
	return expr.New(expr.KindStore, arr.Bits(), arr, indices[0],
		buildStore(inner, indices[1:], src))
}
