package analyzer

import (
	"gametime/internal/errors"
	"gametime/internal/expr"
	"gametime/internal/ssa"
)

// Pointers are modeled as Church-encoded dereferencing functions: one
// function layer per index level, each taking (index, extra-bit-offset).
// Applying every layer with (0, 0) materializes the access; offsetting a
// pointer rewrites the formals of the outermost layer.

// derefFunction wraps a pointer expression in its dereferencing function.
// Expressions that already are functions pass through; the alias table is
// consulted before construction.
func (p *Path) derefFunction(pe *expr.Expression) *expr.Expression {
	if pe.Kind() == expr.KindFunction {
		return pe
	}
	if alias, ok := p.AliasTable.Get(pe); ok {
		pe = alias
		if pe.Kind() == expr.KindFunction {
			return pe
		}
	}
	typ := pe.Type()
	if !typ.IsPointer() && !typ.IsUnmanagedArray() {
		errors.Panicf(errors.PrecondNotAPointer,
			"dereference of non-pointer expression %s", pe)
	}
	dims := p.dimensionsOf(pe)
	zero := expr.NewConstant(0, p.word())
	return p.buildDerefLevel(pe, typ, dims, 0, zero)
}

func (p *Path) buildDerefLevel(ref *expr.Expression, typ *ssa.Type, dims []int, level int, carried *expr.Expression) *expr.Expression {
	idx := p.freshTempVar(dims[level])
	off := p.freshTempVar(p.word())
	elemType := typ.Indirect()
	elemBits := dims[len(dims)-1]
	if elemType != nil && elemType.Bits > 0 {
		elemBits = elemType.Bits
	}
	elem := expr.New(expr.KindArray, elemBits, ref, idx).WithType(elemType)
	carriedNext := expr.Simplify(expr.New(expr.KindAdd, p.word(), carried, off))

	last := level >= len(dims)-2 ||
		elemType == nil || (!elemType.IsPointer() && !elemType.IsUnmanagedArray())
	var body *expr.Expression
	if last {
		body = expr.New(expr.KindOffset, elemBits, elem, carriedNext)
	} else {
		body = p.buildDerefLevel(elem, elemType, dims, level+1, carriedNext)
	}
	return expr.New(expr.KindFunction, p.word(), idx, off, body).WithType(typ)
}

// addOffsetToPointer shifts a dereferencing function by a bit offset. The
// offset splits into an index increment (offset / referent bits) and a
// residual (offset mod referent bits); both are added to the outermost
// formals and the body is simplified, which is where the multiplication
// introduced by index scaling cancels out again.
func (p *Path) addOffsetToPointer(fn, offsetBits *expr.Expression) *expr.Expression {
	if v, ok := offsetBits.ConstInt(); ok && v.Sign() == 0 {
		return fn
	}
	if fn.Kind() != expr.KindFunction {
		fn = p.derefFunction(fn)
	}
	typ := fn.Type()
	referent := typ.Indirect()
	if referent == nil || referent.Bits == 0 {
		errors.Panicf(errors.PrecondNotAPointer,
			"offsetting a pointer with no referent width: %s", fn)
	}
	refBits := expr.NewConstant(int64(referent.Bits), p.word())
	idxInc := expr.Simplify(expr.New(expr.KindSDiv, p.word(), offsetBits, refBits))
	remInc := expr.Simplify(expr.New(expr.KindRem, p.word(), offsetBits, refBits))

	idx, off := fn.Parameter(0), fn.Parameter(1)
	body := fn.Parameter(2)
	if v, ok := idxInc.ConstInt(); !ok || v.Sign() != 0 {
		body = body.Replace(idx, expr.Simplify(expr.New(expr.KindAdd, idx.Bits(), idx, idxInc)))
	}
	if v, ok := remInc.ConstInt(); !ok || v.Sign() != 0 {
		body = body.Replace(off, expr.Simplify(expr.New(expr.KindAdd, off.Bits(), off, remInc)))
	}
	body = expr.Simplify(body)
	return expr.New(expr.KindFunction, fn.Bits(), idx, off, body).WithType(typ)
}

// apply substitutes a function's formals with concrete arguments.
func (p *Path) apply(fn, idxArg, offArg *expr.Expression) *expr.Expression {
	idx, off := fn.Parameter(0), fn.Parameter(1)
	body := fn.Parameter(2)
	return expr.Simplify(body.Replace(idx, idxArg).Replace(off, offArg))
}

// dereference applies every layer of a pointer's dereferencing function
// with (0, 0) and resolves the resulting offset expression into a concrete
// reference. access is the type the dereference reads; aliased suppresses
// aggregate-field decomposition when the access covers the aggregate whole.
func (p *Path) dereference(fn *expr.Expression, access *ssa.Type, aliased bool) (*expr.Expression, error) {
	if fn.Kind() != expr.KindFunction {
		fn = p.derefFunction(fn)
	}
	r := fn
	for r.Kind() == expr.KindFunction {
		idxZero := expr.NewConstant(0, r.Parameter(0).Bits())
		offZero := expr.NewConstant(0, r.Parameter(1).Bits())
		r = p.apply(r, idxZero, offZero)
	}
	resolved, err := p.resolveOffsets(r, access, aliased)
	if err != nil {
		return nil, err
	}
	if alias, ok := p.AliasTable.Get(resolved); ok {
		resolved = alias.Clone()
	}
	return resolved, nil
}

// resolveOffsets walks a dereference result bottom-up. Offsets whose base
// is an aggregate resolve to field accesses (or to the base itself when the
// aggregate is aliased as a whole); non-aggregate offsets of zero collapse
// to the base, and non-zero residuals are preserved as aliasing casts.
func (p *Path) resolveOffsets(e *expr.Expression, access *ssa.Type, aliased bool) (*expr.Expression, error) {
	if e.Operator().IsLeaf() {
		return e, nil
	}
	params := e.Parameters()
	out := e
	for i, param := range params {
		np, err := p.resolveOffsets(param, access, aliased)
		if err != nil {
			return nil, err
		}
		if np != param {
			out = out.UpdateParameter(i, np)
		}
	}
	if out.Kind() != expr.KindOffset {
		return out, nil
	}
	base := out.Parameter(0)
	off := expr.Simplify(out.Parameter(1))
	if base.Type().IsAggregate() {
		if aliased {
			return base, nil
		}
		return p.resolveAggregateAccess(base, off, access)
	}
	if v, ok := off.ConstInt(); ok && v.Sign() == 0 {
		return base, nil
	}
	return out, nil
}

// dimensionsOf yields the per-level index widths of an array variable plus
// the final element width, memoized by original variable name.
func (p *Path) dimensionsOf(e *expr.Expression) []int {
	name := OriginalName(e.Value())
	if d, ok := p.ArrayDimensions[name]; ok {
		return d
	}
	d := arrayDims(e.Type(), p.word())
	p.ArrayDimensions[name] = d
	return d
}

// arrayDims walks pointer and unmanaged-array levels, appending one index
// width per level; aggregates collapse and terminate the walk.
func arrayDims(t *ssa.Type, word int) []int {
	var dims []int
	for t.IsPointer() || t.IsUnmanagedArray() {
		dims = append(dims, word)
		t = t.Indirect()
		if t.IsAggregate() {
			break
		}
	}
	elem := word
	if t != nil && t.Bits > 0 {
		elem = t.Bits
	}
	return append(dims, elem)
}
