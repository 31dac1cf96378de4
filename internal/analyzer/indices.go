package analyzer

import (
	"strconv"
	"strings"

	"gametime/internal/config"
	"gametime/internal/expr"
	"gametime/internal/ssa"
)

// Post-processing of the condition list, in order: array dimensions for
// every referenced array variable, index replacement with temporaries,
// access witnessing, lowering array accesses to selects, and the
// divisor-not-zero guards.

func (p *Path) postProcess() error {
	p.collectArrayDimensions()
	if err := p.replaceIndices(); err != nil {
		return err
	}
	p.collectArrayAccesses()
	p.lowerArrayAccessesToSelect()
	p.appendDivisorGuards()
	p.collectDeclarations()
	return nil
}

func (p *Path) collectArrayDimensions() {
	for _, c := range p.Conditions {
		eachNode(c.Expr, func(n *expr.Expression) {
			if n.Kind() == expr.KindArrayVariable && n.Type() != nil {
				p.dimensionsOf(n)
			}
		})
	}
}

// replaceIndices rewrites every array and store access so its index is a
// bare temporary-index variable; an equality anchoring the temporary to the
// original index expression is appended, plus a bounds condition when the
// accessed level has a fixed size. Appended conditions are processed too,
// which terminates because replaced indices are already temporaries.
func (p *Path) replaceIndices() error {
	for i := 0; i < len(p.Conditions); i++ {
		replaced, err := p.replaceIndicesIn(p.Conditions[i].Expr, p.Conditions[i].BlockID)
		if err != nil {
			return err
		}
		p.Conditions[i].Expr = replaced
	}
	return nil
}

func (p *Path) replaceIndicesIn(e *expr.Expression, blockID int) (*expr.Expression, error) {
	if e.Operator().IsLeaf() {
		return e, nil
	}
	params := e.Parameters()
	out := e
	for i, param := range params {
		np, err := p.replaceIndicesIn(param, blockID)
		if err != nil {
			return nil, err
		}
		if np != param {
			out = out.UpdateParameter(i, np)
		}
	}
	switch out.Kind() {
	case expr.KindArray, expr.KindStore:
		idx, err := p.replaceOneIndex(out.Parameter(1), levelType(out.Parameter(0)), blockID)
		if err != nil {
			return nil, err
		}
		out = out.UpdateParameter(1, idx)
	}
	return out, nil
}

// replaceOneIndex substitutes one index expression with a fresh temporary.
// In flat modelling, a concatenated index splits along the concatenation
// boundary and each sub-index is replaced independently.
func (p *Path) replaceOneIndex(idx *expr.Expression, level *ssa.Type, blockID int) (*expr.Expression, error) {
	if p.isTempIndex(idx) {
		return idx, nil
	}
	if p.cfg.ArrayMode == config.ArrayModeFlat && idx.Kind() == expr.KindConcat {
		hi, err := p.replaceOneIndex(idx.Parameter(0), nil, blockID)
		if err != nil {
			return nil, err
		}
		lo, err := p.replaceOneIndex(idx.Parameter(1), level, blockID)
		if err != nil {
			return nil, err
		}
		return expr.New(expr.KindConcat, hi.Bits()+lo.Bits(), hi, lo), nil
	}

	k := p.tempIndexCount
	p.tempIndexCount++
	bits := idx.Bits()
	if bits == 0 {
		bits = p.word()
	}
	temp := expr.NewVariable(p.cfg.IdentTempIndex+strconv.Itoa(k), bits, nil)
	p.TempIndexExprs[k] = idx

	p.addCondition(expr.New(expr.KindEqual, p.word(), temp, idx), blockID)
	if level.IsUnmanagedArray() && level.Count > 0 {
		bounds := expr.New(expr.KindAnd, p.word(),
			expr.New(expr.KindLessEqual, p.word(), expr.NewConstant(0, bits), temp),
			expr.New(expr.KindLess, p.word(), temp, expr.NewConstant(int64(level.Count), bits)))
		p.addCondition(bounds, blockID)
	}
	return temp, nil
}

func (p *Path) isTempIndex(e *expr.Expression) bool {
	return e.Kind() == expr.KindVariable &&
		strings.HasPrefix(e.Value(), p.cfg.IdentTempIndex)
}

// tempIndexNumber parses the number of a temporary-index variable.
func (p *Path) tempIndexNumber(e *expr.Expression) (int, bool) {
	if !p.isTempIndex(e) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(e.Value(), p.cfg.IdentTempIndex))
	if err != nil {
		return 0, false
	}
	return n, true
}

// levelType resolves the array level a subscript applies to: the variable's
// own type at the root, one dereference per enclosing access.
func levelType(base *expr.Expression) *ssa.Type {
	switch base.Kind() {
	case expr.KindArrayVariable:
		return base.Type()
	case expr.KindArray, expr.KindSelect:
		t := levelType(base.Parameter(0))
		if t != nil {
			return t.Indirect()
		}
	}
	return nil
}

// collectArrayAccesses records, per access chain bottoming out in an array
// variable, the temporary-index numbers substituted into it.
func (p *Path) collectArrayAccesses() {
	for _, c := range p.Conditions {
		p.witnessAccesses(c.Expr)
	}
}

func (p *Path) witnessAccesses(e *expr.Expression) {
	if e.Operator().IsLeaf() {
		return
	}
	switch e.Kind() {
	case expr.KindArray:
		leaf, indices := rootArray(e)
		p.recordAccess(leaf, indices)
		for _, idx := range indices {
			p.witnessAccesses(idx)
		}
		return
	case expr.KindStore:
		leaf, indices := rootArray(e.Parameter(0))
		indices = append(indices, e.Parameter(1))
		p.recordAccess(leaf, indices)
		p.witnessAccesses(e.Parameter(1))
		p.witnessAccesses(e.Parameter(2))
		return
	}
	for i := 0; i < e.NumParameters(); i++ {
		p.witnessAccesses(e.Parameter(i))
	}
}

// recordAccess resolves every index of an access chain to its temporary
// number; concatenated flat indices contribute one number per part.
func (p *Path) recordAccess(leaf *expr.Expression, indices []*expr.Expression) {
	if leaf == nil || len(indices) == 0 {
		return
	}
	var nums []int
	for _, idx := range indices {
		for _, part := range getArrayAccessIndices(idx) {
			n, ok := p.tempIndexNumber(part)
			if !ok {
				return
			}
			nums = append(nums, n)
		}
	}
	p.ArrayAccesses = append(p.ArrayAccesses, ArrayAccess{Array: leaf, Indices: nums})
}

// lowerArrayAccessesToSelect rewrites every array access node to a select.
// Stores keep their shape; flat-index rewriting happens in the SMT layer.
func (p *Path) lowerArrayAccessesToSelect() {
	for i := range p.Conditions {
		p.Conditions[i].Expr = lowerToSelect(p.Conditions[i].Expr)
	}
}

func lowerToSelect(e *expr.Expression) *expr.Expression {
	if e.Operator().IsLeaf() {
		return e
	}
	params := e.Parameters()
	changed := false
	for i, param := range params {
		np := lowerToSelect(param)
		if np != param {
			params[i] = np
			changed = true
		}
	}
	if e.Kind() == expr.KindArray {
		out := expr.New(expr.KindSelect, e.Bits(), params[0], params[1])
		if e.Type() != nil {
			out = out.WithType(e.Type())
		}
		return out
	}
	if !changed {
		return e
	}
	out := e
	for i, np := range params {
		out = out.UpdateParameter(i, np)
	}
	return out
}

// appendDivisorGuards adds b != 0 for every division or remainder subterm
// appearing in any condition, once per distinct divisor. The guard is
// emitted even for literal constant divisors.
func (p *Path) appendDivisorGuards() {
	seen := expr.NewSet()
	type guard struct {
		divisor *expr.Expression
		blockID int
	}
	var guards []guard
	for _, c := range p.Conditions {
		blockID := c.BlockID
		eachNode(c.Expr, func(n *expr.Expression) {
			switch n.Kind() {
			case expr.KindSDiv, expr.KindUDiv, expr.KindRem:
				d := n.Parameter(1)
				if !seen.Has(d) {
					seen.Add(d)
					guards = append(guards, guard{divisor: d, blockID: blockID})
				}
			}
		})
	}
	for _, g := range guards {
		bits := g.divisor.Bits()
		if bits == 0 {
			bits = p.word()
		}
		p.addCondition(expr.New(expr.KindNotEqual, p.word(),
			g.divisor, expr.NewConstant(0, bits)), g.blockID)
	}
}

// collectDeclarations gathers every variable and array-variable leaf
// referenced by the final condition list.
func (p *Path) collectDeclarations() {
	for _, c := range p.Conditions {
		eachNode(c.Expr, func(n *expr.Expression) {
			switch n.Kind() {
			case expr.KindVariable:
				p.Variables.Add(n)
			case expr.KindArrayVariable:
				p.ArrayVariables.Add(n)
				if n.Type() != nil {
					p.dimensionsOf(n)
				}
			}
		})
	}
}

// eachNode visits every node of an expression tree, parents after children.
func eachNode(e *expr.Expression, visit func(*expr.Expression)) {
	for i := 0; i < e.NumParameters(); i++ {
		eachNode(e.Parameter(i), visit)
	}
	visit(e)
}
