package analyzer

import (
	"gametime/internal/config"
	"gametime/internal/expr"
	"gametime/internal/smt"
)

// SMTInput assembles the lowering input from a populated path.
func (p *Path) SMTInput() *smt.Input {
	conds := make([]*expr.Expression, len(p.Conditions))
	for i, c := range p.Conditions {
		conds[i] = c.Expr
	}
	var vars, arrays []*expr.Expression
	p.Variables.Each(func(e *expr.Expression) { vars = append(vars, e) })
	p.ArrayVariables.Each(func(e *expr.Expression) { arrays = append(arrays, e) })
	return &smt.Input{
		Conditions:       conds,
		Variables:        vars,
		Arrays:           arrays,
		Dimensions:       p.ArrayDimensions,
		WordBits:         p.cfg.WordBits,
		Flat:             p.cfg.ArrayMode == config.ArrayModeFlat,
		ConstraintPrefix: p.cfg.IdentConstraint,
	}
}

// Query runs the SMT lowering over the path's final condition list.
func (p *Path) Query() (string, error) {
	return smt.Lower(p.SMTInput())
}
