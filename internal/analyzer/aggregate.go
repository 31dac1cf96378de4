package analyzer

import (
	"sort"
	"strconv"

	"gametime/internal/errors"
	"gametime/internal/expr"
	"gametime/internal/ssa"
)

// Aggregates are modeled as one array per field, indexed by the containing
// aggregate's index carrier. Accesses that do not line up with field
// boundaries are stitched together from field slices; two aggregates that
// reduce to the same base with different offsets share storage through the
// aggregate-offset table.

// AggregateField is one field overlapped by an aggregate access.
type AggregateField struct {
	AggType *ssa.Type
	Access  *expr.Expression
	Offset  int // start offset of the field in bits, relative to the base
	Bits    int
}

// resolveAggregateAccess turns (aggregate, bit offset, access type) into a
// concrete expression over per-field arrays.
func (p *Path) resolveAggregateAccess(agg *expr.Expression, off *expr.Expression, access *ssa.Type) (*expr.Expression, error) {
	offConst, ok := off.ConstInt()
	if !ok {
		return nil, errors.Unsupportedf(errors.ErrorAggregateOffset,
			"aggregate access with non-constant offset %s", off)
	}
	bitOff := int(offConst.Int64())

	base, extra := p.baseAggregate(agg)
	bitOff += extra

	accessBits := p.word()
	if access != nil && access.Bits > 0 {
		accessBits = access.Bits
	}
	fields, err := p.aggregateFields(base, base.Type(), 0, bitOff, accessBits)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, errors.Unsupportedf(errors.ErrorAggregateOffset,
			"aggregate access at bit %d of %s overlaps no field", bitOff, base.Type())
	}
	return p.concatFields(fields, bitOff, accessBits)
}

// baseAggregate chases the aggregate-offset table to the canonical base,
// accumulating the bit offsets along the way.
func (p *Path) baseAggregate(agg *expr.Expression) (*expr.Expression, int) {
	cur := agg
	total := 0
	for {
		pair, ok := p.AggregateOffsets.Get(cur)
		if !ok {
			return cur, total
		}
		next := pair.Parameter(0)
		if v, isConst := pair.Parameter(1).ConstInt(); isConst {
			total += int(v.Int64())
		}
		if next.Equal(cur) {
			return cur, total
		}
		cur = next
	}
}

// aggregateFields enumerates the fields of the aggregate's declared type
// that overlap the accessed bit range, recursing into nested aggregates and
// expanding fixed-size array fields element by element.
func (p *Path) aggregateFields(agg *expr.Expression, typ *ssa.Type, typOff, accessOff, accessBits int) ([]AggregateField, error) {
	if !typ.IsAggregate() {
		return nil, errors.Unsupportedf(errors.ErrorAggregateOffset,
			"field enumeration over non-aggregate type %s", typ)
	}
	accessEnd := accessOff + accessBits - 1
	var out []AggregateField
	for _, f := range typ.Fields {
		start := typOff + f.Offset
		end := start + f.Type.Bits - 1
		if end < accessOff || start > accessEnd {
			continue
		}
		switch {
		case f.Type.IsAggregate():
			nested, err := p.aggregateFields(agg, f.Type, start, accessOff, accessBits)
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)

		case f.Type.IsUnmanagedArray() && f.Type.Elem != nil &&
			f.Type.Elem.Bits != accessBits:
			// Per-element synthetic field accesses for array fields the
			// access does not read whole.
			elemBits := f.Type.Elem.Bits
			for k := 0; k < f.Type.Count; k++ {
				es := start + k*elemBits
				ee := es + elemBits - 1
				if ee < accessOff || es > accessEnd {
					continue
				}
				name := f.Name + "_" + strconv.Itoa(k)
				out = append(out, AggregateField{
					AggType: typ,
					Access:  p.fieldAccess(agg, typ, name, f.Type.Elem),
					Offset:  es,
					Bits:    elemBits,
				})
			}

		default:
			out = append(out, AggregateField{
				AggType: typ,
				Access:  p.fieldAccess(agg, typ, f.Name, f.Type),
				Offset:  start,
				Bits:    f.Type.Bits,
			})
		}
	}
	return out, nil
}

// fieldAccess builds the array[index] encoding of one field: the array is
// named after the field and the aggregate type, the index carrier is the
// aggregate's own index.
func (p *Path) fieldAccess(agg *expr.Expression, aggType *ssa.Type, fieldName string, fieldType *ssa.Type) *expr.Expression {
	name := p.cfg.IdentField + fieldName + p.cfg.IdentAggregate + aggType.Name
	arrType := ssa.NewArray(fieldType, 0)
	arr := expr.NewArrayVariable(name, fieldType.Bits, arrType)
	idx := aggregateIndex(agg, p.word())
	return expr.New(expr.KindArray, fieldType.Bits, arr, idx).WithType(fieldType)
}

// aggregateIndex extracts the index carrier of an aggregate expression: the
// subscript for arrays of aggregates, zero for a scalar aggregate.
func aggregateIndex(agg *expr.Expression, word int) *expr.Expression {
	if agg.Kind() == expr.KindArray {
		return agg.Parameter(1)
	}
	return expr.NewConstant(0, word)
}

// concatFields recombines the overlapping field slices into one value of
// the accessed width. Field order reverses between little- and big-endian
// targets; incomplete coverage at the high end is zero-padded.
func (p *Path) concatFields(fields []AggregateField, accessOff, accessBits int) (*expr.Expression, error) {
	sorted := make([]AggregateField, len(fields))
	copy(sorted, fields)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })

	accessEnd := accessOff + accessBits - 1
	covered := 0
	slices := make([]*expr.Expression, 0, len(sorted))
	for _, f := range sorted {
		lo := 0
		if accessOff > f.Offset {
			lo = accessOff - f.Offset
		}
		hi := f.Bits - 1
		if f.Offset+f.Bits-1 > accessEnd {
			hi = accessEnd - f.Offset
		}
		slice := f.Access
		if lo != 0 || hi != f.Bits-1 {
			slice = expr.New(expr.KindBitExtract, hi-lo+1, f.Access,
				expr.NewConstant(int64(lo), p.word()),
				expr.NewConstant(int64(hi), p.word()))
		}
		slices = append(slices, slice)
		covered += hi - lo + 1
	}

	// Order the slices least-significant first: low-offset fields are the
	// low bits on little-endian targets and the high bits on big-endian
	// ones.
	ordered := slices
	if p.cfg.BigEndian() {
		ordered = make([]*expr.Expression, len(slices))
		for i, s := range slices {
			ordered[len(slices)-1-i] = s
		}
	}
	if covered < accessBits {
		p.Warnings.Warnf(errors.WarningPartialCoverage,
			"aggregate access covers %d of %d bits; high bits zero-padded",
			covered, accessBits)
		ordered = append(ordered, expr.NewConstant(0, accessBits-covered))
	}
	if len(ordered) == 1 {
		return ordered[0], nil
	}
	result := ordered[0]
	for _, s := range ordered[1:] {
		result = expr.New(expr.KindConcat, s.Bits()+result.Bits(), s, result)
	}
	return result, nil
}
