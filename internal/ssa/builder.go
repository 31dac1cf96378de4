package ssa

import (
	"strconv"
	"strings"

	"gametime/grammar"
	"gametime/internal/errors"
)

// Builder converts the parsed textual IR into the SSA model. Names shared
// between a definition and its uses resolve to one Operand, which is what
// gives the executor its memoization key.
type Builder struct {
	word       int
	aggregates map[string]*Type
	operands   map[string]*Operand
	unit       *Unit
	idCounter  int
}

// BuildProgram converts every unit of a parsed file.
func BuildProgram(f *grammar.File) (*Program, error) {
	p := &Program{Units: make(map[string]*Unit)}
	for _, u := range f.Units {
		unit, err := buildUnit(u)
		if err != nil {
			return nil, err
		}
		p.Units[u.Name] = unit
	}
	return p, nil
}

func buildUnit(decl *grammar.Unit) (*Unit, error) {
	word := decl.Word
	if word <= 0 {
		return nil, errors.Input(errors.ErrorMalformedIR,
			"unit %q declares word size %d", decl.Name, decl.Word)
	}
	b := &Builder{
		word:       word,
		aggregates: make(map[string]*Type),
		operands:   make(map[string]*Operand),
		unit:       NewUnit(decl.Name, word),
	}
	if err := b.collectAggregates(decl.Types); err != nil {
		return nil, err
	}
	// Blocks first, instructions second, so branch targets and phi edges
	// can reference any block.
	for _, bd := range decl.Blocks {
		block := &Block{ID: bd.ID, Succs: bd.Succs}
		b.unit.AddBlock(block)
	}
	for _, bd := range decl.Blocks {
		block, err := b.unit.Block(bd.ID)
		if err != nil {
			return nil, err
		}
		for _, id := range bd.Instrs {
			in, err := b.buildInstr(id, block)
			if err != nil {
				return nil, err
			}
			block.Instrs = append(block.Instrs, in)
		}
	}
	return b.unit, nil
}

// collectAggregates registers every declared aggregate before resolving
// field types, so nested and forward references work.
func (b *Builder) collectAggregates(decls []*grammar.TypeDecl) error {
	for _, d := range decls {
		if _, dup := b.aggregates[d.Name]; dup {
			return errors.Input(errors.ErrorMalformedIR, "type %q declared twice", d.Name)
		}
		b.aggregates[d.Name] = &Type{Kind: TypeAggregate, Name: d.Name}
	}
	for _, d := range decls {
		agg := b.aggregates[d.Name]
		size := 0
		for _, fd := range d.Fields {
			ft, err := b.resolveType(fd.Type)
			if err != nil {
				return err
			}
			agg.Fields = append(agg.Fields, Field{Name: fd.Name, Type: ft, Offset: fd.Off})
			if end := fd.Off + ft.Bits; end > size {
				size = end
			}
		}
		agg.Bits = size
	}
	return nil
}

func (b *Builder) resolveType(tr *grammar.TypeRef) (*Type, error) {
	if tr == nil {
		return nil, nil
	}
	switch {
	case tr.Pointer != nil:
		referent, err := b.resolveType(tr.Pointer)
		if err != nil {
			return nil, err
		}
		return NewPointer(referent, b.word), nil
	case tr.Array != nil:
		elem, err := b.resolveType(tr.Array.Elem)
		if err != nil {
			return nil, err
		}
		return NewArray(elem, tr.Array.Count), nil
	}
	name := tr.Name
	if len(name) > 1 {
		if bits, err := strconv.Atoi(name[1:]); err == nil {
			switch name[0] {
			case 'i':
				return NewInt(bits, true), nil
			case 'u':
				return NewInt(bits, false), nil
			case 'f':
				return NewFloat(bits), nil
			}
		}
	}
	if agg, ok := b.aggregates[name]; ok {
		return agg, nil
	}
	return nil, errors.Input(errors.ErrorMalformedIR, "unknown type %q", name)
}

func (b *Builder) newOperand(line int) *Operand {
	b.idCounter++
	return &Operand{ID: b.idCounter, Line: line}
}

// useOperand resolves an operand reference in use position.
func (b *Builder) useOperand(ref *grammar.Ref, line int) (*Operand, error) {
	if ref == nil {
		return nil, errors.Input(errors.ErrorMalformedIR, "null operand at line %d", line)
	}
	typ, err := b.resolveType(ref.Type)
	if err != nil {
		return nil, err
	}
	switch {
	case ref.Imm != nil:
		op := b.newOperand(line)
		op.Immediate = true
		if ref.Imm.Float != nil {
			f, err := strconv.ParseFloat(*ref.Imm.Float, 64)
			if err != nil {
				return nil, errors.Input(errors.ErrorMalformedIR,
					"bad float literal %q at line %d", *ref.Imm.Float, line)
			}
			op.Float = true
			op.FloatValue = f
			if typ == nil {
				typ = NewFloat(64)
			}
		} else {
			v, err := strconv.ParseInt(*ref.Imm.Int, 10, 64)
			if err != nil {
				return nil, errors.Input(errors.ErrorMalformedIR,
					"bad integer literal %q at line %d", *ref.Imm.Int, line)
			}
			op.IntValue = v
			if typ == nil {
				typ = NewInt(b.word, true)
			}
		}
		op.Type = typ
		return op, nil

	case ref.Mem != nil:
		base, err := b.useOperand(ref.Mem.Base, line)
		if err != nil {
			return nil, err
		}
		op := b.newOperand(line)
		op.Memory = true
		op.Base = base
		if ref.Mem.Offset != nil {
			op.FieldOffset = *ref.Mem.Offset
		}
		if typ == nil && base.Type != nil {
			typ = base.Type.Indirect()
		}
		op.Type = typ
		op.Name = "mem"
		return op, nil

	case ref.Addr != nil:
		op := b.newOperand(line)
		op.AddressOf = true
		op.Name = ref.Addr.Name
		if typ == nil {
			if target, ok := b.operands["n:"+ref.Addr.Name]; ok && target.Type != nil {
				typ = NewPointer(target.Type, b.word)
			}
		}
		if typ == nil || !typ.IsPointer() {
			return nil, errors.Input(errors.ErrorMalformedIR,
				"address-of %q at line %d needs a pointer type", ref.Addr.Name, line)
		}
		op.Type = typ
		return op, nil

	case ref.Temp != "":
		return b.namedOperand("t:"+ref.Temp, ref.Temp, true, typ, line)

	default:
		return b.namedOperand("n:"+ref.Name, ref.Name, false, typ, line)
	}
}

func (b *Builder) namedOperand(key, name string, temp bool, typ *Type, line int) (*Operand, error) {
	if op, ok := b.operands[key]; ok {
		return op, nil
	}
	if typ == nil {
		return nil, errors.Input(errors.ErrorMalformedIR,
			"first use of %q at line %d needs a type annotation", name, line)
	}
	op := b.newOperand(line)
	op.Name = name
	op.Temp = temp
	op.Type = typ
	b.operands[key] = op
	return op, nil
}

// defOperand resolves the destination of an instruction, registering named
// destinations so later uses share the operand.
func (b *Builder) defOperand(ref *grammar.Ref, dstType *grammar.TypeRef, line int) (*Operand, error) {
	typ, err := b.resolveType(dstType)
	if err != nil {
		return nil, err
	}
	if ref.Type != nil {
		if typ, err = b.resolveType(ref.Type); err != nil {
			return nil, err
		}
	}
	if ref.Mem != nil {
		op, err := b.useOperand(ref, line)
		if err != nil {
			return nil, err
		}
		if typ != nil {
			op.Type = typ
		}
		return op, nil
	}
	key, name, temp := "n:"+ref.Name, ref.Name, false
	if ref.Temp != "" {
		key, name, temp = "t:"+ref.Temp, ref.Temp, true
	}
	if _, dup := b.operands[key]; dup {
		return nil, errors.Input(errors.ErrorMalformedIR,
			"%q defined twice at line %d; the IR must be in SSA form", name, line)
	}
	op := b.newOperand(line)
	op.Name = name
	op.Temp = temp
	op.Type = typ
	if op.Type == nil {
		return nil, errors.Input(errors.ErrorMalformedIR,
			"definition of %q at line %d needs a type", name, line)
	}
	b.operands[key] = op
	return op, nil
}

func (b *Builder) buildInstr(decl *grammar.InstrDecl, block *Block) (*Instr, error) {
	switch {
	case decl.Start != nil:
		return &Instr{Kind: InstrStart, Line: decl.Start.Line, Block: block}, nil

	case decl.Branch != nil:
		cond, err := b.useOperand(decl.Branch.Cond, decl.Branch.Line)
		if err != nil {
			return nil, err
		}
		return &Instr{
			Kind: InstrBranch, Srcs: []*Operand{cond},
			TrueTarget: decl.Branch.True, FalseTarget: decl.Branch.False,
			Line: decl.Branch.Line, Block: block,
		}, nil

	case decl.Switch != nil:
		value, err := b.useOperand(decl.Switch.Value, decl.Switch.Line)
		if err != nil {
			return nil, err
		}
		return &Instr{Kind: InstrSwitch, Srcs: []*Operand{value},
			Line: decl.Switch.Line, Block: block}, nil

	case decl.Return != nil:
		in := &Instr{Kind: InstrReturn, Line: decl.Return.Line, Block: block}
		if decl.Return.Value != nil {
			v, err := b.useOperand(decl.Return.Value, decl.Return.Line)
			if err != nil {
				return nil, err
			}
			in.Srcs = []*Operand{v}
		}
		return in, nil

	case decl.Call != nil:
		return b.buildCall(decl.Call.Body, nil, decl.Call.Line, block)

	case decl.Assign != nil:
		return b.buildAssign(decl.Assign, block)
	}
	return nil, errors.Input(errors.ErrorMalformedIR, "empty instruction")
}

func (b *Builder) buildAssign(decl *grammar.AssignInstr, block *Block) (*Instr, error) {
	line := decl.Line
	switch {
	case decl.Chi != nil:
		in := &Instr{Kind: InstrChi, Line: line, Block: block}
		if decl.Chi.Src != nil {
			src, err := b.useOperand(decl.Chi.Src, line)
			if err != nil {
				return nil, err
			}
			in.Srcs = []*Operand{src}
		}
		return b.finishDef(decl, in)

	case decl.Cmp != nil:
		op, ok := LookupCompareOpcode(decl.Cmp.Rel)
		if !ok {
			return nil, errors.Input(errors.ErrorUnknownOpcode,
				"unknown compare relation %q at line %d", decl.Cmp.Rel, line)
		}
		a, err := b.useOperand(decl.Cmp.A, line)
		if err != nil {
			return nil, err
		}
		c, err := b.useOperand(decl.Cmp.B, line)
		if err != nil {
			return nil, err
		}
		in := &Instr{Kind: InstrCompare, Op: op, Srcs: []*Operand{a, c}, Line: line, Block: block}
		return b.finishDef(decl, in)

	case decl.Call != nil:
		return b.buildCall(decl.Call, decl, line, block)

	case decl.Phi != nil:
		in := &Instr{Kind: InstrPhi, Line: line, Block: block}
		for _, edge := range decl.Phi.Edges {
			src, err := b.useOperand(edge.Src, line)
			if err != nil {
				return nil, err
			}
			in.Phi = append(in.Phi, PhiEdge{Src: src, BlockID: edge.Block})
		}
		return b.finishDef(decl, in)

	case decl.Value != nil:
		op, ok := LookupValueOpcode(decl.Value.Op)
		if !ok {
			return nil, errors.Input(errors.ErrorUnknownOpcode,
				"unknown value opcode %q at line %d", decl.Value.Op, line)
		}
		in := &Instr{Kind: InstrValue, Op: op, Line: line, Block: block}
		for _, src := range decl.Value.Srcs {
			s, err := b.useOperand(src, line)
			if err != nil {
				return nil, err
			}
			in.Srcs = append(in.Srcs, s)
		}
		return b.finishDef(decl, in)
	}
	return nil, errors.Input(errors.ErrorMalformedIR, "assignment without a body at line %d", line)
}

func (b *Builder) buildCall(body *grammar.CallBody, decl *grammar.AssignInstr, line int, block *Block) (*Instr, error) {
	in := &Instr{Kind: InstrCall, Callee: body.Name, Line: line, Block: block}
	for _, arg := range body.Args {
		a, err := b.useOperand(arg, line)
		if err != nil {
			return nil, err
		}
		in.Srcs = append(in.Srcs, a)
	}
	if decl == nil {
		return in, nil
	}
	return b.finishDef(decl, in)
}

func (b *Builder) finishDef(decl *grammar.AssignInstr, in *Instr) (*Instr, error) {
	dst, err := b.defOperand(decl.Dst, decl.Type, decl.Line)
	if err != nil {
		return nil, err
	}
	dst.Def = in
	in.Dst = dst
	return in, nil
}

// SourceName strips the SSA tag from an operand name: "x#2" names the
// source variable "x".
func (o *Operand) SourceName() string {
	if i := strings.IndexByte(o.Name, '#'); i >= 0 {
		return o.Name[:i]
	}
	return o.Name
}
