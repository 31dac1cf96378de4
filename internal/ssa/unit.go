package ssa

import (
	"gametime/internal/errors"
)

// The SSA IR consumed by the path analyzer. Every variable is assigned by at
// most one instruction; joins are reconciled by phi instructions. Blocks and
// operands are exposed through ids and accessors so the analyzer never walks
// raw producer structures.

// Program is a set of function units keyed by name.
type Program struct {
	Units map[string]*Unit
}

// Unit returns the named function unit.
func (p *Program) Unit(name string) (*Unit, error) {
	u, ok := p.Units[name]
	if !ok {
		return nil, errors.Input(errors.ErrorUnitLookup, "no function unit named %q", name)
	}
	return u, nil
}

// Unit is one function in SSA form.
type Unit struct {
	Name     string
	WordBits int
	Blocks   []*Block
	byID     map[int]*Block
}

// NewUnit creates an empty unit.
func NewUnit(name string, wordBits int) *Unit {
	return &Unit{Name: name, WordBits: wordBits, byID: make(map[int]*Block)}
}

// AddBlock appends a block and indexes it by id.
func (u *Unit) AddBlock(b *Block) {
	b.Unit = u
	u.Blocks = append(u.Blocks, b)
	u.byID[b.ID] = b
}

// Block returns the block with the given id.
func (u *Unit) Block(id int) (*Block, error) {
	b, ok := u.byID[id]
	if !ok {
		return nil, errors.Input(errors.ErrorUnknownBlock, "unit %q has no block %d", u.Name, id)
	}
	return b, nil
}

// Block is a maximal straight-line instruction sequence.
type Block struct {
	ID     int
	Label  string
	Unit   *Unit
	Instrs []*Instr
	Succs  []int // successor block ids; two for a conditional branch
}

// HasMultipleSuccessors reports whether the block ends in a conditional branch.
func (b *Block) HasMultipleSuccessors() bool { return len(b.Succs) > 1 }

// Branch returns the block's branch instruction, or nil.
func (b *Block) Branch() *Instr {
	for i := len(b.Instrs) - 1; i >= 0; i-- {
		if b.Instrs[i].Kind == InstrBranch {
			return b.Instrs[i]
		}
	}
	return nil
}

// Instr is one SSA instruction.
type Instr struct {
	Kind   InstrKind
	Op     Opcode // value/compare subkind
	Dst    *Operand
	Srcs   []*Operand
	Phi    []PhiEdge // phi instructions only
	Callee string    // call instructions only
	Line   int
	Block  *Block

	// Branch targets; the branch condition is Srcs[0].
	TrueTarget  int
	FalseTarget int
}

// Next returns the instruction following i in its block, or nil.
func (i *Instr) Next() *Instr {
	for k, in := range i.Block.Instrs {
		if in == i && k+1 < len(i.Block.Instrs) {
			return i.Block.Instrs[k+1]
		}
	}
	return nil
}

// PhiEdge is one incoming value of a phi instruction.
type PhiEdge struct {
	Src     *Operand
	BlockID int // block the value flows in from
}

// Operand is a use or definition of an SSA value. The same *Operand is
// shared between its definition and all uses, so ID doubles as the
// memoization key in the executor.
type Operand struct {
	ID   int
	Name string
	Type *Type
	Line int

	Temp      bool // compiler temporary, not a source variable
	AddressOf bool // operand is &x rather than x

	// Immediate payload
	Immediate  bool
	Float      bool
	IntValue   int64
	FloatValue float64

	// Memory operand payload (*p, p->f): Base is the pointer being
	// dereferenced, FieldOffset the bit offset of the accessed field.
	Memory      bool
	Base        *Operand
	FieldOffset int

	// Def is the instruction that defines this operand, nil when the value
	// is undefined or defined outside the unit (a formal parameter).
	Def *Instr
}

// Bits returns the operand's width in bits.
func (o *Operand) Bits() int {
	if o.Type == nil {
		return 0
	}
	return o.Type.Bits
}
