package ssa

import (
	"fmt"
	"strings"
)

// Printer provides pretty-printing for SSA units.
type Printer struct {
	indent int
	output strings.Builder
}

// NewPrinter creates a new unit printer.
func NewPrinter() *Printer {
	return &Printer{indent: 0}
}

// Print returns the string representation of a unit.
func Print(u *Unit) string {
	p := NewPrinter()
	p.printUnit(u)
	return p.output.String()
}

func (p *Printer) writeIndent() {
	for i := 0; i < p.indent; i++ {
		p.output.WriteString("  ")
	}
}

func (p *Printer) writeLine(format string, args ...interface{}) {
	p.writeIndent()
	p.output.WriteString(fmt.Sprintf(format, args...))
	p.output.WriteString("\n")
}

func (p *Printer) printUnit(u *Unit) {
	p.writeLine("UNIT %s (word %d)", u.Name, u.WordBits)
	p.writeLine("")
	for _, b := range u.Blocks {
		p.printBlock(b)
	}
}

func (p *Printer) printBlock(b *Block) {
	succs := ""
	if len(b.Succs) > 0 {
		parts := make([]string, len(b.Succs))
		for i, s := range b.Succs {
			parts[i] = fmt.Sprintf("%d", s)
		}
		succs = " -> " + strings.Join(parts, ", ")
	}
	p.writeLine("block %d%s:", b.ID, succs)
	p.indent++
	for _, in := range b.Instrs {
		p.writeLine("%s", p.instrString(in))
	}
	p.indent--
	p.writeLine("")
}

func (p *Printer) instrString(in *Instr) string {
	switch in.Kind {
	case InstrStart:
		return fmt.Sprintf("start  ; line %d", in.Line)
	case InstrBranch:
		return fmt.Sprintf("branch %s ? %d : %d  ; line %d",
			p.operandString(in.Srcs[0]), in.TrueTarget, in.FalseTarget, in.Line)
	case InstrSwitch:
		return fmt.Sprintf("switch %s  ; line %d", p.operandString(in.Srcs[0]), in.Line)
	case InstrReturn:
		if len(in.Srcs) > 0 {
			return fmt.Sprintf("return %s  ; line %d", p.operandString(in.Srcs[0]), in.Line)
		}
		return fmt.Sprintf("return  ; line %d", in.Line)
	case InstrCall:
		args := make([]string, len(in.Srcs))
		for i, s := range in.Srcs {
			args[i] = p.operandString(s)
		}
		call := fmt.Sprintf("call %s(%s)", in.Callee, strings.Join(args, ", "))
		if in.Dst != nil {
			return fmt.Sprintf("%s = %s  ; line %d", p.operandString(in.Dst), call, in.Line)
		}
		return fmt.Sprintf("%s  ; line %d", call, in.Line)
	case InstrPhi:
		edges := make([]string, len(in.Phi))
		for i, e := range in.Phi {
			edges[i] = fmt.Sprintf("[%s, %d]", p.operandString(e.Src), e.BlockID)
		}
		return fmt.Sprintf("%s = phi %s  ; line %d",
			p.operandString(in.Dst), strings.Join(edges, ", "), in.Line)
	case InstrChi:
		src := "start"
		if len(in.Srcs) > 0 {
			src = p.operandString(in.Srcs[0])
		}
		return fmt.Sprintf("%s = chi %s  ; line %d", p.operandString(in.Dst), src, in.Line)
	case InstrCompare, InstrValue:
		srcs := make([]string, len(in.Srcs))
		for i, s := range in.Srcs {
			srcs[i] = p.operandString(s)
		}
		return fmt.Sprintf("%s = %s %s  ; line %d",
			p.operandString(in.Dst), in.Op, strings.Join(srcs, ", "), in.Line)
	}
	return fmt.Sprintf("%s  ; line %d", in.Kind, in.Line)
}

func (p *Printer) operandString(o *Operand) string {
	switch {
	case o == nil:
		return "_"
	case o.Immediate && o.Float:
		return fmt.Sprintf("%v:%s", o.FloatValue, o.Type)
	case o.Immediate:
		return fmt.Sprintf("%d:%s", o.IntValue, o.Type)
	case o.Memory:
		if o.FieldOffset != 0 {
			return fmt.Sprintf("mem(%s + %d)", p.operandString(o.Base), o.FieldOffset)
		}
		return fmt.Sprintf("mem(%s)", p.operandString(o.Base))
	case o.AddressOf:
		return fmt.Sprintf("addr(%s)", o.Name)
	case o.Temp:
		return "%" + o.Name
	}
	return o.Name
}
