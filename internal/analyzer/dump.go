package analyzer

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gametime/internal/ssa"
)

// Sidecar artifacts, one ASCII file each. Every writer closes its file on
// all exit paths.

// DumpConditions writes the condition expressions, one per line, in path
// order.
func (p *Path) DumpConditions(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	for _, c := range p.Conditions {
		if _, err := fmt.Fprintln(f, c.Expr.Value()); err != nil {
			return err
		}
	}
	return nil
}

// DumpLineNumbers writes the sorted unique source line numbers of the path,
// space-separated on a single line.
func (p *Path) DumpLineNumbers(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	seen := make(map[int]bool)
	var lines []int
	for _, b := range p.blocks {
		for _, in := range b.Instrs {
			if in.Line > 0 && !seen[in.Line] {
				seen[in.Line] = true
				lines = append(lines, in.Line)
			}
		}
	}
	sort.Ints(lines)
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = fmt.Sprintf("%d", l)
	}
	_, err = fmt.Fprintln(f, strings.Join(parts, " "))
	return err
}

// DumpConditionEdges writes, per condition, the DAG edge it belongs to as
// "k: src sink". The two adjusters translate IR block ids to DAG node ids.
func (p *Path) DumpConditionEdges(path string, adjustSrc, adjustSink func(int) int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	for k, c := range p.Conditions {
		src := adjustSrc(c.BlockID)
		sinkBlock, ok := p.nextOnPath[c.BlockID]
		sink := src
		if ok {
			sink = adjustSink(sinkBlock)
		}
		if _, err := fmt.Fprintf(f, "%d: %d %d\n", k, src, sink); err != nil {
			return err
		}
	}
	return nil
}

// DumpBranches writes the line number and taken direction of every
// conditional branch on the path.
func (p *Path) DumpBranches(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	for _, br := range p.Branches {
		label := "False"
		if br.TakenTrue {
			label = "True"
		}
		if _, err := fmt.Fprintf(f, "%d: %s\n", br.Line, label); err != nil {
			return err
		}
	}
	return nil
}

// DumpArrayAccesses writes the witnessed array accesses followed by the
// original index expressions each temporary replaced, with index brackets
// and the temporary-index prefix stripped.
func (p *Path) DumpArrayAccesses(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	for _, acc := range p.ArrayAccesses {
		parts := make([]string, len(acc.Indices))
		for i, n := range acc.Indices {
			parts[i] = fmt.Sprintf("%d", n)
		}
		if _, err := fmt.Fprintf(f, "%s: [(%s)]\n", acc.Array.Value(), strings.Join(parts, ", ")); err != nil {
			return err
		}
	}
	nums := make([]int, 0, len(p.TempIndexExprs))
	for n := range p.TempIndexExprs {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	for _, n := range nums {
		rendered := p.TempIndexExprs[n].Value()
		rendered = strings.ReplaceAll(rendered, p.cfg.IdentTempIndex, "")
		rendered = strings.ReplaceAll(rendered, "[", "")
		rendered = strings.ReplaceAll(rendered, "]", "")
		if _, err := fmt.Fprintf(f, "%d: %s\n", n, rendered); err != nil {
			return err
		}
	}
	return nil
}

// Unit returns the function unit the path runs through.
func (p *Path) Unit() *ssa.Unit { return p.unit }

// Blocks returns the path's blocks in order.
func (p *Path) Blocks() []*ssa.Block { return p.blocks }
