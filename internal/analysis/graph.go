package analysis

import (
	"x64dis/internal/disasm"
	"x64dis/internal/x64"
)

// BuildGraph splits a resolved stream at its labels. Every resolved jump,
// conditional jump and call adds an edge labelled with its mnemonic. A
// block also falls through to the next one unless it ends in a jump or a
// return, or the next block does not start where it ends.
func BuildGraph(s disasm.Stream) *Graph {
	g := &Graph{index: make(map[string]int)}
	if len(s) == 0 {
		return g
	}

	start := 0
	for i := range s {
		if i > start && s[i].Label != "" {
			g.addBlock(s[start:i])
			start = i
		}
	}
	g.addBlock(s[start:])

	for bi := range g.Blocks {
		b := &g.Blocks[bi]
		for _, in := range b.Insts {
			if in.TargetLabel == "" {
				continue
			}
			g.Edges = append(g.Edges, Edge{
				From:     b.Label,
				To:       in.TargetLabel,
				Kind:     edgeKind(in.Flow),
				Mnemonic: in.Mnemonic,
			})
		}
		if bi+1 == len(g.Blocks) {
			continue
		}
		last := b.Insts[len(b.Insts)-1]
		next := &g.Blocks[bi+1]
		if last.Flow == x64.FlowJump || last.Flow == x64.FlowReturn || next.Start != b.End {
			continue
		}
		g.Edges = append(g.Edges, Edge{From: b.Label, To: next.Label, Kind: EdgeFall})
	}
	return g
}

func (g *Graph) addBlock(insts disasm.Stream) {
	first, last := &insts[0], &insts[len(insts)-1]
	g.index[first.Label] = len(g.Blocks)
	g.Blocks = append(g.Blocks, Block{
		Label:  first.Label,
		Start:  first.Addr,
		End:    last.End(),
		Origin: first.Origin,
		Insts:  insts,
	})
}

// Block returns the block with the given label.
func (g *Graph) Block(label string) (*Block, bool) {
	i, ok := g.index[label]
	if !ok {
		return nil, false
	}
	return &g.Blocks[i], true
}

// Successors returns the edges leaving label in emission order.
func (g *Graph) Successors(label string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.From == label {
			out = append(out, e)
		}
	}
	return out
}

func edgeKind(f x64.Flow) EdgeKind {
	switch f {
	case x64.FlowCall:
		return EdgeCall
	case x64.FlowCondJump:
		return EdgeCond
	}
	return EdgeJump
}
