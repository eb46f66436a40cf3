package render

import (
	"fmt"
	"io"

	"github.com/zboralski/lattice"
	lrender "github.com/zboralski/lattice/render"

	"x64dis/internal/disasm"
)

// CallGraph builds the subroutine call graph of a run. Nodes are named by
// the label the resolver gave the entry address, or sub_<addr> when the
// entry carries none.
func CallGraph(res *disasm.Result, s disasm.Stream) *lattice.Graph {
	name := func(addr uint64) string {
		if i := s.Find(addr); i >= 0 && s[i].Label != "" {
			return s[i].Label
		}
		return fmt.Sprintf("sub_%x", addr)
	}

	g := &lattice.Graph{}
	for _, addr := range res.Subroutines {
		g.Nodes = append(g.Nodes, name(addr))
	}
	for _, c := range res.Calls {
		g.Edges = append(g.Edges, lattice.Edge{
			Caller: name(c.Caller),
			Callee: name(c.Callee),
		})
	}
	g.Dedup()
	return g
}

// CallGraphDOT writes the call graph of a run as DOT.
func CallGraphDOT(w io.Writer, res *disasm.Result, s disasm.Stream, title string) error {
	_, err := io.WriteString(w, lrender.DOT(CallGraph(res, s), title))
	return err
}
