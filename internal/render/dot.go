package render

import (
	"fmt"
	"io"
	"strings"

	"x64dis/internal/analysis"
)

// DOT writes the block graph in Graphviz syntax. Each block is a
// left-justified rectangle holding its instructions; jump, conditional and
// call edges carry the branch mnemonic and fallthrough edges are bare.
func DOT(w io.Writer, g *analysis.Graph, title string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "digraph %q {\n", title)

	for _, blk := range g.Blocks {
		var label strings.Builder
		label.WriteString(LabelLine(blk.Label))
		label.WriteString(`\l`)
		for _, in := range blk.Insts {
			line := fmt.Sprintf("   0x%x:  %s", in.Addr, in.String())
			if in.Note != "" {
				line += " # " + in.Note
			}
			label.WriteString(dotEscape(line))
			label.WriteString(`\l`)
		}
		fmt.Fprintf(&b, "  %q [width=4 shape=rectangle fontname=Monospace fontsize=11 label=\"%s\"];\n",
			blk.Label, label.String())
	}

	for _, e := range g.Edges {
		if e.Kind == analysis.EdgeFall {
			fmt.Fprintf(&b, "  %q -> %q;\n", e.From, e.To)
			continue
		}
		fmt.Fprintf(&b, "  %q -> %q [fontname=Monospace fontsize=10 label=\"%s\\l\"];\n",
			e.From, e.To, dotEscape(e.Mnemonic))
	}

	b.WriteString("}\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// dotEscape escapes text for a double-quoted DOT string.
func dotEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
