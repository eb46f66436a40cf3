// Package render writes resolved instruction streams as column listings,
// Graphviz graphs, JSON and markdown summaries.
package render

import (
	"fmt"
	"io"
	"strings"

	"x64dis/internal/disasm"
)

// addrWidth is the column the address field is padded to.
const addrWidth = 7

// Line formats one instruction the way Listing prints it, without the
// label line and without a trailing newline.
func Line(in disasm.Inst) string {
	addr := fmt.Sprintf("0x%x", in.Addr)
	pad := max(addrWidth-len(addr), 0)
	note := ""
	if in.Note != "" {
		note = "# " + in.Note
	}
	line := fmt.Sprintf("   %s:%*s %-20s    %-5s %-20s %s", addr, pad, "", in.Hex(), in.Mnemonic, in.Operands, note)
	return strings.TrimRight(line, " ")
}

// LabelLine formats the line that opens a labelled block.
func LabelLine(label string) string {
	return label + ":"
}

// Listing writes s one instruction per line, preceded by a label line
// wherever a block starts.
func Listing(w io.Writer, s disasm.Stream) error {
	var b strings.Builder
	for _, in := range s {
		if in.Label != "" {
			b.WriteString(LabelLine(in.Label))
			b.WriteByte('\n')
		}
		b.WriteString(Line(in))
		b.WriteByte('\n')
	}
	_, err := io.WriteString(w, b.String())
	return err
}
