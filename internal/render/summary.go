package render

import (
	"fmt"
	"sort"
	"strings"

	"x64dis/internal/analysis"
	"x64dis/internal/detectors"
	"x64dis/internal/disasm"
	"x64dis/internal/x64"
)

// Summary describes a run as markdown: counts, subroutines, blocks and
// findings.
func Summary(name string, res *disasm.Result, g *analysis.Graph, findings []detectors.Finding) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", name)

	unknown, truncated := 0, 0
	for _, in := range res.Insts {
		switch in.Status {
		case x64.StatusUnknown:
			unknown++
		case x64.StatusTruncated:
			truncated++
		}
	}

	b.WriteString("## Run\n\n")
	b.WriteString("| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| mode | %s |\n", res.Mode)
	fmt.Fprintf(&b, "| base | `0x%x` |\n", res.Base)
	fmt.Fprintf(&b, "| bytes | %d |\n", res.Size)
	fmt.Fprintf(&b, "| instructions | %d |\n", len(res.Insts))
	fmt.Fprintf(&b, "| unknown | %d |\n", unknown)
	fmt.Fprintf(&b, "| truncated | %d |\n", truncated)
	fmt.Fprintf(&b, "| blocks | %d |\n", len(g.Blocks))
	fmt.Fprintf(&b, "| edges | %d |\n", len(g.Edges))
	fmt.Fprintf(&b, "| unresolved targets | %d |\n", len(res.Unresolved))
	if res.Capped {
		b.WriteString("| capped | yes |\n")
	}
	b.WriteByte('\n')

	if len(res.Subroutines) > 0 {
		b.WriteString("## Subroutines\n\n")
		for _, addr := range res.Subroutines {
			label := fmt.Sprintf("sub_%x", addr)
			for _, blk := range g.Blocks {
				if blk.Start == addr {
					label = blk.Label
					break
				}
			}
			fmt.Fprintf(&b, "- `0x%x` %s\n", addr, label)
		}
		b.WriteByte('\n')
	}

	if len(findings) > 0 {
		b.WriteString("## Findings\n\n")
		counts := detectors.Count(findings)
		kinds := make([]string, 0, len(counts))
		for k := range counts {
			kinds = append(kinds, string(k))
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(&b, "- **%s**: %d\n", k, counts[detectors.Kind(k)])
		}
		b.WriteByte('\n')
		for _, f := range findings {
			fmt.Fprintf(&b, "- `0x%x` %s\n", f.Addr, f.Comment)
		}
	}
	return b.String()
}
