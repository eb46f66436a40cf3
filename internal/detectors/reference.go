package detectors

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"

	"x64dis/internal/x64"
)

// refWindow is the longest legal x86 instruction.
const refWindow = 15

// ReferenceDetector re-decodes every record with x86asm. A length that
// differs from the reference is reported. Unknown findings already in the
// chain are annotated with the reference rendering.
type ReferenceDetector struct{}

func (ReferenceDetector) Detect(in Input, findings []Finding) []Finding {
	res := in.Result
	unknown := make(map[uint64]int)
	for i, f := range findings {
		if f.Kind == KindUnknown {
			unknown[f.Addr] = i
		}
	}

	for _, inst := range res.Insts {
		off := int(inst.Addr - res.Base)
		if off < 0 || off >= len(in.Data) {
			continue
		}
		end := min(off+refWindow, len(in.Data))
		ref, err := x86asm.Decode(in.Data[off:end], 64)

		switch inst.Status {
		case x64.StatusUnknown:
			i, ok := unknown[inst.Addr]
			if !ok || err != nil {
				continue
			}
			text := x86asm.GNUSyntax(ref, inst.Addr, nil)
			findings[i].Comment += fmt.Sprintf(" (reference: %s)", text)
			if findings[i].Metadata == nil {
				findings[i].Metadata = make(map[string]any)
			}
			findings[i].Metadata["reference"] = text
		case x64.StatusOK:
			if err != nil {
				findings = append(findings, Finding{
					Addr:    inst.Addr,
					Kind:    KindMismatch,
					Comment: fmt.Sprintf("reference rejects %s: %v", inst.Hex(), err),
				})
				continue
			}
			if ref.Len != inst.Len {
				findings = append(findings, Finding{
					Addr: inst.Addr,
					Kind: KindMismatch,
					Comment: fmt.Sprintf("decoded %d bytes as %q, reference takes %d as %q",
						inst.Len, inst.String(), ref.Len, x86asm.GNUSyntax(ref, inst.Addr, nil)),
					Metadata: map[string]any{
						"len":           inst.Len,
						"reference_len": ref.Len,
					},
				})
			}
		}
	}
	return findings
}
