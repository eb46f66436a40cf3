package detectors

import (
	"fmt"

	"x64dis/internal/x64"
)

// OverlapDetector reports instructions that start inside another one.
type OverlapDetector struct{}

func (OverlapDetector) Detect(in Input, findings []Finding) []Finding {
	for _, o := range in.Result.Overlaps {
		findings = append(findings, Finding{
			Addr:    o.Addr,
			Kind:    KindOverlap,
			Comment: fmt.Sprintf("%d byte decode starts inside instruction at 0x%x", o.Len, o.Other),
			Metadata: map[string]any{
				"other": o.Other,
			},
		})
	}
	return findings
}

// TruncationDetector reports records cut short by the end of the buffer.
type TruncationDetector struct{}

func (TruncationDetector) Detect(in Input, findings []Finding) []Finding {
	for _, inst := range in.Result.Insts {
		if inst.Status != x64.StatusTruncated {
			continue
		}
		findings = append(findings, Finding{
			Addr:    inst.Addr,
			Kind:    KindTruncated,
			Comment: fmt.Sprintf("buffer ends inside instruction, %d bytes left: %s", inst.Len, inst.Hex()),
		})
	}
	return findings
}

// UnknownDetector reports byte patterns outside the modelled subset.
type UnknownDetector struct{}

func (UnknownDetector) Detect(in Input, findings []Finding) []Finding {
	for _, inst := range in.Result.Insts {
		if inst.Status != x64.StatusUnknown {
			continue
		}
		findings = append(findings, Finding{
			Addr:    inst.Addr,
			Kind:    KindUnknown,
			Comment: "unmodelled opcode " + inst.Hex(),
		})
	}
	return findings
}

// UnresolvedDetector reports direct transfers that leave the buffer.
type UnresolvedDetector struct{}

func (UnresolvedDetector) Detect(in Input, findings []Finding) []Finding {
	for _, u := range in.Result.Unresolved {
		findings = append(findings, Finding{
			Addr:    u.From,
			Kind:    KindUnresolved,
			Comment: fmt.Sprintf("%s target %s outside buffer", u.Flow, u.TargetHex()),
		})
	}
	return findings
}
