package render

import (
	"encoding/json"
	"fmt"
	"io"

	"x64dis/internal/detectors"
	"x64dis/internal/disasm"
	"x64dis/internal/x64"
)

// Document is the JSON form of a run.
type Document struct {
	Mode        string        `json:"mode"`
	Base        string        `json:"base"`
	Size        int           `json:"size"`
	Capped      bool          `json:"capped,omitempty"`
	Insts       []InstJSON    `json:"insts"`
	Subroutines []string      `json:"subroutines,omitempty"`
	Unresolved  []string      `json:"unresolved,omitempty"`
	Findings    []FindingJSON `json:"findings,omitempty"`
}

type InstJSON struct {
	Addr        string `json:"addr"`
	Bytes       string `json:"bytes"`
	Mnemonic    string `json:"mnemonic"`
	Operands    string `json:"operands,omitempty"`
	Label       string `json:"label,omitempty"`
	Note        string `json:"note,omitempty"`
	TargetLabel string `json:"targetLabel,omitempty"`
	Origin      string `json:"origin"`
	Flow        string `json:"flow,omitempty"`
	Status      string `json:"status,omitempty"`
}

type FindingJSON struct {
	Addr     string         `json:"addr"`
	Kind     string         `json:"kind"`
	Comment  string         `json:"comment"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func hexAddr(v uint64) string { return fmt.Sprintf("0x%x", v) }

// NewDocument collects a run, its resolved stream and findings.
func NewDocument(res *disasm.Result, s disasm.Stream, findings []detectors.Finding) *Document {
	doc := &Document{
		Mode:   res.Mode.String(),
		Base:   hexAddr(res.Base),
		Size:   res.Size,
		Capped: res.Capped,
		Insts:  make([]InstJSON, 0, len(s)),
	}
	for _, in := range s {
		ij := InstJSON{
			Addr:        hexAddr(in.Addr),
			Bytes:       in.Hex(),
			Mnemonic:    in.Mnemonic,
			Operands:    in.Operands,
			Label:       in.Label,
			Note:        in.Note,
			TargetLabel: in.TargetLabel,
			Origin:      hexAddr(in.Origin),
		}
		if in.Flow != x64.FlowNone {
			ij.Flow = in.Flow.String()
		}
		if in.Status != x64.StatusOK {
			ij.Status = in.Status.String()
		}
		doc.Insts = append(doc.Insts, ij)
	}
	for _, a := range res.Subroutines {
		doc.Subroutines = append(doc.Subroutines, hexAddr(a))
	}
	for _, u := range res.Unresolved {
		doc.Unresolved = append(doc.Unresolved, u.TargetHex())
	}
	for _, f := range findings {
		doc.Findings = append(doc.Findings, FindingJSON{
			Addr:     hexAddr(f.Addr),
			Kind:     string(f.Kind),
			Comment:  f.Comment,
			Metadata: f.Metadata,
		})
	}
	return doc
}

// JSON writes the document for a run, indented.
func JSON(w io.Writer, res *disasm.Result, s disasm.Stream, findings []detectors.Finding) error {
	data, err := json.MarshalIndent(NewDocument(res, s, findings), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal listing: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
