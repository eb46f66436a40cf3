// Package detectors reports anomalies in a disassembly run: overlapping
// decodes, truncated tails, unmodelled opcodes, unresolved targets and
// disagreements with a full-ISA reference decoder.
package detectors

import (
	"fmt"
	"sort"

	"x64dis/internal/disasm"
)

// Kind names a class of finding.
type Kind string

const (
	KindOverlap    Kind = "overlap"
	KindTruncated  Kind = "truncated"
	KindUnknown    Kind = "unknown"
	KindUnresolved Kind = "unresolved"
	KindMismatch   Kind = "length-mismatch"
)

// Finding is one anomaly at an address.
type Finding struct {
	Addr     uint64
	Kind     Kind
	Comment  string
	Metadata map[string]any
}

func (f Finding) String() string {
	return fmt.Sprintf("0x%x %s: %s", f.Addr, f.Kind, f.Comment)
}

// Input is what detectors inspect.
type Input struct {
	Result *disasm.Result
	Data   []byte // the buffer the result was decoded from
}

// Detector appends its findings for in to findings.
type Detector interface {
	Detect(in Input, findings []Finding) []Finding
}

// Chain runs multiple detectors in sequence.
type Chain struct {
	detectors []Detector
}

// NewChain creates a detector chain.
func NewChain(detectors ...Detector) *Chain {
	return &Chain{detectors: detectors}
}

// Detect runs all detectors and returns the findings ordered by address.
func (c *Chain) Detect(in Input) []Finding {
	var findings []Finding
	for _, d := range c.detectors {
		findings = d.Detect(in, findings)
	}
	sort.SliceStable(findings, func(i, j int) bool { return findings[i].Addr < findings[j].Addr })
	return findings
}

// Default returns the detectors that need no extra input. With verify set
// the reference decoder check is added.
func Default(verify bool) []Detector {
	ds := []Detector{
		OverlapDetector{},
		TruncationDetector{},
		UnknownDetector{},
		UnresolvedDetector{},
	}
	if verify {
		ds = append(ds, ReferenceDetector{})
	}
	return ds
}

// Run is shorthand for NewChain(detectors...).Detect.
func Run(res *disasm.Result, data []byte, detectors ...Detector) []Finding {
	return NewChain(detectors...).Detect(Input{Result: res, Data: data})
}

// Count tallies findings per kind.
func Count(findings []Finding) map[Kind]int {
	out := make(map[Kind]int)
	for _, f := range findings {
		out[f.Kind]++
	}
	return out
}
