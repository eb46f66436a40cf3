package analysis

import (
	"io"

	"github.com/charmbracelet/log"

	"x64dis/internal/disasm"
	"x64dis/internal/elfx"
)

// Resolver owns a working copy of a decoded stream and turns it into a
// labelled, annotated listing. Build one with NewResolver and call Resolve.
type Resolver struct {
	stream   disasm.Stream
	targets  []int // index of the resolved control target, -1 when none
	sections []elfx.Section
	symbols  []elfx.Symbol
	mode     disasm.Mode
	demangle bool
	log      *log.Logger

	scanLabels int
	xrefLabels int
	done       bool
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithSections enables the RIP-relative section overlay.
func WithSections(sections []elfx.Section) Option {
	return func(r *Resolver) { r.sections = sections }
}

// WithSymbols enables the symbol overlay. It only applies in recursive mode.
func WithSymbols(symbols []elfx.Symbol) Option {
	return func(r *Resolver) { r.symbols = symbols }
}

// WithMode tells the resolver which traversal produced the stream.
func WithMode(m disasm.Mode) Option {
	return func(r *Resolver) { r.mode = m }
}

// WithDemangle demangles C++ symbol names before they become labels.
func WithDemangle(on bool) Option {
	return func(r *Resolver) { r.demangle = on }
}

// WithLogger sets the debug logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Resolver) { r.log = l }
}

// NewResolver copies stream; the caller's records are never modified.
func NewResolver(stream disasm.Stream, opts ...Option) *Resolver {
	r := &Resolver{stream: stream.Clone()}
	for _, o := range opts {
		o(r)
	}
	if r.log == nil {
		r.log = log.New(io.Discard)
	}
	return r
}

// ResolveResult is a convenience wrapper that resolves the output of one
// engine run.
func ResolveResult(res *disasm.Result, opts ...Option) disasm.Stream {
	opts = append([]Option{WithMode(res.Mode)}, opts...)
	return NewResolver(res.Insts, opts...).Resolve()
}

// Resolve runs every pass once and returns the finished stream in address
// order. Later calls return the same stream.
func (r *Resolver) Resolve() disasm.Stream {
	if r.done {
		return r.stream
	}
	chain := NewPassChain(
		passFunc{"sort", sortPass},
		passFunc{"scan-labels", scanLabelPass},
		passFunc{"xref-labels", xrefLabelPass},
		passFunc{"symbols", symbolPass},
		passFunc{"xref-notes", xrefNotePass},
		passFunc{"signed-immediates", signedImmediatePass},
		passFunc{"sections", sectionPass},
	)
	chain.Apply(r)
	r.done = true
	r.log.Debug("resolved", "insts", len(r.stream), "scan_labels", r.scanLabels, "xref_labels", r.xrefLabels)
	return r.stream
}
