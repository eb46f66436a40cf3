// Package disasm defines the listing record shared by the engine, the
// resolver and the renderers, and drives the x64 decoder over a buffer.
package disasm

import (
	"sort"

	"x64dis/internal/x64"
)

// Inst is one listing line: a decoded instruction plus the fields the
// resolver fills in. Addr, Len and Raw never change after decoding.
type Inst struct {
	x64.Inst

	Origin uint64 // entry of the subroutine it was reached from

	Label       string // block label, empty unless the instruction starts a block
	Note        string // annotation rendered after the operands
	TargetLabel string // label of the resolved control target, if any
}

// End returns the address just past the instruction.
func (i *Inst) End() uint64 { return i.Addr + uint64(i.Len) }

// Stream is a sequence of listing records.
type Stream []Inst

// Sorted reports whether the stream is in strictly increasing address order.
func (s Stream) Sorted() bool {
	for n := 1; n < len(s); n++ {
		if s[n].Addr <= s[n-1].Addr {
			return false
		}
	}
	return true
}

// SortByAddr orders the stream by address. The sort is stable so equal
// addresses, which the engine never produces, keep discovery order.
func (s Stream) SortByAddr() {
	sort.SliceStable(s, func(a, b int) bool { return s[a].Addr < s[b].Addr })
}

// Find returns the index of the record starting at addr in a sorted stream,
// or -1.
func (s Stream) Find(addr uint64) int {
	n := sort.Search(len(s), func(i int) bool { return s[i].Addr >= addr })
	if n < len(s) && s[n].Addr == addr {
		return n
	}
	return -1
}

// Clone returns a copy that shares no record storage with s.
func (s Stream) Clone() Stream {
	out := make(Stream, len(s))
	copy(out, s)
	return out
}
