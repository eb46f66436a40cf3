package analysis

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"x64dis/internal/disasm"
	"x64dis/internal/x64"
)

func sortPass(r *Resolver) {
	if !r.stream.Sorted() {
		r.stream.SortByAddr()
	}
}

// scanLabelPass labels the first instruction and every instruction that
// follows a jump or return. In recursive output an instruction that does
// not start where its predecessor ended also opens a block.
func scanLabelPass(r *Resolver) {
	s := r.stream
	for i := range s {
		switch {
		case i == 0:
		case s[i-1].EndsBlock():
		case r.mode == disasm.ModeRecursive && s[i].Addr != s[i-1].End():
		default:
			continue
		}
		s[i].Label = ScanLabelPrefix + strconv.Itoa(r.scanLabels)
		r.scanLabels++
	}
}

// xrefLabelPass finds the target record of every direct transfer and gives
// it a label if it has none.
func xrefLabelPass(r *Resolver) {
	s := r.stream
	r.targets = make([]int, len(s))
	for i := range s {
		r.targets[i] = -1
		if !s[i].Direct {
			continue
		}
		dest, wrap := s[i].Dest()
		if wrap != x64.WrapNone {
			continue
		}
		j := findTarget(s, i, dest)
		if j < 0 {
			continue
		}
		r.targets[i] = j
		if s[j].Label == "" {
			s[j].Label = XrefLabelPrefix + strconv.Itoa(r.xrefLabels)
			r.xrefLabels++
		}
	}
}

// findTarget searches the records before i when dest lies below the
// instruction and the records from i onward otherwise.
func findTarget(s disasm.Stream, i int, dest uint64) int {
	lo, hi := i, len(s)
	if dest < s[i].Addr {
		lo, hi = 0, i
	}
	sub := s[lo:hi]
	n := sort.Search(len(sub), func(k int) bool { return sub[k].Addr >= dest })
	if n < len(sub) && sub[n].Addr == dest {
		return lo + n
	}
	return -1
}

// xrefNotePass writes the target label of every direct transfer, or the
// raw destination when no record starts there.
func xrefNotePass(r *Resolver) {
	s := r.stream
	for i := range s {
		if !s[i].Direct {
			continue
		}
		if j := r.targets[i]; j >= 0 {
			s[i].TargetLabel = s[j].Label
			s[i].Note = s[j].Label
			continue
		}
		s[i].Note = x64.DestHex(s[i].Dest())
		r.log.Debug("unresolved", "addr", fmt.Sprintf("0x%x", s[i].Addr), "dest", s[i].Note)
	}
}

// signedImmediatePass prints negative immediates of non-branch
// instructions with an explicit sign.
func signedImmediatePass(r *Resolver) {
	s := r.stream
	for i := range s {
		if s[i].SignedImmediate() && s[i].Value < 0 && s[i].Note == "" {
			s[i].Note = x64.SignedHex(s[i].Value)
		}
	}
}

// IsDefaultLabel reports whether label was generated by the scan or xref
// series rather than taken from a symbol.
func IsDefaultLabel(label string) bool {
	var rest string
	switch {
	case strings.HasPrefix(label, XrefLabelPrefix):
		rest = label[len(XrefLabelPrefix):]
	case strings.HasPrefix(label, ScanLabelPrefix):
		rest = label[len(ScanLabelPrefix):]
	default:
		return false
	}
	if rest == "" {
		return false
	}
	for _, c := range rest {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
