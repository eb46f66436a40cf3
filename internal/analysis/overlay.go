package analysis

import (
	"fmt"

	"x64dis/internal/disasm"
	"x64dis/internal/elfx"
)

// symbolPass renames labels from the symbol table. An instruction at a
// symbol's address takes the symbol name. A default label inside a
// subroutine whose entry is a symbol becomes name_addr.
func symbolPass(r *Resolver) {
	if r.mode != disasm.ModeRecursive || len(r.symbols) == 0 {
		return
	}
	names := r.symbolNames()
	used := make(map[string]bool)
	s := r.stream
	for i := range s {
		if name, ok := names[s[i].Addr]; ok {
			if used[name] {
				name = fmt.Sprintf("%s_%x", name, s[i].Addr)
			}
			used[name] = true
			s[i].Label = name
			r.log.Debug("symbol", "addr", fmt.Sprintf("0x%x", s[i].Addr), "name", name)
			continue
		}
		if !IsDefaultLabel(s[i].Label) {
			continue
		}
		if name, ok := names[s[i].Origin]; ok {
			s[i].Label = fmt.Sprintf("%s_%x", name, s[i].Addr)
		}
	}
}

// symbolNames picks one name per address. Functions win over untyped
// labels, globals over weak over local; ties keep table order.
func (r *Resolver) symbolNames() map[uint64]string {
	best := make(map[uint64]elfx.Symbol)
	for _, sym := range r.symbols {
		if sym.Name == "" || !sym.Defined() || !sym.Code() {
			continue
		}
		cur, ok := best[sym.Value]
		if !ok || symbolRank(sym) > symbolRank(cur) {
			best[sym.Value] = sym
		}
	}
	names := make(map[uint64]string, len(best))
	for addr, sym := range best {
		name := sym.Name
		if r.demangle {
			name = CachedDemangle(name)
		}
		names[addr] = name
	}
	return names
}

func symbolRank(s elfx.Symbol) int {
	rank := 0
	if s.Kind == elfx.KindFunc {
		rank += 4
	}
	switch s.Bind {
	case elfx.BindGlobal:
		rank += 2
	case elfx.BindWeak:
		rank++
	}
	return rank
}

// sectionPass annotates RIP-relative operands with the section they point
// into, or the raw address when no section holds it.
func sectionPass(r *Resolver) {
	if len(r.sections) == 0 {
		return
	}
	s := r.stream
	for i := range s {
		if !s[i].RIPRelative() {
			continue
		}
		dest, _ := s[i].Dest()
		s[i].Note = fmt.Sprintf("0x%x", dest)
		for _, sec := range r.sections {
			if sec.VA != 0 && sec.Size != 0 && sec.Contains(dest) {
				s[i].Note = fmt.Sprintf("%s + 0x%x", sec.Name, dest-sec.VA)
				break
			}
		}
	}
}
