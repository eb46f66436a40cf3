package elfx

import (
	"debug/elf"
	"fmt"
	"io"
)

// Kind is the symbol type tag.
type Kind uint8

const (
	KindNoType Kind = iota
	KindObject
	KindFunc
	KindSection
	KindFile
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindNoType:
		return "notype"
	case KindObject:
		return "object"
	case KindFunc:
		return "func"
	case KindSection:
		return "section"
	case KindFile:
		return "file"
	}
	return "other"
}

// Binding is the symbol binding tag.
type Binding uint8

const (
	BindLocal Binding = iota
	BindGlobal
	BindWeak
	BindOther
)

func (b Binding) String() string {
	switch b {
	case BindLocal:
		return "local"
	case BindGlobal:
		return "global"
	case BindWeak:
		return "weak"
	}
	return "other"
}

type Symbol struct {
	Name    string
	Value   uint64
	Size    uint64
	Kind    Kind
	Bind    Binding
	Section elf.SectionIndex
}

// Defined reports whether the symbol lives in some section of this file.
func (s Symbol) Defined() bool { return s.Section != elf.SHN_UNDEF }

// Code reports whether the symbol is a function or an untyped label, the two
// kinds that can name code.
func (s Symbol) Code() bool { return s.Kind == KindFunc || s.Kind == KindNoType }

// NewSymbol converts a debug/elf symbol.
func NewSymbol(s elf.Symbol) Symbol {
	sym := Symbol{
		Name:    s.Name,
		Value:   s.Value,
		Size:    s.Size,
		Section: s.Section,
	}
	switch elf.ST_TYPE(s.Info) {
	case elf.STT_NOTYPE:
		sym.Kind = KindNoType
	case elf.STT_OBJECT:
		sym.Kind = KindObject
	case elf.STT_FUNC:
		sym.Kind = KindFunc
	case elf.STT_SECTION:
		sym.Kind = KindSection
	case elf.STT_FILE:
		sym.Kind = KindFile
	default:
		sym.Kind = KindOther
	}
	switch elf.ST_BIND(s.Info) {
	case elf.STB_LOCAL:
		sym.Bind = BindLocal
	case elf.STB_GLOBAL:
		sym.Bind = BindGlobal
	case elf.STB_WEAK:
		sym.Bind = BindWeak
	default:
		sym.Bind = BindOther
	}
	return sym
}

// loadSymbols reads .symtab, falling back to .dynsym for stripped binaries.
func (im *Image) loadSymbols() {
	if im.File == nil {
		return
	}
	syms, err := im.File.Symbols()
	if err != nil || len(syms) == 0 {
		syms, err = im.File.DynamicSymbols()
		if err != nil {
			return
		}
	}
	for _, s := range syms {
		im.Symbols = append(im.Symbols, NewSymbol(s))
	}
}

// CodeSymbols returns the function and untyped symbols in table order.
func (im *Image) CodeSymbols() []Symbol {
	var out []Symbol
	for _, s := range im.Symbols {
		if s.Code() {
			out = append(out, s)
		}
	}
	return out
}

// Lookup finds a defined symbol by name.
func (im *Image) Lookup(name string) (Symbol, bool) {
	for _, s := range im.Symbols {
		if s.Name == name && s.Defined() {
			return s, true
		}
	}
	return Symbol{}, false
}

// SymbolTypeChar returns the nm type letter used by the symbols listing:
// undefined symbols are w, U or u; defined ones W, T or t.
func SymbolTypeChar(s Symbol) byte {
	if !s.Defined() {
		switch s.Bind {
		case BindWeak:
			return 'w'
		case BindGlobal:
			return 'U'
		}
		return 'u'
	}
	switch s.Bind {
	case BindWeak:
		return 'W'
	case BindGlobal:
		return 'T'
	}
	return 't'
}

// WriteSymbols prints syms in nm format: a 16 digit value, the type letter
// and the name. Undefined symbols get a blank value column.
func WriteSymbols(w io.Writer, syms []Symbol) error {
	for _, s := range syms {
		var err error
		if s.Value == 0 && !s.Defined() {
			_, err = fmt.Fprintf(w, "%16s %c %s\n", "", SymbolTypeChar(s), s.Name)
		} else {
			_, err = fmt.Fprintf(w, "%016x %c %s\n", s.Value, SymbolTypeChar(s), s.Name)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
