// Package elftest builds small x86-64 ELF executables in memory for tests.
package elftest

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
)

const (
	// Base is the virtual address of file offset 0.
	Base = 0x400000
	// TextOff is the file offset of .text.
	TextOff = 0x80
	// TextVA is the virtual address of .text.
	TextVA = Base + TextOff
)

// Sym describes one .symtab entry. Section 0 is undefined, 1 is .text and
// 2 is .data.
type Sym struct {
	Name    string
	Value   uint64
	Size    uint64
	Type    elf.SymType
	Bind    elf.SymBind
	Section elf.SectionIndex
}

// Spec describes the file to build.
type Spec struct {
	Text  []byte
	Data  []byte
	Entry uint64 // defaults to TextVA
	Syms  []Sym
}

// DataVA returns the virtual address .data gets for s.
func (s Spec) DataVA() uint64 {
	return TextVA + align(uint64(len(s.Text)), 8)
}

func align(v, a uint64) uint64 { return (v + a - 1) &^ (a - 1) }

type strtab struct{ bytes.Buffer }

func (t *strtab) add(s string) uint32 {
	if t.Len() == 0 {
		t.WriteByte(0)
	}
	off := uint32(t.Len())
	t.WriteString(s)
	t.WriteByte(0)
	return off
}

// Build returns the encoded file.
func Build(s Spec) []byte {
	le := binary.LittleEndian
	entry := s.Entry
	if entry == 0 {
		entry = TextVA
	}

	textOff := uint64(TextOff)
	dataOff := textOff + align(uint64(len(s.Text)), 8)

	var names, shnames strtab
	names.add("")
	shnames.add("")

	var symtab bytes.Buffer
	binary.Write(&symtab, le, elf.Sym64{})
	for _, sym := range s.Syms {
		binary.Write(&symtab, le, elf.Sym64{
			Name:  names.add(sym.Name),
			Info:  elf.ST_INFO(sym.Bind, sym.Type),
			Shndx: uint16(sym.Section),
			Value: sym.Value,
			Size:  sym.Size,
		})
	}

	strOff := dataOff + align(uint64(len(s.Data)), 8)
	symOff := align(strOff+uint64(names.Len()), 8)
	shstrName := [5]uint32{
		0,
		shnames.add(".text"),
		shnames.add(".data"),
		shnames.add(".symtab"),
		shnames.add(".strtab"),
	}
	shstrtabName := shnames.add(".shstrtab")
	shstrOff := symOff + uint64(symtab.Len())
	shOff := align(shstrOff+uint64(shnames.Len()), 8)
	const shnum = 6
	fileSize := shOff + shnum*64

	var out bytes.Buffer
	hdr := elf.Header64{
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_X86_64),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     entry,
		Phoff:     64,
		Shoff:     shOff,
		Ehsize:    64,
		Phentsize: 56,
		Phnum:     1,
		Shentsize: 64,
		Shnum:     shnum,
		Shstrndx:  5,
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	binary.Write(&out, le, hdr)
	binary.Write(&out, le, elf.Prog64{
		Type:   uint32(elf.PT_LOAD),
		Flags:  uint32(elf.PF_R | elf.PF_X),
		Off:    0,
		Vaddr:  Base,
		Paddr:  Base,
		Filesz: fileSize,
		Memsz:  fileSize,
		Align:  0x1000,
	})

	pad := func(to uint64) {
		for uint64(out.Len()) < to {
			out.WriteByte(0)
		}
	}
	pad(textOff)
	out.Write(s.Text)
	pad(dataOff)
	out.Write(s.Data)
	pad(strOff)
	out.Write(names.Bytes())
	pad(symOff)
	out.Write(symtab.Bytes())
	pad(shstrOff)
	out.Write(shnames.Bytes())
	pad(shOff)

	sections := []elf.Section64{
		{},
		{
			Name: shstrName[1], Type: uint32(elf.SHT_PROGBITS),
			Flags: uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR),
			Addr:  TextVA, Off: textOff, Size: uint64(len(s.Text)), Addralign: 16,
		},
		{
			Name: shstrName[2], Type: uint32(elf.SHT_PROGBITS),
			Flags: uint64(elf.SHF_ALLOC | elf.SHF_WRITE),
			Addr:  s.DataVA(), Off: dataOff, Size: uint64(len(s.Data)), Addralign: 8,
		},
		{
			Name: shstrName[3], Type: uint32(elf.SHT_SYMTAB),
			Off: symOff, Size: uint64(symtab.Len()), Link: 4, Info: 1,
			Addralign: 8, Entsize: 24,
		},
		{
			Name: shstrName[4], Type: uint32(elf.SHT_STRTAB),
			Off: strOff, Size: uint64(names.Len()), Addralign: 1,
		},
		{
			Name: shstrtabName, Type: uint32(elf.SHT_STRTAB),
			Off: shstrOff, Size: uint64(shnames.Len()), Addralign: 1,
		},
	}
	for _, sh := range sections {
		binary.Write(&out, le, sh)
	}
	return out.Bytes()
}
