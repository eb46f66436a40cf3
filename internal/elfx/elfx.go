// Package elfx opens x86-64 ELF binaries and exposes what the disassembler
// needs from them: the .text bytes, the section table, the symbol table and
// the entry point.
package elfx

import (
	"debug/elf"
	"errors"
	"fmt"
	"os"
	"syscall"
)

var (
	ErrNotELF  = errors.New("elfx: not a 64-bit ELF file")
	ErrNoText  = errors.New("elfx: no .text section")
	ErrNoEntry = errors.New("elfx: entry point outside .text")
)

type Image struct {
	Path     string
	File     *elf.File
	All      []byte
	Loads    []Seg
	Text     Section
	Sections []Section // section header order, index 0 is the null section
	Symbols  []Symbol  // .symtab, or .dynsym when the binary is stripped
	Entry    uint64
	f        *os.File
}

type Seg struct {
	Vaddr, Off, Filesz uint64
	Flags              elf.ProgFlag
}

type Section struct {
	Name          string
	VA, Off, Size uint64
	Alloc         bool // SHF_ALLOC: occupies memory at run time
}

// Contains reports whether va lies in [VA, VA+Size).
func (s Section) Contains(va uint64) bool {
	return va >= s.VA && va < s.VA+s.Size
}

// Loaded reports whether the section is mapped at VA when the image runs.
// .symtab, .strtab, .comment and friends have sh_addr 0 and are not.
func (s Section) Loaded() bool {
	return s.Alloc && s.VA != 0 && s.Size != 0
}

func Open(path string) (*Image, error) {
	f, err := elf.Open(path)
	if err != nil {
		var fe *elf.FormatError
		if errors.As(err, &fe) {
			return nil, fmt.Errorf("%w: %s: %v", ErrNotELF, path, err)
		}
		return nil, fmt.Errorf("open elf: %w", err)
	}
	if f.Class != elf.ELFCLASS64 {
		f.Close()
		return nil, fmt.Errorf("%w: %s is %v", ErrNotELF, path, f.Class)
	}

	of, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open file: %w", err)
	}

	fi, err := of.Stat()
	if err != nil {
		of.Close()
		f.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}

	all, err := syscall.Mmap(int(of.Fd()), 0, int(fi.Size()), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		of.Close()
		f.Close()
		return nil, fmt.Errorf("mmap file: %w", err)
	}

	im := &Image{Path: path, File: f, All: all, Entry: f.Entry, f: of}
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		im.Loads = append(im.Loads, Seg{
			Vaddr:  p.Vaddr,
			Off:    p.Off,
			Filesz: p.Filesz,
			Flags:  p.Flags,
		})
	}

	for _, s := range f.Sections {
		sec := Section{s.Name, s.Addr, s.Offset, s.Size, s.Flags&elf.SHF_ALLOC != 0}
		im.Sections = append(im.Sections, sec)
		if s.Name == ".text" {
			im.Text = sec
		}
	}

	// No section headers: fall back to the first executable segment.
	if im.Text.Size == 0 {
		for _, l := range im.Loads {
			if l.Flags&elf.PF_X != 0 && l.Filesz > 0 {
				im.Text = Section{"LOAD(exec)", l.Vaddr, l.Off, l.Filesz, true}
				break
			}
		}
	}
	if im.Text.Size == 0 {
		im.Close()
		return nil, fmt.Errorf("%w: %s", ErrNoText, path)
	}

	im.loadSymbols()
	return im, nil
}

// Close unmaps the memory and closes the underlying files.
func (im *Image) Close() error {
	var err1, err2 error
	if im.All != nil {
		err1 = syscall.Munmap(im.All)
		im.All = nil
	}
	if im.f != nil {
		err2 = im.f.Close()
		im.f = nil
	}
	if im.File != nil {
		err3 := im.File.Close()
		if err3 != nil && err2 == nil {
			err2 = err3
		}
		im.File = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

// VA2Off translates a virtual address into a file offset
// using PT_LOAD segments. It returns false if VA is unmapped.
func (im *Image) VA2Off(va uint64) (uint64, bool) {
	for _, l := range im.Loads {
		if va >= l.Vaddr && va < l.Vaddr+l.Filesz {
			return l.Off + (va - l.Vaddr), true
		}
	}
	return 0, false
}

// SliceVA returns a subslice of the mapped file corresponding to the virtual address range [va, va+size).
// It returns (nil, false) if the VA is unmapped or the range is out of bounds.
func (im *Image) SliceVA(va uint64, size uint64) ([]byte, bool) {
	off, ok := im.VA2Off(va)
	if !ok {
		return nil, false
	}
	if size == 0 {
		return []byte{}, true
	}
	end := off + size
	if end > uint64(len(im.All)) {
		return nil, false
	}
	return im.All[off:end], true
}

// TextBytes returns the mapped .text contents. The slice is only valid
// until Close.
func (im *Image) TextBytes() ([]byte, error) {
	if b, ok := im.SliceVA(im.Text.VA, im.Text.Size); ok {
		return b, nil
	}
	// Relocatable objects have no segments; use the section offset.
	end := im.Text.Off + im.Text.Size
	if end > uint64(len(im.All)) {
		return nil, fmt.Errorf("%w: %s extends past end of file", ErrNoText, im.Text.Name)
	}
	return im.All[im.Text.Off:end], nil
}

// EntryInText returns the ELF entry point, checked against .text.
func (im *Image) EntryInText() (uint64, error) {
	if !im.Text.Contains(im.Entry) {
		return 0, fmt.Errorf("%w: 0x%x", ErrNoEntry, im.Entry)
	}
	return im.Entry, nil
}

// LoadedSections returns the sections that are mapped at run time, in
// section header order.
func (im *Image) LoadedSections() []Section {
	var out []Section
	for _, s := range im.Sections {
		if s.Loaded() {
			out = append(out, s)
		}
	}
	return out
}

// SectionAt returns the loaded section whose address range holds va.
func (im *Image) SectionAt(va uint64) (Section, bool) {
	for _, s := range im.Sections {
		if s.Loaded() && s.Contains(va) {
			return s, true
		}
	}
	return Section{}, false
}
