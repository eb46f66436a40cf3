// Package x64 decodes a fixed subset of 64-bit mode x86 instructions.
// Anything outside the modelled subset decodes to an explicit unknown
// record so that callers always make forward progress.
package x64

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTruncated     = errors.New("x64: instruction truncated by end of window")
	ErrEmptyWindow   = fmt.Errorf("%w: empty window", ErrTruncated)
	ErrUnknownOpcode = errors.New("x64: unknown opcode")
)

// Flow classifies the control-transfer behaviour of an instruction.
type Flow uint8

const (
	FlowNone Flow = iota
	FlowCall
	FlowJump
	FlowCondJump
	FlowReturn
)

func (f Flow) String() string {
	switch f {
	case FlowCall:
		return "call"
	case FlowJump:
		return "jump"
	case FlowCondJump:
		return "cond"
	case FlowReturn:
		return "return"
	}
	return "none"
}

// Status tells a modelled instruction apart from the two fallback records.
type Status uint8

const (
	StatusOK Status = iota
	StatusUnknown
	StatusTruncated
)

func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusTruncated:
		return "truncated"
	}
	return "ok"
}

// REX holds the four extension bits of a REX prefix.
type REX struct {
	W, R, X, B bool
}

// Byte re-encodes the prefix.
func (r REX) Byte() byte {
	b := byte(0x40)
	if r.W {
		b |= 0b1000
	}
	if r.R {
		b |= 0b0100
	}
	if r.X {
		b |= 0b0010
	}
	if r.B {
		b |= 0b0001
	}
	return b
}

// ModRM holds the three ModRM sub-fields.
type ModRM struct {
	Mod, Reg, RM byte
}

// Byte re-encodes the ModRM byte.
func (m ModRM) Byte() byte {
	return m.Mod<<6 | (m.Reg&0b111)<<3 | m.RM&0b111
}

// RIPRelative reports the mod=00, rm=101 special case.
func (m ModRM) RIPRelative() bool {
	return m.Mod == 0b00 && m.RM == 0b101
}

// Inst is one decoded instruction.
type Inst struct {
	Addr uint64 // virtual address of the first byte
	Len  int    // bytes consumed, >= 1 for any non-empty window
	Raw  []byte // exactly the consumed bytes

	Mnemonic string
	Operands string

	HasREX bool
	REX    REX
	Escape bool // 0x0F two-byte escape present
	Opcode byte

	HasModRM bool
	ModRM    ModRM

	// Value is the sign-extended immediate or displacement. At most one of
	// DispSize and ImmSize is non-zero for the modelled subset.
	Value    int64
	DispSize int
	ImmSize  int

	Flow     Flow
	Direct   bool // control target is Addr+Len+Value
	Indirect bool // control target comes from a register or memory
	Status   Status
}

// Target returns the absolute destination Addr+Len+Value. It is meaningful
// for direct control transfers and RIP-relative memory operands. The result
// is signed because a small address plus a negative offset may underflow.
func (i Inst) Target() int64 {
	return int64(i.Addr) + int64(i.Len) + i.Value
}

// Wrap says which end of the 64-bit address space a destination crossed.
type Wrap int8

const (
	WrapNone Wrap = iota
	WrapBelow
	WrapAbove
)

// Dest returns the destination Addr+Len+Value as an address. Code in the
// upper half of the address space has no int64 form, so callers that
// compare or look up addresses use Dest rather than Target.
func (i Inst) Dest() (uint64, Wrap) {
	next := i.Addr + uint64(i.Len)
	dest := next + uint64(i.Value)
	switch {
	case i.Value < 0 && dest > next:
		return dest, WrapBelow
	case i.Value > 0 && dest < next:
		return dest, WrapAbove
	}
	return dest, WrapNone
}

// DestHex renders a destination returned by Dest. One that fell below zero
// keeps its sign, one that ran past the top carries the 65th bit.
func DestHex(dest uint64, w Wrap) string {
	switch w {
	case WrapBelow:
		return fmt.Sprintf("-0x%x", -dest)
	case WrapAbove:
		return fmt.Sprintf("0x1%016x", dest)
	}
	return fmt.Sprintf("0x%x", dest)
}

// RIPRelative reports whether the instruction carries a disp32(%rip) operand.
func (i Inst) RIPRelative() bool {
	return i.HasModRM && i.ModRM.RIPRelative() && i.Status == StatusOK
}

// IsTerminator reports whether the instruction ends a block during
// recursive traversal: unconditional jumps, returns and undecodable bytes.
func (i Inst) IsTerminator() bool {
	return i.Flow == FlowJump || i.Flow == FlowReturn || i.Status != StatusOK
}

// EndsBlock reports whether the next instruction starts a new scan-time
// block: any jump or return.
func (i Inst) EndsBlock() bool {
	return i.Flow == FlowJump || i.Flow == FlowCondJump || i.Flow == FlowReturn
}

// SignedImmediate reports whether Value is a non-control immediate whose
// sign is meaningful for display.
func (i Inst) SignedImmediate() bool {
	return i.Status == StatusOK && i.ImmSize > 0 && i.Flow == FlowNone
}

// Hex renders Raw as space separated lowercase byte pairs.
func (i Inst) Hex() string {
	var b strings.Builder
	for n, c := range i.Raw {
		if n > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02x", c)
	}
	return b.String()
}

// String renders "mnemonic operands".
func (i Inst) String() string {
	if i.Operands == "" {
		return i.Mnemonic
	}
	return i.Mnemonic + " " + i.Operands
}
