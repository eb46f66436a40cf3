package x64

import "fmt"

// MaxLen is the longest encoding in the modelled subset:
// REX + 0F + opcode + ModRM + disp32.
const MaxLen = 8

// Decode decodes one instruction from the start of src, which is located
// at virtual address addr. It never reads past len(src).
//
// The returned record is always usable. A non-nil error classifies it:
// ErrUnknownOpcode for a byte pattern outside the modelled subset (the
// record consumes the prefixes, the opcode and, for opcode groups, the
// ModRM byte) and ErrTruncated when src ends inside the instruction (the
// record consumes the rest of src). Len is at least 1 except for an empty
// src, which yields a zero-length truncated record and ErrEmptyWindow.
func Decode(src []byte, addr uint64) (Inst, error) {
	if len(src) == 0 {
		return Inst{Addr: addr, Mnemonic: "(bad)", Status: StatusTruncated},
			fmt.Errorf("%w at 0x%x", ErrEmptyWindow, addr)
	}
	d := decoder{src: src}
	d.inst.Addr = addr
	err := d.decode()
	d.inst.Len = d.pos
	d.inst.Raw = src[:d.pos:d.pos]
	return d.inst, err
}

type decoder struct {
	src  []byte
	pos  int
	inst Inst
}

func (d *decoder) decode() error {
	if d.pos >= len(d.src) {
		return d.truncated()
	}
	if b := d.src[d.pos]; b >= 0x40 && b <= 0x4F {
		d.inst.HasREX = true
		d.inst.REX = REX{
			W: b&0b1000 != 0,
			R: b&0b0100 != 0,
			X: b&0b0010 != 0,
			B: b&0b0001 != 0,
		}
		d.pos++
	}

	if d.pos >= len(d.src) {
		return d.truncated()
	}
	table := primary
	if d.src[d.pos] == 0x0F {
		d.inst.Escape = true
		table = secondary
		d.pos++
	}

	if d.pos >= len(d.src) {
		return d.truncated()
	}
	d.inst.Opcode = d.src[d.pos]
	d.pos++

	def, ok := table[d.inst.Opcode]
	if !ok {
		return d.unknown()
	}
	if def.form == formGroup {
		if !d.modrm() {
			return d.truncated()
		}
		def, ok = groups[d.inst.Opcode][d.inst.ModRM.Reg]
		if !ok {
			return d.unknown()
		}
	}
	return d.operands(def)
}

// operands consumes the fields that follow the opcode for def's form and
// renders the operand text.
func (d *decoder) operands(def opDef) error {
	in := &d.inst
	in.Mnemonic = def.mnemonic
	in.Flow = def.flow
	in.Indirect = def.star

	switch def.form {
	case formBare:
	case formFixed:
		in.Operands = def.text
	case formOpReg:
		in.Operands = "%" + in.opcodeReg()
	case formAccImm:
		if !d.immediate(def.imm) {
			return d.truncated()
		}
		if in.REX.W {
			in.Operands = fmt.Sprintf("$0x%x, %%%s", uint64(in.Value), in.accReg())
		} else {
			in.Operands = fmt.Sprintf("$0x%x, %%%s", uint32(in.Value), in.accReg())
		}
	case formImm:
		if !d.immediate(def.imm) {
			return d.truncated()
		}
		in.Operands = fmt.Sprintf("$0x%x", uint64(in.Value))
	case formRetImm:
		if !d.immediate(def.imm) {
			return d.truncated()
		}
		in.Operands = fmt.Sprintf("$0x%x", uint16(in.Value))
	case formRel:
		if !d.immediate(def.imm) {
			return d.truncated()
		}
		in.Direct = true
		in.Operands = relative(in.Value)
	case formRM, formRegToRM, formRMToReg:
		if !in.HasModRM && !d.modrm() {
			return d.truncated()
		}
		if !d.displacement() {
			return d.truncated()
		}
		in.Operands = d.modrmOperands(def)
	default:
		panic(fmt.Sprintf("x64: unhandled form %d", def.form))
	}
	return nil
}

func (d *decoder) modrmOperands(def opDef) string {
	in := &d.inst
	direct := in.ModRM.Mod == 0b11

	var rm string
	if direct {
		rm = "%" + in.rmReg(def.wide)
	} else {
		rm = memory(in.Value, in.rmReg(true))
	}

	switch def.form {
	case formRegToRM:
		return "%" + in.regReg(false) + ", " + rm
	case formRMToReg:
		return rm + ", %" + in.regReg(false)
	}
	if def.star {
		return "*" + rm
	}
	return rm
}

func (d *decoder) modrm() bool {
	if d.pos >= len(d.src) {
		return false
	}
	b := d.src[d.pos]
	d.inst.HasModRM = true
	d.inst.ModRM = ModRM{
		Mod: b >> 6,
		Reg: (b >> 3) & 0b111,
		RM:  b & 0b111,
	}
	d.pos++
	return true
}

// displacement reads the displacement selected by ModRM.mod:
// 00 none (disp32 for the rip special case), 01 disp8, 10 disp32, 11 none.
func (d *decoder) displacement() bool {
	size := 0
	switch d.inst.ModRM.Mod {
	case 0b00:
		if d.inst.ModRM.RM == 0b101 {
			size = 4
		}
	case 0b01:
		size = 1
	case 0b10:
		size = 4
	case 0b11:
	}
	v, ok := d.signed(size)
	if !ok {
		return false
	}
	d.inst.Value = v
	d.inst.DispSize = size
	return true
}

func (d *decoder) immediate(size int) bool {
	v, ok := d.signed(size)
	if !ok {
		return false
	}
	d.inst.Value = v
	d.inst.ImmSize = size
	return true
}

// signed reads a little-endian value of size bytes and sign-extends it.
func (d *decoder) signed(size int) (int64, bool) {
	if d.pos+size > len(d.src) {
		return 0, false
	}
	b := d.src[d.pos : d.pos+size]
	var v int64
	switch size {
	case 0:
	case 1:
		v = int64(int8(b[0]))
	case 2:
		v = int64(int16(uint16(b[0]) | uint16(b[1])<<8))
	case 4:
		v = int64(int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24))
	default:
		panic(fmt.Sprintf("x64: unsupported field size %d", size))
	}
	d.pos += size
	return v, true
}

func (d *decoder) unknown() error {
	d.inst.Status = StatusUnknown
	d.inst.Mnemonic = "unknown"
	d.inst.Operands = "opcode"
	d.inst.Flow = FlowNone
	if d.inst.Escape {
		return fmt.Errorf("%w 0f %02x at 0x%x", ErrUnknownOpcode, d.inst.Opcode, d.inst.Addr)
	}
	if d.inst.HasModRM {
		return fmt.Errorf("%w %02x /%d at 0x%x", ErrUnknownOpcode, d.inst.Opcode, d.inst.ModRM.Reg, d.inst.Addr)
	}
	return fmt.Errorf("%w %02x at 0x%x", ErrUnknownOpcode, d.inst.Opcode, d.inst.Addr)
}

// truncated consumes the rest of the window so the caller still advances.
func (d *decoder) truncated() error {
	d.pos = len(d.src)
	d.inst = Inst{
		Addr:     d.inst.Addr,
		Mnemonic: "(bad)",
		Status:   StatusTruncated,
	}
	return fmt.Errorf("%w at 0x%x (%d bytes left)", ErrTruncated, d.inst.Addr, len(d.src))
}
