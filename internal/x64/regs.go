package x64

var reg64 = [16]string{
	"rax", "rcx", "rdx", "rbx",
	"rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11",
	"r12", "r13", "r14", "r15",
}

var reg32 = [16]string{
	"eax", "ecx", "edx", "ebx",
	"esp", "ebp", "esi", "edi",
	"r8d", "r9d", "r10d", "r11d",
	"r12d", "r13d", "r14d", "r15d",
}

// regName resolves a 3-bit register field plus its REX extension bit.
// wide forces the 64-bit table; otherwise REX.W picks between the tables.
func regName(field byte, ext bool, wide bool, rex REX) string {
	enc := field & 0b111
	if ext {
		enc |= 0b1000
	}
	if wide || rex.W {
		return reg64[enc]
	}
	return reg32[enc]
}

// rmReg names the register selected by ModRM.rm, extended by REX.B.
// The RIP-relative special case names rip and ignores REX.B.
func (i *Inst) rmReg(wide bool) string {
	if i.ModRM.RIPRelative() {
		return "rip"
	}
	return regName(i.ModRM.RM, i.REX.B, wide, i.REX)
}

// regReg names the register selected by ModRM.reg, extended by REX.R.
func (i *Inst) regReg(wide bool) string {
	return regName(i.ModRM.Reg, i.REX.R, wide, i.REX)
}

// opcodeReg names the register embedded in the low opcode bits. These
// forms always operate on 64-bit registers.
func (i *Inst) opcodeReg() string {
	return regName(i.Opcode, i.REX.B, true, i.REX)
}

// accReg names rax or eax depending on REX.W.
func (i *Inst) accReg() string {
	return regName(0, false, false, i.REX)
}
