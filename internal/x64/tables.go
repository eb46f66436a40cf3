package x64

// form says which optional fields follow the opcode byte and how the
// operands are rendered. Every form consumes a fixed, explicit set of fields.
type form uint8

const (
	formBare    form = iota // opcode only
	formAccImm              // imm32 against eax/rax
	formOpReg               // register in the low three opcode bits
	formImm                 // push immediate
	formRel                 // relative branch offset
	formRetImm              // ret imm16
	formRegToRM             // ModRM, "%reg, r/m"
	formRMToReg             // ModRM, "r/m, %reg"
	formRM                  // ModRM, single r/m operand
	formGroup               // ModRM.reg selects the entry in groups
	formFixed               // fixed operand text
)

type opDef struct {
	mnemonic string
	form     form
	imm      int // immediate size in bytes
	flow     Flow
	wide     bool   // direct r/m register is 64-bit regardless of REX.W
	star     bool   // indirect transfer through r/m
	text     string // operand text for formFixed
}

// primary is keyed by the opcode byte when no 0x0F escape is present.
var primary = map[byte]opDef{
	0x05: {mnemonic: "add", form: formAccImm, imm: 4},
	0x35: {mnemonic: "xor", form: formAccImm, imm: 4},
	0x39: {mnemonic: "cmp", form: formRegToRM},
	0x3D: {mnemonic: "cmp", form: formAccImm, imm: 4},

	0x50: {mnemonic: "push", form: formOpReg},
	0x51: {mnemonic: "push", form: formOpReg},
	0x52: {mnemonic: "push", form: formOpReg},
	0x53: {mnemonic: "push", form: formOpReg},
	0x54: {mnemonic: "push", form: formOpReg},
	0x55: {mnemonic: "push", form: formOpReg},
	0x56: {mnemonic: "push", form: formOpReg},
	0x57: {mnemonic: "push", form: formOpReg},
	0x58: {mnemonic: "pop", form: formOpReg},
	0x59: {mnemonic: "pop", form: formOpReg},
	0x5A: {mnemonic: "pop", form: formOpReg},
	0x5B: {mnemonic: "pop", form: formOpReg},
	0x5C: {mnemonic: "pop", form: formOpReg},
	0x5D: {mnemonic: "pop", form: formOpReg},
	0x5E: {mnemonic: "pop", form: formOpReg},
	0x5F: {mnemonic: "pop", form: formOpReg},

	0x68: {mnemonic: "push", form: formImm, imm: 4},
	0x6A: {mnemonic: "push", form: formImm, imm: 1},

	0x72: {mnemonic: "jb", form: formRel, imm: 1, flow: FlowCondJump},
	0x74: {mnemonic: "je", form: formRel, imm: 1, flow: FlowCondJump},
	0x75: {mnemonic: "jne", form: formRel, imm: 1, flow: FlowCondJump},

	0x89: {mnemonic: "mov", form: formRegToRM},
	0x8B: {mnemonic: "mov", form: formRMToReg},
	0x8F: {form: formGroup},
	0x90: {mnemonic: "nop", form: formBare},

	0xC2: {mnemonic: "ret", form: formRetImm, imm: 2, flow: FlowReturn},
	0xC3: {mnemonic: "ret", form: formBare, flow: FlowReturn},
	0xCC: {mnemonic: "int 3", form: formBare},

	0xE8: {mnemonic: "call", form: formRel, imm: 4, flow: FlowCall},
	0xE9: {mnemonic: "jmp", form: formRel, imm: 4, flow: FlowJump},
	0xEB: {mnemonic: "jmp", form: formRel, imm: 1, flow: FlowJump},

	0xF7: {form: formGroup},
	0xFF: {form: formGroup},
}

// secondary is keyed by the opcode byte following a 0x0F escape.
var secondary = map[byte]opDef{
	0x1F: {mnemonic: "nop", form: formRM},
	0x82: {mnemonic: "jb", form: formRel, imm: 4, flow: FlowCondJump},
	0x84: {mnemonic: "je", form: formRel, imm: 4, flow: FlowCondJump},
	0x85: {mnemonic: "jne", form: formRel, imm: 4, flow: FlowCondJump},
	0xA0: {mnemonic: "push", form: formFixed, text: "%fs"},
	0xA1: {mnemonic: "pop", form: formFixed, text: "%fs"},
	0xA8: {mnemonic: "push", form: formFixed, text: "%gs"},
	0xA9: {mnemonic: "pop", form: formFixed, text: "%gs"},
}

// groups maps a primary group opcode to its ModRM.reg selectors.
var groups = map[byte]map[byte]opDef{
	0x8F: {
		0: {mnemonic: "pop", form: formRM, wide: true},
	},
	0xF7: {
		4: {mnemonic: "mul", form: formRM},
	},
	0xFF: {
		2: {mnemonic: "call", form: formRM, wide: true, star: true, flow: FlowCall},
		6: {mnemonic: "push", form: formRM, wide: true},
	},
}
