package x64

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"golang.org/x/arch/x86/x86asm"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		t.Fatalf("bad fixture %q: %v", s, err)
	}
	return b
}

var decodeCases = []struct {
	bytes string
	want  string
}{
	// relative branches
	{"EB 00", "jmp $rip+0x0"},
	{"EB 1A", "jmp $rip+0x1a"},
	{"EB E6", "jmp $rip-0x1a"},
	{"72 1A", "jb $rip+0x1a"},
	{"74 E6", "je $rip-0x1a"},
	{"75 00", "jne $rip+0x0"},
	{"E9 12 34 56 78", "jmp $rip+0x78563412"},
	{"E9 E6 FF FF FF", "jmp $rip-0x1a"},
	{"0F 82 12 34 56 78", "jb $rip+0x78563412"},
	{"0F 84 00 00 00 00", "je $rip+0x0"},
	{"0F 85 E6 FF FF FF", "jne $rip-0x1a"},
	{"E8 00 00 00 00", "call $rip+0x0"},
	{"E8 E6 FF FF FF", "call $rip-0x1a"},

	// push
	{"50", "push %rax"},
	{"57", "push %rdi"},
	{"41 50", "push %r8"},
	{"41 57", "push %r15"},
	{"6A 1A", "push $0x1a"},
	{"6A E6", "push $0xffffffffffffffe6"},
	{"68 12 34 56 78", "push $0x78563412"},
	{"68 E6 FF FF FF", "push $0xffffffffffffffe6"},
	{"0F A0", "push %fs"},
	{"0F A8", "push %gs"},
	{"FF F2", "push %rdx"},
	{"FF 30", "push 0x0(%rax)"},
	{"FF 70 1A", "push 0x1a(%rax)"},
	{"FF 70 E6", "push -0x1a(%rax)"},
	{"FF B2 23 01 00 00", "push 0x123(%rdx)"},
	{"FF 35 12 34 56 78", "push 0x78563412(%rip)"},
	{"41 FF F7", "push %r15"},
	{"41 FF B0 E6 FF FF FF", "push -0x1a(%r8)"},
	{"41 FF 35 00 00 00 00", "push 0x0(%rip)"},

	// pop
	{"5A", "pop %rdx"},
	{"41 5F", "pop %r15"},
	{"0F A1", "pop %fs"},
	{"0F A9", "pop %gs"},
	{"8F C2", "pop %rdx"},
	{"8F 01", "pop 0x0(%rcx)"},
	{"8F 40 1A", "pop 0x1a(%rax)"},
	{"8F 05 E6 FF FF FF", "pop -0x1a(%rip)"},
	{"41 8F C7", "pop %r15"},
	{"41 8F 80 23 01 00 00", "pop 0x123(%r8)"},

	// indirect call
	{"FF D0", "call *%rax"},
	{"FF 11", "call *0x0(%rcx)"},
	{"FF 50 E6", "call *-0x1a(%rax)"},
	{"FF 92 23 01 00 00", "call *0x123(%rdx)"},
	{"FF 15 12 34 56 78", "call *0x78563412(%rip)"},
	{"41 FF D7", "call *%r15"},
	{"41 FF 15 E6 FF FF FF", "call *-0x1a(%rip)"},

	// ret, nop, int3
	{"C3", "ret"},
	{"C2 12 34", "ret $0x3412"},
	{"C2 FF FF", "ret $0xffff"},
	{"90", "nop"},
	{"0F 1F C0", "nop %eax"},
	{"48 0F 1F C2", "nop %rdx"},
	{"0F 1F 40 E6", "nop -0x1a(%rax)"},
	{"0F 1F 05 12 34 56 78", "nop 0x78563412(%rip)"},
	{"CC", "int 3"},

	// arithmetic
	{"35 12 34 56 78", "xor $0x78563412, %eax"},
	{"35 E6 FF FF FF", "xor $0xffffffe6, %eax"},
	{"48 35 E6 FF FF FF", "xor $0xffffffffffffffe6, %rax"},
	{"05 00 00 00 00", "add $0x0, %eax"},
	{"48 05 12 34 56 78", "add $0x78563412, %rax"},
	{"F7 E2", "mul %edx"},
	{"48 F7 E0", "mul %rax"},
	{"F7 21", "mul 0x0(%rcx)"},
	{"F7 A0 E6 FF FF FF", "mul -0x1a(%rax)"},
	{"F7 25 12 34 56 78", "mul 0x78563412(%rip)"},
	{"3D 12 34 56 78", "cmp $0x78563412, %eax"},
	{"48 3D E6 FF FF FF", "cmp $0xffffffffffffffe6, %rax"},
	{"39 C2", "cmp %eax, %edx"},
	{"39 D0", "cmp %edx, %eax"},
	{"48 39 C8", "cmp %rcx, %rax"},
	{"39 48 1A", "cmp %ecx, 0x1a(%rax)"},
	{"39 05 E6 FF FF FF", "cmp %eax, -0x1a(%rip)"},
	{"48 39 82 23 01 00 00", "cmp %rax, 0x123(%rdx)"},

	// mov
	{"89 C8", "mov %ecx, %eax"},
	{"48 89 D0", "mov %rdx, %rax"},
	{"48 89 D8", "mov %rbx, %rax"},
	{"49 89 D0", "mov %rdx, %r8"},
	{"89 42 1A", "mov %eax, 0x1a(%rdx)"},
	{"89 05 12 34 56 78", "mov %eax, 0x78563412(%rip)"},
	{"49 89 82 E6 FF FF FF", "mov %rax, -0x1a(%r10)"},
	{"8B C2", "mov %edx, %eax"},
	{"49 8B D0", "mov %r8, %rdx"},
	{"8B 50 1A", "mov 0x1a(%rax), %edx"},
	{"8B 05 E6 FF FF FF", "mov -0x1a(%rip), %eax"},
	{"48 8B 40 E6", "mov -0x1a(%rax), %rax"},
	{"49 8B 82 23 01 00 00", "mov 0x123(%r10), %rax"},
}

func TestDecode(t *testing.T) {
	for _, tt := range decodeCases {
		t.Run(tt.bytes, func(t *testing.T) {
			raw := mustHex(t, tt.bytes)
			inst, err := Decode(raw, 0x1000)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got := inst.String(); got != tt.want {
				t.Errorf("text = %q, want %q", got, tt.want)
			}
			if inst.Len != len(raw) {
				t.Errorf("len = %d, want %d", inst.Len, len(raw))
			}
			if !bytes.Equal(inst.Raw, raw) {
				t.Errorf("raw = % x, want % x", inst.Raw, raw)
			}
			if inst.Addr != 0x1000 {
				t.Errorf("addr = 0x%x, want 0x1000", inst.Addr)
			}
		})
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	for _, tt := range decodeCases {
		raw := mustHex(t, tt.bytes)
		inst, err := Decode(raw, 0)
		if err != nil {
			t.Fatalf("%s: %v", tt.bytes, err)
		}
		if got := inst.Encode(); !bytes.Equal(got, raw) {
			t.Errorf("%s: Encode = % x", tt.bytes, got)
		}
	}
}

// The modelled subset never uses a SIB byte, so every length must agree
// with the full-ISA decoder wherever that decoder knows the encoding.
// x86asm has gaps of its own (REX.W 0F 1F with a register operand), and
// those fixtures are only logged.
func TestDecodeLengthMatchesReference(t *testing.T) {
	checked := 0
	for _, tt := range decodeCases {
		raw := mustHex(t, tt.bytes)
		inst, _ := Decode(raw, 0)
		ref, err := x86asm.Decode(raw, 64)
		if err != nil {
			t.Logf("%s: x86asm rejects it: %v", tt.bytes, err)
			continue
		}
		checked++
		if ref.Len != inst.Len {
			t.Errorf("%s: len = %d, x86asm len = %d", tt.bytes, inst.Len, ref.Len)
		}
	}
	if checked < len(decodeCases)/2 {
		t.Errorf("x86asm accepted only %d of %d fixtures", checked, len(decodeCases))
	}
}

func TestDecodeFields(t *testing.T) {
	inst, err := Decode([]byte{0x48, 0x89, 0xD8}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !inst.HasREX || !inst.REX.W || inst.REX.R || inst.REX.X || inst.REX.B {
		t.Errorf("rex = %+v (present %v), want W only", inst.REX, inst.HasREX)
	}
	if !inst.HasModRM || inst.ModRM != (ModRM{Mod: 3, Reg: 3, RM: 0}) {
		t.Errorf("modrm = %+v", inst.ModRM)
	}
	if inst.Escape {
		t.Error("unexpected escape")
	}

	inst, _ = Decode([]byte{0x0F, 0x84, 0xE6, 0xFF, 0xFF, 0xFF}, 0x100)
	if !inst.Escape || inst.Flow != FlowCondJump || !inst.Direct {
		t.Errorf("jcc rel32 fields: %+v", inst)
	}
	if inst.Value != -0x1a || inst.ImmSize != 4 {
		t.Errorf("value = %d size %d", inst.Value, inst.ImmSize)
	}
	if got := inst.Target(); got != 0x100+6-0x1a {
		t.Errorf("target = 0x%x", got)
	}

	inst, _ = Decode([]byte{0x8B, 0x05, 0x10, 0x00, 0x00, 0x00}, 0x400000)
	if !inst.RIPRelative() || inst.DispSize != 4 {
		t.Errorf("rip-relative = %v disp size %d", inst.RIPRelative(), inst.DispSize)
	}
	if got := inst.Target(); got != 0x400016 {
		t.Errorf("rip target = 0x%x, want 0x400016", got)
	}
}

func TestDecodeFlow(t *testing.T) {
	tests := []struct {
		bytes      string
		flow       Flow
		terminator bool
		endsBlock  bool
	}{
		{"C3", FlowReturn, true, true},
		{"C2 08 00", FlowReturn, true, true},
		{"EB 02", FlowJump, true, true},
		{"74 02", FlowCondJump, false, true},
		{"E8 00 00 00 00", FlowCall, false, false},
		{"FF D0", FlowCall, false, false},
		{"90", FlowNone, false, false},
	}
	for _, tt := range tests {
		inst, _ := Decode(mustHex(t, tt.bytes), 0)
		if inst.Flow != tt.flow {
			t.Errorf("%s: flow = %v, want %v", tt.bytes, inst.Flow, tt.flow)
		}
		if inst.IsTerminator() != tt.terminator {
			t.Errorf("%s: terminator = %v", tt.bytes, inst.IsTerminator())
		}
		if inst.EndsBlock() != tt.endsBlock {
			t.Errorf("%s: ends block = %v", tt.bytes, inst.EndsBlock())
		}
	}
	if inst, _ := Decode([]byte{0xFF, 0xD0}, 0); inst.Direct || !inst.Indirect {
		t.Error("call *%rax must be indirect")
	}
}

func TestDecodeUnknown(t *testing.T) {
	tests := []struct {
		bytes string
		len   int
	}{
		{"06", 1},
		{"48 06", 2},
		{"0F 05", 2},
		{"41 0F 0B", 3},
		{"FF C0", 2},    // FF /0 not modelled
		{"FF 20", 2},    // FF /4 not modelled
		{"8F 48 10", 2}, // 8F /1, displacement is not consumed
		{"F7 D8", 2},    // F7 /3 not modelled
	}
	for _, tt := range tests {
		t.Run(tt.bytes, func(t *testing.T) {
			raw := mustHex(t, tt.bytes)
			inst, err := Decode(raw, 0)
			if !errors.Is(err, ErrUnknownOpcode) {
				t.Fatalf("err = %v, want ErrUnknownOpcode", err)
			}
			if errors.Is(err, ErrTruncated) {
				t.Error("unknown opcode reported as truncated")
			}
			if inst.Status != StatusUnknown {
				t.Errorf("status = %v", inst.Status)
			}
			if inst.Len != tt.len {
				t.Errorf("len = %d, want %d", inst.Len, tt.len)
			}
			if inst.String() != "unknown opcode" {
				t.Errorf("text = %q", inst.String())
			}
			if !inst.IsTerminator() {
				t.Error("unknown record must terminate a block")
			}
			if got := inst.Encode(); !bytes.Equal(got, raw[:tt.len]) {
				t.Errorf("Encode = % x", got)
			}
		})
	}
}

func TestDecodeEmptyWindow(t *testing.T) {
	for _, src := range [][]byte{nil, {}} {
		inst, err := Decode(src, 0x40)
		if !errors.Is(err, ErrEmptyWindow) || !errors.Is(err, ErrTruncated) {
			t.Fatalf("err = %v, want ErrEmptyWindow wrapping ErrTruncated", err)
		}
		if inst.Len != 0 || inst.Status != StatusTruncated || inst.Addr != 0x40 || inst.Mnemonic != "(bad)" {
			t.Errorf("inst = %+v", inst)
		}
	}
}

func TestDecodeTruncated(t *testing.T) {
	tests := []string{
		"48",
		"0F",
		"48 0F",
		"89",
		"89 40",
		"89 80 00 00",
		"8B 05 00",
		"FF",
		"E8 00 00",
		"0F 84 00 00 00",
		"6A",
		"C2 00",
		"35 00 00 00",
	}
	for _, s := range tests {
		t.Run(s, func(t *testing.T) {
			raw := mustHex(t, s)
			inst, err := Decode(raw, 0x20)
			if !errors.Is(err, ErrTruncated) {
				t.Fatalf("err = %v, want ErrTruncated", err)
			}
			if inst.Status != StatusTruncated {
				t.Errorf("status = %v", inst.Status)
			}
			if inst.Len != len(raw) {
				t.Errorf("len = %d, want whole window %d", inst.Len, len(raw))
			}
			if inst.Addr != 0x20 {
				t.Errorf("addr = 0x%x", inst.Addr)
			}
		})
	}

	inst, err := Decode(nil, 0)
	if !errors.Is(err, ErrTruncated) || inst.Len != 0 {
		t.Errorf("empty window: len %d err %v", inst.Len, err)
	}
}

// A decode must not look past the window even when the backing array
// holds more bytes.
func TestDecodeRespectsWindow(t *testing.T) {
	backing := []byte{0xE8, 0x01, 0x02, 0x03, 0x04}
	inst, err := Decode(backing[:3], 0)
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("err = %v", err)
	}
	if inst.Len != 3 || cap(inst.Raw) != 3 {
		t.Errorf("len %d cap %d", inst.Len, cap(inst.Raw))
	}
}

func TestSignedHex(t *testing.T) {
	tests := map[int64]string{
		0:     "0x0",
		0x1a:  "0x1a",
		-0x1a: "-0x1a",
		-1:    "-0x1",
	}
	for v, want := range tests {
		if got := SignedHex(v); got != want {
			t.Errorf("SignedHex(%d) = %q, want %q", v, got, want)
		}
	}
}

func TestDest(t *testing.T) {
	tests := []struct {
		bytes string
		addr  uint64
		dest  uint64
		wrap  Wrap
		hex   string
	}{
		{"74 02", 0x10, 0x14, WrapNone, "0x14"},
		{"74 02", 0xffffffff81000000, 0xffffffff81000004, WrapNone, "0xffffffff81000004"},
		{"E8 F0 FF FF FF", 0xffffffff81000000, 0xffffffff80fffff5, WrapNone, "0xffffffff80fffff5"},
		{"E8 F0 FF FF FF", 0, 0xfffffffffffffff5, WrapBelow, "-0xb"},
		{"EB 10", 0xfffffffffffffff0, 0x2, WrapAbove, "0x10000000000000002"},
	}
	for _, tt := range tests {
		inst, err := Decode(mustHex(t, tt.bytes), tt.addr)
		if err != nil {
			t.Fatal(err)
		}
		dest, wrap := inst.Dest()
		if dest != tt.dest || wrap != tt.wrap {
			t.Errorf("%s at 0x%x: Dest = 0x%x, %d", tt.bytes, tt.addr, dest, wrap)
		}
		if got := DestHex(dest, wrap); got != tt.hex {
			t.Errorf("%s at 0x%x: DestHex = %q, want %q", tt.bytes, tt.addr, got, tt.hex)
		}
	}
}

func TestHex(t *testing.T) {
	inst, _ := Decode([]byte{0x48, 0x89, 0xD8}, 0)
	if got := inst.Hex(); got != "48 89 d8" {
		t.Errorf("Hex = %q", got)
	}
}
