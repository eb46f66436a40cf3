package disasm

import (
	"errors"
	"reflect"
	"slices"
	"testing"

	"x64dis/internal/x64"
)

func addrs(s Stream) []uint64 {
	out := make([]uint64, len(s))
	for i := range s {
		out[i] = s[i].Addr
	}
	return out
}

func TestLinear(t *testing.T) {
	// push %rbp; mov %rsp, %rbp; je +2; two unknown bytes; nop; ret
	data := []byte{0x55, 0x48, 0x89, 0xE5, 0x74, 0x02, 0x06, 0x06, 0x90, 0xC3}
	res, err := Disassemble(data, Options{Base: 0x1000})
	if err != nil {
		t.Fatal(err)
	}
	want := []uint64{0x1000, 0x1001, 0x1004, 0x1006, 0x1007, 0x1008, 0x1009}
	if got := addrs(res.Insts); !reflect.DeepEqual(got, want) {
		t.Fatalf("addrs = %x, want %x", got, want)
	}
	if !res.Insts.Sorted() {
		t.Error("linear output must be sorted")
	}
	for _, in := range res.Insts {
		if in.Origin != 0x1000 {
			t.Errorf("0x%x origin = 0x%x", in.Addr, in.Origin)
		}
	}
	if res.Insts[3].Status != x64.StatusUnknown || res.Insts[3].Len != 1 {
		t.Errorf("unknown byte: %+v", res.Insts[3])
	}
}

func TestLinearTruncatedTail(t *testing.T) {
	data := []byte{0x90, 0xE8, 0x00, 0x00}
	res, err := Disassemble(data, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Insts) != 2 {
		t.Fatalf("got %d records", len(res.Insts))
	}
	last := res.Insts[1]
	if last.Status != x64.StatusTruncated || last.Len != 3 || last.End() != 4 {
		t.Errorf("tail = %+v", last)
	}
}

func TestDisassembleErrors(t *testing.T) {
	if _, err := Disassemble(nil, Options{}); !errors.Is(err, ErrEmptyBuffer) {
		t.Errorf("empty: %v", err)
	}
	_, err := Disassemble([]byte{0xC3}, Options{Base: 0x10, Mode: ModeRecursive, Entry: 0x11})
	if !errors.Is(err, ErrEntryOutOfRange) {
		t.Errorf("entry: %v", err)
	}
	if _, err := Disassemble([]byte{0xC3}, Options{Mode: Mode(9)}); !errors.Is(err, ErrUnknownMode) {
		t.Errorf("mode: %v", err)
	}
}

func TestRecursiveCallStartsSubroutine(t *testing.T) {
	// call +0; ret
	data := []byte{0xE8, 0x00, 0x00, 0x00, 0x00, 0xC3}
	res, err := Disassemble(data, Options{Mode: ModeRecursive})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(res.Subroutines, []uint64{0, 5}) {
		t.Errorf("subroutines = %v", res.Subroutines)
	}
	if got := addrs(res.Insts); !reflect.DeepEqual(got, []uint64{0, 5}) {
		t.Errorf("call must not end the block, addrs = %v", got)
	}
	if !reflect.DeepEqual(res.Calls, []Call{{Caller: 0, Site: 0, Callee: 5}}) {
		t.Errorf("calls = %+v", res.Calls)
	}
}

func TestRecursiveCalleeOrigin(t *testing.T) {
	// 0: call 7; 5: jmp 5 (self loop); 7: nop; 8: ret
	data := []byte{0xE8, 0x02, 0x00, 0x00, 0x00, 0xEB, 0xFE, 0x90, 0xC3}
	res, err := Disassemble(data, Options{Base: 0x400000, Mode: ModeRecursive, Entry: 0x400000})
	if err != nil {
		t.Fatal(err)
	}
	origins := map[uint64]uint64{}
	for _, in := range res.Insts {
		origins[in.Addr] = in.Origin
	}
	want := map[uint64]uint64{
		0x400000: 0x400000,
		0x400005: 0x400000,
		0x400007: 0x400007,
		0x400008: 0x400007,
	}
	if !reflect.DeepEqual(origins, want) {
		t.Errorf("origins = %x, want %x", origins, want)
	}
}

func TestRecursiveSharedEpilogue(t *testing.T) {
	// 0: call 10; 5: jmp 12; 7: padding; 10: nop; 11: nop; 12: ret
	data := []byte{0xE8, 0x05, 0x00, 0x00, 0x00, 0xEB, 0x05, 0x90, 0x90, 0x90, 0x90, 0x90, 0xC3}
	res, err := Disassemble(data, Options{Mode: ModeRecursive})
	if err != nil {
		t.Fatal(err)
	}
	origins := map[uint64]uint64{}
	for _, in := range res.Insts {
		origins[in.Addr] = in.Origin
	}
	// The callee is queued first, so the shared ret belongs to it.
	want := map[uint64]uint64{0: 0, 5: 0, 10: 10, 11: 10, 12: 10}
	if !reflect.DeepEqual(origins, want) {
		t.Errorf("origins = %v, want %v", origins, want)
	}
	if !reflect.DeepEqual(res.Subroutines, []uint64{0, 10}) {
		t.Errorf("subroutines = %v", res.Subroutines)
	}
}

func TestRecursiveJumpThenCallSameTarget(t *testing.T) {
	// 0: je 7; 2: call 7; 7: ret
	data := []byte{0x74, 0x05, 0xE8, 0x00, 0x00, 0x00, 0x00, 0xC3}
	res, err := Disassemble(data, Options{Mode: ModeRecursive})
	if err != nil {
		t.Fatal(err)
	}
	if got := addrs(res.Insts); !reflect.DeepEqual(got, []uint64{0, 2, 7}) {
		t.Fatalf("addrs = %v", got)
	}
	// The call still marks a subroutine even though the jump reached 7 first.
	if res.Insts[2].Origin != 0 || !slices.Contains(res.Subroutines, 7) {
		t.Errorf("origin = %d subroutines = %v", res.Insts[2].Origin, res.Subroutines)
	}
}

func TestRecursiveSkipsUnreachable(t *testing.T) {
	// jmp +2; (two data bytes); ret
	data := []byte{0xEB, 0x02, 0xFF, 0xFF, 0xC3}
	res, err := Disassemble(data, Options{Mode: ModeRecursive})
	if err != nil {
		t.Fatal(err)
	}
	if got := addrs(res.Insts); !reflect.DeepEqual(got, []uint64{0, 4}) {
		t.Errorf("addrs = %v", got)
	}
}

func TestRecursiveConditionalBothPaths(t *testing.T) {
	// 0: je 4; 2: jmp 5; 4: ret; 5: ret
	data := []byte{0x74, 0x02, 0xEB, 0x01, 0xC3, 0xC3}
	res, err := Disassemble(data, Options{Mode: ModeRecursive})
	if err != nil {
		t.Fatal(err)
	}
	got := addrs(res.Insts)
	slices.Sort(got)
	if !reflect.DeepEqual(got, []uint64{0, 2, 4, 5}) {
		t.Errorf("addrs = %v", got)
	}
	for _, in := range res.Insts {
		if in.Origin != 0 {
			t.Errorf("0x%x origin = 0x%x, jumps keep the origin", in.Addr, in.Origin)
		}
	}
}

func TestRecursiveCycleTerminates(t *testing.T) {
	// 0: nop; 1: je 0; 3: jmp 0
	data := []byte{0x90, 0x74, 0xFD, 0xEB, 0xFB}
	res, err := Disassemble(data, Options{Mode: ModeRecursive})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Insts) != 3 {
		t.Errorf("got %d records: %v", len(res.Insts), addrs(res.Insts))
	}
}

func TestRecursiveUniqueAddresses(t *testing.T) {
	// Many branches into the same targets.
	data := []byte{
		0x74, 0x06, // 0: je 8
		0x75, 0x04, // 2: jne 8
		0x74, 0x02, // 4: je 8
		0xEB, 0x00, // 6: jmp 8
		0x90,       // 8: nop
		0x74, 0xF5, // 9: je 0
		0xC3, // 11: ret
	}
	res, err := Disassemble(data, Options{Mode: ModeRecursive})
	if err != nil {
		t.Fatal(err)
	}
	seen := map[uint64]bool{}
	for _, in := range res.Insts {
		if seen[in.Addr] {
			t.Fatalf("address 0x%x decoded twice", in.Addr)
		}
		seen[in.Addr] = true
	}
	if len(seen) != 7 {
		t.Errorf("decoded %d addresses", len(seen))
	}
}

func TestRecursiveHighHalf(t *testing.T) {
	// 0: je 7; 2: call base-9; 7: ret
	const base = 0xffffffff81000000
	data := []byte{0x74, 0x05, 0xE8, 0xF0, 0xFF, 0xFF, 0xFF, 0xC3}
	res, err := Disassemble(data, Options{Base: base, Mode: ModeRecursive, Entry: base})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Unresolved) != 1 || res.Unresolved[0].From != base+2 {
		t.Fatalf("unresolved = %+v", res.Unresolved)
	}
	if got := res.Unresolved[0].TargetHex(); got != "0xffffffff80fffff7" {
		t.Errorf("target = %s", got)
	}

	res, err = Disassemble(data[2:], Options{Mode: ModeRecursive})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Unresolved) != 1 || res.Unresolved[0].Wrap != x64.WrapBelow || res.Unresolved[0].TargetHex() != "-0xb" {
		t.Errorf("unresolved = %+v", res.Unresolved)
	}
}

func TestRecursiveOutOfRange(t *testing.T) {
	// 0: call -0x100; 5: jmp +0x40; in a 7 byte buffer at 0x1000
	data := []byte{0xE8, 0x00, 0xFF, 0xFF, 0xFF, 0xEB, 0x40}
	res, err := Disassemble(data, Options{Base: 0x1000, Mode: ModeRecursive, Entry: 0x1000})
	if err != nil {
		t.Fatal(err)
	}
	want := []Unresolved{
		{From: 0x1000, Target: 0x1005 - 0x100, Flow: x64.FlowCall},
		{From: 0x1005, Target: 0x1007 + 0x40, Flow: x64.FlowJump},
	}
	if !reflect.DeepEqual(res.Unresolved, want) {
		t.Errorf("unresolved = %+v", res.Unresolved)
	}
	if len(res.Subroutines) != 1 || len(res.Calls) != 0 {
		t.Errorf("subroutines %v calls %v", res.Subroutines, res.Calls)
	}
}

func TestRecursiveOverlap(t *testing.T) {
	// 0: je 3; 2: push $0x90909090 covering 2..6; 7: ret
	// The branch target 3 lies inside the push immediate.
	data := []byte{0x74, 0x01, 0x68, 0x90, 0x90, 0x90, 0x90, 0xC3}
	res, err := Disassemble(data, Options{Mode: ModeRecursive})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Overlaps) == 0 {
		t.Fatalf("no overlap reported, insts %v", addrs(res.Insts))
	}
	ov := res.Overlaps[0]
	if ov.Addr != 3 || ov.Other != 2 {
		t.Errorf("overlap = %+v", ov)
	}
	found := false
	for _, in := range res.Insts {
		if in.Addr == 3 {
			found = true
		}
	}
	if !found {
		t.Error("overlapping decode must be kept")
	}
}

func TestMaxInsns(t *testing.T) {
	data := []byte{0x90, 0x90, 0x90, 0x90, 0x90}
	res, err := Disassemble(data, Options{MaxInsns: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Insts) != 2 || !res.Capped {
		t.Errorf("len %d capped %v", len(res.Insts), res.Capped)
	}
}

func TestRecursiveDeterministic(t *testing.T) {
	data := []byte{
		0xE8, 0x07, 0x00, 0x00, 0x00, // 0: call 0xc
		0x74, 0x03, // 5: je 0xa
		0x90,       // 7
		0xEB, 0xF6, // 8: jmp 0
		0xC3,       // 10
		0x90,       // 11
		0x75, 0xFC, // 12: jne 10
		0xC3, // 14
	}
	first, err := Disassemble(data, Options{Mode: ModeRecursive})
	if err != nil {
		t.Fatal(err)
	}
	for range 5 {
		again, _ := Disassemble(data, Options{Mode: ModeRecursive})
		if !reflect.DeepEqual(addrs(first.Insts), addrs(again.Insts)) {
			t.Fatal("traversal order differs between runs")
		}
		if !reflect.DeepEqual(first.Subroutines, again.Subroutines) {
			t.Fatal("subroutines differ between runs")
		}
	}
}

func TestStreamFind(t *testing.T) {
	res, _ := Disassemble([]byte{0x48, 0x89, 0xD8, 0x90, 0xC3}, Options{Base: 0x10})
	if got := res.Insts.Find(0x13); got != 1 {
		t.Errorf("Find(0x13) = %d", got)
	}
	if got := res.Insts.Find(0x11); got != -1 {
		t.Errorf("Find(0x11) = %d", got)
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeLinear, "Linear": ModeLinear, "recursive": ModeRecursive} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseMode("bfs"); !errors.Is(err, ErrUnknownMode) {
		t.Errorf("err = %v", err)
	}
}
