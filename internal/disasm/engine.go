package disasm

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"

	"x64dis/internal/x64"
)

var (
	ErrEmptyBuffer     = errors.New("disasm: empty buffer")
	ErrEntryOutOfRange = errors.New("disasm: entry outside buffer")
	ErrUnknownMode     = errors.New("disasm: unknown mode")
)

// Mode selects the traversal policy.
type Mode uint8

const (
	// ModeLinear decodes from the first byte to the last.
	ModeLinear Mode = iota
	// ModeRecursive follows control flow from an entry address.
	ModeRecursive
)

func (m Mode) String() string {
	if m == ModeRecursive {
		return "recursive"
	}
	return "linear"
}

// ParseMode accepts "linear" or "recursive" in any case.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "linear":
		return ModeLinear, nil
	case "recursive", "rec":
		return ModeRecursive, nil
	}
	return ModeLinear, fmt.Errorf("%w %q", ErrUnknownMode, s)
}

// Options configure one run.
type Options struct {
	Base     uint64 // virtual address of data[0]
	Mode     Mode
	Entry    uint64 // absolute start address, recursive mode only
	MaxInsns int    // stop after this many records, 0 for no limit
	Logger   *log.Logger
}

// Unresolved is a direct control transfer whose target lies outside the
// buffer.
type Unresolved struct {
	From   uint64
	Target uint64
	Wrap   x64.Wrap // set when Target wrapped around the address space
	Flow   x64.Flow
}

// TargetHex renders Target the way listing notes do.
func (u Unresolved) TargetHex() string {
	return x64.DestHex(u.Target, u.Wrap)
}

// Overlap records an instruction that starts inside bytes already claimed
// by a different instruction. Both decodes are kept in the output.
type Overlap struct {
	Addr  uint64 // start of the later decode
	Len   int
	Other uint64 // start of the instruction that claimed the byte first
}

// Call is a resolved direct call from one subroutine into another.
type Call struct {
	Caller uint64 // origin of the call site
	Site   uint64
	Callee uint64
}

// Result is the output of one run. Insts is in address order for linear
// mode and in discovery order for recursive mode.
type Result struct {
	Mode        Mode
	Base        uint64
	Size        int
	Insts       Stream
	Unresolved  []Unresolved
	Overlaps    []Overlap
	Subroutines []uint64 // subroutine entries in discovery order
	Calls       []Call
	Capped      bool // MaxInsns stopped the run early
}

// Contains reports whether addr lies inside the decoded buffer.
func (r *Result) Contains(addr uint64) bool {
	return addr >= r.Base && addr-r.Base < uint64(r.Size)
}

// Disassemble decodes data according to opts.Mode.
func Disassemble(data []byte, opts Options) (*Result, error) {
	if len(data) == 0 {
		return nil, ErrEmptyBuffer
	}
	w := newWalker(data, opts)
	switch opts.Mode {
	case ModeLinear:
		w.linear()
	case ModeRecursive:
		if !w.res.Contains(opts.Entry) {
			return nil, fmt.Errorf("%w: 0x%x not in [0x%x, 0x%x)", ErrEntryOutOfRange,
				opts.Entry, opts.Base, opts.Base+uint64(len(data)))
		}
		w.recursive(opts.Entry)
	default:
		return nil, fmt.Errorf("%w %d", ErrUnknownMode, opts.Mode)
	}
	w.log.Debug("disassembled", "mode", opts.Mode, "insts", len(w.res.Insts),
		"subroutines", len(w.res.Subroutines), "unresolved", len(w.res.Unresolved),
		"overlaps", len(w.res.Overlaps))
	return w.res, nil
}

type workItem struct {
	addr   uint64
	origin uint64
}

type walker struct {
	data []byte
	opts Options
	log  *log.Logger
	res  *Result

	decoded map[uint64]bool
	queued  map[uint64]bool
	subs    map[uint64]bool
	claim   []int // per byte, index+1 of the first instruction covering it
	queue   []workItem
}

func newWalker(data []byte, opts Options) *walker {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &walker{
		data: data,
		opts: opts,
		log:  logger,
		res: &Result{
			Mode: opts.Mode,
			Base: opts.Base,
			Size: len(data),
		},
		decoded: make(map[uint64]bool),
		queued:  make(map[uint64]bool),
		subs:    make(map[uint64]bool),
		claim:   make([]int, len(data)),
	}
}

func (w *walker) full() bool {
	if w.opts.MaxInsns > 0 && len(w.res.Insts) >= w.opts.MaxInsns {
		if !w.res.Capped {
			w.log.Warn("instruction cap reached", "max", w.opts.MaxInsns)
		}
		w.res.Capped = true
		return true
	}
	return false
}

func (w *walker) linear() {
	for off := 0; off < len(w.data) && !w.full(); {
		inst := w.decodeAt(w.opts.Base+uint64(off), w.opts.Base)
		w.follow(inst, false)
		off += inst.Len
	}
}

func (w *walker) recursive(entry uint64) {
	w.addSubroutine(entry)
	w.push(entry, entry)
	for len(w.queue) > 0 && !w.full() {
		item := w.queue[0]
		w.queue = w.queue[1:]
		w.block(item)
	}
}

// block decodes sequentially from item.addr until a terminator, the end of
// the buffer, or an address that is already decoded.
func (w *walker) block(item workItem) {
	addr := item.addr
	for w.res.Contains(addr) && !w.decoded[addr] && !w.full() {
		inst := w.decodeAt(addr, item.origin)
		w.follow(inst, true)
		if inst.IsTerminator() {
			return
		}
		addr = inst.End()
	}
}

func (w *walker) decodeAt(addr, origin uint64) *Inst {
	off := int(addr - w.opts.Base)
	end := min(off+x64.MaxLen, len(w.data))
	dec, err := x64.Decode(w.data[off:end], addr)
	if err != nil {
		w.log.Debug("decode", "addr", fmt.Sprintf("0x%x", addr), "err", err)
	}

	w.res.Insts = append(w.res.Insts, Inst{Inst: dec, Origin: origin})
	idx := len(w.res.Insts)
	w.decoded[addr] = true

	reported := false
	for b := off; b < off+dec.Len; b++ {
		if owner := w.claim[b]; owner != 0 {
			if !reported {
				other := w.res.Insts[owner-1].Addr
				w.res.Overlaps = append(w.res.Overlaps, Overlap{Addr: addr, Len: dec.Len, Other: other})
				w.log.Debug("overlapping decode", "addr", fmt.Sprintf("0x%x", addr), "other", fmt.Sprintf("0x%x", other))
				reported = true
			}
			continue
		}
		w.claim[b] = idx
	}
	return &w.res.Insts[idx-1]
}

// follow records the direct target of inst and, when enqueue is set,
// schedules it for traversal.
func (w *walker) follow(inst *Inst, enqueue bool) {
	if !inst.Direct {
		return
	}
	dst, wrap := inst.Dest()
	if wrap != x64.WrapNone || !w.res.Contains(dst) {
		u := Unresolved{From: inst.Addr, Target: dst, Wrap: wrap, Flow: inst.Flow}
		w.res.Unresolved = append(w.res.Unresolved, u)
		w.log.Debug("unresolved target", "from", fmt.Sprintf("0x%x", inst.Addr), "target", u.TargetHex())
		return
	}
	origin := inst.Origin
	if inst.Flow == x64.FlowCall {
		origin = dst
		w.addSubroutine(dst)
		w.res.Calls = append(w.res.Calls, Call{Caller: inst.Origin, Site: inst.Addr, Callee: dst})
	}
	if enqueue {
		w.push(dst, origin)
	}
}

func (w *walker) push(addr, origin uint64) {
	if w.decoded[addr] || w.queued[addr] {
		return
	}
	w.queued[addr] = true
	w.queue = append(w.queue, workItem{addr: addr, origin: origin})
	w.log.Debug("queued", "addr", fmt.Sprintf("0x%x", addr), "origin", fmt.Sprintf("0x%x", origin))
}

func (w *walker) addSubroutine(addr uint64) {
	if w.subs[addr] {
		return
	}
	w.subs[addr] = true
	w.res.Subroutines = append(w.res.Subroutines, addr)
}
