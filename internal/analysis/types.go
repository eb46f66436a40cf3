package analysis

import "x64dis/internal/disasm"

// EdgeKind classifies a block graph edge.
type EdgeKind int

const (
	EdgeJump EdgeKind = iota
	EdgeCond
	EdgeCall
	EdgeFall
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeJump:
		return "jump"
	case EdgeCond:
		return "cond"
	case EdgeCall:
		return "call"
	}
	return "fall"
}

// Edge connects two blocks by label. Mnemonic is empty for fallthrough.
type Edge struct {
	From, To string
	Kind     EdgeKind
	Mnemonic string
}

// Block is a labelled run of instructions.
type Block struct {
	Label  string
	Start  uint64
	End    uint64 // address just past the last instruction
	Origin uint64
	Insts  disasm.Stream
}

// Graph is the basic block graph of a resolved stream.
type Graph struct {
	Blocks []Block
	Edges  []Edge
	index  map[string]int
}
