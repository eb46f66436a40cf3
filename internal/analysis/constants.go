// Package analysis turns a flat x86-64 instruction stream into labelled
// basic blocks. It resolves branch and call targets, annotates signed
// immediates and RIP-relative references, and overlays symbol names.
package analysis

const (
	// ScanLabelPrefix names blocks found while scanning in address order.
	ScanLabelPrefix = "L"

	// XrefLabelPrefix names blocks that only a branch or call revealed.
	XrefLabelPrefix = "LL"
)
