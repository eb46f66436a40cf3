package x64

// Encode rebuilds the machine code from the decoded fields. For any
// modelled or unknown record it reproduces Raw byte for byte. Truncated
// records have no decoded fields, so Raw is returned as is.
func (i Inst) Encode() []byte {
	if i.Status == StatusTruncated {
		return append([]byte(nil), i.Raw...)
	}

	out := make([]byte, 0, MaxLen)
	if i.HasREX {
		out = append(out, i.REX.Byte())
	}
	if i.Escape {
		out = append(out, 0x0F)
	}
	out = append(out, i.Opcode)
	if i.HasModRM {
		out = append(out, i.ModRM.Byte())
	}
	out = appendLE(out, i.Value, i.DispSize)
	out = appendLE(out, i.Value, i.ImmSize)
	return out
}

func appendLE(out []byte, v int64, size int) []byte {
	u := uint64(v)
	for n := 0; n < size; n++ {
		out = append(out, byte(u>>(8*n)))
	}
	return out
}
