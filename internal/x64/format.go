package x64

import "fmt"

// memory renders a base+displacement operand as [-]0xN(%base).
func memory(disp int64, base string) string {
	sign, mag := split(disp)
	if sign == "+" {
		sign = ""
	}
	return fmt.Sprintf("%s0x%x(%%%s)", sign, mag, base)
}

// relative renders a branch offset as $rip+0xN or $rip-0xN.
func relative(off int64) string {
	sign, mag := split(off)
	return fmt.Sprintf("$rip%s0x%x", sign, mag)
}

// SignedHex renders v with an explicit minus sign and a 0x-prefixed
// magnitude, e.g. -0x1a. Non-negative values carry no sign.
func SignedHex(v int64) string {
	sign, mag := split(v)
	if sign == "+" {
		sign = ""
	}
	return fmt.Sprintf("%s0x%x", sign, mag)
}

func split(v int64) (string, uint64) {
	if v < 0 {
		return "-", uint64(-v)
	}
	return "+", uint64(v)
}
