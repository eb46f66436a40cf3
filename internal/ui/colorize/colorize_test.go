package colorize

import (
	"strings"
	"testing"
)

const sample = "L0:\n" +
	"   0x0:     74 02                   je    $rip+0x2             # LL0\n" +
	"   0x2:     48 89 d8                mov   %rbx, %rax"

func TestListingNoColor(t *testing.T) {
	t.Setenv(EnvNoColor, "1")
	if got := Listing(sample); got != sample {
		t.Errorf("listing changed with colour disabled:\n%s", got)
	}
	if Enabled() {
		t.Error("Enabled with X64DIS_NO_COLOR set")
	}
}

func TestListingKeepsText(t *testing.T) {
	t.Setenv(EnvNoColor, "")
	got := Listing(sample)
	if plain := StripANSI(got); plain != sample {
		t.Errorf("stripped listing differs:\n%q\nwant\n%q", plain, sample)
	}
}

func TestLineLabel(t *testing.T) {
	t.Setenv(EnvNoColor, "")
	got := Line("main:")
	if StripANSI(got) != "main:" {
		t.Errorf("label line = %q", got)
	}
}

func TestStripANSI(t *testing.T) {
	in := "\x1b[38;2;79;79;79m0x10\x1b[0m nop"
	if got := StripANSI(in); got != "0x10 nop" {
		t.Errorf("StripANSI = %q", got)
	}
	if !strings.Contains(StripANSI("plain"), "plain") {
		t.Error("plain text lost")
	}
}
