// Package colorize highlights x86-64 listings for the terminal.
package colorize

import (
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss/v2"

	xstyles "x64dis/internal/x64dis/styles"
)

// EnvNoColor disables colouring when set to any value.
const EnvNoColor = "X64DIS_NO_COLOR"

var (
	addrStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color(xstyles.Address))
	bytesStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(xstyles.Bytes))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(xstyles.Label)).Bold(true)
	noteStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color(xstyles.Note)).Italic(true)
)

// Enabled reports whether colouring is allowed by the environment.
func Enabled() bool {
	return os.Getenv(EnvNoColor) == ""
}

// assemblyLexer returns the AT&T syntax lexer, falling back to nasm.
func assemblyLexer() chroma.Lexer {
	for _, name := range []string{"gas", "GAS", "nasm"} {
		if lexer := lexers.Get(name); lexer != nil {
			return lexer
		}
	}
	return nil
}

func disasmStyle() *chroma.Style {
	for _, name := range []string{"x64dis-dark", "dracula", "monokai"} {
		if style := styles.Get(name); style != nil {
			return style
		}
	}
	return styles.Fallback
}

func terminalFormatter() chroma.Formatter {
	for _, name := range []string{"terminal16m", "terminal256"} {
		if formatter := formatters.Get(name); formatter != nil {
			return formatter
		}
	}
	return formatters.Fallback
}

// Assembly highlights mnemonic and operand text with chroma. On any
// lexer or formatter failure the input is returned unchanged.
func Assembly(code string) string {
	if !Enabled() || code == "" {
		return code
	}
	lexer := assemblyLexer()
	if lexer == nil {
		return code
	}
	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}
	var buf strings.Builder
	if err := terminalFormatter().Format(&buf, disasmStyle(), iterator); err != nil {
		return code
	}
	out := buf.String()
	// Lexers may append a newline the input did not have.
	if strings.Count(out, "\n") > strings.Count(code, "\n") {
		if i := strings.LastIndex(out, "\n"); i >= 0 {
			out = out[:i] + out[i+1:]
		}
	}
	return out
}

// Listing colours a text listing line by line: label lines in gold, the
// address and byte columns in grey, instruction text through chroma and
// notes in green.
func Listing(text string) string {
	if !Enabled() {
		return text
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = Line(line)
	}
	return strings.Join(lines, "\n")
}

// Line colours one listing line.
func Line(line string) string {
	if !Enabled() || line == "" {
		return line
	}
	if !strings.HasPrefix(line, " ") && strings.HasSuffix(line, ":") {
		return labelStyle.Render(line)
	}

	// "   0xADDR:<pad> <bytes>    <mnemonic operands> # note"
	colon := strings.Index(line, ":")
	if colon < 0 || !strings.HasPrefix(strings.TrimSpace(line), "0x") {
		return Assembly(line)
	}
	var b strings.Builder
	b.WriteString(addrStyle.Render(line[:colon+1]))

	rest := line[colon+1:]
	trimmed := strings.TrimLeft(rest, " ")
	b.WriteString(rest[:len(rest)-len(trimmed)])

	hexEnd := strings.Index(trimmed, "    ")
	if hexEnd < 0 {
		b.WriteString(bytesStyle.Render(trimmed))
		return b.String()
	}
	b.WriteString(bytesStyle.Render(trimmed[:hexEnd]))
	asm := trimmed[hexEnd:]

	note := ""
	if n := strings.Index(asm, "# "); n >= 0 {
		asm, note = asm[:n], asm[n:]
	}
	body := strings.TrimLeft(asm, " ")
	b.WriteString(asm[:len(asm)-len(body)])
	b.WriteString(Assembly(body))
	if note != "" {
		b.WriteString(noteStyle.Render(note))
	}
	return b.String()
}

// StripANSI removes SGR escape sequences.
func StripANSI(s string) string {
	var result strings.Builder
	inEscape := false
	for _, r := range s {
		switch {
		case r == '\x1b':
			inEscape = true
		case inEscape:
			if r == 'm' {
				inEscape = false
			}
		default:
			result.WriteRune(r)
		}
	}
	return result.String()
}
