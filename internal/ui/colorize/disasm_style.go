package colorize

import (
	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/styles"

	xstyles "x64dis/internal/x64dis/styles"
)

// DisasmDark maps the GAS lexer's tokens onto the listing palette.
var DisasmDark = styles.Register(chroma.MustNewStyle("x64dis-dark", chroma.StyleEntries{
	chroma.Text:       xstyles.Mnemonic,
	chroma.Background: "bg:#1e1e1e",
	chroma.Comment:    xstyles.Note,

	chroma.Keyword:       xstyles.Mnemonic,
	chroma.KeywordPseudo: xstyles.Mnemonic,
	chroma.NameFunction:  xstyles.Mnemonic, // gas tokenises mnemonics as functions
	chroma.Name:          xstyles.Register,
	chroma.NameBuiltin:   xstyles.Register,
	chroma.NameVariable:  xstyles.Register,
	chroma.NameLabel:     xstyles.Label,

	chroma.LiteralNumber:        xstyles.Number,
	chroma.LiteralNumberHex:     xstyles.Number,
	chroma.LiteralNumberInteger: xstyles.Number,

	chroma.Operator:    xstyles.Mnemonic,
	chroma.Punctuation: xstyles.Mnemonic,
}))
