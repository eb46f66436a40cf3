package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/x/term"

	"x64dis/internal/analysis"
	"x64dis/internal/config"
	"x64dis/internal/detectors"
	"x64dis/internal/disasm"
	"x64dis/internal/elfx"
	"x64dis/internal/input"
	"x64dis/internal/render"
	"x64dis/internal/ui/colorize"
	"x64dis/internal/x64dis/styles"
)

var ErrSymbolNotFound = errors.New("symbol not found")

// analysisRun is one disassembly of one input, resolved and checked.
type analysisRun struct {
	Name     string
	Data     []byte
	Result   *disasm.Result
	Stream   disasm.Stream
	Graph    *analysis.Graph
	Findings []detectors.Finding
}

// source is the code region to disassemble and what is known about it.
type source struct {
	name     string
	data     []byte
	base     uint64
	entry    uint64
	sections []elfx.Section
	symbols  []elfx.Symbol
}

// loadSource reads args as a file, hex words or, when empty, stdin. A
// single argument naming an existing file is a file; anything else is hex.
func loadSource(cfg *config.Config, args []string, stdin io.Reader, forceHex bool) (*source, error) {
	base, err := cfg.BaseAddr()
	if err != nil {
		return nil, err
	}

	if forceHex || len(args) > 1 || (len(args) == 1 && !isFile(args[0])) {
		data, err := input.ParseHex(args)
		if err != nil {
			return nil, err
		}
		return rawSource(cfg, "<args>", data, base)
	}

	path := ""
	if len(args) == 1 {
		path = args[0]
	}
	src, err := input.Load(path, stdin)
	if err != nil {
		return nil, err
	}
	if src.ELF {
		return elfSource(cfg, src.Name)
	}
	return rawSource(cfg, src.Name, src.Data, base)
}

func isFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

func rawSource(cfg *config.Config, name string, data []byte, base uint64) (*source, error) {
	if cfg.Symbol != "" {
		return nil, fmt.Errorf("%w: %s has no symbol table", ErrSymbolNotFound, name)
	}
	entry, ok, err := cfg.EntryAddr()
	if err != nil {
		return nil, err
	}
	if !ok {
		entry = base
	}
	return &source{name: name, data: data, base: base, entry: entry}, nil
}

// elfSource copies .text out of the image so the mapping can be released
// before rendering.
func elfSource(cfg *config.Config, path string) (*source, error) {
	im, err := elfx.Open(path)
	if err != nil {
		return nil, err
	}
	defer im.Close()

	text, err := im.TextBytes()
	if err != nil {
		return nil, err
	}
	src := &source{
		name:     path,
		data:     bytes.Clone(text),
		base:     im.Text.VA,
		entry:    im.Text.VA,
		sections: im.LoadedSections(),
		symbols:  im.Symbols,
	}

	entry, ok, err := cfg.EntryAddr()
	switch {
	case err != nil:
		return nil, err
	case ok:
		src.entry = entry
	case cfg.Symbol != "":
		sym, found := im.Lookup(cfg.Symbol)
		if !found {
			return nil, fmt.Errorf("%w: %s in %s", ErrSymbolNotFound, cfg.Symbol, path)
		}
		src.entry = sym.Value
	default:
		if e, err := im.EntryInText(); err == nil {
			src.entry = e
		}
	}
	return src, nil
}

// analyze disassembles src, resolves labels and runs the detectors.
func analyze(cfg *config.Config, src *source, logger *log.Logger) (*analysisRun, error) {
	mode, err := cfg.TraversalMode()
	if err != nil {
		return nil, err
	}
	res, err := disasm.Disassemble(src.data, disasm.Options{
		Base:     src.base,
		Mode:     mode,
		Entry:    src.entry,
		MaxInsns: cfg.MaxInsns,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", src.name, err)
	}

	stream := analysis.ResolveResult(res,
		analysis.WithSections(src.sections),
		analysis.WithSymbols(src.symbols),
		analysis.WithDemangle(cfg.Demangle),
		analysis.WithLogger(logger),
	)
	if cfg.Demangle {
		names, hits := analysis.DemangleCacheStats()
		logger.Debug("demangle cache", "names", names, "hits", hits)
	}
	findings := detectors.Run(res, src.data, detectors.Default(cfg.Verify)...)
	for _, f := range findings {
		logger.Debug(f.Comment, "addr", fmt.Sprintf("0x%x", f.Addr), "kind", f.Kind)
	}

	return &analysisRun{
		Name:     src.name,
		Data:     src.data,
		Result:   res,
		Stream:   stream,
		Graph:    analysis.BuildGraph(stream),
		Findings: findings,
	}, nil
}

// isTerminal reports whether w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(f.Fd())
}

// writeRun renders run in cfg.Format. Text listings and summaries are
// coloured only when color is set.
func writeRun(w io.Writer, cfg *config.Config, run *analysisRun, color bool) error {
	switch cfg.Format {
	case config.FormatGraph:
		return render.DOT(w, run.Graph, run.Name)
	case config.FormatCallGraph:
		return render.CallGraphDOT(w, run.Result, run.Stream, "callgraph")
	case config.FormatJSON:
		return render.JSON(w, run.Result, run.Stream, run.Findings)
	case config.FormatSummary:
		md := render.Summary(run.Name, run.Result, run.Graph, run.Findings)
		if color {
			md = styles.RenderMarkdown(md, 100)
		}
		_, err := io.WriteString(w, md)
		return err
	}

	var b strings.Builder
	if err := render.Listing(&b, run.Stream); err != nil {
		return err
	}
	out := b.String()
	if color {
		out = colorize.Listing(out)
	}
	_, err := io.WriteString(w, out)
	return err
}
