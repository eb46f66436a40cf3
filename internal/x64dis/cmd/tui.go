package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/v2/list"
	"github.com/charmbracelet/bubbles/v2/spinner"
	"github.com/charmbracelet/bubbles/v2/viewport"
	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"x64dis/internal/analysis"
	"x64dis/internal/render"
	"x64dis/internal/ui/colorize"
	"x64dis/internal/x64dis/styles"
)

var ErrNotTerminal = errors.New("tui needs a terminal; use decode for piped output")

func newTUICmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tui [file | hex bytes...]",
		Short: "Browse labelled blocks interactively",
		Long: `Disassemble the input and browse it block by block. The block list can be
filtered; Enter shows the selected block's listing and Tab cycles between the
block list, the listing and the run summary.`,
		Example: `
# Browse an executable from its entry point
x64dis tui -m recursive ./a.out
  `,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(os.Stdout.Fd()) {
				return ErrNotTerminal
			}
			forceHex, _ := cmd.Flags().GetBool("hex")
			stdin := cmd.InOrStdin()
			load := func() (*analysisRun, error) {
				src, err := loadSource(s.cfg, args, stdin, forceHex)
				if err != nil {
					return nil, err
				}
				return analyze(s.cfg, src, s.logger.Logger)
			}

			program := tea.NewProgram(
				newModel(inputName(args), load),
				tea.WithAltScreen(),
				tea.WithContext(cmd.Context()),
			)
			if _, err := program.Run(); err != nil {
				slog.Error("TUI run error", "error", err)
				return fmt.Errorf("TUI error: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolP("hex", "x", false, "Treat every argument as hex bytes")
	return cmd
}

func inputName(args []string) string {
	switch len(args) {
	case 0:
		return "<stdin>"
	case 1:
		return args[0]
	}
	return "<args>"
}

type viewMode int

const (
	viewBlocks viewMode = iota
	viewListing
	viewSummary
)

type blockItem struct {
	label string
	start uint64
	count int
	index int
}

func (i blockItem) Title() string       { return fmt.Sprintf("%x  %s", i.start, i.label) }
func (i blockItem) Description() string { return "" }
func (i blockItem) FilterValue() string { return fmt.Sprintf("%x %s", i.start, i.label) }

type itemDelegate struct{}

func (d itemDelegate) Height() int                               { return 1 }
func (d itemDelegate) Spacing() int                              { return 0 }
func (d itemDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d itemDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	i, ok := listItem.(blockItem)
	if !ok {
		return
	}

	indicator := " "
	addrStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	if index == m.Index() {
		indicator = ">"
		addrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))
	}
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(styles.Label))
	countStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(styles.Bytes))

	fmt.Fprintf(w, " %s  %s  %s %s",
		indicator,
		addrStyle.Render(fmt.Sprintf("%8x", i.start)),
		labelStyle.Render(i.label),
		countStyle.Render(fmt.Sprintf("(%d)", i.count)))
}

type loadedMsg struct {
	run *analysisRun
	err error
}

type model struct {
	blocks  list.Model
	listing viewport.Model
	summary viewport.Model
	spinner spinner.Model
	mode    viewMode
	name    string
	load    func() (*analysisRun, error)
	run     *analysisRun
	err     error
	loading bool
	width   int
	height  int
}

func newModel(name string, load func() (*analysisRun, error)) model {
	blocks := list.New([]list.Item{}, itemDelegate{}, 80, 24)
	blocks.SetShowStatusBar(false)
	blocks.SetFilteringEnabled(true)
	blocks.Title = "Blocks"
	blocks.Styles.Title = lipgloss.NewStyle().
		Foreground(lipgloss.Color("99")).
		MarginLeft(2)
	blocks.SetShowHelp(true)

	listing := viewport.New()
	listing.SetWidth(80)
	listing.SetHeight(24)

	summary := viewport.New()
	summary.SetWidth(80)
	summary.SetHeight(24)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))

	return model{
		blocks:  blocks,
		listing: listing,
		summary: summary,
		spinner: s,
		mode:    viewBlocks,
		name:    name,
		load:    load,
		loading: true,
		width:   80,
		height:  24,
	}
}

func (m model) loadCmd() tea.Msg {
	run, err := m.load()
	return loadedMsg{run: run, err: err}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.loadCmd, m.spinner.Tick)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case loadedMsg:
		m.loading = false
		m.err = msg.err
		if msg.err == nil {
			m.run = msg.run
			m.setRun()
		}
		return m, nil

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		if msg.Width != m.width || msg.Height != m.height {
			m.width = msg.Width
			m.height = msg.Height
			m.blocks.SetWidth(msg.Width)
			m.blocks.SetHeight(msg.Height - 2)
			m.listing.SetWidth(msg.Width)
			m.listing.SetHeight(msg.Height - 2)
			m.summary.SetWidth(msg.Width)
			m.summary.SetHeight(msg.Height - 2)
			if m.run != nil {
				m.setSummary()
			}
		}

	case tea.KeyMsg:
		key := msg.String()
		if key == "q" && m.mode == viewBlocks && m.blocks.FilterState() == list.Filtering {
			break
		}
		switch key {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
		if m.mode == viewBlocks && m.blocks.FilterState() == list.Filtering {
			break
		}
		switch key {
		case "enter":
			if m.mode == viewBlocks {
				m.showSelected()
			}
			return m, nil
		case "b", "esc":
			m.mode = viewBlocks
			return m, nil
		case "s":
			if m.run != nil {
				m.mode = viewSummary
			}
			return m, nil
		case "tab":
			if m.run != nil {
				m.mode = (m.mode + 1) % 3
				if m.mode == viewListing {
					m.showSelected()
				}
			}
			return m, nil
		case "shift+tab":
			if m.run != nil {
				m.mode = (m.mode + 2) % 3
				if m.mode == viewListing {
					m.showSelected()
				}
			}
			return m, nil
		}
	}

	switch m.mode {
	case viewListing:
		m.listing, cmd = m.listing.Update(msg)
	case viewSummary:
		m.summary, cmd = m.summary.Update(msg)
	default:
		m.blocks, cmd = m.blocks.Update(msg)
	}
	return m, cmd
}

func (m *model) setRun() {
	items := make([]list.Item, 0, len(m.run.Graph.Blocks))
	for i, b := range m.run.Graph.Blocks {
		items = append(items, blockItem{label: b.Label, start: b.Start, count: len(b.Insts), index: i})
	}
	m.blocks.SetItems(items)
	m.blocks.Title = fmt.Sprintf("Blocks (%d total)", len(items))
	m.setSummary()
}

func (m *model) setSummary() {
	width := m.width
	if width == 0 {
		width = 80
	}
	md := render.Summary(m.name, m.run.Result, m.run.Graph, m.run.Findings)
	m.summary.SetContent(strings.TrimSuffix(styles.RenderMarkdown(md, width-2), "\n"))
	m.summary.GotoTop()
}

// showSelected fills the listing with the selected block, its successors
// appended as a trailer.
func (m *model) showSelected() {
	item, ok := m.blocks.SelectedItem().(blockItem)
	if !ok || m.run == nil {
		return
	}
	blk := m.run.Graph.Blocks[item.index]

	var b strings.Builder
	render.Listing(&b, blk.Insts)
	if succ := m.run.Graph.Successors(blk.Label); len(succ) > 0 {
		b.WriteString("\n")
		for _, e := range succ {
			fmt.Fprintf(&b, "   -> %s (%s)\n", e.To, edgeName(e))
		}
	}
	m.listing.SetContent(colorize.Listing(strings.TrimSuffix(b.String(), "\n")))
	m.listing.GotoTop()
	m.mode = viewListing
}

func edgeName(e analysis.Edge) string {
	if e.Mnemonic != "" {
		return e.Mnemonic
	}
	return e.Kind.String()
}

func (m model) View() string {
	var content string
	switch {
	case m.loading:
		content = fmt.Sprintf("\n  %s Disassembling %s...", m.spinner.View(), m.name)
	case m.err != nil:
		content = fmt.Sprintf("\n  error: %v", m.err)
	case m.mode == viewListing:
		content = m.listing.View()
	case m.mode == viewSummary:
		content = m.summary.View()
	default:
		content = m.blocks.View()
	}

	var menu string
	switch {
	case m.run == nil:
		menu = " Q: quit "
	case m.mode == viewBlocks:
		menu = " Enter: view block • /: filter • S: summary • Tab: cycle • Q: quit "
	default:
		menu = " B: blocks • S: summary • Tab: cycle • Q: quit "
	}

	menuStyle := lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Foreground(lipgloss.Color("252")).
		Padding(0, 1).
		Width(m.width)

	return content + "\n" + menuStyle.Render(menu)
}
