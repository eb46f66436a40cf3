package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime/pprof"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"x64dis/internal/config"
	"x64dis/internal/logging"
	xlog "x64dis/internal/x64dis/log"
)

// session carries what PersistentPreRunE prepared for the subcommands.
type session struct {
	cfg    *config.Config
	logger *logging.LoggerCloser
}

func newRootCmd() *cobra.Command {
	s := &session{}

	rootCmd := &cobra.Command{
		Use:   "x64dis",
		Short: "x86-64 disassembler with control-flow labels",
		Long: `x64dis disassembles x86-64 machine code from raw blobs, hex bytes or
ELF executables. It can walk the code linearly or follow control flow from an
entry point, and labels every block and branch target it finds.`,
		Example: `
# Decode hex bytes given on the command line
x64dis decode 48 89 d8 c3

# Follow control flow from main and print the block graph
x64dis cfg --symbol main ./a.out | dot -Tsvg > a.svg

# Browse the blocks of a binary
x64dis tui ./a.out
  `,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			cfg.Debug = cfg.Debug || logging.IsDebug()
			s.cfg = cfg

			xlog.Setup("", cfg.Debug)
			s.logger = logging.NewLogger()
			if cfg.Debug {
				s.logger.SetLevel(log.DebugLevel)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if s.logger != nil {
				return s.logger.Close()
			}
			return nil
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "JSON configuration file")
	pf.BoolP("debug", "d", false, "Debug")
	pf.StringP("mode", "m", "linear", "Traversal mode: linear or recursive")
	pf.StringP("format", "f", "text", "Output format: text, graph, callgraph, json or summary")
	pf.String("base", "", "Load address of a raw blob")
	pf.String("entry", "", "Start address of recursive traversal")
	pf.String("symbol", "", "Start recursive traversal at this symbol")
	pf.Bool("no-color", false, "Disable colour")
	pf.Bool("demangle", false, "Demangle C++ symbol names")
	pf.Int("max-insns", 0, "Stop after this many instructions (0 for no limit)")
	pf.Bool("verify", false, "Cross-check instruction lengths against a full x86-64 decoder")
	pf.String("cpuprofile", "", "Write CPU profile to file")
	pf.String("memprofile", "", "Write memory profile to file")

	rootCmd.AddCommand(
		newDecodeCmd(s),
		newCFGCmd(s),
		newSymbolsCmd(),
		newSchemaCmd(),
		newTUICmd(s),
	)
	return rootCmd
}

// resolveConfig layers defaults, the config file, the environment and
// flags that were set explicitly.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	f := cmd.Flags()
	path, _ := f.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if f.Changed("mode") {
		cfg.Mode, _ = f.GetString("mode")
	}
	if f.Changed("format") {
		cfg.Format, _ = f.GetString("format")
	}
	if f.Changed("base") {
		cfg.Base, _ = f.GetString("base")
	}
	if f.Changed("entry") {
		cfg.Entry, _ = f.GetString("entry")
	}
	if f.Changed("symbol") {
		cfg.Symbol, _ = f.GetString("symbol")
	}
	if noColor, _ := f.GetBool("no-color"); noColor {
		cfg.Color = false
	}
	if f.Changed("demangle") {
		cfg.Demangle, _ = f.GetBool("demangle")
	}
	if f.Changed("max-insns") {
		cfg.MaxInsns, _ = f.GetInt("max-insns")
	}
	if f.Changed("verify") {
		cfg.Verify, _ = f.GetBool("verify")
	}
	if f.Changed("debug") {
		cfg.Debug, _ = f.GetBool("debug")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// startProfiles starts the CPU profile and returns a function that stops
// it and writes the heap profile.
func startProfiles(cmd *cobra.Command) (func(), error) {
	cpuprofile, _ := cmd.Flags().GetString("cpuprofile")
	memprofile, _ := cmd.Flags().GetString("memprofile")

	var cpu *os.File
	if cpuprofile != "" {
		f, err := os.Create(cpuprofile)
		if err != nil {
			return nil, fmt.Errorf("could not create CPU profile: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return nil, fmt.Errorf("could not start CPU profile: %w", err)
		}
		cpu = f
	}

	return func() {
		if cpu != nil {
			pprof.StopCPUProfile()
			cpu.Close()
		}
		if memprofile == "" {
			return
		}
		f, err := os.Create(memprofile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "could not create memory profile: %v\n", err)
			return
		}
		defer f.Close()
		if err := pprof.WriteHeapProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "could not write memory profile: %v\n", err)
		}
	}, nil
}

func Execute() {
	rootCmd := newRootCmd()

	// Piped output skips fang so listings are not run through its renderer.
	if !term.IsTerminal(os.Stdout.Fd()) {
		if err := rootCmd.Execute(); err != nil {
			os.Exit(1)
		}
		return
	}

	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}
