package cmd

import (
	"github.com/spf13/cobra"

	"x64dis/internal/config"
	"x64dis/internal/disasm"
)

func newDecodeCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode [file | hex bytes...]",
		Short: "Disassemble a file, hex bytes or stdin",
		Long: `Disassemble x86-64 code. A single argument naming a file is read as an ELF
executable (its .text section) or as a raw blob, gzip and zip wrappers
included. Other arguments are hex bytes. With no arguments raw bytes are read
from stdin.`,
		Example: `
# Decode hex bytes
x64dis decode 48 89 d8

# Linear listing of an executable's .text
x64dis decode ./a.out

# Follow control flow from a raw blob loaded at 0x1000
x64dis decode -m recursive --base 0x1000 code.bin
  `,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(cmd, s, args)
		},
	}
	cmd.Flags().BoolP("hex", "x", false, "Treat every argument as hex bytes")
	return cmd
}

func newCFGCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cfg [file | hex bytes...]",
		Short: "Print the block graph in Graphviz syntax",
		Long: `Follow control flow from the entry point and print the labelled block graph
as a Graphviz digraph. Mode defaults to recursive and format to graph; pass
--format callgraph for the subroutine call graph instead.`,
		Example: `
# Block graph of main
x64dis cfg --symbol main ./a.out | dot -Tpng > main.png
  `,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("mode") {
				s.cfg.Mode = disasm.ModeRecursive.String()
			}
			if !cmd.Flags().Changed("format") {
				s.cfg.Format = config.FormatGraph
			}
			return runDecode(cmd, s, args)
		},
	}
	cmd.Flags().BoolP("hex", "x", false, "Treat every argument as hex bytes")
	return cmd
}

func runDecode(cmd *cobra.Command, s *session, args []string) error {
	stop, err := startProfiles(cmd)
	if err != nil {
		return err
	}
	defer stop()

	forceHex, _ := cmd.Flags().GetBool("hex")
	src, err := loadSource(s.cfg, args, cmd.InOrStdin(), forceHex)
	if err != nil {
		return err
	}
	run, err := analyze(s.cfg, src, s.logger.Logger)
	if err != nil {
		return err
	}
	if run.Result.Capped {
		s.logger.Warn("instruction cap reached, output is partial", "max", s.cfg.MaxInsns)
	}

	out := cmd.OutOrStdout()
	return writeRun(out, s.cfg, run, s.cfg.Color && isTerminal(out))
}
