package cmd

import (
	"github.com/spf13/cobra"

	"x64dis/internal/elfx"
)

func newSymbolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "symbols <elf>",
		Short: "List function symbols in nm format",
		Long: `List the function and untyped symbols of an ELF file, one per line, as a
16 digit value, an nm type letter and the name. Undefined symbols have a
blank value.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			im, err := elfx.Open(args[0])
			if err != nil {
				return err
			}
			defer im.Close()
			return elfx.WriteSymbols(cmd.OutOrStdout(), im.CodeSymbols())
		},
	}
}
