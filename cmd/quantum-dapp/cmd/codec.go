package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quantumauth-io/quantum-dapp-core/internal/abicodec"
)

func newSelectorCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "selector <name> [type...]",
		Short:   "Print the canonical signature and method id of a function",
		Example: "  quantum-dapp selector transfer address uint256",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			iface := abicodec.Interface{Name: args[0], Type: abicodec.EntryFunction}
			for _, t := range args[1:] {
				// accept "address,uint256" as well as separate arguments
				for _, part := range strings.Split(t, ",") {
					if part = strings.TrimSpace(part); part != "" {
						iface.Inputs = append(iface.Inputs, abicodec.Param{Type: part})
					}
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", abicodec.MethodSignature(iface), abicodec.MethodID(iface))
			return nil
		},
	}
}

func newWordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "word <0x-hex>",
		Short: "Left-pad a hex value to one 256-bit ABI word",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := abicodec.Hex256(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), w)
			return nil
		},
	}
}
