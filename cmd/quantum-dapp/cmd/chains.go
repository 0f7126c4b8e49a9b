package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/quantumauth-io/quantum-dapp-core/internal/provider"
)

func newChainsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chains",
		Short: "List the configured chains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.app(cmd)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tHEX\tNAME\tSHORT\tNATIVE\tBLOCK TIME")
			for _, c := range a.registry.List() {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", c.ID, c.IDHex(), c.Name, c.ShortName, c.Native.Symbol, c.BlockTime)
			}
			return w.Flush()
		},
	}
}

func newUseCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "use <injected|relay>",
		Short:     "Remember which wallet transport to try first",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(provider.KindInjected), string(provider.KindRelay)},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ok := provider.ParseKind(args[0])
			if !ok {
				return fmt.Errorf("unknown transport %q", args[0])
			}
			a, err := opts.app(cmd)
			if err != nil {
				return err
			}
			if err := provider.Remember(cmd.Context(), a.store, kind); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "preferred transport: %s\n", kind)
			return nil
		},
	}
}
