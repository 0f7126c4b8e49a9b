package cmd

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/quantumauth-io/quantum-dapp-core/internal/chainclient"
	"github.com/quantumauth-io/quantum-dapp-core/internal/chains"
)

func newConnectCommand(opts *rootOptions) *cobra.Command {
	var request bool

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect to a wallet and print its chain and accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.app(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			p, kind, err := a.connect(ctx, opts.only())
			if err != nil {
				return err
			}

			id, err := chainclient.GetChainID(ctx, p).Unwrap()
			if err != nil {
				return err
			}
			accounts := chainclient.GetAccounts
			if request {
				accounts = chainclient.RequestAccounts
			}
			addrs, err := accounts(ctx, p).Unwrap()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "transport: %s\n", kind)
			fmt.Fprintf(out, "chain:     %s\n", describeChain(a.registry, id))
			fmt.Fprintf(out, "accounts:  %s\n", joinAddresses(addrs))
			return nil
		},
	}
	cmd.Flags().BoolVar(&request, "request", true, "ask the wallet to expose accounts (eth_requestAccounts)")
	return cmd
}

func describeChain(r *chains.Registry, id uint64) string {
	if c, ok := r.ByID(id); ok {
		return fmt.Sprintf("%s (%d)", c.Name, id)
	}
	return fmt.Sprintf("unknown (%d)", id)
}

func joinAddresses(addrs []common.Address) string {
	if len(addrs) == 0 {
		return "none"
	}
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = a.Hex()
	}
	return strings.Join(parts, ", ")
}
