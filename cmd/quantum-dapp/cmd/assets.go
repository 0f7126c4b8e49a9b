package cmd

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/quantumauth-io/quantum-dapp-core/internal/assets"
	"github.com/quantumauth-io/quantum-dapp-core/internal/chains"
	"github.com/quantumauth-io/quantum-dapp-core/internal/provider"
)

func newAssetsCommand(opts *rootOptions) *cobra.Command {
	var chainRef string
	cmd := &cobra.Command{
		Use:   "assets",
		Short: "Manage the token list of a chain",
	}
	cmd.PersistentFlags().StringVar(&chainRef, "chain", "", "chain id, hex id or name (default: the wallet's chain)")

	// session connects and moves the wallet to the chain the subcommand
	// works on, since metadata reads go through the wallet's node.
	session := func(cmd *cobra.Command) (*app, *provider.Holder, chains.Chain, error) {
		a, err := opts.app(cmd)
		if err != nil {
			return nil, nil, chains.Chain{}, err
		}
		ctx := cmd.Context()
		p, _, err := a.connect(ctx, opts.only())
		if err != nil {
			return nil, nil, chains.Chain{}, err
		}
		w, err := walletState(ctx, p, "")
		if err != nil {
			return nil, nil, chains.Chain{}, err
		}
		chain, err := resolveChain(a.registry, chainRef, w.ChainID)
		if err != nil {
			return nil, nil, chains.Chain{}, err
		}
		if err := ensureChain(ctx, &w, chain); err != nil {
			return nil, nil, chains.Chain{}, err
		}
		return a, p, chain, nil
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List the tokens of a chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, p, chain, err := session(cmd)
			if err != nil {
				return err
			}
			m, err := a.assetList()
			if err != nil {
				return err
			}
			if err := seedDefaults(cmd.Context(), a, m, p, chain); err != nil {
				return err
			}
			list, err := m.List(chain.ID)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SYMBOL\tDECIMALS\tADDRESS\tNAME")
			for _, as := range list {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", as.Symbol, as.Decimals, as.Address.Hex(), as.Name)
			}
			return w.Flush()
		},
	}

	add := &cobra.Command{
		Use:   "add <token>",
		Short: "Read a token's metadata through the wallet and list it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, p, chain, err := session(cmd)
			if err != nil {
				return err
			}
			m, err := a.assetList()
			if err != nil {
				return err
			}
			as, err := m.Add(cmd.Context(), p, chain, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s) on %s\n", as.Symbol, as.Address.Hex(), chain.Name)
			return nil
		},
	}

	remove := &cobra.Command{
		Use:   "remove <token>",
		Short: "Drop a token from a chain's list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.app(cmd)
			if err != nil {
				return err
			}
			if chainRef == "" {
				return fmt.Errorf("--chain is required")
			}
			chain, err := resolveChain(a.registry, chainRef, 0)
			if err != nil {
				return err
			}
			m, err := a.assetList()
			if err != nil {
				return err
			}
			removed, err := m.Remove(chain.ID, args[0])
			if err != nil {
				return err
			}
			if !removed {
				fmt.Fprintln(cmd.OutOrStdout(), "not listed")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "removed")
			return nil
		},
	}

	suggest := &cobra.Command{
		Use:   "suggest <token>",
		Short: "Ask the wallet to track a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, p, chain, err := session(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			token, err := parseAddress("token", args[0])
			if err != nil {
				return err
			}
			as, err := assets.Fetch(ctx, p, chain, token).Unwrap()
			if err != nil {
				return err
			}
			accepted, err := assets.Suggest(ctx, p, as).Unwrap()
			if err != nil {
				return err
			}
			if accepted {
				fmt.Fprintf(cmd.OutOrStdout(), "wallet is tracking %s\n", as.Symbol)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "declined in wallet")
			}
			return nil
		},
	}

	cmd.AddCommand(list, add, remove, suggest)
	return cmd
}

func seedDefaults(ctx context.Context, a *app, m *assets.Manager, p provider.Provider, chain chains.Chain) error {
	defaults := a.cfg.Assets.Defaults[strconv.FormatUint(chain.ID, 10)]
	if len(defaults) == 0 {
		return nil
	}
	return m.EnsureDefaults(ctx, p, chain, defaults)
}
