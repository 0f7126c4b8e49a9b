package cmd

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/quantumauth-io/quantum-dapp-core/internal/chainrpc"
	"github.com/quantumauth-io/quantum-dapp-core/internal/chains"
	"github.com/quantumauth-io/quantum-dapp-core/internal/erc20"
	"github.com/quantumauth-io/quantum-dapp-core/internal/freshness"
	"github.com/quantumauth-io/quantum-dapp-core/internal/provider"
)

type balanceFlags struct {
	chain string
	token string
	owner string
}

func (f *balanceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.chain, "chain", "", "chain id, hex id or name (default: the wallet's chain)")
	cmd.Flags().StringVar(&f.token, "token", "", "ERC-20 token address (default: native currency)")
	cmd.Flags().StringVar(&f.owner, "owner", "", "account to read (default: the wallet's first account)")
}

func newBalanceCommand(opts *rootOptions) *cobra.Command {
	var f balanceFlags
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Read a token or native balance once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.app(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			p, _, err := a.connect(ctx, opts.only())
			if err != nil {
				return err
			}
			w, err := walletState(ctx, p, f.owner)
			if err != nil {
				return err
			}
			chain, err := resolveChain(a.registry, f.chain, w.ChainID)
			if err != nil {
				return err
			}
			if err := ensureChain(ctx, &w, chain); err != nil {
				return err
			}
			token, err := parseAddress("token", f.token)
			if err != nil {
				return err
			}

			bal, err := erc20.BalanceOf(ctx, p, token, w.Account).Unwrap()
			if err != nil {
				return err
			}
			decimals, err := erc20.Decimals(ctx, p, token).Unwrap()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", formatUnits(bal, decimals), symbol(chain, token))
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

// newWatchCommand follows a balance once per block until interrupted. It
// restarts from scratch when the wallet changes chain or account.
func newWatchCommand(opts *rootOptions) *cobra.Command {
	var f balanceFlags
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a balance, printing every change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.app(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			holder, _, err := a.connect(ctx, opts.only())
			if err != nil {
				return err
			}
			w, err := walletState(ctx, holder, f.owner)
			if err != nil {
				return err
			}
			chain, err := resolveChain(a.registry, f.chain, w.ChainID)
			if err != nil {
				return err
			}
			if err := ensureChain(ctx, &w, chain); err != nil {
				return err
			}
			token, err := parseAddress("token", f.token)
			if err != nil {
				return err
			}
			decimals, err := erc20.Decimals(ctx, holder, token).Unwrap()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			sym := symbol(chain, token)
			var mu sync.Mutex
			owner := w.Account
			reader := func() freshness.Reader[*big.Int] {
				mu.Lock()
				o := owner
				mu.Unlock()
				return func(ctx context.Context) chainrpc.Result[*big.Int] {
					return erc20.BalanceOf(ctx, holder, token, o)
				}
			}

			tracker := freshness.NewTracker(reader(), freshness.Options[*big.Int]{
				Interval: chain.BlockTime,
				Equal:    freshness.BigEqual,
				Name:     "balance",
				OnChange: func(p freshness.Perishable[*big.Int]) {
					if v, ok := p.Current(); ok {
						fmt.Fprintf(out, "%s %s\n", formatUnits(v, decimals), sym)
					}
				},
			})
			tracker.Start(ctx)
			defer tracker.Stop()

			onAccounts := provider.NewListener(func(ev provider.Event) {
				accounts, _ := ev.Payload.([]string)
				if f.owner != "" || len(accounts) == 0 {
					return
				}
				mu.Lock()
				owner = common.HexToAddress(accounts[0])
				mu.Unlock()
				fmt.Fprintf(out, "account changed to %s\n", accounts[0])
				tracker.Reset(reader())
			})
			onChain := provider.NewListener(func(ev provider.Event) {
				fmt.Fprintf(out, "wallet moved to chain %v, balance may be for another network\n", ev.Payload)
				tracker.Reset(reader())
			})
			holder.Bind(provider.EventAccountsChanged, onAccounts)
			holder.Bind(provider.EventChainChanged, onChain)
			defer holder.Unbind(provider.EventAccountsChanged, onAccounts)
			defer holder.Unbind(provider.EventChainChanged, onChain)

			<-ctx.Done()
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func symbol(c chains.Chain, token common.Address) string {
	if !erc20.IsNative(token) {
		return token.Hex()
	}
	if c.Native.Symbol != "" {
		return c.Native.Symbol
	}
	return "native"
}
