package cmd

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/quantumauth-io/quantum-go-utils/log"
	"github.com/spf13/cobra"

	"github.com/quantumauth-io/quantum-dapp-core/internal/chainclient"
	"github.com/quantumauth-io/quantum-dapp-core/internal/chainrpc"
	"github.com/quantumauth-io/quantum-dapp-core/internal/chains"
	"github.com/quantumauth-io/quantum-dapp-core/internal/provider"
	"github.com/quantumauth-io/quantum-dapp-core/internal/txflow"
)

type sendFlags struct {
	balanceFlags
	spender string
	amount  string
	to      string
	data    string
	value   string
	retries int
}

func newSendCommand(opts *rootOptions) *cobra.Command {
	var f sendFlags
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Switch chain, approve the spender if needed, then send a transaction",
		Long: "send runs the three transaction phases in order. The allowance phase is skipped for the native currency. " +
			"A wallet rejection at any phase ends the flow; a failure is retried up to --retries times.",
		Example: "  quantum-dapp send --chain polygon --token 0x... --spender 0xRouter --amount 1000000 --data 0x...",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.app(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			token, err := parseAddress("token", f.token)
			if err != nil {
				return err
			}
			spender, err := parseAddress("spender", f.spender)
			if err != nil {
				return err
			}
			amount, err := parseAmount("amount", f.amount)
			if err != nil {
				return err
			}
			value, err := parseAmount("value", f.value)
			if err != nil {
				return err
			}
			to := f.to
			if to == "" {
				to = f.spender
			}
			if !common.IsHexAddress(to) {
				return fmt.Errorf("--to %q is not an address", to)
			}
			if f.data != "" {
				if _, err := hexutil.Decode(f.data); err != nil {
					return fmt.Errorf("--data: %w", err)
				}
			}

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

			desc := txflow.Descriptor{
				Chain:   chain,
				Token:   token,
				Spender: spender,
				Amount:  amount,
				Send: func(ctx context.Context, p provider.Provider, w txflow.Wallet) chainrpc.Result[common.Hash] {
					tx := chainclient.TransactionOptions{CallOptions: chainclient.CallOptions{
						From: w.Account.Hex(),
						To:   common.HexToAddress(to).Hex(),
						Data: f.data,
					}}
					if value.Sign() > 0 {
						tx.Value = hexutil.EncodeBig(value)
					}
					return chainclient.SendTransaction(ctx, p, tx)
				},
			}

			snap, err := runFlow(ctx, a, holder, w, desc, f.retries, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return report(cmd, chain, snap)
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&f.spender, "spender", "", "address allowed to move the token")
	cmd.Flags().StringVar(&f.amount, "amount", "0", "amount the spender needs, in base units")
	cmd.Flags().StringVar(&f.to, "to", "", "transaction target (default: the spender)")
	cmd.Flags().StringVar(&f.data, "data", "", "0x-prefixed call data")
	cmd.Flags().StringVar(&f.value, "value", "", "native value to attach, in wei")
	cmd.Flags().IntVar(&f.retries, "retries", 0, "retry a failed phase this many times")
	return cmd
}

// runFlow starts the orchestrator and restarts it whenever the wallet moves
// to another chain or account.
func runFlow(ctx context.Context, a *app, holder *provider.Holder, w txflow.Wallet, desc txflow.Descriptor, retries int, out io.Writer) (txflow.Snapshot, error) {
	observe := a.metrics.FlowObserver()
	var printMu sync.Mutex
	var last txflow.Snapshot
	o := txflow.New(txflow.Options{
		ApprovalCeiling: a.ceiling(),
		PollInterval:    a.cfg.Flow.PollInterval,
		OnUpdate: func(s txflow.Snapshot) {
			observe(s)
			printMu.Lock()
			defer printMu.Unlock()
			for ph := txflow.PhaseChainSwitch; ph <= txflow.PhaseSubmission; ph++ {
				if st := s.State(ph); st != last.State(ph) {
					fmt.Fprintf(out, "%-12s %s\n", ph, st)
				}
			}
			last = s
		},
	})
	defer o.Stop()

	// restart applies an event to the wallet state. change reports whether
	// the flow has to start over.
	var mu sync.Mutex
	restart := func(change func(*txflow.Wallet) bool) {
		mu.Lock()
		ok := change(&w)
		next := w
		mu.Unlock()
		if !ok {
			return
		}
		if err := o.Reset(next, desc); err != nil {
			log.Warn("transaction flow restart failed", "error", err)
		}
	}
	onChain := provider.NewListener(func(ev provider.Event) {
		raw, _ := ev.Payload.(string)
		id, err := chains.ParseIDHex(raw)
		if err != nil {
			return
		}
		restart(func(w *txflow.Wallet) bool {
			if w.ChainID == id {
				return false
			}
			w.ChainID = id
			// the chain-switch phase moving the wallet to the target
			// produces this event itself
			if id == desc.Chain.ID {
				st := o.Snapshot().State(txflow.PhaseChainSwitch)
				if st == txflow.Working || st == txflow.Complete {
					return false
				}
			}
			return true
		})
	})
	onAccounts := provider.NewListener(func(ev provider.Event) {
		accounts, _ := ev.Payload.([]string)
		if len(accounts) == 0 {
			return
		}
		restart(func(w *txflow.Wallet) bool {
			next := common.HexToAddress(accounts[0])
			if w.Account == next {
				return false
			}
			w.Account = next
			return true
		})
	})

	if err := o.Start(ctx, w, desc); err != nil {
		return txflow.Snapshot{}, err
	}
	holder.Bind(provider.EventChainChanged, onChain)
	holder.Bind(provider.EventAccountsChanged, onAccounts)
	defer holder.Unbind(provider.EventChainChanged, onChain)
	defer holder.Unbind(provider.EventAccountsChanged, onAccounts)

	for {
		snap, err := o.Wait(ctx)
		if err != nil {
			return snap, err
		}
		if snap.Outcome != txflow.OutcomeFailed || retries == 0 {
			return snap, nil
		}
		retries--
		log.Info("phase failed, retrying", "phase", snap.ErrPhase, "error", snap.Err)
		o.Retry()
	}
}

func report(cmd *cobra.Command, chain chains.Chain, snap txflow.Snapshot) error {
	out := cmd.OutOrStdout()
	if snap.ApprovalHash != (common.Hash{}) {
		fmt.Fprintf(out, "approval:    %s\n", snap.ApprovalHash.Hex())
	}
	switch snap.Outcome {
	case txflow.OutcomeSucceeded:
		fmt.Fprintf(out, "transaction: %s\n", snap.TxHash.Hex())
		if link := chain.TxURL(snap.TxHash.Hex()); link != "" {
			fmt.Fprintf(out, "explorer:    %s\n", link)
		}
		return nil
	case txflow.OutcomeRejected:
		fmt.Fprintln(out, "cancelled in wallet")
		return nil
	}
	return fmt.Errorf("%s phase failed: %w", snap.ErrPhase, snap.Err)
}
