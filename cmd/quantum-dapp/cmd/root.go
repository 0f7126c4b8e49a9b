package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	clientconfig "github.com/quantumauth-io/quantum-dapp-core/cmd/quantum-dapp/config"
	"github.com/quantumauth-io/quantum-dapp-core/internal/provider"
)

type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

type rootOptions struct {
	metricsAddr string
	transport   string

	load    func() (*clientconfig.Config, error)
	current *app
}

// app loads configuration on first use. Commands that only encode data never
// touch the config or the network.
func (o *rootOptions) app(cmd *cobra.Command) (*app, error) {
	if o.current != nil {
		return o.current, nil
	}
	cfg, err := o.load()
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	a, err := newApp(cfg, cmd.OutOrStdout())
	if err != nil {
		return nil, err
	}
	addr := o.metricsAddr
	if addr == "" {
		addr = cfg.Metrics.Addr
	}
	a.serveMetrics(addr)
	o.current = a
	return a, nil
}

func (o *rootOptions) only() provider.Kind {
	return provider.Kind(o.transport)
}

func (o *rootOptions) close() {
	if o.current != nil {
		o.current.close()
		o.current = nil
	}
}

// NewRootCommand builds the command tree. The returned function releases
// whatever the executed command opened and must be called after Execute.
func NewRootCommand(info BuildInfo, load func() (*clientconfig.Config, error)) (*cobra.Command, func()) {
	opts := &rootOptions{load: load}

	root := &cobra.Command{
		Use:           "quantum-dapp",
		Short:         "Talk to a user's wallet the way a dApp does",
		Long:          "quantum-dapp connects to a local (injected) or remote (relay) wallet, reads balances and allowances, and runs approve-then-send transaction flows.",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", info.Version, info.Commit, info.BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if opts.transport != "" {
				if _, ok := provider.ParseKind(opts.transport); !ok {
					return fmt.Errorf("unknown transport %q (allowed: injected, relay)", opts.transport)
				}
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	root.PersistentFlags().StringVar(&opts.transport, "transport", "", "use only this wallet transport (injected or relay)")

	root.AddCommand(
		newSelectorCommand(),
		newWordCommand(),
		newChainsCommand(opts),
		newUseCommand(opts),
		newConnectCommand(opts),
		newBalanceCommand(opts),
		newWatchCommand(opts),
		newSendCommand(opts),
		newAssetsCommand(opts),
	)
	return root, opts.close
}

// Execute runs the CLI with the default config loader.
func Execute(ctx context.Context, info BuildInfo) error {
	root, cleanup := NewRootCommand(info, clientconfig.Load)
	defer cleanup()
	return root.ExecuteContext(ctx)
}
