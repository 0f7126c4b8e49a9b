package cmd

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"

	"github.com/quantumauth-io/quantum-dapp-core/internal/chainclient"
	"github.com/quantumauth-io/quantum-dapp-core/internal/chains"
	"github.com/quantumauth-io/quantum-dapp-core/internal/constants"
	"github.com/quantumauth-io/quantum-dapp-core/internal/provider"
	"github.com/quantumauth-io/quantum-dapp-core/internal/txflow"
)

// walletState reads the wallet's current chain and first account. owner,
// when set, replaces the account.
func walletState(ctx context.Context, p provider.Provider, owner string) (txflow.Wallet, error) {
	w := txflow.Wallet{Provider: p}

	id, err := chainclient.GetChainID(ctx, p).Unwrap()
	if err != nil {
		return w, err
	}
	w.ChainID = id

	if owner != "" {
		addr, err := parseAddress("owner", owner)
		if err != nil {
			return w, err
		}
		w.Account = addr
		return w, nil
	}
	addrs, err := chainclient.RequestAccounts(ctx, p).Unwrap()
	if err != nil {
		return w, err
	}
	if len(addrs) == 0 {
		return w, fmt.Errorf("wallet exposes no accounts")
	}
	w.Account = addrs[0]
	return w, nil
}

// resolveChain returns the chain named by ref, or the wallet's current chain
// when ref is empty.
func resolveChain(r *chains.Registry, ref string, current uint64) (chains.Chain, error) {
	if ref != "" {
		return r.Lookup(ref)
	}
	c, ok := r.ByID(current)
	if !ok {
		return chains.Chain{}, fmt.Errorf("wallet is on chain %d which is not configured", current)
	}
	return c, nil
}

// ensureChain asks the wallet to move to c when it is elsewhere.
func ensureChain(ctx context.Context, w *txflow.Wallet, c chains.Chain) error {
	if w.ChainID == c.ID {
		return nil
	}
	if err := chainclient.SwitchChain(ctx, w.Provider, c).Err(); err != nil {
		return err
	}
	w.ChainID = c.ID
	return nil
}

func parseAddress(flag, s string) (common.Address, error) {
	if s == "" {
		return common.HexToAddress(constants.NativeAddr), nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("--%s %q is not an address", flag, s)
	}
	return common.HexToAddress(s), nil
}

// parseAmount accepts a decimal or 0x-prefixed integer in base units.
func parseAmount(flag, s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	if strings.HasPrefix(s, "0x") {
		v, err := hexutil.DecodeBig(s)
		if err != nil {
			return nil, fmt.Errorf("--%s %q: %w", flag, s, err)
		}
		return v, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("--%s %q is not a non-negative integer", flag, s)
	}
	return v, nil
}

// formatUnits renders v with decimals fractional digits, trimming trailing
// zeros.
func formatUnits(v *big.Int, decimals uint8) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -int32(decimals)).String()
}
