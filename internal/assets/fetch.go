package assets

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/quantumauth-io/quantum-dapp-core/internal/chainrpc"
	"github.com/quantumauth-io/quantum-dapp-core/internal/chains"
	"github.com/quantumauth-io/quantum-dapp-core/internal/erc20"
	"github.com/quantumauth-io/quantum-dapp-core/internal/provider"
)

// Fetch reads token metadata through the wallet. The zero address resolves
// to the chain's native currency without a request. A missing name is not
// an error.
func Fetch(ctx context.Context, p provider.Provider, chain chains.Chain, token common.Address) chainrpc.Result[Asset] {
	if erc20.IsNative(token) {
		return chainrpc.Ok(Asset{
			Address:  token,
			Symbol:   chain.Native.Symbol,
			Decimals: chain.Native.Decimals,
			Name:     chain.Native.Name,
		})
	}

	return chainrpc.Then(erc20.Symbol(ctx, p, token), func(sym string) chainrpc.Result[Asset] {
		return chainrpc.Map(erc20.Decimals(ctx, p, token), func(dec uint8) Asset {
			a := Asset{Address: token, Symbol: sym, Decimals: dec}
			if name, ok := erc20.Name(ctx, p, token).Value(); ok {
				a.Name = name
			}
			return a
		})
	})
}
