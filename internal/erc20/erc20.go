// Package erc20 reads and approves ERC-20 balances using the static word
// encoding from abicodec. The zero address stands for the chain's native
// currency.
package erc20

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/quantumauth-io/quantum-dapp-core/internal/abicodec"
	"github.com/quantumauth-io/quantum-dapp-core/internal/chainclient"
	"github.com/quantumauth-io/quantum-dapp-core/internal/chainrpc"
	"github.com/quantumauth-io/quantum-dapp-core/internal/constants"
	"github.com/quantumauth-io/quantum-dapp-core/internal/provider"
)

var (
	BalanceOfMethod = abicodec.Interface{
		Name:            "balanceOf",
		Type:            abicodec.EntryFunction,
		Inputs:          []abicodec.Param{{Name: "account", Type: "address"}},
		Outputs:         []abicodec.Param{{Type: "uint256"}},
		StateMutability: abicodec.View,
	}
	AllowanceMethod = abicodec.Interface{
		Name:            "allowance",
		Type:            abicodec.EntryFunction,
		Inputs:          []abicodec.Param{{Name: "owner", Type: "address"}, {Name: "spender", Type: "address"}},
		Outputs:         []abicodec.Param{{Type: "uint256"}},
		StateMutability: abicodec.View,
	}
	ApproveMethod = abicodec.Interface{
		Name:            "approve",
		Type:            abicodec.EntryFunction,
		Inputs:          []abicodec.Param{{Name: "spender", Type: "address"}, {Name: "amount", Type: "uint256"}},
		Outputs:         []abicodec.Param{{Type: "bool"}},
		StateMutability: abicodec.NonPayable,
	}
	TransferMethod = abicodec.Interface{
		Name:            "transfer",
		Type:            abicodec.EntryFunction,
		Inputs:          []abicodec.Param{{Name: "to", Type: "address"}, {Name: "amount", Type: "uint256"}},
		Outputs:         []abicodec.Param{{Type: "bool"}},
		StateMutability: abicodec.NonPayable,
	}
	SymbolMethod = abicodec.Interface{
		Name:            "symbol",
		Type:            abicodec.EntryFunction,
		Outputs:         []abicodec.Param{{Type: "string"}},
		StateMutability: abicodec.View,
	}
	NameMethod = abicodec.Interface{
		Name:            "name",
		Type:            abicodec.EntryFunction,
		Outputs:         []abicodec.Param{{Type: "string"}},
		StateMutability: abicodec.View,
	}
	DecimalsMethod = abicodec.Interface{
		Name:            "decimals",
		Type:            abicodec.EntryFunction,
		Outputs:         []abicodec.Param{{Type: "uint8"}},
		StateMutability: abicodec.View,
	}
)

var native = common.HexToAddress(constants.NativeAddr)

func IsNative(token common.Address) bool {
	return token == native
}

// BalanceOf returns the token balance of owner, or the native balance for
// the zero token address.
func BalanceOf(ctx context.Context, p provider.Provider, token, owner common.Address) chainrpc.Result[*big.Int] {
	if IsNative(token) {
		return chainclient.GetBalance(ctx, p, owner)
	}
	return readUint(ctx, p, token, BalanceOfMethod, abicodec.AddressWord(owner))
}

func Allowance(ctx context.Context, p provider.Provider, token, owner, spender common.Address) chainrpc.Result[*big.Int] {
	return readUint(ctx, p, token, AllowanceMethod, abicodec.AddressWord(owner), abicodec.AddressWord(spender))
}

func Decimals(ctx context.Context, p provider.Provider, token common.Address) chainrpc.Result[uint8] {
	if IsNative(token) {
		return chainrpc.Ok[uint8](18)
	}
	return chainrpc.Then(readUint(ctx, p, token, DecimalsMethod), func(v *big.Int) chainrpc.Result[uint8] {
		if !v.IsUint64() || v.Uint64() > 255 {
			return chainrpc.Fail[uint8](chainrpc.Internal("decimals out of range", v.String()))
		}
		return chainrpc.Ok(uint8(v.Uint64()))
	})
}

// Symbol reads symbol(). Tokens that predate the standard return bytes32;
// both forms are accepted.
func Symbol(ctx context.Context, p provider.Provider, token common.Address) chainrpc.Result[string] {
	return readString(ctx, p, token, SymbolMethod)
}

func Name(ctx context.Context, p provider.Provider, token common.Address) chainrpc.Result[string] {
	return readString(ctx, p, token, NameMethod)
}

// Approve sends approve(spender, amount) from owner.
func Approve(ctx context.Context, p provider.Provider, token, owner, spender common.Address, amount *big.Int) chainrpc.Result[common.Hash] {
	data, err := abicodec.EncodeCall(ApproveMethod, abicodec.AddressWord(spender), abicodec.BigWord(amount))
	if err != nil {
		return chainrpc.Fail[common.Hash](&chainrpc.Error{Code: chainrpc.CodeInvalidParams, Message: err.Error()})
	}
	return chainclient.SendTransaction(ctx, p, chainclient.TransactionOptions{
		CallOptions: chainclient.CallOptions{From: owner.Hex(), To: token.Hex(), Data: data},
	})
}

// TransferData builds call data for transfer(to, amount).
func TransferData(to common.Address, amount *big.Int) (string, error) {
	return abicodec.EncodeCall(TransferMethod, abicodec.AddressWord(to), abicodec.BigWord(amount))
}

func readString(ctx context.Context, p provider.Provider, token common.Address, method abicodec.Interface) chainrpc.Result[string] {
	data, err := abicodec.EncodeCall(method)
	if err != nil {
		return chainrpc.Fail[string](&chainrpc.Error{Code: chainrpc.CodeInvalidParams, Message: err.Error()})
	}
	return chainrpc.Then(chainclient.Call(ctx, p, chainclient.CallOptions{To: token.Hex(), Data: data}), func(out string) chainrpc.Result[string] {
		s, ok := abicodec.DecodeString(out)
		if !ok {
			return chainrpc.Fail[string](chainrpc.ProtocolViolation("eth_call "+method.Name, []byte(out)))
		}
		return chainrpc.Ok(s)
	})
}

func readUint(ctx context.Context, p provider.Provider, token common.Address, method abicodec.Interface, args ...string) chainrpc.Result[*big.Int] {
	data, err := abicodec.EncodeCall(method, args...)
	if err != nil {
		return chainrpc.Fail[*big.Int](&chainrpc.Error{Code: chainrpc.CodeInvalidParams, Message: err.Error()})
	}
	return chainrpc.Then(chainclient.Call(ctx, p, chainclient.CallOptions{To: token.Hex(), Data: data}), func(out string) chainrpc.Result[*big.Int] {
		word, err := abicodec.GetParameter(0, out)
		if err != nil {
			return chainrpc.Fail[*big.Int](chainrpc.ProtocolViolation("eth_call "+method.Name, []byte(out)))
		}
		v, err := abicodec.WordToBig(word)
		if err != nil {
			return chainrpc.Fail[*big.Int](chainrpc.ProtocolViolation("eth_call "+method.Name, []byte(out)))
		}
		return chainrpc.Ok(v)
	})
}
