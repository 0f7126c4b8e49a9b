// Package chainclient wraps wallet RPC methods. Every function issues one
// request, checks the shape of the answer and returns a chainrpc.Result;
// malformed answers are reported as internal errors, never defaulted.
package chainclient

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/quantum-dapp-core/internal/chainrpc"
	"github.com/quantumauth-io/quantum-dapp-core/internal/chains"
	"github.com/quantumauth-io/quantum-dapp-core/internal/provider"
)

const latest = "latest"

// request is the single place responses are decoded. decode reports false
// when raw does not have the expected shape.
func request[V any](ctx context.Context, p provider.Provider, method string, params []any, decode func(json.RawMessage) (V, bool)) chainrpc.Result[V] {
	raw, err := p.Request(ctx, provider.RequestArguments{Method: method, Params: params})
	if err != nil {
		return chainrpc.Fail[V](chainrpc.FromError(err))
	}
	v, ok := decode(raw)
	if !ok {
		log.Warn("unexpected rpc response shape", "method", method, "response", string(raw))
		return chainrpc.Fail[V](chainrpc.ProtocolViolation(method, raw))
	}
	return chainrpc.Ok(v)
}

func invalidParams[V any](msg string) chainrpc.Result[V] {
	return chainrpc.Fail[V](&chainrpc.Error{Code: chainrpc.CodeInvalidParams, Message: msg})
}

func GetBalance(ctx context.Context, p provider.Provider, owner common.Address) chainrpc.Result[*big.Int] {
	return request(ctx, p, "eth_getBalance", []any{owner.Hex(), latest}, decodeBig)
}

func GetBlockNumber(ctx context.Context, p provider.Provider) chainrpc.Result[uint64] {
	return request(ctx, p, "eth_blockNumber", nil, decodeUint64)
}

func GetChainID(ctx context.Context, p provider.Provider) chainrpc.Result[uint64] {
	return request(ctx, p, "eth_chainId", nil, decodeUint64)
}

func GetAccounts(ctx context.Context, p provider.Provider) chainrpc.Result[[]common.Address] {
	return request(ctx, p, "eth_accounts", nil, decodeAddresses)
}

// RequestAccounts prompts the user to expose accounts (eth_requestAccounts).
func RequestAccounts(ctx context.Context, p provider.Provider) chainrpc.Result[[]common.Address] {
	return request(ctx, p, "eth_requestAccounts", nil, decodeAddresses)
}

// RequestAccountsPermission asks for the eth_accounts permission (EIP-2255).
func RequestAccountsPermission(ctx context.Context, p provider.Provider) chainrpc.Result[[]Permission] {
	params := []any{map[string]any{"eth_accounts": map[string]any{}}}
	return request(ctx, p, "wallet_requestPermissions", params, func(raw json.RawMessage) ([]Permission, bool) {
		var perms []Permission
		if !isArray(raw) || json.Unmarshal(raw, &perms) != nil {
			return nil, false
		}
		for _, perm := range perms {
			if perm.ParentCapability == "" {
				return nil, false
			}
		}
		return perms, true
	})
}

// Call runs eth_call against the latest block and returns the raw hex
// output.
func Call(ctx context.Context, p provider.Provider, opts CallOptions) chainrpc.Result[string] {
	if !common.IsHexAddress(opts.To) {
		return invalidParams[string]("call target is not an address")
	}
	return request(ctx, p, "eth_call", []any{opts, latest}, decodeData)
}

// SendTransaction submits a transaction through the wallet and returns its
// hash. The wallet may prompt the user; there is no timeout here.
func SendTransaction(ctx context.Context, p provider.Provider, opts TransactionOptions) chainrpc.Result[common.Hash] {
	if !common.IsHexAddress(opts.From) {
		return invalidParams[common.Hash]("transaction sender is not an address")
	}
	if opts.To != "" && !common.IsHexAddress(opts.To) {
		return invalidParams[common.Hash]("transaction target is not an address")
	}
	return request(ctx, p, "eth_sendTransaction", []any{opts}, decodeHash)
}

func AddChain(ctx context.Context, p provider.Provider, chain chains.Chain) chainrpc.Result[struct{}] {
	return request(ctx, p, "wallet_addEthereumChain", []any{chain.AddChainParameter()}, decodeNull)
}

// SwitchChain asks the wallet to change network. A wallet that does not know
// the chain (4902) is asked to add it, which also selects it.
func SwitchChain(ctx context.Context, p provider.Provider, chain chains.Chain) chainrpc.Result[struct{}] {
	params := []any{map[string]string{"chainId": chain.IDHex()}}
	res := request(ctx, p, "wallet_switchEthereumChain", params, decodeNull)
	if err := res.Err(); err != nil && err.Code == chainrpc.CodeUnrecognizedChainID {
		log.Info("wallet does not know chain, adding it", "chainId", chain.IDHex())
		return AddChain(ctx, p, chain)
	}
	return res
}

// WatchAsset suggests a token to the wallet. The result reports whether the
// user accepted it.
func WatchAsset(ctx context.Context, p provider.Provider, asset Asset) chainrpc.Result[bool] {
	if !common.IsHexAddress(asset.Options.Address) {
		return invalidParams[bool]("asset address is not an address")
	}
	if asset.Type == "" {
		asset.Type = "ERC20"
	}
	return request(ctx, p, "wallet_watchAsset", []any{asset}, decodeBool)
}

// GetTransactionReceipt returns nil while the transaction is pending.
func GetTransactionReceipt(ctx context.Context, p provider.Provider, hash common.Hash) chainrpc.Result[*Receipt] {
	return request(ctx, p, "eth_getTransactionReceipt", []any{hash.Hex()}, func(raw json.RawMessage) (*Receipt, bool) {
		if isNull(raw) {
			return nil, true
		}
		var r struct {
			TxHash      string `json:"transactionHash"`
			BlockNumber string `json:"blockNumber"`
			Status      string `json:"status"`
		}
		if json.Unmarshal(raw, &r) != nil {
			return nil, false
		}
		txHash, ok := parseHash(r.TxHash)
		if !ok {
			return nil, false
		}
		block, err := hexutil.DecodeUint64(r.BlockNumber)
		if err != nil {
			return nil, false
		}
		status, err := hexutil.DecodeUint64(r.Status)
		if err != nil || status > 1 {
			return nil, false
		}
		return &Receipt{TxHash: txHash, BlockNumber: block, Status: ReceiptStatus(status)}, true
	})
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

func decodeString(raw json.RawMessage) (string, bool) {
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return "", false
	}
	return s, true
}

func decodeBig(raw json.RawMessage) (*big.Int, bool) {
	s, ok := decodeString(raw)
	if !ok {
		return nil, false
	}
	v, err := hexutil.DecodeBig(s)
	if err != nil {
		return nil, false
	}
	return v, true
}

func decodeUint64(raw json.RawMessage) (uint64, bool) {
	s, ok := decodeString(raw)
	if !ok {
		return 0, false
	}
	v, err := hexutil.DecodeUint64(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

func decodeData(raw json.RawMessage) (string, bool) {
	s, ok := decodeString(raw)
	if !ok {
		return "", false
	}
	if _, err := hexutil.Decode(s); err != nil {
		return "", false
	}
	return strings.ToLower(s), true
}

func decodeHash(raw json.RawMessage) (common.Hash, bool) {
	s, ok := decodeString(raw)
	if !ok {
		return common.Hash{}, false
	}
	return parseHash(s)
}

func parseHash(s string) (common.Hash, bool) {
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, false
	}
	return common.BytesToHash(b), true
}

func decodeAddresses(raw json.RawMessage) ([]common.Address, bool) {
	var list []string
	if !isArray(raw) || json.Unmarshal(raw, &list) != nil {
		return nil, false
	}
	out := make([]common.Address, 0, len(list))
	for _, a := range list {
		if !common.IsHexAddress(a) {
			return nil, false
		}
		out = append(out, common.HexToAddress(a))
	}
	return out, true
}

func decodeBool(raw json.RawMessage) (bool, bool) {
	var b bool
	if isNull(raw) || json.Unmarshal(raw, &b) != nil {
		return false, false
	}
	return b, true
}

func decodeNull(raw json.RawMessage) (struct{}, bool) {
	return struct{}{}, isNull(raw)
}
