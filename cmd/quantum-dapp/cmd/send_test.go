package cmd

import (
	"bytes"
	"context"
	"io"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumauth-io/quantum-dapp-core/internal/abicodec"
	"github.com/quantumauth-io/quantum-dapp-core/internal/chainclient"
	"github.com/quantumauth-io/quantum-dapp-core/internal/chainrpc"
	"github.com/quantumauth-io/quantum-dapp-core/internal/chains"
	"github.com/quantumauth-io/quantum-dapp-core/internal/erc20"
	"github.com/quantumauth-io/quantum-dapp-core/internal/provider"
	"github.com/quantumauth-io/quantum-dapp-core/internal/provider/providertest"
	"github.com/quantumauth-io/quantum-dapp-core/internal/txflow"
)

// TestSendIgnoresOwnChainSwitch runs a flow whose chain switch makes the
// wallet announce the new chain while the approval prompt is open.
func TestSendIgnoresOwnChainSwitch(t *testing.T) {
	a, err := newApp(testConfig(""), io.Discard)
	require.NoError(t, err)

	fake := providertest.New()
	holder := provider.NewHolder()
	holder.Swap(fake, provider.KindInjected)

	var mu sync.Mutex
	allowance := big.NewInt(0)
	var approvals atomic.Int32

	fake.Handle("wallet_switchEthereumChain", func(context.Context, []any) (any, error) {
		time.AfterFunc(30*time.Millisecond, func() { fake.Emit(provider.EventChainChanged, "0x89") })
		return nil, nil
	})
	fake.Handle("eth_call", func(context.Context, []any) (any, error) {
		mu.Lock()
		defer mu.Unlock()
		return "0x" + abicodec.MustHex256(abicodec.BigWord(allowance)), nil
	})
	approveID := "0x" + abicodec.MethodID(erc20.ApproveMethod)
	fake.Handle("eth_sendTransaction", func(_ context.Context, params []any) (any, error) {
		tx := params[0].(chainclient.TransactionOptions)
		if !strings.HasPrefix(tx.Data, approveID) {
			return "0x" + strings.Repeat("cd", 32), nil
		}
		approvals.Add(1)
		// the prompt stays open past the chainChanged event
		time.Sleep(80 * time.Millisecond)
		mu.Lock()
		allowance = ethmath.MaxBig256
		mu.Unlock()
		return "0x" + strings.Repeat("a1", 32), nil
	})

	polygon := chains.Chain{ID: 137, Name: "Polygon", BlockTime: 2 * time.Second}
	token := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	spender := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	desc := txflow.Descriptor{
		Chain: polygon, Token: token, Spender: spender, Amount: big.NewInt(100),
		Send: func(ctx context.Context, p provider.Provider, w txflow.Wallet) chainrpc.Result[common.Hash] {
			return chainclient.SendTransaction(ctx, p, chainclient.TransactionOptions{
				CallOptions: chainclient.CallOptions{From: w.Account.Hex(), To: spender.Hex(), Data: "0x"},
			})
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	var out bytes.Buffer
	w := txflow.Wallet{Provider: holder, Account: common.HexToAddress(account), ChainID: 1}
	snap, err := runFlow(ctx, a, holder, w, desc, 0, &out)
	require.NoError(t, err)

	assert.Equal(t, txflow.OutcomeSucceeded, snap.Outcome)
	assert.Equal(t, int32(1), approvals.Load())
	assert.Len(t, fake.Calls("wallet_switchEthereumChain"), 1)
	assert.Len(t, fake.Calls("eth_sendTransaction"), 2)
	assert.Equal(t, common.HexToHash("0x"+strings.Repeat("cd", 32)), snap.TxHash)
}
