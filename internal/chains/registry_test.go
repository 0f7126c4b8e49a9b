package chains

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryDefaults(t *testing.T) {
	r, err := NewRegistry(nil)
	require.NoError(t, err)

	eth, ok := r.ByID(1)
	require.True(t, ok)
	assert.Equal(t, "0x1", eth.IDHex())
	assert.Equal(t, 12*time.Second, eth.BlockTime)

	poly, ok := r.ByHex("0x89")
	require.True(t, ok)
	assert.Equal(t, "Polygon", poly.Name)

	_, ok = r.ByHex("0x0089")
	assert.True(t, ok)

	byName, ok := r.ByName("BASE")
	require.True(t, ok)
	assert.Equal(t, uint64(8453), byName.ID)

	list := r.List()
	require.NotEmpty(t, list)
	for i := 1; i < len(list); i++ {
		assert.Less(t, list[i-1].ID, list[i].ID)
	}
}

func TestRegistryMerge(t *testing.T) {
	r, err := NewRegistry([]Chain{
		{ID: 1, RPCURLs: []string{" http://localhost:8545 ", "http://LOCALHOST:8545"}},
		{ID: 31337, Name: "Anvil", ShortName: "anvil", BlockTime: time.Second,
			Native: NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18}},
	})
	require.NoError(t, err)

	eth, _ := r.ByID(1)
	assert.Equal(t, []string{"http://localhost:8545"}, eth.RPCURLs)
	assert.Equal(t, "Ethereum", eth.Name)

	anvil, err := r.Lookup("31337")
	require.NoError(t, err)
	assert.Equal(t, "0x7a69", anvil.IDHex())

	_, err = r.Lookup("anvil")
	require.NoError(t, err)
	_, err = r.Lookup("0x7a69")
	require.NoError(t, err)
	_, err = r.Lookup("nowhere")
	assert.Error(t, err)

	_, err = NewRegistry([]Chain{{ID: 999, Name: "half"}})
	assert.Error(t, err)
}

func TestChainIsolation(t *testing.T) {
	r, err := NewRegistry(nil)
	require.NoError(t, err)

	c, _ := r.ByID(1)
	c.RPCURLs[0] = "mutated"
	again, _ := r.ByID(1)
	assert.NotEqual(t, "mutated", again.RPCURLs[0])

	p := again.AddChainParameter()
	assert.Equal(t, "0x1", p.ChainID)
	assert.Equal(t, "ETH", p.NativeCurrency.Symbol)
	assert.Equal(t, "https://etherscan.io/tx/0xabc", again.TxURL("0xabc"))
}

func TestNormalizeIDHex(t *testing.T) {
	assert.Equal(t, "0x1", NormalizeIDHex("1"))
	assert.Equal(t, "0xaa36a7", NormalizeIDHex(" 0xAA36A7 "))
	assert.Equal(t, "0x0", NormalizeIDHex("0x00"))
	assert.Equal(t, "", NormalizeIDHex(""))

	id, err := ParseIDHex("0x2105")
	require.NoError(t, err)
	assert.Equal(t, uint64(8453), id)
	_, err = ParseIDHex("0xzz")
	assert.Error(t, err)
}
