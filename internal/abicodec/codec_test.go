package abicodec

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var transfer = Interface{
	Name: "transfer",
	Type: EntryFunction,
	Inputs: []Param{
		{Name: "to", Type: "address"},
		{Name: "amount", Type: "uint256"},
	},
	Outputs:         []Param{{Type: "bool"}},
	StateMutability: NonPayable,
}

func TestMethodSignature(t *testing.T) {
	assert.Equal(t, "transfer(address,uint256)", MethodSignature(transfer))

	noArgs := Interface{Name: "decimals", Type: EntryFunction, StateMutability: View}
	assert.Equal(t, "decimals()", MethodSignature(noArgs))

	withLocation := Interface{Name: "setName", Inputs: []Param{{Name: "n", Type: "string memory"}, {Type: "uint"}}}
	assert.Equal(t, "setName(string,uint256)", MethodSignature(withLocation))
}

func TestMethodID(t *testing.T) {
	id := MethodID(transfer)
	assert.Equal(t, "a9059cbb", id)
	assert.Len(t, id, SelectorHexLen)

	approve := Interface{Name: "approve", Inputs: []Param{{Type: "address"}, {Type: "uint256"}}}
	assert.Equal(t, "095ea7b3", MethodID(approve))

	balanceOf := Interface{Name: "balanceOf", Inputs: []Param{{Type: "address"}}}
	assert.Equal(t, "70a08231", MethodID(balanceOf))
}

func TestHex256(t *testing.T) {
	t.Run("empty value is the zero word", func(t *testing.T) {
		w, err := Hex256("0x")
		require.NoError(t, err)
		assert.Equal(t, strings.Repeat("0", 64), w)
	})

	t.Run("round trips numerically", func(t *testing.T) {
		inputs := []string{"0x1", "0xff", "0xDEADbeef", "0x" + strings.Repeat("f", 64), "0x00000abc"}
		for _, in := range inputs {
			w, err := Hex256(in)
			require.NoError(t, err, in)
			require.Len(t, w, 64)

			want, ok := new(big.Int).SetString(in[2:], 16)
			require.True(t, ok)
			got, ok := new(big.Int).SetString(w, 16)
			require.True(t, ok)
			assert.Zero(t, want.Cmp(got), in)
		}
	})

	t.Run("rejects wide values", func(t *testing.T) {
		_, err := Hex256("0x1" + strings.Repeat("0", 64))
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("rejects missing prefix", func(t *testing.T) {
		_, err := Hex256("ff")
		assert.ErrorIs(t, err, ErrInvalidArgument)
		_, err = Hex256("0Xff")
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("rejects non hex", func(t *testing.T) {
		_, err := Hex256("0xzz")
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	assert.Panics(t, func() { MustHex256("nope") })
}

func TestEncodeCall(t *testing.T) {
	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	data, err := EncodeCall(transfer, AddressWord(to), BigWord(big.NewInt(16)))
	require.NoError(t, err)

	want := "0xa9059cbb" +
		strings.Repeat("0", 62) + "aa" +
		strings.Repeat("0", 62) + "10"
	assert.Equal(t, want, data)

	_, err = EncodeCall(transfer, AddressWord(to))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestGetParameter(t *testing.T) {
	blob := "0x" + strings.Repeat("0", 63) + "5" + strings.Repeat("0", 62) + "ff"

	w0, err := GetParameter(0, blob)
	require.NoError(t, err)
	v0, err := WordToBig(w0)
	require.NoError(t, err)
	assert.Equal(t, int64(5), v0.Int64())

	w1, err := GetParameter(1, blob)
	require.NoError(t, err)
	v1, err := WordToBig(w1)
	require.NoError(t, err)
	assert.Equal(t, int64(255), v1.Int64())

	_, err = GetParameter(2, blob)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	empty, err := GetParameter(0, "0x")
	require.NoError(t, err)
	assert.Equal(t, "0x"+strings.Repeat("0", 64), empty)
	v, err := WordToBig(empty)
	require.NoError(t, err)
	assert.Zero(t, v.Sign())
}

func TestWordToAddress(t *testing.T) {
	addr := common.HexToAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	word := "0x" + MustHex256(AddressWord(addr))
	got, err := WordToAddress(word)
	require.NoError(t, err)
	assert.Equal(t, addr, got)
}

func TestParseInterfaces(t *testing.T) {
	doc := []byte(`[
		{"type":"function","name":"allowance","stateMutability":"view",
		 "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],
		 "outputs":[{"name":"","type":"uint256"}]},
		{"type":"event","name":"Transfer","anonymous":false,
		 "inputs":[{"indexed":true,"name":"from","type":"address"},{"indexed":true,"name":"to","type":"address"},{"indexed":false,"name":"value","type":"uint256"}]}
	]`)

	ifaces, err := ParseInterfaces(doc)
	require.NoError(t, err)
	require.Len(t, ifaces, 1)
	assert.Equal(t, "allowance(address,address)", MethodSignature(ifaces[0]))
	assert.Equal(t, "dd62ed3e", MethodID(ifaces[0]))
	assert.True(t, ifaces[0].ReadOnly())

	_, err = ParseInterfaces([]byte(`{"not":"an abi"}`))
	assert.Error(t, err)
}

func TestDecodeString(t *testing.T) {
	dynamic := "0x" +
		MustHex256("0x20") +
		MustHex256("0x4") +
		"55534443" + strings.Repeat("0", 56)
	s, ok := DecodeString(dynamic)
	require.True(t, ok)
	assert.Equal(t, "USDC", s)

	legacy := "0x" + "4d4b52" + strings.Repeat("0", 58)
	s, ok = DecodeString(legacy)
	require.True(t, ok)
	assert.Equal(t, "MKR", s)

	_, ok = DecodeString("0x")
	assert.False(t, ok)
	_, ok = DecodeString("zz")
	assert.False(t, ok)
}
