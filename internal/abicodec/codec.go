package abicodec

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	ethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// WordHexLen is the number of hex characters in one 256-bit ABI word.
	WordHexLen = 64
	// SelectorHexLen is the number of hex characters in a method id.
	SelectorHexLen = 8
)

var ErrInvalidArgument = errors.New("abicodec: invalid argument")

var zeroWord = strings.Repeat("0", WordHexLen)

// MethodSignature returns the canonical `name(type1,type2)` form used for
// selector hashing. Parameter names and data-location modifiers are dropped.
func MethodSignature(iface Interface) string {
	types := make([]string, 0, len(iface.Inputs))
	for _, in := range iface.Inputs {
		types = append(types, canonicalType(in.Type))
	}
	return iface.Name + "(" + strings.Join(types, ",") + ")"
}

func canonicalType(t string) string {
	fields := strings.Fields(t)
	if len(fields) == 0 {
		return ""
	}
	switch fields[0] {
	case "uint":
		return "uint256"
	case "int":
		return "int256"
	}
	return fields[0]
}

// MethodID returns the first four bytes of keccak256(signature) as eight
// lowercase hex characters without prefix.
func MethodID(iface Interface) string {
	return SelectorOf(MethodSignature(iface))
}

// SelectorOf hashes an already canonical signature string.
func SelectorOf(signature string) string {
	return hex.EncodeToString(crypto.Keccak256([]byte(signature))[:4])
}

// Hex256 normalizes a 0x-prefixed hex value of at most 256 bits into a
// 64-character word without prefix.
func Hex256(value string) (string, error) {
	if !strings.HasPrefix(value, "0x") {
		return "", fmt.Errorf("%w: %q is missing the 0x prefix", ErrInvalidArgument, value)
	}
	body := value[2:]
	if len(body) > WordHexLen {
		return "", fmt.Errorf("%w: %q is wider than 256 bits", ErrInvalidArgument, value)
	}
	for _, c := range body {
		if !isHexDigit(c) {
			return "", fmt.Errorf("%w: %q is not hex", ErrInvalidArgument, value)
		}
	}
	return zeroWord[:WordHexLen-len(body)] + strings.ToLower(body), nil
}

// MustHex256 is Hex256 for values known to be valid; malformed input is a
// programming error and panics.
func MustHex256(value string) string {
	w, err := Hex256(value)
	if err != nil {
		panic(err)
	}
	return w
}

// EncodeCall assembles call data: "0x" + method id + one word per argument in
// declared order.
func EncodeCall(iface Interface, args ...string) (string, error) {
	if len(args) != len(iface.Inputs) {
		return "", fmt.Errorf("%w: %s expects %d arguments, got %d",
			ErrInvalidArgument, MethodSignature(iface), len(iface.Inputs), len(args))
	}

	var b strings.Builder
	b.Grow(2 + SelectorHexLen + len(args)*WordHexLen)
	b.WriteString("0x")
	b.WriteString(MethodID(iface))
	for _, arg := range args {
		w, err := Hex256(arg)
		if err != nil {
			return "", err
		}
		b.WriteString(w)
	}
	return b.String(), nil
}

// GetParameter returns the n-th 32-byte word of an eth_call result as a
// 0x-prefixed hex string. An empty "0x" result reads as the zero word.
func GetParameter(n int, blob string) (string, error) {
	if !strings.HasPrefix(blob, "0x") {
		return "", fmt.Errorf("%w: result %q is missing the 0x prefix", ErrInvalidArgument, blob)
	}
	body := blob[2:]
	if body == "" {
		body = zeroWord
	}
	if n < 0 {
		return "", fmt.Errorf("%w: negative parameter index %d", ErrInvalidArgument, n)
	}
	start := n * WordHexLen
	end := start + WordHexLen
	if end > len(body) {
		return "", fmt.Errorf("%w: result has no word at index %d", ErrInvalidArgument, n)
	}
	return "0x" + body[start:end], nil
}

// AddressWord renders an address as a call argument.
func AddressWord(addr common.Address) string {
	return "0x" + hex.EncodeToString(addr.Bytes())
}

// BigWord renders a non-negative integer as a call argument.
func BigWord(v *big.Int) string {
	if v == nil || v.Sign() == 0 {
		return "0x0"
	}
	return "0x" + v.Text(16)
}

// WordToBig decodes a word returned by GetParameter.
func WordToBig(word string) (*big.Int, error) {
	body := strings.TrimPrefix(word, "0x")
	if body == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(body, 16)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a hex word", ErrInvalidArgument, word)
	}
	return v, nil
}

// WordToAddress decodes the low 20 bytes of a word.
func WordToAddress(word string) (common.Address, error) {
	body := strings.TrimPrefix(word, "0x")
	if len(body) != WordHexLen {
		return common.Address{}, fmt.Errorf("%w: %q is not a full word", ErrInvalidArgument, word)
	}
	raw, err := hex.DecodeString(body)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return common.BytesToAddress(raw), nil
}

func isHexDigit(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

var stringArgs = ethabi.Arguments{{Type: mustType("string")}}

func mustType(t string) ethabi.Type {
	typ, err := ethabi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// DecodeString reads a call result holding one dynamic string. A single
// 32-byte word is read as a zero-padded bytes32 string.
func DecodeString(blob string) (string, bool) {
	raw, err := hexutil.Decode(blob)
	if err != nil {
		return "", false
	}
	if len(raw) == WordHexLen/2 {
		return strings.TrimRight(string(raw), "\x00"), true
	}
	vals, err := stringArgs.Unpack(raw)
	if err != nil || len(vals) != 1 {
		return "", false
	}
	s, ok := vals[0].(string)
	return s, ok
}
