package chains

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

type NativeCurrency struct {
	Name     string `json:"name" mapstructure:"name"`
	Symbol   string `json:"symbol" mapstructure:"symbol"`
	Decimals uint8  `json:"decimals" mapstructure:"decimals"`
}

// Chain describes one network. Values come from the registry and are never
// modified; use Clone before handing slices to code that may write to them.
type Chain struct {
	ID           uint64         `mapstructure:"id"`
	ShortName    string         `mapstructure:"shortName"`
	Name         string         `mapstructure:"name"`
	Color        string         `mapstructure:"color"`
	RPCURLs      []string       `mapstructure:"rpcUrls"`
	ExplorerURLs []string       `mapstructure:"explorerUrls"`
	Native       NativeCurrency `mapstructure:"nativeCurrency"`
	BlockTime    time.Duration  `mapstructure:"blockTime"`
}

func (c Chain) Clone() Chain {
	c.RPCURLs = slices.Clone(c.RPCURLs)
	c.ExplorerURLs = slices.Clone(c.ExplorerURLs)
	return c
}

func (c Chain) IDHex() string {
	return hexutil.EncodeUint64(c.ID)
}

// AddEthereumChainParameter is the wallet_addEthereumChain argument.
type AddEthereumChainParameter struct {
	ChainID           string         `json:"chainId"`
	ChainName         string         `json:"chainName"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
	RPCURLs           []string       `json:"rpcUrls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls,omitempty"`
}

func (c Chain) AddChainParameter() AddEthereumChainParameter {
	return AddEthereumChainParameter{
		ChainID:           c.IDHex(),
		ChainName:         c.Name,
		NativeCurrency:    c.Native,
		RPCURLs:           slices.Clone(c.RPCURLs),
		BlockExplorerURLs: slices.Clone(c.ExplorerURLs),
	}
}

// TxURL links a transaction on the first explorer, or "" without one.
func (c Chain) TxURL(hash string) string {
	if len(c.ExplorerURLs) == 0 {
		return ""
	}
	return strings.TrimRight(c.ExplorerURLs[0], "/") + "/tx/" + hash
}

func (c Chain) validate() error {
	if c.ID == 0 {
		return fmt.Errorf("chains: chain %q has no id", c.Name)
	}
	if c.Name == "" {
		return fmt.Errorf("chains: chain %d has no name", c.ID)
	}
	if c.BlockTime <= 0 {
		return fmt.Errorf("chains: chain %d has no block time", c.ID)
	}
	if c.Native.Symbol == "" {
		return fmt.Errorf("chains: chain %d has no native currency", c.ID)
	}
	return nil
}

// NormalizeIDHex lower-cases a chain id and adds the 0x prefix; "1" becomes
// "0x1". Leading zeros are dropped so "0x01" and "0x1" compare equal.
func NormalizeIDHex(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimLeft(s, "0")
	if s == "" {
		s = "0"
	}
	return "0x" + s
}

// ParseIDHex decodes a 0x chain id quantity.
func ParseIDHex(s string) (uint64, error) {
	id, err := hexutil.DecodeUint64(NormalizeIDHex(s))
	if err != nil {
		return 0, fmt.Errorf("chains: bad chain id %q: %w", s, err)
	}
	return id, nil
}
