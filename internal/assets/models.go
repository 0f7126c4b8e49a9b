package assets

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/quantumauth-io/quantum-dapp-core/internal/chainclient"
)

type Asset struct {
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
	Name     string         `json:"name,omitempty"`
	LogoURI  string         `json:"logoUri,omitempty"`
}

// WatchParams is the wallet_watchAsset argument for a.
func (a Asset) WatchParams() chainclient.Asset {
	return chainclient.Asset{
		Type: "ERC20",
		Options: chainclient.AssetOptions{
			Address:  a.Address.Hex(),
			Symbol:   a.Symbol,
			Decimals: a.Decimals,
			Image:    a.LogoURI,
		},
	}
}

type Store struct {
	// chain id (0x hex) -> checksummed address -> asset
	Chains map[string]map[string]Asset `json:"chains"`
	Schema int                         `json:"schema"`
}
