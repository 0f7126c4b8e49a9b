package chainclient

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
)

// CallOptions describes a read-only eth_call. Quantities and Data are 0x hex
// strings; Data is "0x" + selector + words.
type CallOptions struct {
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
	Gas      string `json:"gas,omitempty"`
	GasPrice string `json:"gasPrice,omitempty"`
	Value    string `json:"value,omitempty"`
	Data     string `json:"data,omitempty"`
}

// TransactionOptions describes eth_sendTransaction. From is required.
type TransactionOptions struct {
	CallOptions
	Nonce string `json:"nonce,omitempty"`
}

type Permission struct {
	ParentCapability string          `json:"parentCapability"`
	Invoker          string          `json:"invoker,omitempty"`
	Caveats          json.RawMessage `json:"caveats,omitempty"`
}

// Asset is the wallet_watchAsset argument (EIP-747).
type Asset struct {
	Type    string       `json:"type"`
	Options AssetOptions `json:"options"`
}

type AssetOptions struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
	Image    string `json:"image,omitempty"`
}

type ReceiptStatus uint64

const (
	ReceiptFailed    ReceiptStatus = 0
	ReceiptSucceeded ReceiptStatus = 1
)

// Receipt is the part of a transaction receipt the flows look at.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	Status      ReceiptStatus
}
