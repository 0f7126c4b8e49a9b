package chainrpc

import "strconv"

// Code is a provider or JSON-RPC error code.
type Code int

// Wallet level codes (EIP-1193 / EIP-3085).
const (
	CodeUserRejected        Code = 4001
	CodeUnauthorized        Code = 4100
	CodeUnsupportedMethod   Code = 4200
	CodeDisconnected        Code = 4900
	CodeChainDisconnected   Code = 4901
	CodeUnrecognizedChainID Code = 4902
)

// JSON-RPC codes, standard and the non-standard EIP-1474 range.
const (
	CodeParseError          Code = -32700
	CodeInvalidRequest      Code = -32600
	CodeMethodNotFound      Code = -32601
	CodeInvalidParams       Code = -32602
	CodeInternal            Code = -32603
	CodeInvalidInput        Code = -32000
	CodeResourceNotFound    Code = -32001
	CodeResourceUnavailable Code = -32002
	CodeTransactionRejected Code = -32003
	CodeMethodNotSupported  Code = -32004
	CodeLimitExceeded       Code = -32005
	CodeVersionUnsupported  Code = -32006
)

var codeNames = map[Code]string{
	CodeUserRejected:        "user rejected request",
	CodeUnauthorized:        "unauthorized",
	CodeUnsupportedMethod:   "unsupported method",
	CodeDisconnected:        "disconnected",
	CodeChainDisconnected:   "chain disconnected",
	CodeUnrecognizedChainID: "unrecognized chain id",
	CodeParseError:          "parse error",
	CodeInvalidRequest:      "invalid request",
	CodeMethodNotFound:      "method not found",
	CodeInvalidParams:       "invalid params",
	CodeInternal:            "internal error",
	CodeInvalidInput:        "invalid input",
	CodeResourceNotFound:    "resource not found",
	CodeResourceUnavailable: "resource unavailable",
	CodeTransactionRejected: "transaction rejected",
	CodeMethodNotSupported:  "method not supported",
	CodeLimitExceeded:       "limit exceeded",
	CodeVersionUnsupported:  "json-rpc version not supported",
}

// Known reports whether c belongs to the recognised enumeration.
func (c Code) Known() bool {
	_, ok := codeNames[c]
	return ok
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "code " + strconv.Itoa(int(c))
}

// WalletState reports whether the code describes wallet state rather than a
// node or transport failure.
func (c Code) WalletState() bool {
	switch c {
	case CodeUnauthorized, CodeUnsupportedMethod, CodeDisconnected, CodeChainDisconnected:
		return true
	}
	return false
}
