package relay

import (
	"encoding/json"
)

const (
	methodSessionRequest = "qd_sessionRequest"
	methodSessionUpdate  = "qd_sessionUpdate"

	socketPub = "pub"
	socketSub = "sub"
)

// socketMessage is the bridge frame. Payload is an encrypted rpcMessage.
type socketMessage struct {
	Topic   string `json:"topic"`
	Type    string `json:"type"`
	Payload string `json:"payload"`
	Silent  bool   `json:"silent"`
}

// rpcMessage is a JSON-RPC 2.0 request, notification or response.
type rpcMessage struct {
	ID      uint64          `json:"id,omitempty"`
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

func (m rpcMessage) isResponse() bool {
	return m.Method == "" && m.ID != 0
}

type PeerMeta struct {
	Name        string `json:"name"`
	URL         string `json:"url,omitempty"`
	Description string `json:"description,omitempty"`
}

type sessionRequest struct {
	PeerID   string   `json:"peerId"`
	PeerMeta PeerMeta `json:"peerMeta"`
	ChainID  string   `json:"chainId,omitempty"`
}

// sessionStatus is both the handshake answer and the payload of
// qd_sessionUpdate.
type sessionStatus struct {
	Approved bool      `json:"approved"`
	ChainID  string    `json:"chainId,omitempty"`
	Accounts []string  `json:"accounts,omitempty"`
	PeerID   string    `json:"peerId,omitempty"`
	PeerMeta *PeerMeta `json:"peerMeta,omitempty"`
}

// RemoteError carries a JSON-RPC error object returned by the wallet,
// undecoded. chainrpc.FromError validates it.
type RemoteError struct {
	Raw json.RawMessage
}

func (e *RemoteError) Error() string { return "relay: wallet error " + string(e.Raw) }

func (e *RemoteError) RawError() json.RawMessage { return e.Raw }
