// Package provider defines the wallet transport contract shared by the
// injected and relay implementations, plus the process-wide holder and
// transport selection.
package provider

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNoneAvailable is returned by a transport that could not reach a wallet
// within its discovery or handshake budget.
var ErrNoneAvailable = errors.New("provider: none available")

// RequestArguments is an EIP-1193 request.
type RequestArguments struct {
	Method string `json:"method"`
	Params []any  `json:"params,omitempty"`
}

// Provider is a wallet transport. Request returns the raw result or the raw
// transport error; callers convert errors with chainrpc.FromError.
type Provider interface {
	IsConnected() bool
	Request(ctx context.Context, args RequestArguments) (json.RawMessage, error)
	On(name EventName, l *Listener)
	RemoveListener(name EventName, l *Listener)
}

// Kind names a transport implementation in preferences and configuration.
type Kind string

const (
	KindInjected Kind = "injected"
	KindRelay    Kind = "relay"
)

func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindInjected, KindRelay:
		return Kind(s), true
	}
	return "", false
}
