package provider

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/quantumauth-io/quantum-dapp-core/internal/chainrpc"
)

// Holder owns the active transport for the process. Listeners bound through
// the holder follow the transport across swaps. Holder itself satisfies
// Provider so downstream code never keeps a reference to a replaced
// transport.
type Holder struct {
	mu      sync.RWMutex
	current Provider
	kind    Kind
	bound   []pairKey
}

func NewHolder() *Holder {
	return &Holder{}
}

func (h *Holder) Current() (Provider, Kind) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current, h.kind
}

// Swap installs next and returns the transport it replaced. Every bound
// listener is detached from the old transport before any is attached to the
// new one. Closing the returned transport is up to the caller.
func (h *Holder) Swap(next Provider, kind Kind) Provider {
	h.mu.Lock()
	defer h.mu.Unlock()

	prev := h.current
	if prev != nil {
		for _, b := range h.bound {
			prev.RemoveListener(b.name, b.l)
		}
	}
	h.current, h.kind = next, kind
	if next != nil {
		for _, b := range h.bound {
			next.On(b.name, b.l)
		}
	}
	return prev
}

// Bind registers a listener that survives swaps.
func (h *Holder) Bind(name EventName, l *Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := pairKey{name: name, l: l}
	for _, b := range h.bound {
		if b == key {
			return
		}
	}
	h.bound = append(h.bound, key)
	if h.current != nil {
		h.current.On(name, l)
	}
}

func (h *Holder) Unbind(name EventName, l *Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := pairKey{name: name, l: l}
	for i, b := range h.bound {
		if b == key {
			h.bound = append(h.bound[:i], h.bound[i+1:]...)
			break
		}
	}
	if h.current != nil {
		h.current.RemoveListener(name, l)
	}
}

func (h *Holder) IsConnected() bool {
	p, _ := h.Current()
	return p != nil && p.IsConnected()
}

// Request forwards to the current transport; with none installed it fails
// with a 4900 disconnected error.
func (h *Holder) Request(ctx context.Context, args RequestArguments) (json.RawMessage, error) {
	p, _ := h.Current()
	if p == nil {
		return nil, &chainrpc.Error{Code: chainrpc.CodeDisconnected, Message: "no wallet transport"}
	}
	return p.Request(ctx, args)
}

func (h *Holder) On(name EventName, l *Listener) { h.Bind(name, l) }

func (h *Holder) RemoveListener(name EventName, l *Listener) { h.Unbind(name, l) }
