// Package providertest supplies a scripted in-memory Provider for tests.
package providertest

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/quantumauth-io/quantum-dapp-core/internal/chainrpc"
	"github.com/quantumauth-io/quantum-dapp-core/internal/provider"
)

// Handler answers one method. A json.RawMessage result is returned as is;
// anything else is marshalled.
type Handler func(ctx context.Context, params []any) (any, error)

type Fake struct {
	*provider.Emitter

	mu       sync.Mutex
	handlers map[string]Handler
	calls    []provider.RequestArguments

	connected atomic.Bool
}

func New() *Fake {
	f := &Fake{
		Emitter:  provider.NewEmitter(),
		handlers: make(map[string]Handler),
	}
	f.connected.Store(true)
	return f
}

func (f *Fake) Handle(method string, h Handler) {
	f.mu.Lock()
	f.handlers[method] = h
	f.mu.Unlock()
}

// Return answers method with a fixed result.
func (f *Fake) Return(method string, result any) {
	f.Handle(method, func(context.Context, []any) (any, error) { return result, nil })
}

// Fail answers method with a fixed error.
func (f *Fake) Fail(method string, err error) {
	f.Handle(method, func(context.Context, []any) (any, error) { return nil, err })
}

func (f *Fake) SetConnected(v bool) { f.connected.Store(v) }

func (f *Fake) IsConnected() bool { return f.connected.Load() }

func (f *Fake) Request(ctx context.Context, args provider.RequestArguments) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, args)
	h, ok := f.handlers[args.Method]
	f.mu.Unlock()

	if !ok {
		return nil, &chainrpc.Error{Code: chainrpc.CodeUnsupportedMethod, Message: args.Method + " not scripted"}
	}
	res, err := h(ctx, args.Params)
	if err != nil {
		return nil, err
	}
	if raw, ok := res.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(res)
}

// Calls returns the recorded requests for method, or all of them when method
// is empty.
func (f *Fake) Calls(method string) []provider.RequestArguments {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []provider.RequestArguments
	for _, c := range f.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Rejected is a 4001 error as a wallet would raise it.
func Rejected() error {
	return &chainrpc.Error{Code: chainrpc.CodeUserRejected, Message: "User rejected the request."}
}
