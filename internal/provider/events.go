package provider

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/event"

	"github.com/quantumauth-io/quantum-dapp-core/internal/chainrpc"
)

type EventName string

const (
	EventConnect         EventName = "connect"
	EventDisconnect      EventName = "disconnect"
	EventChainChanged    EventName = "chainChanged"
	EventAccountsChanged EventName = "accountsChanged"
	EventMessage         EventName = "message"
)

// Payload types per event:
//
//	connect          ConnectInfo
//	disconnect       *chainrpc.Error
//	chainChanged     string (0x chain id)
//	accountsChanged  []string
//	message          Message
type Event struct {
	Name    EventName
	Payload any
}

type ConnectInfo struct {
	ChainID string `json:"chainId"`
}

type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Listener wraps a callback. Its pointer is its identity: registering the
// same *Listener twice for one event is a no-op and RemoveListener with that
// pointer removes exactly that registration.
type Listener struct {
	fn func(Event)
}

func NewListener(fn func(Event)) *Listener {
	return &Listener{fn: fn}
}

type pairKey struct {
	name EventName
	l    *Listener
}

type registration struct {
	sub    event.Subscription
	active atomic.Bool
}

// Emitter fans events out to listeners. Each (event, listener) pair owns one
// feed subscription with a 16-event buffer and one delivery goroutine. A slow
// listener does not delay the others until its buffer is full; after that
// Emit blocks for every listener of the event until it catches up.
type Emitter struct {
	mu    sync.Mutex
	feeds map[EventName]*event.Feed
	regs  map[pairKey]*registration
}

func NewEmitter() *Emitter {
	return &Emitter{
		feeds: make(map[EventName]*event.Feed),
		regs:  make(map[pairKey]*registration),
	}
}

func (e *Emitter) feed(name EventName) *event.Feed {
	f, ok := e.feeds[name]
	if !ok {
		f = new(event.Feed)
		e.feeds[name] = f
	}
	return f
}

func (e *Emitter) On(name EventName, l *Listener) {
	if l == nil || l.fn == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	key := pairKey{name: name, l: l}
	if _, ok := e.regs[key]; ok {
		return
	}

	ch := make(chan Event, 16)
	reg := &registration{}
	reg.active.Store(true)
	reg.sub = e.feed(name).Subscribe(ch)
	e.regs[key] = reg

	go func() {
		for {
			select {
			case ev := <-ch:
				// a removal can race with a buffered event
				if reg.active.Load() {
					l.fn(ev)
				}
			case <-reg.sub.Err():
				return
			}
		}
	}()
}

// RemoveListener is idempotent and may be called from inside a listener.
func (e *Emitter) RemoveListener(name EventName, l *Listener) {
	e.mu.Lock()
	key := pairKey{name: name, l: l}
	reg, ok := e.regs[key]
	if ok {
		delete(e.regs, key)
		reg.active.Store(false)
	}
	e.mu.Unlock()

	if ok {
		reg.sub.Unsubscribe()
	}
}

// Emit delivers payload to every listener registered for name and returns
// how many received it.
func (e *Emitter) Emit(name EventName, payload any) int {
	e.mu.Lock()
	f := e.feed(name)
	e.mu.Unlock()
	return f.Send(Event{Name: name, Payload: payload})
}

func (e *Emitter) ListenerCount(name EventName) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for key := range e.regs {
		if key.name == name {
			n++
		}
	}
	return n
}

// Close removes every listener.
func (e *Emitter) Close() {
	e.mu.Lock()
	regs := e.regs
	e.regs = make(map[pairKey]*registration)
	e.mu.Unlock()

	for _, reg := range regs {
		reg.active.Store(false)
		reg.sub.Unsubscribe()
	}
}

// EmitDisconnect is shorthand for a disconnect with a 4900 error.
func (e *Emitter) EmitDisconnect(message string) {
	e.Emit(EventDisconnect, &chainrpc.Error{Code: chainrpc.CodeDisconnected, Message: message})
}
