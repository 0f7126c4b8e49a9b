package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumauth-io/quantum-dapp-core/internal/chainrpc"
	"github.com/quantumauth-io/quantum-dapp-core/internal/provider"
)

// fakeBridge routes pub frames to subscribers of the topic and queues them
// while nobody is subscribed.
type fakeBridge struct {
	mu     sync.Mutex
	subs   map[string][]*bridgePeer
	queued map[string][]socketMessage
	peers  map[*bridgePeer]struct{}
}

type bridgePeer struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (p *bridgePeer) write(m socketMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.ws.WriteJSON(m)
}

func newFakeBridge(t *testing.T) (*fakeBridge, string) {
	t.Helper()
	b := &fakeBridge{
		subs:   map[string][]*bridgePeer{},
		queued: map[string][]socketMessage{},
		peers:  map[*bridgePeer]struct{}{},
	}
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		p := &bridgePeer{ws: ws}
		b.mu.Lock()
		b.peers[p] = struct{}{}
		b.mu.Unlock()
		defer b.drop(p)

		for {
			var m socketMessage
			if err := ws.ReadJSON(&m); err != nil {
				return
			}
			switch m.Type {
			case socketSub:
				b.subscribe(m.Topic, p)
			case socketPub:
				b.publish(m)
			}
		}
	}))
	t.Cleanup(func() {
		b.kill()
		srv.Close()
	})
	return b, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func (b *fakeBridge) subscribe(topic string, p *bridgePeer) {
	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], p)
	queued := b.queued[topic]
	delete(b.queued, topic)
	b.mu.Unlock()
	for _, m := range queued {
		p.write(m)
	}
}

func (b *fakeBridge) publish(m socketMessage) {
	b.mu.Lock()
	subs := append([]*bridgePeer(nil), b.subs[m.Topic]...)
	if len(subs) == 0 {
		b.queued[m.Topic] = append(b.queued[m.Topic], m)
	}
	b.mu.Unlock()
	for _, p := range subs {
		p.write(m)
	}
}

func (b *fakeBridge) drop(p *bridgePeer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.peers, p)
	for topic, subs := range b.subs {
		kept := subs[:0]
		for _, s := range subs {
			if s != p {
				kept = append(kept, s)
			}
		}
		b.subs[topic] = kept
	}
}

// kill drops every connection, as a bridge restart would.
func (b *fakeBridge) kill() {
	b.mu.Lock()
	peers := make([]*bridgePeer, 0, len(b.peers))
	for p := range b.peers {
		peers = append(peers, p)
	}
	b.mu.Unlock()
	for _, p := range peers {
		_ = p.ws.Close()
	}
}

type walletHandler func(params json.RawMessage) (any, *chainrpc.Error)

// fakeWallet is the remote signer side of a session.
type fakeWallet struct {
	id       string
	key      []byte
	conn     *bridgeConn
	approve  bool
	chainID  string
	accounts []string

	mu       sync.Mutex
	dapp     string
	handlers map[string]walletHandler
	seen     []string
}

func startWallet(t *testing.T, uri string, approve bool) *fakeWallet {
	t.Helper()
	p, err := ParseURI(uri)
	require.NoError(t, err)

	conn, err := dialBridge(context.Background(), nil, p.Bridge)
	require.NoError(t, err)
	t.Cleanup(conn.close)

	w := &fakeWallet{
		id:       uuid.NewString(),
		key:      p.Key,
		conn:     conn,
		approve:  approve,
		chainID:  "0x1",
		accounts: []string{"0x00000000000000000000000000000000000000AA"},
		handlers: map[string]walletHandler{
			"eth_chainId": func(json.RawMessage) (any, *chainrpc.Error) { return "0x1", nil },
		},
	}
	require.NoError(t, conn.subscribe(w.id))
	require.NoError(t, conn.subscribe(p.Topic))
	go w.serve()
	return w
}

func (w *fakeWallet) handle(method string, h walletHandler) {
	w.mu.Lock()
	w.handlers[method] = h
	w.mu.Unlock()
}

func (w *fakeWallet) methods() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.seen...)
}

func (w *fakeWallet) serve() {
	for {
		msg, err := w.conn.read()
		if err != nil {
			return
		}
		m, err := open(w.key, msg.Topic, msg.Payload)
		if err != nil {
			continue
		}
		w.mu.Lock()
		w.seen = append(w.seen, m.Method)
		w.mu.Unlock()

		switch m.Method {
		case methodSessionRequest:
			var params []sessionRequest
			if json.Unmarshal(m.Params, &params) != nil || len(params) != 1 {
				continue
			}
			w.mu.Lock()
			w.dapp = params[0].PeerID
			w.mu.Unlock()
			w.reply(m.ID, sessionStatus{Approved: w.approve, ChainID: w.chainID, Accounts: w.accounts, PeerID: w.id}, nil)
		case methodSessionUpdate:
		default:
			w.mu.Lock()
			h, ok := w.handlers[m.Method]
			w.mu.Unlock()
			if !ok {
				w.reply(m.ID, nil, &chainrpc.Error{Code: chainrpc.CodeMethodNotFound, Message: "method not found"})
				continue
			}
			go func(m rpcMessage) {
				res, rpcErr := h(m.Params)
				w.reply(m.ID, res, rpcErr)
			}(m)
		}
	}
}

func (w *fakeWallet) reply(id uint64, result any, rpcErr *chainrpc.Error) {
	resp := rpcMessage{ID: id, JSONRPC: "2.0"}
	if rpcErr != nil {
		resp.Error, _ = json.Marshal(rpcErr)
	} else {
		resp.Result, _ = json.Marshal(result)
	}
	w.send(resp)
}

func (w *fakeWallet) notify(method string, params any) {
	raw, _ := json.Marshal(params)
	w.send(rpcMessage{JSONRPC: "2.0", Method: method, Params: raw})
}

func (w *fakeWallet) send(m rpcMessage) {
	w.mu.Lock()
	dapp := w.dapp
	w.mu.Unlock()
	payload, err := seal(w.key, dapp, m)
	if err != nil {
		return
	}
	_ = w.conn.publish(dapp, payload, m.isResponse())
}

func pairWithWallet(t *testing.T, cfg Config, approve bool) (*Transport, *fakeWallet, error) {
	t.Helper()
	wallets := make(chan *fakeWallet, 1)
	cfg.Display = func(p Pairing) {
		wallets <- startWallet(t, p.URI, approve)
	}
	tr, err := Connect(context.Background(), cfg)
	var w *fakeWallet
	select {
	case w = <-wallets:
	default:
	}
	if tr != nil {
		t.Cleanup(func() { _ = tr.Close() })
	}
	return tr, w, err
}

func TestPairAndRequest(t *testing.T) {
	_, bridge := newFakeBridge(t)

	tr, w, err := pairWithWallet(t, Config{BridgeURL: bridge, HandshakeTimeout: 5 * time.Second, ChainID: "0x1"}, true)
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.True(t, tr.IsConnected())

	s := tr.Session()
	assert.Equal(t, w.id, s.PeerID)
	assert.Equal(t, "0x1", s.ChainID)
	assert.Equal(t, []string{"0x00000000000000000000000000000000000000aa"}, s.Accounts)

	ctx := context.Background()
	raw, err := tr.Request(ctx, provider.RequestArguments{Method: "eth_chainId"})
	require.NoError(t, err)
	assert.JSONEq(t, `"0x1"`, string(raw))

	w.handle("eth_sendTransaction", func(json.RawMessage) (any, *chainrpc.Error) {
		return nil, &chainrpc.Error{Code: chainrpc.CodeUserRejected, Message: "User rejected the request."}
	})
	_, err = tr.Request(ctx, provider.RequestArguments{Method: "eth_sendTransaction", Params: []any{map[string]string{"from": "0x1"}}})
	require.Error(t, err)
	assert.Equal(t, chainrpc.CodeUserRejected, chainrpc.FromError(err).Code)

	_, err = tr.Request(ctx, provider.RequestArguments{Method: "eth_unknown"})
	assert.Equal(t, chainrpc.CodeMethodNotFound, chainrpc.FromError(err).Code)

	// concurrent requests resolve independently
	block := make(chan struct{})
	w.handle("eth_blockNumber", func(json.RawMessage) (any, *chainrpc.Error) {
		<-block
		return "0x10", nil
	})
	slow := make(chan error, 1)
	go func() {
		_, err := tr.Request(ctx, provider.RequestArguments{Method: "eth_blockNumber"})
		slow <- err
	}()
	_, err = tr.Request(ctx, provider.RequestArguments{Method: "eth_chainId"})
	require.NoError(t, err)
	close(block)
	require.NoError(t, <-slow)
}

func TestPairRejected(t *testing.T) {
	_, bridge := newFakeBridge(t)
	_, _, err := pairWithWallet(t, Config{BridgeURL: bridge, HandshakeTimeout: 5 * time.Second}, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, provider.ErrNoneAvailable))
}

func TestPairTimeout(t *testing.T) {
	_, bridge := newFakeBridge(t)
	displayed := false
	_, err := Connect(context.Background(), Config{
		BridgeURL:        bridge,
		HandshakeTimeout: 100 * time.Millisecond,
		Display:          func(Pairing) { displayed = true },
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, provider.ErrNoneAvailable))
	assert.True(t, displayed)
}

func TestBridgeUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	_, err := Connect(context.Background(), Config{BridgeURL: url, HandshakeTimeout: time.Second})
	assert.True(t, errors.Is(err, provider.ErrNoneAvailable))

	_, err = Connect(context.Background(), Config{})
	assert.True(t, errors.Is(err, provider.ErrNoneAvailable))
}

func TestSessionUpdates(t *testing.T) {
	_, bridge := newFakeBridge(t)
	tr, w, err := pairWithWallet(t, Config{BridgeURL: bridge, HandshakeTimeout: 5 * time.Second}, true)
	require.NoError(t, err)

	events := make(chan provider.Event, 8)
	l := provider.NewListener(func(ev provider.Event) { events <- ev })
	for _, name := range []provider.EventName{
		provider.EventChainChanged, provider.EventAccountsChanged,
		provider.EventMessage, provider.EventDisconnect,
	} {
		tr.On(name, l)
	}
	next := func() provider.Event {
		select {
		case ev := <-events:
			return ev
		case <-time.After(2 * time.Second):
			t.Fatal("no event")
			return provider.Event{}
		}
	}

	w.notify(methodSessionUpdate, []sessionStatus{{Approved: true, ChainID: "0x89", Accounts: w.accounts}})
	ev := next()
	assert.Equal(t, provider.EventChainChanged, ev.Name)
	assert.Equal(t, "0x89", ev.Payload)

	w.notify(methodSessionUpdate, []sessionStatus{{Approved: true, ChainID: "0x89", Accounts: []string{"0xBB"}}})
	ev = next()
	assert.Equal(t, provider.EventAccountsChanged, ev.Name)
	assert.Equal(t, []string{"0xbb"}, ev.Payload)

	w.notify("qd_walletNotice", []string{"low battery"})
	ev = next()
	assert.Equal(t, provider.EventMessage, ev.Name)
	msg, ok := ev.Payload.(provider.Message)
	require.True(t, ok)
	assert.Equal(t, "qd_walletNotice", msg.Type)

	w.notify(methodSessionUpdate, []sessionStatus{{Approved: false}})
	ev = next()
	assert.Equal(t, provider.EventDisconnect, ev.Name)
	assert.Equal(t, chainrpc.CodeDisconnected, ev.Payload.(*chainrpc.Error).Code)
	assert.False(t, tr.IsConnected())

	_, err = tr.Request(context.Background(), provider.RequestArguments{Method: "eth_chainId"})
	assert.Equal(t, chainrpc.CodeDisconnected, chainrpc.FromError(err).Code)
}

func TestBridgeDropFailsPending(t *testing.T) {
	b, bridge := newFakeBridge(t)
	tr, w, err := pairWithWallet(t, Config{BridgeURL: bridge, HandshakeTimeout: 5 * time.Second}, true)
	require.NoError(t, err)

	stop := make(chan struct{})
	t.Cleanup(func() { close(stop) })
	w.handle("eth_sendTransaction", func(json.RawMessage) (any, *chainrpc.Error) {
		<-stop
		return nil, nil
	})
	done := make(chan error, 1)
	go func() {
		_, err := tr.Request(context.Background(), provider.RequestArguments{Method: "eth_sendTransaction"})
		done <- err
	}()

	require.Eventually(t, func() bool {
		for _, m := range w.methods() {
			if m == "eth_sendTransaction" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
	b.kill()

	select {
	case err := <-done:
		assert.Equal(t, chainrpc.CodeDisconnected, chainrpc.FromError(err).Code)
	case <-time.After(2 * time.Second):
		t.Fatal("pending request was not failed")
	}
	assert.False(t, tr.IsConnected())
}

func TestResumeStoredSession(t *testing.T) {
	_, bridge := newFakeBridge(t)
	file := filepath.Join(t.TempDir(), "relay_session.json")
	cfg := Config{BridgeURL: bridge, HandshakeTimeout: 5 * time.Second, SessionFile: file, SessionPassphrase: []byte("pw")}

	first, w, err := pairWithWallet(t, cfg, true)
	require.NoError(t, err)
	stored, ok, err := LoadSession(file, []byte("pw"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, w.id, stored.PeerID)
	require.NoError(t, first.Close())

	cfg.Display = func(Pairing) { t.Error("resume must not pair again") }
	second, err := Connect(context.Background(), cfg)
	require.NoError(t, err)
	defer second.Close()
	assert.Equal(t, stored.ClientID, second.Session().ClientID)

	raw, err := second.Request(context.Background(), provider.RequestArguments{Method: "eth_chainId"})
	require.NoError(t, err)
	assert.JSONEq(t, `"0x1"`, string(raw))

	require.NoError(t, second.Disconnect(context.Background()))
	_, ok, err = LoadSession(file, []byte("pw"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPairingURI(t *testing.T) {
	key := bytes.Repeat([]byte{7}, 32)
	in := PairingURI{Topic: "3f1b7c9e-topic", Bridge: "wss://bridge.example.org/ws?x=1", Key: key}

	out, err := ParseURI(in.String())
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.True(t, strings.HasPrefix(in.String(), "qd:3f1b7c9e-topic@1?"))

	p := newPairing(in)
	assert.Len(t, p.Code, 8)
	assert.Equal(t, ConfirmationCode(out.Key, out.Topic), p.Code)
	require.NotEmpty(t, p.QR)
	assert.True(t, bytes.HasPrefix(p.QR, []byte("\x89PNG")))

	_, err = ParseURI("wc:topic@1?bridge=x&key=00")
	assert.Error(t, err)
	_, err = ParseURI("qd:topic@2?bridge=x&key=" + strings.Repeat("07", 32))
	assert.Error(t, err)
}

func TestSealBindsTopic(t *testing.T) {
	key, err := newKey()
	require.NoError(t, err)
	payload, err := seal(key, "a", rpcMessage{JSONRPC: "2.0", Method: "x"})
	require.NoError(t, err)

	m, err := open(key, "a", payload)
	require.NoError(t, err)
	assert.Equal(t, "x", m.Method)

	_, err = open(key, "b", payload)
	assert.ErrorIs(t, err, errOpen)
}
