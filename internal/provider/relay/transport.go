// Package relay pairs with a remote wallet through a websocket bridge. The
// dApp shows a pairing URI (and QR code); the wallet scans it, approves the
// session and from then on answers JSON-RPC requests published on the
// bridge. Payloads are end-to-end encrypted with the key carried in the URI.
package relay

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/quantum-dapp-core/internal/chainrpc"
	"github.com/quantumauth-io/quantum-dapp-core/internal/provider"
)

type Config struct {
	BridgeURL        string
	HandshakeTimeout time.Duration
	// ChainID is the chain the dApp asks the wallet to start on.
	ChainID string
	Meta    PeerMeta
	// Display is called once per new handshake with the pairing to show.
	Display func(Pairing)

	// SessionFile, when set, stores the approved session for Resume.
	SessionFile       string
	SessionPassphrase []byte

	Dialer *websocket.Dialer
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 2 * time.Minute
	}
	if c.Meta.Name == "" {
		c.Meta.Name = "quantum-dapp"
	}
	return c
}

type Transport struct {
	*provider.Emitter

	cfg      Config
	conn     *bridgeConn
	clientID string
	key      []byte

	mu       sync.Mutex
	peerID   string
	chainID  string
	accounts []string

	nextID    atomic.Uint64
	pendingMu sync.Mutex
	pending   map[uint64]chan rpcMessage

	connected atomic.Bool
	closing   atomic.Bool
	dead      chan struct{}
	deadOnce  sync.Once
	readDone  chan struct{}
}

// Connect resumes a stored session when cfg.SessionFile holds one and runs a
// new pairing handshake otherwise. Any failure to reach or pair with a wallet
// is reported as provider.ErrNoneAvailable.
func Connect(ctx context.Context, cfg Config) (*Transport, error) {
	cfg = cfg.withDefaults()
	if cfg.BridgeURL == "" {
		return nil, fmt.Errorf("%w: no relay bridge configured", provider.ErrNoneAvailable)
	}

	if cfg.SessionFile != "" {
		s, ok, err := LoadSession(cfg.SessionFile, cfg.SessionPassphrase)
		if err != nil {
			log.Warn("ignoring unreadable relay session", "path", cfg.SessionFile, "error", err)
		}
		if ok {
			t, err := Resume(ctx, cfg, s)
			if err == nil {
				return t, nil
			}
			log.Warn("relay session resume failed, pairing again", "error", err)
		}
	}
	return pair(ctx, cfg)
}

// Resume reconnects to the bridge with a previously approved session.
func Resume(ctx context.Context, cfg Config, s Session) (*Transport, error) {
	cfg = cfg.withDefaults()
	key, err := s.key()
	if err != nil {
		return nil, err
	}
	bridge := s.Bridge
	if bridge == "" {
		bridge = cfg.BridgeURL
	}
	conn, err := dialBridge(ctx, cfg.Dialer, bridge)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrNoneAvailable, err)
	}

	t := newTransport(cfg, conn, s.ClientID, key)
	t.peerID, t.chainID, t.accounts = s.PeerID, s.ChainID, slices.Clone(s.Accounts)
	if err := t.start(); err != nil {
		t.Close()
		return nil, fmt.Errorf("%w: %v", provider.ErrNoneAvailable, err)
	}
	t.connected.Store(true)
	log.Info("relay session resumed", "peer", s.PeerID, "chainId", s.ChainID)
	t.Emit(provider.EventConnect, provider.ConnectInfo{ChainID: s.ChainID})
	return t, nil
}

func pair(ctx context.Context, cfg Config) (*Transport, error) {
	key, err := newKey()
	if err != nil {
		return nil, err
	}
	conn, err := dialBridge(ctx, cfg.Dialer, cfg.BridgeURL)
	if err != nil {
		log.Warn("relay bridge unreachable", "bridge", cfg.BridgeURL, "error", err)
		return nil, fmt.Errorf("%w: %v", provider.ErrNoneAvailable, err)
	}

	t := newTransport(cfg, conn, uuid.NewString(), key)
	if err := t.start(); err != nil {
		t.Close()
		return nil, fmt.Errorf("%w: %v", provider.ErrNoneAvailable, err)
	}

	status, err := t.handshake(ctx)
	if err != nil {
		t.Close()
		log.Warn("relay pairing failed", "error", err)
		return nil, fmt.Errorf("%w: %v", provider.ErrNoneAvailable, err)
	}

	t.mu.Lock()
	t.peerID, t.chainID, t.accounts = status.PeerID, status.ChainID, lower(status.Accounts)
	t.mu.Unlock()
	t.connected.Store(true)

	if cfg.SessionFile != "" {
		if err := SaveSession(cfg.SessionFile, t.Session(), cfg.SessionPassphrase); err != nil {
			log.Warn("could not store relay session", "path", cfg.SessionFile, "error", err)
		}
	}
	log.Info("relay session approved", "peer", status.PeerID, "chainId", status.ChainID)
	t.Emit(provider.EventConnect, provider.ConnectInfo{ChainID: status.ChainID})
	return t, nil
}

func newTransport(cfg Config, conn *bridgeConn, clientID string, key []byte) *Transport {
	t := &Transport{
		Emitter:  provider.NewEmitter(),
		cfg:      cfg,
		conn:     conn,
		clientID: clientID,
		key:      key,
		pending:  make(map[uint64]chan rpcMessage),
		dead:     make(chan struct{}),
		readDone: make(chan struct{}),
	}
	t.nextID.Store(uint64(time.Now().UnixMilli()) * 1000)
	return t
}

func (t *Transport) start() error {
	go t.read()
	return t.conn.subscribe(t.clientID)
}

func (t *Transport) handshake(ctx context.Context) (sessionStatus, error) {
	topic := uuid.NewString()
	p := newPairing(PairingURI{Topic: topic, Bridge: t.cfg.BridgeURL, Key: t.key})
	if t.cfg.Display != nil {
		t.cfg.Display(p)
	}

	hctx, cancel := context.WithTimeout(ctx, t.cfg.HandshakeTimeout)
	defer cancel()

	resp, err := t.call(hctx, topic, methodSessionRequest, []any{sessionRequest{
		PeerID:   t.clientID,
		PeerMeta: t.cfg.Meta,
		ChainID:  t.cfg.ChainID,
	}})
	if err != nil {
		return sessionStatus{}, err
	}
	if len(resp.Error) > 0 {
		return sessionStatus{}, &RemoteError{Raw: resp.Error}
	}

	var status sessionStatus
	if err := json.Unmarshal(resp.Result, &status); err != nil {
		return sessionStatus{}, fmt.Errorf("relay: decode session approval: %w", err)
	}
	if !status.Approved {
		return sessionStatus{}, fmt.Errorf("relay: wallet rejected the session")
	}
	if status.PeerID == "" {
		return sessionStatus{}, fmt.Errorf("relay: approval without peer id")
	}
	return status, nil
}

func (t *Transport) IsConnected() bool { return t.connected.Load() }

// Request publishes a JSON-RPC request to the wallet and waits for the
// response with the same id. Cancellation is through ctx.
func (t *Transport) Request(ctx context.Context, args provider.RequestArguments) (json.RawMessage, error) {
	if !t.IsConnected() {
		return nil, &chainrpc.Error{Code: chainrpc.CodeDisconnected, Message: "relay session is not connected"}
	}
	params := args.Params
	if params == nil {
		params = []any{}
	}
	resp, err := t.call(ctx, t.peer(), args.Method, params)
	if err != nil {
		return nil, err
	}
	if len(resp.Error) > 0 {
		return nil, &RemoteError{Raw: resp.Error}
	}
	if len(resp.Result) == 0 {
		return json.RawMessage("null"), nil
	}
	return resp.Result, nil
}

func (t *Transport) call(ctx context.Context, topic, method string, params any) (rpcMessage, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return rpcMessage{}, fmt.Errorf("relay: marshal params: %w", err)
	}
	id := t.nextID.Add(1)
	ch := make(chan rpcMessage, 1)

	t.pendingMu.Lock()
	t.pending[id] = ch
	t.pendingMu.Unlock()
	defer func() {
		t.pendingMu.Lock()
		delete(t.pending, id)
		t.pendingMu.Unlock()
	}()

	if err := t.publish(topic, rpcMessage{ID: id, JSONRPC: "2.0", Method: method, Params: raw}); err != nil {
		return rpcMessage{}, err
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		return rpcMessage{}, ctx.Err()
	case <-t.dead:
		return rpcMessage{}, &chainrpc.Error{Code: chainrpc.CodeDisconnected, Message: "relay session closed"}
	}
}

func (t *Transport) publish(topic string, msg rpcMessage) error {
	payload, err := seal(t.key, topic, msg)
	if err != nil {
		return err
	}
	if err := t.conn.publish(topic, payload, msg.isResponse()); err != nil {
		return fmt.Errorf("relay: publish: %w", err)
	}
	return nil
}

func (t *Transport) read() {
	defer close(t.readDone)
	for {
		msg, err := t.conn.read()
		if err != nil {
			if !t.closing.Load() {
				log.Warn("relay bridge connection lost", "error", err)
				t.end("bridge connection lost", true)
			}
			return
		}
		if msg.Type != socketPub || msg.Topic != t.clientID {
			continue
		}
		m, err := open(t.key, msg.Topic, msg.Payload)
		if err != nil {
			log.Warn("dropping relay payload", "error", err)
			continue
		}
		t.dispatch(m)
	}
}

func (t *Transport) dispatch(m rpcMessage) {
	if m.isResponse() {
		t.pendingMu.Lock()
		ch, ok := t.pending[m.ID]
		t.pendingMu.Unlock()
		if ok {
			select {
			case ch <- m:
			default:
			}
		}
		return
	}

	switch m.Method {
	case "":
	case methodSessionUpdate:
		var params []sessionStatus
		if err := json.Unmarshal(m.Params, &params); err != nil || len(params) == 0 {
			log.Warn("malformed session update", "params", string(m.Params))
			return
		}
		t.update(params[0])
	default:
		t.Emit(provider.EventMessage, provider.Message{Type: m.Method, Data: m.Params})
	}
}

func (t *Transport) update(s sessionStatus) {
	if !s.Approved {
		log.Info("relay session ended by wallet", "peer", t.peer())
		if t.cfg.SessionFile != "" {
			_ = RemoveSession(t.cfg.SessionFile)
		}
		t.end("wallet ended the session", true)
		return
	}

	accounts := lower(s.Accounts)
	t.mu.Lock()
	chainChanged := s.ChainID != "" && s.ChainID != t.chainID
	if chainChanged {
		t.chainID = s.ChainID
	}
	accountsChanged := s.Accounts != nil && !slices.Equal(accounts, t.accounts)
	if accountsChanged {
		t.accounts = accounts
	}
	t.mu.Unlock()

	if chainChanged {
		t.Emit(provider.EventChainChanged, s.ChainID)
	}
	if accountsChanged {
		t.Emit(provider.EventAccountsChanged, slices.Clone(accounts))
	}
	if (chainChanged || accountsChanged) && t.cfg.SessionFile != "" {
		if err := SaveSession(t.cfg.SessionFile, t.Session(), t.cfg.SessionPassphrase); err != nil {
			log.Warn("could not store relay session", "error", err)
		}
	}
}

// end marks the session dead once; pending requests fail with 4900.
func (t *Transport) end(reason string, notify bool) {
	t.deadOnce.Do(func() {
		t.connected.Store(false)
		close(t.dead)
		if notify {
			t.EmitDisconnect(reason)
		}
	})
}

func (t *Transport) peer() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peerID
}

// Session snapshots the current session for persistence.
func (t *Transport) Session() Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Session{
		Bridge:   t.cfg.BridgeURL,
		ClientID: t.clientID,
		PeerID:   t.peerID,
		Key:      hex.EncodeToString(t.key),
		ChainID:  t.chainID,
		Accounts: slices.Clone(t.accounts),
	}
}

// Disconnect tells the wallet the session is over, forgets the stored
// session and closes the transport.
func (t *Transport) Disconnect(ctx context.Context) error {
	var err error
	if t.IsConnected() {
		raw, _ := json.Marshal([]sessionStatus{{Approved: false}})
		err = t.publish(t.peer(), rpcMessage{JSONRPC: "2.0", Method: methodSessionUpdate, Params: raw})
	}
	if t.cfg.SessionFile != "" {
		if rmErr := RemoveSession(t.cfg.SessionFile); rmErr != nil && err == nil {
			err = rmErr
		}
	}
	if closeErr := t.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// Close drops the bridge connection. A stored session stays resumable.
func (t *Transport) Close() error {
	if t.closing.Swap(true) {
		return nil
	}
	t.end("closed", false)
	t.conn.close()
	<-t.readDone
	t.Emitter.Close()
	return nil
}

func lower(accounts []string) []string {
	if accounts == nil {
		return nil
	}
	out := make([]string, len(accounts))
	for i, a := range accounts {
		out[i] = strings.ToLower(a)
	}
	return out
}
