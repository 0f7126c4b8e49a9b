// Package injected talks to a wallet exposed on the local machine (an IPC
// socket or HTTP/WS endpoint) through go-ethereum's rpc client.
package injected

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/quantumauth-io/quantum-go-utils/log"
	"github.com/quantumauth-io/quantum-go-utils/retry"

	"github.com/quantumauth-io/quantum-dapp-core/internal/provider"
)

type Config struct {
	Endpoint string
	// DiscoveryBudget bounds how long Discover keeps probing.
	DiscoveryBudget time.Duration
	RetryDelay      time.Duration
	// PollInterval drives the chain/accounts watcher.
	PollInterval   time.Duration
	SubscribeHeads bool
	// Dial overrides how the client is created. Defaults to rpc.DialContext
	// on Endpoint.
	Dial func(ctx context.Context) (*rpc.Client, error)
}

func (c Config) withDefaults() Config {
	if c.DiscoveryBudget <= 0 {
		c.DiscoveryBudget = 3 * time.Second
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 100 * time.Millisecond
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.Dial == nil {
		endpoint := c.Endpoint
		c.Dial = func(ctx context.Context) (*rpc.Client, error) {
			client, err := rpc.DialContext(ctx, endpoint)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to connect to wallet at %s", endpoint)
			}
			return client, nil
		}
	}
	return c
}

type state struct {
	chainID  string
	accounts []string
}

type Transport struct {
	*provider.Emitter

	client    *rpc.Client
	cfg       Config
	connected atomic.Bool

	mu    sync.Mutex
	state state

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// Discover dials the wallet and probes eth_chainId, retrying with short
// backoff until the discovery budget runs out. A wallet that never answers
// yields provider.ErrNoneAvailable.
func Discover(ctx context.Context, cfg Config) (*Transport, error) {
	if cfg.Endpoint == "" && cfg.Dial == nil {
		return nil, fmt.Errorf("%w: no injected wallet endpoint configured", provider.ErrNoneAvailable)
	}
	cfg = cfg.withDefaults()

	budgetCtx, cancel := context.WithTimeout(ctx, cfg.DiscoveryBudget)
	defer cancel()

	rcfg := retry.DefaultConfig()
	rcfg.InitialDelayBeforeRetrying = cfg.RetryDelay
	rcfg.MaxDelayBeforeRetrying = cfg.RetryDelay * 5

	attempts := 0
	var client *rpc.Client
	var chainID string
	_, err := retry.Retry(budgetCtx, rcfg,
		func(ctx context.Context) ([]interface{}, error) {
			attempts++
			c, err := cfg.Dial(ctx)
			if err != nil {
				return nil, err
			}
			var id string
			if err := c.CallContext(ctx, &id, "eth_chainId"); err != nil {
				c.Close()
				return nil, errors.Wrap(err, "probe eth_chainId")
			}
			client, chainID = c, id
			return nil, nil
		},
		nil,
		"discover injected wallet")
	if err == nil && client == nil {
		err = budgetCtx.Err()
	}
	if err != nil {
		if client != nil {
			client.Close()
		}
		log.Warn("injected wallet not available", "endpoint", cfg.Endpoint, "attempts", attempts, "error", err)
		return nil, fmt.Errorf("%w: %v", provider.ErrNoneAvailable, err)
	}

	t := newTransport(ctx, client, cfg, chainID)
	log.Info("injected wallet connected", "endpoint", cfg.Endpoint, "chainId", chainID)
	return t, nil
}

func newTransport(ctx context.Context, client *rpc.Client, cfg Config, chainID string) *Transport {
	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t := &Transport{
		Emitter: provider.NewEmitter(),
		client:  client,
		cfg:     cfg,
		state:   state{chainID: chainID},
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	t.connected.Store(true)

	if accounts, err := t.accounts(watchCtx); err == nil {
		t.state.accounts = accounts
	}

	go t.watch(watchCtx)
	if cfg.SubscribeHeads {
		go t.subscribeHeads(watchCtx)
	}
	t.Emit(provider.EventConnect, provider.ConnectInfo{ChainID: chainID})
	return t
}

func (t *Transport) IsConnected() bool { return t.connected.Load() }

func (t *Transport) Request(ctx context.Context, args provider.RequestArguments) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := t.client.CallContext(ctx, &raw, args.Method, args.Params...); err != nil {
		return nil, err
	}
	return raw, nil
}

// ChainID returns the chain id last observed by the watcher.
func (t *Transport) ChainID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.chainID
}

func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.cancel()
		<-t.done
		t.client.Close()
		t.Emitter.Close()
	})
	return nil
}

func (t *Transport) accounts(ctx context.Context) ([]string, error) {
	var accounts []string
	if err := t.client.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, err
	}
	for i, a := range accounts {
		accounts[i] = strings.ToLower(a)
	}
	return accounts, nil
}

func (t *Transport) watch(ctx context.Context) {
	defer close(t.done)

	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()
	polls := 0
	for {
		select {
		case <-ctx.Done():
			log.Info("injected wallet watcher exiting", "polls", polls)
			return
		case <-ticker.C:
			polls++
			t.poll(ctx)
		}
	}
}

func (t *Transport) poll(ctx context.Context) {
	var chainID string
	err := t.client.CallContext(ctx, &chainID, "eth_chainId")
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		if t.connected.CompareAndSwap(true, false) {
			log.Warn("injected wallet unreachable", "error", err)
			t.EmitDisconnect(err.Error())
		}
		return
	}
	if t.connected.CompareAndSwap(false, true) {
		t.Emit(provider.EventConnect, provider.ConnectInfo{ChainID: chainID})
	}

	accounts, err := t.accounts(ctx)
	if ctx.Err() != nil {
		return
	}

	t.mu.Lock()
	chainChanged := chainID != t.state.chainID
	t.state.chainID = chainID
	accountsChanged := err == nil && !slices.Equal(accounts, t.state.accounts)
	if accountsChanged {
		t.state.accounts = accounts
	}
	t.mu.Unlock()

	if chainChanged {
		t.Emit(provider.EventChainChanged, chainID)
	}
	if accountsChanged {
		t.Emit(provider.EventAccountsChanged, slices.Clone(accounts))
	}
}

func (t *Transport) subscribeHeads(ctx context.Context) {
	heads := make(chan json.RawMessage, 16)
	sub, err := t.client.EthSubscribe(ctx, heads, "newHeads")
	if err != nil {
		log.Warn("newHeads subscription unavailable", "error", err)
		return
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			if err != nil {
				log.Warn("newHeads subscription ended", "error", err)
			}
			return
		case head := <-heads:
			t.Emit(provider.EventMessage, provider.Message{Type: "eth_subscription", Data: head})
		}
	}
}
