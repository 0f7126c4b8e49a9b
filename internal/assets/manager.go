// Package assets keeps the user's token list per chain, persisted as a
// plain JSON file next to the other dApp state.
package assets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/quantum-dapp-core/internal/chainclient"
	"github.com/quantumauth-io/quantum-dapp-core/internal/chainrpc"
	"github.com/quantumauth-io/quantum-dapp-core/internal/chains"
	"github.com/quantumauth-io/quantum-dapp-core/internal/constants"
	"github.com/quantumauth-io/quantum-dapp-core/internal/erc20"
	"github.com/quantumauth-io/quantum-dapp-core/internal/provider"
	"github.com/quantumauth-io/quantum-dapp-core/internal/securefile"
)

var ErrInvalidAddress = errors.New("assets: invalid token address")

type Manager struct {
	mu         sync.Mutex
	path       string
	store      Store
	loaded     bool
	fetchDelay time.Duration
}

// NewManager opens the list at path. An empty path resolves assets.json
// through securefile.ConfigPathCandidates: the first existing candidate,
// else the first candidate.
func NewManager(path string) (*Manager, error) {
	if path == "" {
		var err error
		if path, err = resolvePath(constants.AppName); err != nil {
			return nil, err
		}
	}
	return &Manager{path: path, store: emptyStore(), fetchDelay: 250 * time.Millisecond}, nil
}

func (m *Manager) Path() string { return m.path }

// Load reads the file. A missing file is an empty list.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLocked()
}

func (m *Manager) loadLocked() error {
	s, err := securefile.ReadJSON[Store](m.path)
	if errors.Is(err, os.ErrNotExist) {
		m.store, m.loaded = emptyStore(), true
		return nil
	}
	if err != nil {
		return fmt.Errorf("read assets file: %w", err)
	}

	normalized := emptyStore()
	if s.Schema != 0 {
		normalized.Schema = s.Schema
	}
	for key, byAddr := range s.Chains {
		ck := chains.NormalizeIDHex(key)
		if ck == "" || ck == "0x0" {
			continue
		}
		for addrKey, a := range byAddr {
			if !common.IsHexAddress(addrKey) {
				log.Warn("skipping malformed asset entry", "chainId", ck, "address", addrKey)
				continue
			}
			a.Address = common.HexToAddress(addrKey)
			normalized.put(ck, a)
		}
	}
	m.store, m.loaded = normalized, true
	return nil
}

func (m *Manager) ensureLoaded() error {
	if m.loaded {
		return nil
	}
	return m.loadLocked()
}

// List returns the assets of one chain ordered by symbol.
func (m *Manager) List(chainID uint64) ([]Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(); err != nil {
		return nil, err
	}

	byAddr := m.store.Chains[chainKey(chainID)]
	out := make([]Asset, 0, len(byAddr))
	for _, a := range byAddr {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		si, sj := strings.ToLower(out[i].Symbol), strings.ToLower(out[j].Symbol)
		if si != sj {
			return si < sj
		}
		return out[i].Address.Hex() < out[j].Address.Hex()
	})
	return out, nil
}

// Add fetches metadata for token through the wallet and stores it.
func (m *Manager) Add(ctx context.Context, p provider.Provider, chain chains.Chain, token string) (Asset, error) {
	addr, err := normalizeAddress(token)
	if err != nil {
		return Asset{}, err
	}
	a, rpcErr := Fetch(ctx, p, chain, addr).Unwrap()
	if rpcErr != nil {
		return Asset{}, fmt.Errorf("fetch asset %s: %w", addr.Hex(), rpcErr)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(); err != nil {
		return Asset{}, err
	}
	m.store.put(chain.IDHex(), a)
	if err := m.persistLocked(); err != nil {
		return Asset{}, err
	}
	log.Info("asset added", "chainId", chain.IDHex(), "address", a.Address.Hex(), "symbol", a.Symbol)
	return a, nil
}

// Remove drops token from a chain's list. It reports whether anything was
// removed.
func (m *Manager) Remove(chainID uint64, token string) (bool, error) {
	addr, err := normalizeAddress(token)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(); err != nil {
		return false, err
	}
	ck := chainKey(chainID)
	byAddr := m.store.Chains[ck]
	if _, ok := byAddr[addr.Hex()]; !ok {
		return false, nil
	}
	delete(byAddr, addr.Hex())
	if len(byAddr) == 0 {
		delete(m.store.Chains, ck)
	}
	return true, m.persistLocked()
}

// EnsureDefaults adds the tokens of defaults that are not yet listed for
// chain. Entries the user already has are never refetched. Requests are
// spaced by the fetch delay so public RPCs behind the wallet do not throttle.
func (m *Manager) EnsureDefaults(ctx context.Context, p provider.Provider, chain chains.Chain, defaults []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(); err != nil {
		return err
	}

	ck := chain.IDHex()
	changed := false
	for i, raw := range defaults {
		addr, err := normalizeAddress(raw)
		if err != nil {
			return fmt.Errorf("defaults[%d]: %w", i, err)
		}
		if _, ok := m.store.Chains[ck][addr.Hex()]; ok {
			continue
		}
		if changed && m.fetchDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(m.fetchDelay):
			}
		}
		a, rpcErr := Fetch(ctx, p, chain, addr).Unwrap()
		if rpcErr != nil {
			return fmt.Errorf("fetch asset %s: %w", addr.Hex(), rpcErr)
		}
		m.store.put(ck, a)
		changed = true
	}
	if !changed {
		return nil
	}
	return m.persistLocked()
}

// Suggest asks the wallet to track a. The native currency cannot be
// suggested.
func Suggest(ctx context.Context, p provider.Provider, a Asset) chainrpc.Result[bool] {
	if erc20.IsNative(a.Address) {
		return chainrpc.Fail[bool](&chainrpc.Error{Code: chainrpc.CodeInvalidParams, Message: "native currency cannot be watched"})
	}
	return chainclient.WatchAsset(ctx, p, a.WatchParams())
}

func (m *Manager) persistLocked() error {
	m.store.Schema = constants.SchemaV1
	if err := securefile.WriteJSON(m.path, m.store); err != nil {
		return fmt.Errorf("write assets file: %w", err)
	}
	return nil
}

func (s *Store) put(ck string, a Asset) {
	if s.Chains[ck] == nil {
		s.Chains[ck] = map[string]Asset{}
	}
	s.Chains[ck][a.Address.Hex()] = a
}

func emptyStore() Store {
	return Store{Schema: constants.SchemaV1, Chains: map[string]map[string]Asset{}}
}

func chainKey(id uint64) string {
	return chains.Chain{ID: id}.IDHex()
}

func resolvePath(appName string) (string, error) {
	cands, err := securefile.ConfigPathCandidates(appName, constants.AssetsFile)
	if err != nil {
		return "", err
	}
	if len(cands) == 0 {
		return "", fmt.Errorf("assets: no config path candidates")
	}
	for _, p := range cands {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return cands[0], nil
}

func normalizeAddress(s string) (common.Address, error) {
	a := strings.TrimSpace(s)
	if a == "" {
		return common.Address{}, fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	if !strings.HasPrefix(a, "0x") && !strings.HasPrefix(a, "0X") {
		a = "0x" + a
	}
	if !common.IsHexAddress(a) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(a), nil
}
