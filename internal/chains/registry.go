package chains

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

var defaultChains = []Chain{
	{ID: 1, ShortName: "eth", Name: "Ethereum", Color: "#627eea",
		RPCURLs: []string{"https://eth.llamarpc.com"}, ExplorerURLs: []string{"https://etherscan.io"},
		Native: NativeCurrency{"Ether", "ETH", 18}, BlockTime: 12 * time.Second},
	{ID: 11155111, ShortName: "sep", Name: "Sepolia", Color: "#cfb5f0",
		RPCURLs: []string{"https://rpc.sepolia.org"}, ExplorerURLs: []string{"https://sepolia.etherscan.io"},
		Native: NativeCurrency{"Sepolia Ether", "ETH", 18}, BlockTime: 12 * time.Second},
	{ID: 42161, ShortName: "arb1", Name: "Arbitrum One", Color: "#28a0f0",
		RPCURLs: []string{"https://arb1.arbitrum.io/rpc"}, ExplorerURLs: []string{"https://arbiscan.io"},
		Native: NativeCurrency{"Ether", "ETH", 18}, BlockTime: 250 * time.Millisecond},
	{ID: 10, ShortName: "oeth", Name: "OP Mainnet", Color: "#ff0420",
		RPCURLs: []string{"https://mainnet.optimism.io"}, ExplorerURLs: []string{"https://optimistic.etherscan.io"},
		Native: NativeCurrency{"Ether", "ETH", 18}, BlockTime: 2 * time.Second},
	{ID: 8453, ShortName: "base", Name: "Base", Color: "#0052ff",
		RPCURLs: []string{"https://mainnet.base.org"}, ExplorerURLs: []string{"https://basescan.org"},
		Native: NativeCurrency{"Ether", "ETH", 18}, BlockTime: 2 * time.Second},
	{ID: 137, ShortName: "matic", Name: "Polygon", Color: "#8247e5",
		RPCURLs: []string{"https://polygon-rpc.com"}, ExplorerURLs: []string{"https://polygonscan.com"},
		Native: NativeCurrency{"POL", "POL", 18}, BlockTime: 2 * time.Second},
	{ID: 56, ShortName: "bnb", Name: "BNB Smart Chain", Color: "#f0b90b",
		RPCURLs: []string{"https://bsc-dataseed.binance.org"}, ExplorerURLs: []string{"https://bscscan.com"},
		Native: NativeCurrency{"BNB", "BNB", 18}, BlockTime: 3 * time.Second},
	{ID: 534352, ShortName: "scr", Name: "Scroll", Color: "#ffeeda",
		RPCURLs: []string{"https://rpc.scroll.io"}, ExplorerURLs: []string{"https://scrollscan.com"},
		Native: NativeCurrency{"Ether", "ETH", 18}, BlockTime: 3 * time.Second},
}

// Registry is the read-only set of chains known to the process.
type Registry struct {
	byID map[uint64]Chain
}

// NewRegistry merges configured chains over the built-in table. A configured
// chain replaces the fields it sets on the default with the same id; unknown
// ids are added.
func NewRegistry(configured []Chain) (*Registry, error) {
	r := &Registry{byID: make(map[uint64]Chain, len(defaultChains)+len(configured))}
	for _, c := range defaultChains {
		r.byID[c.ID] = c.Clone()
	}
	for _, c := range configured {
		merged := merge(r.byID[c.ID], c)
		if err := merged.validate(); err != nil {
			return nil, err
		}
		r.byID[c.ID] = merged.Clone()
	}
	return r, nil
}

func merge(base, over Chain) Chain {
	base.ID = over.ID
	if over.ShortName != "" {
		base.ShortName = over.ShortName
	}
	if over.Name != "" {
		base.Name = over.Name
	}
	if over.Color != "" {
		base.Color = over.Color
	}
	if len(over.RPCURLs) > 0 {
		base.RPCURLs = normalizeURLs(over.RPCURLs)
	}
	if len(over.ExplorerURLs) > 0 {
		base.ExplorerURLs = normalizeURLs(over.ExplorerURLs)
	}
	if over.Native.Symbol != "" {
		base.Native = over.Native
	}
	if over.BlockTime > 0 {
		base.BlockTime = over.BlockTime
	}
	return base
}

func normalizeURLs(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, u := range in {
		u = strings.TrimSpace(u)
		key := strings.ToLower(u)
		if u == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, u)
	}
	return out
}

func (r *Registry) ByID(id uint64) (Chain, bool) {
	c, ok := r.byID[id]
	if !ok {
		return Chain{}, false
	}
	return c.Clone(), true
}

func (r *Registry) ByHex(idHex string) (Chain, bool) {
	id, err := ParseIDHex(idHex)
	if err != nil {
		return Chain{}, false
	}
	return r.ByID(id)
}

// ByName matches the short name or full name, case-insensitively.
func (r *Registry) ByName(name string) (Chain, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, c := range r.byID {
		if strings.ToLower(c.ShortName) == name || strings.ToLower(c.Name) == name {
			return c.Clone(), true
		}
	}
	return Chain{}, false
}

// Lookup accepts a decimal id, a 0x id or a name.
func (r *Registry) Lookup(ref string) (Chain, error) {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(strings.ToLower(ref), "0x") {
		if c, ok := r.ByHex(ref); ok {
			return c, nil
		}
	} else {
		if id, err := strconv.ParseUint(ref, 10, 64); err == nil {
			if c, ok := r.ByID(id); ok {
				return c, nil
			}
		}
	}
	if c, ok := r.ByName(ref); ok {
		return c, nil
	}
	return Chain{}, fmt.Errorf("chains: unknown chain %q", ref)
}

// List returns every chain ordered by id.
func (r *Registry) List() []Chain {
	out := make([]Chain, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c.Clone())
	}
	slices.SortFunc(out, func(a, b Chain) int { return cmp.Compare(a.ID, b.ID) })
	return out
}
