package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedDefaults(t *testing.T) {
	cfg, err := LoadFrom([]string{t.TempDir()})
	require.NoError(t, err)

	assert.Equal(t, "", cfg.Wallet.Transport)
	assert.Equal(t, 3*time.Second, cfg.Wallet.Injected.DiscoveryBudget)
	assert.Equal(t, 2*time.Minute, cfg.Wallet.Relay.HandshakeTimeout)
	assert.Equal(t, "file", cfg.Preferences.Backend)
	assert.Equal(t, 20.0, cfg.Wallet.RequestsPerSecond)
	assert.Empty(t, cfg.Chains)
	assert.Empty(t, cfg.Assets.Defaults)

	ceiling, err := cfg.Flow.Ceiling()
	require.NoError(t, err)
	assert.Nil(t, ceiling)
}

func TestFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	doc := `
wallet:
  transport: injected
  injected:
    endpoint: "http://127.0.0.1:9545"
preferences:
  backend: redis
chains:
  - id: 31337
    name: "Local"
    shortName: "local"
    blockTime: 1s
    rpcUrls: ["http://127.0.0.1:9545"]
    nativeCurrency:
      name: Ether
      symbol: ETH
      decimals: 18
flow:
  approvalCeiling: "1000000"
assets:
  defaults:
    "31337": ["0x00000000000000000000000000000000000000aa"]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(doc), 0o600))
	t.Setenv("QD_WALLET_TRANSPORT", "relay")
	t.Setenv("QD_METRICS_ADDR", "127.0.0.1:9100")

	cfg, err := LoadFrom([]string{dir})
	require.NoError(t, err)

	assert.Equal(t, "relay", cfg.Wallet.Transport)
	assert.Equal(t, "http://127.0.0.1:9545", cfg.Wallet.Injected.Endpoint)
	// untouched keys keep their defaults
	assert.Equal(t, 2*time.Second, cfg.Wallet.Injected.PollInterval)
	assert.Equal(t, "redis", cfg.Preferences.Backend)
	assert.Equal(t, "127.0.0.1:9100", cfg.Metrics.Addr)

	require.Len(t, cfg.Chains, 1)
	c := cfg.Chains[0]
	assert.Equal(t, uint64(31337), c.ID)
	assert.Equal(t, time.Second, c.BlockTime)
	assert.Equal(t, []string{"http://127.0.0.1:9545"}, c.RPCURLs)
	assert.Equal(t, "ETH", c.Native.Symbol)

	assert.Equal(t, []string{"0x00000000000000000000000000000000000000aa"}, cfg.Assets.Defaults["31337"])

	ceiling, err := cfg.Flow.Ceiling()
	require.NoError(t, err)
	assert.Equal(t, int64(1000000), ceiling.Int64())
}

func TestValidation(t *testing.T) {
	dir := t.TempDir()

	t.Setenv("QD_WALLET_TRANSPORT", "carrier-pigeon")
	_, err := LoadFrom([]string{dir})
	assert.ErrorContains(t, err, "wallet.transport")

	t.Setenv("QD_WALLET_TRANSPORT", "")
	t.Setenv("QD_PREFERENCES_BACKEND", "postgres")
	_, err = LoadFrom([]string{dir})
	assert.ErrorContains(t, err, "preferences.backend")
}

func TestCeiling(t *testing.T) {
	v, err := FlowConfig{ApprovalCeiling: "0xffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"}.Ceiling()
	require.NoError(t, err)
	assert.Zero(t, v.Cmp(math.MaxBig256))

	_, err = FlowConfig{ApprovalCeiling: "0x1" + "0000000000000000000000000000000000000000000000000000000000000000"}.Ceiling()
	assert.Error(t, err)
	_, err = FlowConfig{ApprovalCeiling: "-5"}.Ceiling()
	assert.Error(t, err)
	_, err = FlowConfig{ApprovalCeiling: "lots"}.Ceiling()
	assert.Error(t, err)
}
