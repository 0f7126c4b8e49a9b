package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/viper"

	"github.com/quantumauth-io/quantum-dapp-core/internal/chains"
	"github.com/quantumauth-io/quantum-dapp-core/internal/constants"
	"github.com/quantumauth-io/quantum-dapp-core/internal/provider"
)

//go:embed default.yaml
var EmbeddedConfigYAML []byte

const envPrefix = "QD"

type InjectedConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	DiscoveryBudget time.Duration `mapstructure:"discoveryBudget"`
	PollInterval    time.Duration `mapstructure:"pollInterval"`
	SubscribeHeads  bool          `mapstructure:"subscribeHeads"`
}

type RelayConfig struct {
	BridgeURL         string        `mapstructure:"bridgeUrl"`
	HandshakeTimeout  time.Duration `mapstructure:"handshakeTimeout"`
	ChainID           string        `mapstructure:"chainId"`
	SessionFile       string        `mapstructure:"sessionFile"`
	SessionPassphrase string        `mapstructure:"sessionPassphrase"`
	Name              string        `mapstructure:"name"`
	URL               string        `mapstructure:"url"`
}

type WalletConfig struct {
	Transport         string         `mapstructure:"transport"`
	RequestsPerSecond float64        `mapstructure:"requestsPerSecond"`
	Burst             int            `mapstructure:"burst"`
	Injected          InjectedConfig `mapstructure:"injected"`
	Relay             RelayConfig    `mapstructure:"relay"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Hash     string `mapstructure:"hash"`
}

type PreferencesConfig struct {
	Backend string      `mapstructure:"backend"`
	File    string      `mapstructure:"file"`
	Redis   RedisConfig `mapstructure:"redis"`
}

type FlowConfig struct {
	ApprovalCeiling string        `mapstructure:"approvalCeiling"`
	PollInterval    time.Duration `mapstructure:"pollInterval"`
}

// AssetsConfig locates the token list. Defaults maps a decimal chain id to
// token addresses listed on first use of that chain.
type AssetsConfig struct {
	File     string              `mapstructure:"file"`
	Defaults map[string][]string `mapstructure:"defaults"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type Config struct {
	Wallet      WalletConfig      `mapstructure:"wallet"`
	Preferences PreferencesConfig `mapstructure:"preferences"`
	Chains      []chains.Chain    `mapstructure:"chains"`
	Flow        FlowConfig        `mapstructure:"flow"`
	Assets      AssetsConfig      `mapstructure:"assets"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

func Load() (*Config, error) {
	home, _ := os.UserHomeDir()
	paths := []string{
		filepath.Join(home, ".config", constants.AppName),
		filepath.Join(home, "config"),
		".",
	}
	return LoadFrom(paths)
}

// LoadFrom reads the embedded defaults, merges the first config.yaml found
// in paths and applies QD_* environment overrides.
func LoadFrom(paths []string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(EmbeddedConfigYAML)); err != nil {
		return nil, fmt.Errorf("config: embedded defaults: %w", err)
	}

	v.SetConfigName("config")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	if err := v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read %s: %w", v.ConfigFileUsed(), err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Wallet.Transport != "" {
		if _, ok := provider.ParseKind(c.Wallet.Transport); !ok {
			return fmt.Errorf("config: wallet.transport %q (allowed: injected, relay, empty)", c.Wallet.Transport)
		}
	}
	switch c.Preferences.Backend {
	case "file", "redis", "memory":
	default:
		return fmt.Errorf("config: preferences.backend %q (allowed: file, redis, memory)", c.Preferences.Backend)
	}
	if c.Wallet.RequestsPerSecond < 0 {
		return fmt.Errorf("config: wallet.requestsPerSecond must not be negative")
	}
	if _, err := c.Flow.Ceiling(); err != nil {
		return err
	}
	return nil
}

// Ceiling parses flow.approvalCeiling. Nil means the default (max uint256).
func (f FlowConfig) Ceiling() (*big.Int, error) {
	raw := strings.TrimSpace(f.ApprovalCeiling)
	if raw == "" {
		return nil, nil
	}
	var (
		v   *big.Int
		err error
	)
	if strings.HasPrefix(raw, "0x") {
		v, err = hexutil.DecodeBig(raw)
	} else {
		var ok bool
		v, ok = new(big.Int).SetString(raw, 10)
		if !ok {
			err = fmt.Errorf("not a number")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("config: flow.approvalCeiling %q: %w", raw, err)
	}
	if v.Sign() <= 0 || v.BitLen() > 256 {
		return nil, fmt.Errorf("config: flow.approvalCeiling %q out of range", raw)
	}
	return v, nil
}
