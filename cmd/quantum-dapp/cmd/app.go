package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/quantumauth-io/quantum-go-utils/log"
	"github.com/redis/go-redis/v9"
	"golang.org/x/term"
	"golang.org/x/time/rate"

	clientconfig "github.com/quantumauth-io/quantum-dapp-core/cmd/quantum-dapp/config"
	"github.com/quantumauth-io/quantum-dapp-core/internal/assets"
	"github.com/quantumauth-io/quantum-dapp-core/internal/chains"
	"github.com/quantumauth-io/quantum-dapp-core/internal/constants"
	"github.com/quantumauth-io/quantum-dapp-core/internal/monitor"
	"github.com/quantumauth-io/quantum-dapp-core/internal/prefs"
	"github.com/quantumauth-io/quantum-dapp-core/internal/provider"
	"github.com/quantumauth-io/quantum-dapp-core/internal/provider/injected"
	"github.com/quantumauth-io/quantum-dapp-core/internal/provider/relay"
	"github.com/quantumauth-io/quantum-dapp-core/internal/securefile"
)

// app holds what the commands share for one invocation.
type app struct {
	cfg      *clientconfig.Config
	registry *chains.Registry
	store    prefs.Store
	reg      *prometheus.Registry
	metrics  *monitor.Metrics
	out      io.Writer

	closers []func() error
	server  *http.Server
}

func newApp(cfg *clientconfig.Config, out io.Writer) (*app, error) {
	registry, err := chains.NewRegistry(cfg.Chains)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, registry: registry, out: out}

	a.reg = prometheus.NewRegistry()
	a.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = monitor.NewMetrics(a.reg)

	if a.store, err = a.openStore(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) openStore() (prefs.Store, error) {
	switch a.cfg.Preferences.Backend {
	case "memory":
		return prefs.NewMemoryStore(), nil
	case "redis":
		rc := a.cfg.Preferences.Redis
		client := redis.NewClient(&redis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
		a.closers = append(a.closers, client.Close)
		return prefs.NewRedisStore(client, rc.Hash), nil
	}
	path := a.cfg.Preferences.File
	if path == "" {
		var err error
		if path, err = securefile.StatePath(constants.PreferencesFile); err != nil {
			return nil, err
		}
	}
	return prefs.NewFileStore(path), nil
}

func (a *app) assetList() (*assets.Manager, error) {
	return assets.NewManager(a.cfg.Assets.File)
}

// serveMetrics starts the /metrics endpoint when addr is set.
func (a *app) serveMetrics(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", monitor.Handler(a.reg))
	a.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server error", "error", err)
		}
	}()
	log.Info("metrics server listening", "addr", addr)
}

func (a *app) close() {
	if a.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			log.Error("metrics server shutdown failed", "error", err)
		} else {
			log.Info("metrics server gracefully stopped")
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}

func (a *app) candidates(only provider.Kind) []provider.Candidate {
	all := []provider.Candidate{
		{Kind: provider.KindInjected, Build: a.buildInjected},
		{Kind: provider.KindRelay, Build: a.buildRelay},
	}
	if only == "" {
		return all
	}
	for _, c := range all {
		if c.Kind == only {
			return []provider.Candidate{c}
		}
	}
	return nil
}

func (a *app) buildInjected(ctx context.Context) (provider.Provider, error) {
	ic := a.cfg.Wallet.Injected
	t, err := injected.Discover(ctx, injected.Config{
		Endpoint:        ic.Endpoint,
		DiscoveryBudget: ic.DiscoveryBudget,
		PollInterval:    ic.PollInterval,
		SubscribeHeads:  ic.SubscribeHeads,
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (a *app) buildRelay(ctx context.Context) (provider.Provider, error) {
	rc := a.cfg.Wallet.Relay
	sessionFile := rc.SessionFile
	if sessionFile == "" {
		var err error
		if sessionFile, err = securefile.StatePath(constants.RelaySessionFile); err != nil {
			log.Warn("relay session will not be stored", "error", err)
		}
	}
	var passphrase []byte
	if rc.SessionPassphrase != "" {
		passphrase = []byte(rc.SessionPassphrase)
	}

	t, err := relay.Connect(ctx, relay.Config{
		BridgeURL:         rc.BridgeURL,
		HandshakeTimeout:  rc.HandshakeTimeout,
		ChainID:           rc.ChainID,
		Meta:              relay.PeerMeta{Name: rc.Name, URL: rc.URL},
		Display:           a.showPairing,
		SessionFile:       sessionFile,
		SessionPassphrase: passphrase,
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// showPairing prints the pairing URI. On a terminal it also writes the QR
// code next to the state files so it can be opened and scanned.
func (a *app) showPairing(p relay.Pairing) {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintln(a.out, p.URI)
		return
	}
	fmt.Fprintf(a.out, "Pair your wallet with:\n  %s\nConfirmation code: %s\n", p.URI, p.Code)
	if len(p.QR) == 0 {
		return
	}
	path := filepath.Join(os.TempDir(), constants.AppName+"-pairing.png")
	if err := securefile.AtomicWriteFile(path, p.QR, constants.FilePerm); err != nil {
		log.Warn("could not write pairing qr code", "error", err)
		return
	}
	fmt.Fprintf(a.out, "QR code written to %s\n", path)
}

// connect selects a wallet transport and wraps it with metrics and rate
// limiting. The returned holder stays valid until the app is closed.
func (a *app) connect(ctx context.Context, only provider.Kind) (*provider.Holder, provider.Kind, error) {
	if only == "" && a.cfg.Wallet.Transport != "" {
		only = provider.Kind(a.cfg.Wallet.Transport)
	}
	raw, kind, err := provider.Select(ctx, a.store, a.candidates(only))
	if err != nil {
		return nil, "", err
	}
	if c, ok := raw.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}
	log.Info("wallet connected", "transport", kind)

	var p provider.Provider = a.metrics.Instrument(raw)
	if rps := a.cfg.Wallet.RequestsPerSecond; rps > 0 {
		burst := max(a.cfg.Wallet.Burst, 1)
		p = provider.RateLimited(p, rate.NewLimiter(rate.Limit(rps), burst))
	}

	holder := provider.NewHolder()
	holder.Swap(p, kind)
	detach := a.metrics.CountEvents(holder)
	a.closers = append(a.closers, func() error {
		detach()
		holder.Swap(nil, "")
		return nil
	})
	return holder, kind, nil
}

func (a *app) ceiling() *big.Int {
	// validated when the config was loaded
	v, _ := a.cfg.Flow.Ceiling()
	return v
}
