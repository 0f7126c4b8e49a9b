// Package monitor exposes Prometheus metrics for wallet requests and
// transaction flows.
package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quantumauth-io/quantum-dapp-core/internal/chainrpc"
	"github.com/quantumauth-io/quantum-dapp-core/internal/provider"
	"github.com/quantumauth-io/quantum-dapp-core/internal/txflow"
)

const namespace = "quantum_dapp"

type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	EventsTotal     *prometheus.CounterVec
	FlowsTotal      *prometheus.CounterVec
	PhaseTotal      *prometheus.CounterVec
}

// NewMetrics registers the metrics with reg. Passing a fresh registry keeps
// tests independent of the global default.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wallet_requests_total",
			Help:      "Wallet requests by method and result code.",
		}, []string{"method", "code"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "wallet_request_duration_seconds",
			Help:      "Wallet request latency, including time spent in user prompts.",
			Buckets:   []float64{0.05, 0.1, 0.3, 1, 3, 10, 30, 120},
		}, []string{"method"}),
		EventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wallet_events_total",
			Help:      "Provider events received.",
		}, []string{"event"}),
		FlowsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transaction_flows_total",
			Help:      "Transaction flows by final outcome.",
		}, []string{"outcome"}),
		PhaseTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transaction_phase_results_total",
			Help:      "Terminal phase states.",
		}, []string{"phase", "state"}),
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func codeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return strconv.Itoa(int(chainrpc.FromError(err).Code))
}

// InstrumentedProvider counts and times every request made through it.
type InstrumentedProvider struct {
	provider.Provider
	m *Metrics
}

func (m *Metrics) Instrument(p provider.Provider) *InstrumentedProvider {
	return &InstrumentedProvider{Provider: p, m: m}
}

func (p *InstrumentedProvider) Request(ctx context.Context, args provider.RequestArguments) (json.RawMessage, error) {
	start := time.Now()
	raw, err := p.Provider.Request(ctx, args)
	p.m.RequestDuration.WithLabelValues(args.Method).Observe(time.Since(start).Seconds())
	p.m.RequestsTotal.WithLabelValues(args.Method, codeLabel(err)).Inc()
	return raw, err
}

// CountEvents attaches counting listeners for every provider event to p.
// The returned function detaches them.
func (m *Metrics) CountEvents(p provider.Provider) func() {
	names := []provider.EventName{
		provider.EventConnect,
		provider.EventDisconnect,
		provider.EventChainChanged,
		provider.EventAccountsChanged,
		provider.EventMessage,
	}
	listeners := make([]*provider.Listener, len(names))
	for i, name := range names {
		counter := m.EventsTotal.WithLabelValues(string(name))
		listeners[i] = provider.NewListener(func(provider.Event) { counter.Inc() })
		p.On(name, listeners[i])
	}
	return func() {
		for i, name := range names {
			p.RemoveListener(name, listeners[i])
		}
	}
}

// FlowObserver returns a txflow update callback that records each phase
// when it reaches a terminal state and each flow when its outcome settles.
func (m *Metrics) FlowObserver() func(txflow.Snapshot) {
	var mu sync.Mutex
	var last txflow.Snapshot
	return func(s txflow.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		for ph := txflow.PhaseChainSwitch; ph <= txflow.PhaseSubmission; ph++ {
			st := s.State(ph)
			if st.Terminal() && st != last.State(ph) {
				m.PhaseTotal.WithLabelValues(ph.String(), st.String()).Inc()
			}
		}
		if s.Outcome != txflow.OutcomePending && s.Outcome != last.Outcome {
			m.FlowsTotal.WithLabelValues(s.Outcome.String()).Inc()
		}
		last = s
	}
}
