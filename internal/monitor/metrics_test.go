package monitor

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumauth-io/quantum-dapp-core/internal/provider"
	"github.com/quantumauth-io/quantum-dapp-core/internal/provider/providertest"
	"github.com/quantumauth-io/quantum-dapp-core/internal/txflow"
)

func TestInstrumentCountsByCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	fake := providertest.New()
	fake.Return("eth_chainId", "0x1")
	fake.Fail("eth_requestAccounts", providertest.Rejected())
	p := m.Instrument(fake)

	ctx := context.Background()
	_, err := p.Request(ctx, provider.RequestArguments{Method: "eth_chainId"})
	require.NoError(t, err)
	_, err = p.Request(ctx, provider.RequestArguments{Method: "eth_chainId"})
	require.NoError(t, err)
	_, err = p.Request(ctx, provider.RequestArguments{Method: "eth_requestAccounts"})
	require.Error(t, err)
	_, err = p.Request(ctx, provider.RequestArguments{Method: "eth_sign"})
	require.Error(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("eth_chainId", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("eth_requestAccounts", "4001")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("eth_sign", "4200")))
	assert.Equal(t, 3, testutil.CollectAndCount(m.RequestDuration))

	assert.True(t, p.IsConnected())
}

func TestCountEvents(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	fake := providertest.New()

	detach := m.CountEvents(fake)
	assert.Equal(t, 1, fake.ListenerCount(provider.EventChainChanged))

	fake.Emit(provider.EventChainChanged, "0x89")
	fake.Emit(provider.EventChainChanged, "0x1")
	counter := m.EventsTotal.WithLabelValues(string(provider.EventChainChanged))
	require.Eventually(t, func() bool { return testutil.ToFloat64(counter) == 2 }, time.Second, time.Millisecond)

	detach()
	assert.Zero(t, fake.ListenerCount(provider.EventChainChanged))
}

func TestFlowObserver(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	observe := m.FlowObserver()

	var s txflow.Snapshot
	s.Phases[txflow.PhaseChainSwitch] = txflow.Working
	observe(s)
	s.Phases[txflow.PhaseChainSwitch] = txflow.Complete
	observe(s)
	// repeated snapshot with no state change
	observe(s)
	s.Phases[txflow.PhaseAllowance] = txflow.Complete
	s.Phases[txflow.PhaseSubmission] = txflow.Rejected
	s.Outcome = txflow.OutcomeRejected
	observe(s)
	observe(s)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PhaseTotal.WithLabelValues("chain-switch", "complete")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PhaseTotal.WithLabelValues("submission", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FlowsTotal.WithLabelValues("rejected")))
	assert.Zero(t, testutil.ToFloat64(m.FlowsTotal.WithLabelValues("succeeded")))
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.FlowsTotal.WithLabelValues("succeeded").Inc()

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `quantum_dapp_transaction_flows_total{outcome="succeeded"} 1`))
}
