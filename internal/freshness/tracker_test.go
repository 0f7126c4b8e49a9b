package freshness

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumauth-io/quantum-dapp-core/internal/chainrpc"
)

// scripted replays outcomes in order, then blocks until ctx ends.
func scripted(outcomes ...chainrpc.Result[int]) (Reader[int], func() int) {
	var mu sync.Mutex
	calls := 0
	return func(ctx context.Context) chainrpc.Result[int] {
			mu.Lock()
			i := calls
			calls++
			mu.Unlock()
			if i < len(outcomes) {
				return outcomes[i]
			}
			<-ctx.Done()
			return chainrpc.Fail[int](chainrpc.Internal("cancelled", nil))
		}, func() int {
			mu.Lock()
			defer mu.Unlock()
			return calls
		}
}

type recorder struct {
	mu   sync.Mutex
	seen []Perishable[int]
}

func (r *recorder) add(p Perishable[int]) {
	r.mu.Lock()
	r.seen = append(r.seen, p)
	r.mu.Unlock()
}

func (r *recorder) all() []Perishable[int] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Perishable[int](nil), r.seen...)
}

func fail() chainrpc.Result[int] {
	return chainrpc.Fail[int](&chainrpc.Error{Code: chainrpc.CodeResourceUnavailable, Message: "node down"})
}

func TestTransitionsOnlyOnChange(t *testing.T) {
	reader, calls := scripted(fail(), chainrpc.Ok(5), chainrpc.Ok(5), chainrpc.Ok(7))
	rec := &recorder{}
	tr := NewTracker(reader, Options[int]{Interval: 5 * time.Millisecond, OnChange: rec.add})

	_, ok := tr.Get()
	assert.False(t, ok)
	assert.Equal(t, Absent, tr.State())

	tr.Start(context.Background())
	defer tr.Stop()

	require.Eventually(t, func() bool { return calls() >= 5 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, []Perishable[int]{FreshValue(5), FreshValue(7)}, rec.all())

	p, ok := tr.Get()
	require.True(t, ok)
	v, fresh := p.Current()
	assert.True(t, fresh)
	assert.Equal(t, 7, v)
}

func TestInvalidate(t *testing.T) {
	var mu sync.Mutex
	value := 1
	reader := func(context.Context) chainrpc.Result[int] {
		mu.Lock()
		defer mu.Unlock()
		return chainrpc.Ok(value)
	}
	rec := &recorder{}
	tr := NewTracker[int](reader, Options[int]{Interval: time.Hour, OnChange: rec.add})
	tr.Start(context.Background())
	defer tr.Stop()

	require.Eventually(t, func() bool { return tr.State() == Fresh }, time.Second, time.Millisecond)

	// the same value after invalidation keeps it stale
	tr.Invalidate()
	assert.Equal(t, Stale, tr.State())
	p, _ := tr.Get()
	old, stale := p.Stale()
	assert.True(t, stale)
	assert.Equal(t, 1, old)

	mu.Lock()
	value = 2
	mu.Unlock()
	tr.Invalidate()
	require.Eventually(t, func() bool { return tr.State() == Fresh }, time.Second, time.Millisecond)
	p, _ = tr.Get()
	assert.Equal(t, 2, p.Value())

	assert.Equal(t, []Perishable[int]{FreshValue(1), StaleValue(1), FreshValue(2)}, rec.all())
}

func TestResetDiscardsSupersededLoop(t *testing.T) {
	release := make(chan int)
	started := make(chan struct{}, 1)
	oldReader := func(context.Context) chainrpc.Result[int] {
		started <- struct{}{}
		// ignores cancellation, like a wallet call that cannot be aborted
		return chainrpc.Ok(<-release)
	}
	rec := &recorder{}
	tr := NewTracker[int](oldReader, Options[int]{Interval: time.Hour, OnChange: rec.add})
	tr.Start(context.Background())
	defer tr.Stop()
	<-started

	newReader, _ := scripted(chainrpc.Ok(1))
	tr.Reset(newReader)
	require.Eventually(t, func() bool { return tr.State() == Fresh }, time.Second, time.Millisecond)

	release <- 99
	time.Sleep(20 * time.Millisecond)

	p, ok := tr.Get()
	require.True(t, ok)
	assert.Equal(t, 1, p.Value())
	assert.Equal(t, []Perishable[int]{FreshValue(1)}, rec.all())
}

func TestResetFailureAfterSupersede(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	oldReader := func(context.Context) chainrpc.Result[int] {
		started <- struct{}{}
		<-release
		return fail()
	}
	tr := NewTracker[int](oldReader, Options[int]{Interval: time.Millisecond})
	tr.Start(context.Background())
	<-started

	blocked, _ := scripted()
	tr.Reset(blocked)
	close(release)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, Absent, tr.State())
	tr.Stop()
}

func TestStopEndsPolling(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	reader := func(context.Context) chainrpc.Result[int] {
		mu.Lock()
		calls++
		mu.Unlock()
		return chainrpc.Ok(3)
	}
	tr := NewTracker[int](reader, Options[int]{Interval: time.Millisecond})
	tr.Start(context.Background())
	require.Eventually(t, func() bool { return tr.State() == Fresh }, time.Second, time.Millisecond)
	tr.Stop()

	mu.Lock()
	n := calls
	mu.Unlock()
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, calls, n+1)

	p, ok := tr.Get()
	assert.True(t, ok)
	assert.Equal(t, 3, p.Value())
}

func TestBigEqual(t *testing.T) {
	assert.True(t, BigEqual(big.NewInt(5), new(big.Int).SetBytes([]byte{5})))
	assert.False(t, BigEqual(big.NewInt(5), nil))
	assert.True(t, BigEqual(nil, nil))
}
