package freshness

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/quantum-dapp-core/internal/chainrpc"
)

// Reader performs one read. It is called from the tracker's goroutine.
type Reader[T any] func(ctx context.Context) chainrpc.Result[T]

type Options[T any] struct {
	// Interval between reads, normally the chain's block time.
	Interval time.Duration
	// Equal decides whether a read changed the value. Defaults to
	// reflect.DeepEqual.
	Equal func(a, b T) bool
	// OnChange receives every transition into Fresh or Stale. It must not
	// call Reset, Invalidate or Stop synchronously.
	OnChange func(Perishable[T])
	Name     string
}

// Tracker polls one value. Each run of the polling loop carries a
// generation; a loop whose generation is no longer current performs no
// mutation and no callback after its read returns.
type Tracker[T any] struct {
	opts Options[T]

	// emitMu orders callbacks against Reset/Invalidate/Stop.
	emitMu sync.Mutex

	mu     sync.Mutex
	parent context.Context
	reader Reader[T]
	state  State
	value  T
	gen    uint64
	cancel context.CancelFunc
}

func NewTracker[T any](reader Reader[T], opts Options[T]) *Tracker[T] {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.Equal == nil {
		opts.Equal = func(a, b T) bool { return reflect.DeepEqual(a, b) }
	}
	return &Tracker[T]{opts: opts, reader: reader}
}

// Start begins polling under ctx. Calling Start again restarts from Absent.
func (t *Tracker[T]) Start(ctx context.Context) {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.parent = ctx
	t.restartLocked(true)
}

// Reset swaps the reader after an input (token, owner, chain) changed. The
// previous loop is discarded and tracking restarts from Absent.
func (t *Tracker[T]) Reset(reader Reader[T]) {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reader = reader
	if t.parent != nil {
		t.restartLocked(true)
	}
}

// Invalidate marks a fresh value stale after a mutating action and polls
// again immediately.
func (t *Tracker[T]) Invalidate() {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()
	t.mu.Lock()
	changed := t.state == Fresh
	if changed {
		t.state = Stale
	}
	snap := StaleValue(t.value)
	if t.parent != nil {
		t.restartLocked(false)
	}
	t.mu.Unlock()

	if changed && t.opts.OnChange != nil {
		t.opts.OnChange(snap)
	}
}

// Stop ends polling. The last value stays readable.
func (t *Tracker[T]) Stop() {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.parent = nil
}

// Get returns the tracked value; ok is false while Absent.
func (t *Tracker[T]) Get() (Perishable[T], bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state {
	case Fresh:
		return FreshValue(t.value), true
	case Stale:
		return StaleValue(t.value), true
	}
	return Perishable[T]{}, false
}

func (t *Tracker[T]) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Tracker[T]) restartLocked(clear bool) {
	if t.cancel != nil {
		t.cancel()
	}
	t.gen++
	if clear {
		var zero T
		t.state, t.value = Absent, zero
	}
	ctx, cancel := context.WithCancel(t.parent)
	t.cancel = cancel
	go t.run(ctx, t.gen, t.reader)
}

func (t *Tracker[T]) current(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return gen == t.gen
}

func (t *Tracker[T]) run(ctx context.Context, gen uint64, reader Reader[T]) {
	timer := time.NewTimer(t.opts.Interval)
	defer timer.Stop()

	failing := false
	for {
		res := reader(ctx)
		if ctx.Err() != nil || !t.current(gen) {
			return
		}

		if v, ok := res.Value(); ok {
			failing = false
			t.observe(gen, v)
		} else if !failing {
			failing = true
			log.Warn("read failed, retrying every block", "value", t.opts.Name, "error", res.Err())
		}

		timer.Reset(t.opts.Interval)
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if !t.current(gen) {
			return
		}
	}
}

func (t *Tracker[T]) observe(gen uint64, v T) {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()

	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	changed := t.state == Absent || !t.opts.Equal(t.value, v)
	if changed {
		t.state, t.value = Fresh, v
	}
	t.mu.Unlock()

	if changed && t.opts.OnChange != nil {
		t.opts.OnChange(FreshValue(v))
	}
}
