package txflow

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/quantum-dapp-core/internal/chainclient"
	"github.com/quantumauth-io/quantum-dapp-core/internal/chainrpc"
	"github.com/quantumauth-io/quantum-dapp-core/internal/chains"
	"github.com/quantumauth-io/quantum-dapp-core/internal/erc20"
	"github.com/quantumauth-io/quantum-dapp-core/internal/freshness"
	"github.com/quantumauth-io/quantum-dapp-core/internal/provider"
)

var (
	ErrNotStarted        = errors.New("txflow: orchestrator not started")
	ErrInvalidDescriptor = errors.New("txflow: invalid descriptor")
)

// Wallet is the connected wallet the flow runs against.
type Wallet struct {
	Provider provider.Provider
	Account  common.Address
	ChainID  uint64
}

// SendFunc submits the transaction itself once the chain and allowance are
// in place.
type SendFunc func(ctx context.Context, p provider.Provider, w Wallet) chainrpc.Result[common.Hash]

// Descriptor is what the flow should do. A zero Token means the chain's
// native currency, which needs no approval.
type Descriptor struct {
	Chain   chains.Chain
	Token   common.Address
	Spender common.Address
	Amount  *big.Int
	Send    SendFunc
}

func (d Descriptor) validate() error {
	if d.Send == nil {
		return fmt.Errorf("%w: missing send function", ErrInvalidDescriptor)
	}
	if d.Amount != nil && d.Amount.Sign() < 0 {
		return fmt.Errorf("%w: negative amount", ErrInvalidDescriptor)
	}
	if d.Chain.ID == 0 {
		return fmt.Errorf("%w: missing chain", ErrInvalidDescriptor)
	}
	return nil
}

type Options struct {
	// ApprovalCeiling is the allowance requested when the current one is
	// short. Defaults to 2^256-1 so repeated flows do not prompt again.
	ApprovalCeiling *big.Int
	// PollInterval overrides the chain block time for allowance polling.
	PollInterval time.Duration
	// OnUpdate receives a snapshot after every state change. It must not
	// call back into the orchestrator synchronously.
	OnUpdate func(Snapshot)
}

// Orchestrator runs one transaction flow at a time. Reset and Stop discard
// whatever is in flight: a superseded run never changes the snapshot.
type Orchestrator struct {
	opts Options

	emitMu sync.Mutex

	mu      sync.Mutex
	parent  context.Context
	wallet  Wallet
	desc    Descriptor
	snap    Snapshot
	gen     uint64
	cancel  context.CancelFunc
	changed chan struct{}
}

func New(opts Options) *Orchestrator {
	if opts.ApprovalCeiling == nil {
		opts.ApprovalCeiling = ethmath.MaxBig256
	}
	return &Orchestrator{opts: opts, changed: make(chan struct{})}
}

// Start runs the flow from the first phase.
func (o *Orchestrator) Start(ctx context.Context, w Wallet, d Descriptor) error {
	if err := d.validate(); err != nil {
		return err
	}
	o.emitMu.Lock()
	defer o.emitMu.Unlock()
	o.mu.Lock()
	o.parent = ctx
	snap := o.restartLocked(w, d, PhaseChainSwitch)
	o.mu.Unlock()
	o.publish(snap)
	return nil
}

// Reset is called when the wallet or the descriptor changed. Every phase
// goes back to Unstarted and the flow starts over.
func (o *Orchestrator) Reset(w Wallet, d Descriptor) error {
	if err := d.validate(); err != nil {
		return err
	}
	o.emitMu.Lock()
	defer o.emitMu.Unlock()
	o.mu.Lock()
	if o.parent == nil {
		o.mu.Unlock()
		return ErrNotStarted
	}
	snap := o.restartLocked(w, d, PhaseChainSwitch)
	o.mu.Unlock()
	o.publish(snap)
	return nil
}

// Retry restarts a failed flow from the phase that failed. It reports false
// when there is nothing to retry.
func (o *Orchestrator) Retry() bool {
	o.emitMu.Lock()
	defer o.emitMu.Unlock()
	o.mu.Lock()
	if o.parent == nil || o.snap.Outcome != OutcomeFailed {
		o.mu.Unlock()
		return false
	}
	from := o.snap.ErrPhase
	snap := o.restartLocked(o.wallet, o.desc, from)
	o.mu.Unlock()
	log.Info("retrying transaction flow", "phase", from)
	o.publish(snap)
	return true
}

// Stop abandons the flow. The last snapshot stays readable.
func (o *Orchestrator) Stop() {
	o.emitMu.Lock()
	defer o.emitMu.Unlock()
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gen++
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.parent = nil
}

func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snap
}

// Wait blocks until the flow succeeds, is rejected or fails, or ctx ends.
func (o *Orchestrator) Wait(ctx context.Context) (Snapshot, error) {
	for {
		o.mu.Lock()
		snap, ch := o.snap, o.changed
		o.mu.Unlock()
		if snap.Outcome != OutcomePending {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-ch:
		}
	}
}

func (o *Orchestrator) restartLocked(w Wallet, d Descriptor, from Phase) Snapshot {
	if o.cancel != nil {
		o.cancel()
	}
	o.gen++
	o.wallet, o.desc = w, d

	keep := o.snap
	o.snap = Snapshot{}
	for p := PhaseChainSwitch; p < from; p++ {
		o.snap.Phases[p] = keep.Phases[p]
	}
	if from > PhaseAllowance {
		o.snap.ApprovalHash, o.snap.Allowance = keep.ApprovalHash, keep.Allowance
	}
	o.notifyLocked()

	ctx, cancel := context.WithCancel(o.parent)
	o.cancel = cancel
	go o.run(ctx, o.gen, w, d, from)
	return o.snap
}

func (o *Orchestrator) notifyLocked() {
	close(o.changed)
	o.changed = make(chan struct{})
}

func (o *Orchestrator) publish(snap Snapshot) {
	if o.opts.OnUpdate != nil {
		o.opts.OnUpdate(snap)
	}
}

// update applies f if gen is still current and publishes the result. It
// reports false for a superseded run.
func (o *Orchestrator) update(gen uint64, f func(*Snapshot)) bool {
	o.emitMu.Lock()
	defer o.emitMu.Unlock()

	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		return false
	}
	f(&o.snap)
	o.snap.Outcome = aggregate(o.snap.Phases)
	snap := o.snap
	o.notifyLocked()
	o.mu.Unlock()

	o.publish(snap)
	return true
}

func (o *Orchestrator) setPhase(gen uint64, p Phase, st TaskState, err *chainrpc.Error) bool {
	return o.update(gen, func(s *Snapshot) {
		s.Phases[p] = st
		if err != nil {
			s.Err, s.ErrPhase = err, p
		}
	})
}

func (o *Orchestrator) run(ctx context.Context, gen uint64, w Wallet, d Descriptor, from Phase) {
	for p := from; p < phaseCount; p++ {
		if !o.setPhase(gen, p, Working, nil) {
			return
		}

		var st TaskState
		var err *chainrpc.Error
		switch p {
		case PhaseChainSwitch:
			st, err = o.switchChain(ctx, w, d)
		case PhaseAllowance:
			st, err = o.allowance(ctx, gen, w, d)
		case PhaseSubmission:
			st, err = o.submit(ctx, gen, w, d)
		}
		if ctx.Err() != nil {
			return
		}

		if err != nil {
			log.Warn("transaction phase ended", "phase", p, "state", st, "error", err)
		}
		if !o.setPhase(gen, p, st, err) || st != Complete {
			return
		}
	}
}

func (o *Orchestrator) switchChain(ctx context.Context, w Wallet, d Descriptor) (TaskState, *chainrpc.Error) {
	if w.ChainID == d.Chain.ID {
		return Complete, nil
	}
	if err := chainclient.SwitchChain(ctx, w.Provider, d.Chain).Err(); err != nil {
		return classify(err), err
	}
	return Complete, nil
}

// allowance follows the allowance with a freshness tracker. A short
// allowance triggers one approval; the phase then waits for a read taken
// after the approval that covers the amount.
func (o *Orchestrator) allowance(ctx context.Context, gen uint64, w Wallet, d Descriptor) (TaskState, *chainrpc.Error) {
	if erc20.IsNative(d.Token) {
		return Complete, nil
	}
	amount := d.Amount
	if amount == nil {
		amount = new(big.Int)
	}

	updates := make(chan freshness.Perishable[*big.Int], 1)
	tracker := freshness.NewTracker(func(ctx context.Context) chainrpc.Result[*big.Int] {
		return erc20.Allowance(ctx, w.Provider, d.Token, w.Account, d.Spender)
	}, freshness.Options[*big.Int]{
		Interval: o.interval(d.Chain),
		Equal:    freshness.BigEqual,
		Name:     "allowance",
		OnChange: func(p freshness.Perishable[*big.Int]) {
			// single producer: after draining, the send cannot block
			select {
			case <-updates:
			default:
			}
			updates <- p
		},
	})
	tracker.Start(ctx)
	defer tracker.Stop()

	approved := false
	for {
		var current *big.Int
		select {
		case <-ctx.Done():
			return Unstarted, nil
		case p := <-updates:
			v, fresh := p.Current()
			if !fresh {
				// Invalidate keeps the last read. When the approval was mined
				// before the wallet returned its hash, that read already covers
				// the amount and no later read will differ from it.
				v = p.Value()
				if !approved || v == nil || v.Cmp(amount) < 0 {
					continue
				}
			}
			current = v
		}

		if !o.update(gen, func(s *Snapshot) { s.Allowance = new(big.Int).Set(current) }) {
			return Unstarted, nil
		}
		if current.Cmp(amount) >= 0 {
			return Complete, nil
		}
		if approved {
			continue
		}

		ceiling := o.opts.ApprovalCeiling
		if ceiling.Cmp(amount) < 0 {
			ceiling = amount
		}
		res := erc20.Approve(ctx, w.Provider, d.Token, w.Account, d.Spender, ceiling)
		hash, ok := res.Value()
		if !ok {
			return classify(res.Err()), res.Err()
		}
		approved = true
		log.Info("approval submitted", "token", d.Token.Hex(), "spender", d.Spender.Hex(), "tx", hash.Hex())
		if !o.update(gen, func(s *Snapshot) { s.ApprovalHash = hash }) {
			return Unstarted, nil
		}
		tracker.Invalidate()
	}
}

func (o *Orchestrator) submit(ctx context.Context, gen uint64, w Wallet, d Descriptor) (TaskState, *chainrpc.Error) {
	res := d.Send(ctx, w.Provider, w)
	hash, ok := res.Value()
	if !ok {
		return classify(res.Err()), res.Err()
	}
	log.Info("transaction submitted", "chainId", d.Chain.IDHex(), "tx", hash.Hex())
	if !o.update(gen, func(s *Snapshot) { s.TxHash = hash }) {
		return Unstarted, nil
	}
	return Complete, nil
}

func (o *Orchestrator) interval(c chains.Chain) time.Duration {
	switch {
	case o.opts.PollInterval > 0:
		return o.opts.PollInterval
	case c.BlockTime > 0:
		return c.BlockTime
	}
	return time.Second
}
