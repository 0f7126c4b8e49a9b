// Package txflow drives a transaction through chain switch, token approval
// and submission. Each phase has its own TaskState; a phase only starts once
// the one before it is Complete.
package txflow

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/quantumauth-io/quantum-dapp-core/internal/chainrpc"
)

type TaskState int

const (
	Unstarted TaskState = iota
	Working
	Complete
	Failed
	Rejected
)

func (s TaskState) String() string {
	switch s {
	case Unstarted:
		return "unstarted"
	case Working:
		return "working"
	case Complete:
		return "complete"
	case Failed:
		return "failed"
	case Rejected:
		return "rejected"
	}
	return fmt.Sprintf("TaskState(%d)", int(s))
}

func (s TaskState) Terminal() bool {
	return s == Complete || s == Failed || s == Rejected
}

type Phase int

const (
	PhaseChainSwitch Phase = iota
	PhaseAllowance
	PhaseSubmission

	phaseCount = 3
)

func (p Phase) String() string {
	switch p {
	case PhaseChainSwitch:
		return "chain-switch"
	case PhaseAllowance:
		return "allowance"
	case PhaseSubmission:
		return "submission"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeSucceeded
	OutcomeRejected
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeRejected:
		return "rejected"
	case OutcomeFailed:
		return "failed"
	}
	return "pending"
}

// Snapshot is a copy of the orchestrator state at one point in time.
type Snapshot struct {
	Phases  [phaseCount]TaskState
	Outcome Outcome
	// Err and ErrPhase describe the phase that ended Failed or Rejected.
	Err      *chainrpc.Error
	ErrPhase Phase

	ApprovalHash common.Hash
	TxHash       common.Hash
	// Allowance is the last allowance read, nil for native transfers.
	Allowance *big.Int
}

func (s Snapshot) State(p Phase) TaskState {
	return s.Phases[p]
}

// aggregate: a rejection anywhere wins, then success, then failure.
func aggregate(phases [phaseCount]TaskState) Outcome {
	complete := true
	failed := false
	for _, st := range phases {
		switch st {
		case Rejected:
			return OutcomeRejected
		case Failed:
			failed = true
		}
		if st != Complete {
			complete = false
		}
	}
	switch {
	case complete:
		return OutcomeSucceeded
	case failed:
		return OutcomeFailed
	}
	return OutcomePending
}

func classify(err *chainrpc.Error) TaskState {
	if err.UserRejected() {
		return Rejected
	}
	return Failed
}
