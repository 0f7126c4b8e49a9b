// Package freshness keeps on-chain reads current by polling once per block
// and tells callers whether a value is known-current or awaiting refresh.
package freshness

import "math/big"

type State int

const (
	Absent State = iota
	Stale
	Fresh
)

func (s State) String() string {
	switch s {
	case Stale:
		return "stale"
	case Fresh:
		return "fresh"
	default:
		return "absent"
	}
}

// Perishable is a value that is either fresh (just observed) or stale (last
// known, refresh pending).
type Perishable[T any] struct {
	fresh bool
	value T
}

func FreshValue[T any](v T) Perishable[T] { return Perishable[T]{fresh: true, value: v} }

func StaleValue[T any](v T) Perishable[T] { return Perishable[T]{value: v} }

func (p Perishable[T]) IsFresh() bool { return p.fresh }

// Current returns the value when it is fresh.
func (p Perishable[T]) Current() (T, bool) {
	if !p.fresh {
		var zero T
		return zero, false
	}
	return p.value, true
}

// Stale returns the last known value while a refresh is pending.
func (p Perishable[T]) Stale() (T, bool) {
	if p.fresh {
		var zero T
		return zero, false
	}
	return p.value, true
}

// Value returns the value regardless of freshness.
func (p Perishable[T]) Value() T { return p.value }

// BigEqual compares big integers by value; nil equals only nil.
func BigEqual(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Cmp(b) == 0
}
