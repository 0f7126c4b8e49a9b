package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/quantum-dapp-core/internal/constants"
	"github.com/quantumauth-io/quantum-dapp-core/internal/prefs"
)

// Factory builds a connected transport or returns ErrNoneAvailable.
type Factory func(ctx context.Context) (Provider, error)

type Candidate struct {
	Kind  Kind
	Build Factory
}

// Select builds the transport named by the stored preference, falling back
// to the remaining candidates in order when it is unavailable. A stored kind
// that matches no candidate is ignored.
func Select(ctx context.Context, store prefs.Store, candidates []Candidate) (Provider, Kind, error) {
	if len(candidates) == 0 {
		return nil, "", ErrNoneAvailable
	}

	order := candidates
	if store != nil {
		preferred, err := store.Get(ctx, constants.PreferredTransportKey)
		switch {
		case err == nil:
			order = preferFirst(candidates, Kind(preferred))
		case !errors.Is(err, prefs.ErrNotFound):
			log.Warn("read transport preference failed", "error", err)
		}
	}

	var errs []error
	for _, c := range order {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		p, err := c.Build(ctx)
		if err == nil {
			return p, c.Kind, nil
		}
		if !errors.Is(err, ErrNoneAvailable) {
			log.Warn("wallet transport failed", "kind", c.Kind, "error", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", c.Kind, err))
	}
	return nil, "", fmt.Errorf("%w: %w", ErrNoneAvailable, errors.Join(errs...))
}

// Remember stores kind as the preferred transport.
func Remember(ctx context.Context, store prefs.Store, kind Kind) error {
	if _, ok := ParseKind(string(kind)); !ok {
		return fmt.Errorf("provider: unknown transport kind %q", kind)
	}
	return store.Set(ctx, constants.PreferredTransportKey, string(kind))
}

func preferFirst(candidates []Candidate, preferred Kind) []Candidate {
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Kind == preferred {
			out = append(out, c)
		}
	}
	for _, c := range candidates {
		if c.Kind != preferred {
			out = append(out, c)
		}
	}
	return out
}
