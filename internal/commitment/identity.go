package commitment

import (
	"context"
	"fmt"
	"strings"

	"github.com/stellar-commitment/commitdash/internal/config"
	"github.com/stellar-commitment/commitdash/internal/invoker"
)

// Identity pairs a local signing label with its on-chain address.
type Identity struct {
	Label   string `json:"label"`
	Address string `json:"address"`
}

// Resolver maps on-chain addresses to the small fixed set of local
// identity labels in config.Chain.Identities. Nothing is cached: every
// call asks the CLI again, so key changes between requests are picked up.
type Resolver struct {
	runner invoker.Runner
}

// NewResolver builds a Resolver.
func NewResolver(runner invoker.Runner) *Resolver {
	return &Resolver{runner: runner}
}

// Lookup asks the CLI for the address of every known label. Lookups are
// independent and run concurrently; the result keeps the configured order.
func (r *Resolver) Lookup(ctx context.Context, cfg config.Chain) []Candidate {
	candidates := make([]Candidate, len(cfg.Identities))
	lookups := make([]func(), len(cfg.Identities))
	for i, label := range cfg.Identities {
		lookups[i] = func() { candidates[i] = r.lookupOne(ctx, cfg, label) }
	}
	parallel(lookups...)
	return candidates
}

func (r *Resolver) lookupOne(ctx context.Context, cfg config.Chain, label string) Candidate {
	res := run(ctx, r.runner, cfg, keysAddress(cfg, label))
	c := Candidate{Label: label, Address: strings.TrimSpace(res.Stdout)}
	switch {
	case res.Failed():
		c.LookupErr = diagnostic(res.Stderr)
	case c.Address == "":
		c.LookupErr = "empty address"
	}
	return c
}

// Resolve returns the single label whose address equals target exactly.
func (r *Resolver) Resolve(ctx context.Context, cfg config.Chain, target string) (Identity, error) {
	candidates := r.Lookup(ctx, cfg)
	idx, err := match(candidates, target)
	if err != nil {
		return Identity{}, &ResolutionError{Target: target, Candidates: candidates, Err: err}
	}
	if idx < 0 {
		return Identity{}, &ResolutionError{Target: target, Candidates: candidates, Err: ErrNoIdentityMatch}
	}
	return Identity{Label: candidates[idx].Label, Address: candidates[idx].Address}, nil
}

// Alternate picks the identity to prepare next: the label after the one
// matching current, wrapping around, or the last label when current
// matches none. With two labels A and B this is "A if current is B,
// otherwise B".
func (r *Resolver) Alternate(ctx context.Context, cfg config.Chain, current string) (Identity, error) {
	candidates := r.Lookup(ctx, cfg)
	if len(candidates) == 0 {
		return Identity{}, &ResolutionError{Target: current, Err: ErrNoIdentityMatch}
	}
	idx, err := match(candidates, current)
	if err != nil {
		return Identity{}, &ResolutionError{Target: current, Candidates: candidates, Err: err}
	}

	next := len(candidates) - 1
	if idx >= 0 {
		next = (idx + 1) % len(candidates)
	}
	chosen := candidates[next]
	if chosen.LookupErr != "" {
		return Identity{}, &ResolutionError{
			Target:     current,
			Candidates: candidates,
			Err:        fmt.Errorf("%w for %s", ErrLookupFailed, chosen.Label),
		}
	}
	return Identity{Label: chosen.Label, Address: chosen.Address}, nil
}

// match returns the index of the only candidate whose address equals
// target, -1 when there is none, or ErrAmbiguousIdentity.
func match(candidates []Candidate, target string) (int, error) {
	found := -1
	if target == "" {
		return found, nil
	}
	for i, c := range candidates {
		if c.LookupErr != "" || c.Address != target {
			continue
		}
		if found >= 0 {
			return -1, ErrAmbiguousIdentity
		}
		found = i
	}
	return found, nil
}
