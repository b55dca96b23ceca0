// Package branching implements the population-control strategies applied to
// the global list of walker weights.
//
// A strategy receives one Entry per walker, each with Count 1 and the walker's
// weight magnitude, and rewrites the entries in place: Count becomes the number
// of copies of that walker in the next population (0 kills it) and Weight the
// magnitude every copy carries. Every strategy is unbiased, the expected total
// weight of the output equals the input total.
package branching

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrUnknownPolicy     = errors.New("unknown branching policy")
	ErrCombUnimplemented = errors.New("distributed comb branching is not implemented")
	ErrPopulationDied    = errors.New("branching killed every walker")
	ErrBadParams         = errors.New("invalid branching parameters")
)

// Policy selects a branching strategy.
type Policy int

const (
	Pair Policy = iota
	SerialComb
	MinBranch
	Comb
)

var policyNames = map[Policy]string{
	Pair:       "pair",
	SerialComb: "serial_comb",
	MinBranch:  "min_branch",
	Comb:       "comb",
}

func (p Policy) String() string {
	if name, ok := policyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy resolves a policy from its configuration name.
func ParsePolicy(name string) (Policy, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for p, pn := range policyNames {
		if pn == n || strings.ReplaceAll(pn, "_", "") == n {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
}

// Entry is one walker's branching record.
type Entry struct {
	Weight float64
	Count  int
}

// Params are the thresholds and population target of one branching pass.
type Params struct {
	MinWeight float64
	MaxWeight float64
	Target    int // global population after branching
}

func (p Params) validate() error {
	if p.MinWeight <= 0 || p.MaxWeight <= p.MinWeight {
		return fmt.Errorf("%w: weight window [%g, %g]", ErrBadParams, p.MinWeight, p.MaxWeight)
	}
	if p.Target < 1 {
		return fmt.Errorf("%w: target %d", ErrBadParams, p.Target)
	}
	return nil
}

// Source yields uniform variates in [0,1). *rand.Rand satisfies it.
type Source interface {
	Float64() float64
}

// Strategy is one population-control algorithm.
type Strategy interface {
	Name() string
	Branch(entries []Entry, p Params, rng Source) error
}

// Catalog maps every policy to its strategy.
var Catalog = map[Policy]Strategy{
	Pair:       pairStrategy{},
	SerialComb: serialComb{},
	MinBranch:  minBranch{},
	Comb:       distComb{},
}

// For returns the strategy registered for p.
func For(p Policy) (Strategy, error) {
	s, ok := Catalog[p]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownPolicy, p)
	}
	return s, nil
}

// Total returns the number of copies and the total weight described by entries.
func Total(entries []Entry) (int, float64) {
	n, w := 0, 0.0
	for _, e := range entries {
		n += e.Count
		w += float64(e.Count) * e.Weight
	}
	return n, w
}

// sortedIndex returns entry indices ordered by ascending weight. Ties keep
// input order so results are reproducible for a fixed random stream.
func sortedIndex(entries []Entry) []int {
	idx := make([]int, len(entries))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return entries[idx[a]].Weight < entries[idx[b]].Weight
	})
	return idx
}

type distComb struct{}

func (distComb) Name() string { return Comb.String() }

func (distComb) Branch([]Entry, Params, Source) error {
	return ErrCombUnimplemented
}
