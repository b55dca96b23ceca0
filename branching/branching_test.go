package branching

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func entriesOf(weights ...float64) []Entry {
	out := make([]Entry, len(weights))
	for i, w := range weights {
		out[i] = Entry{Weight: w, Count: 1}
	}
	return out
}

func TestParsePolicy(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		want Policy
	}{
		{"pair", Pair},
		{"PAIR", Pair},
		{"serial_comb", SerialComb},
		{"serialcomb", SerialComb},
		{"min_branch", MinBranch},
		{"comb", Comb},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.name)
		if err != nil {
			t.Errorf("ParsePolicy(%q) failed: %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePolicy(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
	if _, err := ParsePolicy("reconfigure"); !errors.Is(err, ErrUnknownPolicy) {
		t.Errorf("expected ErrUnknownPolicy, got %v", err)
	}
}

func TestCatalogCoversPolicies(t *testing.T) {
	t.Parallel()
	for _, p := range []Policy{Pair, SerialComb, MinBranch, Comb} {
		s, err := For(p)
		if err != nil {
			t.Fatalf("For(%v) failed: %v", p, err)
		}
		if s.Name() != p.String() {
			t.Errorf("strategy name %q, want %q", s.Name(), p.String())
		}
	}
	if _, err := For(Policy(42)); !errors.Is(err, ErrUnknownPolicy) {
		t.Errorf("expected ErrUnknownPolicy, got %v", err)
	}
}

func TestPairConservesExpectedWeight(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(7))
	p := Params{MinWeight: 0.05, MaxWeight: 2.0, Target: 4}

	const trials = 10000
	sum := 0.0
	for i := 0; i < trials; i++ {
		e := entriesOf(0.001, 0.5, 0.5, 3.0)
		if err := Catalog[Pair].Branch(e, p, rng); err != nil {
			t.Fatalf("Branch failed: %v", err)
		}
		n, w := Total(e)
		if n != 4 {
			t.Fatalf("trial %d: population %d, want 4", i, n)
		}
		sum += w
	}
	mean := sum / trials
	if math.Abs(mean-4.001)/4.001 > 0.01 {
		t.Errorf("mean total weight = %v, want within 1%% of 4.001", mean)
	}
}

func TestPairLeavesWindowAlone(t *testing.T) {
	t.Parallel()
	e := entriesOf(0.5, 1.0, 1.5)
	if err := Catalog[Pair].Branch(e, Params{MinWeight: 0.1, MaxWeight: 2, Target: 3}, rand.New(rand.NewSource(1))); err != nil {
		t.Fatalf("Branch failed: %v", err)
	}
	for i, got := range e {
		if got.Count != 1 {
			t.Errorf("entry %d count = %d, want 1", i, got.Count)
		}
	}
}

func TestSerialCombExactTarget(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(3))
	tests := []struct {
		name    string
		weights []float64
		target  int
	}{
		{"uniform", []float64{1, 1, 1, 1}, 4},
		{"skewed", []float64{0.01, 0.2, 0.3, 5, 0.02, 1.1}, 6},
		{"shrink", []float64{0.5, 0.5, 0.5, 0.5}, 2},
		{"grow", []float64{2, 3}, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := entriesOf(tt.weights...)
			_, before := Total(e)
			if err := Catalog[SerialComb].Branch(e, Params{MinWeight: 0.05, MaxWeight: 4, Target: tt.target}, rng); err != nil {
				t.Fatalf("Branch failed: %v", err)
			}
			n, after := Total(e)
			if n != tt.target {
				t.Errorf("population = %d, want %d", n, tt.target)
			}
			if !Unbiased(before, after, 1e-9) {
				t.Errorf("total weight %v, want %v", after, before)
			}
		})
	}
}

func TestMinBranch(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(11))
	p := Params{MinWeight: 0.1, MaxWeight: 3, Target: 5}

	const trials = 5000
	sum := 0.0
	for i := 0; i < trials; i++ {
		e := entriesOf(0.01, 0.02, 1, 1.5, 2.47)
		if err := Catalog[MinBranch].Branch(e, p, rng); err != nil {
			t.Fatalf("Branch failed: %v", err)
		}
		n, w := Total(e)
		if n != 5 {
			t.Fatalf("population = %d, want 5", n)
		}
		for j, got := range e {
			if got.Count > 0 && got.Weight < p.MinWeight {
				t.Fatalf("entry %d survives below min weight: %v", j, got.Weight)
			}
		}
		sum += w
	}
	mean := sum / trials
	if math.Abs(mean-5.0)/5.0 > 0.01 {
		t.Errorf("mean total weight = %v, want within 1%% of 5", mean)
	}
}

func TestMinBranchAllKilled(t *testing.T) {
	t.Parallel()
	e := entriesOf(1e-9, 1e-9)
	err := Catalog[MinBranch].Branch(e, Params{MinWeight: 1, MaxWeight: 2, Target: 2}, fixedSource{0.999})
	if !errors.Is(err, ErrPopulationDied) {
		t.Errorf("expected ErrPopulationDied, got %v", err)
	}
}

func TestCombUnimplemented(t *testing.T) {
	t.Parallel()
	err := Catalog[Comb].Branch(entriesOf(1, 1), Params{MinWeight: 0.1, MaxWeight: 2, Target: 2}, rand.New(rand.NewSource(1)))
	if !errors.Is(err, ErrCombUnimplemented) {
		t.Errorf("expected ErrCombUnimplemented, got %v", err)
	}
}

func TestBadParams(t *testing.T) {
	t.Parallel()
	for _, p := range []Params{
		{MinWeight: 0, MaxWeight: 1, Target: 1},
		{MinWeight: 1, MaxWeight: 1, Target: 1},
		{MinWeight: 0.1, MaxWeight: 1, Target: 0},
	} {
		if err := Catalog[Pair].Branch(entriesOf(1), p, rand.New(rand.NewSource(1))); !errors.Is(err, ErrBadParams) {
			t.Errorf("params %+v: expected ErrBadParams, got %v", p, err)
		}
	}
}

func TestExpand(t *testing.T) {
	t.Parallel()
	got := Expand([]Entry{{Count: 2}, {Count: 0}, {Count: 1}})
	want := []int{0, 0, 2}
	if len(got) != len(want) {
		t.Fatalf("Expand = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expand = %v, want %v", got, want)
			break
		}
	}
}

type fixedSource struct{ v float64 }

func (s fixedSource) Float64() float64 { return s.v }

func BenchmarkPair(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	weights := make([]float64, 4096)
	for i := range weights {
		weights[i] = rng.ExpFloat64()
	}
	p := Params{MinWeight: 0.1, MaxWeight: 2, Target: len(weights)}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Catalog[Pair].Branch(entriesOf(weights...), p, rng)
	}
}
