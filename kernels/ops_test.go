package kernels

import (
	"math"
	"math/cmplx"
	"math/rand"
	"testing"

	"github.com/sbl8/shmwalk/core"
)

func testMatrix(t *testing.T, n int) *core.Matrix {
	t.Helper()
	l, err := core.NewLayout(core.Collinear, core.Descriptor{NMO: 3, NAEA: 1, NAEB: 1})
	if err != nil {
		t.Fatalf("NewLayout failed: %v", err)
	}
	return core.NewMatrix(make([]complex128, n*l.WalkerSize), n, l, nil)
}

func TestPartitionCoversOnce(t *testing.T) {
	t.Parallel()
	const n, size = 11, 3
	seen := make([]int, n)
	for r := 0; r < size; r++ {
		Partition{Rank: r, Size: size}.Each(n, func(i int) { seen[i]++ })
	}
	for i, c := range seen {
		if c != 1 {
			t.Errorf("index %d visited %d times", i, c)
		}
	}
}

func TestScaleWeightsPartitioned(t *testing.T) {
	t.Parallel()
	m := testMatrix(t, 3)
	for i, w := range []complex128{2, 3, 5} {
		m.At(i).SetWeight(w)
	}
	for r := 0; r < 2; r++ {
		ScaleWeights(m, 0.1, Partition{Rank: r, Size: 2})
	}
	for i, want := range []float64{0.2, 0.3, 0.5} {
		if got := m.At(i).Weight(); math.Abs(real(got)-want) > 1e-12 || imag(got) != 0 {
			t.Errorf("weight %d = %v, want %v", i, got, want)
		}
	}
}

func TestWithMagnitudeKeepsPhase(t *testing.T) {
	t.Parallel()
	w := cmplx.Rect(3, 0.7)
	got := WithMagnitude(w, 0.5)
	if math.Abs(cmplx.Abs(got)-0.5) > 1e-12 {
		t.Errorf("|w| = %v, want 0.5", cmplx.Abs(got))
	}
	if math.Abs(cmplx.Phase(got)-0.7) > 1e-12 {
		t.Errorf("phase = %v, want 0.7", cmplx.Phase(got))
	}
	if WithMagnitude(0, 2) != 2 {
		t.Error("zero weight should become the real magnitude")
	}
}

func TestAccumulate(t *testing.T) {
	t.Parallel()
	m := testMatrix(t, 3)
	for i := 0; i < 3; i++ {
		w := m.At(i)
		w.SetWeight(complex(float64(i+1), 0))
		w.SetOverlap(1)
		w.SetEnergies(1, 0.5, 0.5)
	}
	m.At(2).SetOverlap(0)

	s := Accumulate(m)
	if s.Weight != 6 || s.WeightedEnergy != 12 {
		t.Errorf("weight/energy sums = %v/%v, want 6/12", s.Weight, s.WeightedEnergy)
	}
	if s.AbsWeight != 6 || s.AbsOverlap != 2 {
		t.Errorf("abs sums = %v/%v, want 6/2", s.AbsWeight, s.AbsOverlap)
	}
	if s.Count != 3 || s.Healthy != 2 {
		t.Errorf("count/healthy = %d/%d, want 3/2", s.Count, s.Healthy)
	}
}

func TestPropagateOnlyTouchesOwned(t *testing.T) {
	t.Parallel()
	m := testMatrix(t, 4)
	model := Model{E1: -1, EXX: 0.2, EJ: 0.3, Spread: 0.1, Tau: 0.01, ERef: -0.5}
	for i := 0; i < m.Len(); i++ {
		InitWalker(m.At(i), model)
	}

	Propagate(m, model, rand.New(rand.NewSource(1)), Partition{Rank: 1, Size: 2})
	for i := 0; i < m.Len(); i++ {
		w := m.At(i)
		changed := w.Weight() != 1
		if changed != (i%2 == 1) {
			t.Errorf("walker %d changed=%v", i, changed)
		}
		if !w.Healthy() {
			t.Errorf("walker %d unhealthy after one step", i)
		}
	}
}

func TestInitWalker(t *testing.T) {
	t.Parallel()
	m := testMatrix(t, 1)
	w := m.At(0)
	w.Raw()[0] = 9
	InitWalker(w, Model{E1: 1, EXX: 2, EJ: 3})
	sm := w.SlaterMatrix()
	if sm[0] != 1 || sm[4] != 1 || sm[1] != 0 {
		t.Errorf("Slater matrix = %v", sm)
	}
	if w.Energy() != 6 || w.PseudoEnergy() != 6 {
		t.Errorf("energy = %v, pseudo = %v", w.Energy(), w.PseudoEnergy())
	}
}

func BenchmarkAccumulate(b *testing.B) {
	l, _ := core.NewLayout(core.ClosedShell, core.Descriptor{NMO: 32, NAEA: 8})
	m := core.NewMatrix(make([]complex128, 256*l.WalkerSize), 256, l, nil)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Accumulate(m)
	}
}
