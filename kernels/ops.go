// Package kernels provides the numeric passes that run over walker views.
//
// Every kernel takes a *core.Matrix and a Partition. A member of a node group
// only writes the walkers its Partition owns, so all members can run the same
// kernel over the shared buffer at once without locks; callers put a barrier
// after any kernel that writes before others read the result.
//
// Available operations:
//   - ScaleWeights: multiply every weight by a factor
//   - Accumulate: one pass computing the population sums
//   - Propagate: a toy imaginary-time step used by the driver
package kernels

import (
	"math"
	"math/cmplx"

	"github.com/sbl8/shmwalk/core"
)

// Partition is a member's share of a node group's walkers: index i belongs to
// Rank when i mod Size == Rank.
type Partition struct {
	Rank int
	Size int
}

// Whole is the partition of a single member that owns everything.
var Whole = Partition{Rank: 0, Size: 1}

// Each calls fn for every index below n that p owns.
func (p Partition) Each(n int, fn func(i int)) {
	size := p.Size
	if size < 1 {
		size = 1
	}
	for i := p.Rank; i < n; i += size {
		fn(i)
	}
}

// ScaleWeights multiplies the weight of every owned walker by factor.
func ScaleWeights(m *core.Matrix, factor complex128, p Partition) {
	weights := m.Column(core.Weight)
	p.Each(m.Len(), func(i int) {
		weights.Set(i, weights.At(i)*factor)
	})
}

// WithMagnitude returns w rescaled to magnitude mag, keeping its phase. A zero
// weight becomes the real number mag.
func WithMagnitude(w complex128, mag float64) complex128 {
	abs := cmplx.Abs(w)
	if abs == 0 {
		return complex(mag, 0)
	}
	return w * complex(mag/abs, 0)
}

// Sums are the population totals gathered in one pass.
type Sums struct {
	WeightedEnergy complex128 // sum of w*Eloc
	Weight         complex128 // sum of w
	AbsWeight      float64    // sum of |w|
	AbsOverlap     float64    // sum of |overlap|
	Count          int
	Healthy        int
}

// Accumulate walks every walker in m once.
func Accumulate(m *core.Matrix) Sums {
	var s Sums
	for i := 0; i < m.Len(); i++ {
		w := m.At(i)
		wt := w.Weight()
		s.WeightedEnergy += wt * w.Energy()
		s.Weight += wt
		s.AbsWeight += cmplx.Abs(wt)
		s.AbsOverlap += cmplx.Abs(w.Overlap())
		s.Count++
		if w.Healthy() {
			s.Healthy++
		}
	}
	return s
}

// Source yields normal and uniform variates. *rand.Rand satisfies it.
type Source interface {
	Float64() float64
	NormFloat64() float64
}

// Model is the toy Hamiltonian the propagator samples from.
type Model struct {
	E1     float64 // one-body energy
	EXX    float64 // exchange energy
	EJ     float64 // Coulomb energy
	Spread float64 // std deviation of the local energy per step
	Tau    float64 // imaginary time step
	ERef   float64 // reference energy of the weight update
}

// Propagate advances every owned walker by one step: the local energies are
// resampled around the model values, the weight picks up exp(-tau*(Eloc-ERef))
// and a random phase drift, and the overlap follows the phase.
func Propagate(m *core.Matrix, model Model, rng Source, p Partition) {
	p.Each(m.Len(), func(i int) {
		w := m.At(i)
		e1 := model.E1 + model.Spread*rng.NormFloat64()
		exx := model.EXX + 0.5*model.Spread*rng.NormFloat64()
		ej := model.EJ + 0.5*model.Spread*rng.NormFloat64()
		w.SetEnergies(complex(e1, 0), complex(exx, 0), complex(ej, 0))
		eloc := e1 + exx + ej

		theta := 0.05 * rng.NormFloat64()
		drift := cmplx.Rect(math.Exp(-model.Tau*(eloc-model.ERef)), theta)
		w.SetWeight(w.Weight() * drift)
		w.SetPhase(w.Phase() * cmplx.Rect(1, theta))
		w.SetPseudoEnergy(complex(eloc, 0))

		ovlp := w.Overlap()
		if ovlp == 0 {
			ovlp = 1
		}
		w.SetOverlap(ovlp * cmplx.Rect(1, theta))
	})
}

// InitWalker writes a fresh walker: unit weight, phase and overlap, an
// identity-like Slater matrix and the model energies.
func InitWalker(w core.Walker, model Model) {
	for i := range w.Raw() {
		w.Raw()[i] = 0
	}
	dims := w.Layout().Dims
	sm := w.SlaterMatrix()
	for c := 0; c < dims.NCol && c < dims.NRow; c++ {
		sm[c*dims.NRow+c] = 1
	}
	w.SetWeight(1)
	w.SetPhase(1)
	w.SetOverlap(1)
	w.SetEnergies(complex(model.E1, 0), complex(model.EXX, 0), complex(model.EJ, 0))
	w.SetPseudoEnergy(w.Energy())
}
