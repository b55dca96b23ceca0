package runtime

import (
	"fmt"
	"math"
)

// Stats is the aggregate vector returned by PopControl.
type Stats [7]complex128

// Stats slots.
const (
	StatRescale        = iota // 1 / Re(sum of raw weights)
	StatWeightedEnergy        // sum of w*Eloc
	StatWeight                // sum of w
	StatAbsWeight             // sum of |w|
	StatAbsOverlap            // sum of |overlap|
	StatWalkers               // total walker count
	StatHealthy               // walkers with |w| > 1e-6 and |overlap| > 1e-8
)

// Energy is the mixed estimate Re(sum w*Eloc / sum w).
func (s Stats) Energy() float64 {
	if s[StatWeight] == 0 {
		return math.NaN()
	}
	return real(s[StatWeightedEnergy] / s[StatWeight])
}

// Walkers returns the total walker count.
func (s Stats) Walkers() int { return int(math.Round(real(s[StatWalkers]))) }

// Healthy returns the healthy walker count.
func (s Stats) Healthy() int { return int(math.Round(real(s[StatHealthy]))) }

func (s Stats) String() string {
	return fmt.Sprintf("energy=%.8f weight=%.6g |w|=%.6g |ovlp|=%.6g walkers=%d healthy=%d",
		s.Energy(), real(s[StatWeight]), real(s[StatAbsWeight]), real(s[StatAbsOverlap]), s.Walkers(), s.Healthy())
}
