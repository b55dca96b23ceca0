package runtime

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/sbl8/shmwalk/branching"
	"github.com/sbl8/shmwalk/comm"
	"github.com/sbl8/shmwalk/core"
	"github.com/sbl8/shmwalk/kernels"
)

// PopControl runs one population control step: aggregate statistics,
// weight rescale, branching and load balancing. On return every group holds
// exactly TargetPerGroup walkers (with ASYNC balancing, as soon as any
// accessor settles the transfers). Collective over every group.
func (ws *WalkerSet) PopControl() (Stats, error) {
	var stats Stats
	if err := ws.ready("popControl"); err != nil {
		return stats, err
	}
	ws.obs.Begin(PhasePopControl)
	defer ws.obs.End(PhasePopControl)

	if ws.totNumWalkers != ws.targetPerTG {
		return stats, ws.fatal("popControl", fmt.Errorf("%w: tot_num_walkers=%d, targetN_per_TG=%d",
			ErrPopulationMismatch, ws.totNumWalkers, ws.targetPerTG))
	}

	stats, err := ws.aggregate()
	if err != nil {
		return stats, err
	}

	if ws.tg.IsCoordinator() {
		local, excess, err := ws.branch()
		if err != nil {
			return stats, err
		}
		if err := ws.balance(local, excess); err != nil {
			return stats, err
		}
	}

	if err := ws.tg.Local.Barrier(); err != nil {
		return stats, err
	}
	if ws.totNumWalkers != ws.targetPerTG {
		return stats, ws.fatal("popControl", fmt.Errorf("%w: tot_num_walkers=%d after balancing",
			ErrPopulationMismatch, ws.totNumWalkers))
	}
	return stats, nil
}

// aggregate computes the statistics vector on the coordinators, reduces it
// over the heads group, broadcasts it to every member and rescales the
// weights.
func (ws *WalkerSet) aggregate() (Stats, error) {
	ws.obs.Begin(PhaseStats)
	defer ws.obs.End(PhaseStats)

	var stats Stats
	if ws.tg.IsCoordinator() {
		m, err := ws.shared.arena.View(ws.totNumWalkers, ws.layout)
		if err != nil {
			return stats, ws.fatal("stats", err)
		}
		sums := kernels.Accumulate(m)
		m.Release()

		stats[StatWeightedEnergy] = sums.WeightedEnergy
		stats[StatWeight] = sums.Weight
		stats[StatAbsWeight] = complex(sums.AbsWeight, 0)
		stats[StatAbsOverlap] = complex(sums.AbsOverlap, 0)
		stats[StatWalkers] = complex(float64(sums.Count), 0)
		stats[StatHealthy] = complex(float64(sums.Healthy), 0)

		if err := comm.AllReduceSum(ws.tg.Heads, stats[:]); err != nil {
			return stats, ws.fatal("stats", err)
		}
		w := real(stats[StatWeight])
		if w == 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return stats, ws.fatal("stats", fmt.Errorf("%w: %v", ErrZeroWeight, stats[StatWeight]))
		}
		stats[StatRescale] = complex(1/w, 0)
	}
	if err := ws.tg.Local.Broadcast(stats[:], comm.Root); err != nil {
		return stats, ws.fatal("stats", err)
	}

	m, err := ws.shared.arena.View(ws.totNumWalkers, ws.layout)
	if err != nil {
		return stats, ws.fatal("stats", err)
	}
	kernels.ScaleWeights(m, stats[StatRescale], ws.partition())
	m.Release()
	return stats, ws.tg.Local.Barrier()
}

// branch gathers every weight magnitude to the heads root, runs the strategy
// there and applies this group's share of the broadcast decision. It returns
// the walkers kept locally and the excess records beyond the target.
func (ws *WalkerSet) branch() (int, []complex128, error) {
	ws.obs.Begin(PhaseBranch)
	defer ws.obs.End(PhaseBranch)

	heads := ws.tg.Heads
	groups, gid := ws.tg.NumGroups, ws.tg.GroupID

	counts := make([]complex128, groups)
	counts[gid] = complex(float64(ws.totNumWalkers), 0)
	if err := comm.AllReduceSum(heads, counts); err != nil {
		return 0, nil, ws.fatal("branch", err)
	}
	offsets := make([]int, groups+1)
	for g, c := range counts {
		offsets[g+1] = offsets[g] + int(math.Round(real(c)))
	}
	total := offsets[groups]

	decisions := make([]complex128, total)
	m, err := ws.shared.arena.View(ws.totNumWalkers, ws.layout)
	if err != nil {
		return 0, nil, ws.fatal("branch", err)
	}
	weights := m.Column(core.Weight)
	for i := 0; i < m.Len(); i++ {
		decisions[offsets[gid]+i] = complex(cmplx.Abs(weights.At(i)), 0)
	}
	m.Release()

	if err := heads.ReduceSum(decisions, comm.Root); err != nil {
		return 0, nil, ws.fatal("branch", err)
	}
	if heads.Rank() == comm.Root {
		entries := make([]branching.Entry, total)
		for i, d := range decisions {
			entries[i] = branching.Entry{Weight: real(d), Count: 1}
		}
		params := branching.Params{MinWeight: ws.minWeight, MaxWeight: ws.maxWeight, Target: ws.targetN}
		if err := ws.strategy.Branch(entries, params, ws.rng); err != nil {
			return 0, nil, ws.fatal("branch", err)
		}
		for i, e := range entries {
			decisions[i] = complex(e.Weight, float64(e.Count))
		}
	}
	if err := heads.Broadcast(decisions, comm.Root); err != nil {
		return 0, nil, ws.fatal("branch", err)
	}

	ws.countsOld = make([]int, groups)
	sum := 0
	for g := 0; g < groups; g++ {
		for _, d := range decisions[offsets[g]:offsets[g+1]] {
			ws.countsOld[g] += int(imag(d))
		}
		sum += ws.countsOld[g]
	}
	if sum != ws.targetN {
		return 0, nil, ws.fatal("branch", fmt.Errorf("%w: branching produced %d walkers, target %d",
			ErrPopulationMismatch, sum, ws.targetN))
	}

	local, excess, err := ws.applyDecisions(decisions[offsets[gid]:offsets[gid+1]])
	if err != nil {
		return 0, nil, ws.fatal("branch", err)
	}
	return local, excess, nil
}

// applyDecisions rewrites the local buffer from one (weight, count) pair per
// walker. Survivors are compacted to the front with their weight magnitude
// replaced and phase kept, then extra copies fill up to the target; copies
// beyond it are returned as excess records.
func (ws *WalkerSet) applyDecisions(seg []complex128) (int, []complex128, error) {
	target := ws.targetPerTG
	m, err := ws.shared.arena.View(target, ws.layout)
	if err != nil {
		return 0, nil, err
	}
	defer m.Release()

	type copies struct{ row, extra int }
	var dups []copies
	write := 0
	for i, d := range seg {
		n := int(imag(d))
		if n == 0 {
			continue
		}
		w := m.At(write)
		if write != i {
			w.CopyFrom(m.At(i))
		}
		w.SetWeight(kernels.WithMagnitude(w.Weight(), real(d)))
		if n > 1 {
			dups = append(dups, copies{row: write, extra: n - 1})
		}
		write++
	}

	var excess []complex128
	for _, d := range dups {
		for k := 0; k < d.extra; k++ {
			if write < target {
				m.At(write).CopyFrom(m.At(d.row))
				write++
				continue
			}
			excess = append(excess, m.At(d.row).Raw()...)
		}
	}
	return write, excess, nil
}
