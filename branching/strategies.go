package branching

import (
	"container/heap"
	"math"
)

type pairStrategy struct{}

func (pairStrategy) Name() string { return Pair.String() }

// Branch pairs the lightest remaining walker with the heaviest while either is
// outside the weight window and their mean is inside it. One of the two
// survives with probability proportional to its weight and carries two copies
// of the mean, so the pair's weight is conserved exactly.
func (pairStrategy) Branch(entries []Entry, p Params, rng Source) error {
	if err := p.validate(); err != nil {
		return err
	}
	idx := sortedIndex(entries)
	for i, j := 0, len(idx)-1; i < j; i, j = i+1, j-1 {
		lo, hi := &entries[idx[i]], &entries[idx[j]]
		if lo.Weight >= p.MinWeight && hi.Weight <= p.MaxWeight {
			break
		}
		mean := 0.5 * (lo.Weight + hi.Weight)
		if mean < p.MinWeight || mean > p.MaxWeight {
			break
		}
		if rng.Float64() < lo.Weight/(lo.Weight+hi.Weight) {
			lo.Count, hi.Count = 2, 0
		} else {
			lo.Count, hi.Count = 0, 2
		}
		lo.Weight, hi.Weight = mean, mean
	}
	return nil
}

type serialComb struct{}

func (serialComb) Name() string { return SerialComb.String() }

// Branch lays Target evenly spaced teeth with one random offset over the
// cumulative sorted weights. Every walker gets one copy per tooth that falls
// in its interval, each copy weighing total/Target.
func (serialComb) Branch(entries []Entry, p Params, rng Source) error {
	if err := p.validate(); err != nil {
		return err
	}
	if len(entries) == 0 {
		return ErrPopulationDied
	}
	_, total := Total(entries)
	if total <= 0 {
		return ErrPopulationDied
	}

	step := total / float64(p.Target)
	offset := rng.Float64() * step
	idx := sortedIndex(entries)

	tooth, cum := 0, 0.0
	for _, k := range idx {
		cum += float64(entries[k].Count) * entries[k].Weight
		n := 0
		for tooth < p.Target && offset+float64(tooth)*step < cum {
			n++
			tooth++
		}
		entries[k].Count = n
		entries[k].Weight = step
	}
	// Rounding in cum can leave the last teeth unassigned.
	entries[idx[len(idx)-1]].Count += p.Target - tooth
	return nil
}

type minBranch struct{}

func (minBranch) Name() string { return MinBranch.String() }

// Branch kills walkers below the minimum weight with probability 1-w/min,
// promoting survivors to weight min, then restores the target population by
// repeatedly splitting the walker with the largest per-copy weight.
func (minBranch) Branch(entries []Entry, p Params, rng Source) error {
	if err := p.validate(); err != nil {
		return err
	}
	for i := range entries {
		e := &entries[i]
		if e.Count == 0 || e.Weight >= p.MinWeight {
			continue
		}
		if rng.Float64() < e.Weight/p.MinWeight {
			e.Weight = p.MinWeight
		} else {
			e.Count = 0
		}
	}

	n, _ := Total(entries)
	if n == 0 {
		return ErrPopulationDied
	}

	h := &splitHeap{entries: entries}
	for i, e := range entries {
		if e.Count > 0 {
			h.idx = append(h.idx, i)
		}
	}
	heap.Init(h)
	for ; n < p.Target; n++ {
		e := &entries[h.idx[0]]
		c := float64(e.Count)
		e.Weight *= c / (c + 1)
		e.Count++
		heap.Fix(h, 0)
	}
	return nil
}

// splitHeap orders live entries by per-copy weight, heaviest first.
type splitHeap struct {
	entries []Entry
	idx     []int
}

func (h *splitHeap) Len() int { return len(h.idx) }
func (h *splitHeap) Less(a, b int) bool {
	wa, wb := h.entries[h.idx[a]].Weight, h.entries[h.idx[b]].Weight
	if wa == wb {
		return h.idx[a] < h.idx[b]
	}
	return wa > wb
}
func (h *splitHeap) Swap(a, b int) { h.idx[a], h.idx[b] = h.idx[b], h.idx[a] }
func (h *splitHeap) Push(x any)    { h.idx = append(h.idx, x.(int)) }
func (h *splitHeap) Pop() any {
	last := h.idx[len(h.idx)-1]
	h.idx = h.idx[:len(h.idx)-1]
	return last
}

// Expand turns branched entries into the copy list: the input index of every
// surviving copy in order, each repeated Count times.
func Expand(entries []Entry) []int {
	n, _ := Total(entries)
	out := make([]int, 0, n)
	for i, e := range entries {
		for c := 0; c < e.Count; c++ {
			out = append(out, i)
		}
	}
	return out
}

// Unbiased reports whether two totals agree to a relative tolerance.
func Unbiased(before, after, tol float64) bool {
	return math.Abs(before-after) <= tol*math.Max(math.Abs(before), 1)
}
