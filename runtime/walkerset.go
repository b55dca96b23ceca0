// Package runtime manages the distributed walker population.
//
// Every member of a node group owns a WalkerSet; the members of one group share
// a single Arena. Population decisions (resize, branching, buffer growth,
// random numbers) are made by the group coordinator while the other members
// wait at a barrier. Field-wide kernels are split across members by the static
// owner partition, index mod group size.
//
// Execution model of one PopControl call:
//  1. Aggregate statistics across every group and rescale the weights
//  2. Gather all weights to the heads root and run the branching strategy
//  3. Apply each group's share of the decision locally, spilling the excess
//  4. Move surplus walkers to groups with a deficit (SYNC or ASYNC)
//
// Any invariant violation is fatal: it is logged, the whole process world is
// aborted and an error wrapping ErrFatal is returned.
package runtime

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/sbl8/shmwalk/branching"
	"github.com/sbl8/shmwalk/comm"
	"github.com/sbl8/shmwalk/core"
	"github.com/sbl8/shmwalk/kernels"
)

// MinWeightFloor is the smallest minimum weight Setup accepts.
const MinWeightFloor = 1e-2

// LoadBalance selects how surplus walkers are moved between groups.
type LoadBalance int

const (
	Sync LoadBalance = iota
	Async
)

func (lb LoadBalance) String() string {
	switch lb {
	case Sync:
		return "sync"
	case Async:
		return "async"
	}
	return fmt.Sprintf("LoadBalance(%d)", int(lb))
}

// ParseLoadBalance resolves a load balancing policy from its name.
func ParseLoadBalance(name string) (LoadBalance, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sync":
		return Sync, nil
	case "async":
		return Async, nil
	}
	return 0, fmt.Errorf("unknown load balance policy %q", name)
}

// Options configure a WalkerSet.
type Options struct {
	Policy      branching.Policy
	LoadBalance LoadBalance
	Seed        int64 // random seed of the heads root
	Observer    Observer
	Log         *logrus.Entry
}

// DefaultOptions matches the usual production settings.
func DefaultOptions() Options {
	return Options{Policy: branching.Pair, LoadBalance: Async, Seed: 1}
}

// groupState is the part of a walker set shared by every member of a node
// group. The coordinator writes it between barriers.
type groupState struct {
	arena *Arena

	mu         sync.Mutex
	pending    *errgroup.Group
	pendingErr error
}

// settle waits for in-flight transfers.
func (s *groupState) settle() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		s.pendingErr = s.pending.Wait()
		s.pending = nil
	}
	return s.pendingErr
}

func (s *groupState) startPending(g *errgroup.Group) {
	s.mu.Lock()
	s.pending = g
	s.pendingErr = nil
	s.mu.Unlock()
}

// WalkerSet is one member's handle on its node group's walker population.
type WalkerSet struct {
	tg     *comm.TaskGroup
	opts   Options
	shared *groupState
	layout *core.Layout

	minWeight float64
	maxWeight float64

	totNumWalkers int
	targetPerTG   int
	targetN       int

	strategy branching.Strategy
	rng      *rand.Rand
	obs      Observer
	log      *logrus.Entry

	countsOld []int
	lastPlan  []Transfer
}

// NewWalkerSet creates the member's walker set. Call Setup before use.
func NewWalkerSet(tg *comm.TaskGroup, opts Options) (*WalkerSet, error) {
	if tg == nil {
		return nil, errors.New("task group is nil")
	}
	strategy, err := branching.For(opts.Policy)
	if err != nil {
		return nil, err
	}
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	obs := opts.Observer
	if obs == nil {
		obs = NopObserver{}
	}
	shared := tg.Shared("walkers", func() any { return &groupState{} }).(*groupState)
	return &WalkerSet{
		tg:       tg,
		opts:     opts,
		shared:   shared,
		strategy: strategy,
		rng:      rand.New(rand.NewSource(opts.Seed)),
		obs:      obs,
		log: log.WithFields(logrus.Fields{
			"group": tg.GroupID,
			"rank":  tg.Local.Rank(),
		}),
	}, nil
}

// fatal logs err, aborts the world and returns the fatal error.
func (ws *WalkerSet) fatal(op string, err error) error {
	if errors.Is(err, comm.ErrAborted) || errors.Is(err, ErrFatal) {
		return err
	}
	ferr := &FatalError{Op: op, Err: err}
	ws.log.WithError(err).WithField("op", op).Error("fatal walker set error")
	ws.tg.Abort(ferr)
	return ferr
}

func (ws *WalkerSet) partition() kernels.Partition {
	return kernels.Partition{Rank: ws.tg.Local.Rank(), Size: ws.tg.Local.Size()}
}

// Setup computes the walker layout, resets every count and gives the group an
// empty buffer. It is collective over the node group.
func (ws *WalkerSet) Setup(shape core.Shape, nmo, naea, naeb, nbackProp int, minWeight, maxWeight float64) error {
	if err := ws.shared.settle(); err != nil {
		return ws.fatal("setup", err)
	}
	layout, err := core.NewLayout(shape, core.Descriptor{NMO: nmo, NAEA: naea, NAEB: naeb, NBackProp: nbackProp})
	if err != nil {
		return ws.fatal("setup", err)
	}
	minWeight = math.Max(math.Abs(minWeight), MinWeightFloor)
	if maxWeight <= minWeight {
		return ws.fatal("setup", fmt.Errorf("%w: max weight %g not above min weight %g", branching.ErrBadParams, maxWeight, minWeight))
	}

	ws.layout = layout
	ws.minWeight, ws.maxWeight = minWeight, maxWeight
	ws.totNumWalkers, ws.targetPerTG, ws.targetN = 0, 0, 0
	ws.countsOld, ws.lastPlan = nil, nil

	if ws.tg.IsCoordinator() {
		arena, err := NewArena(layout.WalkerSize)
		if err != nil {
			return ws.fatal("setup", err)
		}
		ws.shared.arena = arena
		ws.log.WithFields(logrus.Fields{
			"shape":       shape.Name(),
			"walker_size": layout.WalkerSize,
			"policy":      ws.strategy.Name(),
			"balance":     ws.opts.LoadBalance,
		}).Debug("walker set ready")
	}
	return ws.tg.Local.Barrier()
}

func (ws *WalkerSet) ready(op string) error {
	if ws.layout == nil {
		return ws.fatal(op, ErrNotSetup)
	}
	if err := ws.shared.settle(); err != nil {
		return ws.fatal(op, err)
	}
	return nil
}

// Layout returns the walker record layout.
func (ws *WalkerSet) Layout() *core.Layout { return ws.layout }

// MinWeight returns the normalised minimum weight.
func (ws *WalkerSet) MinWeight() float64 { return ws.minWeight }

// MaxWeight returns the maximum weight.
func (ws *WalkerSet) MaxWeight() float64 { return ws.maxWeight }

// Size returns the node group's population.
func (ws *WalkerSet) Size() int { return ws.totNumWalkers }

// TargetPerGroup returns the per-group target population.
func (ws *WalkerSet) TargetPerGroup() int { return ws.targetPerTG }

// Target returns the global target population.
func (ws *WalkerSet) Target() int { return ws.targetN }

// Capacity returns the number of records the group's buffer holds.
func (ws *WalkerSet) Capacity() int {
	if ws.shared.arena == nil {
		return 0
	}
	return ws.shared.arena.Capacity()
}

// CountsOld returns the per-group populations seen by the last load balance.
// Only coordinators have them.
func (ws *WalkerSet) CountsOld() []int { return ws.countsOld }

// LastPlan returns the transfers of the last load balance.
func (ws *WalkerSet) LastPlan() []Transfer { return ws.lastPlan }

// Reserve grows the group's buffer to at least n records. Every member must
// have released its views. Collective over the node group.
func (ws *WalkerSet) Reserve(n int) error {
	if err := ws.ready("reserve"); err != nil {
		return err
	}
	if ws.tg.IsCoordinator() {
		if err := ws.shared.arena.Reserve(n); err != nil {
			return ws.fatal("reserve", err)
		}
	}
	return ws.tg.Local.Barrier()
}

// Seed replaces the population with n walkers written by init. Members write
// the walkers they own. Collective over the node group.
func (ws *WalkerSet) Seed(n int, init func(i int, w core.Walker)) error {
	if err := ws.ready("seed"); err != nil {
		return err
	}
	if n < 1 {
		return ws.fatal("seed", fmt.Errorf("%w: %d", ErrInvalidSize, n))
	}
	if err := ws.Reserve(n); err != nil {
		return err
	}

	m, err := ws.shared.arena.View(n, ws.layout)
	if err != nil {
		return ws.fatal("seed", err)
	}
	ws.partition().Each(n, func(i int) { init(i, m.At(i)) })
	m.Release()

	ws.totNumWalkers = n
	return ws.tg.Local.Barrier()
}

// Resize sets the population and the per-group target to exactly n.
// Missing walkers are copied round-robin from the existing population;
// surplus walkers are dropped from the end. Collective over every group.
func (ws *WalkerSet) Resize(n int) error {
	if err := ws.ready("resize"); err != nil {
		return err
	}
	ws.obs.Begin(PhaseResize)
	defer ws.obs.End(PhaseResize)

	if ws.totNumWalkers == 0 {
		return ws.fatal("resize", ErrEmptySet)
	}
	if n < 1 {
		return ws.fatal("resize", fmt.Errorf("%w: %d", ErrInvalidSize, n))
	}

	var global [1]complex128
	if ws.tg.IsCoordinator() {
		arena := ws.shared.arena
		if err := arena.Reserve(n); err != nil {
			return ws.fatal("resize", err)
		}
		k := ws.totNumWalkers
		for pos, src := k, 0; pos < n; pos++ {
			arena.CopyRow(pos, src)
			src = (src + 1) % k
		}

		global[0] = complex(float64(n), 0)
		if err := comm.AllReduceSum(ws.tg.Heads, global[:]); err != nil {
			return ws.fatal("resize", err)
		}
	}
	if err := ws.tg.Local.Broadcast(global[:], comm.Root); err != nil {
		return ws.fatal("resize", err)
	}

	ws.totNumWalkers = n
	ws.targetPerTG = n
	ws.targetN = int(math.Round(real(global[0])))
	if ws.targetN != ws.targetPerTG*ws.tg.NumGroups {
		return ws.fatal("resize", fmt.Errorf("%w: targetN=%d, targetN_per_TG=%d, groups=%d",
			ErrTargetMismatch, ws.targetN, ws.targetPerTG, ws.tg.NumGroups))
	}
	return nil
}

// Clean empties the set: counts go to zero and the buffer is replaced by an
// empty one. Collective over the node group.
func (ws *WalkerSet) Clean() error {
	if err := ws.ready("clean"); err != nil {
		return err
	}
	if ws.tg.IsCoordinator() {
		if err := ws.shared.arena.Reset(); err != nil {
			return ws.fatal("clean", err)
		}
	}
	ws.totNumWalkers, ws.targetPerTG, ws.targetN = 0, 0, 0
	return ws.tg.Local.Barrier()
}

// Walkers returns a view of the current population for numeric kernels. The
// caller must Release it before any collective that can grow the buffer.
func (ws *WalkerSet) Walkers() (*core.Matrix, error) {
	if err := ws.ready("walkers"); err != nil {
		return nil, err
	}
	m, err := ws.shared.arena.View(ws.totNumWalkers, ws.layout)
	if err != nil {
		return nil, ws.fatal("walkers", err)
	}
	return m, nil
}

// AccumulateEnergy adds partial[i] to the pseudo local energy of walker i
// inside the group's critical section, so every member can contribute its
// share of the same walkers.
func (ws *WalkerSet) AccumulateEnergy(partial []complex128) error {
	if len(partial) != ws.totNumWalkers {
		return fmt.Errorf("%w: %d contributions for %d walkers", ErrInvalidSize, len(partial), ws.totNumWalkers)
	}
	m, err := ws.Walkers()
	if err != nil {
		return err
	}
	defer m.Release()

	eloc := m.Column(core.PseudoEloc)
	ws.tg.Critical(func() {
		for i, v := range partial {
			eloc.Add(i, v)
		}
	})
	return nil
}
