package runtime

import (
	"fmt"

	"github.com/unixpickle/essentials"
	"golang.org/x/sync/errgroup"

	"github.com/sbl8/shmwalk/core"
)

// balanceTag is the first message tag used for walker transfers; transfer k
// of a plan uses balanceTag+k.
const balanceTag = 1 << 20

// Transfer moves Count walkers from group From to group To.
type Transfer struct {
	From  int
	To    int
	Count int
}

// PlanTransfers matches groups above their target with groups below it. Both
// lists are walked in ascending group order and the first surplus is always
// drained into the first deficit, so the plan depends only on the counts.
func PlanTransfers(old, target []int) ([]Transfer, error) {
	if len(old) != len(target) {
		return nil, fmt.Errorf("%w: %d counts for %d targets", ErrPopulationMismatch, len(old), len(target))
	}
	type slot struct{ group, n int }
	var surplus, deficit []slot
	totalOld, totalNew := 0, 0
	for g := range old {
		totalOld += old[g]
		totalNew += target[g]
		switch d := old[g] - target[g]; {
		case d > 0:
			surplus = append(surplus, slot{g, d})
		case d < 0:
			deficit = append(deficit, slot{g, -d})
		}
	}
	if totalOld != totalNew {
		return nil, fmt.Errorf("%w: %d walkers for a total target of %d", ErrPopulationMismatch, totalOld, totalNew)
	}

	var plan []Transfer
	for len(surplus) > 0 && len(deficit) > 0 {
		s, d := &surplus[0], &deficit[0]
		n := min(s.n, d.n)
		plan = append(plan, Transfer{From: s.group, To: d.group, Count: n})
		s.n -= n
		d.n -= n
		if s.n == 0 {
			essentials.OrderedDelete(&surplus, 0)
		}
		if d.n == 0 {
			essentials.OrderedDelete(&deficit, 0)
		}
	}
	return plan, nil
}

// balance moves excess records between coordinators until every group holds
// the per-group target. local is the number of valid rows in this group's
// buffer and excess the records that did not fit.
func (ws *WalkerSet) balance(local int, excess []complex128) error {
	ws.obs.Begin(PhaseLoadBalance)
	defer ws.obs.End(PhaseLoadBalance)

	target := make([]int, ws.tg.NumGroups)
	for g := range target {
		target[g] = ws.targetPerTG
	}
	plan, err := PlanTransfers(ws.countsOld, target)
	if err != nil {
		return ws.fatal("loadBalance", err)
	}
	ws.lastPlan = plan

	gid := ws.tg.GroupID
	size := ws.layout.WalkerSize
	in, out := 0, 0
	var jobs []func() error
	for k, tr := range plan {
		tr := tr
		tag := balanceTag + k
		switch gid {
		case tr.From:
			payload := excess[out*size : (out+tr.Count)*size]
			out += tr.Count
			jobs = append(jobs, func() error { return ws.sendWalkers(payload, tr, tag) })
		case tr.To:
			row := local + in
			in += tr.Count
			jobs = append(jobs, func() error { return ws.recvWalkers(row, tr, tag) })
		}
	}

	if local+in != ws.targetPerTG || out*size != len(excess) {
		return ws.fatal("loadBalance", fmt.Errorf("%w: %d local + %d in, %d excess - %d out",
			ErrPopulationMismatch, local, in, len(excess)/size, out))
	}

	if len(plan) > 0 && gid == 0 {
		ws.log.WithField("transfers", len(plan)).Debug("load balancing")
	}

	switch ws.opts.LoadBalance {
	case Async:
		g := new(errgroup.Group)
		for _, job := range jobs {
			job := job
			g.Go(func() error {
				if err := job(); err != nil {
					return ws.fatal("loadBalance", err)
				}
				return nil
			})
		}
		ws.shared.startPending(g)
	default:
		for _, job := range jobs {
			if err := job(); err != nil {
				return ws.fatal("loadBalance", err)
			}
		}
	}
	ws.totNumWalkers = local + in
	return nil
}

func (ws *WalkerSet) sendWalkers(payload []complex128, tr Transfer, tag int) error {
	msg, err := core.EncodeRecords(payload, ws.layout.WalkerSize, tr.Count)
	if err != nil {
		return err
	}
	return ws.tg.Heads.Send(msg, tr.To, tag)
}

func (ws *WalkerSet) recvWalkers(row int, tr Transfer, tag int) error {
	msg, err := ws.tg.Heads.Recv(tr.From, tag)
	if err != nil {
		return err
	}
	data, n, err := core.DecodeRecords(msg, ws.layout.WalkerSize)
	if err != nil {
		return err
	}
	if n != tr.Count {
		return fmt.Errorf("%w: received %d walkers from group %d, expected %d", ErrPopulationMismatch, n, tr.From, tr.Count)
	}
	copy(ws.shared.arena.Rows(row, n), data)
	return nil
}
