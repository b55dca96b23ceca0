package comm

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// World is an in-process cluster of Groups node groups with PerGroup members
// each. Member m of group g has global rank g*PerGroup+m.
type World struct {
	Groups   int
	PerGroup int
	Logger   *logrus.Logger
}

// NewWorld validates the world shape.
func NewWorld(groups, perGroup int) (*World, error) {
	if groups < 1 || perGroup < 1 {
		return nil, fmt.Errorf("invalid world %dx%d", groups, perGroup)
	}
	return &World{Groups: groups, PerGroup: perGroup, Logger: logrus.New()}, nil
}

// Size is the total number of members.
func (w *World) Size() int { return w.Groups * w.PerGroup }

// Run starts every member on its own goroutine and waits for all of them.
// The first member error, or an explicit TaskGroup.Abort, tears the world
// down: every blocked collective returns ErrAborted. Run returns the first
// error that was not ErrAborted.
func (w *World) Run(ctx context.Context, fn func(*TaskGroup) error) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	g, gctx := errgroup.WithContext(ctx)
	done := gctx.Done()

	heads := newHub(w.Groups, done)
	abort := func(err error) {
		w.Logger.WithError(err).Error("aborting process world")
		cancel(err)
	}

	for gid := 0; gid < w.Groups; gid++ {
		local := newHub(w.PerGroup, done)
		shared := NewNodeShared()
		for m := 0; m < w.PerGroup; m++ {
			var headComm Communicator
			if m == Root {
				headComm = &member{hub: heads, rank: gid}
			}
			tg, err := NewTaskGroup(&member{hub: local, rank: m}, headComm, gid, w.Groups, shared, abort)
			if err != nil {
				return err
			}
			g.Go(func() error { return fn(tg) })
		}
	}

	err := g.Wait()
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) && (err == nil || errors.Is(err, ErrAborted)) {
		return cause
	}
	return err
}
