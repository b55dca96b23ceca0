// Package shmwalk manages a distributed population of random walkers for
// auxiliary-field quantum Monte Carlo.
//
// Walkers are fixed-size records of complex scalars packed into one buffer per
// node group. Every member of a node group reads and writes the same buffer;
// one coordinator per group talks to the other groups. Between propagation
// steps the population is renormalised, branched so that every weight lands
// inside a configured window, and rebalanced so every group holds the same
// number of walkers.
//
// # Architecture Overview
//
//   - core: walker record layout, views and the wire format of records
//   - comm: communicators, task groups and an in-process world
//   - kernels: numeric passes partitioned over the members of a group
//   - branching: the population-control algorithms
//   - runtime: the walker set, population control and load balancing
//   - model: system description and run configuration
//
// # Basic Usage
//
//	# print the record layout of every walker shape
//	poplayout --nmo 24 --naea 5 --naeb 5 --all
//
//	# run 100 steps on four groups of two members
//	poprun --groups 4 --per-group 2 --steps 100 --pop-control serial_comb
//
//	# transfer and branching benchmarks
//	popperf comm
//	popperf branch
//
// # Programmatic Usage
//
//	world, _ := comm.NewWorld(4, 2)
//	err := world.Run(ctx, func(tg *comm.TaskGroup) error {
//		ws, err := runtime.NewWalkerSet(tg, runtime.DefaultOptions())
//		if err != nil {
//			return err
//		}
//		if err := ws.Setup(core.Collinear, 24, 5, 5, 0, 0.05, 4); err != nil {
//			return err
//		}
//		// seed, resize, then alternate propagation and ws.PopControl()
//		return nil
//	})
//
// Any error inside a collective operation is fatal: the member logs it and
// aborts the whole world, and World.Run returns it.
package shmwalk
