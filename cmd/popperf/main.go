package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	goruntime "runtime"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/unixpickle/essentials"

	"github.com/sbl8/shmwalk/branching"
	"github.com/sbl8/shmwalk/comm"
	"github.com/sbl8/shmwalk/core"
	"github.com/sbl8/shmwalk/model"
)

var (
	configPath string
	cfg        *model.Config
	log        *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:          "popperf",
	Short:        "Walker transfer and branching benchmarks",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		cfg, err = model.Load(configPath)
		if err != nil {
			return err
		}
		log = model.NewLogger(cfg.Log, os.Stderr)

		fmt.Printf("Go Version: %s\n", goruntime.Version())
		fmt.Printf("OS/Arch: %s/%s\n", goruntime.GOOS, goruntime.GOARCH)
		fmt.Printf("CPUs: %d\n", goruntime.NumCPU())
		cfg.System.Print(os.Stdout)
		fmt.Println()
		return nil
	},
}

var commCmd = &cobra.Command{
	Use:   "comm",
	Short: "Time walker record round trips between two group heads",
	RunE: func(cmd *cobra.Command, _ []string) error {
		shape, err := cfg.Shape()
		if err != nil {
			return err
		}
		layout, err := core.NewLayout(shape, cfg.Descriptor())
		if err != nil {
			return err
		}
		fmt.Printf("walker size: %d scalars (%d bytes)\n", layout.WalkerSize, layout.Bytes())
		fmt.Printf("%10s %14s %14s\n", "walkers", "round trip", "MB/s")

		for nw := 1; nw <= cfg.Bench.MaxWalkers; nw = nextCount(nw, cfg.Bench.Step) {
			rtt, err := pingPong(cmd.Context(), layout, nw, cfg.Bench.Repeat)
			if err != nil {
				log.WithError(err).WithField("walkers", nw).Warn("ping-pong failed")
				continue
			}
			bytes := float64(2 * nw * layout.Bytes())
			fmt.Printf("%10d %14v %14.2f\n", nw, rtt, bytes/rtt.Seconds()/1e6)
		}
		return nil
	},
}

var branchCmd = &cobra.Command{
	Use:   "branch",
	Short: "Time every branching policy on a random population",
	RunE: func(cmd *cobra.Command, _ []string) error {
		rng := rand.New(rand.NewSource(cfg.Run.Seed))
		fmt.Printf("%-12s %10s %14s %14s\n", "policy", "walkers", "per pass", "walkers/s")

		for _, policy := range []branching.Policy{branching.Pair, branching.SerialComb, branching.MinBranch, branching.Comb} {
			strategy, err := branching.For(policy)
			if err != nil {
				return err
			}
			for nw := 1; nw <= cfg.Bench.MaxWalkers; nw = nextCount(nw, cfg.Bench.Step) {
				elapsed, err := timeBranch(strategy, nw, cfg.Bench.Repeat, rng)
				if err != nil {
					log.WithError(err).WithFields(logrus.Fields{
						"policy":  policy,
						"walkers": nw,
					}).Warn("branching failed")
					break
				}
				fmt.Printf("%-12s %10d %14v %14.3g\n", policy, nw, elapsed, float64(nw)/elapsed.Seconds())
			}
		}
		return nil
	},
}

func nextCount(nw, step int) int {
	if step <= 0 {
		return nw * 2
	}
	return nw + step
}

// pingPong bounces nw encoded walkers between the heads of a two group world.
func pingPong(ctx context.Context, layout *core.Layout, nw, repeat int) (time.Duration, error) {
	records := make([]complex128, nw*layout.WalkerSize)
	for i := range records {
		records[i] = complex(float64(i), -float64(i))
	}
	payload, err := core.EncodeRecords(records, layout.WalkerSize, nw)
	if err != nil {
		return 0, essentials.AddCtx("encode records", err)
	}

	world, err := comm.NewWorld(2, 1)
	if err != nil {
		return 0, err
	}
	world.Logger = log

	var rtt time.Duration
	err = world.Run(ctx, func(tg *comm.TaskGroup) error {
		d, err := comm.PingPong(tg.Heads, payload, repeat)
		if tg.GroupID == comm.Root {
			rtt = d
		}
		return err
	})
	if err != nil {
		return 0, essentials.AddCtx("ping-pong", err)
	}
	return rtt, nil
}

// timeBranch returns the mean time of one branching pass over nw walkers
// with exponentially distributed weights.
func timeBranch(s branching.Strategy, nw, repeat int, rng *rand.Rand) (time.Duration, error) {
	if repeat < 1 {
		repeat = 1
	}
	params := branching.Params{
		MinWeight: cfg.Walkers.MinWeight,
		MaxWeight: cfg.Walkers.MaxWeight,
		Target:    nw,
	}
	entries := make([]branching.Entry, nw)
	var total time.Duration
	for r := 0; r < repeat; r++ {
		for i := range entries {
			entries[i] = branching.Entry{Weight: rng.ExpFloat64() * 0.8, Count: 1}
		}
		start := time.Now()
		if err := s.Branch(entries, params, rng); err != nil {
			return 0, err
		}
		total += time.Since(start)
	}
	return total / time.Duration(repeat), nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file")
	rootCmd.AddCommand(commCmd, branchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
