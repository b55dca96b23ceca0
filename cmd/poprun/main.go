package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sbl8/shmwalk/comm"
	"github.com/sbl8/shmwalk/core"
	"github.com/sbl8/shmwalk/kernels"
	"github.com/sbl8/shmwalk/model"
	wruntime "github.com/sbl8/shmwalk/runtime"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "poprun",
	Short: "Run a walker population with periodic population control",
	Long: `poprun starts an in-process world of node groups, seeds every group with
walkers of the configured system, and alternates a toy propagation step with
population control (branching plus load balancing), printing the mixed
energy estimate after every step.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&configPath, "config", "", "YAML configuration file")
	f.Int("steps", 0, "number of propagation steps")
	f.Int("target", 0, "walkers per group")
	f.Int("groups", 0, "number of node groups")
	f.Int("per-group", 0, "members per node group")
	f.String("pop-control", "", "branching policy: pair, serial_comb, min_branch, comb")
	f.String("load-balance", "", "load balance policy: sync, async")
	f.String("shape", "", "walker shape: closed, collinear, noncollinear")
	f.Int64("seed", 0, "random seed")
	f.String("log-level", "", "log level")
}

// flagKeys maps flags onto configuration keys.
var flagKeys = map[string]string{
	"steps":        "run.steps",
	"target":       "walkers.target",
	"groups":       "world.groups",
	"per-group":    "world.per_group",
	"pop-control":  "walkers.pop_control",
	"load-balance": "walkers.load_balance",
	"shape":        "walkers.shape",
	"seed":         "run.seed",
	"log-level":    "log.level",
}

func loadConfig(cmd *cobra.Command) (*model.Config, error) {
	v, err := model.NewViper(configPath)
	if err != nil {
		return nil, err
	}
	for name, key := range flagKeys {
		if fl := cmd.Flags().Lookup(name); fl != nil && fl.Changed {
			if err := v.BindPFlag(key, fl); err != nil {
				return nil, err
			}
		}
	}
	return model.FromViper(v)
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := model.NewLogger(cfg.Log, os.Stderr)
	log := logger.WithField("run", uuid.NewString())

	shape, err := cfg.Shape()
	if err != nil {
		return err
	}
	opts, err := cfg.Options()
	if err != nil {
		return err
	}
	world, err := comm.NewWorld(cfg.World.Groups, cfg.World.PerGroup)
	if err != nil {
		return err
	}
	world.Logger = logger

	fmt.Println("poprun")
	cfg.System.Print(os.Stdout)
	fmt.Printf("  world: %d groups x %d members\n", cfg.World.Groups, cfg.World.PerGroup)
	fmt.Printf("  walkers: %s, %d per group, %s / %s\n\n",
		shape.Name(), cfg.Walkers.Target, opts.Policy, opts.LoadBalance)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	timers := wruntime.NewTimers()
	start := time.Now()
	err = world.Run(ctx, func(tg *comm.TaskGroup) error {
		return member(ctx, tg, cfg, shape, opts, timers, log)
	})
	if err != nil {
		log.WithError(err).Error("run failed")
		return err
	}

	fmt.Printf("\nfinished %d steps in %v\n", cfg.Run.Steps, time.Since(start).Round(time.Millisecond))
	fmt.Print(timers.String())
	return nil
}

// member drives one member of the world. Only the coordinator of group 0
// reports and feeds the shared timers.
func member(ctx context.Context, tg *comm.TaskGroup, cfg *model.Config, shape core.Shape,
	opts wruntime.Options, timers *wruntime.Timers, log *logrus.Entry) error {
	reporter := tg.GroupID == 0 && tg.IsCoordinator()
	opts.Log = log
	opts.Observer = &wruntime.LogObserver{Log: log}
	if reporter {
		opts.Observer = wruntime.Observers(opts.Observer, timers)
	}

	ws, err := wruntime.NewWalkerSet(tg, opts)
	if err != nil {
		return err
	}
	err = ws.Setup(shape, cfg.System.NMO, cfg.System.NAEA, cfg.System.NAEB,
		cfg.Walkers.NBackProp, cfg.Walkers.MinWeight, cfg.Walkers.MaxWeight)
	if err != nil {
		return err
	}
	if reporter {
		log.WithField("walker_size", ws.Layout().WalkerSize).Debug("walker layout ready")
	}

	mdl := cfg.Model()
	if err := ws.Seed(cfg.Walkers.Init, func(_ int, w core.Walker) { kernels.InitWalker(w, mdl) }); err != nil {
		return err
	}
	if err := ws.Resize(cfg.Walkers.Target); err != nil {
		return err
	}

	part := kernels.Partition{Rank: tg.Local.Rank(), Size: tg.Local.Size()}
	global := int64(tg.GroupID*tg.Local.Size() + tg.Local.Rank())
	rng := rand.New(rand.NewSource(cfg.Run.Seed + 7919*(global+1)))

	for step := 1; step <= cfg.Run.Steps; step++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		m, err := ws.Walkers()
		if err != nil {
			return err
		}
		kernels.Propagate(m, mdl, rng, part)
		m.Release()
		if err := tg.Local.Barrier(); err != nil {
			return err
		}

		stats, err := ws.PopControl()
		if err != nil {
			return err
		}
		if reporter {
			fmt.Printf("step %4d  E=%14.8f  W=%12.6g  walkers=%d  healthy=%d\n",
				step, stats.Energy(), real(stats[wruntime.StatWeight]), stats.Walkers(), stats.Healthy())
			log.WithFields(logrus.Fields{
				"step":      step,
				"transfers": len(ws.LastPlan()),
			}).Debug("population controlled")
		}
	}
	return ws.Clean()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
