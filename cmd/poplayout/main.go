package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sbl8/shmwalk/core"
	"github.com/sbl8/shmwalk/model"
)

var (
	configPath string
	allShapes  bool
	nmo        int
	naea       int
	naeb       int
	nbackProp  int
)

var rootCmd = &cobra.Command{
	Use:          "poplayout",
	Short:        "Print the walker record layout of a system",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := model.Load(configPath)
		if err != nil {
			return err
		}
		f := cmd.Flags()
		if f.Changed("nmo") {
			cfg.System.NMO = nmo
		}
		if f.Changed("naea") {
			cfg.System.NAEA = naea
		}
		if f.Changed("naeb") {
			cfg.System.NAEB = naeb
		}
		if f.Changed("nback-prop") {
			cfg.Walkers.NBackProp = nbackProp
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		shapes := []core.Shape{core.ClosedShell, core.Collinear, core.NonCollinear}
		if !allShapes {
			shape, err := cfg.Shape()
			if err != nil {
				return err
			}
			shapes = []core.Shape{shape}
		}

		cfg.System.Print(os.Stdout)
		for _, shape := range shapes {
			l, err := core.NewLayout(shape, cfg.Descriptor())
			if err != nil {
				return err
			}
			fmt.Println()
			fmt.Print(l.String())
		}
		return nil
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&configPath, "config", "", "YAML configuration file")
	f.BoolVar(&allShapes, "all", false, "print every walker shape")
	f.IntVar(&nmo, "nmo", 0, "number of active orbitals")
	f.IntVar(&naea, "naea", 0, "alpha electrons")
	f.IntVar(&naeb, "naeb", 0, "beta electrons")
	f.IntVar(&nbackProp, "nback-prop", 0, "back-propagation steps")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
