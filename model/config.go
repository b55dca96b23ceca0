package model

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/sbl8/shmwalk/branching"
	"github.com/sbl8/shmwalk/core"
	"github.com/sbl8/shmwalk/kernels"
	"github.com/sbl8/shmwalk/runtime"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SHMWALK"

// WalkerConfig configures the walker set.
type WalkerConfig struct {
	Shape       string  `yaml:"shape" mapstructure:"shape"`
	NBackProp   int     `yaml:"nback_prop" mapstructure:"nback_prop"`
	Init        int     `yaml:"init" mapstructure:"init"`     // initial walkers per group
	Target      int     `yaml:"target" mapstructure:"target"` // walkers per group
	MinWeight   float64 `yaml:"min_weight" mapstructure:"min_weight"`
	MaxWeight   float64 `yaml:"max_weight" mapstructure:"max_weight"`
	PopControl  string  `yaml:"pop_control" mapstructure:"pop_control"`
	LoadBalance string  `yaml:"load_balance" mapstructure:"load_balance"`
}

// WorldConfig sizes the in-process world.
type WorldConfig struct {
	Groups   int `yaml:"groups" mapstructure:"groups"`
	PerGroup int `yaml:"per_group" mapstructure:"per_group"`
}

// RunConfig drives the propagation loop.
type RunConfig struct {
	Steps  int     `yaml:"steps" mapstructure:"steps"`
	Seed   int64   `yaml:"seed" mapstructure:"seed"`
	Tau    float64 `yaml:"tau" mapstructure:"tau"`
	E1     float64 `yaml:"e1" mapstructure:"e1"`
	EXX    float64 `yaml:"exx" mapstructure:"exx"`
	EJ     float64 `yaml:"ej" mapstructure:"ej"`
	Spread float64 `yaml:"spread" mapstructure:"spread"`
}

// BenchConfig configures the diagnostic benchmarks.
type BenchConfig struct {
	MaxWalkers int `yaml:"max_walkers" mapstructure:"max_walkers"`
	Step       int `yaml:"step" mapstructure:"step"` // <= 0 doubles the walker count
	Repeat     int `yaml:"repeat" mapstructure:"repeat"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
}

// Config is the whole run configuration.
type Config struct {
	System  System       `yaml:"system" mapstructure:"system"`
	Walkers WalkerConfig `yaml:"walkers" mapstructure:"walkers"`
	World   WorldConfig  `yaml:"world" mapstructure:"world"`
	Run     RunConfig    `yaml:"run" mapstructure:"run"`
	Bench   BenchConfig  `yaml:"bench" mapstructure:"bench"`
	Log     LogConfig    `yaml:"log" mapstructure:"log"`
}

// Default returns a small collinear system on a 2x2 world.
func Default() *Config {
	return &Config{
		System: System{Name: "miniAFQMC", NMO: 8, NAEA: 2, NAEB: 2},
		Walkers: WalkerConfig{
			Shape:       "collinear",
			Init:        1,
			Target:      16,
			MinWeight:   0.05,
			MaxWeight:   4,
			PopControl:  branching.Pair.String(),
			LoadBalance: runtime.Async.String(),
		},
		World: WorldConfig{Groups: 2, PerGroup: 2},
		Run: RunConfig{
			Steps:  20,
			Seed:   11,
			Tau:    0.01,
			E1:     -2.0,
			EXX:    0.3,
			EJ:     0.6,
			Spread: 0.2,
		},
		Bench: BenchConfig{MaxWalkers: 64, Repeat: 10},
		Log:   LogConfig{Level: "info"},
	}
}

// NewViper returns a viper instance holding the defaults, merged with the file
// at path when path is not empty, with environment overrides enabled.
func NewViper(path string) (*viper.Viper, error) {
	defaults, err := yaml.Marshal(Default())
	if err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("reading defaults: %w", err)
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v, nil
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads, decodes and validates the configuration at path. An empty path
// yields the defaults plus environment overrides.
func Load(path string) (*Config, error) {
	v, err := NewViper(path)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// Save writes cfg as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks the system, the walker set settings and the world size.
func (c *Config) Validate() error {
	if err := c.System.Check(); err != nil {
		return err
	}
	if _, err := c.Shape(); err != nil {
		return err
	}
	if _, err := branching.ParsePolicy(c.Walkers.PopControl); err != nil {
		return err
	}
	if _, err := runtime.ParseLoadBalance(c.Walkers.LoadBalance); err != nil {
		return err
	}
	switch {
	case c.Walkers.NBackProp < 0:
		return fmt.Errorf("nback_prop must be non-negative, got %d", c.Walkers.NBackProp)
	case c.Walkers.Init < 1 || c.Walkers.Target < 1:
		return fmt.Errorf("walker counts must be positive: init=%d target=%d", c.Walkers.Init, c.Walkers.Target)
	case c.Walkers.MaxWeight <= c.Walkers.MinWeight:
		return fmt.Errorf("max_weight %g must exceed min_weight %g", c.Walkers.MaxWeight, c.Walkers.MinWeight)
	case c.World.Groups < 1 || c.World.PerGroup < 1:
		return fmt.Errorf("world must have at least one member: %dx%d", c.World.Groups, c.World.PerGroup)
	case c.Run.Steps < 0 || c.Run.Tau <= 0:
		return fmt.Errorf("invalid run: steps=%d tau=%g", c.Run.Steps, c.Run.Tau)
	}
	return nil
}

// Shape resolves the configured walker shape.
func (c *Config) Shape() (core.Shape, error) {
	return core.ShapeByName(c.Walkers.Shape)
}

// Descriptor builds the walker descriptor of the configured system.
func (c *Config) Descriptor() core.Descriptor {
	return core.Descriptor{NMO: c.System.NMO, NAEA: c.System.NAEA, NAEB: c.System.NAEB, NBackProp: c.Walkers.NBackProp}
}

// Options builds walker set options; the caller adds the observer and log.
func (c *Config) Options() (runtime.Options, error) {
	policy, err := branching.ParsePolicy(c.Walkers.PopControl)
	if err != nil {
		return runtime.Options{}, err
	}
	lb, err := runtime.ParseLoadBalance(c.Walkers.LoadBalance)
	if err != nil {
		return runtime.Options{}, err
	}
	return runtime.Options{Policy: policy, LoadBalance: lb, Seed: c.Run.Seed}, nil
}

// Model returns the toy Hamiltonian of the propagation loop.
func (c *Config) Model() kernels.Model {
	return kernels.Model{
		E1:     c.Run.E1,
		EXX:    c.Run.EXX,
		EJ:     c.Run.EJ,
		Spread: c.Run.Spread,
		Tau:    c.Run.Tau,
		ERef:   c.Run.E1 + c.Run.EXX + c.Run.EJ,
	}
}
