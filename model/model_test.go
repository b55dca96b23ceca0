package model

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sbl8/shmwalk/branching"
	"github.com/sbl8/shmwalk/core"
	"github.com/sbl8/shmwalk/runtime"
)

func TestSystemCheck(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		sys  System
		ok   bool
	}{
		{"valid", System{NMO: 4, NAEA: 2, NAEB: 1}, true},
		{"no orbitals", System{NMO: 0, NAEA: 1, NAEB: 1}, false},
		{"no beta electrons", System{NMO: 4, NAEA: 2, NAEB: 0}, false},
		{"too many alpha", System{NMO: 2, NAEA: 3, NAEB: 1}, false},
		{"too many beta", System{NMO: 2, NAEA: 1, NAEB: 3}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sys.Check()
			if tt.ok && err != nil {
				t.Errorf("Check failed: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidSystem) {
				t.Errorf("expected ErrInvalidSystem, got %v", err)
			}
		})
	}
}

func TestSystemPrint(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	System{Name: "h2o", NMO: 24, NAEA: 5, NAEB: 5}.Print(&buf)
	out := buf.String()
	for _, want := range []string{"h2o", "orbitals: 24", "up electrons: 5", "down electrons: 5"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	opts, err := cfg.Options()
	if err != nil {
		t.Fatalf("Options failed: %v", err)
	}
	if opts.Policy != branching.Pair || opts.LoadBalance != runtime.Async {
		t.Errorf("options = %+v", opts)
	}
	shape, err := cfg.Shape()
	if err != nil || shape != core.Collinear {
		t.Errorf("Shape = %v, %v", shape, err)
	}
	m := cfg.Model()
	if m.ERef != cfg.Run.E1+cfg.Run.EXX+cfg.Run.EJ {
		t.Errorf("reference energy = %g", m.ERef)
	}
}

func TestValidateRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad system", func(c *Config) { c.System.NMO = 0 }},
		{"bad shape", func(c *Config) { c.Walkers.Shape = "triangular" }},
		{"bad policy", func(c *Config) { c.Walkers.PopControl = "roulette" }},
		{"bad load balance", func(c *Config) { c.Walkers.LoadBalance = "eventually" }},
		{"zero target", func(c *Config) { c.Walkers.Target = 0 }},
		{"inverted weights", func(c *Config) { c.Walkers.MaxWeight = c.Walkers.MinWeight }},
		{"empty world", func(c *Config) { c.World.PerGroup = 0 }},
		{"zero tau", func(c *Config) { c.Run.Tau = 0 }},
		{"negative back propagation", func(c *Config) { c.Walkers.NBackProp = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.System.Name = "n2"
	cfg.Walkers.Shape = "noncollinear"
	cfg.Walkers.PopControl = "serial_comb"
	cfg.Walkers.LoadBalance = "sync"
	cfg.World.Groups = 3

	path := filepath.Join(t.TempDir(), "run.yaml")
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if *got != *cfg {
		t.Errorf("loaded %+v, want %+v", got, cfg)
	}
}

func TestLoadMergesPartialFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "partial.yaml")
	data := "walkers:\n  target: 40\n  pop_control: min_branch\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Walkers.Target != 40 || cfg.Walkers.PopControl != "min_branch" {
		t.Errorf("file values not applied: %+v", cfg.Walkers)
	}
	if cfg.System != Default().System {
		t.Errorf("defaults lost: %+v", cfg.System)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SHMWALK_WALKERS_TARGET", "64")
	t.Setenv("SHMWALK_WALKERS_LOAD_BALANCE", "sync")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Walkers.Target != 64 || cfg.Walkers.LoadBalance != "sync" {
		t.Errorf("environment not applied: %+v", cfg.Walkers)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestNewLoggerLevel(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewLogger(LogConfig{Level: "warn"}, &buf)
	log.Info("hidden")
	log.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("unexpected output %q", buf.String())
	}
	if NewLogger(LogConfig{Level: "chatty"}, &buf).GetLevel().String() != "info" {
		t.Error("unknown level should fall back to info")
	}
}
