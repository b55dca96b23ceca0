// Package model describes the simulated system and the run configuration.
//
// A run is configured from a YAML file read through viper. Every key can be
// overridden from the environment with the SHMWALK_ prefix, dots replaced by
// underscores (SHMWALK_WALKERS_TARGET=64), and the command line tools bind
// their flags on top of that.
package model

import (
	"errors"
	"fmt"
	"io"
)

var ErrInvalidSystem = errors.New("invalid system description")

// System is the orbital and electron description of the simulated molecule.
type System struct {
	Name string `yaml:"name" mapstructure:"name"`
	NMO  int    `yaml:"nmo" mapstructure:"nmo"`   // active orbitals
	NAEA int    `yaml:"naea" mapstructure:"naea"` // alpha electrons
	NAEB int    `yaml:"naeb" mapstructure:"naeb"` // beta electrons
	MS2  int    `yaml:"ms2" mapstructure:"ms2"`
}

// Check rejects descriptions without orbitals or with electron counts that do
// not fit in the orbitals. Fully polarised systems are not supported.
func (s System) Check() error {
	switch {
	case s.NMO < 1:
		return fmt.Errorf("%w: nmo=%d", ErrInvalidSystem, s.NMO)
	case s.NAEA < 1 || s.NAEB < 1:
		return fmt.Errorf("%w: naea=%d naeb=%d", ErrInvalidSystem, s.NAEA, s.NAEB)
	case s.NAEA > s.NMO || s.NAEB > s.NMO:
		return fmt.Errorf("%w: electrons (%d,%d) exceed nmo=%d", ErrInvalidSystem, s.NAEA, s.NAEB, s.NMO)
	}
	return nil
}

// Print writes a short human readable summary.
func (s System) Print(w io.Writer) {
	fmt.Fprintf(w, "  system: %s\n", s.Name)
	fmt.Fprintf(w, "    # of molecular orbitals: %d\n", s.NMO)
	fmt.Fprintf(w, "    # of up electrons: %d\n", s.NAEA)
	fmt.Fprintf(w, "    # of down electrons: %d\n", s.NAEB)
}
