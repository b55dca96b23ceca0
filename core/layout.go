package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidShape      = errors.New("invalid walker shape")
	ErrInvalidDescriptor = errors.New("invalid walker descriptor")
)

// Absent marks the offset of a field that is not part of the layout.
const Absent = -1

// Dims are the matrix dimensions a shape derives from the orbital and
// electron counts.
type Dims struct {
	NRow   int // rows of the Slater matrix
	NCol   int // columns of the Slater matrix
	NDimBP int // edge of one back-propagation propagator matrix
}

// Shape is one walker shape variant. Each variant owns its dimension rule.
type Shape interface {
	Name() string
	Dims(d Descriptor) Dims
}

type closedShell struct{}
type collinear struct{}
type nonCollinear struct{}

func (closedShell) Name() string { return "closed" }
func (closedShell) Dims(d Descriptor) Dims {
	return Dims{NRow: d.NMO, NCol: d.NAEA, NDimBP: d.NMO}
}

func (collinear) Name() string { return "collinear" }
func (collinear) Dims(d Descriptor) Dims {
	return Dims{NRow: d.NMO, NCol: d.NAEA + d.NAEB, NDimBP: d.NMO}
}

func (nonCollinear) Name() string { return "noncollinear" }
func (nonCollinear) Dims(d Descriptor) Dims {
	return Dims{NRow: 2 * d.NMO, NCol: d.NAEA + d.NAEB, NDimBP: 2 * d.NMO}
}

// Walker shape variants.
var (
	ClosedShell  Shape = closedShell{}
	Collinear    Shape = collinear{}
	NonCollinear Shape = nonCollinear{}
)

// ShapeByName resolves a shape from its configuration name.
func ShapeByName(name string) (Shape, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "closed", "closed_shell", "closedshell":
		return ClosedShell, nil
	case "collinear":
		return Collinear, nil
	case "noncollinear", "non_collinear":
		return NonCollinear, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidShape, name)
}

// Descriptor is the immutable per-run walker description.
type Descriptor struct {
	NMO       int // number of active orbitals
	NAEA      int // alpha electrons
	NAEB      int // beta electrons
	NBackProp int // back-propagation depth
}

// Validate checks the descriptor counts.
func (d Descriptor) Validate() error {
	switch {
	case d.NMO < 1:
		return fmt.Errorf("%w: nmo=%d", ErrInvalidDescriptor, d.NMO)
	case d.NAEA < 0 || d.NAEB < 0:
		return fmt.Errorf("%w: negative electron count (%d,%d)", ErrInvalidDescriptor, d.NAEA, d.NAEB)
	case d.NAEA+d.NAEB == 0:
		return fmt.Errorf("%w: no electrons", ErrInvalidDescriptor)
	case d.NAEA > d.NMO || d.NAEB > d.NMO:
		return fmt.Errorf("%w: electrons (%d,%d) exceed nmo=%d", ErrInvalidDescriptor, d.NAEA, d.NAEB, d.NMO)
	case d.NBackProp < 0:
		return fmt.Errorf("%w: nback_prop=%d", ErrInvalidDescriptor, d.NBackProp)
	}
	return nil
}

// Field names one slot of a walker record.
type Field int

const (
	SM Field = iota // Slater matrix
	Weight
	Phase
	PseudoEloc
	E1
	EXX
	EJ
	Ovlp
	Propagators // back-propagation propagator ring
	Head        // ring head
	Tail        // ring tail
	SMN         // Slater matrix at the start of the back-propagation path
	CosFac
	WeightFac

	NumFields
)

var fieldNames = [NumFields]string{
	"SM", "WEIGHT", "PHASE", "PSEUDO_ELOC", "E1", "EXX", "EJ", "OVLP",
	"PROPAGATORS", "HEAD", "TAIL", "SMN", "COS_FAC", "WEIGHT_FAC",
}

func (f Field) String() string {
	if f < 0 || f >= NumFields {
		return fmt.Sprintf("Field(%d)", int(f))
	}
	return fieldNames[f]
}

// Layout is the fixed field-offset table of one walker record, in units of
// complex scalars.
type Layout struct {
	Shape      Shape
	Desc       Descriptor
	Dims       Dims
	WalkerSize int

	offsets [NumFields]int
	sizes   [NumFields]int
}

// NewLayout computes the record layout for a shape and descriptor.
func NewLayout(shape Shape, desc Descriptor) (*Layout, error) {
	if shape == nil {
		return nil, fmt.Errorf("%w: nil", ErrInvalidShape)
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	l := &Layout{Shape: shape, Desc: desc, Dims: shape.Dims(desc)}
	sm := l.Dims.NRow * l.Dims.NCol
	nbp := desc.NBackProp

	cnt := 0
	place := func(f Field, size int) {
		l.offsets[f] = cnt
		l.sizes[f] = size
		cnt += size
	}
	place(SM, sm)
	place(Weight, 1)
	place(Phase, 1)
	place(PseudoEloc, 1)
	place(E1, 1)
	place(EXX, 1)
	place(EJ, 1)
	place(Ovlp, 1)
	if nbp > 0 {
		place(Propagators, nbp*l.Dims.NDimBP*l.Dims.NDimBP)
		place(Head, 1)
		place(Tail, 1)
		place(SMN, sm)
		place(CosFac, nbp)
		place(WeightFac, nbp)
	} else {
		for f := Propagators; f < NumFields; f++ {
			l.offsets[f] = Absent
		}
	}
	l.WalkerSize = cnt
	return l, nil
}

// Offset returns the offset of f, or Absent.
func (l *Layout) Offset(f Field) int { return l.offsets[f] }

// Size returns the number of scalars in f (0 when absent).
func (l *Layout) Size(f Field) int { return l.sizes[f] }

// Has reports whether f is part of the record.
func (l *Layout) Has(f Field) bool { return l.offsets[f] != Absent }

// Bytes is the memory footprint of one record.
func (l *Layout) Bytes() int { return l.WalkerSize * ComplexSize }

// String renders the offset table.
func (l *Layout) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "shape=%s nmo=%d naea=%d naeb=%d nback_prop=%d walker_size=%d (%d bytes)\n",
		l.Shape.Name(), l.Desc.NMO, l.Desc.NAEA, l.Desc.NAEB, l.Desc.NBackProp, l.WalkerSize, l.Bytes())
	for f := Field(0); f < NumFields; f++ {
		fmt.Fprintf(&b, "  %-12s offset=%-6d size=%d\n", f, l.offsets[f], l.sizes[f])
	}
	return b.String()
}
