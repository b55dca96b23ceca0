// Package core provides the fundamental walker primitives: the record layout
// computed from run parameters, typed views over records held in a shared
// arena, cache-aligned allocation and the record wire format used when
// walkers move between node groups.
//
// Key components:
//   - Shape: walker shape variants (closed shell, collinear, non-collinear)
//   - Layout: the field-offset table and record size
//   - Walker, Matrix, FieldView: typed views, never raw pointers
//   - EncodeRecords/DecodeRecords: digest-checked transfer format
package core

import (
	"errors"
	"math/cmplx"
)

// Thresholds below which a walker is considered numerically unhealthy.
const (
	HealthyWeight  = 1e-6
	HealthyOverlap = 1e-8
)

// Walker is a typed view of one record. It aliases arena memory and is only
// valid while the view that produced it is held.
type Walker struct {
	data   []complex128
	layout *Layout
}

// NewWalker wraps a record slice of exactly layout.WalkerSize scalars.
func NewWalker(data []complex128, layout *Layout) (Walker, error) {
	if layout == nil {
		return Walker{}, errors.New("walker layout is nil")
	}
	if len(data) != layout.WalkerSize {
		return Walker{}, errors.New("walker record size does not match layout")
	}
	return Walker{data: data, layout: layout}, nil
}

// Raw returns the record scalars.
func (w Walker) Raw() []complex128 { return w.data }

// Layout returns the record layout.
func (w Walker) Layout() *Layout { return w.layout }

// Field returns the scalars of f, or nil when the field is absent.
func (w Walker) Field(f Field) []complex128 {
	off := w.layout.Offset(f)
	if off == Absent {
		return nil
	}
	return w.data[off : off+w.layout.Size(f)]
}

func (w Walker) scalar(f Field) complex128       { return w.data[w.layout.Offset(f)] }
func (w Walker) setScalar(f Field, v complex128) { w.data[w.layout.Offset(f)] = v }
func (w Walker) Weight() complex128              { return w.scalar(Weight) }
func (w Walker) SetWeight(v complex128)          { w.setScalar(Weight, v) }
func (w Walker) Phase() complex128               { return w.scalar(Phase) }
func (w Walker) SetPhase(v complex128)           { w.setScalar(Phase, v) }
func (w Walker) PseudoEnergy() complex128        { return w.scalar(PseudoEloc) }
func (w Walker) SetPseudoEnergy(v complex128)    { w.setScalar(PseudoEloc, v) }
func (w Walker) E1() complex128                  { return w.scalar(E1) }
func (w Walker) EXX() complex128                 { return w.scalar(EXX) }
func (w Walker) EJ() complex128                  { return w.scalar(EJ) }
func (w Walker) Overlap() complex128             { return w.scalar(Ovlp) }
func (w Walker) SetOverlap(v complex128)         { w.setScalar(Ovlp, v) }
func (w Walker) SlaterMatrix() []complex128      { return w.Field(SM) }
func (w Walker) SetEnergies(e1, exx, ej complex128) {
	w.setScalar(E1, e1)
	w.setScalar(EXX, exx)
	w.setScalar(EJ, ej)
}

// Energy is the local energy E1+EXX+EJ.
func (w Walker) Energy() complex128 {
	return w.scalar(E1) + w.scalar(EXX) + w.scalar(EJ)
}

// Healthy reports whether weight and overlap magnitudes are above the
// numerical-stability thresholds.
func (w Walker) Healthy() bool {
	return cmplx.Abs(w.Weight()) > HealthyWeight && cmplx.Abs(w.Overlap()) > HealthyOverlap
}

// Propagator returns back-propagation matrix i of the ring, or nil without
// back-propagation.
func (w Walker) Propagator(i int) []complex128 {
	p := w.Field(Propagators)
	if p == nil || i < 0 || i >= w.layout.Desc.NBackProp {
		return nil
	}
	n := w.layout.Dims.NDimBP * w.layout.Dims.NDimBP
	return p[i*n : (i+1)*n]
}

// CopyFrom overwrites the record with src.
func (w Walker) CopyFrom(src Walker) { copy(w.data, src.data) }

// Clone copies the record out of the arena.
func (w Walker) Clone() Walker {
	data := make([]complex128, len(w.data))
	copy(data, w.data)
	return Walker{data: data, layout: w.layout}
}

// Matrix is a strided view over n consecutive records.
type Matrix struct {
	data    []complex128
	layout  *Layout
	n       int
	release func()
}

// NewMatrix wraps data holding n records. release is called once by Release.
func NewMatrix(data []complex128, n int, layout *Layout, release func()) *Matrix {
	return &Matrix{data: data[:n*layout.WalkerSize], layout: layout, n: n, release: release}
}

// Len is the number of records in view.
func (m *Matrix) Len() int { return m.n }

// Layout returns the record layout.
func (m *Matrix) Layout() *Layout { return m.layout }

// At returns walker i.
func (m *Matrix) At(i int) Walker {
	ws := m.layout.WalkerSize
	return Walker{data: m.data[i*ws : (i+1)*ws : (i+1)*ws], layout: m.layout}
}

// Column returns a strided view of one scalar field across all records.
func (m *Matrix) Column(f Field) FieldView {
	return FieldView{data: m.data, offset: m.layout.Offset(f), stride: m.layout.WalkerSize, n: m.n}
}

// Release ends the view. The matrix must not be used afterwards.
func (m *Matrix) Release() {
	if m.release != nil {
		m.release()
		m.release = nil
	}
	m.data = nil
	m.n = 0
}

// FieldView addresses one scalar slot of every record.
type FieldView struct {
	data   []complex128
	offset int
	stride int
	n      int
}

// Len is the number of records in view.
func (v FieldView) Len() int { return v.n }

// At returns the slot of record i.
func (v FieldView) At(i int) complex128 { return v.data[i*v.stride+v.offset] }

// Set writes the slot of record i.
func (v FieldView) Set(i int, x complex128) { v.data[i*v.stride+v.offset] = x }

// Add accumulates x into the slot of record i.
func (v FieldView) Add(i int, x complex128) { v.data[i*v.stride+v.offset] += x }
