package runtime

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/sbl8/shmwalk/core"
)

func testLayout(t *testing.T) *core.Layout {
	t.Helper()
	l, err := core.NewLayout(core.Collinear, core.Descriptor{NMO: 3, NAEA: 1, NAEB: 1})
	if err != nil {
		t.Fatalf("NewLayout failed: %v", err)
	}
	return l
}

func TestNewArena(t *testing.T) {
	t.Parallel()
	if _, err := NewArena(0); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("expected ErrInvalidSize, got %v", err)
	}
	a, err := NewArena(13)
	if err != nil {
		t.Fatalf("NewArena failed: %v", err)
	}
	if a.Capacity() != 0 || a.WalkerSize() != 13 {
		t.Errorf("capacity/walker size = %d/%d", a.Capacity(), a.WalkerSize())
	}
}

func TestArenaReserveMonotonic(t *testing.T) {
	t.Parallel()
	a, _ := NewArena(4)
	if err := a.Reserve(5); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if err := a.Reserve(3); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if a.Capacity() != 5 {
		t.Errorf("capacity = %d, want 5", a.Capacity())
	}
}

func TestArenaGrowKeepsContents(t *testing.T) {
	t.Parallel()
	a, _ := NewArena(4)
	_ = a.Reserve(2)
	for i, v := range []complex128{1, 2, 3, 4, 5, 6, 7, 8} {
		a.Rows(0, 2)[i] = v
	}
	if err := a.Reserve(10); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	rows := a.Rows(0, 2)
	for i := range rows {
		if rows[i] != complex(float64(i+1), 0) {
			t.Fatalf("scalar %d = %v after growth", i, rows[i])
		}
	}
	if !core.IsAligned(uintptr(unsafe.Pointer(&rows[0]))) {
		t.Error("grown buffer not cache-line aligned")
	}

	a.CopyRow(5, 1)
	if a.Rows(5, 1)[3] != 8 {
		t.Errorf("CopyRow did not copy record: %v", a.Rows(5, 1))
	}
}

func TestArenaLiveViewsBlockGrowth(t *testing.T) {
	t.Parallel()
	l := testLayout(t)
	a, _ := NewArena(l.WalkerSize)
	_ = a.Reserve(2)

	m, err := a.View(2, l)
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
	if err := a.Reserve(4); !errors.Is(err, ErrLiveViews) {
		t.Errorf("expected ErrLiveViews, got %v", err)
	}
	if err := a.Reset(); !errors.Is(err, ErrLiveViews) {
		t.Errorf("expected ErrLiveViews from Reset, got %v", err)
	}

	m.Release()
	if a.LiveViews() != 0 {
		t.Errorf("live views = %d after release", a.LiveViews())
	}
	if err := a.Reserve(4); err != nil {
		t.Errorf("Reserve after release failed: %v", err)
	}
	if _, err := a.View(5, l); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("expected ErrInvalidSize for oversized view, got %v", err)
	}
}

func TestArenaReset(t *testing.T) {
	t.Parallel()
	a, _ := NewArena(2)
	_ = a.Reserve(8)
	if err := a.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if a.Capacity() != 0 {
		t.Errorf("capacity = %d after reset", a.Capacity())
	}
}
