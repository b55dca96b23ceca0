package runtime

import (
	"fmt"
	"sync/atomic"

	"github.com/sbl8/shmwalk/core"
)

// Arena is the node group's walker buffer: capacity records of walkerSize
// complex scalars in one cache-aligned allocation. It grows by copying and
// refuses to grow while any view handed out by View is still live.
type Arena struct {
	buffer     []complex128
	walkerSize int
	capacity   int
	views      atomic.Int32
}

// NewArena creates an empty arena for records of walkerSize scalars.
func NewArena(walkerSize int) (*Arena, error) {
	if walkerSize < 1 {
		return nil, fmt.Errorf("%w: walker size %d", ErrInvalidSize, walkerSize)
	}
	return &Arena{walkerSize: walkerSize}, nil
}

// WalkerSize returns the record size in scalars.
func (a *Arena) WalkerSize() int { return a.walkerSize }

// Capacity returns the number of allocated records.
func (a *Arena) Capacity() int { return a.capacity }

// LiveViews returns the number of views not yet released.
func (a *Arena) LiveViews() int { return int(a.views.Load()) }

// Reserve grows the arena to hold n records, keeping existing contents.
// It never shrinks.
func (a *Arena) Reserve(n int) error {
	if n <= a.capacity {
		return nil
	}
	if live := a.views.Load(); live > 0 {
		return fmt.Errorf("%w: %d outstanding", ErrLiveViews, live)
	}
	buf := core.AlignedComplex(n * a.walkerSize)
	copy(buf, a.buffer)
	a.buffer = buf
	a.capacity = n
	return nil
}

// Reset drops every record and the allocation behind them.
func (a *Arena) Reset() error {
	if live := a.views.Load(); live > 0 {
		return fmt.Errorf("%w: %d outstanding", ErrLiveViews, live)
	}
	a.buffer = nil
	a.capacity = 0
	return nil
}

// View returns a typed view of the first n records. The view must be
// released before the arena can grow.
func (a *Arena) View(n int, layout *core.Layout) (*core.Matrix, error) {
	if n < 0 || n > a.capacity {
		return nil, fmt.Errorf("%w: view of %d records, capacity %d", ErrInvalidSize, n, a.capacity)
	}
	if layout.WalkerSize != a.walkerSize {
		return nil, fmt.Errorf("layout walker size %d does not match arena %d", layout.WalkerSize, a.walkerSize)
	}
	a.views.Add(1)
	return core.NewMatrix(a.buffer[:n*a.walkerSize], n, layout, func() { a.views.Add(-1) }), nil
}

// Rows returns the raw scalars of records [start, start+n).
func (a *Arena) Rows(start, n int) []complex128 {
	if start < 0 || n < 0 || start+n > a.capacity {
		panic(fmt.Sprintf("rows [%d,%d) out of range for capacity %d", start, start+n, a.capacity))
	}
	return a.buffer[start*a.walkerSize : (start+n)*a.walkerSize]
}

// CopyRow overwrites record dst with record src.
func (a *Arena) CopyRow(dst, src int) {
	copy(a.Rows(dst, 1), a.Rows(src, 1))
}
