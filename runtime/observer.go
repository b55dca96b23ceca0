package runtime

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Phase names a timed section of population control.
type Phase int

const (
	PhasePopControl Phase = iota
	PhaseStats
	PhaseBranch
	PhaseLoadBalance
	PhaseResize
)

var phaseNames = [...]string{"popControl", "stats", "branch", "loadBalance", "resize"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("Phase(%d)", int(p))
	}
	return phaseNames[p]
}

// Observer is called at the boundaries of every phase.
type Observer interface {
	Begin(Phase)
	End(Phase)
}

// NopObserver ignores every phase.
type NopObserver struct{}

func (NopObserver) Begin(Phase) {}
func (NopObserver) End(Phase)   {}

// LogObserver writes one debug line per finished phase.
type LogObserver struct {
	Log *logrus.Entry

	mu     sync.Mutex
	starts map[Phase]time.Time
}

func (o *LogObserver) Begin(p Phase) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.starts == nil {
		o.starts = make(map[Phase]time.Time)
	}
	o.starts[p] = time.Now()
}

func (o *LogObserver) End(p Phase) {
	o.mu.Lock()
	start, ok := o.starts[p]
	o.mu.Unlock()
	if !ok {
		return
	}
	o.Log.WithFields(logrus.Fields{
		"phase":   p.String(),
		"elapsed": time.Since(start),
	}).Debug("phase done")
}

// Timers accumulates wall time per phase. It is safe for concurrent use.
type Timers struct {
	mu     sync.Mutex
	starts map[Phase]time.Time
	totals map[Phase]time.Duration
	counts map[Phase]int
}

// NewTimers returns empty timers.
func NewTimers() *Timers {
	return &Timers{
		starts: make(map[Phase]time.Time),
		totals: make(map[Phase]time.Duration),
		counts: make(map[Phase]int),
	}
}

func (t *Timers) Begin(p Phase) {
	t.mu.Lock()
	t.starts[p] = time.Now()
	t.mu.Unlock()
}

func (t *Timers) End(p Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if start, ok := t.starts[p]; ok {
		t.totals[p] += time.Since(start)
		t.counts[p]++
		delete(t.starts, p)
	}
}

// Total returns the accumulated time and the number of completed sections.
func (t *Timers) Total(p Phase) (time.Duration, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totals[p], t.counts[p]
}

// String renders one line per phase that ran.
func (t *Timers) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	phases := make([]Phase, 0, len(t.totals))
	for p := range t.totals {
		phases = append(phases, p)
	}
	sort.Slice(phases, func(a, b int) bool { return phases[a] < phases[b] })

	var b strings.Builder
	for _, p := range phases {
		fmt.Fprintf(&b, "%-12s %12v  calls=%d\n", p, t.totals[p], t.counts[p])
	}
	return b.String()
}

// multiObserver fans phase events out to several observers.
type multiObserver []Observer

func (m multiObserver) Begin(p Phase) {
	for _, o := range m {
		o.Begin(p)
	}
}

func (m multiObserver) End(p Phase) {
	for _, o := range m {
		o.End(p)
	}
}

// Observers combines observers; nil entries are skipped.
func Observers(obs ...Observer) Observer {
	var m multiObserver
	for _, o := range obs {
		if o != nil {
			m = append(m, o)
		}
	}
	if len(m) == 0 {
		return NopObserver{}
	}
	if len(m) == 1 {
		return m[0]
	}
	return m
}
