package runtime

import (
	"errors"
	"reflect"
	"testing"

	"github.com/sbl8/shmwalk/core"
)

func TestPlanTransfers(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		old  []int
		want []Transfer
	}{
		{
			name: "single surplus",
			old:  []int{10, 6, 8, 8},
			want: []Transfer{{From: 0, To: 1, Count: 2}},
		},
		{
			name: "two pairs",
			old:  []int{12, 4, 10, 6},
			want: []Transfer{{From: 0, To: 1, Count: 4}, {From: 2, To: 3, Count: 2}},
		},
		{
			name: "one surplus feeds two deficits",
			old:  []int{5, 14, 5, 8},
			want: []Transfer{{From: 1, To: 0, Count: 3}, {From: 1, To: 2, Count: 3}},
		},
		{
			name: "balanced",
			old:  []int{8, 8, 8, 8},
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := make([]int, len(tt.old))
			for i := range target {
				target[i] = 8
			}
			got, err := PlanTransfers(tt.old, target)
			if err != nil {
				t.Fatalf("PlanTransfers failed: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("PlanTransfers = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPlanTransfersRejectsMismatch(t *testing.T) {
	t.Parallel()
	if _, err := PlanTransfers([]int{9, 8}, []int{8, 8}); !errors.Is(err, ErrPopulationMismatch) {
		t.Errorf("expected ErrPopulationMismatch, got %v", err)
	}
	if _, err := PlanTransfers([]int{8}, []int{8, 8}); !errors.Is(err, ErrPopulationMismatch) {
		t.Errorf("expected ErrPopulationMismatch for length mismatch, got %v", err)
	}
}

func TestBalanceMovesExcess(t *testing.T) {
	t.Parallel()
	old := []int{10, 6, 8, 8}
	const target = 8
	for _, lb := range []LoadBalance{Sync, Async} {
		lb := lb
		t.Run(lb.String(), func(t *testing.T) {
			t.Parallel()
			opts := DefaultOptions()
			opts.LoadBalance = lb
			err := runSets(t, len(old), 1, opts, func(ws *WalkerSet) error {
				gid := ws.tg.GroupID
				err := ws.Seed(target, func(i int, w core.Walker) {
					w.SetWeight(1)
					w.SetPseudoEnergy(complex(float64(gid), float64(i)))
				})
				if err != nil {
					return err
				}
				if err := ws.Resize(target); err != nil {
					return err
				}

				local := min(old[gid], target)
				var excess []complex128
				for k := target; k < old[gid]; k++ {
					rec := make([]complex128, ws.Layout().WalkerSize)
					rec[ws.Layout().Offset(core.PseudoEloc)] = complex(100, float64(k))
					excess = append(excess, rec...)
				}
				ws.countsOld = append([]int(nil), old...)
				if err := ws.balance(local, excess); err != nil {
					return err
				}

				moved := 0
				for _, tr := range ws.LastPlan() {
					moved += tr.Count
				}
				if moved != 2 {
					t.Errorf("group %d: %d walkers moved, want 2", gid, moved)
				}

				m, err := ws.Walkers()
				if err != nil {
					return err
				}
				defer m.Release()
				if m.Len() != target {
					t.Errorf("group %d holds %d walkers, want %d", gid, m.Len(), target)
				}
				if gid == 1 {
					for i, k := range []int{8, 9} {
						got := m.At(6 + i).PseudoEnergy()
						if got != complex(100, float64(k)) {
							t.Errorf("received walker %d = %v, want record %d from group 0", 6+i, got, k)
						}
					}
				}
				return nil
			})
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
		})
	}
}
