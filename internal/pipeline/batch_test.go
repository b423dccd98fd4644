package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/snl-sec/snlscan/internal/jobs"
	"github.com/snl-sec/snlscan/internal/model"
)

func TestProcessBatch(t *testing.T) {
	t.Parallel()

	t.Run("results keep input order", func(t *testing.T) {
		t.Parallel()

		o := NewOrchestrator(testConfig(t), jobs.NewRegistry(),
			WithStageBuilder(successStages(1)),
		)
		bp := NewBatchProcessor(o)

		targets := []string{
			"https://a.example.com",
			"https://b.example.com",
			"https://c.example.com",
		}
		results, err := bp.ProcessBatch(t.Context(), targets, model.ModeQuick)
		if err != nil {
			t.Fatalf("ProcessBatch() error = %v", err)
		}
		if len(results) != 3 {
			t.Fatalf("ProcessBatch() = %d results, want 3", len(results))
		}
		for i, r := range results {
			if r.Target != targets[i] {
				t.Errorf("result[%d].Target = %q, want %q", i, r.Target, targets[i])
			}
			if r.Err != nil || r.Result == nil {
				t.Errorf("result[%d] = %+v, want success", i, r)
			}
		}
	})

	t.Run("one failing target does not stop the batch", func(t *testing.T) {
		t.Parallel()

		o := NewOrchestrator(testConfig(t), jobs.NewRegistry(),
			WithStageBuilder(func(_ string, _ model.ScanMode) []Stage {
				return []Stage{
					&fakeStage{name: "discover", do: func(_ context.Context, st *State) error {
						if st.Target == "https://broken.example.com" {
							return ErrNoAttackSurface
						}
						st.Endpoints = []string{st.Target + "/"}
						return nil
					}},
					FinalizeStage{},
				}
			}),
		)
		bp := NewBatchProcessor(o)

		targets := []string{
			"https://a.example.com",
			"https://broken.example.com",
			"https://c.example.com",
		}
		results, err := bp.ProcessBatch(t.Context(), targets, model.ModeQuick)
		if err != nil {
			t.Fatalf("ProcessBatch() error = %v", err)
		}
		if !errors.Is(results[1].Err, ErrNoAttackSurface) {
			t.Errorf("result[1].Err = %v, want ErrNoAttackSurface", results[1].Err)
		}
		if results[0].Err != nil || results[2].Err != nil {
			t.Errorf("healthy targets failed: %+v", results)
		}
	})

	t.Run("respects the concurrency limit", func(t *testing.T) {
		t.Parallel()

		var running, peak atomic.Int32
		o := NewOrchestrator(testConfig(t), jobs.NewRegistry(),
			WithStageBuilder(func(_ string, _ model.ScanMode) []Stage {
				return []Stage{
					&fakeStage{name: "discover", do: func(_ context.Context, st *State) error {
						n := running.Add(1)
						defer running.Add(-1)
						for {
							p := peak.Load()
							if n <= p || peak.CompareAndSwap(p, n) {
								break
							}
						}
						time.Sleep(20 * time.Millisecond)
						st.Endpoints = []string{st.Target + "/"}
						return nil
					}},
					FinalizeStage{},
				}
			}),
		)
		bp := NewBatchProcessor(o, WithConcurrency(2))

		targets := make([]string, 8)
		for i := range targets {
			targets[i] = "https://t.example.com"
		}
		if _, err := bp.ProcessBatch(t.Context(), targets, model.ModeQuick); err != nil {
			t.Fatalf("ProcessBatch() error = %v", err)
		}
		if got := peak.Load(); got > 2 {
			t.Errorf("peak concurrency = %d, want at most 2", got)
		}
	})
}

func TestProcessBatchWithCallback(t *testing.T) {
	t.Parallel()

	o := NewOrchestrator(testConfig(t), jobs.NewRegistry(),
		WithStageBuilder(successStages(1)),
	)
	bp := NewBatchProcessor(o)

	var mu sync.Mutex
	seen := make(map[int]string)
	targets := []string{"https://a.example.com", "https://b.example.com"}

	err := bp.ProcessBatchWithCallback(t.Context(), targets, model.ModeQuick,
		func(result BatchResult, index int) {
			mu.Lock()
			seen[index] = result.Target
			mu.Unlock()
		})
	if err != nil {
		t.Fatalf("ProcessBatchWithCallback() error = %v", err)
	}
	if len(seen) != 2 || seen[0] != targets[0] || seen[1] != targets[1] {
		t.Errorf("callback results = %v", seen)
	}
}
