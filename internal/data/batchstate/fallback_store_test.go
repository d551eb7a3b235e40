package batchstate

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/scriptrunner-backend/internal/domain/batch"
)

func TestFallbackStoreReturnsCopies(t *testing.T) {
	fb := NewFallbackStore()
	doc := fb.Create("b1", threeJobs())
	doc.Jobs[0].Status = batch.JobStatusFailed

	got, ok := fb.Get("b1")
	if !ok || got.Jobs[0].Status != batch.JobStatusPending {
		t.Fatalf("caller mutation leaked into store: %+v", got)
	}
}

func TestFallbackStoreSweepAndStats(t *testing.T) {
	fb := NewFallbackStore()
	fb.Create("a", threeJobs())
	fb.Create("b", threeJobs())
	if _, err := fb.Complete("b"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if st := fb.Stats(); st.ActiveCount != 1 || st.TotalDocuments != 2 || st.Provenance != batch.ProvenanceFallback {
		t.Fatalf("unexpected stats: %+v", st)
	}
	if n := fb.SweepInactive(); n != 1 {
		t.Fatalf("expected 1 swept, got %d", n)
	}
	if ids := fb.ListActive(); len(ids) != 1 || ids[0] != "a" {
		t.Fatalf("unexpected active ids: %v", ids)
	}
}

func TestFallbackStoreConcurrentBatches(t *testing.T) {
	fb := NewFallbackStore()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		id := fmt.Sprintf("b%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			fb.Create(id, threeJobs())
			for _, j := range []string{"J1", "J2", "J3"} {
				_, _ = fb.UpdateJobStatus(id, j, batch.JobStatusRunning, batch.JobUpdate{})
				_, _ = fb.UpdateJobStatus(id, j, batch.JobStatusCompleted, batch.JobUpdate{})
			}
		}()
	}
	wg.Wait()
	if st := fb.Stats(); st.TotalDocuments != 16 || st.ActiveCount != 0 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestFallbackStoreMirrorNeverMovesBackwards(t *testing.T) {
	fb := NewFallbackStore()
	older := batch.NewBatchExecution("b1", threeJobs(), time.Now())
	newer := older.Clone()
	newer.ApplyJobStatus("J1", batch.JobStatusRunning, batch.JobUpdate{}, time.Now())

	fb.Mirror(newer)
	fb.Mirror(older)

	got, _ := fb.Get("b1")
	if j, _ := got.FindJob("J1"); j.Status != batch.JobStatusRunning {
		t.Fatalf("stale snapshot replaced newer mirror: %+v", j)
	}

	fb.Put(older)
	got, _ = fb.Get("b1")
	if j, _ := got.FindJob("J1"); j.Status != batch.JobStatusPending {
		t.Fatalf("Put did not replace entry: %+v", j)
	}
}

func TestFallbackStoreTracksOrigin(t *testing.T) {
	fb := NewFallbackStore()
	fb.Create("local", threeJobs())
	fb.Put(batch.NewBatchExecution("mirrored", threeJobs(), time.Now()))

	if _, err := fb.UpdateJobStatus("local", "J1", batch.JobStatusRunning, batch.JobUpdate{}); err != nil {
		t.Fatalf("UpdateJobStatus: %v", err)
	}
	if _, err := fb.Complete("mirrored"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !fb.Owns("local") || fb.Owns("mirrored") || fb.Owns("missing") {
		t.Fatalf("origin lost: local=%v mirrored=%v", fb.Owns("local"), fb.Owns("mirrored"))
	}
	if ids := fb.Mirrored(); len(ids) != 1 || ids[0] != "mirrored" {
		t.Fatalf("unexpected mirrored ids: %v", ids)
	}
}
