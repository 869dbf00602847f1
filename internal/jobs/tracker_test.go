package jobs

import (
	"fmt"
	"sync"
	"testing"

	"github.com/harnessgg/blenderbridge/pkg/protocol"
)

func newRunning(t *testing.T, tr *Tracker) Job {
	t.Helper()
	return tr.Register(Job{
		ID:         NewJobID(),
		Type:       "animation",
		Project:    "/scenes/walk.blend",
		OutputDir:  "/renders/walk",
		FrameStart: 1,
		FrameEnd:   48,
	})
}

func TestRegisterDefaults(t *testing.T) {
	tr := NewTracker()
	job := newRunning(t, tr)

	if job.Status != StatusRunning {
		t.Fatalf("status = %s, want running", job.Status)
	}
	if job.StartedAt == "" {
		t.Fatal("startedAt not stamped")
	}
	got, err := tr.Get(job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != job.ID || got.Status != StatusRunning {
		t.Fatalf("stored job mismatch: %+v", got)
	}
}

func TestJobIDShape(t *testing.T) {
	id := NewJobID()
	if len(id) != len("render_")+12 || id[:7] != "render_" {
		t.Fatalf("unexpected job id %q", id)
	}
}

func TestCompleteLifecycle(t *testing.T) {
	tr := NewTracker()
	job := newRunning(t, tr)

	done, err := tr.Complete(job.ID, map[string]any{"frames": 48})
	if err != nil {
		t.Fatal(err)
	}
	if done.Status != StatusCompleted || done.FinishedAt == "" {
		t.Fatalf("completed job: %+v", done)
	}
	if done.Result["frames"] != 48 {
		t.Fatalf("result not stored: %v", done.Result)
	}
}

func TestFailLifecycle(t *testing.T) {
	tr := NewTracker()
	job := newRunning(t, tr)

	failed, err := tr.Fail(job.ID, "render device lost")
	if err != nil {
		t.Fatal(err)
	}
	if failed.Status != StatusFailed || failed.Error != "render device lost" {
		t.Fatalf("failed job: %+v", failed)
	}
}

func TestCancelRunningJob(t *testing.T) {
	tr := NewTracker()
	job := newRunning(t, tr)

	got, cancelled, err := tr.Cancel(job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !cancelled || got.Status != StatusCancelled || got.FinishedAt == "" {
		t.Fatalf("cancel result: cancelled=%v job=%+v", cancelled, got)
	}
}

func TestCancelTerminalJobIsNoop(t *testing.T) {
	tr := NewTracker()
	job := newRunning(t, tr)
	if _, err := tr.Complete(job.ID, nil); err != nil {
		t.Fatal(err)
	}

	got, cancelled, err := tr.Cancel(job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if cancelled {
		t.Fatal("cancel of a completed job must report cancelled=false")
	}
	if got.Status != StatusCompleted {
		t.Fatalf("status changed to %s", got.Status)
	}
}

func TestCompleteAfterCancelKeepsCancelled(t *testing.T) {
	tr := NewTracker()
	job := newRunning(t, tr)
	if _, _, err := tr.Cancel(job.ID); err != nil {
		t.Fatal(err)
	}

	// The worker finishing late must not resurrect the job.
	got, err := tr.Complete(job.ID, map[string]any{"frames": 48})
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusCancelled || got.Result != nil {
		t.Fatalf("cancelled job overwritten: %+v", got)
	}

	got, err = tr.Fail(job.ID, "late failure")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusCancelled || got.Error != "" {
		t.Fatalf("cancelled job overwritten by Fail: %+v", got)
	}
}

func TestGetUnknownJob(t *testing.T) {
	tr := NewTracker()
	_, err := tr.Get("render_000000000000")
	pe, ok := protocol.AsError(err)
	if !ok || pe.Code != protocol.CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
	if pe.Message != "Render job not found: render_000000000000" {
		t.Fatalf("unexpected message: %s", pe.Message)
	}
}

func TestOnChangeSeesEveryTransition(t *testing.T) {
	tr := NewTracker()
	var mu sync.Mutex
	var seen []string
	tr.OnChange(func(j Job) {
		mu.Lock()
		seen = append(seen, j.Status)
		mu.Unlock()
	})

	job := newRunning(t, tr)
	tr.Cancel(job.ID)
	tr.Complete(job.ID, nil) // no-op, must not notify

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != StatusRunning || seen[1] != StatusCancelled {
		t.Fatalf("notifications: %v", seen)
	}
}

func TestConcurrentTransitionsSettleOnOneTerminalState(t *testing.T) {
	tr := NewTracker()

	for i := 0; i < 50; i++ {
		job := tr.Register(Job{ID: fmt.Sprintf("render_%012d", i), Type: "animation"})
		var wg sync.WaitGroup
		wg.Add(3)
		go func() { defer wg.Done(); tr.Cancel(job.ID) }()
		go func() { defer wg.Done(); tr.Complete(job.ID, nil) }()
		go func() { defer wg.Done(); tr.Fail(job.ID, "x") }()
		wg.Wait()

		got, err := tr.Get(job.ID)
		if err != nil {
			t.Fatal(err)
		}
		if !Terminal(got.Status) {
			t.Fatalf("job %s left in %s", job.ID, got.Status)
		}
		// Whatever won, the losers must not have mixed their fields in.
		switch got.Status {
		case StatusCompleted:
			if got.Error != "" {
				t.Fatalf("completed job carries error: %+v", got)
			}
		case StatusCancelled:
			if got.Result != nil || got.Error != "" {
				t.Fatalf("cancelled job carries worker fields: %+v", got)
			}
		}
	}
}
