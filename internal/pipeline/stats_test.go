package pipeline

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/gatewatch-data/gatewatch/internal/events"
	"github.com/gatewatch-data/gatewatch/internal/timeutil"
)

func TestCameraStats_SnapshotAndFPS(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	c := NewCollector(clock)
	cs := c.Camera("cam-1")

	for i := 0; i < 30; i++ {
		cs.AddFrame()
	}
	cs.SetDropped(3)
	cs.SetLiveTracks(5)
	cs.AddEvent(events.TypeCollision)
	cs.AddEvent(events.TypeCollision)
	cs.AddEvent(events.TypeFall)
	clock.Advance(2 * time.Second)

	snap := cs.Snapshot()
	if snap.FramesProcessed != 30 {
		t.Errorf("FramesProcessed = %d", snap.FramesProcessed)
	}
	if snap.FramesDropped != 3 {
		t.Errorf("FramesDropped = %d", snap.FramesDropped)
	}
	if snap.LiveTracks != 5 {
		t.Errorf("LiveTracks = %d", snap.LiveTracks)
	}
	if snap.FPS != 15 {
		t.Errorf("FPS = %v, want 15", snap.FPS)
	}
	want := map[string]int64{"collision": 2, "fall": 1}
	if diff := cmp.Diff(want, snap.EventsByType); diff != "" {
		t.Errorf("EventsByType mismatch (-want +got):\n%s", diff)
	}
}

func TestCameraStats_LogResetsWindowNotTotals(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	cs := newCameraStats(clock)

	for i := 0; i < 10; i++ {
		cs.AddFrame()
	}
	clock.Advance(time.Second)
	cs.LogStats("cam-1")
	clock.Advance(time.Second)

	snap := cs.Snapshot()
	if snap.FramesProcessed != 10 {
		t.Errorf("cumulative total lost on log: %d", snap.FramesProcessed)
	}
	if snap.FPS != 0 {
		t.Errorf("window FPS should reset after log, got %v", snap.FPS)
	}
}

func TestCollector_ConcurrentCounters(t *testing.T) {
	c := NewCollector(nil)
	const workers = 8
	const perWorker = 1000

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			// Half the workers hit one camera, half another, all of them
			// racing on lazy creation too.
			id := "cam-a"
			if w%2 == 1 {
				id = "cam-b"
			}
			for i := 0; i < perWorker; i++ {
				cs := c.Camera(id)
				cs.AddFrame()
				cs.AddEvent(events.TypeLoitering)
			}
		}(w)
	}
	wg.Wait()

	snaps := c.Snapshot()
	if len(snaps) != 2 {
		t.Fatalf("got %d cameras", len(snaps))
	}
	total := snaps["cam-a"].FramesProcessed + snaps["cam-b"].FramesProcessed
	if total != workers*perWorker {
		t.Errorf("lost frames under concurrency: %d", total)
	}
	if snaps["cam-a"].EventsByType["loitering"] != workers/2*perWorker {
		t.Errorf("cam-a loitering = %d", snaps["cam-a"].EventsByType["loitering"])
	}
}
