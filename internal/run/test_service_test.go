package run

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sqlpilot/internal/pipeline"
)

// gateEngine is a minimal pipeline stand-in: it suspends at the query gate,
// then at the SQL gate when review is enabled, then terminates.
type gateEngine struct {
	mu       sync.Mutex
	advanced []pipeline.Stage
}

func (g *gateEngine) Advance(_ context.Context, pc *pipeline.Context, from pipeline.Stage) (pipeline.Stage, bool) {
	g.mu.Lock()
	g.advanced = append(g.advanced, from)
	g.mu.Unlock()

	switch from {
	case pipeline.StageIntake:
		pc.RewrittenText = "rewritten form of: " + pc.QueryText
		return pipeline.StageReviewQuery, true
	case pipeline.StageReviewQuery:
		if pc.ConfirmedText == "" {
			pc.ConfirmedText = pc.RewrittenText
		}
		pc.GeneratedSQL = "SELECT 1"
		if pc.ReviewEnabled {
			return pipeline.StageReviewSQL, true
		}
		pc.ConfirmedSQL = pc.GeneratedSQL
		return pipeline.StageTerminal, false
	case pipeline.StageReviewSQL:
		if pc.ConfirmedSQL == "" {
			pc.ConfirmedSQL = pc.GeneratedSQL
		}
		return pipeline.StageTerminal, false
	}
	return pipeline.StageTerminal, false
}

func waitForEvent(t *testing.T, ch chan Event, kind EventKind) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}
}

func TestService_FullInteractiveFlow(t *testing.T) {
	broker := NewEventBroker()
	svc := NewService(&gateEngine{}, broker)

	runID, err := svc.Start("show CE by obligor", true)
	require.NoError(t, err)

	ch, ok := broker.Get(runID)
	require.True(t, ok)

	ev := waitForEvent(t, ch, EventWaiting)
	require.Equal(t, pipeline.StageReviewQuery, ev.Stage)
	require.Equal(t, "rewritten form of: show CE by obligor", ev.Payload)

	require.NoError(t, svc.Confirm(runID, pipeline.StageReviewQuery, "edited text"))

	ev = waitForEvent(t, ch, EventWaiting)
	require.Equal(t, pipeline.StageReviewSQL, ev.Stage)
	require.Equal(t, "SELECT 1", ev.Payload)

	require.NoError(t, svc.Confirm(runID, pipeline.StageReviewSQL, ""))
	waitForEvent(t, ch, EventCompleted)

	snap, ok := svc.Get(runID)
	require.True(t, ok)
	require.True(t, snap.Terminal)
	require.Equal(t, "edited text", snap.ConfirmedText)
	require.Equal(t, "SELECT 1", snap.ConfirmedSQL)
}

func TestService_ReviewDisabledNeverPublishesSQLWait(t *testing.T) {
	broker := NewEventBroker()
	svc := NewService(&gateEngine{}, broker)

	runID, err := svc.Start("show CE", false)
	require.NoError(t, err)
	ch, _ := broker.Get(runID)

	waitForEvent(t, ch, EventWaiting)
	require.NoError(t, svc.Confirm(runID, pipeline.StageReviewQuery, ""))

	ev := waitForEvent(t, ch, EventCompleted)
	require.Equal(t, EventCompleted, ev.Kind)

	snap, _ := svc.Get(runID)
	require.Equal(t, "SELECT 1", snap.ConfirmedSQL)

	// Drain: no waiting_confirmation event may have been published for SQL.
	for {
		select {
		case ev := <-ch:
			require.NotEqual(t, pipeline.StageReviewSQL, ev.Stage)
		default:
			return
		}
	}
}

func TestService_ConfirmRoutedByRunIdentity(t *testing.T) {
	broker := NewEventBroker()
	svc := NewService(&gateEngine{}, broker)

	runID, err := svc.Start("query one", true)
	require.NoError(t, err)
	ch, _ := broker.Get(runID)
	waitForEvent(t, ch, EventWaiting)

	// Wrong run, wrong stage, then abandoned run: all inert.
	require.Error(t, svc.Confirm("run-999", pipeline.StageReviewQuery, ""))
	require.Error(t, svc.Confirm(runID, pipeline.StageReviewSQL, ""))

	svc.Abandon(runID)
	require.Error(t, svc.Confirm(runID, pipeline.StageReviewQuery, ""))
}

func TestService_ConfirmWhileRunning(t *testing.T) {
	broker := NewEventBroker()
	svc := NewService(&gateEngine{}, broker)

	runID, err := svc.Start("query", true)
	require.NoError(t, err)

	// Until the first unit suspends, the run is not waiting and a
	// confirmation must be rejected rather than applied early.
	err = svc.Confirm(runID, pipeline.StageReviewQuery, "too eager")
	if err == nil {
		// The first unit may already have suspended; then the confirm is
		// legitimate and the run proceeds.
		ch, _ := broker.Get(runID)
		waitForEvent(t, ch, EventWaiting)
	}
	svc.Wait()
}

func TestService_StartRejectsEmptyQuery(t *testing.T) {
	svc := NewService(&gateEngine{}, NewEventBroker())
	_, err := svc.Start("   ", true)
	require.Error(t, err)
}

// churnEngine mutates context fields, including slices, in a tight loop
// while a unit of work is in flight.
type churnEngine struct{}

func (churnEngine) Advance(_ context.Context, pc *pipeline.Context, from pipeline.Stage) (pipeline.Stage, bool) {
	switch from {
	case pipeline.StageIntake:
		for i := 0; i < 500; i++ {
			pc.IdentifiedMeasures = append(pc.IdentifiedMeasures, "CE")
			pc.RewrittenText = pc.RewrittenText + "x"
		}
		return pipeline.StageReviewQuery, true
	default:
		pc.ConfirmedSQL = "SELECT 1"
		return pipeline.StageTerminal, false
	}
}

func TestService_SnapshotNeverExposesLiveContext(t *testing.T) {
	broker := NewEventBroker()
	svc := NewService(&churnEngine{}, broker)

	runID, err := svc.Start("show CE", true)
	require.NoError(t, err)

	// Poll snapshots while the first unit is busy mutating the context.
	// Snapshots are taken only at unit boundaries, so every view observed
	// here is either empty or fully written.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			snap, ok := svc.Get(runID)
			if !ok {
				continue
			}
			if n := len(snap.Measures); n != 0 && n != 500 {
				t.Errorf("observed a mid-unit context: %d measures", n)
				return
			}
		}
	}()

	ch, _ := broker.Get(runID)
	waitForEvent(t, ch, EventWaiting)
	<-done

	// A caller mutating its snapshot must not reach the stored view.
	snap, ok := svc.Get(runID)
	require.True(t, ok)
	require.Len(t, snap.Measures, 500)
	snap.Measures[0] = "clobbered"
	again, _ := svc.Get(runID)
	require.Equal(t, "CE", again.Measures[0])

	require.NoError(t, svc.Confirm(runID, pipeline.StageReviewQuery, ""))
	svc.Wait()
}

func TestService_EvictedRunReleasesEventChannel(t *testing.T) {
	broker := NewEventBroker()
	svc := NewService(&gateEngine{}, broker)

	for i := 0; i <= completedRunRetention; i++ {
		id := fmt.Sprintf("old-%d", i)
		broker.Allocate(id, 1)
		svc.completed.Add(id, &runState{id: id, terminal: true})
	}

	// The oldest entry fell out of retention and its channel went with it.
	if _, ok := broker.Get("old-0"); ok {
		t.Fatalf("evicted run must release its event channel")
	}
	if _, ok := broker.Get(fmt.Sprintf("old-%d", completedRunRetention)); !ok {
		t.Fatalf("retained run must keep its event channel")
	}
}
