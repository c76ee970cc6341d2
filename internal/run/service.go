// Package run schedules pipeline work and routes human confirmations back
// into it. A run never holds a goroutine idle waiting on a reviewer: each
// segment between suspend points executes as its own unit of work, and a
// confirmation schedules the next unit carrying the context forward.
package run

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"sqlpilot/internal/db"
	"sqlpilot/internal/export"
	"sqlpilot/internal/pipeline"
)

const completedRunRetention = 64

type runState struct {
	id     string
	pc     *pipeline.Context
	ctx    context.Context
	cancel context.CancelFunc

	// waitingAt names the gate the run is suspended at; empty while a unit
	// of work is in flight.
	waitingAt pipeline.Stage
	terminal  bool

	// view is the copy of pc handed to readers. It is refreshed under the
	// service lock only at unit-of-work boundaries, so the live context is
	// never read while a stage is mutating it.
	view Snapshot
}

// Service owns active runs. Confirmations are routed by run ID, so a
// confirmation for an abandoned run can never touch a fresh one.
type Service struct {
	engine Engine
	broker *EventBroker

	mu        sync.Mutex
	active    map[string]*runState
	completed *lru.Cache[string, *runState]

	runCounter atomic.Uint64
	wg         sync.WaitGroup
}

// Engine is the pipeline surface the service drives.
type Engine interface {
	Advance(ctx context.Context, pc *pipeline.Context, from pipeline.Stage) (pipeline.Stage, bool)
}

func NewService(engine Engine, broker *EventBroker) *Service {
	// Eviction is the end of a completed run's life; its event channel goes
	// with it, otherwise the broker map grows without bound.
	completed, _ := lru.NewWithEvict[string, *runState](completedRunRetention,
		func(runID string, _ *runState) {
			broker.Release(runID)
		})
	return &Service{
		engine:    engine,
		broker:    broker,
		active:    make(map[string]*runState),
		completed: completed,
	}
}

// Start creates a run for the query and schedules its first unit of work.
func (s *Service) Start(queryText string, reviewEnabled bool) (string, error) {
	queryText = strings.TrimSpace(queryText)
	if queryText == "" {
		return "", fmt.Errorf("run: query text is required")
	}

	runID := fmt.Sprintf("run-%d", s.runCounter.Add(1))
	ctx, cancel := context.WithCancel(context.Background())
	st := &runState{
		id:     runID,
		pc:     pipeline.NewContext(runID, queryText, reviewEnabled),
		ctx:    ctx,
		cancel: cancel,
	}
	st.view = snapshotOf(st)

	s.mu.Lock()
	s.active[runID] = st
	s.mu.Unlock()

	s.broker.Allocate(runID, 32)
	s.schedule(st, pipeline.StageIntake)
	return runID, nil
}

// Confirm applies reviewer input to a suspended run and schedules the next
// unit of work. An empty payload confirms the oracle's text unchanged.
// Confirmations for unknown, finished, or non-waiting runs are rejected.
func (s *Service) Confirm(runID string, stage pipeline.Stage, payload string) error {
	s.mu.Lock()
	st, ok := s.active[runID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("run: %s is not active", runID)
	}
	if st.waitingAt == "" {
		s.mu.Unlock()
		return fmt.Errorf("run: %s is not waiting for confirmation", runID)
	}
	if st.waitingAt != stage {
		s.mu.Unlock()
		return fmt.Errorf("run: %s is waiting at %s, not %s", runID, st.waitingAt, stage)
	}

	// Applied before the next unit reads the context. Edited text is stored
	// exactly as received; a payload that is all whitespace counts as a
	// pass-through confirmation.
	if strings.TrimSpace(payload) == "" {
		payload = ""
	}
	switch stage {
	case pipeline.StageReviewQuery:
		st.pc.ConfirmedText = payload
	case pipeline.StageReviewSQL:
		st.pc.ConfirmedSQL = payload
	}
	st.waitingAt = ""
	st.view = snapshotOf(st)
	s.mu.Unlock()

	s.schedule(st, stage)
	return nil
}

// schedule runs one pipeline segment as its own unit of work.
func (s *Service) schedule(st *runState, from pipeline.Stage) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		next, suspended := s.engine.Advance(st.ctx, st.pc, from)

		s.mu.Lock()
		if _, ok := s.active[st.id]; !ok {
			// Abandoned while the unit was in flight; its result is discarded.
			s.mu.Unlock()
			return
		}
		if suspended {
			st.waitingAt = next
			st.view = snapshotOf(st)
			s.mu.Unlock()
			s.broker.Publish(Event{
				RunID:   st.id,
				Kind:    EventWaiting,
				Stage:   next,
				Message: "waiting for confirmation",
				Payload: s.reviewPayload(st.pc, next),
			})
			return
		}
		st.terminal = true
		st.view = snapshotOf(st)
		delete(s.active, st.id)
		s.completed.Add(st.id, st)
		s.mu.Unlock()

		if st.pc.Failed() {
			s.broker.Publish(Event{RunID: st.id, Kind: EventError, Message: st.pc.Err.Error()})
			return
		}
		msg := "completed"
		if st.pc.Rows != nil {
			msg = fmt.Sprintf("%d row(s)", len(st.pc.Rows.Records))
		}
		s.broker.Publish(Event{RunID: st.id, Kind: EventCompleted, Message: msg})
	}()
}

func (s *Service) reviewPayload(pc *pipeline.Context, gate pipeline.Stage) string {
	switch gate {
	case pipeline.StageReviewQuery:
		return pc.RewrittenText
	case pipeline.StageReviewSQL:
		return pc.GeneratedSQL
	}
	return ""
}

// Abandon discards a run. Its confirmation endpoints become inert and any
// in-flight unit's result is dropped.
func (s *Service) Abandon(runID string) {
	s.mu.Lock()
	st, ok := s.active[runID]
	if ok {
		delete(s.active, runID)
	}
	s.mu.Unlock()
	if ok {
		st.cancel()
		s.broker.Release(runID)
	}
}

// Wait blocks until all scheduled units of work have finished. Test helper.
func (s *Service) Wait() { s.wg.Wait() }

// Snapshot is a detached, boundary-consistent copy of a run's state. The
// live pipeline context is never exposed: workers own it exclusively while
// a unit of work is in flight.
type Snapshot struct {
	RunID     string
	WaitingAt pipeline.Stage
	Terminal  bool
	Error     string

	QueryText     string
	Measures      []string
	GroupBy       []string
	RewrittenText string
	ConfirmedText string
	GeneratedSQL  string
	ConfirmedSQL  string
	Rows          *db.Rows
	CSVPath       string
}

// snapshotOf copies the context into a detached view. Callers hold s.mu,
// and no unit of work is mutating pc at a boundary. Rows is shared by
// pointer: it is written once at execution and read-only thereafter.
func snapshotOf(st *runState) Snapshot {
	pc := st.pc
	snap := Snapshot{
		RunID:         st.id,
		WaitingAt:     st.waitingAt,
		Terminal:      st.terminal,
		QueryText:     pc.QueryText,
		Measures:      append([]string(nil), pc.IdentifiedMeasures...),
		GroupBy:       append([]string(nil), pc.GroupByDimensions...),
		RewrittenText: pc.RewrittenText,
		ConfirmedText: pc.ConfirmedText,
		GeneratedSQL:  pc.GeneratedSQL,
		ConfirmedSQL:  pc.ConfirmedSQL,
		Rows:          pc.Rows,
		CSVPath:       pc.CSVPath,
	}
	if pc.Err != nil {
		snap.Error = pc.Err.Error()
	}
	return snap
}

// Get returns the current view of an active or recently completed run.
func (s *Service) Get(runID string) (Snapshot, bool) {
	s.mu.Lock()
	st, ok := s.active[runID]
	if !ok {
		st, ok = s.completed.Get(runID)
	}
	if !ok {
		s.mu.Unlock()
		return Snapshot{}, false
	}
	snap := st.view
	s.mu.Unlock()

	// Re-copy the slices so a caller mutating its snapshot cannot reach
	// the stored view.
	snap.Measures = append([]string(nil), snap.Measures...)
	snap.GroupBy = append([]string(nil), snap.GroupBy...)
	return snap, true
}

// ExportCSV writes a completed run's rows to path.
func (s *Service) ExportCSV(runID, path string) error {
	s.mu.Lock()
	st, ok := s.completed.Get(runID)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("run: %s has not completed", runID)
	}
	if st.pc.Failed() || st.pc.Rows == nil {
		return fmt.Errorf("run: %s has no results to export", runID)
	}
	if err := export.WriteCSV(path, st.pc.Rows); err != nil {
		return err
	}
	s.mu.Lock()
	st.pc.CSVPath = path
	st.view.CSVPath = path
	s.mu.Unlock()
	return nil
}
