package server

import (
	"encoding/json"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"sqlpilot/internal/measure"
	"sqlpilot/internal/pipeline"
	"sqlpilot/internal/run"
)

// Handler serves the interactive surface's transport. Rendering lives on
// the client; this layer only moves state and confirmations.
type Handler struct {
	runs      *run.Service
	broker    *run.EventBroker
	measures  *measure.Index
	exportDir string
	// defaultReview applies when a start request omits review_enabled.
	defaultReview bool
}

func NewHandler(runs *run.Service, broker *run.EventBroker, measures *measure.Index, exportDir string, defaultReview bool) *Handler {
	return &Handler{runs: runs, broker: broker, measures: measures, exportDir: exportDir, defaultReview: defaultReview}
}

func NewMux(h *Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /runs", h.handleStart)
	mux.HandleFunc("GET /runs/{id}", h.handleGet)
	mux.HandleFunc("POST /runs/{id}/confirm", h.handleConfirm)
	mux.HandleFunc("POST /runs/{id}/abandon", h.handleAbandon)
	mux.HandleFunc("POST /runs/{id}/export", h.handleExport)
	mux.HandleFunc("GET /runs/{id}/events", h.handleEvents)
	mux.HandleFunc("GET /measures", h.handleMeasures)
	return mux
}

type startRequest struct {
	Query         string `json:"query"`
	ReviewEnabled *bool  `json:"review_enabled,omitempty"`
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	review := h.defaultReview
	if req.ReviewEnabled != nil {
		review = *req.ReviewEnabled
	}
	runID, err := h.runs.Start(req.Query, review)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]string{"run_id": runID})
}

type snapshotView struct {
	RunID         string          `json:"run_id"`
	WaitingAt     string          `json:"waiting_at,omitempty"`
	Terminal      bool            `json:"terminal"`
	Error         string          `json:"error,omitempty"`
	Measures      []string        `json:"measures,omitempty"`
	GroupBy       []string        `json:"group_by,omitempty"`
	RewrittenText string          `json:"rewritten_text,omitempty"`
	ConfirmedText string          `json:"confirmed_text,omitempty"`
	GeneratedSQL  string          `json:"generated_sql,omitempty"`
	ConfirmedSQL  string          `json:"confirmed_sql,omitempty"`
	Columns       []string        `json:"columns,omitempty"`
	Rows          []map[string]any `json:"rows,omitempty"`
	CSVPath       string          `json:"csv_path,omitempty"`
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.runs.Get(r.PathValue("id"))
	if !ok {
		http.Error(w, "unknown run", http.StatusNotFound)
		return
	}
	view := snapshotView{
		RunID:     snap.RunID,
		WaitingAt: string(snap.WaitingAt),
		Terminal:  snap.Terminal,
	}
	if snap.Error != "" {
		// A failed run renders the error alone; downstream fields produced
		// before the failure are withheld.
		view.Error = snap.Error
		writeJSON(w, view)
		return
	}
	view.Measures = snap.Measures
	view.GroupBy = snap.GroupBy
	view.RewrittenText = snap.RewrittenText
	view.ConfirmedText = snap.ConfirmedText
	view.GeneratedSQL = snap.GeneratedSQL
	view.ConfirmedSQL = snap.ConfirmedSQL
	view.CSVPath = snap.CSVPath
	if snap.Rows != nil {
		view.Columns = snap.Rows.Columns
		view.Rows = snap.Rows.Records
	}
	writeJSON(w, view)
}

// handleMeasures lists the measure configuration files the index knows,
// after a fresh rescan of the measures directory.
func (h *Handler) handleMeasures(w http.ResponseWriter, _ *http.Request) {
	files, err := h.measures.Files()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if files == nil {
		files = []string{}
	}
	writeJSON(w, map[string][]string{"measures": files})
}

type confirmRequest struct {
	Stage   string `json:"stage"`
	Payload string `json:"payload,omitempty"`
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.runs.Confirm(r.PathValue("id"), pipeline.Stage(req.Stage), req.Payload); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAbandon(w http.ResponseWriter, r *http.Request) {
	h.runs.Abandon(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	path := filepath.Join(h.exportDir, runID+".csv")
	if err := h.runs.ExportCSV(runID, path); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, map[string]string{"csv_path": path})
}

const (
	eventsWSWriteWait = 10 * time.Second
	eventsWSPoll      = 200 * time.Millisecond
)

var eventsWSUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// handleEvents streams a run's events over a websocket. The broker channel
// is polled on a fixed short interval; the worker side never blocks on us.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimSpace(r.PathValue("id"))
	ch, ok := h.broker.Get(runID)
	if !ok {
		http.Error(w, "unknown run", http.StatusNotFound)
		return
	}

	conn, err := eventsWSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// The read pump exists only to notice the client going away; the
	// request context is useless for that once the connection is hijacked.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(eventsWSPoll)
	defer ticker.Stop()
	for {
		select {
		case <-gone:
			return
		case <-ticker.C:
			if !drainEvents(conn, ch) {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(eventsWSWriteWait))
				return
			}
		}
	}
}

// drainEvents forwards buffered events without blocking. It reports false
// when the stream is done: either the connection is no longer writable or
// a terminal event has been forwarded.
func drainEvents(conn *websocket.Conn, ch chan run.Event) bool {
	for {
		select {
		case ev := <-ch:
			if err := conn.SetWriteDeadline(time.Now().Add(eventsWSWriteWait)); err != nil {
				return false
			}
			if err := conn.WriteJSON(ev); err != nil {
				return false
			}
			if ev.Kind == run.EventCompleted || ev.Kind == run.EventError {
				return false
			}
		default:
			return true
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server: encode response: %v", err)
	}
}
