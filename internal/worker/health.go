// Package worker holds the event worker's health state and its HTTP routes.
package worker

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

// Status counts what the worker has forwarded from Kafka to Loki.
type Status struct {
	mu         sync.Mutex
	started    time.Time
	forwarded  int64
	failed     int64
	lastPushAt time.Time
	lastError  string
}

// NewStatus returns a Status stamped with the current time.
func NewStatus() *Status {
	return &Status{started: time.Now().UTC()}
}

// RecordPush records the outcome of one Loki push.
func (s *Status) RecordPush(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failed++
		s.lastError = err.Error()
		return
	}
	s.forwarded++
	s.lastPushAt = time.Now().UTC()
	s.lastError = ""
}

// Snapshot is the JSON body of GET /status.
type Snapshot struct {
	StartedAt  time.Time  `json:"startedAt"`
	Forwarded  int64      `json:"forwarded"`
	Failed     int64      `json:"failed"`
	LastPushAt *time.Time `json:"lastPushAt,omitempty"`
	LastError  string     `json:"lastError,omitempty"`
}

// Snapshot returns the current counters.
func (s *Status) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{StartedAt: s.started, Forwarded: s.forwarded, Failed: s.failed, LastError: s.lastError}
	if !s.lastPushAt.IsZero() {
		t := s.lastPushAt
		snap.LastPushAt = &t
	}
	return snap
}

// NewRouter serves GET /health (liveness) and GET /status (counters).
func NewRouter(status *Status) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("OK\n"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(status.Snapshot())
	}).Methods(http.MethodGet)
	return r
}
