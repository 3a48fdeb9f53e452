// Package remotetest provides an in-memory implementation of the remote
// battle stats HTTP contract for tests.
package remotetest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	"battle-tracker/internal/domain"
)

type Server struct {
	*httptest.Server

	mu         sync.Mutex
	data       map[string]domain.Snapshot
	failures   map[string][]int
	saveStatus int
	loadBody   []byte
	requests   []string
	saves      int
}

func NewServer() *Server {
	s := &Server{
		data:       map[string]domain.Snapshot{},
		failures:   map[string][]int{},
		saveStatus: http.StatusOK,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /battle-stats/{key}", s.handleLoad)
	mux.HandleFunc("POST /battle-stats/{key}", s.handleSave)
	mux.HandleFunc("DELETE /battle-stats/{key}/{arena}", s.handleDelete)
	mux.HandleFunc("GET /clear/{key}", s.handleClear)
	s.Server = httptest.NewServer(mux)
	return s
}

// Fail makes the next requests with the given method answer with status.
func (s *Server) Fail(method string, statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = append(s.failures[method], statuses...)
}

func (s *Server) SetSaveStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveStatus = status
}

// SetLoadBody makes every later load answer 200 with body verbatim.
func (s *Server) SetLoadBody(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadBody = []byte(body)
}

// Put replaces the stored snapshot for key, as a concurrent writer would.
func (s *Server) Put(key string, snap domain.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = snap.Clone()
}

func (s *Server) Get(key string) (domain.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.data[key]
	return snap.Clone(), ok
}

func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.requests))
	copy(out, s.requests)
	return out
}

func (s *Server) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *Server) record(r *http.Request) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, r.Method+" "+r.URL.Path)
	if q := s.failures[r.Method]; len(q) > 0 {
		s.failures[r.Method] = q[1:]
		return q[0], true
	}
	return 0, false
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	if status, fail := s.record(r); fail {
		w.WriteHeader(status)
		return
	}
	s.mu.Lock()
	raw := s.loadBody
	s.mu.Unlock()
	if raw != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(raw)
		return
	}

	snap, _ := s.Get(r.PathValue("key"))
	if snap.Battles == nil {
		snap.Battles = map[string]*domain.BattleRecord{}
	}
	if snap.Players == nil {
		snap.Players = domain.PlayerDirectory{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"BattleStats": snap.Battles,
		"PlayerInfo":  snap.Players,
	})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if status, fail := s.record(r); fail {
		w.WriteHeader(status)
		return
	}
	var snap domain.Snapshot
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": err.Error()})
		return
	}
	s.mu.Lock()
	s.data[r.PathValue("key")] = snap
	s.saves++
	status := s.saveStatus
	s.mu.Unlock()
	writeJSON(w, status, map[string]any{"success": true})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if status, fail := s.record(r); fail {
		w.WriteHeader(status)
		return
	}
	s.mu.Lock()
	if snap, ok := s.data[r.PathValue("key")]; ok {
		delete(snap.Battles, r.PathValue("arena"))
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if status, fail := s.record(r); fail {
		w.WriteHeader(status)
		return
	}
	s.mu.Lock()
	delete(s.data, r.PathValue("key"))
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
