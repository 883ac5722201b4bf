// Package devserver is an in-process stand-in for the remote backend: it
// speaks the submit-and-poll job protocol and hosts collaboration rooms.
// Tests run it via httptest; cmd/brickstub serves it for local development.
package devserver

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type jobState struct {
	result  []byte
	readyAt time.Time
	failed  bool
}

type Server struct {
	// Delay is how long a job stays pending before completing.
	Delay time.Duration

	// Token, when set, is required as a bearer credential on job routes.
	Token string

	logger *zap.Logger
	hub    *hub

	mu   sync.Mutex
	jobs map[string]*jobState
}

func New(logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		logger: logger.Named("devserver"),
		hub:    newHub(logger),
		jobs:   make(map[string]*jobState),
	}
}

// Router wires the job protocol and the room websocket.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Post("/generate", s.submitGenerate)
	r.Get("/generate/{jobID}", s.poll)
	r.Post("/detect_inventory", s.submitDetect)
	r.Get("/detect_inventory/{jobID}", s.poll)

	r.Get("/ws/{room}", s.hub.serve)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}

func (s *Server) authorized(r *http.Request) bool {
	if s.Token == "" {
		return true
	}
	return r.Header.Get("Authorization") == "Bearer "+s.Token
}

func (s *Server) submitGenerate(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Prompt == "" {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	result, _ := json.Marshal(map[string]any{
		"png_url":          "/results/" + sanitize(req.Prompt) + ".png",
		"ldr_url":          nil,
		"gltf_url":         nil,
		"instructions_url": nil,
		"brick_counts":     map[string]int{},
	})
	s.accept(w, result)
}

func (s *Server) submitDetect(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Image string `json:"image"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Image == "" {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	result, _ := json.Marshal(map[string]any{
		"brick_counts": map[string]int{"3001": 4, "3003": 2},
	})
	s.accept(w, result)
}

func (s *Server) accept(w http.ResponseWriter, result []byte) {
	id := uuid.NewString()

	s.mu.Lock()
	s.jobs[id] = &jobState{result: result, readyAt: time.Now().Add(s.Delay)}
	s.mu.Unlock()

	s.logger.Debug("job accepted", zap.String("job_id", id))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"job_id": id})
}

func (s *Server) poll(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	id := chi.URLParam(r, "jobID")

	s.mu.Lock()
	job, ok := s.jobs[id]
	s.mu.Unlock()

	switch {
	case !ok:
		http.Error(w, "unknown job", http.StatusNotFound)
	case job.failed:
		http.Error(w, "job failed", http.StatusInternalServerError)
	case time.Now().Before(job.readyAt):
		w.WriteHeader(http.StatusAccepted)
	default:
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(job.result)
	}
}

// FailJob marks a job so its next poll reports terminal failure. Test hook.
func (s *Server) FailJob(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.failed = true
	}
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '/' {
			return '-'
		}
		return r
	}, s)
}
