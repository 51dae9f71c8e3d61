package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// SleeveStatus is the /status view of one sleeve.
type SleeveStatus struct {
	Sleeve         string    `json:"sleeve"`
	Level          int       `json:"level"`
	LevelName      string    `json:"level_name"`
	CadenceSeconds float64   `json:"cadence_seconds"`
	LastTransition time.Time `json:"last_transition"`
}

type healthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp time.Time         `json:"timestamp"`
}

type statusResponse struct {
	Sleeves     []SleeveStatus `json:"sleeves"`
	FeedBreaker string         `json:"feed_breaker,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleHealth reports liveness plus dependency reachability. A dead journal
// degrades health: transitions would be lost from the audit trail.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	healthy := true

	if s.deps.Journal != nil {
		if err := s.deps.Journal.Ping(r.Context()); err != nil {
			checks["journal"] = "unreachable: " + err.Error()
			healthy = false
		} else {
			checks["journal"] = "ok"
		}
	}
	if s.deps.BreakerState != nil {
		checks["feed_breaker"] = s.deps.BreakerState()
	}

	resp := healthResponse{Status: "healthy", Checks: checks, Timestamp: time.Now().UTC()}
	code := http.StatusOK
	if !healthy {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// handleStatus reports every sleeve's current protocol level and cadence.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Statuses == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "status source not configured"})
		return
	}
	statuses, err := s.deps.Statuses.Statuses(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("status read failed")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}

	resp := statusResponse{Sleeves: statuses, Timestamp: time.Now().UTC()}
	if s.deps.BreakerState != nil {
		resp.FeedBreaker = s.deps.BreakerState()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("response encode failed")
	}
}
