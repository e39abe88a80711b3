package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/quantfund/internal/registry"
	"github.com/sawpanic/quantfund/internal/report/perf"
)

// writeJSON writes JSON response with proper error handling
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}

// writeError writes standardized error response
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	s.writeJSON(w, status, ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Code:      code,
		RequestID: requestID(r),
		Timestamp: time.Now().UTC(),
	})
}

// decode reads a bounded JSON body and rejects unknown fields
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid_body", fmt.Sprintf("Invalid request body: %v", err))
		return false
	}
	return true
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	s.writeError(w, r, http.StatusNotFound, "endpoint_not_found", "The requested endpoint does not exist")
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Current())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, StatsResponse{
		Timestamp:   time.Now().UTC(),
		Counters:    s.engine.Stats(),
		Latency:     s.engine.Latency(),
		Subscribers: s.engine.Subscribers(),
	})
}

func (s *Server) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	views := s.engine.List()
	s.writeJSON(w, http.StatusOK, StrategiesResponse{Strategies: views, Count: len(views)})
}

func (s *Server) handleGetStrategy(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	view, ok := s.engine.Get(id)
	if !ok {
		s.writeError(w, r, http.StatusNotFound, "unknown_strategy", fmt.Sprintf("Strategy %q is not registered", id))
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !s.decode(w, r, &req) {
		return
	}

	var opts []registry.RegisterOption
	if req.Owner != "" {
		opts = append(opts, registry.WithOwner(req.Owner))
	}
	if req.Status != "" {
		opts = append(opts, registry.WithStatus(req.Status))
	}

	view, err := s.engine.Register(req.ID, req.Name, opts...)
	switch {
	case err == nil:
		w.Header().Set("Location", "/strategies/"+view.ID)
		s.writeJSON(w, http.StatusCreated, view)
	case errors.Is(err, registry.ErrDuplicateRegistration):
		s.writeError(w, r, http.StatusConflict, "duplicate_registration", err.Error())
	default:
		s.writeError(w, r, http.StatusBadRequest, "invalid_registration", err.Error())
	}
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req StatusRequest
	if !s.decode(w, r, &req) {
		return
	}

	err := s.engine.SetStatus(id, req.Status)
	switch {
	case err == nil:
		view, _ := s.engine.Get(id)
		s.writeJSON(w, http.StatusOK, view)
	case errors.Is(err, registry.ErrUnknownStrategy):
		s.writeError(w, r, http.StatusNotFound, "unknown_strategy", err.Error())
	default:
		s.writeError(w, r, http.StatusBadRequest, "invalid_status", err.Error())
	}
}

// handleDeregister is idempotent: unknown ids also answer 204
func (s *Server) handleDeregister(w http.ResponseWriter, r *http.Request) {
	s.engine.Deregister(mux.Vars(r)["id"])
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleObservation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req ObservationRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now().UTC()
	}

	err := s.engine.Ingest(perf.Observation{StrategyID: id, Timestamp: req.Timestamp, Value: req.Value})
	switch {
	case err == nil:
		view, ok := s.engine.Get(id)
		if !ok {
			// removed while the request was in flight
			w.WriteHeader(http.StatusNoContent)
			return
		}
		s.writeJSON(w, http.StatusOK, view)
	case errors.Is(err, registry.ErrUnknownStrategy):
		s.writeError(w, r, http.StatusNotFound, "unknown_strategy", err.Error())
	case errors.Is(err, perf.ErrOutOfOrder):
		s.writeError(w, r, http.StatusConflict, "out_of_order", err.Error())
	default:
		s.writeError(w, r, http.StatusBadRequest, "invalid_observation", err.Error())
	}
}
