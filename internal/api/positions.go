package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/halcyonbeam/halcyon-core/internal/instrument"
	"github.com/halcyonbeam/halcyon-core/internal/positions"
)

// savePositionRequest is the body of POST /positions.
type savePositionRequest struct {
	Name   string   `json:"name"`
	Motors []string `json:"motors"`
}

// handleSavePosition captures a new motor position snapshot.
func (s *Server) handleSavePosition(w http.ResponseWriter, r *http.Request) {
	if s.positions == nil {
		writeNotFound(w, "position snapshots are not enabled")
		return
	}

	var req savePositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if req.Name == "" {
		writeBadRequest(w, "name is required")
		return
	}

	position, err := s.positions.Save(r.Context(), req.Name, req.Motors)
	if err != nil {
		switch {
		case errors.Is(err, positions.ErrNoMotors), errors.Is(err, instrument.ErrNotFound):
			writeBadRequest(w, err.Error())
		default:
			writeInternalError(w, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusCreated, position)
}

// handleListPositions returns all snapshots, newest first.
func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	if s.positions == nil {
		writeNotFound(w, "position snapshots are not enabled")
		return
	}

	list, err := s.positions.List(r.Context())
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	if list == nil {
		list = []positions.MotorPosition{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": list, "count": len(list)})
}

// handleGetPosition returns one snapshot.
func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	if s.positions == nil {
		writeNotFound(w, "position snapshots are not enabled")
		return
	}

	position, err := s.positions.Get(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		if errors.Is(err, positions.ErrNotFound) {
			writeNotFound(w, err.Error())
			return
		}
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, position)
}

// handleDeletePosition removes a snapshot.
func (s *Server) handleDeletePosition(w http.ResponseWriter, r *http.Request) {
	if s.positions == nil {
		writeNotFound(w, "position snapshots are not enabled")
		return
	}

	if err := s.positions.Delete(r.Context(), chi.URLParam(r, "uid")); err != nil {
		if errors.Is(err, positions.ErrNotFound) {
			writeNotFound(w, err.Error())
			return
		}
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// handleRecallPosition restores a snapshot's motor positions.
func (s *Server) handleRecallPosition(w http.ResponseWriter, r *http.Request) {
	if s.positions == nil {
		writeNotFound(w, "position snapshots are not enabled")
		return
	}

	uid := chi.URLParam(r, "uid")
	if err := s.positions.Recall(r.Context(), uid); err != nil {
		switch {
		case errors.Is(err, positions.ErrNotFound):
			writeNotFound(w, err.Error())
		default:
			// A partially restored snapshot is a gateway-side failure.
			writeError(w, http.StatusBadGateway, ErrCodeUnwritable, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recalled": uid})
}
