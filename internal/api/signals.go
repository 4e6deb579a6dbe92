package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/halcyonbeam/halcyon-core/internal/instrument"
	"github.com/halcyonbeam/halcyon-core/internal/signal"
)

// signalResponse describes one registered signal.
type signalResponse struct {
	Name      string   `json:"name"`
	Labels    []string `json:"labels,omitempty"`
	Units     string   `json:"units,omitempty"`
	Precision int      `json:"precision,omitempty"`
	Source    string   `json:"source"`
}

// readingResponse is a pulled reading.
type readingResponse struct {
	Name    string         `json:"name"`
	Reading signal.Reading `json:"reading"`
}

// writeRequest is the body of PUT /signals/{name}/value. A null value
// writes the signal's initial value.
type writeRequest struct {
	Value any  `json:"value"`
	Wait  bool `json:"wait"`
}

func toSignalResponse(dev instrument.Device) signalResponse {
	return signalResponse{
		Name:      dev.Name,
		Labels:    dev.Labels,
		Units:     dev.Units,
		Precision: dev.Precision,
		Source:    dev.Point.SourceName(dev.Name),
	}
}

// handleListSignals returns all registered signals, optionally filtered
// by ?label=.
func (s *Server) handleListSignals(w http.ResponseWriter, r *http.Request) {
	var devices []instrument.Device
	if label := r.URL.Query().Get("label"); label != "" {
		devices = s.registry.FindByLabel(label)
	} else {
		devices = s.registry.All()
	}

	out := make([]signalResponse, 0, len(devices))
	for _, dev := range devices {
		out = append(out, toSignalResponse(dev))
	}
	writeJSON(w, http.StatusOK, map[string]any{"signals": out, "count": len(out)})
}

// handleGetSignal returns one signal's metadata.
func (s *Server) handleGetSignal(w http.ResponseWriter, r *http.Request) {
	dev, err := s.registry.Get(chi.URLParam(r, "name"))
	if err != nil {
		writeNotFound(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toSignalResponse(dev))
}

// handleGetReading pulls a fresh reading from the signal.
func (s *Server) handleGetReading(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	dev, err := s.registry.Get(name)
	if err != nil {
		writeNotFound(w, err.Error())
		return
	}

	reading, err := dev.Point.Read(r.Context())
	if err != nil {
		if errors.Is(err, signal.ErrNotConnected) {
			writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
			return
		}
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, readingResponse{Name: name, Reading: reading})
}

// handleWriteValue writes a value to the signal, optionally waiting for
// completion.
func (s *Server) handleWriteValue(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	dev, err := s.registry.Get(name)
	if err != nil {
		writeNotFound(w, err.Error())
		return
	}

	var req writeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	if err := dev.Point.Write(r.Context(), req.Value, req.Wait); err != nil {
		switch {
		case errors.Is(err, signal.ErrUnknownDependency), errors.Is(err, signal.ErrConversion):
			writeBadRequest(w, err.Error())
		case errors.Is(err, signal.ErrWriteFailed):
			writeError(w, http.StatusBadGateway, ErrCodeUnwritable, err.Error())
		default:
			writeInternalError(w, err.Error())
		}
		return
	}

	// Record what was commanded, not what the device reports back; the
	// readings stream covers the latter. JSON numbers decode as float64.
	if s.setpoints != nil {
		if v, ok := req.Value.(float64); ok {
			s.setpoints.WriteSetpoint(name, v)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "written": true})
}
