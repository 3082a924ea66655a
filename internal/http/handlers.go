package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/models"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	defaultWindow = time.Hour
	maxBodyBytes  = 1 << 20
)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeFailure maps the error taxonomy onto status codes.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	var ve *models.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: ve.Error(), Field: ve.Field})
	case errors.Is(err, models.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, "endpoint not found")
	case errors.Is(err, models.ErrStorage):
		s.logger.Error("Storage failure", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
	default:
		s.logger.Error("Request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeSpec(w http.ResponseWriter, r *http.Request) (models.EndpointSpec, error) {
	var spec models.EndpointSpec
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return spec, models.NewValidationError("body", err.Error())
	}
	return spec, nil
}

func parseWindow(r *http.Request) (time.Duration, error) {
	raw := r.URL.Query().Get("window")
	if raw == "" {
		return defaultWindow, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, models.NewValidationError("window", "must be a positive duration such as 15m or 24h")
	}
	return d, nil
}

func (s *Server) listEndpoints(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.EndpointFilter{
		Region:        q.Get("region"),
		CloudProvider: q.Get("cloud_provider"),
		ActiveOnly:    q.Get("active") == "true",
	}

	endpoints, err := s.endpoints.List(r.Context(), filter)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, endpoints)
}

func (s *Server) createEndpoint(w http.ResponseWriter, r *http.Request) {
	spec, err := decodeSpec(w, r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	endpoint, err := s.endpoints.Create(r.Context(), spec)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, endpoint)
}

func (s *Server) getEndpoint(w http.ResponseWriter, r *http.Request) {
	endpoint, err := s.endpoints.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, endpoint)
}

func (s *Server) updateEndpoint(w http.ResponseWriter, r *http.Request) {
	spec, err := decodeSpec(w, r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	endpoint, err := s.endpoints.Update(r.Context(), mux.Vars(r)["id"], spec)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, endpoint)
}

func (s *Server) deleteEndpoint(w http.ResponseWriter, r *http.Request) {
	if err := s.endpoints.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) probeOne(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	kind, err := models.ParseProbeKind(vars["kind"])
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	result, err := s.engine.ProbeOne(r.Context(), vars["id"], kind)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) evaluateOne(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.EvaluateOne(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) probeAll(w http.ResponseWriter, r *http.Request) {
	kind, err := models.ParseProbeKind(mux.Vars(r)["kind"])
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	report, err := s.engine.RunProbeAll(r.Context(), kind)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) healthAll(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.RunHealthAll(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) recent(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	records, err := s.history.QueryRecent(r.Context(), mux.Vars(r)["id"], window)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if records == nil {
		records = []models.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) trend(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	metric, err := models.ParseTrendMetric(vars["metric"])
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	window, err := parseWindow(r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	points, err := s.history.QueryTrend(r.Context(), vars["id"], metric, window)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}
