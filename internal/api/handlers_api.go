package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/lox/aqiforecast/internal/forecast"
	"github.com/lox/aqiforecast/internal/models"
)

var errBadRequest = errors.New("bad request")

func (s *Server) handleAPICities(w http.ResponseWriter, r *http.Request) {
	cities, err := s.svc.ValidCities()
	if err != nil {
		writeError(w, err)
		return
	}
	if cities == nil {
		cities = []models.CitySummary{}
	}
	writeJSON(w, http.StatusOK, cities)
}

func (s *Server) handleAPIHistory(w http.ResponseWriter, r *http.Request) {
	req := historyRequest{City: strings.TrimSpace(r.URL.Query().Get("city")), Days: historyDays}
	if v := r.URL.Query().Get("days"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, fmt.Errorf("%w: days must be an integer", errBadRequest))
			return
		}
		req.Days = days
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	points, err := s.svc.History(req.City, req.Days)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{City: req.City, Points: points})
}

func (s *Server) handleAPIForecast(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseForecastRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := s.svc.Forecast(r.Context(), req.City, req.Horizon)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := ForecastResponse{
		ForecastResult: res,
		Category:       forecast.CategoryFor(res.Points[0].Predicted).Name,
		Outlook:        s.outlooks.Outlook(r.Context(), s.fingerprint(), res),
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseForecastRequest reads city and horizon from the query string. A
// missing horizon means DefaultHorizon; a non-numeric one is invalid.
func (s *Server) parseForecastRequest(r *http.Request) (forecastRequest, error) {
	q := r.URL.Query()
	req := forecastRequest{
		City:    strings.TrimSpace(q.Get("city")),
		Horizon: forecast.DefaultHorizon,
	}
	if v := strings.TrimSpace(q.Get("horizon")); v != "" {
		h, err := strconv.Atoi(v)
		if err != nil {
			return req, fmt.Errorf("%w: %q is not a number of days", forecast.ErrInvalidHorizon, v)
		}
		req.Horizon = h
	}
	if err := s.validate.Struct(req); err != nil {
		return req, fmt.Errorf("%w: city is required", errBadRequest)
	}
	return req, nil
}

func (s *Server) fingerprint() string {
	if ds := s.svc.Dataset(); ds != nil {
		return ds.Fingerprint
	}
	return ""
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, forecast.ErrInvalidHorizon), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, forecast.ErrInsufficientData):
		return http.StatusNotFound
	case errors.Is(err, forecast.ErrTrainingFailed):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("api: %v", err)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: write response: %v", err)
	}
}
