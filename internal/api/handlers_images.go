package api

import (
	"fmt"
	"log"
	"net/http"

	"github.com/lox/aqiforecast/internal/chart"
)

// handleChartImage serves the history + forecast chart as a PNG. Rendered
// charts are cached per dataset, city and horizon.
func (s *Server) handleChartImage(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseForecastRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	key := fmt.Sprintf("%s:%s:%d", s.fingerprint(), req.City, req.Horizon)
	if data, ok := s.charts.Get(key); ok {
		s.servePNG(w, data)
		return
	}

	res, err := s.svc.Forecast(r.Context(), req.City, req.Horizon)
	if err != nil {
		writeError(w, err)
		return
	}
	history, err := s.svc.History(req.City, historyDays)
	if err != nil {
		writeError(w, err)
		return
	}

	data, err := chart.Render(chart.Data{City: req.City, History: history, Forecast: res})
	if err != nil {
		log.Printf("chart: render %s: %v", req.City, err)
		http.Error(w, "Failed to render chart", http.StatusInternalServerError)
		return
	}
	s.charts.Set(key, data)
	s.servePNG(w, data)
}

func (s *Server) servePNG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.Write(data)
}
