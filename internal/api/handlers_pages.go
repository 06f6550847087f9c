package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"net/url"
	"strconv"

	"github.com/lox/aqiforecast/internal/forecast"
	"github.com/lox/aqiforecast/internal/models"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	cities, err := s.svc.ValidCities()
	if err != nil {
		log.Printf("index: list cities: %v", err)
		http.Error(w, "Failed to load cities", http.StatusInternalServerError)
		return
	}

	data := IndexData{
		Cities:       cities,
		SelectedCity: defaultCity(cities),
		Horizon:      forecast.DefaultHorizon,
		MinHorizon:   forecast.MinHorizon,
		MaxHorizon:   forecast.MaxHorizon,
		HorizonStep:  forecast.HorizonStep,
		MinRecords:   s.svc.MinRecords(),
		Palette:      forecast.DefaultPalette,
		Categories:   forecast.Categories,
		Dataset:      s.svc.Dataset(),
	}

	status := http.StatusOK
	if r.URL.Query().Has("city") {
		req, err := s.parseForecastRequest(r)
		if req.City != "" {
			data.SelectedCity = req.City
		}
		if err == nil {
			data.Horizon = req.Horizon
			var view *ForecastView
			view, err = s.buildForecastView(r.Context(), req.City, req.Horizon)
			if err == nil {
				data.Forecast = view
				data.Palette = view.TomorrowCat.Palette
			}
		}
		if err != nil {
			data.Error = userMessage(err, data.SelectedCity)
			if errors.Is(err, forecast.ErrInvalidHorizon) || errors.Is(err, errBadRequest) {
				status = http.StatusBadRequest
			} else if statusFor(err) == http.StatusInternalServerError {
				log.Printf("index: forecast %s: %v", data.SelectedCity, err)
			}
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.tmpl.ExecuteTemplate(w, "index.html", data); err != nil {
		log.Printf("template error: %v", err)
	}
}

func (s *Server) buildForecastView(ctx context.Context, city string, horizon int) (*ForecastView, error) {
	res, err := s.svc.Forecast(ctx, city, horizon)
	if err != nil {
		return nil, err
	}
	history, err := s.svc.History(city, historyDays)
	if err != nil {
		return nil, err
	}

	view := &ForecastView{
		City:     city,
		Horizon:  horizon,
		Tomorrow: res.Points[0],
		Rows:     res.Points,
		Outlook:  s.outlooks.Outlook(ctx, s.fingerprint(), res),
		ChartImageURL: "/chart.png?" + url.Values{
			"city":    {city},
			"horizon": {strconv.Itoa(horizon)},
		}.Encode(),
	}
	view.TomorrowCat = forecast.CategoryFor(view.Tomorrow.Predicted)
	if n := len(history); n > 0 {
		view.LatestAQI = history[n-1].AQI
		view.LatestDate = history[n-1].Date
		view.LatestCat = forecast.CategoryFor(view.LatestAQI)
	}

	payload, err := json.Marshal(chartPayload(history, res))
	if err != nil {
		return nil, fmt.Errorf("encode chart data: %w", err)
	}
	view.ChartJSON = template.JS(payload)
	return view, nil
}

// chartPayload lays history and forecast out on one date axis.
func chartPayload(history []models.Point, res models.ForecastResult) ChartPayload {
	n := len(history) + len(res.Points)
	p := ChartPayload{
		Labels:    make([]string, 0, n),
		History:   make([]*float64, 0, n),
		Predicted: make([]*float64, 0, n),
		Lower:     make([]*float64, 0, n),
		Upper:     make([]*float64, 0, n),
	}
	for i, h := range history {
		v := h.AQI
		p.Labels = append(p.Labels, h.Date.Format(models.DateLayout))
		p.History = append(p.History, &v)
		if i == len(history)-1 {
			// Start the forecast line at the last observation so the two connect.
			p.Predicted = append(p.Predicted, &v)
			p.Lower = append(p.Lower, &v)
			p.Upper = append(p.Upper, &v)
		} else {
			p.Predicted = append(p.Predicted, nil)
			p.Lower = append(p.Lower, nil)
			p.Upper = append(p.Upper, nil)
		}
	}
	for _, f := range res.Points {
		pred, lo, hi := f.Predicted, f.Lower, f.Upper
		p.Labels = append(p.Labels, f.Date.Format(models.DateLayout))
		p.History = append(p.History, nil)
		p.Predicted = append(p.Predicted, &pred)
		p.Lower = append(p.Lower, &lo)
		p.Upper = append(p.Upper, &hi)
	}
	return p
}

func defaultCity(cities []models.CitySummary) string {
	for _, c := range cities {
		if c.City == DefaultCity {
			return c.City
		}
	}
	if len(cities) > 0 {
		return cities[0].City
	}
	return ""
}

func userMessage(err error, city string) string {
	switch {
	case errors.Is(err, forecast.ErrInvalidHorizon):
		return fmt.Sprintf("Forecast horizon must be between %d and %d days.", forecast.MinHorizon, forecast.MaxHorizon)
	case errors.Is(err, errBadRequest):
		return "Select a city to forecast."
	case errors.Is(err, forecast.ErrInsufficientData):
		return fmt.Sprintf("Not enough historical data to forecast %s.", city)
	case errors.Is(err, forecast.ErrTrainingFailed):
		return fmt.Sprintf("The forecast model could not be fitted for %s.", city)
	default:
		return "Something went wrong generating the forecast. Please try again."
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthStatus{
		Status:       "ok",
		Dataset:      s.svc.Dataset(),
		CachedModels: s.svc.CachedModels(),
		MinRecords:   s.svc.MinRecords(),
	}

	if health.Dataset == nil {
		health.Status = "loading"
		health.Errors = append(health.Errors, "no dataset loaded")
	}
	cities, err := s.svc.ValidCities()
	if err != nil {
		health.Status = "error"
		health.Errors = append(health.Errors, err.Error())
	}
	health.Cities = len(cities)
	if health.SchemaVersion, err = s.svc.SchemaVersion(); err != nil {
		health.Status = "error"
		health.Errors = append(health.Errors, err.Error())
	}

	status := http.StatusOK
	if health.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}
