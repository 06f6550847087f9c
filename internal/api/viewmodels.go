package api

import (
	"html/template"
	"strconv"
	"time"

	"github.com/lox/aqiforecast/internal/forecast"
	"github.com/lox/aqiforecast/internal/models"
)

// IndexData is everything the dashboard template renders.
type IndexData struct {
	Cities       []models.CitySummary
	SelectedCity string
	Horizon      int
	MinHorizon   int
	MaxHorizon   int
	HorizonStep  int
	MinRecords   int
	Palette      forecast.Palette
	Categories   []forecast.Category
	Dataset      *models.Dataset
	Forecast     *ForecastView
	Error        string // inline message for a failed forecast
}

// ForecastView is a generated forecast prepared for display.
type ForecastView struct {
	City          string
	Horizon       int
	LatestAQI     float64
	LatestDate    time.Time
	LatestCat     forecast.Category
	Tomorrow      models.ForecastPoint
	TomorrowCat   forecast.Category
	Outlook       string
	Rows          []models.ForecastPoint
	ChartJSON     template.JS
	ChartImageURL string
}

// ChartPayload feeds the client-side chart. History and forecast share one
// label axis; missing values are null.
type ChartPayload struct {
	Labels    []string   `json:"labels"`
	History   []*float64 `json:"history"`
	Predicted []*float64 `json:"predicted"`
	Lower     []*float64 `json:"lower"`
	Upper     []*float64 `json:"upper"`
}

type ForecastResponse struct {
	models.ForecastResult
	Category string `json:"category"`
	Outlook  string `json:"outlook"`
}

type HistoryResponse struct {
	City   string         `json:"city"`
	Points []models.Point `json:"points"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthStatus struct {
	Status        string          `json:"status"`
	Dataset       *models.Dataset `json:"dataset,omitempty"`
	Cities        int             `json:"cities"`
	CachedModels  int             `json:"cached_models"`
	MinRecords    int             `json:"min_records"`
	SchemaVersion int             `json:"schema_version"`
	Errors        []string        `json:"errors,omitempty"`
}

type forecastRequest struct {
	City    string `validate:"required,max=100"`
	Horizon int
}

type historyRequest struct {
	City string `validate:"required,max=100"`
	Days int    `validate:"min=0,max=36500"`
}

func formatAQI(f float64) string {
	return strconv.FormatFloat(f, 'f', 0, 64)
}
