package models

import (
	"database/sql"
	"time"
)

// DateLayout is the calendar-date format used in the dataset, the store and the API.
const DateLayout = "2006-01-02"

type Record struct {
	City    string
	Date    time.Time
	AQI     sql.NullFloat64
	Imputed bool // AQI was forward-filled from an earlier day
}

type Point struct {
	Date time.Time `json:"date"`
	AQI  float64   `json:"aqi"`
}

// Series is one city's history, strictly ascending by date.
type Series struct {
	City   string
	Points []Point
}

func (s Series) Len() int {
	return len(s.Points)
}

func (s Series) LastDate() time.Time {
	if len(s.Points) == 0 {
		return time.Time{}
	}
	return s.Points[len(s.Points)-1].Date
}

func (s Series) Values() []float64 {
	vals := make([]float64, len(s.Points))
	for i, p := range s.Points {
		vals[i] = p.AQI
	}
	return vals
}

// Tail returns the last n points (or all of them when n <= 0).
func (s Series) Tail(n int) []Point {
	if n <= 0 || n >= len(s.Points) {
		return s.Points
	}
	return s.Points[len(s.Points)-n:]
}

type ForecastPoint struct {
	Date      time.Time `json:"date"`
	Predicted float64   `json:"predicted"`
	Lower     float64   `json:"lower"`
	Upper     float64   `json:"upper"`
}

type ForecastResult struct {
	City         string          `json:"city"`
	Horizon      int             `json:"horizon"`
	LastObserved time.Time       `json:"last_observed"`
	Points       []ForecastPoint `json:"points"`
}

// Dataset describes the CSV file the record table was built from.
type Dataset struct {
	Path        string    `json:"path"`
	Fingerprint string    `json:"fingerprint"` // hex SHA-256 of the file contents
	Rows        int       `json:"rows"`
	Skipped     int       `json:"skipped"`
	Cities      int       `json:"cities"`
	LoadedAt    time.Time `json:"loaded_at"`
}

type CitySummary struct {
	City         string    `json:"city"`
	ValidRecords int       `json:"valid_records"`
	FirstDate    time.Time `json:"first_date"`
	LastDate     time.Time `json:"last_date"`
	LatestAQI    float64   `json:"latest_aqi"`
}
