package api

import (
	"embed"
	"html/template"

	"github.com/lox/aqiforecast/internal/forecast"
	"github.com/lox/aqiforecast/internal/models"
)

//go:embed templates/*
var templateFS embed.FS

// newTemplates creates and parses the HTML templates with custom functions.
func newTemplates() *template.Template {
	funcs := template.FuncMap{
		"category": func(aqi float64) forecast.Category {
			return forecast.CategoryFor(aqi)
		},
		"date": func(p models.ForecastPoint) string {
			return p.Date.Format("Mon 2 Jan 2006")
		},
		"round": func(f float64) string {
			return formatAQI(f)
		},
	}
	return template.Must(template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html"))
}
