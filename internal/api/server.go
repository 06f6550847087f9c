package api

import (
	"context"
	"html/template"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lox/aqiforecast/internal/chart"
	"github.com/lox/aqiforecast/internal/narrative"
	"github.com/lox/aqiforecast/internal/pipeline"
)

// historyDays is how much history the dashboard chart shows.
const historyDays = 180

// DefaultCity is preselected on the dashboard when it has enough data.
const DefaultCity = "Delhi"

type Server struct {
	svc      *pipeline.Service
	outlooks *narrative.Outlooks
	charts   *chart.Cache
	addr     string
	tmpl     *template.Template
	validate *validator.Validate
}

func NewServer(svc *pipeline.Service, outlooks *narrative.Outlooks, addr string) *Server {
	if outlooks == nil {
		outlooks = narrative.New(nil)
	}
	return &Server{
		svc:      svc,
		outlooks: outlooks,
		charts:   chart.NewCache(10 * time.Minute),
		addr:     addr,
		tmpl:     newTemplates(),
		validate: validator.New(),
	}
}

// Reset drops rendered charts and outlooks after a dataset reload.
func (s *Server) Reset() {
	s.charts.Reset()
	s.outlooks.Reset()
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/chart.png", s.handleChartImage)
	mux.HandleFunc("/api/cities", s.handleAPICities)
	mux.HandleFunc("/api/history", s.handleAPIHistory)
	mux.HandleFunc("/api/forecast", s.handleAPIForecast)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
