package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lox/aqiforecast/internal/forecast"
	"github.com/lox/aqiforecast/internal/ingest"
	"github.com/lox/aqiforecast/internal/metrics"
	"github.com/lox/aqiforecast/internal/models"
	"github.com/lox/aqiforecast/internal/store"
)

// DefaultMinRecords is the number of valid records a city needs before it is
// offered for forecasting.
const DefaultMinRecords = 365

// ResultCache stores finished forecasts keyed by dataset fingerprint, city
// and horizon. Get returns nil, nil on a miss.
type ResultCache interface {
	Get(ctx context.Context, fingerprint, city string, horizon int) (*models.ForecastResult, error)
	Set(ctx context.Context, fingerprint string, res models.ForecastResult) error
}

type Config struct {
	DataPath   string
	MinRecords int
}

// Service runs the forecast pipeline: horizon check, series extraction,
// cached model training and prediction.
type Service struct {
	store      *store.Store
	models     *ModelCache
	results    ResultCache
	dataPath   string
	minRecords int

	// dataMu is held for writing across a reload and for reading across a
	// forecast, so a result is always stored under the fingerprint of the
	// data it was computed from.
	dataMu  sync.RWMutex
	mu      sync.RWMutex
	dataset *models.Dataset
}

func NewService(st *store.Store, trainer forecast.Trainer, cfg Config) *Service {
	if cfg.MinRecords <= 0 {
		cfg.MinRecords = DefaultMinRecords
	}
	return &Service{
		store:      st,
		models:     NewModelCache(trainer),
		dataPath:   cfg.DataPath,
		minRecords: cfg.MinRecords,
	}
}

// SetResultCache enables the optional forecast result cache.
func (s *Service) SetResultCache(rc ResultCache) {
	s.results = rc
}

// Reload rebuilds the record table from the dataset file and clears every
// cached model. Reloads are serialised and wait for running forecasts.
func (s *Service) Reload() error {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()

	ds, err := ingest.LoadFile(s.store, s.dataPath)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}
	s.setDataset(ds)

	log.Printf("pipeline: dataset %s ready (fingerprint %.12s)", ds.Path, ds.Fingerprint)
	return nil
}

// Resume adopts the last successful load recorded in the store. It lets a
// file-backed database keep serving when the dataset file cannot be read,
// and reports false when no load has succeeded yet.
func (s *Service) Resume() (bool, error) {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()

	ds, err := s.store.LatestDataset()
	if err != nil {
		return false, fmt.Errorf("latest dataset: %w", err)
	}
	if ds == nil {
		return false, nil
	}
	s.setDataset(ds)

	log.Printf("pipeline: resumed dataset %s loaded at %s (fingerprint %.12s)",
		ds.Path, ds.LoadedAt.Format(time.RFC3339), ds.Fingerprint)
	return true, nil
}

func (s *Service) setDataset(ds *models.Dataset) {
	s.mu.Lock()
	s.dataset = ds
	s.mu.Unlock()
	s.models.Reset()
}

// Dataset returns the currently loaded dataset, or nil before the first load.
func (s *Service) Dataset() *models.Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dataset
}

func (s *Service) MinRecords() int {
	return s.minRecords
}

func (s *Service) CachedModels() int {
	return s.models.Len()
}

func (s *Service) SchemaVersion() (int, error) {
	return s.store.MigrationVersion()
}

// ValidCities lists the cities with at least MinRecords valid records.
func (s *Service) ValidCities() ([]models.CitySummary, error) {
	cities, err := s.store.CitySummaries(s.minRecords)
	if err != nil {
		return nil, fmt.Errorf("list cities: %w", err)
	}
	return cities, nil
}

// Series returns the city's history, or ErrInsufficientData when the city
// is unknown or below MinRecords.
func (s *Service) Series(city string) (models.Series, error) {
	n, err := s.store.CountValid(city)
	if err != nil {
		return models.Series{}, fmt.Errorf("count records for %s: %w", city, err)
	}
	if n < s.minRecords {
		return models.Series{}, fmt.Errorf("%w: %s has %d valid records, need %d",
			forecast.ErrInsufficientData, city, n, s.minRecords)
	}
	series, err := s.store.CitySeries(city)
	if err != nil {
		return models.Series{}, fmt.Errorf("load series for %s: %w", city, err)
	}
	return series, nil
}

// History returns the last days points of the city's series (all of them
// when days <= 0).
func (s *Service) History(city string, days int) ([]models.Point, error) {
	series, err := s.Series(city)
	if err != nil {
		return nil, err
	}
	return series.Tail(days), nil
}

// Forecast predicts horizon days past the city's last observation. A
// successful result always holds exactly horizon points. An invalid horizon
// is rejected before any data is read.
func (s *Service) Forecast(ctx context.Context, city string, horizon int) (models.ForecastResult, error) {
	start := time.Now()
	res, err := s.forecast(ctx, city, horizon)
	metrics.ForecastLatency.Observe(time.Since(start).Seconds())
	metrics.ForecastRequests.WithLabelValues(statusLabel(err)).Inc()
	return res, err
}

func (s *Service) forecast(ctx context.Context, city string, horizon int) (models.ForecastResult, error) {
	if err := forecast.ValidateHorizon(horizon); err != nil {
		return models.ForecastResult{}, err
	}

	s.dataMu.RLock()
	defer s.dataMu.RUnlock()

	var fingerprint string
	if ds := s.Dataset(); ds != nil {
		fingerprint = ds.Fingerprint
	}

	if s.results != nil && fingerprint != "" {
		cached, err := s.results.Get(ctx, fingerprint, city, horizon)
		switch {
		case err != nil:
			metrics.ResultCacheLookups.WithLabelValues("error").Inc()
			log.Printf("pipeline: result cache get %s/%d: %v", city, horizon, err)
		case cached != nil && len(cached.Points) != horizon:
			metrics.ResultCacheLookups.WithLabelValues("error").Inc()
			log.Printf("pipeline: result cache for %s/%d has %d points, recomputing", city, horizon, len(cached.Points))
		case cached != nil:
			metrics.ResultCacheLookups.WithLabelValues("hit").Inc()
			return *cached, nil
		default:
			metrics.ResultCacheLookups.WithLabelValues("miss").Inc()
		}
	}

	model, err := s.models.Get(city, s.Series)
	if err != nil {
		return models.ForecastResult{}, err
	}
	res, err := model.Predict(horizon)
	if err != nil {
		return models.ForecastResult{}, err
	}

	if s.results != nil && fingerprint != "" {
		if err := s.results.Set(ctx, fingerprint, res); err != nil {
			log.Printf("pipeline: result cache set %s/%d: %v", city, horizon, err)
		}
	}
	return res, nil
}

// Warm trains models for the given cities ahead of the first request.
// Failures are logged and skipped.
func (s *Service) Warm(cities []string) {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()

	for _, city := range cities {
		if _, err := s.models.Get(city, s.Series); err != nil {
			log.Printf("pipeline: warm-up for %s skipped: %v", city, err)
		}
	}
}

func statusLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, forecast.ErrInvalidHorizon):
		return "invalid_horizon"
	case errors.Is(err, forecast.ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, forecast.ErrTrainingFailed):
		return "training_failed"
	default:
		return "error"
	}
}
