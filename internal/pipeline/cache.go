package pipeline

import (
	"log"
	"sync"
	"time"

	"github.com/lox/aqiforecast/internal/forecast"
	"github.com/lox/aqiforecast/internal/metrics"
	"github.com/lox/aqiforecast/internal/models"
)

// SeriesFunc loads the training series for a city.
type SeriesFunc func(city string) (models.Series, error)

// ModelCache holds at most one fitted model per city. Concurrent misses for
// the same city share a single training run.
type ModelCache struct {
	trainer forecast.Trainer

	mu       sync.Mutex
	models   map[string]forecast.Model
	inflight map[string]*training
	gen      uint64 // bumped by Reset so stale trainings are not stored
}

type training struct {
	done  chan struct{}
	model forecast.Model
	err   error
}

func NewModelCache(trainer forecast.Trainer) *ModelCache {
	return &ModelCache{
		trainer:  trainer,
		models:   make(map[string]forecast.Model),
		inflight: make(map[string]*training),
	}
}

// Get returns the cached model for city, training one from load on a miss.
// Failed trainings are not cached.
func (c *ModelCache) Get(city string, load SeriesFunc) (forecast.Model, error) {
	c.mu.Lock()
	if m, ok := c.models[city]; ok {
		c.mu.Unlock()
		metrics.ModelCacheLookups.WithLabelValues("hit").Inc()
		return m, nil
	}
	if t, ok := c.inflight[city]; ok {
		c.mu.Unlock()
		metrics.ModelCacheLookups.WithLabelValues("shared").Inc()
		<-t.done
		return t.model, t.err
	}
	t := &training{done: make(chan struct{})}
	c.inflight[city] = t
	gen := c.gen
	c.mu.Unlock()

	metrics.ModelCacheLookups.WithLabelValues("miss").Inc()
	t.model, t.err = c.train(city, load)

	c.mu.Lock()
	if c.inflight[city] == t {
		delete(c.inflight, city)
	}
	if t.err == nil && c.gen == gen {
		c.models[city] = t.model
		metrics.CachedModels.Set(float64(len(c.models)))
	}
	c.mu.Unlock()
	close(t.done)

	return t.model, t.err
}

func (c *ModelCache) train(city string, load SeriesFunc) (forecast.Model, error) {
	series, err := load(city)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	m, err := c.trainer.Train(series)
	elapsed := time.Since(start)
	metrics.ModelTrainingLatency.WithLabelValues(city).Observe(elapsed.Seconds())
	if err != nil {
		metrics.ModelTrainingsTotal.WithLabelValues(city, "error").Inc()
		log.Printf("pipeline: training %s failed after %s: %v", city, elapsed.Round(time.Millisecond), err)
		return nil, err
	}
	metrics.ModelTrainingsTotal.WithLabelValues(city, "success").Inc()
	log.Printf("pipeline: trained model for %s on %d points in %s", city, series.Len(), elapsed.Round(time.Millisecond))
	return m, nil
}

// Reset drops every cached model. Trainings already running finish for
// their callers but are not stored.
func (c *ModelCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.models = make(map[string]forecast.Model)
	c.inflight = make(map[string]*training)
	c.gen++
	metrics.CachedModels.Set(0)
}

// Len returns the number of cached models.
func (c *ModelCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.models)
}
