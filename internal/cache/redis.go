package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/lox/aqiforecast/internal/models"
)

const (
	keyPrefix  = "aqi:forecast"
	DefaultTTL = 24 * time.Hour
)

// ForecastCache stores forecast results in Redis as JSON.
type ForecastCache struct {
	client *redis.Client
	ttl    time.Duration
}

func New(client *redis.Client, ttl time.Duration) *ForecastCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ForecastCache{client: client, ttl: ttl}
}

// Connect parses a redis:// URL and pings the server, retrying with
// exponential backoff for at most maxWait.
func Connect(ctx context.Context, url string, ttl, maxWait time.Duration) (*ForecastCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opt.DialTimeout == 0 {
		opt.DialTimeout = 5 * time.Second
	}
	if opt.ReadTimeout == 0 {
		opt.ReadTimeout = 2 * time.Second
	}
	if opt.WriteTimeout == 0 {
		opt.WriteTimeout = 2 * time.Second
	}
	client := redis.NewClient(opt)

	operation := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, opt.DialTimeout)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			log.Printf("cache: redis ping %s: %v", opt.Addr, err)
			return err
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = maxWait
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", opt.Addr, err)
	}

	log.Printf("cache: connected to redis at %s (ttl %s)", opt.Addr, ttl)
	return New(client, ttl), nil
}

// Key builds the Redis key for a forecast. The city is query-escaped so a
// name containing ':' cannot collide with another key.
func Key(fingerprint, city string, horizon int) string {
	return fmt.Sprintf("%s:%s:%s:%d", keyPrefix, fingerprint, url.QueryEscape(city), horizon)
}

// Get returns the cached result, or nil, nil when the key is absent.
func (c *ForecastCache) Get(ctx context.Context, fingerprint, city string, horizon int) (*models.ForecastResult, error) {
	val, err := c.client.Get(ctx, Key(fingerprint, city, horizon)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var res models.ForecastResult
	if err := json.Unmarshal(val, &res); err != nil {
		return nil, fmt.Errorf("decode cached forecast: %w", err)
	}
	if len(res.Points) != horizon || res.City != city {
		return nil, fmt.Errorf("cached forecast for %s/%d holds %s with %d points", city, horizon, res.City, len(res.Points))
	}
	return &res, nil
}

func (c *ForecastCache) Set(ctx context.Context, fingerprint string, res models.ForecastResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode forecast: %w", err)
	}
	if err := c.client.Set(ctx, Key(fingerprint, res.City, res.Horizon), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *ForecastCache) Close() error {
	return c.client.Close()
}
