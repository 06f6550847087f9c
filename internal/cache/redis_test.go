package cache

import (
	"context"
	"reflect"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/lox/aqiforecast/internal/models"
)

func setupCache(t *testing.T) (*ForecastCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, time.Hour), mr
}

func sampleResult() models.ForecastResult {
	last := time.Date(2020, 6, 30, 0, 0, 0, 0, time.UTC)
	res := models.ForecastResult{City: "Delhi", Horizon: 7, LastObserved: last}
	for k := 1; k <= 7; k++ {
		res.Points = append(res.Points, models.ForecastPoint{
			Date:      last.AddDate(0, 0, k),
			Predicted: float64(100 + k),
			Lower:     float64(80 + k),
			Upper:     float64(120 + k),
		})
	}
	return res
}

func TestForecastCache_RoundTrip(t *testing.T) {
	c, mr := setupCache(t)
	ctx := context.Background()

	got, err := c.Get(ctx, "abc", "Delhi", 7)
	if err != nil || got != nil {
		t.Fatalf("Get on empty cache = %v, %v; want nil, nil", got, err)
	}

	want := sampleResult()
	if err := c.Set(ctx, "abc", want); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !mr.Exists("aqi:forecast:abc:Delhi:7") {
		t.Fatalf("expected key aqi:forecast:abc:Delhi:7, have %v", mr.Keys())
	}
	if ttl := mr.TTL("aqi:forecast:abc:Delhi:7"); ttl != time.Hour {
		t.Errorf("TTL = %v, want 1h", ttl)
	}

	got, err = c.Get(ctx, "abc", "Delhi", 7)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || !reflect.DeepEqual(*got, want) {
		t.Errorf("Get = %+v, want %+v", got, want)
	}

	// Another dataset version is a different key.
	if got, _ := c.Get(ctx, "def", "Delhi", 7); got != nil {
		t.Errorf("Get for another fingerprint = %+v, want nil", got)
	}
}

func TestForecastCache_Expiry(t *testing.T) {
	c, mr := setupCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "abc", sampleResult()); err != nil {
		t.Fatalf("Set: %v", err)
	}
	mr.FastForward(2 * time.Hour)
	if got, err := c.Get(ctx, "abc", "Delhi", 7); err != nil || got != nil {
		t.Errorf("Get after expiry = %v, %v; want nil, nil", got, err)
	}
}

func TestForecastCache_CorruptValue(t *testing.T) {
	c, mr := setupCache(t)
	mr.Set(Key("abc", "Delhi", 7), "not json")

	if _, err := c.Get(context.Background(), "abc", "Delhi", 7); err == nil {
		t.Error("expected decode error for corrupt value")
	}
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := Connect(context.Background(), "redis://"+mr.Addr(), 0, time.Second)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()
	if c.ttl != DefaultTTL {
		t.Errorf("ttl = %v, want %v", c.ttl, DefaultTTL)
	}
}

func TestConnect_GivesUp(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	start := time.Now()
	_, err := Connect(context.Background(), "redis://"+addr, time.Hour, 500*time.Millisecond)
	if err == nil {
		t.Fatal("Connect succeeded against a closed server")
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("Connect took %v, want it bounded by maxWait", elapsed)
	}
}

func TestConnect_BadURL(t *testing.T) {
	if _, err := Connect(context.Background(), "not-a-url", time.Hour, time.Second); err == nil {
		t.Error("expected error for invalid URL")
	}
}

func TestForecastCache_RejectsMismatchedResult(t *testing.T) {
	c, mr := setupCache(t)
	ctx := context.Background()

	empty := `{"city":"Delhi","horizon":7,"last_observed":"2020-06-30T00:00:00Z","points":[]}`
	mr.Set(Key("abc", "Delhi", 7), empty)
	if got, err := c.Get(ctx, "abc", "Delhi", 7); err == nil {
		t.Errorf("Get with no points = %+v, want error", got)
	}

	short := sampleResult()
	short.Points = short.Points[:3]
	if err := c.Set(ctx, "abc", short); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got, err := c.Get(ctx, "abc", "Delhi", 7); err == nil {
		t.Errorf("Get with 3 of 7 points = %+v, want error", got)
	}
}

func TestKey(t *testing.T) {
	tests := []struct {
		city string
		want string
	}{
		{"Delhi", "aqi:forecast:abc:Delhi:7"},
		{"New Delhi", "aqi:forecast:abc:New+Delhi:7"},
		{"Delhi:7", "aqi:forecast:abc:Delhi%3A7:7"},
	}
	for _, tt := range tests {
		if got := Key("abc", tt.city, 7); got != tt.want {
			t.Errorf("Key(%q) = %q, want %q", tt.city, got, tt.want)
		}
	}
}
