package store

import (
	"database/sql"
	"testing"
	"time"

	"github.com/lox/aqiforecast/internal/models"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func aqi(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: true}
}

func TestMigrate_Idempotent(t *testing.T) {
	store := setupTestStore(t)

	if err := store.Migrate(); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	version, err := store.MigrationVersion()
	if err != nil {
		t.Fatalf("MigrationVersion: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("version = %d, want %d", version, len(migrations))
	}
}

func TestReplaceRecords_ReplacesTable(t *testing.T) {
	store := setupTestStore(t)

	first := []models.Record{
		{City: "Delhi", Date: day(2020, 1, 1), AQI: aqi(300)},
		{City: "Delhi", Date: day(2020, 1, 2), AQI: aqi(310)},
	}
	if _, err := store.ReplaceRecords(first); err != nil {
		t.Fatalf("ReplaceRecords: %v", err)
	}

	second := []models.Record{
		{City: "Mumbai", Date: day(2020, 1, 1), AQI: aqi(120)},
	}
	n, err := store.ReplaceRecords(second)
	if err != nil {
		t.Fatalf("ReplaceRecords: %v", err)
	}
	if n != 1 {
		t.Errorf("stored = %d, want 1", n)
	}

	count, err := store.CountValid("Delhi")
	if err != nil {
		t.Fatalf("CountValid: %v", err)
	}
	if count != 0 {
		t.Errorf("Delhi count after replace = %d, want 0", count)
	}
}

func TestReplaceRecords_DuplicateDateKeepsLast(t *testing.T) {
	store := setupTestStore(t)

	recs := []models.Record{
		{City: "Delhi", Date: day(2020, 1, 1), AQI: aqi(300)},
		{City: "Delhi", Date: day(2020, 1, 1), AQI: aqi(250)},
	}
	n, err := store.ReplaceRecords(recs)
	if err != nil {
		t.Fatalf("ReplaceRecords: %v", err)
	}
	if n != 1 {
		t.Fatalf("stored = %d, want 1", n)
	}

	series, err := store.CitySeries("Delhi")
	if err != nil {
		t.Fatalf("CitySeries: %v", err)
	}
	if series.Points[0].AQI != 250 {
		t.Errorf("AQI = %v, want 250", series.Points[0].AQI)
	}
}

func TestCitySeries_SortedAndSkipsMissing(t *testing.T) {
	store := setupTestStore(t)

	recs := []models.Record{
		{City: "Delhi", Date: day(2020, 1, 3), AQI: aqi(303)},
		{City: "Delhi", Date: day(2020, 1, 1), AQI: aqi(301)},
		{City: "Delhi", Date: day(2020, 1, 2)},
		{City: "Mumbai", Date: day(2020, 1, 2), AQI: aqi(99)},
	}
	if _, err := store.ReplaceRecords(recs); err != nil {
		t.Fatalf("ReplaceRecords: %v", err)
	}

	series, err := store.CitySeries("Delhi")
	if err != nil {
		t.Fatalf("CitySeries: %v", err)
	}
	if series.Len() != 2 {
		t.Fatalf("len = %d, want 2", series.Len())
	}
	if !series.Points[0].Date.Equal(day(2020, 1, 1)) || !series.Points[1].Date.Equal(day(2020, 1, 3)) {
		t.Errorf("dates = %v, %v; want 2020-01-01, 2020-01-03", series.Points[0].Date, series.Points[1].Date)
	}
	if series.City != "Delhi" {
		t.Errorf("City = %q, want Delhi", series.City)
	}
}

func TestCitySummaries_Threshold(t *testing.T) {
	store := setupTestStore(t)

	var recs []models.Record
	start := day(2020, 1, 1)
	for i := 0; i < 10; i++ {
		recs = append(recs, models.Record{City: "Delhi", Date: start.AddDate(0, 0, i), AQI: aqi(float64(200 + i))})
	}
	for i := 0; i < 3; i++ {
		recs = append(recs, models.Record{City: "Shillong", Date: start.AddDate(0, 0, i), AQI: aqi(40)})
	}
	if _, err := store.ReplaceRecords(recs); err != nil {
		t.Fatalf("ReplaceRecords: %v", err)
	}

	cities, err := store.CitySummaries(5)
	if err != nil {
		t.Fatalf("CitySummaries: %v", err)
	}
	if len(cities) != 1 {
		t.Fatalf("len(cities) = %d, want 1", len(cities))
	}
	cs := cities[0]
	if cs.City != "Delhi" {
		t.Errorf("City = %q, want Delhi", cs.City)
	}
	if cs.ValidRecords != 10 {
		t.Errorf("ValidRecords = %d, want 10", cs.ValidRecords)
	}
	if !cs.FirstDate.Equal(start) || !cs.LastDate.Equal(start.AddDate(0, 0, 9)) {
		t.Errorf("range = %v..%v", cs.FirstDate, cs.LastDate)
	}
	if cs.LatestAQI != 209 {
		t.Errorf("LatestAQI = %v, want 209", cs.LatestAQI)
	}
}

func TestDatasetLoads(t *testing.T) {
	store := setupTestStore(t)

	ds, err := store.LatestDataset()
	if err != nil {
		t.Fatalf("LatestDataset: %v", err)
	}
	if ds != nil {
		t.Fatalf("expected no dataset, got %+v", ds)
	}

	load, err := store.StartLoad("city_day.csv")
	if err != nil {
		t.Fatalf("StartLoad: %v", err)
	}
	load.Fingerprint = sql.NullString{String: "abc123", Valid: true}
	load.RowsParsed = sql.NullInt64{Int64: 12, Valid: true}
	load.RowsStored = sql.NullInt64{Int64: 10, Valid: true}
	load.RowsSkipped = sql.NullInt64{Int64: 2, Valid: true}
	load.Cities = sql.NullInt64{Int64: 1, Valid: true}
	load.Success = true
	if err := store.CompleteLoad(load); err != nil {
		t.Fatalf("CompleteLoad: %v", err)
	}

	ds, err = store.LatestDataset()
	if err != nil {
		t.Fatalf("LatestDataset: %v", err)
	}
	if ds == nil {
		t.Fatal("LatestDataset returned nil")
	}
	if ds.Fingerprint != "abc123" || ds.Rows != 10 || ds.Skipped != 2 || ds.Cities != 1 {
		t.Errorf("dataset = %+v", ds)
	}
}

func TestCitySummaries_IgnoresImputed(t *testing.T) {
	store := setupTestStore(t)

	start := day(2020, 1, 1)
	recs := []models.Record{{City: "Ghost", Date: start, AQI: aqi(150)}}
	for i := 1; i < 10; i++ {
		recs = append(recs, models.Record{City: "Ghost", Date: start.AddDate(0, 0, i), AQI: aqi(150), Imputed: true})
	}
	for i := 0; i < 6; i++ {
		recs = append(recs, models.Record{City: "Delhi", Date: start.AddDate(0, 0, i), AQI: aqi(float64(200 + i))})
	}
	recs = append(recs, models.Record{City: "Delhi", Date: start.AddDate(0, 0, 6), AQI: aqi(205), Imputed: true})
	if _, err := store.ReplaceRecords(recs); err != nil {
		t.Fatalf("ReplaceRecords: %v", err)
	}

	cities, err := store.CitySummaries(5)
	if err != nil {
		t.Fatalf("CitySummaries: %v", err)
	}
	if len(cities) != 1 || cities[0].City != "Delhi" {
		t.Fatalf("cities = %+v, want only Delhi", cities)
	}
	if cities[0].ValidRecords != 6 {
		t.Errorf("ValidRecords = %d, want 6", cities[0].ValidRecords)
	}

	tests := []struct {
		city string
		want int
	}{
		{"Ghost", 1},
		{"Delhi", 6},
	}
	for _, tt := range tests {
		n, err := store.CountValid(tt.city)
		if err != nil {
			t.Fatalf("CountValid(%s): %v", tt.city, err)
		}
		if n != tt.want {
			t.Errorf("CountValid(%s) = %d, want %d", tt.city, n, tt.want)
		}
	}

	// Filled values still feed the training series.
	series, err := store.CitySeries("Ghost")
	if err != nil {
		t.Fatalf("CitySeries: %v", err)
	}
	if series.Len() != 10 {
		t.Errorf("Ghost series len = %d, want 10", series.Len())
	}
}
