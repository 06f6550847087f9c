package ingest

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/lox/aqiforecast/internal/models"
	"github.com/lox/aqiforecast/internal/store"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestValidateRecord(t *testing.T) {
	tests := []struct {
		name      string
		rec       *models.Record
		wantFlags []string
	}{
		{
			name:      "valid record - no flags",
			rec:       &models.Record{City: "Delhi", Date: day(2020, 1, 1), AQI: sql.NullFloat64{Float64: 180, Valid: true}},
			wantFlags: nil,
		},
		{
			name:      "missing aqi",
			rec:       &models.Record{City: "Delhi", Date: day(2020, 1, 1)},
			wantFlags: []string{FlagAQIMissing},
		},
		{
			name:      "negative aqi",
			rec:       &models.Record{City: "Delhi", Date: day(2020, 1, 1), AQI: sql.NullFloat64{Float64: -3, Valid: true}},
			wantFlags: []string{FlagAQINegative},
		},
		{
			name:      "implausible aqi",
			rec:       &models.Record{City: "Delhi", Date: day(2020, 1, 1), AQI: sql.NullFloat64{Float64: 2500, Valid: true}},
			wantFlags: []string{FlagAQIImplausible},
		},
		{
			name:      "zero aqi is valid",
			rec:       &models.Record{City: "Delhi", Date: day(2020, 1, 1), AQI: sql.NullFloat64{Float64: 0, Valid: true}},
			wantFlags: nil,
		},
		{
			name:      "future date",
			rec:       &models.Record{City: "Delhi", Date: time.Now().UTC().AddDate(1, 0, 0), AQI: sql.NullFloat64{Float64: 50, Valid: true}},
			wantFlags: []string{FlagDateFuture},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateRecord(tt.rec)
			sort.Strings(got)
			want := append([]string(nil), tt.wantFlags...)
			sort.Strings(want)
			if len(got) != len(want) {
				t.Errorf("ValidateRecord() = %v, want %v", got, want)
				return
			}
			for i := range want {
				if got[i] != want[i] {
					t.Errorf("ValidateRecord() = %v, want %v", got, want)
					return
				}
			}
		})
	}
}

func TestParse_ForwardFillsPerCity(t *testing.T) {
	csv := `City,Date,PM2.5,AQI,AQI_Bucket
Delhi,2020-01-01,120.5,300,Poor
Delhi,2020-01-02,,,
Delhi,2020-01-03,99.1,280,Poor
Mumbai,2020-01-01,,,
Mumbai,2020-01-02,40.2,110,Moderate
Mumbai,2020-01-03,,,
`
	recs, stats, err := Parse(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	want := []models.Record{
		{City: "Delhi", Date: day(2020, 1, 1), AQI: sql.NullFloat64{Float64: 300, Valid: true}},
		{City: "Delhi", Date: day(2020, 1, 2), AQI: sql.NullFloat64{Float64: 300, Valid: true}, Imputed: true},
		{City: "Delhi", Date: day(2020, 1, 3), AQI: sql.NullFloat64{Float64: 280, Valid: true}},
		{City: "Mumbai", Date: day(2020, 1, 2), AQI: sql.NullFloat64{Float64: 110, Valid: true}},
		{City: "Mumbai", Date: day(2020, 1, 3), AQI: sql.NullFloat64{Float64: 110, Valid: true}, Imputed: true},
	}
	if len(recs) != len(want) {
		t.Fatalf("len(recs) = %d, want %d: %+v", len(recs), len(want), recs)
	}
	for i := range want {
		if recs[i].City != want[i].City || !recs[i].Date.Equal(want[i].Date) || recs[i].AQI != want[i].AQI || recs[i].Imputed != want[i].Imputed {
			t.Errorf("recs[%d] = %+v, want %+v", i, recs[i], want[i])
		}
	}

	if stats.Rows != 6 {
		t.Errorf("Rows = %d, want 6", stats.Rows)
	}
	if stats.Imputed != 2 {
		t.Errorf("Imputed = %d, want 2", stats.Imputed)
	}
	if stats.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", stats.Dropped)
	}
}

func TestParse_UnorderedInputAndDuplicates(t *testing.T) {
	csv := `city,date,aqi
Delhi,2020-01-03,280
Delhi,2020-01-01,300
Delhi,2020-01-03,275
`
	recs, stats, err := Parse(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("len(recs) = %d, want 2", len(recs))
	}
	if !recs[0].Date.Before(recs[1].Date) {
		t.Errorf("records not sorted: %v, %v", recs[0].Date, recs[1].Date)
	}
	if recs[1].AQI.Float64 != 275 {
		t.Errorf("duplicate kept %v, want last value 275", recs[1].AQI.Float64)
	}
	if stats.Duplicates != 1 {
		t.Errorf("Duplicates = %d, want 1", stats.Duplicates)
	}
}

func TestParse_SkipsBadRowsAndNegativeAQI(t *testing.T) {
	csv := `City,Date,AQI
Delhi,not-a-date,100
,2020-01-01,100
Delhi,2020-01-01,150
Delhi,2020-01-02,-5
Delhi,2020-01-03,NaN
Delhi,02/01/2020 ,
`
	recs, stats, err := Parse(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if stats.Skipped != 2 {
		t.Errorf("Skipped = %d, want 2", stats.Skipped)
	}
	if stats.Flags[FlagAQINegative] != 1 {
		t.Errorf("negative flags = %d, want 1", stats.Flags[FlagAQINegative])
	}
	// 02/01/2020 is the same day as 2020-01-02 in day-first layout.
	if len(recs) != 3 {
		t.Fatalf("len(recs) = %d, want 3: %+v", len(recs), recs)
	}
	for _, r := range recs {
		if r.AQI.Float64 != 150 {
			t.Errorf("%s AQI = %v, want forward-filled 150", r.Date.Format(models.DateLayout), r.AQI.Float64)
		}
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		csv  string
	}{
		{"empty file", ""},
		{"missing aqi column", "City,Date,PM2.5\nDelhi,2020-01-01,10\n"},
		{"missing city column", "Date,AQI\n2020-01-01,10\n"},
		{"no usable records", "City,Date,AQI\nDelhi,2020-01-01,\n"},
		{"malformed quoting", "City,Date,AQI\n\"Delhi,2020-01-01,10\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Parse(strings.NewReader(tt.csv))
			if !errors.Is(err, ErrDataUnavailable) {
				t.Errorf("Parse() error = %v, want ErrDataUnavailable", err)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	path := filepath.Join(t.TempDir(), "city_day.csv")
	data := "City,Date,AQI\nDelhi,2020-01-01,300\nDelhi,2020-01-02,\nPatna,2020-01-01,200\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	ds, err := LoadFile(st, path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if ds.Rows != 3 {
		t.Errorf("Rows = %d, want 3", ds.Rows)
	}
	if ds.Cities != 2 {
		t.Errorf("Cities = %d, want 2", ds.Cities)
	}
	if len(ds.Fingerprint) != 64 {
		t.Errorf("Fingerprint = %q, want 64 hex chars", ds.Fingerprint)
	}

	again, err := LoadFile(st, path)
	if err != nil {
		t.Fatalf("LoadFile again: %v", err)
	}
	if again.Fingerprint != ds.Fingerprint {
		t.Errorf("fingerprint changed for identical file: %s != %s", again.Fingerprint, ds.Fingerprint)
	}

	latest, err := st.LatestDataset()
	if err != nil {
		t.Fatalf("LatestDataset: %v", err)
	}
	if latest == nil || latest.Fingerprint != ds.Fingerprint {
		t.Errorf("LatestDataset = %+v, want fingerprint %s", latest, ds.Fingerprint)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	_, err = LoadFile(st, filepath.Join(t.TempDir(), "nope.csv"))
	if !errors.Is(err, ErrDataUnavailable) {
		t.Fatalf("LoadFile() error = %v, want ErrDataUnavailable", err)
	}

	latest, err := st.LatestDataset()
	if err != nil {
		t.Fatalf("LatestDataset: %v", err)
	}
	if latest != nil {
		t.Errorf("failed load recorded as dataset: %+v", latest)
	}
}
