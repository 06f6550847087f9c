package ingest

import (
	"crypto/sha256"
	"database/sql"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lox/aqiforecast/internal/metrics"
	"github.com/lox/aqiforecast/internal/models"
	"github.com/lox/aqiforecast/internal/store"
)

// ErrDataUnavailable means the dataset file is missing or cannot be used.
var ErrDataUnavailable = errors.New("dataset unavailable")

const (
	colCity = "city"
	colDate = "date"
	colAQI  = "aqi"
)

var dateLayouts = []string{
	models.DateLayout,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"02/01/2006",
}

// ParseStats summarises what Parse did to the raw rows.
type ParseStats struct {
	Rows       int            // data rows read
	Skipped    int            // rows dropped for an empty city or bad date
	Imputed    int            // missing AQI values forward-filled
	Dropped    int            // leading missing AQI values with nothing to fill from
	Duplicates int            // repeated (city, date) rows, last one wins
	Flags      map[string]int // quality flag counts, see ValidateRecord
}

// Parse reads a daily per-city AQI CSV. Only the City, Date and AQI columns
// are used. Missing AQI values are forward-filled from the same city's
// previous day and marked Imputed; values that cannot be filled are dropped. The returned
// records are sorted by city then date and unique per (city, date).
func Parse(r io.Reader) ([]models.Record, ParseStats, error) {
	stats := ParseStats{Flags: make(map[string]int)}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, stats, fmt.Errorf("%w: empty file", ErrDataUnavailable)
	}
	if err != nil {
		return nil, stats, fmt.Errorf("%w: read header: %v", ErrDataUnavailable, err)
	}

	idx := map[string]int{colCity: -1, colDate: -1, colAQI: -1}
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, ok := idx[name]; ok && idx[name] == -1 {
			idx[name] = i
		}
	}
	for _, col := range []string{colCity, colDate, colAQI} {
		if idx[col] == -1 {
			return nil, stats, fmt.Errorf("%w: missing %q column", ErrDataUnavailable, col)
		}
	}

	byCity := make(map[string]map[time.Time]sql.NullFloat64)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("%w: line %d: %v", ErrDataUnavailable, stats.Rows+2, err)
		}
		stats.Rows++

		city := field(row, idx[colCity])
		date, ok := parseDate(field(row, idx[colDate]))
		if city == "" || !ok {
			stats.Skipped++
			continue
		}

		rec := models.Record{City: city, Date: date, AQI: parseAQI(field(row, idx[colAQI]))}
		flags := ValidateRecord(&rec)
		for _, f := range flags {
			stats.Flags[f]++
		}
		if hasFlag(flags, FlagAQINegative) {
			rec.AQI = sql.NullFloat64{}
		}

		days, ok := byCity[city]
		if !ok {
			days = make(map[time.Time]sql.NullFloat64)
			byCity[city] = days
		}
		if _, dup := days[date]; dup {
			stats.Duplicates++
		}
		days[date] = rec.AQI
	}

	cities := make([]string, 0, len(byCity))
	for city := range byCity {
		cities = append(cities, city)
	}
	sort.Strings(cities)

	var recs []models.Record
	for _, city := range cities {
		days := byCity[city]
		dates := make([]time.Time, 0, len(days))
		for d := range days {
			dates = append(dates, d)
		}
		sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

		var last sql.NullFloat64
		for _, d := range dates {
			rec := models.Record{City: city, Date: d, AQI: days[d]}
			switch {
			case rec.AQI.Valid:
				last = rec.AQI
			case last.Valid:
				rec.AQI = last
				rec.Imputed = true
				stats.Imputed++
			default:
				stats.Dropped++
				continue
			}
			recs = append(recs, rec)
		}
	}

	if len(recs) == 0 {
		return nil, stats, fmt.Errorf("%w: no usable records", ErrDataUnavailable)
	}
	return recs, stats, nil
}

// LoadFile parses the CSV at path and replaces the store's record table with
// it. The dataset fingerprint is the SHA-256 of the file contents.
func LoadFile(st *store.Store, path string) (*models.Dataset, error) {
	load, err := st.StartLoad(path)
	if err != nil {
		return nil, fmt.Errorf("start load: %w", err)
	}

	ds, err := loadFile(st, path, load)
	if err != nil {
		load.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
	}
	if cerr := st.CompleteLoad(load); cerr != nil {
		log.Printf("ingest: record load %d: %v", load.ID, cerr)
	}
	if err != nil {
		return nil, err
	}
	return ds, nil
}

func loadFile(st *store.Store, path string, load *store.DatasetLoad) (*models.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}
	defer f.Close()

	log.Printf("ingest: loading historical data from %s", path)
	start := time.Now()

	h := sha256.New()
	recs, stats, err := Parse(io.TeeReader(f, h))
	if err != nil {
		return nil, err
	}
	// Drain anything the CSV reader left unread so the hash covers the whole file.
	if _, err := io.Copy(h, f); err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrDataUnavailable, path, err)
	}

	stored, err := st.ReplaceRecords(recs)
	if err != nil {
		return nil, fmt.Errorf("store records: %w", err)
	}

	cities := make(map[string]struct{})
	for _, r := range recs {
		cities[r.City] = struct{}{}
	}

	ds := &models.Dataset{
		Path:        path,
		Fingerprint: hex.EncodeToString(h.Sum(nil)),
		Rows:        stored,
		Skipped:     stats.Skipped,
		Cities:      len(cities),
		LoadedAt:    time.Now().UTC(),
	}

	load.Fingerprint = sql.NullString{String: ds.Fingerprint, Valid: true}
	load.RowsParsed = sql.NullInt64{Int64: int64(stats.Rows), Valid: true}
	load.RowsStored = sql.NullInt64{Int64: int64(stored), Valid: true}
	load.RowsSkipped = sql.NullInt64{Int64: int64(stats.Skipped), Valid: true}
	load.Cities = sql.NullInt64{Int64: int64(ds.Cities), Valid: true}
	load.Success = true

	metrics.DatasetRecords.Set(float64(stored))
	log.Printf("ingest: loaded %d records for %d cities in %s (skipped %d, imputed %d, dropped %d, duplicates %d)",
		stored, ds.Cities, time.Since(start).Round(time.Millisecond), stats.Skipped, stats.Imputed, stats.Dropped, stats.Duplicates)
	for flag, n := range stats.Flags {
		log.Printf("ingest: %d records flagged %s", n, flag)
	}
	return ds, nil
}

func field(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

func parseAQI(s string) sql.NullFloat64 {
	if s == "" {
		return sql.NullFloat64{}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func hasFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if f == flag {
			return true
		}
	}
	return false
}
