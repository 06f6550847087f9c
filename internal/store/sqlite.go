package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lox/aqiforecast/internal/models"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens the SQLite database at dsn and applies migrations. An in-memory
// database lives only as long as its connection, so the pool is pinned to one.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
	} else {
		db.Exec("PRAGMA journal_mode=WAL")
		db.Exec("PRAGMA busy_timeout=5000")
	}

	s := New(db)
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ReplaceRecords swaps the whole record table for recs in one transaction.
func (s *Store) ReplaceRecords(recs []models.Record) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM records`); err != nil {
		return 0, fmt.Errorf("clear records: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO records (city, day, aqi, imputed)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(city, day) DO UPDATE SET aqi = excluded.aqi, imputed = excluded.imputed
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range recs {
		if _, err := stmt.Exec(r.City, r.Date.Format(models.DateLayout), r.AQI, r.Imputed); err != nil {
			return 0, fmt.Errorf("insert %s %s: %w", r.City, r.Date.Format(models.DateLayout), err)
		}
	}

	var stored int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM records`).Scan(&stored); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit records: %w", err)
	}
	return stored, nil
}

// CitySummaries returns every city with at least minRecords observed AQI
// values, ordered by name. Forward-filled rows do not count toward the
// threshold.
func (s *Store) CitySummaries(minRecords int) ([]models.CitySummary, error) {
	rows, err := s.db.Query(`
		SELECT r.city, SUM(NOT r.imputed), MIN(r.day), MAX(r.day),
			(SELECT l.aqi FROM records l
			 WHERE l.city = r.city AND l.aqi IS NOT NULL
			 ORDER BY l.day DESC LIMIT 1)
		FROM records r
		WHERE r.aqi IS NOT NULL
		GROUP BY r.city
		HAVING SUM(NOT r.imputed) >= ?
		ORDER BY r.city
	`, minRecords)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cities []models.CitySummary
	for rows.Next() {
		var cs models.CitySummary
		var first, last string
		if err := rows.Scan(&cs.City, &cs.ValidRecords, &first, &last, &cs.LatestAQI); err != nil {
			return nil, err
		}
		if cs.FirstDate, err = parseDay(first); err != nil {
			return nil, err
		}
		if cs.LastDate, err = parseDay(last); err != nil {
			return nil, err
		}
		cities = append(cities, cs)
	}
	return cities, rows.Err()
}

// CountValid returns the number of observed (non-missing, not forward-filled)
// AQI records for city.
func (s *Store) CountValid(city string) (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(aqi) FROM records
		WHERE city = ? AND NOT imputed
	`, city).Scan(&n)
	return n, err
}

// CitySeries returns the non-missing (date, AQI) pairs for city in ascending
// date order, forward-filled values included. The primary key guarantees one
// row per date.
func (s *Store) CitySeries(city string) (models.Series, error) {
	rows, err := s.db.Query(`
		SELECT day, aqi FROM records
		WHERE city = ? AND aqi IS NOT NULL
		ORDER BY day ASC
	`, city)
	if err != nil {
		return models.Series{}, err
	}
	defer rows.Close()

	series := models.Series{City: city}
	for rows.Next() {
		var day string
		var p models.Point
		if err := rows.Scan(&day, &p.AQI); err != nil {
			return models.Series{}, err
		}
		if p.Date, err = parseDay(day); err != nil {
			return models.Series{}, err
		}
		series.Points = append(series.Points, p)
	}
	return series, rows.Err()
}

func parseDay(s string) (time.Time, error) {
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse day %q: %w", s, err)
	}
	return t, nil
}
