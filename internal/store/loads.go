package store

import (
	"database/sql"
	"time"

	"github.com/lox/aqiforecast/internal/models"
)

// DatasetLoad is the audit row for one CSV import.
type DatasetLoad struct {
	ID           int64
	StartedAt    time.Time
	FinishedAt   sql.NullTime
	Path         string
	Fingerprint  sql.NullString
	RowsParsed   sql.NullInt64
	RowsStored   sql.NullInt64
	RowsSkipped  sql.NullInt64
	Cities       sql.NullInt64
	Success      bool
	ErrorMessage sql.NullString
}

// StartLoad records the beginning of a dataset import.
func (s *Store) StartLoad(path string) (*DatasetLoad, error) {
	load := &DatasetLoad{
		StartedAt: time.Now().UTC(),
		Path:      path,
	}

	result, err := s.db.Exec(`
		INSERT INTO dataset_loads (started_at, path, success)
		VALUES (?, ?, FALSE)
	`, load.StartedAt, load.Path)
	if err != nil {
		return nil, err
	}

	load.ID, err = result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return load, nil
}

// CompleteLoad updates the import row with its outcome.
func (s *Store) CompleteLoad(load *DatasetLoad) error {
	if load == nil {
		return nil
	}

	load.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	_, err := s.db.Exec(`
		UPDATE dataset_loads SET
			finished_at = ?,
			fingerprint = ?,
			rows_parsed = ?,
			rows_stored = ?,
			rows_skipped = ?,
			cities = ?,
			success = ?,
			error_message = ?
		WHERE id = ?
	`, load.FinishedAt, load.Fingerprint, load.RowsParsed, load.RowsStored,
		load.RowsSkipped, load.Cities, load.Success, load.ErrorMessage, load.ID)
	return err
}

// LatestDataset returns the most recent successful import, or nil if there is none.
func (s *Store) LatestDataset() (*models.Dataset, error) {
	row := s.db.QueryRow(`
		SELECT path, fingerprint, rows_stored, rows_skipped, cities, finished_at
		FROM dataset_loads
		WHERE success = TRUE
		ORDER BY id DESC
		LIMIT 1
	`)

	var ds models.Dataset
	var finished sql.NullTime
	err := row.Scan(&ds.Path, &ds.Fingerprint, &ds.Rows, &ds.Skipped, &ds.Cities, &finished)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		ds.LoadedAt = finished.Time
	}
	return &ds, nil
}
