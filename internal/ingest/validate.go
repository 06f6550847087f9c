package ingest

import (
	"time"

	"github.com/lox/aqiforecast/internal/models"
)

const (
	FlagAQIMissing     = "aqi_missing"
	FlagAQINegative    = "aqi_negative"
	FlagAQIImplausible = "aqi_implausible"
	FlagDateFuture     = "date_future"
)

// maxPlausibleAQI is well above the 500 cap of the published index; raw
// sub-index values in the source data do exceed 500 on bad days.
const maxPlausibleAQI = 2000

func ValidateRecord(rec *models.Record) []string {
	var flags []string

	if !rec.AQI.Valid {
		flags = append(flags, FlagAQIMissing)
	} else {
		if rec.AQI.Float64 < 0 {
			flags = append(flags, FlagAQINegative)
		}
		if rec.AQI.Float64 > maxPlausibleAQI {
			flags = append(flags, FlagAQIImplausible)
		}
	}

	if rec.Date.After(time.Now().UTC()) {
		flags = append(flags, FlagDateFuture)
	}

	return flags
}
