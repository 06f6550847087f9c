package forecast

import "errors"

var (
	// ErrInvalidHorizon is returned for a horizon outside [MinHorizon, MaxHorizon].
	ErrInvalidHorizon = errors.New("invalid horizon")
	// ErrInsufficientData is returned for a city with too few valid records.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrTrainingFailed is returned when a series cannot be fitted.
	ErrTrainingFailed = errors.New("training failed")
)
