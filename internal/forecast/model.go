package forecast

import (
	"time"

	"github.com/lox/aqiforecast/internal/models"
)

// Trainer fits a Model to one city's series. Implementations must not retain
// or modify the series.
type Trainer interface {
	Train(series models.Series) (Model, error)
}

// Model is a fitted, immutable forecasting model for a single city.
type Model interface {
	City() string
	// LastDate is the last historical date the model was trained on.
	LastDate() time.Time
	TrainedAt() time.Time
	// Predict returns one row per day for the horizon days after LastDate.
	Predict(horizon int) (models.ForecastResult, error)
}
