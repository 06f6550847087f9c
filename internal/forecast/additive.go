package forecast

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/lox/aqiforecast/internal/models"
)

const (
	weeklyPeriod = 7.0
	yearlyPeriod = 365.25

	// minTrainingPoints is the floor below which no fit is attempted.
	minTrainingPoints = 14
	// minYearlySpanDays is the history span needed before yearly terms are fitted.
	minYearlySpanDays = 365

	// z-score of an 80% two-sided interval.
	defaultIntervalZ = 1.2816
)

// AdditiveTrainer fits y(t) = trend(t) + weekly(t) + yearly(t) + e by ordinary
// least squares. The trend is linear, the seasonal terms are Fourier series.
// The interval comes from the residual standard deviation.
type AdditiveTrainer struct {
	WeeklyOrder int
	YearlyOrder int
	IntervalZ   float64
}

func NewAdditiveTrainer() *AdditiveTrainer {
	return &AdditiveTrainer{
		WeeklyOrder: 3,
		YearlyOrder: 10,
		IntervalZ:   defaultIntervalZ,
	}
}

type additiveModel struct {
	city   string
	start  time.Time
	last   time.Time
	fitted time.Time
	scale  float64 // trend time unit, the training span in days
	weekly int
	yearly int
	beta   []float64
	sigma  float64
	n      int
	z      float64
}

func (tr *AdditiveTrainer) Train(series models.Series) (Model, error) {
	n := series.Len()
	if n < minTrainingPoints {
		return nil, fmt.Errorf("%w: %s has %d points, need at least %d", ErrTrainingFailed, series.City, n, minTrainingPoints)
	}
	for i := 1; i < n; i++ {
		if !series.Points[i].Date.After(series.Points[i-1].Date) {
			return nil, fmt.Errorf("%w: %s series not strictly ascending at %s",
				ErrTrainingFailed, series.City, series.Points[i].Date.Format(models.DateLayout))
		}
	}

	y := series.Values()
	for _, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: %s series has non-finite values", ErrTrainingFailed, series.City)
		}
	}
	if stat.Variance(y, nil) == 0 {
		return nil, fmt.Errorf("%w: %s series is constant", ErrTrainingFailed, series.City)
	}

	m := &additiveModel{
		city:   series.City,
		start:  series.Points[0].Date,
		last:   series.LastDate(),
		weekly: tr.WeeklyOrder,
		z:      tr.IntervalZ,
		n:      n,
	}
	if m.z <= 0 {
		m.z = defaultIntervalZ
	}
	span := m.dayIndex(m.last)
	m.scale = math.Max(span, 1)
	if span >= minYearlySpanDays {
		m.yearly = tr.YearlyOrder
	}
	// Sparse histories get fewer yearly terms rather than an underdetermined fit.
	for m.yearly > 0 && n < 2*m.numFeatures() {
		m.yearly--
	}
	p := m.numFeatures()
	if n < 2*p {
		return nil, fmt.Errorf("%w: %s has %d points for %d parameters", ErrTrainingFailed, series.City, n, p)
	}

	x := mat.NewDense(n, p, nil)
	row := make([]float64, p)
	for i, pt := range series.Points {
		m.features(m.dayIndex(pt.Date), row)
		x.SetRow(i, row)
	}

	var beta mat.VecDense
	if err := beta.SolveVec(x, mat.NewVecDense(n, y)); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return nil, fmt.Errorf("%w: %s least squares: %v", ErrTrainingFailed, series.City, err)
		}
	}
	m.beta = make([]float64, p)
	copy(m.beta, beta.RawVector().Data)

	var fitted mat.VecDense
	fitted.MulVec(x, &beta)
	resid := make([]float64, n)
	floats.SubTo(resid, y, fitted.RawVector().Data)
	m.sigma = stat.StdDev(resid, nil)
	if math.IsNaN(m.sigma) || floats.HasNaN(m.beta) {
		return nil, fmt.Errorf("%w: %s fit did not converge", ErrTrainingFailed, series.City)
	}
	m.fitted = time.Now().UTC()

	return m, nil
}

func (m *additiveModel) City() string {
	return m.city
}

func (m *additiveModel) LastDate() time.Time {
	return m.last
}

func (m *additiveModel) TrainedAt() time.Time {
	return m.fitted
}

func (m *additiveModel) Predict(horizon int) (models.ForecastResult, error) {
	if err := ValidateHorizon(horizon); err != nil {
		return models.ForecastResult{}, err
	}

	res := models.ForecastResult{
		City:         m.city,
		Horizon:      horizon,
		LastObserved: m.last,
		Points:       make([]models.ForecastPoint, horizon),
	}

	row := make([]float64, len(m.beta))
	for k := 1; k <= horizon; k++ {
		date := m.last.AddDate(0, 0, k)
		m.features(m.dayIndex(date), row)
		yhat := floats.Dot(row, m.beta)
		band := m.z * m.sigma * math.Sqrt(1+float64(k)/float64(m.n))
		res.Points[k-1] = boundedPoint(date, yhat, band)
	}
	return res, nil
}

// boundedPoint rounds the estimate to a whole AQI, clamps everything at zero
// and widens the interval when rounding or clamping pushed the estimate out.
func boundedPoint(date time.Time, yhat, band float64) models.ForecastPoint {
	pred := math.Max(0, math.Round(yhat))
	lower := math.Max(0, yhat-band)
	upper := math.Max(0, yhat+band)
	return models.ForecastPoint{
		Date:      date,
		Predicted: pred,
		Lower:     math.Min(lower, pred),
		Upper:     math.Max(upper, pred),
	}
}

func (m *additiveModel) numFeatures() int {
	return 2 + 2*m.weekly + 2*m.yearly
}

func (m *additiveModel) dayIndex(d time.Time) float64 {
	return float64(d.Sub(m.start) / (24 * time.Hour))
}

// features writes the design row for day index t into row.
func (m *additiveModel) features(t float64, row []float64) {
	row[0] = 1
	row[1] = t / m.scale
	i := 2
	for k := 1; k <= m.weekly; k++ {
		w := 2 * math.Pi * float64(k) * t / weeklyPeriod
		row[i], row[i+1] = math.Sin(w), math.Cos(w)
		i += 2
	}
	for k := 1; k <= m.yearly; k++ {
		w := 2 * math.Pi * float64(k) * t / yearlyPeriod
		row[i], row[i+1] = math.Sin(w), math.Cos(w)
		i += 2
	}
}
