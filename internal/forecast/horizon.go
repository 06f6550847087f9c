package forecast

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

const (
	MinHorizon     = 7
	MaxHorizon     = 90
	DefaultHorizon = 30
	HorizonStep    = 7
)

var (
	validate    = validator.New()
	horizonRule = fmt.Sprintf("min=%d,max=%d", MinHorizon, MaxHorizon)
)

// ValidateHorizon rejects horizons outside [MinHorizon, MaxHorizon].
func ValidateHorizon(horizon int) error {
	if err := validate.Var(horizon, horizonRule); err != nil {
		return fmt.Errorf("%w: %d days is outside %d-%d", ErrInvalidHorizon, horizon, MinHorizon, MaxHorizon)
	}
	return nil
}
