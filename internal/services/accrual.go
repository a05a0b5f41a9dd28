package services

import (
	"math"
	"time"
)

// DefaultRatePerMinute is the node uptime reward rate.
const DefaultRatePerMinute = 12.0

// floatSlack absorbs binary rounding so exact products such as 90s at 12/min floor to 18.
const floatSlack = 1e-9

// ComputePoints converts connected time into points with a linear model:
// floor(elapsed/60s * ratePerMinute * multiplier). A multiplier <= 0 counts as 1.
// Negative elapsed time returns ErrClockSkew and zero points; the caller decides
// whether to treat it as zero accrual.
func ComputePoints(elapsed time.Duration, ratePerMinute, multiplier float64) (int64, error) {
	if elapsed < 0 {
		return 0, ErrClockSkew
	}
	if ratePerMinute < 0 || math.IsNaN(ratePerMinute) || math.IsInf(ratePerMinute, 0) {
		return 0, validationError("rate must be a non-negative number, got %v", ratePerMinute)
	}
	if multiplier <= 0 || math.IsNaN(multiplier) {
		multiplier = 1
	}
	if elapsed == 0 || ratePerMinute == 0 {
		return 0, nil
	}

	points := math.Floor(elapsed.Seconds()*ratePerMinute*multiplier/60 + floatSlack)
	if points < 0 {
		return 0, nil
	}
	return int64(points), nil
}
