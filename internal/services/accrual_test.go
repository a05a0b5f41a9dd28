package services_test

import (
	"testing"
	"time"

	"github.com/ArowuTest/uptime-rewards-backend/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputePoints(t *testing.T) {
	tests := []struct {
		name       string
		elapsed    time.Duration
		rate       float64
		multiplier float64
		want       int64
	}{
		{"ninety seconds at default rate", 90 * time.Second, 12, 1, 18},
		{"zero elapsed", 0, 12, 1, 0},
		{"partial minute floors", 59 * time.Second, 12, 1, 11},
		{"ten minutes", 10 * time.Minute, 12, 1, 120},
		{"multiplier applies", time.Minute, 12, 1.5, 18},
		{"zero multiplier counts as one", time.Minute, 12, 0, 12},
		{"negative multiplier counts as one", time.Minute, 12, -3, 12},
		{"zero rate", time.Hour, 0, 1, 0},
		{"sub second elapsed", 400 * time.Millisecond, 12, 1, 0},
		{"fractional rate", 3 * time.Minute, 0.5, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := services.ComputePoints(tt.elapsed, tt.rate, tt.multiplier)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComputePointsRejectsNegativeElapsed(t *testing.T) {
	points, err := services.ComputePoints(-time.Second, 12, 1)
	assert.ErrorIs(t, err, services.ErrClockSkew)
	assert.Zero(t, points)
}

func TestComputePointsRejectsNegativeRate(t *testing.T) {
	_, err := services.ComputePoints(time.Minute, -1, 1)
	assert.ErrorIs(t, err, services.ErrValidation)
}

func TestComputePointsIsMonotonic(t *testing.T) {
	var last int64
	for s := 0; s <= 600; s++ {
		points, err := services.ComputePoints(time.Duration(s)*time.Second, 12, 1)
		require.NoError(t, err)
		require.GreaterOrEqual(t, points, last, "elapsed %ds", s)
		last = points
	}
	assert.Equal(t, int64(120), last)
}
