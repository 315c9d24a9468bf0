package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElapsedDays(t *testing.T) {
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.InDelta(t, 1.5, ElapsedDays(from, from.Add(36*time.Hour)), 1e-12)
	assert.Zero(t, ElapsedDays(from, from.Add(-time.Hour)))
}

func TestAddDays(t *testing.T) {
	from := time.Date(2025, 1, 1, 9, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 1, 4, 9, 30, 0, 0, time.UTC), AddDays(from, 3))
}

func TestLoadLocation(t *testing.T) {
	loc, err := LoadLocation("")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	loc, err = LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", loc.String())

	_, err = LoadLocation("Nowhere/Land")
	assert.Error(t, err)
}
