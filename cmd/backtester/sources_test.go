package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"atlas/strategies"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadStrategies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mine.star")
	require.NoError(t, os.WriteFile(path, []byte("signals = [0.0] * n\n"), 0o600))

	codes, err := loadStrategies([]string{path, "donchian"})
	require.NoError(t, err)
	require.Len(t, codes, 2)
	assert.Equal(t, "mine", codes[0].ID())
	assert.Equal(t, "signals = [0.0] * n\n", codes[0].Source())
	assert.Equal(t, "donchian", codes[1].ID())

	all, err := loadStrategies(nil)
	require.NoError(t, err)
	assert.Len(t, all, len(strategies.Names()))

	_, err = loadStrategies([]string{"no_such_seed"})
	assert.ErrorIs(t, err, strategies.ErrUnknownStrategy)
}

func TestDataFlags_DateRange(t *testing.T) {
	d := dataFlags{from: "2020-01-01", to: "2021-01-01"}
	start, end, err := d.dateRange()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), end)

	for _, bad := range []dataFlags{
		{from: "01/01/2020"},
		{to: "tomorrow"},
		{from: "2021-01-01", to: "2020-01-01"},
	} {
		_, _, err := bad.dateRange()
		assert.Error(t, err, bad)
	}
}
