package strategies

import (
	"context"
	"math"
	"testing"
	"time"

	"atlas/internal/guard"
	"atlas/internal/policy"
	"atlas/internal/sandbox"
	"atlas/types"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func series(n int) types.Series {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]types.Bar, n)
	for i := range bars {
		c := 100 + 10*math.Sin(float64(i)/15)
		bars[i] = types.Bar{
			Timestamp: start.AddDate(0, 0, i),
			Open:      decimal.NewFromFloat(c),
			High:      decimal.NewFromFloat(c),
			Low:       decimal.NewFromFloat(c),
			Close:     decimal.NewFromFloat(c),
			Volume:    decimal.NewFromInt(1_000_000_000),
			ADV:       decimal.NewFromInt(1_000_000_000),
		}
	}
	return types.NewSeries("TEST", types.Day, bars)
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"buy_and_hold", "donchian", "flat", "ma_crossover", "momentum"}, Names())
	assert.Len(t, All(), len(Names()))
}

func TestGet_Unknown(t *testing.T) {
	for _, name := range []string{"nope", "", "../strategies"} {
		_, err := Get(name)
		assert.ErrorIs(t, err, ErrUnknownStrategy, name)
	}
}

func TestSeedsRunUnderDefaultPolicy(t *testing.T) {
	p := policy.Default()
	p.TempRoot = t.TempDir()
	require.NoError(t, p.Validate())
	exec := sandbox.NewExecutor(zerolog.Nop())
	data := series(200)

	for _, code := range All() {
		t.Run(code.ID(), func(t *testing.T) {
			approved, res := guard.Approve(code, p)
			require.True(t, res.Passed, res.Messages())

			signals, err := exec.Execute(context.Background(), approved, data, t.TempDir())
			require.NoError(t, err)
			require.Len(t, signals, data.Len())
			assert.True(t, signals.Finite())

			runtime := guard.ValidateSignals(signals, data, p)
			assert.True(t, runtime.Passed, runtime.Messages())
		})
	}
}

func TestDonchianTakesBothSides(t *testing.T) {
	p := policy.Default()
	code, err := Get("donchian")
	require.NoError(t, err)
	approved, res := guard.Approve(code, p)
	require.True(t, res.Passed)

	signals, err := sandbox.NewExecutor(zerolog.Nop()).Execute(context.Background(), approved, series(200), "")
	require.NoError(t, err)
	assert.Contains(t, []float64(signals), 1.0)
	assert.Contains(t, []float64(signals), -1.0)
	assert.Equal(t, 0.0, signals[0])
}
