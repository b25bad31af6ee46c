package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"atlas/internal/walkforward"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "36mo", cfg.Backtest.Train)
	assert.Equal(t, 4, cfg.Backtest.WindowWorkers)
	assert.Equal(t, 10.0, cfg.Costs.SpreadBps)
	assert.Equal(t, 10*time.Second, cfg.Database.ConnectTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 7*24*time.Hour, cfg.Backtest.MaxGap)

	spec, err := cfg.WindowSpec()
	require.NoError(t, err)
	assert.Equal(t, walkforward.DefaultSpec(), spec)

	p, err := cfg.Policy()
	require.NoError(t, err)
	assert.True(t, p.ModuleAllowed("ta"))
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := writeFile(t, "atlas.yaml", `
backtest:
  train: 12mo
  validate: 3mo
  purge: 2d
  window_workers: 2
  max_gap: 96h
costs:
  spread_bps: 5
logging:
  format: json
`)
	t.Setenv("ATLAS_BACKTEST_WINDOW_WORKERS", "8")
	t.Setenv("ATLAS_DATABASE_URL", "postgres://localhost/atlas")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "12mo", cfg.Backtest.Train)
	assert.Equal(t, "1mo", cfg.Backtest.Test)
	assert.Equal(t, 8, cfg.Backtest.WindowWorkers)
	assert.Equal(t, 5.0, cfg.Costs.SpreadBps)
	assert.Equal(t, 10.0, cfg.Costs.SlippageBps)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 96*time.Hour, cfg.Backtest.MaxGap)
	assert.Equal(t, "postgres://localhost/atlas", cfg.Database.URL)

	spec, err := cfg.WindowSpec()
	require.NoError(t, err)
	assert.Equal(t, walkforward.Days(2), spec.Purge)
}

func TestLoadConfig_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad period", "backtest:\n  train: 3 months\n"},
		{"zero workers", "backtest:\n  window_workers: 0\n"},
		{"negative cost", "costs:\n  slippage_bps: -1\n"},
		{"log level", "logging:\n  level: loud\n"},
		{"interval", "backtest:\n  interval: 2D\n"},
		{"risk free", "backtest:\n  risk_free_rate: 1.5\n"},
		{"negative gap", "backtest:\n  max_gap: -1h\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeFile(t, "atlas.yaml", tt.body))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestConfig_PolicyFile(t *testing.T) {
	path := writeFile(t, "policy.yaml", "limits:\n  max_leverage: 1.5\n")
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	cfg.PolicyFile = path

	p, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, 1.5, p.Limits.MaxLeverage)
}
