package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	capital, rate, err := cfg.Engine.Decimals()
	require.NoError(t, err)
	assert.True(t, capital.Equal(decimal.NewFromInt(100000)))
	assert.True(t, rate.Equal(decimal.RequireFromString("0.001")))
	assert.Equal(t, "0.0.0.0:8000", cfg.Server.Addr())
}

func TestLoad_MergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "papertrader.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
engine:
  initial_capital: "25000.50"
storage:
  driver: none
simulation:
  symbols: [aapl, msft]
  start: "2024-01-01"
  end: "2024-06-30"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "25000.50", cfg.Engine.InitialCapital)
	assert.Equal(t, "0.001", cfg.Engine.CommissionRate, "unset fields keep defaults")
	assert.Equal(t, DriverNone, cfg.Storage.Driver)
	assert.Equal(t, []string{"aapl", "msft"}, cfg.Simulation.Symbols)

	start, end, err := cfg.Simulation.Window()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC), end)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "papertrader.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: info\n"), 0o644))

	t.Setenv("PAPERTRADER_INITIAL_CAPITAL", "5000")
	t.Setenv("PAPERTRADER_COMMISSION_RATE", "0")
	t.Setenv("DATABASE_URL", "postgres://user:pw@localhost:5432/paper")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("PORT", "9090")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "5000", cfg.Engine.InitialCapital)
	assert.Equal(t, "0", cfg.Engine.CommissionRate)
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, "postgres://user:pw@localhost:5432/paper", cfg.Storage.PostgresURL)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine: [not, a, map"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad capital", func(c *Config) { c.Engine.InitialCapital = "lots" }},
		{"negative capital", func(c *Config) { c.Engine.InitialCapital = "-1" }},
		{"commission of one", func(c *Config) { c.Engine.CommissionRate = "1" }},
		{"port", func(c *Config) { c.Server.Port = 0 }},
		{"driver", func(c *Config) { c.Storage.Driver = "mongo" }},
		{"sqlite path", func(c *Config) { c.Storage.SQLitePath = "" }},
		{"postgres url", func(c *Config) { c.Storage.Driver = DriverPostgres }},
		{"log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"interval", func(c *Config) { c.Simulation.Interval = "3" }},
		{"window", func(c *Config) { c.Simulation.Start, c.Simulation.End = "2024-02-01", "2024-01-01" }},
		{"start", func(c *Config) { c.Simulation.Start = "yesterday" }},
		{"channel", func(c *Config) { c.Simulation.ChannelLength = 1 }},
		{"position percent", func(c *Config) { c.Simulation.PositionPercent = "1.5" }},
		{"snapshot every", func(c *Config) { c.Simulation.SnapshotEvery = "daily" }},
		{"risk free", func(c *Config) { c.Simulation.RiskFreeRate = "two" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveToFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "papertrader.yaml")
	cfg := Default()
	cfg.Simulation.Symbols = []string{"SPY", "QQQ"}
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestSimulation_Accessors(t *testing.T) {
	sim := Default().Simulation

	every, err := sim.SnapshotInterval()
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, every)

	rf, err := sim.RiskFree()
	require.NoError(t, err)
	assert.True(t, rf.Equal(decimal.RequireFromString("0.02")))
	assert.True(t, sim.PositionFraction().Equal(decimal.RequireFromString("0.1")))

	sim.SnapshotEvery, sim.RiskFreeRate, sim.MinConfidence = "", "", ""
	every, err = sim.SnapshotInterval()
	require.NoError(t, err)
	assert.Zero(t, every)
	minConf, err := sim.MinConfidenceValue()
	require.NoError(t, err)
	assert.True(t, minConf.IsZero())
}
