package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"papertrader/types"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for papertrader.
type Config struct {
	Engine     Engine     `yaml:"engine"`
	Server     Server     `yaml:"server"`
	Storage    Storage    `yaml:"storage"`
	Logging    Logging    `yaml:"logging"`
	Simulation Simulation `yaml:"simulation"`
}

// Engine holds the ledger parameters. Amounts are decimal strings.
type Engine struct {
	InitialCapital string `yaml:"initial_capital"`
	CommissionRate string `yaml:"commission_rate"`
}

// Server holds the HTTP listener configuration.
type Server struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

const (
	DriverNone     = "none"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Storage selects where the ledger is mirrored.
type Storage struct {
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresURL string `yaml:"postgres_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Simulation configures the historical replay run by `papertrader run`.
type Simulation struct {
	Symbols         []string `yaml:"symbols"`
	Interval        string   `yaml:"interval"`
	Start           string   `yaml:"start"`
	End             string   `yaml:"end"`
	DataDir         string   `yaml:"data_dir"`
	PositionPercent string   `yaml:"position_percent"`
	MinConfidence   string   `yaml:"min_confidence"`
	ChannelLength   int      `yaml:"channel_length"`
	SnapshotEvery   string   `yaml:"snapshot_every"`
	RiskFreeRate    string   `yaml:"risk_free_rate"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Engine: Engine{
			InitialCapital: "100000",
			CommissionRate: "0.001",
		},
		Server: Server{
			Host:        "0.0.0.0",
			Port:        8000,
			CORSOrigins: []string{"http://localhost:5173", "http://localhost:3000"},
		},
		Storage: Storage{
			Driver:     DriverSQLite,
			SQLitePath: "./papertrader.db",
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
		Simulation: Simulation{
			Symbols:         []string{"AAPL"},
			Interval:        string(types.Day),
			DataDir:         "./data",
			PositionPercent: "0.1",
			MinConfidence:   "0",
			ChannelLength:   20,
			SnapshotEvery:   "24h",
			RiskFreeRate:    "0.02",
		},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML file at path on top of Default, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads path when it is set, and otherwise returns the defaults
// with environment overrides applied.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	cfg := Default()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PAPERTRADER_INITIAL_CAPITAL"); v != "" {
		cfg.Engine.InitialCapital = v
	}
	if v := os.Getenv("PAPERTRADER_COMMISSION_RATE"); v != "" {
		cfg.Engine.CommissionRate = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	// A database URL implies the postgres mirror.
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.PostgresURL = v
		cfg.Storage.Driver = DriverPostgres
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
}

// SaveToFile writes the configuration as YAML.
func (c *Config) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// Validate checks every section and joins the problems found.
func (c *Config) Validate() error {
	var errs []error

	capital, rate, err := c.Engine.Decimals()
	if err != nil {
		errs = append(errs, err)
	} else {
		if capital.IsNegative() {
			errs = append(errs, errors.New("engine.initial_capital must not be negative"))
		}
		if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			errs = append(errs, errors.New("engine.commission_rate must be in [0, 1)"))
		}
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}

	switch c.Storage.Driver {
	case DriverNone:
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("storage.sqlite_path required for sqlite driver"))
		}
	case DriverPostgres:
		if c.Storage.PostgresURL == "" {
			errs = append(errs, errors.New("storage.postgres_url required for postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be %q, %q or %q", DriverNone, DriverSQLite, DriverPostgres))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q unknown", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q must be text or json", c.Logging.Format))
	}

	if err := c.Simulation.validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Decimals parses the initial capital and commission rate.
func (e Engine) Decimals() (capital, rate decimal.Decimal, err error) {
	capital, err = decimal.NewFromString(e.InitialCapital)
	if err != nil {
		return capital, rate, fmt.Errorf("engine.initial_capital %q: %w", e.InitialCapital, err)
	}
	rate, err = decimal.NewFromString(e.CommissionRate)
	if err != nil {
		return capital, rate, fmt.Errorf("engine.commission_rate %q: %w", e.CommissionRate, err)
	}
	return capital, rate, nil
}

func (s Simulation) validate() error {
	if _, err := types.ParseInterval(s.Interval); err != nil {
		return fmt.Errorf("simulation.interval: %w", err)
	}
	if _, _, err := s.Window(); err != nil {
		return err
	}
	if s.ChannelLength < 2 {
		return fmt.Errorf("simulation.channel_length %d must be at least 2", s.ChannelLength)
	}
	pct, err := decimal.NewFromString(s.PositionPercent)
	if err != nil {
		return fmt.Errorf("simulation.position_percent %q: %w", s.PositionPercent, err)
	}
	if !pct.IsPositive() || pct.GreaterThan(decimal.NewFromInt(1)) {
		return errors.New("simulation.position_percent must be in (0, 1]")
	}
	if _, err := s.MinConfidenceValue(); err != nil {
		return err
	}
	if _, err := s.SnapshotInterval(); err != nil {
		return err
	}
	if _, err := s.RiskFree(); err != nil {
		return err
	}
	return nil
}

// Window parses Start and End as RFC3339 or YYYY-MM-DD. Empty bounds are zero.
func (s Simulation) Window() (start, end time.Time, err error) {
	if start, err = parseDate(s.Start); err != nil {
		return start, end, fmt.Errorf("simulation.start: %w", err)
	}
	if end, err = parseDate(s.End); err != nil {
		return start, end, fmt.Errorf("simulation.end: %w", err)
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return start, end, errors.New("simulation.end is before simulation.start")
	}
	return start, end, nil
}

func (s Simulation) SnapshotInterval() (time.Duration, error) {
	if s.SnapshotEvery == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.SnapshotEvery)
	if err != nil {
		return 0, fmt.Errorf("simulation.snapshot_every: %w", err)
	}
	if d < 0 {
		return 0, errors.New("simulation.snapshot_every must not be negative")
	}
	return d, nil
}

func (s Simulation) PositionFraction() decimal.Decimal {
	return decimalOrZero(s.PositionPercent)
}

func (s Simulation) MinConfidenceValue() (decimal.Decimal, error) {
	if s.MinConfidence == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s.MinConfidence)
	if err != nil {
		return d, fmt.Errorf("simulation.min_confidence %q: %w", s.MinConfidence, err)
	}
	return d, nil
}

func (s Simulation) RiskFree() (decimal.Decimal, error) {
	if s.RiskFreeRate == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s.RiskFreeRate)
	if err != nil {
		return d, fmt.Errorf("simulation.risk_free_rate %q: %w", s.RiskFreeRate, err)
	}
	return d, nil
}

// Addr is the host:port the API listens on.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, s)
}

func decimalOrZero(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
