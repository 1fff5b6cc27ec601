// Package properties loads the settings shared by the pheno commands.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// environment variables (a .env file is loaded into the environment first),
// then command line flags applied by the caller.
package properties

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/imagingearth/phenology/internal/composite"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DataDir        string  `yaml:"data_dir"`
	OutputPrefix   string  `yaml:"output_prefix"`
	Pattern        string  `yaml:"pattern"`
	VI             string  `yaml:"vi"`
	CellSize       float64 `yaml:"cell_size"`
	SourceCellSize float64 `yaml:"source_cell_size"`
	// Years in [YearFrom, YearTo) are composited.
	YearFrom     int     `yaml:"year_from"`
	YearTo       int     `yaml:"year_to"`
	Incomplete   string  `yaml:"incomplete"`
	Reduction    string  `yaml:"reduction"`
	DataMin      float64 `yaml:"data_min"`
	DataMax      float64 `yaml:"data_max"`
	Workers      int     `yaml:"workers"`
	MonthWorkers int     `yaml:"month_workers"`
	CacheDir     string  `yaml:"cache_dir"`
	Preview      bool    `yaml:"preview"`
	LogLevel     string  `yaml:"log_level"`
	WeatherURL   string  `yaml:"weather_url"`

	DiscordErrorURL   string `yaml:"discord_error_url"`
	DiscordSuccessURL string `yaml:"discord_success_url"`
	EarthdataToken    string `yaml:"-"`
}

func Default() Config {
	return Config{
		Pattern:        composite.DefaultPattern,
		VI:             "NDVI",
		CellSize:       1.5,
		SourceCellSize: 0.05,
		YearFrom:       2001,
		YearTo:         2012,
		Incomplete:     "fail",
		Reduction:      "mean",
		DataMin:        -1000,
		DataMax:        10000,
		Workers:        2,
		MonthWorkers:   4,
		LogLevel:       "info",
		WeatherURL:     "https://archive-api.open-meteo.com/v1/archive",
	}
}

// LoadEnvFiles loads the first .env file found into the process
// environment. Missing files are not an error.
func LoadEnvFiles(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
		return nil
	}
	return nil
}

// Load returns the defaults overlaid with the YAML file at path (if any)
// and the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(dst *string) func(string) error {
		return func(v string) error { *dst = v; return nil }
	}
	num := func(dst *float64) func(string) error {
		return func(v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return err
			}
			*dst = f
			return nil
		}
	}
	integer := func(dst *int) func(string) error {
		return func(v string) error {
			i, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			*dst = i
			return nil
		}
	}
	boolean := func(dst *bool) func(string) error {
		return func(v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			*dst = b
			return nil
		}
	}

	vars := []struct {
		name string
		set  func(string) error
	}{
		{"PHENO_DATA_DIR", str(&cfg.DataDir)},
		{"PHENO_OUTPUT_PREFIX", str(&cfg.OutputPrefix)},
		{"PHENO_PATTERN", str(&cfg.Pattern)},
		{"PHENO_VI", str(&cfg.VI)},
		{"PHENO_CELL_SIZE", num(&cfg.CellSize)},
		{"PHENO_SOURCE_CELL_SIZE", num(&cfg.SourceCellSize)},
		{"PHENO_YEAR_FROM", integer(&cfg.YearFrom)},
		{"PHENO_YEAR_TO", integer(&cfg.YearTo)},
		{"PHENO_INCOMPLETE", str(&cfg.Incomplete)},
		{"PHENO_REDUCTION", str(&cfg.Reduction)},
		{"PHENO_DATA_MIN", num(&cfg.DataMin)},
		{"PHENO_DATA_MAX", num(&cfg.DataMax)},
		{"PHENO_WORKERS", integer(&cfg.Workers)},
		{"PHENO_MONTH_WORKERS", integer(&cfg.MonthWorkers)},
		{"PHENO_CACHE_DIR", str(&cfg.CacheDir)},
		{"PHENO_PREVIEW", boolean(&cfg.Preview)},
		{"PHENO_LOG_LEVEL", str(&cfg.LogLevel)},
		{"PHENO_WEATHER_URL", str(&cfg.WeatherURL)},
		{"DISCORD_ERROR_NOTIFICATION_URL", str(&cfg.DiscordErrorURL)},
		{"DISCORD_SUCCESS_NOTIFICATION_URL", str(&cfg.DiscordSuccessURL)},
		{"EARTHDATA_TOKEN", str(&cfg.EarthdataToken)},
	}
	var errs []error
	for _, v := range vars {
		value, ok := lookup(v.name)
		if !ok || value == "" {
			continue
		}
		if err := v.set(value); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s=%q: %w", v.name, value, err))
		}
	}
	return errors.Join(errs...)
}

// Validate checks the settings used by the compositor.
func (c Config) Validate() error {
	var errs []error
	if c.CellSize <= 0 || c.SourceCellSize <= 0 {
		errs = append(errs, fmt.Errorf("cell sizes must be positive, got %g and %g", c.CellSize, c.SourceCellSize))
	}
	if c.YearFrom >= c.YearTo {
		errs = append(errs, fmt.Errorf("year range [%d, %d) is empty", c.YearFrom, c.YearTo))
	}
	if c.Workers <= 0 || c.MonthWorkers <= 0 {
		errs = append(errs, fmt.Errorf("worker counts must be positive"))
	}
	switch c.Incomplete {
	case "fail", "fill":
	default:
		errs = append(errs, fmt.Errorf("incomplete policy must be fail or fill, got %q", c.Incomplete))
	}
	if c.DataMin > c.DataMax {
		errs = append(errs, fmt.Errorf("data range [%g, %g] is empty", c.DataMin, c.DataMax))
	}
	return errors.Join(errs...)
}
