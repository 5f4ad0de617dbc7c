package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCommands()
	c.normalizeFitting()
	c.normalizeRenormalization()
	if err := c.normalizeTransport(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkDir) != "" {
		if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
			return fmt.Errorf("paths.work_dir: %w", err)
		}
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	// db_file may be a >>key<< reference; DBFile() resolves and expands it.
	c.Database.DBFile = strings.TrimSpace(c.Database.DBFile)
	return nil
}

func (c *Config) normalizeCommands() {
	c.Oracle.Command = strings.TrimSpace(c.Oracle.Command)
	if c.Oracle.Command == "" {
		c.Oracle.Command = defaultOracleCommand
	}
	if c.Oracle.TimeoutSeconds < 0 {
		c.Oracle.TimeoutSeconds = 0
	}
	c.ShengBTE.Command = strings.TrimSpace(c.ShengBTE.Command)
	if c.ShengBTE.Command == "" {
		c.ShengBTE.Command = defaultShengBTECommand
	}
}

func (c *Config) normalizeFitting() {
	c.Fitting.FitMethod = strings.ToLower(strings.TrimSpace(c.Fitting.FitMethod))
	if c.Fitting.FitMethod == "" {
		c.Fitting.FitMethod = defaultFitMethod
	}
	if len(c.Fitting.Temperatures) == 0 {
		c.Fitting.Temperatures = QHATemperatures()
	}
}

func (c *Config) normalizeRenormalization() {
	if len(c.Renormalization.Temperatures) == 0 {
		c.Renormalization.Temperatures = RenormTemperatures()
	}
	if c.Renormalization.Workers <= 0 {
		c.Renormalization.Workers = defaultRenormWorkers
	}
	if c.Renormalization.NConfigs <= 0 {
		c.Renormalization.NConfigs = defaultRenormNConfigs
	}
	if c.Renormalization.ConvergenceThreshold <= 0 {
		c.Renormalization.ConvergenceThreshold = defaultRenormConvergence
	}
	if c.Phonon.MeshDensity <= 0 {
		c.Phonon.MeshDensity = defaultMeshDensity
	}
}

// normalizeTransport canonicalizes the TOML temperature value to float64,
// []float64 or map[string]float64 with min/max/step keys.
func (c *Config) normalizeTransport() error {
	if c.Transport.ScaleBroad <= 0 {
		c.Transport.ScaleBroad = defaultScaleBroad
	}
	if c.Transport.ReciprocalDensity <= 0 {
		c.Transport.ReciprocalDensity = defaultReciprocalDensity
	}
	if c.Transport.Temperature == nil {
		c.Transport.Temperature = TransportTemperature()
	}
	switch v := c.Transport.Temperature.(type) {
	case float64, int64, int:
		f, _ := toFloat(v)
		c.Transport.Temperature = f
	case []float64:
	case []any:
		values := make([]float64, 0, len(v))
		for i, item := range v {
			f, ok := toFloat(item)
			if !ok {
				return fmt.Errorf("transport.temperature[%d]: expected number, got %T", i, item)
			}
			values = append(values, f)
		}
		c.Transport.Temperature = values
	case map[string]any:
		values := make(map[string]float64, len(v))
		for key, item := range v {
			f, ok := toFloat(item)
			if !ok {
				return fmt.Errorf("transport.temperature.%s: expected number, got %T", key, item)
			}
			values[strings.ToLower(key)] = f
		}
		c.Transport.Temperature = values
	case map[string]float64:
	default:
		return fmt.Errorf("transport.temperature: unsupported type %T", v)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
