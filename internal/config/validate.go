package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateFitting(); err != nil {
		return err
	}
	if err := c.validateRenormalization(); err != nil {
		return err
	}
	if err := c.validateTransport(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateFitting() error {
	if c.Fitting.ImaginaryTol < 0 {
		return errors.New("fitting.imaginary_tol must be >= 0")
	}
	if c.Fitting.BulkModulus != nil && *c.Fitting.BulkModulus <= 0 {
		return errors.New("fitting.bulk_modulus must be positive when set")
	}
	for i, row := range c.Fitting.Cutoffs {
		if len(row) == 0 {
			return fmt.Errorf("fitting.cutoffs[%d] must not be empty", i)
		}
		for _, value := range row {
			if value <= 0 {
				return fmt.Errorf("fitting.cutoffs[%d] values must be positive", i)
			}
		}
	}
	if err := ensureNonNegative("fitting.temperatures", c.Fitting.Temperatures); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateRenormalization() error {
	return ensureNonNegative("renormalization.temperatures", c.Renormalization.Temperatures)
}

func (c *Config) validateTransport() error {
	switch v := c.Transport.Temperature.(type) {
	case float64:
		if v < 0 {
			return errors.New("transport.temperature must be >= 0")
		}
	case []float64:
		if len(v) == 0 {
			return errors.New("transport.temperature list must not be empty")
		}
		return ensureNonNegative("transport.temperature", v)
	case map[string]float64:
		for _, key := range []string{"min", "max", "step"} {
			if _, ok := v[key]; !ok {
				return fmt.Errorf("transport.temperature table requires %q", key)
			}
		}
		if len(v) != 3 {
			return errors.New("transport.temperature table accepts only min, max and step")
		}
		if v["step"] <= 0 {
			return errors.New("transport.temperature.step must be positive")
		}
		if v["max"] < v["min"] {
			return errors.New("transport.temperature.max must be >= min")
		}
	}
	return nil
}

func ensureNonNegative(key string, values []float64) error {
	for _, value := range values {
		if value < 0 {
			return fmt.Errorf("%s must not contain negative temperatures", key)
		}
	}
	return nil
}
