package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateConvert(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateConvert() error {
	if c.Convert.Quality < 0 || c.Convert.Quality > 100 {
		return fmt.Errorf("convert.quality must be between 0 and 100, got %d", c.Convert.Quality)
	}
	if c.Convert.Effort < 0 || c.Convert.Effort > 6 {
		return fmt.Errorf("convert.effort must be between 0 and 6, got %d", c.Convert.Effort)
	}
	if c.Convert.Workers < 0 {
		return errors.New("convert.workers must be >= 0 (0 selects the detected CPU count)")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
		return nil
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
}
