package encoding

import (
	"fmt"

	"webpify/internal/config"
)

// Params are the encode parameters handed to the pixel codec.
type Params struct {
	Quality  int
	Effort   int
	Lossless bool
	Optimize bool
}

// DefaultParams returns the stock encode settings.
func DefaultParams() Params {
	return Params{Quality: 80, Effort: 4, Lossless: false, Optimize: true}
}

// ParamsFromConfig lifts the convert section of the configuration.
func ParamsFromConfig(cfg *config.Config) Params {
	if cfg == nil {
		return DefaultParams()
	}
	return Params{
		Quality:  cfg.Convert.Quality,
		Effort:   cfg.Convert.Effort,
		Lossless: cfg.Convert.Lossless,
		Optimize: cfg.Convert.Optimize,
	}
}

// Validate checks the cwebp parameter ranges.
func (p Params) Validate() error {
	if p.Quality < 0 || p.Quality > 100 {
		return fmt.Errorf("quality must be between 0 and 100, got %d", p.Quality)
	}
	if p.Effort < 0 || p.Effort > 6 {
		return fmt.Errorf("effort must be between 0 and 6, got %d", p.Effort)
	}
	return nil
}
