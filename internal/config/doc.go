// Package config loads, normalizes, and validates webpify configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// WEBPIFY_CONFIG and WEBPIFY_LOG_LEVEL. The Config type centralizes every knob
// the CLI needs, so encode parameters, pool sizing, and output locations are
// discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
