// Package services defines shared utilities consumed by the conversion
// pipeline and external tool integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run identifiers, source paths, and stage
//     names for logging.
//   - Structured error markers plus the Wrap helper that keep failure
//     classification consistent (fatal argument problems vs recoverable
//     per-file errors).
package services
