// Package plan assigns conversion tasks their destinations.
//
// Outputs land under a webp root next to the input (or an explicit override)
// in one subdirectory per creation date, YYYY_MM_DD. Creation time comes from
// the platform's file birth time; when the filesystem cannot report one the
// current date is used and the task is flagged so the fallback stays visible
// downstream.
package plan
