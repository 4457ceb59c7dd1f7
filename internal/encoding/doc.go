// Package encoding converts one PNG into one WebP.
//
// It drives the full per-file pipeline: read text-chunk metadata, map it onto
// EXIF tag assignments, transcode pixels through the external cwebp binary,
// splice the EXIF block into the container, move the result into place
// atomically, and validate that the output decodes with the source's
// dimensions. Every failure is caught at this boundary so a bad file never
// takes the batch down with it.
//
// Keep per-file conversion logic here so the batch coordinator can assume a
// single source of truth for outputs.
package encoding
