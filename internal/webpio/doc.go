// Package webpio performs WebP container surgery: reading canvas features
// from RIFF chunk streams and appending EXIF metadata chunks.
//
// Plain VP8/VP8L containers are upgraded to the extended VP8X form with the
// EXIF feature bit set; containers that already carry VP8X get the bit OR-ed
// in. Pixel payloads are never touched.
package webpio
