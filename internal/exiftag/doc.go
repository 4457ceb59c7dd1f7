// Package exiftag maps metadata records onto the numbered EXIF tag slots
// that downstream ComfyUI consumers read back by convention, and renders the
// resulting assignments as a little-endian TIFF block for embedding in a
// WebP container.
//
// The mapping is the interoperability contract of this tool: prompt goes to
// tag 0x0110, workflow to 0x010F, and extra_pnginfo entries walk downward
// from 0x010E in their source order. The assignment sequence order is the
// logical contract; the physical TIFF entry order is ascending by tag id as
// the format requires.
package exiftag
