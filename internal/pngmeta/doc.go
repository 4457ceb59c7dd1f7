// Package pngmeta reads PNG text chunks and assembles the metadata record
// preserved during conversion.
//
// The reader walks the PNG container directly (tEXt, zTXt, iTXt plus IHDR for
// dimensions) so extraction works without decoding pixel data. Chunk text is
// parsed as JSON when possible; the raw text is always retained so opaque
// values survive untouched.
package pngmeta
