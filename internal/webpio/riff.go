package webpio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	chunkVP8X = "VP8X"
	chunkVP8  = "VP8 "
	chunkVP8L = "VP8L"
	chunkALPH = "ALPH"
	chunkEXIF = "EXIF"

	// VP8X feature flag bits, MSB-first byte layout.
	flagAlpha byte = 0x10
	flagEXIF  byte = 0x08
)

type chunk struct {
	fourCC string
	data   []byte
}

// Features describes a parsed container: canvas dimensions, whether an alpha
// channel is present, and whether an EXIF chunk already exists.
type Features struct {
	Width   int
	Height  int
	Alpha   bool
	HasEXIF bool
}

// ReadFeatures parses the container enough to report canvas features.
func ReadFeatures(data []byte) (Features, error) {
	chunks, err := parseChunks(data)
	if err != nil {
		return Features{}, err
	}
	return featuresOf(chunks)
}

// InjectEXIF returns a new container with the TIFF block stored as an EXIF
// chunk. An existing EXIF chunk is replaced. An empty block returns the
// input unchanged.
func InjectEXIF(src []byte, tiff []byte) ([]byte, error) {
	if len(tiff) == 0 {
		return src, nil
	}

	chunks, err := parseChunks(src)
	if err != nil {
		return nil, err
	}
	features, err := featuresOf(chunks)
	if err != nil {
		return nil, err
	}

	kept := make([]chunk, 0, len(chunks)+2)
	var vp8x *chunk
	for _, c := range chunks {
		switch c.fourCC {
		case chunkEXIF:
			continue
		case chunkVP8X:
			data := make([]byte, len(c.data))
			copy(data, c.data)
			kept = append(kept, chunk{fourCC: chunkVP8X, data: data})
			vp8x = &kept[len(kept)-1]
		default:
			kept = append(kept, c)
		}
	}

	if vp8x != nil {
		if len(vp8x.data) < 10 {
			return nil, errors.New("VP8X chunk too short")
		}
		vp8x.data[0] |= flagEXIF
	} else {
		header := buildVP8X(features)
		kept = append([]chunk{header}, kept...)
	}

	kept = append(kept, chunk{fourCC: chunkEXIF, data: tiff})
	return buildContainer(kept), nil
}

// ExtractEXIF returns the TIFF block stored in the container's EXIF chunk,
// or nil when none exists. Conversion never calls this; it backs tests and
// reporting.
func ExtractEXIF(data []byte) ([]byte, error) {
	chunks, err := parseChunks(data)
	if err != nil {
		return nil, err
	}
	for _, c := range chunks {
		if c.fourCC == chunkEXIF {
			out := make([]byte, len(c.data))
			copy(out, c.data)
			return out, nil
		}
	}
	return nil, nil
}

func parseChunks(data []byte) ([]chunk, error) {
	if len(data) < 12 {
		return nil, errors.New("container too short")
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WEBP" {
		return nil, errors.New("not a webp container")
	}
	end := 8 + int(binary.LittleEndian.Uint32(data[4:8]))
	if end > len(data) {
		return nil, errors.New("riff size exceeds data")
	}

	var chunks []chunk
	pos := 12
	for pos < end {
		if pos+8 > end {
			return nil, errors.New("truncated chunk header")
		}
		fourCC := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		pos += 8
		if pos+size > end {
			return nil, fmt.Errorf("chunk %s exceeds container", fourCC)
		}
		chunks = append(chunks, chunk{fourCC: fourCC, data: data[pos : pos+size]})
		pos += size + size%2
	}
	if len(chunks) == 0 {
		return nil, errors.New("container has no chunks")
	}
	return chunks, nil
}

func featuresOf(chunks []chunk) (Features, error) {
	var f Features
	var haveDims bool

	for _, c := range chunks {
		switch c.fourCC {
		case chunkVP8X:
			if len(c.data) < 10 {
				return Features{}, errors.New("VP8X chunk too short")
			}
			f.Alpha = f.Alpha || c.data[0]&flagAlpha != 0
			f.Width = 1 + int(uint32(c.data[4])|uint32(c.data[5])<<8|uint32(c.data[6])<<16)
			f.Height = 1 + int(uint32(c.data[7])|uint32(c.data[8])<<8|uint32(c.data[9])<<16)
			haveDims = true
		case chunkVP8:
			if haveDims {
				continue
			}
			w, h, err := vp8Dimensions(c.data)
			if err != nil {
				return Features{}, err
			}
			f.Width, f.Height = w, h
			haveDims = true
		case chunkVP8L:
			if haveDims {
				continue
			}
			w, h, alpha, err := vp8lDimensions(c.data)
			if err != nil {
				return Features{}, err
			}
			f.Width, f.Height = w, h
			f.Alpha = f.Alpha || alpha
			haveDims = true
		case chunkALPH:
			f.Alpha = true
		case chunkEXIF:
			f.HasEXIF = true
		}
	}

	if !haveDims {
		return Features{}, errors.New("no image data chunk")
	}
	return f, nil
}

// vp8Dimensions reads the lossy keyframe header: a 3-byte frame tag, the
// 0x9D012A start code, then 14-bit width and height.
func vp8Dimensions(data []byte) (int, int, error) {
	if len(data) < 10 {
		return 0, 0, errors.New("VP8 chunk too short")
	}
	if data[0]&1 != 0 {
		return 0, 0, errors.New("VP8 data does not start with a keyframe")
	}
	if data[3] != 0x9D || data[4] != 0x01 || data[5] != 0x2A {
		return 0, 0, errors.New("bad VP8 keyframe start code")
	}
	w := int(binary.LittleEndian.Uint16(data[6:8]) & 0x3FFF)
	h := int(binary.LittleEndian.Uint16(data[8:10]) & 0x3FFF)
	return w, h, nil
}

// vp8lDimensions reads the lossless stream header: the 0x2F signature, then
// 14-bit width minus one, 14-bit height minus one, and the alpha hint bit.
func vp8lDimensions(data []byte) (int, int, bool, error) {
	if len(data) < 5 {
		return 0, 0, false, errors.New("VP8L chunk too short")
	}
	if data[0] != 0x2F {
		return 0, 0, false, errors.New("bad VP8L signature")
	}
	bits := binary.LittleEndian.Uint32(data[1:5])
	w := int(bits&0x3FFF) + 1
	h := int((bits>>14)&0x3FFF) + 1
	alpha := (bits>>28)&1 == 1
	return w, h, alpha, nil
}

func buildVP8X(f Features) chunk {
	data := make([]byte, 10)
	data[0] = flagEXIF
	if f.Alpha {
		data[0] |= flagAlpha
	}
	w := uint32(f.Width - 1)
	h := uint32(f.Height - 1)
	data[4] = byte(w)
	data[5] = byte(w >> 8)
	data[6] = byte(w >> 16)
	data[7] = byte(h)
	data[8] = byte(h >> 8)
	data[9] = byte(h >> 16)
	return chunk{fourCC: chunkVP8X, data: data}
}

func buildContainer(chunks []chunk) []byte {
	size := 4
	for _, c := range chunks {
		size += 8 + len(c.data) + len(c.data)%2
	}

	out := make([]byte, 0, 8+size)
	out = append(out, "RIFF"...)
	out = binary.LittleEndian.AppendUint32(out, uint32(size))
	out = append(out, "WEBP"...)
	for _, c := range chunks {
		out = append(out, c.fourCC...)
		out = binary.LittleEndian.AppendUint32(out, uint32(len(c.data)))
		out = append(out, c.data...)
		if len(c.data)%2 == 1 {
			out = append(out, 0)
		}
	}
	return out
}
